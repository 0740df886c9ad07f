package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uniroute/uniroute/core/university"
)

type universityRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	Country   string      `db:"country"`
	City      string      `db:"city"`
	Website   null.String `db:"website"`
	IsActive  bool        `db:"is_active"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r universityRow) toUniversity() university.University {
	return university.University(r)
}

type programRow struct {
	ID            string    `db:"id"`
	UniversityID  string    `db:"university_id"`
	Name          string    `db:"name"`
	Degree        string    `db:"degree"`
	TuitionFee    int       `db:"tuition_fee"`
	DurationYears int       `db:"duration_years"`
	IsActive      bool      `db:"is_active"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r programRow) toProgram() university.Program {
	return university.Program(r)
}

const (
	universityColumns = `id, name, country, city, website, is_active, created_at, updated_at`
	programColumns    = `id, university_id, name, degree, tuition_fee, duration_years, is_active, created_at, updated_at`
)

type universityRepository struct {
	db *sqlx.DB
}

func NewUniversityRepository(db *sqlx.DB) university.Repository {
	return &universityRepository{db: db}
}

func (repo *universityRepository) CreateUniversity(ctx context.Context, uni university.University) (university.University, error) {
	const q = `
INSERT INTO university (` + universityColumns + `)
VALUES (:id, :name, :country, :city, :website, :is_active, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, universityRow(uni)); err != nil {
		return university.University{}, errors.Wrap(err, "creating university")
	}
	return uni, nil
}

func (repo *universityRepository) GetUniversityByID(ctx context.Context, id string) (university.University, error) {
	var row universityRow
	q := repo.db.Rebind(`SELECT ` + universityColumns + ` FROM university WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return university.University{}, university.ErrNotFound
		}
		return university.University{}, errors.Wrap(err, "getting university")
	}
	return row.toUniversity(), nil
}

func (repo *universityRepository) QueryAllUniversities(ctx context.Context) ([]university.University, error) {
	var rows []universityRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+universityColumns+` FROM university ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "querying universities")
	}
	unis := make([]university.University, 0, len(rows))
	for _, row := range rows {
		unis = append(unis, row.toUniversity())
	}
	return unis, nil
}

func (repo *universityRepository) FilterUniversities(ctx context.Context, filter university.QueryFilter) ([]university.University, error) {
	where := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)

	if filter.Search != "" {
		where = append(where, `(name ILIKE ? OR country ILIKE ? OR city ILIKE ?)`)
		like := "%" + filter.Search + "%"
		args = append(args, like, like, like)
	}
	if filter.Country != "" {
		where = append(where, `country ILIKE ?`)
		args = append(args, filter.Country)
	}
	if filter.IsActive != nil {
		where = append(where, `is_active = ?`)
		args = append(args, *filter.IsActive)
	}

	q := `SELECT ` + universityColumns + ` FROM university`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY name`

	var rows []universityRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "filtering universities")
	}
	unis := make([]university.University, 0, len(rows))
	for _, row := range rows {
		unis = append(unis, row.toUniversity())
	}
	return unis, nil
}

func (repo *universityRepository) UpdateUniversity(ctx context.Context, uni university.University, isActive *bool) (university.University, error) {
	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)

	if uni.Name != "" {
		set = append(set, `name = ?`)
		args = append(args, uni.Name)
	}
	if uni.Country != "" {
		set = append(set, `country = ?`)
		args = append(args, uni.Country)
	}
	if uni.City != "" {
		set = append(set, `city = ?`)
		args = append(args, uni.City)
	}
	if uni.Website.Valid {
		set = append(set, `website = ?`)
		args = append(args, uni.Website)
	}
	if isActive != nil {
		set = append(set, `is_active = ?`)
		args = append(args, *isActive)
	}
	set = append(set, `updated_at = ?`)
	args = append(args, uni.UpdatedAt)
	args = append(args, uni.ID)

	q := `UPDATE university SET ` + strings.Join(set, `, `) + ` WHERE id = ?`
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return university.University{}, errors.Wrap(err, "updating university")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return university.University{}, university.ErrNotFound
	}
	return repo.GetUniversityByID(ctx, uni.ID)
}

func (repo *universityRepository) DeleteUniversitiesByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM university WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting universities")
	}
	return nil
}

func (repo *universityRepository) CreateProgram(ctx context.Context, prog university.Program) (university.Program, error) {
	const q = `
INSERT INTO program (` + programColumns + `)
VALUES (:id, :university_id, :name, :degree, :tuition_fee, :duration_years, :is_active, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, programRow(prog)); err != nil {
		return university.Program{}, errors.Wrap(err, "creating program")
	}
	return prog, nil
}

func (repo *universityRepository) GetProgramByID(ctx context.Context, id string) (university.Program, error) {
	var row programRow
	q := repo.db.Rebind(`SELECT ` + programColumns + ` FROM program WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return university.Program{}, university.ErrProgramNotFound
		}
		return university.Program{}, errors.Wrap(err, "getting program")
	}
	return row.toProgram(), nil
}

func (repo *universityRepository) QueryProgramsByUniversity(ctx context.Context, universityID string) ([]university.Program, error) {
	var rows []programRow
	q := repo.db.Rebind(`SELECT ` + programColumns + ` FROM program WHERE university_id = ? ORDER BY name`)
	if err := repo.db.SelectContext(ctx, &rows, q, universityID); err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	progs := make([]university.Program, 0, len(rows))
	for _, row := range rows {
		progs = append(progs, row.toProgram())
	}
	return progs, nil
}

func (repo *universityRepository) UpdateProgram(ctx context.Context, prog university.Program) (university.Program, error) {
	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)

	if prog.Name != "" {
		set = append(set, `name = ?`)
		args = append(args, prog.Name)
	}
	if prog.Degree != "" {
		set = append(set, `degree = ?`)
		args = append(args, prog.Degree)
	}
	if prog.TuitionFee > 0 {
		set = append(set, `tuition_fee = ?`)
		args = append(args, prog.TuitionFee)
	}
	if prog.DurationYears > 0 {
		set = append(set, `duration_years = ?`)
		args = append(args, prog.DurationYears)
	}
	set = append(set, `is_active = ?`, `updated_at = ?`)
	args = append(args, prog.IsActive, prog.UpdatedAt)
	args = append(args, prog.ID)

	q := `UPDATE program SET ` + strings.Join(set, `, `) + ` WHERE id = ?`
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return university.Program{}, errors.Wrap(err, "updating program")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return university.Program{}, university.ErrProgramNotFound
	}
	return repo.GetProgramByID(ctx, prog.ID)
}

func (repo *universityRepository) DeleteProgramsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM program WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting programs")
	}
	return nil
}
