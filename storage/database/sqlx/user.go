package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/uniroute/uniroute/core/user"
)

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	UniversityID sql.NullString `db:"university_id"`
	PasswordHash []byte         `db:"password_hash"`
	LastLogin    sql.NullTime   `db:"last_login"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r userRow) toUser() user.User {
	usr := user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		IsActive:     r.IsActive,
		Roles:        r.Roles,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.UniversityID.Valid {
		usr.UniversityID = r.UniversityID.String
	}
	if r.LastLogin.Valid {
		usr.LastLogin = r.LastLogin.Time
	}
	return usr
}

func newUserRow(usr user.User) userRow {
	row := userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		IsActive:     usr.IsActive,
		Roles:        usr.Roles,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt,
		UpdatedAt:    usr.UpdatedAt,
	}
	if usr.Roles == nil {
		row.Roles = pq.StringArray{}
	}
	if usr.UniversityID != "" {
		row.UniversityID = sql.NullString{String: usr.UniversityID, Valid: true}
	}
	if !usr.LastLogin.IsZero() {
		row.LastLogin = sql.NullTime{Time: usr.LastLogin, Valid: true}
	}
	return row
}

const userColumns = `id, name, username, email, is_active, roles, university_id, password_hash, last_login, created_at, updated_at`

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	checkOne := func(col, val string, existsErr error) error {
		if val == "" {
			return nil
		}
		q := fmt.Sprintf(`SELECT COUNT(*) FROM app_user WHERE %s = ?`, col)
		args := []interface{}{val}
		if len(excludedUsers) > 0 {
			ids := make([]string, 0, len(excludedUsers))
			for _, usr := range excludedUsers {
				ids = append(ids, usr.ID)
			}
			inQ, inArgs, err := sqlx.In(q+` AND id NOT IN (?)`, val, ids)
			if err != nil {
				return errors.Wrap(err, "building uniqueness query")
			}
			q, args = inQ, inArgs
		}

		var count int
		if err := repo.db.GetContext(ctx, &count, repo.db.Rebind(q), args...); err != nil {
			return errors.Wrap(err, "checking uniqueness")
		}
		if count > 0 {
			return existsErr
		}
		return nil
	}

	if err := checkOne("username", username, user.ErrUsernameExists); err != nil {
		return err
	}
	return checkOne("email", email, user.ErrEmailExists)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	const q = `
INSERT INTO app_user (` + userColumns + `)
VALUES (:id, :name, :username, :email, :is_active, :roles, :university_id, :password_hash, :last_login, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newUserRow(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM app_user ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return usersFromRows(rows), nil
}

func (repo *userRepository) getBy(ctx context.Context, where string, args ...interface{}) (user.User, error) {
	var row userRow
	q := `SELECT ` + userColumns + ` FROM app_user WHERE ` + where
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q), args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getBy(ctx, `id = ?`, id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getBy(ctx, `username = ?`, username)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getBy(ctx, `email = ?`, email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getBy(ctx, `username = ? OR email = ?`, username, username)
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	where := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)

	if filter.Search != "" {
		where = append(where, `(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)`)
		like := "%" + filter.Search + "%"
		args = append(args, like, like, like)
	}
	if filter.Roles != nil {
		where = append(where, `roles && ?`)
		args = append(args, pq.StringArray(filter.Roles))
	}
	if filter.IsActive != nil {
		where = append(where, `is_active = ?`)
		args = append(args, *filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		where = append(where, `created_at >= ?`)
		args = append(args, filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		where = append(where, `created_at <= ?`)
		args = append(args, filter.CreatedTo)
	}

	q := `SELECT ` + userColumns + ` FROM app_user`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at`

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return usersFromRows(rows), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)

	if usr.Name != "" {
		set = append(set, `name = ?`)
		args = append(args, usr.Name)
	}
	if usr.Username != "" {
		set = append(set, `username = ?`)
		args = append(args, usr.Username)
	}
	if usr.Email != "" {
		set = append(set, `email = ?`)
		args = append(args, usr.Email)
	}
	if usr.Roles != nil {
		set = append(set, `roles = ?`)
		args = append(args, pq.StringArray(usr.Roles))
	}
	if usr.PasswordHash != nil {
		set = append(set, `password_hash = ?`)
		args = append(args, usr.PasswordHash)
	}
	if usr.UniversityID != "" {
		set = append(set, `university_id = ?`)
		args = append(args, usr.UniversityID)
	}
	if !usr.LastLogin.IsZero() {
		set = append(set, `last_login = ?`)
		args = append(args, usr.LastLogin)
	}
	if isActive != nil {
		set = append(set, `is_active = ?`)
		args = append(args, *isActive)
	}
	set = append(set, `updated_at = ?`)
	args = append(args, usr.UpdatedAt)
	args = append(args, usr.ID)

	q := `UPDATE app_user SET ` + strings.Join(set, `, `) + ` WHERE id = ?`
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if _, err := repo.GetUserByID(ctx, usr.ID); err != nil {
		if err == user.ErrNotFound {
			return repo.CreateUser(ctx, usr)
		}
		return user.User{}, err
	}
	return repo.UpdateUser(ctx, usr, nil)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM app_user WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func usersFromRows(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users
}
