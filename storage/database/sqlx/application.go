package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uniroute/uniroute/core"
	"github.com/uniroute/uniroute/core/application"
)

type applicationRow struct {
	ID                    string      `db:"id"`
	StudentID             string      `db:"student_id"`
	UniversityID          string      `db:"university_id"`
	ProgramID             string      `db:"program_id"`
	FullName              string      `db:"full_name"`
	Email                 string      `db:"email"`
	Phone                 null.String `db:"phone"`
	PersonalAddress       null.String `db:"personal_address"`
	DateOfBirth           null.Time   `db:"date_of_birth"`
	AcademicQualification null.String `db:"academic_qualification"`
	IdentityNumber        null.String `db:"identity_number"`
	Country               string      `db:"country"`
	ServiceSelection      string      `db:"service_selection"`
	AdditionalNotes       null.String `db:"additional_notes"`
	PaymentMethod         null.String `db:"payment_method"`
	PaymentAmount         null.Int    `db:"payment_amount"`
	PaymentReference      null.String `db:"payment_reference"`
	PaidAt                null.Time   `db:"paid_at"`
	CurrentStep           int         `db:"current_step"`
	MaxStep               int         `db:"max_step"`
	Status                string      `db:"status"`
	Version               int         `db:"version"`
	SubmittedAt           null.Time   `db:"submitted_at"`
	CreatedAt             time.Time   `db:"created_at"`
	UpdatedAt             time.Time   `db:"updated_at"`
}

func (r applicationRow) toApplication() application.Application {
	app := application.Application{
		ID:           r.ID,
		StudentID:    r.StudentID,
		UniversityID: r.UniversityID,
		ProgramID:    r.ProgramID,
		Student: application.StudentData{
			FullName:              r.FullName,
			Email:                 r.Email,
			Phone:                 r.Phone,
			PersonalAddress:       r.PersonalAddress,
			DateOfBirth:           r.DateOfBirth,
			AcademicQualification: r.AcademicQualification,
			IdentityNumber:        r.IdentityNumber,
			Country:               r.Country,
		},
		Selection:       application.ServiceSelection(r.ServiceSelection),
		AdditionalNotes: r.AdditionalNotes,
		Documents:       make(map[application.DocumentTag]application.Document),
		CurrentStep:     r.CurrentStep,
		MaxStep:         r.MaxStep,
		Status:          application.Status(r.Status),
		Version:         r.Version,
		SubmittedAt:     r.SubmittedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.PaymentMethod.Valid {
		app.Payment = &application.Payment{
			Method:    application.PaymentMethod(r.PaymentMethod.String),
			Amount:    r.PaymentAmount.Int,
			Reference: r.PaymentReference.String,
			PaidAt:    r.PaidAt.Time,
		}
	}
	return app
}

func newApplicationRow(app application.Application) applicationRow {
	row := applicationRow{
		ID:                    app.ID,
		StudentID:             app.StudentID,
		UniversityID:          app.UniversityID,
		ProgramID:             app.ProgramID,
		FullName:              app.Student.FullName,
		Email:                 app.Student.Email,
		Phone:                 app.Student.Phone,
		PersonalAddress:       app.Student.PersonalAddress,
		DateOfBirth:           app.Student.DateOfBirth,
		AcademicQualification: app.Student.AcademicQualification,
		IdentityNumber:        app.Student.IdentityNumber,
		Country:               app.Student.Country,
		ServiceSelection:      string(app.Selection),
		AdditionalNotes:       app.AdditionalNotes,
		CurrentStep:           app.CurrentStep,
		MaxStep:               app.MaxStep,
		Status:                string(app.Status),
		Version:               app.Version,
		SubmittedAt:           app.SubmittedAt,
		CreatedAt:             app.CreatedAt,
		UpdatedAt:             app.UpdatedAt,
	}
	if app.Payment != nil {
		row.PaymentMethod = null.StringFrom(string(app.Payment.Method))
		row.PaymentAmount = null.IntFrom(app.Payment.Amount)
		row.PaymentReference = null.StringFrom(app.Payment.Reference)
		row.PaidAt = null.TimeFrom(app.Payment.PaidAt)
	}
	return row
}

type documentRow struct {
	ID            string    `db:"id"`
	ApplicationID string    `db:"application_id"`
	Tag           string    `db:"tag"`
	Filename      string    `db:"filename"`
	ContentType   string    `db:"content_type"`
	Size          int64     `db:"size"`
	URL           string    `db:"url"`
	UploadedAt    time.Time `db:"uploaded_at"`
}

func (r documentRow) toDocument() application.Document {
	return application.Document{
		ID:          r.ID,
		Tag:         application.DocumentTag(r.Tag),
		Filename:    r.Filename,
		ContentType: r.ContentType,
		Size:        r.Size,
		URL:         r.URL,
		UploadedAt:  r.UploadedAt,
	}
}

type statusChangeRow struct {
	ID            int64     `db:"id"`
	ApplicationID string    `db:"application_id"`
	FromStatus    string    `db:"from_status"`
	ToStatus      string    `db:"to_status"`
	ChangedBy     string    `db:"changed_by"`
	Note          string    `db:"note"`
	ChangedAt     time.Time `db:"changed_at"`
}

func (r statusChangeRow) toStatusChange() application.StatusChange {
	return application.StatusChange{
		From:      application.Status(r.FromStatus),
		To:        application.Status(r.ToStatus),
		ChangedBy: r.ChangedBy,
		Note:      r.Note,
		ChangedAt: r.ChangedAt,
	}
}

const applicationColumns = `id, student_id, university_id, program_id, full_name, email, phone, personal_address,
date_of_birth, academic_qualification, identity_number, country, service_selection, additional_notes,
payment_method, payment_amount, payment_reference, paid_at, current_step, max_step, status, version,
submitted_at, created_at, updated_at`

type applicationRepository struct {
	db *sqlx.DB
}

func NewApplicationRepository(db *sqlx.DB) application.Repository {
	return &applicationRepository{db: db}
}

func (repo *applicationRepository) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return application.Application{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
INSERT INTO application (` + applicationColumns + `)
VALUES (:id, :student_id, :university_id, :program_id, :full_name, :email, :phone, :personal_address,
:date_of_birth, :academic_qualification, :identity_number, :country, :service_selection, :additional_notes,
:payment_method, :payment_amount, :payment_reference, :paid_at, :current_step, :max_step, :status, :version,
:submitted_at, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, q, newApplicationRow(app)); err != nil {
		return application.Application{}, errors.Wrap(err, "creating application")
	}
	if err = saveRelated(ctx, tx, app); err != nil {
		return application.Application{}, err
	}
	if err = tx.Commit(); err != nil {
		return application.Application{}, errors.Wrap(err, "committing transaction")
	}
	return app, nil
}

func (repo *applicationRepository) GetApplicationByID(ctx context.Context, id string) (application.Application, error) {
	var row applicationRow
	q := repo.db.Rebind(`SELECT ` + applicationColumns + ` FROM application WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return application.Application{}, application.ErrNotFound
		}
		return application.Application{}, errors.Wrap(err, "getting application")
	}

	apps := []application.Application{row.toApplication()}
	if err := repo.loadRelated(ctx, apps); err != nil {
		return application.Application{}, err
	}
	return apps[0], nil
}

func (repo *applicationRepository) QueryAllApplications(ctx context.Context) ([]application.Application, error) {
	var rows []applicationRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+applicationColumns+` FROM application ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "querying applications")
	}
	return repo.appsFromRows(ctx, rows)
}

func (repo *applicationRepository) FilterApplications(ctx context.Context, filter application.QueryFilter) ([]application.Application, error) {
	where := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)

	if filter.UniversityID != "" {
		where = append(where, `university_id = ?`)
		args = append(args, filter.UniversityID)
	}
	if filter.ProgramID != "" {
		where = append(where, `program_id = ?`)
		args = append(args, filter.ProgramID)
	}
	if filter.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, string(filter.Status))
	}
	if filter.Search != "" {
		where = append(where, `(full_name ILIKE ? OR email ILIKE ?)`)
		like := "%" + filter.Search + "%"
		args = append(args, like, like)
	}
	if !filter.CreatedFrom.IsZero() {
		where = append(where, `created_at >= ?`)
		args = append(args, filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		where = append(where, `created_at <= ?`)
		args = append(args, filter.CreatedTo)
	}
	if filter.SubmittedOnly {
		where = append(where, `status <> ?`)
		args = append(args, string(application.StatusDraft))
	}

	q := `SELECT ` + applicationColumns + ` FROM application`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at`

	var rows []applicationRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "filtering applications")
	}
	return repo.appsFromRows(ctx, rows)
}

func (repo *applicationRepository) UpdateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return application.Application{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	row := newApplicationRow(app)
	const q = `
UPDATE application SET student_id = :student_id, full_name = :full_name, email = :email, phone = :phone,
personal_address = :personal_address, date_of_birth = :date_of_birth,
academic_qualification = :academic_qualification, identity_number = :identity_number, country = :country,
service_selection = :service_selection, additional_notes = :additional_notes,
payment_method = :payment_method, payment_amount = :payment_amount, payment_reference = :payment_reference,
paid_at = :paid_at, current_step = :current_step, max_step = :max_step, status = :status,
version = version + 1, submitted_at = :submitted_at, updated_at = :updated_at
WHERE id = :id AND version = :version`
	res, err := tx.NamedExecContext(ctx, q, row)
	if err != nil {
		return application.Application{}, errors.Wrap(err, "updating application")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// either gone or a concurrent writer bumped the version
		var exists bool
		check := repo.db.Rebind(`SELECT true FROM application WHERE id = ?`)
		if err = tx.GetContext(ctx, &exists, check, app.ID); err != nil {
			if err == sql.ErrNoRows {
				return application.Application{}, application.ErrNotFound
			}
			return application.Application{}, errors.Wrap(err, "checking application")
		}
		return application.Application{}, core.NewConflictError(application.ErrVersionConflict)
	}

	del := repo.db.Rebind(`DELETE FROM application_document WHERE application_id = ?`)
	if _, err = tx.ExecContext(ctx, del, app.ID); err != nil {
		return application.Application{}, errors.Wrap(err, "clearing documents")
	}
	del = repo.db.Rebind(`DELETE FROM application_status_change WHERE application_id = ?`)
	if _, err = tx.ExecContext(ctx, del, app.ID); err != nil {
		return application.Application{}, errors.Wrap(err, "clearing status history")
	}
	if err = saveRelated(ctx, tx, app); err != nil {
		return application.Application{}, err
	}
	if err = tx.Commit(); err != nil {
		return application.Application{}, errors.Wrap(err, "committing transaction")
	}

	app.Version++
	return app, nil
}

func (repo *applicationRepository) DeleteApplicationsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM application WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting applications")
	}
	return nil
}

func saveRelated(ctx context.Context, tx *sqlx.Tx, app application.Application) error {
	const docQ = `
INSERT INTO application_document (id, application_id, tag, filename, content_type, size, url, uploaded_at)
VALUES (:id, :application_id, :tag, :filename, :content_type, :size, :url, :uploaded_at)`
	for tag, doc := range app.Documents {
		row := documentRow{
			ID:            doc.ID,
			ApplicationID: app.ID,
			Tag:           string(tag),
			Filename:      doc.Filename,
			ContentType:   doc.ContentType,
			Size:          doc.Size,
			URL:           doc.URL,
			UploadedAt:    doc.UploadedAt,
		}
		if _, err := tx.NamedExecContext(ctx, docQ, row); err != nil {
			return errors.Wrap(err, "saving document")
		}
	}

	const histQ = `
INSERT INTO application_status_change (application_id, from_status, to_status, changed_by, note, changed_at)
VALUES (:application_id, :from_status, :to_status, :changed_by, :note, :changed_at)`
	for _, change := range app.StatusHistory {
		row := statusChangeRow{
			ApplicationID: app.ID,
			FromStatus:    string(change.From),
			ToStatus:      string(change.To),
			ChangedBy:     change.ChangedBy,
			Note:          change.Note,
			ChangedAt:     change.ChangedAt,
		}
		if _, err := tx.NamedExecContext(ctx, histQ, row); err != nil {
			return errors.Wrap(err, "saving status change")
		}
	}
	return nil
}

func (repo *applicationRepository) appsFromRows(ctx context.Context, rows []applicationRow) ([]application.Application, error) {
	apps := make([]application.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, row.toApplication())
	}
	if err := repo.loadRelated(ctx, apps); err != nil {
		return nil, err
	}
	return apps, nil
}

func (repo *applicationRepository) loadRelated(ctx context.Context, apps []application.Application) error {
	if len(apps) == 0 {
		return nil
	}
	ids := make([]string, 0, len(apps))
	byID := make(map[string]*application.Application, len(apps))
	for i := range apps {
		ids = append(ids, apps[i].ID)
		byID[apps[i].ID] = &apps[i]
	}

	q, args, err := sqlx.In(`
SELECT id, application_id, tag, filename, content_type, size, url, uploaded_at
FROM application_document WHERE application_id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building documents query")
	}
	var docRows []documentRow
	if err = repo.db.SelectContext(ctx, &docRows, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "loading documents")
	}
	for _, row := range docRows {
		app := byID[row.ApplicationID]
		app.Documents[application.DocumentTag(row.Tag)] = row.toDocument()
	}

	q, args, err = sqlx.In(`
SELECT id, application_id, from_status, to_status, changed_by, note, changed_at
FROM application_status_change WHERE application_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return errors.Wrap(err, "building status history query")
	}
	var histRows []statusChangeRow
	if err = repo.db.SelectContext(ctx, &histRows, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "loading status history")
	}
	for _, row := range histRows {
		app := byID[row.ApplicationID]
		app.StatusHistory = append(app.StatusHistory, row.toStatusChange())
	}
	return nil
}
