package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/uniroute/uniroute/core"
	"github.com/uniroute/uniroute/core/application"
)

func draftApp(now time.Time) application.Application {
	return application.Application{
		ID:           "a1",
		UniversityID: "uni1",
		ProgramID:    "prog1",
		Student: application.StudentData{
			FullName: "Jane Doe",
			Email:    "jane@test.test",
			Country:  "France",
		},
		Selection:   application.AdmissionOnly,
		Documents:   make(map[application.DocumentTag]application.Document),
		CurrentStep: application.StepServices,
		MaxStep:     application.StepServices,
		Status:      application.StatusDraft,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestApplicationRepository_UpdateApplication_VersionConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApplicationRepository(db)
	app := draftApp(time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE application SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT true FROM application WHERE id = \$1`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"true"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.UpdateApplication(context.Background(), app)
	require.ErrorIs(t, err, application.ErrVersionConflict)
	require.True(t, core.IsConflict(err), "a stale write must surface as a conflict, got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepository_UpdateApplication_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApplicationRepository(db)
	app := draftApp(time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE application SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT true FROM application WHERE id = \$1`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"true"}))
	mock.ExpectRollback()

	_, err := repo.UpdateApplication(context.Background(), app)
	require.ErrorIs(t, err, application.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepository_UpdateApplication_BumpsVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApplicationRepository(db)
	app := draftApp(time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE application SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM application_document WHERE application_id = \$1`).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM application_status_change WHERE application_id = \$1`).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	updated, err := repo.UpdateApplication(context.Background(), app)
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepository_CreateApplication(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApplicationRepository(db)
	app := draftApp(time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO application`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.CreateApplication(context.Background(), app)
	require.NoError(t, err)
	require.Equal(t, app.ID, created.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
