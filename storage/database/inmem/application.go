package inmemdb

import (
	"context"
	"strings"

	"github.com/uniroute/uniroute/core"
	"github.com/uniroute/uniroute/core/application"
)

type applicationRepository struct {
	db *applicationTable
}

func NewApplicationRepository(db *DB) application.Repository {
	return &applicationRepository{db: db.application}
}

// copyApp detaches the stored record from callers mutating maps and slices.
func copyApp(app application.Application) application.Application {
	cp := app
	cp.Documents = make(map[application.DocumentTag]application.Document, len(app.Documents))
	for tag, doc := range app.Documents {
		cp.Documents[tag] = doc
	}
	cp.StatusHistory = append([]application.StatusChange(nil), app.StatusHistory...)
	if app.Payment != nil {
		pmt := *app.Payment
		cp.Payment = &pmt
	}
	return cp
}

func (repo *applicationRepository) query() []application.Application {
	apps := make([]application.Application, 0, len(repo.db.table))
	for _, app := range repo.db.table {
		apps = append(apps, copyApp(*app))
	}
	return apps
}

func (repo *applicationRepository) CreateApplication(_ context.Context, app application.Application) (application.Application, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := copyApp(app)
	repo.db.table[app.ID] = &stored
	return copyApp(stored), nil
}

func (repo *applicationRepository) GetApplicationByID(_ context.Context, id string) (application.Application, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if app, ok := repo.db.table[id]; ok {
		return copyApp(*app), nil
	}
	return application.Application{}, application.ErrNotFound
}

func (repo *applicationRepository) QueryAllApplications(_ context.Context) ([]application.Application, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(), nil
}

func (repo *applicationRepository) FilterApplications(_ context.Context, filter application.QueryFilter) ([]application.Application, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	matches := make([]application.Application, 0)
	for _, app := range repo.query() {
		if filter.UniversityID != "" && app.UniversityID != filter.UniversityID {
			continue
		}
		if filter.ProgramID != "" && app.ProgramID != filter.ProgramID {
			continue
		}
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !matchesApplicationSearch(app, filter.Search) {
			continue
		}
		if !filter.CreatedFrom.IsZero() && app.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && app.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		if filter.SubmittedOnly && !app.IsSubmitted() {
			continue
		}
		matches = append(matches, app)
	}
	return matches, nil
}

func (repo *applicationRepository) UpdateApplication(_ context.Context, app application.Application) (application.Application, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[app.ID]
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	if orig.Version != app.Version {
		return application.Application{}, core.NewConflictError(application.ErrVersionConflict)
	}

	stored := copyApp(app)
	stored.Version++
	repo.db.table[app.ID] = &stored
	return copyApp(stored), nil
}

func (repo *applicationRepository) DeleteApplicationsByID(_ context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func matchesApplicationSearch(app application.Application, search string) bool {
	search = strings.ToLower(search)
	return strings.Contains(strings.ToLower(app.Student.FullName), search) ||
		strings.Contains(strings.ToLower(app.Student.Email), search)
}
