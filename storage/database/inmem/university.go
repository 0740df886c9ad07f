package inmemdb

import (
	"context"
	"strings"

	"github.com/uniroute/uniroute/core/university"
)

type universityRepository struct {
	unis  *universityTable
	progs *programTable
}

func NewUniversityRepository(db *DB) university.Repository {
	return &universityRepository{unis: db.university, progs: db.program}
}

func (repo *universityRepository) query() []university.University {
	unis := make([]university.University, 0, len(repo.unis.table))
	for _, u := range repo.unis.table {
		unis = append(unis, *u)
	}
	return unis
}

func (repo *universityRepository) CreateUniversity(_ context.Context, uni university.University) (university.University, error) {
	repo.unis.mutex.Lock()
	defer repo.unis.mutex.Unlock()

	repo.unis.table[uni.ID] = &uni
	return uni, nil
}

func (repo *universityRepository) GetUniversityByID(_ context.Context, id string) (university.University, error) {
	repo.unis.mutex.RLock()
	defer repo.unis.mutex.RUnlock()

	if uni, ok := repo.unis.table[id]; ok {
		return *uni, nil
	}
	return university.University{}, university.ErrNotFound
}

func (repo *universityRepository) QueryAllUniversities(_ context.Context) ([]university.University, error) {
	repo.unis.mutex.RLock()
	defer repo.unis.mutex.RUnlock()
	return repo.query(), nil
}

func (repo *universityRepository) FilterUniversities(_ context.Context, filter university.QueryFilter) ([]university.University, error) {
	repo.unis.mutex.RLock()
	defer repo.unis.mutex.RUnlock()

	matches := make([]university.University, 0)
	for _, uni := range repo.query() {
		if filter.Search != "" && !matchesUniversitySearch(uni, filter.Search) {
			continue
		}
		if filter.Country != "" && !strings.EqualFold(uni.Country, filter.Country) {
			continue
		}
		if filter.IsActive != nil && uni.IsActive != *filter.IsActive {
			continue
		}
		matches = append(matches, uni)
	}
	return matches, nil
}

func (repo *universityRepository) UpdateUniversity(_ context.Context, uni university.University, isActive *bool) (university.University, error) {
	repo.unis.mutex.Lock()
	defer repo.unis.mutex.Unlock()

	// only save set fields
	orig, ok := repo.unis.table[uni.ID]
	if !ok {
		return university.University{}, university.ErrNotFound
	}
	if uni.Name != "" {
		orig.Name = uni.Name
	}
	if uni.Country != "" {
		orig.Country = uni.Country
	}
	if uni.City != "" {
		orig.City = uni.City
	}
	if uni.Website.Valid {
		orig.Website = uni.Website
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.UpdatedAt = uni.UpdatedAt

	repo.unis.table[uni.ID] = orig
	return *orig, nil
}

func (repo *universityRepository) DeleteUniversitiesByID(_ context.Context, ids ...string) error {
	repo.unis.mutex.Lock()
	defer repo.unis.mutex.Unlock()
	repo.progs.mutex.Lock()
	defer repo.progs.mutex.Unlock()

	for _, id := range ids {
		delete(repo.unis.table, id)
		for pid, prog := range repo.progs.table {
			if prog.UniversityID == id {
				delete(repo.progs.table, pid)
			}
		}
	}
	return nil
}

func (repo *universityRepository) CreateProgram(_ context.Context, prog university.Program) (university.Program, error) {
	repo.progs.mutex.Lock()
	defer repo.progs.mutex.Unlock()

	repo.progs.table[prog.ID] = &prog
	return prog, nil
}

func (repo *universityRepository) GetProgramByID(_ context.Context, id string) (university.Program, error) {
	repo.progs.mutex.RLock()
	defer repo.progs.mutex.RUnlock()

	if prog, ok := repo.progs.table[id]; ok {
		return *prog, nil
	}
	return university.Program{}, university.ErrProgramNotFound
}

func (repo *universityRepository) QueryProgramsByUniversity(_ context.Context, universityID string) ([]university.Program, error) {
	repo.progs.mutex.RLock()
	defer repo.progs.mutex.RUnlock()

	progs := make([]university.Program, 0)
	for _, prog := range repo.progs.table {
		if prog.UniversityID == universityID {
			progs = append(progs, *prog)
		}
	}
	return progs, nil
}

func (repo *universityRepository) UpdateProgram(_ context.Context, prog university.Program) (university.Program, error) {
	repo.progs.mutex.Lock()
	defer repo.progs.mutex.Unlock()

	orig, ok := repo.progs.table[prog.ID]
	if !ok {
		return university.Program{}, university.ErrProgramNotFound
	}
	if prog.Name != "" {
		orig.Name = prog.Name
	}
	if prog.Degree != "" {
		orig.Degree = prog.Degree
	}
	if prog.TuitionFee > 0 {
		orig.TuitionFee = prog.TuitionFee
	}
	if prog.DurationYears > 0 {
		orig.DurationYears = prog.DurationYears
	}
	orig.IsActive = prog.IsActive
	orig.UpdatedAt = prog.UpdatedAt

	repo.progs.table[prog.ID] = orig
	return *orig, nil
}

func (repo *universityRepository) DeleteProgramsByID(_ context.Context, ids ...string) error {
	repo.progs.mutex.Lock()
	defer repo.progs.mutex.Unlock()
	for _, id := range ids {
		delete(repo.progs.table, id)
	}
	return nil
}

func matchesUniversitySearch(uni university.University, search string) bool {
	search = strings.ToLower(search)
	return strings.Contains(strings.ToLower(uni.Name), search) ||
		strings.Contains(strings.ToLower(uni.Country), search) ||
		strings.Contains(strings.ToLower(uni.City), search)
}
