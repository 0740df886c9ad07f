package university

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// errors
	ErrNotFound        = errors.New("university not found")
	ErrProgramNotFound = errors.New("program not found")
)

type (
	Repository interface {
		CreateUniversity(ctx context.Context, uni University) (University, error)
		GetUniversityByID(ctx context.Context, id string) (University, error)
		QueryAllUniversities(ctx context.Context) ([]University, error)
		// FilterUniversities applies AND operation on available QueryFilter fields.
		FilterUniversities(ctx context.Context, filter QueryFilter) ([]University, error)
		UpdateUniversity(ctx context.Context, uni University, isActive *bool) (University, error)
		DeleteUniversitiesByID(ctx context.Context, ids ...string) error

		CreateProgram(ctx context.Context, prog Program) (Program, error)
		GetProgramByID(ctx context.Context, id string) (Program, error)
		QueryProgramsByUniversity(ctx context.Context, universityID string) ([]Program, error)
		UpdateProgram(ctx context.Context, prog Program) (Program, error)
		DeleteProgramsByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, nu NewUniversity) (University, error) {
	now := time.Now().UTC()
	uni := University{
		ID:        uuid.NewString(),
		Name:      nu.Name,
		Country:   nu.Country,
		City:      nu.City,
		Website:   nu.Website,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateUniversity(ctx, uni)
}

func (svc *Service) GetByID(ctx context.Context, id string) (University, error) {
	return svc.repo.GetUniversityByID(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]University, error) {
	return svc.repo.QueryAllUniversities(ctx)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]University, error) {
	filter.Clean()
	if filter.IsEmpty() {
		return svc.repo.QueryAllUniversities(ctx)
	}
	return svc.repo.FilterUniversities(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateUniversity) (University, error) {
	uni := University{
		ID:        id,
		Name:      uu.Name,
		Country:   uu.Country,
		City:      uu.City,
		Website:   uu.Website,
		UpdatedAt: time.Now().UTC(),
	}
	return svc.repo.UpdateUniversity(ctx, uni, uu.IsActive)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUniversitiesByID(ctx, ids...)
}

func (svc *Service) AddProgram(ctx context.Context, universityID string, np NewProgram) (Program, error) {
	if _, err := svc.repo.GetUniversityByID(ctx, universityID); err != nil {
		return Program{}, err
	}
	now := time.Now().UTC()
	prog := Program{
		ID:            uuid.NewString(),
		UniversityID:  universityID,
		Name:          np.Name,
		Degree:        np.Degree,
		TuitionFee:    np.TuitionFee,
		DurationYears: np.DurationYears,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateProgram(ctx, prog)
}

func (svc *Service) GetProgram(ctx context.Context, id string) (Program, error) {
	return svc.repo.GetProgramByID(ctx, id)
}

func (svc *Service) QueryPrograms(ctx context.Context, universityID string) ([]Program, error) {
	return svc.repo.QueryProgramsByUniversity(ctx, universityID)
}

func (svc *Service) DeletePrograms(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteProgramsByID(ctx, ids...)
}

// ResolveSelection reports whether the university exists and is active, and
// whether the program is one of its active programs. Used as the step-1 gate
// of the application wizard.
func (svc *Service) ResolveSelection(ctx context.Context, universityID, programID string) (bool, bool, error) {
	uni, err := svc.repo.GetUniversityByID(ctx, universityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, false, nil
		}
		return false, false, err
	}
	if !uni.IsActive {
		return false, false, nil
	}

	prog, err := svc.repo.GetProgramByID(ctx, programID)
	if err != nil {
		if errors.Is(err, ErrProgramNotFound) {
			return true, false, nil
		}
		return true, false, err
	}
	return true, prog.UniversityID == universityID && prog.IsActive, nil
}

// ProgramLabel returns display names for the pair; used in notifications.
func (svc *Service) ProgramLabel(ctx context.Context, universityID, programID string) (string, string, error) {
	uni, err := svc.repo.GetUniversityByID(ctx, universityID)
	if err != nil {
		return "", "", err
	}
	prog, err := svc.repo.GetProgramByID(ctx, programID)
	if err != nil {
		return uni.Name, "", err
	}
	return uni.Name, prog.Name, nil
}
