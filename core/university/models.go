package university

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/uniroute/uniroute/core"
)

type University struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Country   string      `json:"country"`
	City      string      `json:"city"`
	Website   null.String `json:"website,omitempty"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"` // UTC
	UpdatedAt time.Time   `json:"updated_at"` // UTC
}

type Program struct {
	ID            string    `json:"id"`
	UniversityID  string    `json:"university_id"`
	Name          string    `json:"name"`
	Degree        string    `json:"degree"` // bachelor | master | phd
	TuitionFee    int       `json:"tuition_fee"`
	DurationYears int       `json:"duration_years"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

// NewUniversity contains information needed to register a University.
type NewUniversity struct {
	Name    string      `json:"name" validate:"required"`
	Country string      `json:"country" validate:"required"`
	City    string      `json:"city" validate:"required"`
	Website null.String `json:"website"`
}

func (nu *NewUniversity) Validate() error {
	nu.Name = core.CleanString(nu.Name)
	nu.Country = core.CleanString(nu.Country)
	nu.City = core.CleanString(nu.City)
	return core.Validate.Struct(nu)
}

// UpdateUniversity defines what may be modified; empty fields keep their value.
type UpdateUniversity struct {
	Name     string      `json:"name"`
	Country  string      `json:"country"`
	City     string      `json:"city"`
	Website  null.String `json:"website"`
	IsActive *bool       `json:"is_active"`
}

func (uu *UpdateUniversity) Validate(orig University) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = orig.Name
	}
	if country := core.CleanString(uu.Country); country != "" {
		uu.Country = country
	} else {
		uu.Country = orig.Country
	}
	if city := core.CleanString(uu.City); city != "" {
		uu.City = city
	} else {
		uu.City = orig.City
	}
	return core.Validate.Struct(uu)
}

type NewProgram struct {
	Name          string `json:"name" validate:"required"`
	Degree        string `json:"degree" validate:"required,oneof=bachelor master phd"`
	TuitionFee    int    `json:"tuition_fee" validate:"gte=0"`
	DurationYears int    `json:"duration_years" validate:"gte=1,lte=8"`
}

func (np *NewProgram) Validate() error {
	np.Name = core.CleanString(np.Name)
	np.Degree = core.CleanString(np.Degree, true /* lower */)
	return core.Validate.Struct(np)
}

type QueryFilter struct {
	Search   string `query:"search"` // case-insensitive match on name, country or city
	Country  string `query:"country"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Country == "" && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Country = core.CleanString(qf.Country)
}
