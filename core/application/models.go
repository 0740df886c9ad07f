package application

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/uniroute/uniroute/core"
)

// Wizard steps
const (
	StepStudentData = 1
	StepServices    = 2
	StepDocuments   = 3
	StepPayment     = 4

	FirstStep = StepStudentData
	LastStep  = StepPayment
)

// Fees (whole USD)
const (
	BaseApplicationFee = 100
	PerServiceFee      = 15
)

// ServiceSelection is the closed set of add-on bundles a student can request.
type ServiceSelection string

const (
	AdmissionOnly                  ServiceSelection = "admission_only"
	AdmissionAccommodation         ServiceSelection = "admission_accommodation"
	AdmissionTransfer              ServiceSelection = "admission_transfer"
	AdmissionAccommodationTransfer ServiceSelection = "admission_accommodation_transfer"
	DefaultServiceSelection                         = AdmissionOnly
)

// AddOn is a single optional service derived from a ServiceSelection.
type AddOn string

const (
	AddOnAccommodation   AddOn = "accommodation"
	AddOnAirportTransfer AddOn = "airport_transfer"
)

var selectionAddOns = map[ServiceSelection][]AddOn{
	AdmissionOnly:                  nil,
	AdmissionAccommodation:         {AddOnAccommodation},
	AdmissionTransfer:              {AddOnAirportTransfer},
	AdmissionAccommodationTransfer: {AddOnAccommodation, AddOnAirportTransfer},
}

func (s ServiceSelection) IsValid() bool {
	_, ok := selectionAddOns[s]
	return ok
}

// AddOns returns the derived service set for the selection.
func (s ServiceSelection) AddOns() []AddOn {
	return selectionAddOns[s]
}

// AdditionalFee is derived from the selection, never stored authoritatively.
func (s ServiceSelection) AdditionalFee() int {
	return PerServiceFee * len(selectionAddOns[s])
}

// TotalFee recomputes base + additional for the selection.
func (s ServiceSelection) TotalFee() int {
	return BaseApplicationFee + s.AdditionalFee()
}

// DocumentTag is the fixed category associated with an uploaded file.
type DocumentTag string

const (
	DocHighSchoolCard DocumentTag = "high_school_card"
	DocLanguageProof  DocumentTag = "language_proof"
	DocPassport       DocumentTag = "passport"
	DocOther          DocumentTag = "other"
)

var AllDocumentTags = []DocumentTag{DocHighSchoolCard, DocLanguageProof, DocPassport, DocOther}

// requiredCategoryTags are the tags that satisfy the step-3 gate; DocOther never counts.
var requiredCategoryTags = []DocumentTag{DocHighSchoolCard, DocLanguageProof, DocPassport}

func (t DocumentTag) IsValid() bool {
	for _, tag := range AllDocumentTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Document is a stored upload bound to a document-type tag.
type Document struct {
	ID          string      `json:"id"`
	Tag         DocumentTag `json:"tag"`
	Filename    string      `json:"filename"`
	ContentType string      `json:"content_type"`
	Size        int64       `json:"size"`
	URL         string      `json:"url"`
	UploadedAt  time.Time   `json:"uploaded_at"` // UTC
}

// PaymentMethod tags the payment variant.
type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentPaypal     PaymentMethod = "paypal"
)

func (m PaymentMethod) IsValid() bool {
	return m == PaymentCreditCard || m == PaymentPaypal
}

// Payment records a completed gateway charge.
type Payment struct {
	Method    PaymentMethod `json:"method"`
	Amount    int           `json:"amount"`
	Reference string        `json:"reference"` // gateway charge reference
	PaidAt    time.Time     `json:"paid_at"`   // UTC
}

// StudentData is the step-1 form content. Required: FullName, Email, Country.
type StudentData struct {
	FullName              string      `json:"full_name"`
	Email                 string      `json:"email"`
	Phone                 null.String `json:"phone,omitempty"`
	PersonalAddress       null.String `json:"personal_address,omitempty"`
	DateOfBirth           null.Time   `json:"date_of_birth,omitempty"`
	AcademicQualification null.String `json:"academic_qualification,omitempty"`
	IdentityNumber        null.String `json:"identity_number,omitempty"`
	Country               string      `json:"country"`
}

// Application is a draft progressively materialized through the wizard, then
// submitted for review once payment completes.
type Application struct {
	ID           string `json:"id"`
	StudentID    string `json:"student_id,omitempty"`
	UniversityID string `json:"university_id"`
	ProgramID    string `json:"program_id"`

	Student StudentData `json:"student"`

	Selection       ServiceSelection         `json:"service_selection"`
	AdditionalNotes null.String              `json:"additional_notes,omitempty"`
	Documents       map[DocumentTag]Document `json:"documents"`
	Payment         *Payment                 `json:"payment,omitempty"`

	// CurrentStep is where the wizard resumes; MaxStep is the furthest step
	// ever completed and bounds forward jumps.
	CurrentStep int `json:"current_step"`
	MaxStep     int `json:"max_step"`

	Status        Status         `json:"status"`
	StatusHistory []StatusChange `json:"status_history"`

	// Version increments on every write; stale writers get a conflict.
	Version int `json:"version"`

	SubmittedAt null.Time `json:"submitted_at,omitempty"` // UTC
	CreatedAt   time.Time `json:"created_at"`             // UTC
	UpdatedAt   time.Time `json:"updated_at"`             // UTC
}

// AdditionalFee is derived from the current selection.
func (a *Application) AdditionalFee() int { return a.Selection.AdditionalFee() }

// TotalFee = base application fee + additional fee, always recomputed.
func (a *Application) TotalFee() int { return a.Selection.TotalFee() }

// HasRequiredDocument reports whether at least one required-category document
// is present; "other" never satisfies the rule.
func (a *Application) HasRequiredDocument() bool {
	for _, tag := range requiredCategoryTags {
		if _, ok := a.Documents[tag]; ok {
			return true
		}
	}
	return false
}

func (a *Application) IsSubmitted() bool { return a.Status != StatusDraft }

// NewApplication contains the step-1 payload needed to create a draft.
type NewApplication struct {
	FullName              string      `json:"full_name" validate:"required"`
	Email                 string      `json:"email" validate:"required,email"`
	Phone                 null.String `json:"phone"`
	PersonalAddress       null.String `json:"personal_address"`
	DateOfBirth           null.Time   `json:"date_of_birth"`
	AcademicQualification null.String `json:"academic_qualification"`
	IdentityNumber        null.String `json:"identity_number"`
	Country               string      `json:"country" validate:"required"`
	UniversityID          string      `json:"university_id" validate:"required"`
	ProgramID             string      `json:"program_id" validate:"required"`
}

func (na *NewApplication) Clean() {
	na.FullName = core.CleanString(na.FullName)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Country = core.CleanString(na.Country)
	na.UniversityID = core.CleanString(na.UniversityID)
	na.ProgramID = core.CleanString(na.ProgramID)
}

func (na NewApplication) studentData() StudentData {
	return StudentData{
		FullName:              na.FullName,
		Email:                 na.Email,
		Phone:                 na.Phone,
		PersonalAddress:       na.PersonalAddress,
		DateOfBirth:           na.DateOfBirth,
		AcademicQualification: na.AcademicQualification,
		IdentityNumber:        na.IdentityNumber,
		Country:               na.Country,
	}
}

// SelectServices is the step-2 payload. The selection always has a valid
// default, so validation cannot fail.
type SelectServices struct {
	Selection       ServiceSelection `json:"service_selection"`
	AdditionalNotes null.String      `json:"additional_notes"`
}

// PaymentDetails is the tagged step-4 payload. Card data never carries a raw
// PAN/CVV; the gateway tokenizes up-front and only the token reaches us.
type PaymentDetails struct {
	Method      PaymentMethod `json:"method"`
	CardToken   string        `json:"card_token,omitempty"`
	CardHolder  string        `json:"card_holder,omitempty"`
	PaypalEmail string        `json:"paypal_email,omitempty"`
}

// QueryFilter narrows application listings; fields AND together.
type QueryFilter struct {
	UniversityID  string    `query:"university_id"`
	ProgramID     string    `query:"program_id"`
	Status        Status    `query:"status"`
	Search        string    `query:"search"` // matches full name or email
	CreatedFrom   time.Time `query:"created_from"`
	CreatedTo     time.Time `query:"created_to"`
	SubmittedOnly bool      `query:"submitted_only"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.UniversityID == "" && qf.ProgramID == "" && qf.Status == "" &&
		qf.Search == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero() && !qf.SubmittedOnly
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.UniversityID = core.CleanString(qf.UniversityID)
	qf.ProgramID = core.CleanString(qf.ProgramID)
}
