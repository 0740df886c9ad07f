package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uniroute/uniroute/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound          = errors.New("application not found")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrVersionConflict   = errors.New("application was modified by another request")
	ErrNotDraft          = errors.New("application has already been submitted")
	ErrNotAtPaymentStep  = errors.New("payment is only possible at the payment step")
	ErrInvalidTransition = errors.New("invalid status transition")

	errAdvancePastPayment = errors.New("complete payment to submit the application")
)

// idempotencyKeyTTL bounds how long a wizard session's create key dedupes.
const idempotencyKeyTTL = 24 * time.Hour

type (
	Repository interface {
		CreateApplication(ctx context.Context, app Application) (Application, error)
		GetApplicationByID(ctx context.Context, id string) (Application, error)
		QueryAllApplications(ctx context.Context) ([]Application, error)
		// FilterApplications applies AND operation on available QueryFilter fields.
		FilterApplications(ctx context.Context, filter QueryFilter) ([]Application, error)
		// UpdateApplication persists app only if the stored Version equals
		// app.Version, then increments it; otherwise it returns a
		// *core.ConflictError wrapping ErrVersionConflict.
		UpdateApplication(ctx context.Context, app Application) (Application, error)
		DeleteApplicationsByID(ctx context.Context, ids ...string) error
	}

	// Catalog resolves the university/program pair chosen during step 1.
	Catalog interface {
		// ResolveSelection reports whether universityID exists and whether
		// programID is an active program of that university.
		ResolveSelection(ctx context.Context, universityID, programID string) (universityOK, programOK bool, err error)
		// ProgramLabel returns display names for notification emails.
		ProgramLabel(ctx context.Context, universityID, programID string) (universityName, programName string, err error)
	}

	// DocumentStore holds uploaded blobs keyed by (application, tag).
	DocumentStore interface {
		Put(ctx context.Context, appID string, tag DocumentTag, filename, contentType string, size int64, r io.Reader) (StoredDocument, error)
		Delete(ctx context.Context, appID string, tag DocumentTag) error
	}

	StoredDocument struct {
		ID  string
		URL string
	}

	// PaymentGateway charges an already-tokenized payment.
	PaymentGateway interface {
		Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	}

	ChargeRequest struct {
		ApplicationID string
		Method        PaymentMethod
		Amount        int // whole USD
		CardToken     string
		CardHolder    string
		PaypalEmail   string
	}

	ChargeResult struct {
		Reference string
	}

	// IdempotencyStore dedupes application creation per wizard session.
	IdempotencyStore interface {
		// PutIfAbsent stores key → applicationID unless the key is already
		// claimed; it returns the winning applicationID and whether ours won.
		PutIfAbsent(ctx context.Context, key, applicationID string, ttl time.Duration) (winnerID string, stored bool, err error)
	}

	Service struct {
		repo    Repository
		catalog Catalog
		docs    DocumentStore
		gateway PaymentGateway
		idem    IdempotencyStore
		mailSvc core.EmailService
	}
)

func NewService(
	repo Repository,
	catalog Catalog,
	docs DocumentStore,
	gateway PaymentGateway,
	idem IdempotencyStore,
	mailSvc core.EmailService,
) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		docs:    docs,
		gateway: gateway,
		idem:    idem,
		mailSvc: mailSvc,
	}
}

// Start validates the step-1 payload and creates the draft owned by
// studentID. A repeated idempotency key returns the originally created
// application instead of a duplicate. The created draft resumes at the
// services step.
func (svc *Service) Start(ctx context.Context, studentID string, na NewApplication, idemKey string) (Application, error) {
	na.Clean()
	sd := na.studentData()

	var uniOK, progOK bool
	if na.UniversityID != "" {
		var err error
		uniOK, progOK, err = svc.catalog.ResolveSelection(ctx, na.UniversityID, na.ProgramID)
		if err != nil {
			return Application{}, pkgerrors.Wrap(err, "resolving university/program")
		}
	}
	if err := validateStudentStep(sd, uniOK, progOK); err != nil {
		return Application{}, err
	}

	now := NowFunc().UTC()
	app := Application{
		ID:           uuid.NewString(),
		StudentID:    studentID,
		UniversityID: na.UniversityID,
		ProgramID:    na.ProgramID,
		Student:      sd,
		Selection:    DefaultServiceSelection,
		Documents:    make(map[DocumentTag]Document),
		CurrentStep:  StepServices,
		MaxStep:      StepServices,
		Status:       StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	app, err := svc.repo.CreateApplication(ctx, app)
	if err != nil {
		return Application{}, err
	}

	if idemKey != "" {
		winnerID, stored, err := svc.idem.PutIfAbsent(ctx, idemKey, app.ID, idempotencyKeyTTL)
		if err != nil {
			return Application{}, pkgerrors.Wrap(err, "claiming idempotency key")
		}
		if !stored {
			// lost the race (or a retry): drop ours, hand back the original
			if delErr := svc.repo.DeleteApplicationsByID(ctx, app.ID); delErr != nil {
				return Application{}, pkgerrors.Wrap(delErr, "removing duplicate application")
			}
			return svc.repo.GetApplicationByID(ctx, winnerID)
		}
	}
	return app, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Application, error) {
	return svc.repo.GetApplicationByID(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Application, error) {
	return svc.repo.QueryAllApplications(ctx)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]Application, error) {
	filter.Clean()
	return svc.repo.FilterApplications(ctx, filter)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteApplicationsByID(ctx, ids...)
}

// getDraft loads the application and runs the shared draft/version guards.
// version < 0 skips the optimistic-concurrency check.
func (svc *Service) getDraft(ctx context.Context, id string, version int) (Application, error) {
	app, err := svc.repo.GetApplicationByID(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if app.IsSubmitted() {
		return Application{}, core.NewValidationError(ErrNotDraft)
	}
	if version >= 0 && app.Version != version {
		return Application{}, core.NewConflictError(ErrVersionConflict)
	}
	return app, nil
}

// UpdateStudent edits step-1 data of an existing draft; the same gate as
// creation applies, minus the catalog lookup when the pair is unchanged.
func (svc *Service) UpdateStudent(ctx context.Context, id string, version int, na NewApplication) (Application, error) {
	app, err := svc.getDraft(ctx, id, version)
	if err != nil {
		return Application{}, err
	}

	na.Clean()
	sd := na.studentData()
	uniOK, progOK := na.UniversityID == app.UniversityID, na.ProgramID == app.ProgramID && na.UniversityID == app.UniversityID
	if !(uniOK && progOK) && na.UniversityID != "" {
		uniOK, progOK, err = svc.catalog.ResolveSelection(ctx, na.UniversityID, na.ProgramID)
		if err != nil {
			return Application{}, pkgerrors.Wrap(err, "resolving university/program")
		}
	}
	if err := validateStudentStep(sd, uniOK, progOK); err != nil {
		return Application{}, err
	}

	app.Student = sd
	app.UniversityID = na.UniversityID
	app.ProgramID = na.ProgramID
	app.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateApplication(ctx, app)
}

// Advance runs the current step's gate and moves the draft forward one step.
// sel is only consulted at the services step. A failed gate or persistence
// error leaves the draft exactly as it was.
func (svc *Service) Advance(ctx context.Context, id string, version int, sel *SelectServices) (Application, error) {
	app, err := svc.getDraft(ctx, id, version)
	if err != nil {
		return Application{}, err
	}

	switch app.CurrentStep {
	case StepStudentData:
		// data was validated at creation; a revisit just moves forward
	case StepServices:
		// a missing payload keeps what the draft already holds; re-advancing
		// after a back-navigation must not reset the selection
		selection, notes := app.Selection, app.AdditionalNotes
		if sel != nil {
			if sel.Selection != "" {
				selection = sel.Selection
			}
			notes = sel.AdditionalNotes
		}
		if !selection.IsValid() {
			return Application{}, core.NewValidationError(
				errors.New(serviceSelectionText),
				core.FieldError{Field: "service_selection", Error: serviceSelectionText},
			)
		}
		if err := validateServicesStep(selection); err != nil {
			return Application{}, err
		}
		app.Selection = selection
		app.AdditionalNotes = notes
	case StepDocuments:
		// documents were persisted on upload; only the gate runs here
		if err := validateDocumentsStep(&app); err != nil {
			return Application{}, err
		}
	case StepPayment:
		return Application{}, core.NewValidationError(errAdvancePastPayment)
	}

	app.CurrentStep++
	if app.CurrentStep > app.MaxStep {
		app.MaxStep = app.CurrentStep
	}
	app.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateApplication(ctx, app)
}

// Back unconditionally regresses one step; no gate, no-op at the first step.
func (svc *Service) Back(ctx context.Context, id string, version int) (Application, error) {
	app, err := svc.getDraft(ctx, id, version)
	if err != nil {
		return Application{}, err
	}
	if app.CurrentStep <= FirstStep {
		return app, nil
	}
	app.CurrentStep--
	app.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateApplication(ctx, app)
}

// JumpTo moves to step n when n is at most the furthest completed step;
// forward jumps past it are silent no-ops.
func (svc *Service) JumpTo(ctx context.Context, id string, version, n int) (Application, error) {
	app, err := svc.getDraft(ctx, id, version)
	if err != nil {
		return Application{}, err
	}
	if n < FirstStep || n > app.MaxStep || n == app.CurrentStep {
		return app, nil
	}
	app.CurrentStep = n
	app.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateApplication(ctx, app)
}

// UploadDocument validates type and size before anything is stored, then
// stores the blob and records it on the draft. Re-uploading a tag silently
// replaces the prior entry.
func (svc *Service) UploadDocument(
	ctx context.Context,
	id string,
	tag DocumentTag,
	filename, contentType string,
	size int64,
	r io.Reader,
) (Application, error) {
	app, err := svc.getDraft(ctx, id, -1)
	if err != nil {
		return Application{}, err
	}
	if err := validateUpload(tag, contentType, size); err != nil {
		return Application{}, err
	}

	stored, err := svc.docs.Put(ctx, app.ID, tag, filename, contentType, size, r)
	if err != nil {
		return Application{}, pkgerrors.Wrap(err, "storing document")
	}

	if app.Documents == nil {
		app.Documents = make(map[DocumentTag]Document)
	}
	app.Documents[tag] = Document{
		ID:          stored.ID,
		Tag:         tag,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		URL:         stored.URL,
		UploadedAt:  NowFunc().UTC(),
	}
	app.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateApplication(ctx, app)
}

// RemoveDocument clears the draft entry and deletes the stored blob so no
// orphan is left behind.
func (svc *Service) RemoveDocument(ctx context.Context, id string, tag DocumentTag) (Application, error) {
	app, err := svc.getDraft(ctx, id, -1)
	if err != nil {
		return Application{}, err
	}
	if _, ok := app.Documents[tag]; !ok {
		return Application{}, ErrDocumentNotFound
	}

	if err := svc.docs.Delete(ctx, app.ID, tag); err != nil {
		return Application{}, pkgerrors.Wrap(err, "deleting stored document")
	}
	delete(app.Documents, tag)
	app.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateApplication(ctx, app)
}

// SubmitPayment finalizes the wizard: inline field validation first, then one
// gateway charge for the recomputed total fee. On success the draft becomes
// PENDING; on failure nothing changes and the caller may retry.
func (svc *Service) SubmitPayment(ctx context.Context, id string, version int, pd PaymentDetails) (Application, error) {
	app, err := svc.getDraft(ctx, id, version)
	if err != nil {
		return Application{}, err
	}
	if app.CurrentStep != StepPayment {
		return Application{}, core.NewValidationError(ErrNotAtPaymentStep)
	}
	if err := validatePaymentDetails(pd); err != nil {
		return Application{}, err
	}

	amount := app.TotalFee()
	res, err := svc.gateway.Charge(ctx, ChargeRequest{
		ApplicationID: app.ID,
		Method:        pd.Method,
		Amount:        amount,
		CardToken:     pd.CardToken,
		CardHolder:    pd.CardHolder,
		PaypalEmail:   pd.PaypalEmail,
	})
	if err != nil {
		return Application{}, err
	}

	now := NowFunc().UTC()
	app.Payment = &Payment{
		Method:    pd.Method,
		Amount:    amount,
		Reference: res.Reference,
		PaidAt:    now,
	}
	app.SubmittedAt = null.TimeFrom(now)
	app.setStatus(StatusPending, "", "payment received", now)
	app.UpdatedAt = now

	app, err = svc.repo.UpdateApplication(ctx, app)
	if err != nil {
		return Application{}, err
	}

	svc.sendSubmittedEmail(ctx, app)
	return app, nil
}

// UpdateStatus applies a staff status transition with history tracking.
func (svc *Service) UpdateStatus(ctx context.Context, id string, to Status, changedBy, note string) (Application, error) {
	app, err := svc.repo.GetApplicationByID(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if !CanTransition(app.Status, to) {
		return Application{}, core.NewValidationError(
			fmt.Errorf("%w: %s → %s", ErrInvalidTransition, app.Status, to),
			core.FieldError{Field: "status", Error: fmt.Sprintf("cannot move from %s to %s", app.Status, to)},
		)
	}

	now := NowFunc().UTC()
	app.setStatus(to, changedBy, note, now)
	app.UpdatedAt = now
	app, err = svc.repo.UpdateApplication(ctx, app)
	if err != nil {
		return Application{}, err
	}

	svc.sendStatusEmail(ctx, app)
	return app, nil
}

func (svc *Service) sendSubmittedEmail(ctx context.Context, app Application) {
	uniName, progName, err := svc.catalog.ProgramLabel(ctx, app.UniversityID, app.ProgramID)
	if err != nil {
		uniName, progName = app.UniversityID, app.ProgramID
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: app.Student.FullName, Address: app.Student.Email}},
		Subject:      "Application received",
		TemplateName: "application_submitted",
		TemplateData: struct {
			FullName, ApplicationID, UniversityName, ProgramName string
			TotalFee                                             int
		}{app.Student.FullName, app.ID, uniName, progName, app.TotalFee()},
	})
}

func (svc *Service) sendStatusEmail(ctx context.Context, app Application) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: app.Student.FullName, Address: app.Student.Email}},
		Subject:      "Application status update",
		TemplateName: "application_status_changed",
		TemplateData: struct {
			FullName, ApplicationID string
			Status                  Status
		}{app.Student.FullName, app.ID, app.Status},
	})
}
