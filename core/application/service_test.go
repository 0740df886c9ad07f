package application

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/uniroute/uniroute/core"
)

func fieldErr(t *testing.T, err error) core.FieldError {
	t.Helper()
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.NotEmpty(t, vErr.Fields)
	return vErr.Fields[0]
}

func TestService_Start_validationOrder(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(na *NewApplication)
		wantField string
		wantMsg   string
	}{
		{"missing full name", func(na *NewApplication) { na.FullName = "" }, "full_name", "full name is required"},
		{"missing email", func(na *NewApplication) { na.Email = "" }, "email", "email is required"},
		{"invalid email", func(na *NewApplication) { na.Email = "not-an-email" }, "email", "enter a valid email address"},
		{"missing country", func(na *NewApplication) { na.Country = "" }, "country", "country is required"},
		{"unknown university", func(na *NewApplication) { na.UniversityID = "NOPE" }, "university_id", "university could not be resolved"},
		{"missing university", func(na *NewApplication) { na.UniversityID = "" }, "university_id", "university could not be resolved"},
		{"unknown program", func(na *NewApplication) { na.ProgramID = "NOPE" }, "program_id", "program could not be resolved"},
		{
			// first failing check wins: fullName before email
			"missing full name and email",
			func(na *NewApplication) { na.FullName = ""; na.Email = "" },
			"full_name", "full name is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			na := validNewApplication()
			tt.mutate(&na)

			_, err := env.svc.Start(context.Background(), testStudentID, na, "")
			fe := fieldErr(t, err)
			assert.Equal(t, tt.wantField, fe.Field)
			assert.Equal(t, tt.wantMsg, fe.Error)
			assert.Zero(t, env.repo.createCalls, "no create call may be issued on a failed gate")
		})
	}
}

func TestService_Start(t *testing.T) {
	env := newTestEnv()

	app, err := env.svc.Start(context.Background(), testStudentID, validNewApplication(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, env.repo.createCalls)
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, testStudentID, app.StudentID, "the draft belongs to its creator")
	assert.Equal(t, StepServices, app.CurrentStep, "a created draft resumes at step 2")
	assert.Equal(t, StatusDraft, app.Status)
	assert.Equal(t, DefaultServiceSelection, app.Selection)
	assert.Equal(t, BaseApplicationFee, app.TotalFee())
}

func TestService_Start_idempotency(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, err := env.svc.Start(ctx, testStudentID, validNewApplication(), "wizard-session-1")
	require.NoError(t, err)

	// a retried submit with the same key must not leave a duplicate behind
	second, err := env.svc.Start(ctx, testStudentID, validNewApplication(), "wizard-session-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	all, err := env.svc.QueryAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestService_Advance(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	app, err := env.svc.Start(ctx, testStudentID, validNewApplication(), "")
	require.NoError(t, err)

	// step 2: all fields optional, always passes
	app, err = env.svc.Advance(ctx, app.ID, app.Version, &SelectServices{Selection: AdmissionAccommodationTransfer})
	require.NoError(t, err)
	assert.Equal(t, StepDocuments, app.CurrentStep)
	assert.Equal(t, 130, app.TotalFee())

	// step 3 gate fails without a required-category document
	_, err = env.svc.Advance(ctx, app.ID, app.Version, nil)
	fe := fieldErr(t, err)
	assert.Equal(t, "documents", fe.Field)

	// only "other" still fails the gate
	app, err = env.svc.UploadDocument(ctx, app.ID, DocOther, "notes.pdf", "application/pdf", 1024, strings.NewReader("x"))
	require.NoError(t, err)
	_, err = env.svc.Advance(ctx, app.ID, app.Version, nil)
	assert.Error(t, err)

	app, err = env.svc.UploadDocument(ctx, app.ID, DocPassport, "passport.pdf", "application/pdf", 1024, strings.NewReader("x"))
	require.NoError(t, err)
	app, err = env.svc.Advance(ctx, app.ID, app.Version, nil)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, app.CurrentStep)

	// advancing past the payment step is not a thing
	_, err = env.svc.Advance(ctx, app.ID, app.Version, nil)
	assert.Error(t, err)
}

func TestService_Advance_keepsSelection(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	app, err := env.svc.Start(ctx, testStudentID, validNewApplication(), "")
	require.NoError(t, err)

	app, err = env.svc.Advance(ctx, app.ID, app.Version, &SelectServices{
		Selection:       AdmissionAccommodationTransfer,
		AdditionalNotes: null.StringFrom("ground floor please"),
	})
	require.NoError(t, err)
	require.Equal(t, 130, app.TotalFee())

	app, err = env.svc.Back(ctx, app.ID, app.Version)
	require.NoError(t, err)
	require.Equal(t, StepServices, app.CurrentStep)

	// re-advancing without a payload keeps the persisted selection and notes
	app, err = env.svc.Advance(ctx, app.ID, app.Version, nil)
	require.NoError(t, err)
	assert.Equal(t, AdmissionAccommodationTransfer, app.Selection)
	assert.Equal(t, 130, app.TotalFee())
	assert.Equal(t, "ground floor please", app.AdditionalNotes.String)

	// an empty selection in an otherwise present payload keeps it too
	app, err = env.svc.Back(ctx, app.ID, app.Version)
	require.NoError(t, err)
	app, err = env.svc.Advance(ctx, app.ID, app.Version, &SelectServices{})
	require.NoError(t, err)
	assert.Equal(t, AdmissionAccommodationTransfer, app.Selection)
}

func TestService_Advance_staleVersion(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	app, err := env.svc.Start(ctx, testStudentID, validNewApplication(), "")
	require.NoError(t, err)

	_, err = env.svc.Advance(ctx, app.ID, app.Version, nil)
	require.NoError(t, err)

	// second writer with the original version must fail loudly
	_, err = env.svc.Advance(ctx, app.ID, app.Version, nil)
	assert.True(t, core.IsConflict(err), "want conflict error, got %v", err)
}

func TestService_BackAndJump(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	app, err := env.svc.Start(ctx, testStudentID, validNewApplication(), "")
	require.NoError(t, err)
	app, err = env.svc.Advance(ctx, app.ID, app.Version, nil)
	require.NoError(t, err)
	require.Equal(t, StepDocuments, app.CurrentStep)

	// back is unconditional
	app, err = env.svc.Back(ctx, app.ID, app.Version)
	require.NoError(t, err)
	assert.Equal(t, StepServices, app.CurrentStep)

	// forward jump within the furthest completed step is allowed
	app, err = env.svc.JumpTo(ctx, app.ID, app.Version, StepDocuments)
	require.NoError(t, err)
	assert.Equal(t, StepDocuments, app.CurrentStep)

	// jumping past the furthest completed step is a silent no-op
	before := app
	app, err = env.svc.JumpTo(ctx, app.ID, app.Version, StepPayment)
	require.NoError(t, err)
	assert.Equal(t, before.CurrentStep, app.CurrentStep)
	assert.Equal(t, before.Version, app.Version, "a no-op must not write")

	// back at the first step stays put
	app, err = env.svc.JumpTo(ctx, app.ID, app.Version, FirstStep)
	require.NoError(t, err)
	require.Equal(t, FirstStep, app.CurrentStep)
	app, err = env.svc.Back(ctx, app.ID, app.Version)
	require.NoError(t, err)
	assert.Equal(t, FirstStep, app.CurrentStep)
}

func TestService_UploadDocument_rejections(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		size        int64
		wantOK      bool
	}{
		{"plain text rejected", "text/plain", 1024, false},
		{"over size limit", "application/pdf", MaxDocumentSize + 1<<20, false},
		{"exactly at size limit", "application/pdf", MaxDocumentSize, true},
		{"pdf ok", "application/pdf", 1024, true},
		{"webp ok", "image/webp", 1024, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			ctx := context.Background()
			app, err := env.svc.Start(ctx, testStudentID, validNewApplication(), "")
			require.NoError(t, err)

			_, err = env.svc.UploadDocument(ctx, app.ID, DocPassport, "f", tt.contentType, tt.size, strings.NewReader("x"))
			if tt.wantOK {
				require.NoError(t, err)
				assert.Equal(t, 1, env.docs.putCalls)
			} else {
				assert.Error(t, err)
				assert.Zero(t, env.docs.putCalls, "a rejected upload must not reach the store")
			}
		})
	}
}

func TestService_UploadDocument_replacesTag(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	app, err := env.svc.Start(ctx, testStudentID, validNewApplication(), "")
	require.NoError(t, err)

	app, err = env.svc.UploadDocument(ctx, app.ID, DocPassport, "old.pdf", "application/pdf", 10, strings.NewReader("x"))
	require.NoError(t, err)
	app, err = env.svc.UploadDocument(ctx, app.ID, DocPassport, "new.pdf", "application/pdf", 10, strings.NewReader("y"))
	require.NoError(t, err)

	assert.Len(t, app.Documents, 1)
	assert.Equal(t, "new.pdf", app.Documents[DocPassport].Filename)
}

func TestService_RemoveDocument(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	app, err := env.svc.Start(ctx, testStudentID, validNewApplication(), "")
	require.NoError(t, err)
	app, err = env.svc.UploadDocument(ctx, app.ID, DocPassport, "p.pdf", "application/pdf", 10, strings.NewReader("x"))
	require.NoError(t, err)

	app, err = env.svc.RemoveDocument(ctx, app.ID, DocPassport)
	require.NoError(t, err)
	assert.Empty(t, app.Documents)
	assert.Equal(t, 1, env.docs.deleteCalls, "removal must delete the stored blob too")

	_, err = env.svc.RemoveDocument(ctx, app.ID, DocPassport)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func submitReadyApp(t *testing.T, env *testEnv) Application {
	t.Helper()
	ctx := context.Background()
	app, err := env.svc.Start(ctx, testStudentID, validNewApplication(), "")
	require.NoError(t, err)
	app, err = env.svc.Advance(ctx, app.ID, app.Version, &SelectServices{Selection: AdmissionAccommodation})
	require.NoError(t, err)
	app, err = env.svc.UploadDocument(ctx, app.ID, DocPassport, "p.pdf", "application/pdf", 10, strings.NewReader("x"))
	require.NoError(t, err)
	app, err = env.svc.Advance(ctx, app.ID, app.Version, nil)
	require.NoError(t, err)
	require.Equal(t, StepPayment, app.CurrentStep)
	return app
}

func TestService_SubmitPayment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	app := submitReadyApp(t, env)

	app, err := env.svc.SubmitPayment(ctx, app.ID, app.Version, PaymentDetails{
		Method:     PaymentCreditCard,
		CardToken:  "tok_visa",
		CardHolder: "Jane Doe",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, env.gateway.chargeCalls)
	assert.Equal(t, 115, env.gateway.lastReq.Amount, "amount is recomputed from the selection")
	require.NotNil(t, app.Payment)
	assert.Equal(t, StatusPending, app.Status)
	require.Len(t, app.StatusHistory, 1)
	assert.Equal(t, StatusDraft, app.StatusHistory[0].From)
	assert.Len(t, env.mail.sent, 1)
}

func TestService_SubmitPayment_validation(t *testing.T) {
	tests := []struct {
		name      string
		details   PaymentDetails
		wantField string
	}{
		{"paypal email required", PaymentDetails{Method: PaymentPaypal}, "paypal_email"},
		{"paypal email invalid", PaymentDetails{Method: PaymentPaypal, PaypalEmail: "nope"}, "paypal_email"},
		{"card token required", PaymentDetails{Method: PaymentCreditCard, CardHolder: "J"}, "card_token"},
		{"card holder required", PaymentDetails{Method: PaymentCreditCard, CardToken: "tok"}, "card_holder"},
		{"unknown method", PaymentDetails{Method: "bitcoin"}, "method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			app := submitReadyApp(t, env)

			_, err := env.svc.SubmitPayment(context.Background(), app.ID, app.Version, tt.details)
			fe := fieldErr(t, err)
			assert.Equal(t, tt.wantField, fe.Field)
			assert.Zero(t, env.gateway.chargeCalls, "no gateway call on a failed inline validation")
		})
	}
}

func TestService_SubmitPayment_gatewayFailureKeepsDraft(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	app := submitReadyApp(t, env)
	env.gateway.failWith = assert.AnError

	_, err := env.svc.SubmitPayment(ctx, app.ID, app.Version, PaymentDetails{Method: PaymentPaypal, PaypalEmail: "jane@example.com"})
	require.Error(t, err)

	// state remains exactly as before the call; user corrects and retries
	got, err := env.svc.GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status)
	assert.Equal(t, StepPayment, got.CurrentStep)
	assert.Nil(t, got.Payment)

	env.gateway.failWith = nil
	got, err = env.svc.SubmitPayment(ctx, got.ID, got.Version, PaymentDetails{Method: PaymentPaypal, PaypalEmail: "jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestService_SubmitPayment_notAtPaymentStep(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	app, err := env.svc.Start(ctx, testStudentID, validNewApplication(), "")
	require.NoError(t, err)

	_, err = env.svc.SubmitPayment(ctx, app.ID, app.Version, PaymentDetails{Method: PaymentPaypal, PaypalEmail: "jane@example.com"})
	assert.Error(t, err)
	assert.Zero(t, env.gateway.chargeCalls)
}

func TestService_UpdateStatus(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	app := submitReadyApp(t, env)
	app, err := env.svc.SubmitPayment(ctx, app.ID, app.Version, PaymentDetails{Method: PaymentPaypal, PaypalEmail: "jane@example.com"})
	require.NoError(t, err)

	app, err = env.svc.UpdateStatus(ctx, app.ID, StatusReview, "staff-1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusReview, app.Status)

	// REVIEW → PENDING is not in the graph
	_, err = env.svc.UpdateStatus(ctx, app.ID, StatusPending, "staff-1", "")
	assert.Error(t, err)

	app, err = env.svc.UpdateStatus(ctx, app.ID, StatusApproved, "staff-1", "congrats")
	require.NoError(t, err)
	require.Len(t, app.StatusHistory, 3)
	assert.Equal(t, StatusApproved, app.StatusHistory[2].To)

	// terminal state
	_, err = env.svc.UpdateStatus(ctx, app.ID, StatusReview, "staff-1", "")
	assert.Error(t, err)
}
