package echoapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniroute/uniroute/core/application"
	"github.com/uniroute/uniroute/core/user"
)

func decodeApplication(t *testing.T, rec *httptest.ResponseRecorder) application.Application {
	t.Helper()
	var app application.Application
	if err := json.Unmarshal(rec.Body.Bytes(), &app); err != nil {
		t.Fatalf("decodeApplication(): %v; body %s", err, rec.Body.String())
	}
	return app
}

func newUploadRequest(t *testing.T, path, token, tag, filename, contentType, content string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("tag", tag); err != nil {
		t.Fatalf("newUploadRequest(): %v", err)
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("newUploadRequest(): %v", err)
	}
	if _, err = part.Write([]byte(content)); err != nil {
		t.Fatalf("newUploadRequest(): %v", err)
	}
	if err = mw.Close(); err != nil {
		t.Fatalf("newUploadRequest(): %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	return req, rec
}

func Test_applicationApi_start(t *testing.T) {
	uni, prog := createTestCatalog(t)
	student := createTestUser(t, "Student", "student", "password", []string{user.RoleStudent}, "")
	token := getToken(t, student)

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/applications", validNewApplicationBody(t, uni, prog))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("created draft resumes at services step", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/applications", token, validNewApplicationBody(t, uni, prog))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		created := decodeApplication(t, rec)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, student.ID, created.StudentID, "the draft is owned by the authenticated student")
		assert.Equal(t, application.StepServices, created.CurrentStep)
		assert.Equal(t, application.StatusDraft, created.Status)
		assert.Equal(t, application.DefaultServiceSelection, created.Selection)
	})

	t.Run("first failing check wins", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"email": "not-an-email", "country": "Senegal",
			"university_id": uni.ID, "program_id": prog.ID,
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/applications", token, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"full_name": "full name is required"}),
		}, rec)
	})

	t.Run("repeated idempotency key returns the original", func(t *testing.T) {
		body := validNewApplicationBody(t, uni, prog)

		req, rec := newAuthRequest(http.MethodPost, "/v1/applications", token, body)
		req.Header.Set(idempotencyKeyHeader, "wizard-session-42")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		first := decodeApplication(t, rec)

		req, rec = newAuthRequest(http.MethodPost, "/v1/applications", token, body)
		req.Header.Set(idempotencyKeyHeader, "wizard-session-42")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		second := decodeApplication(t, rec)

		assert.Equal(t, first.ID, second.ID)
	})
}

func Test_applicationApi_wizardNavigation(t *testing.T) {
	uni, prog := createTestCatalog(t)
	student := createTestUser(t, "Student", "student", "password", []string{user.RoleStudent}, "")
	token := getToken(t, student)
	draft := startTestApplication(t, uni, prog)

	path := "/v1/applications/" + draft.ID

	t.Run("advance with services selection", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"version": draft.Version,
			"services": map[string]interface{}{
				"service_selection": "admission_accommodation_transfer",
				"additional_notes":  "ground floor please",
			},
		})
		req, rec := newAuthRequest(http.MethodPost, path+"/advance", token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got := decodeApplication(t, rec)
		assert.Equal(t, application.StepDocuments, got.CurrentStep)
		assert.Equal(t, application.AdmissionAccommodationTransfer, got.Selection)
		draft = got
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"version": draft.Version - 1})
		req, rec := newAuthRequest(http.MethodPost, path+"/back", token, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	})

	t.Run("documents gate blocks an empty advance", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"version": draft.Version})
		req, rec := newAuthRequest(http.MethodPost, path+"/advance", token, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"documents": "at least one of high school card, language proof or passport is required",
			}),
		}, rec)
	})

	t.Run("back then resume", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"version": draft.Version})
		req, rec := newAuthRequest(http.MethodPost, path+"/back", token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decodeApplication(t, rec)
		assert.Equal(t, application.StepServices, got.CurrentStep)
		draft = got
	})

	t.Run("forward jump past max step is a no-op", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"version": draft.Version, "step": application.StepPayment})
		req, rec := newAuthRequest(http.MethodPost, path+"/goto", token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decodeApplication(t, rec)
		assert.Equal(t, application.StepServices, got.CurrentStep, "jump past MaxStep must not move")
	})

	t.Run("jump within completed steps", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"version": draft.Version, "step": application.StepDocuments})
		req, rec := newAuthRequest(http.MethodPost, path+"/goto", token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decodeApplication(t, rec)
		assert.Equal(t, application.StepDocuments, got.CurrentStep)
	})

	t.Run("unknown application", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"version": 0})
		req, rec := newAuthRequest(http.MethodPost, "/v1/applications/nope/advance", token, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})
}

func Test_applicationApi_documents(t *testing.T) {
	uni, prog := createTestCatalog(t)
	student := createTestUser(t, "Student", "student", "password", []string{user.RoleStudent}, "")
	token := getToken(t, student)
	draft := startTestApplication(t, uni, prog)

	docsPath := "/v1/applications/" + draft.ID + "/documents"

	t.Run("rejects a disallowed MIME type", func(t *testing.T) {
		req, rec := newUploadRequest(t, docsPath, token, "passport", "virus.exe", "application/octet-stream", "MZ")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"file": "file type not allowed; accepted: pdf, doc, docx, jpeg, jpg, png, gif, webp",
			}),
		}, rec)
	})

	t.Run("rejects an unknown tag", func(t *testing.T) {
		req, rec := newUploadRequest(t, docsPath, token, "diploma", "diploma.pdf", "application/pdf", "%PDF-1.4")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"document_type": "invalid document type"}),
		}, rec)
	})

	t.Run("upload, download and replace", func(t *testing.T) {
		req, rec := newUploadRequest(t, docsPath, token, "passport", "passport.pdf", "application/pdf", "%PDF-1.4 original")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decodeApplication(t, rec)
		require.Contains(t, got.Documents, application.DocPassport)
		assert.Equal(t, "passport.pdf", got.Documents[application.DocPassport].Filename)

		req, rec = newAuthRequest(http.MethodGet, docsPath+"/passport", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "%PDF-1.4 original", rec.Body.String())

		// re-uploading the same tag silently replaces the entry
		req, rec = newUploadRequest(t, docsPath, token, "passport", "passport2.pdf", "application/pdf", "%PDF-1.4 replaced")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got = decodeApplication(t, rec)
		require.Len(t, got.Documents, 1)
		assert.Equal(t, "passport2.pdf", got.Documents[application.DocPassport].Filename)
	})

	t.Run("remove document", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, docsPath+"/passport", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decodeApplication(t, rec)
		assert.Empty(t, got.Documents)

		req, rec = newAuthRequest(http.MethodDelete, docsPath+"/passport", token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})
}

// runWizardToPayment drives a fresh draft to the payment step over HTTP.
func runWizardToPayment(t *testing.T, token string, draft application.Application) application.Application {
	t.Helper()
	path := "/v1/applications/" + draft.ID

	body := marchallObj(t, map[string]interface{}{"version": draft.Version})
	req, rec := newAuthRequest(http.MethodPost, path+"/advance", token, body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	draft = decodeApplication(t, rec)

	req, rec = newUploadRequest(t, path+"/documents", token, "passport", "passport.pdf", "application/pdf", "%PDF-1.4")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	draft = decodeApplication(t, rec)

	body = marchallObj(t, map[string]interface{}{"version": draft.Version})
	req, rec = newAuthRequest(http.MethodPost, path+"/advance", token, body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	draft = decodeApplication(t, rec)
	require.Equal(t, application.StepPayment, draft.CurrentStep)
	return draft
}

func Test_applicationApi_payment(t *testing.T) {
	uni, prog := createTestCatalog(t)
	student := createTestUser(t, "Student", "student", "password", []string{user.RoleStudent}, "")
	token := getToken(t, student)

	t.Run("rejected before the payment step", func(t *testing.T) {
		draft := startTestApplication(t, uni, prog)
		body := marchallObj(t, map[string]interface{}{"version": draft.Version, "method": "paypal", "paypal_email": "amina@test.cd"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/applications/"+draft.ID+"/payment", token, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("paypal requires an email", func(t *testing.T) {
		draft := runWizardToPayment(t, token, startTestApplication(t, uni, prog))
		body := marchallObj(t, map[string]interface{}{"version": draft.Version, "method": "paypal"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/applications/"+draft.ID+"/payment", token, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"paypal_email": "paypal email is required"}),
		}, rec)
	})

	t.Run("successful card payment submits the application", func(t *testing.T) {
		draft := runWizardToPayment(t, token, startTestApplication(t, uni, prog))
		body := marchallObj(t, map[string]interface{}{
			"version": draft.Version, "method": "credit_card",
			"card_token": "tok_visa", "card_holder": "Amina Diallo",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/applications/"+draft.ID+"/payment", token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got := decodeApplication(t, rec)
		assert.Equal(t, application.StatusPending, got.Status)
		require.NotNil(t, got.Payment)
		assert.Equal(t, application.BaseApplicationFee, got.Payment.Amount, "fee recomputed for the default selection")
		assert.True(t, got.SubmittedAt.Valid)

		// a submitted application is no longer editable
		body = marchallObj(t, map[string]interface{}{"version": got.Version})
		req, rec = newAuthRequest(http.MethodPost, "/v1/applications/"+got.ID+"/back", token, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})
}

func Test_applicationApi_status(t *testing.T) {
	uni, prog := createTestCatalog(t)
	student := createTestUser(t, "Student", "student", "password", []string{user.RoleStudent}, "")
	admin := createTestUser(t, "Admin", "admin", "password", []string{user.RoleAdmin}, "")
	studentToken, adminToken := getToken(t, student), getToken(t, admin)

	submitted := runWizardToPayment(t, studentToken, startTestApplication(t, uni, prog))
	body := marchallObj(t, map[string]interface{}{"version": submitted.Version, "method": "paypal", "paypal_email": "amina@test.cd"})
	req, rec := newAuthRequest(http.MethodPost, "/v1/applications/"+submitted.ID+"/payment", studentToken, body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	statusPath := "/v1/applications/" + submitted.ID + "/status"

	t.Run("staff only", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"status": "REVIEW"})
		req, rec := newAuthRequest(http.MethodPut, statusPath, studentToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("invalid transition", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"status": "APPROVED"})
		req, rec := newAuthRequest(http.MethodPut, statusPath, adminToken, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("review then approve, history tracked", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"status": "REVIEW", "note": "documents look complete"})
		req, rec := newAuthRequest(http.MethodPut, statusPath, adminToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decodeApplication(t, rec)
		assert.Equal(t, application.StatusReview, got.Status)

		body = marchallObj(t, map[string]string{"status": "APPROVED"})
		req, rec = newAuthRequest(http.MethodPut, statusPath, adminToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got = decodeApplication(t, rec)
		assert.Equal(t, application.StatusApproved, got.Status)

		last := got.StatusHistory[len(got.StatusHistory)-1]
		assert.Equal(t, application.StatusReview, last.From)
		assert.Equal(t, application.StatusApproved, last.To)
		assert.Equal(t, admin.ID, last.ChangedBy)

		if !strings.Contains(rec.Body.String(), `"status_history"`) {
			t.Errorf("status history missing from payload: %s", rec.Body.String())
		}
	})
}

func Test_applicationApi_query(t *testing.T) {
	uniA, progA := createTestCatalog(t)
	uniB, progB := createTestCatalog(t)
	student := createTestUser(t, "Student", "student", "password", []string{user.RoleStudent}, "")
	admin := createTestUser(t, "Admin", "admin", "password", []string{user.RoleAdmin}, "")
	partner := createTestUser(t, "Partner", "partner", "password", []string{user.RolePartner}, uniA.ID)

	appA := startTestApplication(t, uniA, progA)
	startTestApplication(t, uniB, progB)

	t.Run("staff only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/applications", getToken(t, student))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("admin filters by university", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/applications?university_id="+uniA.ID, getToken(t, admin))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var apps []application.Application
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apps))
		require.Len(t, apps, 1)
		assert.Equal(t, appA.ID, apps[0].ID)
	})

	t.Run("partner listing is scoped to their university", func(t *testing.T) {
		// even when asking for another university's applications
		req, rec := newAuthRequest(http.MethodGet, "/v1/applications?university_id="+uniB.ID, getToken(t, partner))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var apps []application.Application
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apps))
		require.Len(t, apps, 1)
		assert.Equal(t, uniA.ID, apps[0].UniversityID)
	})

	t.Run("bad status filter", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/applications?status=NOPE", getToken(t, admin))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})
}
