package echoapi

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/uniroute/uniroute/core"
	"github.com/uniroute/uniroute/core/application"
	paymentsvc "github.com/uniroute/uniroute/services/payment"
)

func isPaymentDeclined(err error) bool {
	_, ok := errors.Cause(err).(*paymentsvc.Error)
	return ok
}

// idempotencyKeyHeader carries the client-generated key deduplicating
// application creation across wizard-session retries.
const idempotencyKeyHeader = "Idempotency-Key"

// DocumentOpener streams a stored document blob back to the client.
type DocumentOpener interface {
	Open(ctx context.Context, appID string, tag application.DocumentTag) (io.ReadCloser, error)
}

type applicationApi struct {
	svc  *application.Service
	docs DocumentOpener
}

func registerApplicationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *application.Service, docs DocumentOpener) {
	api := applicationApi{svc: svc, docs: docs}

	ag := g.Group("/applications", jwt)
	ag.POST("", api.start)
	ag.GET("", api.query, staffMiddleware())

	dg := ag.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.updateStudent)
	dg.POST("/advance", api.advance)
	dg.POST("/back", api.back)
	dg.POST("/goto", api.jumpTo)
	dg.POST("/documents", api.uploadDocument)
	dg.GET("/documents/:tag", api.downloadDocument)
	dg.DELETE("/documents/:tag", api.removeDocument)
	dg.POST("/payment", api.submitPayment)
	dg.PUT("/status", api.updateStatus, staffMiddleware())
}

// Handlers

func (api *applicationApi) start(ctx echo.Context) error {
	var data application.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	idemKey := ctx.Request().Header.Get(idempotencyKeyHeader)
	app, err := api.svc.Start(ctx.Request().Context(), claims.Subject, data, idemKey)
	if err != nil {
		return errors.Wrap(err, "starting application")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *applicationApi) query(ctx echo.Context) error {
	filter, err := bindApplicationFilter(ctx)
	if err != nil {
		return err
	}

	// partners only ever see their own university's applications
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if claims.IsPartner && !claims.IsAdmin {
		filter.UniversityID = claims.UniversityID
	}

	apps, err := api.svc.Filter(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	if apps == nil {
		apps = []application.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *applicationApi) retrieve(ctx echo.Context) error {
	app, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == application.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding application by ID")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) updateStudent(ctx echo.Context) error {
	var data UpdateStudentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudentRequest")
	}

	app, err := api.svc.UpdateStudent(ctx.Request().Context(), ctx.Param("id"), data.Version, data.NewApplication)
	if err != nil {
		if errors.Cause(err) == application.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating student data")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) advance(ctx echo.Context) error {
	var data AdvanceRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AdvanceRequest")
	}

	app, err := api.svc.Advance(ctx.Request().Context(), ctx.Param("id"), data.Version, data.Services)
	if err != nil {
		if errors.Cause(err) == application.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "advancing application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) back(ctx echo.Context) error {
	var data VersionedRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VersionedRequest")
	}

	app, err := api.svc.Back(ctx.Request().Context(), ctx.Param("id"), data.Version)
	if err != nil {
		if errors.Cause(err) == application.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "moving application back")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) jumpTo(ctx echo.Context) error {
	var data JumpToRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JumpToRequest")
	}

	app, err := api.svc.JumpTo(ctx.Request().Context(), ctx.Param("id"), data.Version, data.Step)
	if err != nil {
		if errors.Cause(err) == application.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "jumping to step")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) uploadDocument(ctx echo.Context) error {
	tag := application.DocumentTag(ctx.FormValue("tag"))

	fh, err := ctx.FormFile("file")
	if err != nil {
		return errors.Wrap(err, "reading multipart file")
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening multipart file")
	}
	defer src.Close()

	contentType := fh.Header.Get("Content-Type")
	app, err := api.svc.UploadDocument(ctx.Request().Context(), ctx.Param("id"), tag, fh.Filename, contentType, fh.Size, src)
	if err != nil {
		if errors.Cause(err) == application.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "uploading document")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) downloadDocument(ctx echo.Context) error {
	id, tag := ctx.Param("id"), application.DocumentTag(ctx.Param("tag"))

	app, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == application.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding application by ID")
	}
	doc, ok := app.Documents[tag]
	if !ok {
		return errHttpNotFound
	}

	blob, err := api.docs.Open(ctx.Request().Context(), id, tag)
	if err != nil {
		if errors.Cause(err) == application.ErrDocumentNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "opening stored document")
	}
	defer blob.Close()

	return ctx.Stream(http.StatusOK, doc.ContentType, blob)
}

func (api *applicationApi) removeDocument(ctx echo.Context) error {
	tag := application.DocumentTag(ctx.Param("tag"))

	app, err := api.svc.RemoveDocument(ctx.Request().Context(), ctx.Param("id"), tag)
	if err != nil {
		switch errors.Cause(err) {
		case application.ErrNotFound, application.ErrDocumentNotFound:
			return errHttpNotFound
		}
		return errors.Wrap(err, "removing document")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) submitPayment(ctx echo.Context) error {
	var data PaymentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PaymentRequest")
	}

	app, err := api.svc.SubmitPayment(ctx.Request().Context(), ctx.Param("id"), data.Version, data.PaymentDetails)
	if err != nil {
		if errors.Cause(err) == application.ErrNotFound {
			return errHttpNotFound
		}
		if isPaymentDeclined(err) {
			paymentsDeclined.Inc()
		}
		return errors.Wrap(err, "submitting payment")
	}

	applicationsSubmitted.Inc()
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) updateStatus(ctx echo.Context) error {
	var data StatusUpdateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusUpdateRequest")
	}
	status, err := application.ParseStatus(data.Status)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "status", Error: err.Error()})
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	app, err := api.svc.UpdateStatus(ctx.Request().Context(), ctx.Param("id"), status, claims.Subject, data.Note)
	if err != nil {
		if errors.Cause(err) == application.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating application status")
	}
	return ctx.JSON(http.StatusOK, app)
}

type (
	UpdateStudentRequest struct {
		Version int `json:"version"`
		application.NewApplication
	}

	AdvanceRequest struct {
		Version  int                         `json:"version"`
		Services *application.SelectServices `json:"services,omitempty"`
	}

	VersionedRequest struct {
		Version int `json:"version"`
	}

	JumpToRequest struct {
		Version int `json:"version"`
		Step    int `json:"step"`
	}

	PaymentRequest struct {
		Version int `json:"version"`
		application.PaymentDetails
	}

	StatusUpdateRequest struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
)
