package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/uniroute/uniroute/core/application"
	"github.com/uniroute/uniroute/core/university"
	"github.com/uniroute/uniroute/core/user"
)

// query-param bindings; date params are RFC3339

func bindTimeParam(ctx echo.Context, name string) (time.Time, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC3339")
	}
	return t, nil
}

func bindBoolPtrParam(ctx echo.Context, name string) *bool {
	switch ctx.QueryParam(name) {
	case "true", "1":
		val := true
		return &val
	case "false", "0":
		val := false
		return &val
	}
	return nil
}

func bindApplicationFilter(ctx echo.Context) (application.QueryFilter, error) {
	filter := application.QueryFilter{
		UniversityID:  ctx.QueryParam("university_id"),
		ProgramID:     ctx.QueryParam("program_id"),
		Search:        ctx.QueryParam("search"),
		SubmittedOnly: ctx.QueryParam("submitted_only") == "true",
	}
	if raw := ctx.QueryParam("status"); raw != "" {
		status, err := application.ParseStatus(raw)
		if err != nil {
			return filter, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filter.Status = status
	}

	var err error
	if filter.CreatedFrom, err = bindTimeParam(ctx, "created_from"); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = bindTimeParam(ctx, "created_to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func bindUniversityFilter(ctx echo.Context) university.QueryFilter {
	return university.QueryFilter{
		Search:   ctx.QueryParam("search"),
		Country:  ctx.QueryParam("country"),
		IsActive: bindBoolPtrParam(ctx, "is_active"),
	}
}

func bindUserFilter(ctx echo.Context) (user.QueryFilter, error) {
	filter := user.QueryFilter{
		Search:   ctx.QueryParam("search"),
		IsActive: bindBoolPtrParam(ctx, "is_active"),
	}
	if roles, ok := ctx.QueryParams()["role"]; ok {
		filter.Roles = roles
	}

	var err error
	if filter.CreatedFrom, err = bindTimeParam(ctx, "created_from"); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = bindTimeParam(ctx, "created_to"); err != nil {
		return filter, err
	}
	return filter, nil
}
