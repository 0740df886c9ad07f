package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/uniroute/uniroute/core/application"
)

type statsApi struct {
	svc *application.Service
}

func registerStatsAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *application.Service) {
	api := statsApi{svc: svc}

	sg := g.Group("/stats", jwt, adminMiddleware())
	sg.GET("/applications", api.applicationStats)
	sg.GET("/revenue/monthly", api.revenueStats)

	// same aggregates, scoped to the partner's own university
	pg := g.Group("/partner", jwt, partnerMiddleware())
	pg.GET("/stats", api.partnerStats)
}

// Handlers

func (api *statsApi) applicationStats(ctx echo.Context) error {
	filter, err := bindApplicationFilter(ctx)
	if err != nil {
		return err
	}

	stats, err := api.svc.StatusStats(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "computing application stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *statsApi) revenueStats(ctx echo.Context) error {
	filter, err := bindApplicationFilter(ctx)
	if err != nil {
		return err
	}

	stats, err := api.svc.RevenueStats(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "computing revenue stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *statsApi) partnerStats(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := application.QueryFilter{UniversityID: claims.UniversityID}
	status, err := api.svc.StatusStats(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "computing application stats")
	}
	revenue, err := api.svc.RevenueStats(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "computing revenue stats")
	}

	return ctx.JSON(http.StatusOK, PartnerStatsResponse{
		UniversityID: claims.UniversityID,
		Applications: status,
		Revenue:      revenue,
	})
}

type PartnerStatsResponse struct {
	UniversityID string                   `json:"university_id"`
	Applications application.StatusStats  `json:"applications"`
	Revenue      application.RevenueStats `json:"revenue"`
}
