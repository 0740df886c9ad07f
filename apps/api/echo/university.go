package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/uniroute/uniroute/core/university"
)

type universityApi struct {
	svc *university.Service
}

func registerUniversityAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *university.Service) {
	api := universityApi{svc: svc}

	ug := g.Group("/universities")

	// catalog browsing is public: the wizard's step 1 runs before login
	ug.GET("", api.query)
	ug.GET("/:id", api.retrieve)
	ug.GET("/:id/programs", api.queryPrograms)

	// admin-only catalog management
	mg := ug.Group("", jwt, adminMiddleware())
	mg.POST("", api.create)
	mg.PUT("/:id", api.update)
	mg.DELETE("/:id", api.destroy)
	mg.POST("/:id/programs", api.addProgram)
	mg.DELETE("/:id/programs/:pid", api.destroyProgram)
}

// Handlers

func (api *universityApi) query(ctx echo.Context) error {
	filter := bindUniversityFilter(ctx)

	unis, err := api.svc.Filter(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying universities")
	}
	if unis == nil {
		unis = []university.University{}
	}
	return ctx.JSON(http.StatusOK, unis)
}

func (api *universityApi) retrieve(ctx echo.Context) error {
	uni, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == university.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding university by ID")
	}
	return ctx.JSON(http.StatusOK, uni)
}

func (api *universityApi) queryPrograms(ctx echo.Context) error {
	id := ctx.Param("id")
	if _, err := api.svc.GetByID(ctx.Request().Context(), id); err != nil {
		if errors.Cause(err) == university.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding university by ID")
	}

	progs, err := api.svc.QueryPrograms(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying programs")
	}
	if progs == nil {
		progs = []university.Program{}
	}
	return ctx.JSON(http.StatusOK, progs)
}

func (api *universityApi) create(ctx echo.Context) error {
	var data university.NewUniversity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUniversity")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	uni, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating university")
	}
	return ctx.JSON(http.StatusCreated, uni)
}

func (api *universityApi) update(ctx echo.Context) error {
	var data university.UpdateUniversity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUniversity")
	}

	orig, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == university.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding university by ID")
	}
	if err := data.Validate(orig); err != nil {
		return err
	}

	uni, err := api.svc.Update(ctx.Request().Context(), orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating university")
	}
	return ctx.JSON(http.StatusOK, uni)
}

func (api *universityApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting university")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *universityApi) addProgram(ctx echo.Context) error {
	var data university.NewProgram
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProgram")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	prog, err := api.svc.AddProgram(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		if errors.Cause(err) == university.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "adding program")
	}
	return ctx.JSON(http.StatusCreated, prog)
}

func (api *universityApi) destroyProgram(ctx echo.Context) error {
	if err := api.svc.DeletePrograms(ctx.Request().Context(), ctx.Param("pid")); err != nil {
		return errors.Wrap(err, "deleting program")
	}
	return ctx.NoContent(http.StatusNoContent)
}
