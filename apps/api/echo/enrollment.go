package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nextcentury/backend/core/enrollment"
	"github.com/nextcentury/backend/core/user"
)

type enrollmentApi struct {
	svc      enrollment.Service
	validate *validator.Validate
}

func registerEnrollmentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc enrollment.Service,
	validate *validator.Validate,
) {
	api := enrollmentApi{svc: svc, validate: validate}

	ag := g.Group("/applications")

	// un-authed endpoints
	ag.POST("/apply", api.apply)
	g.POST("/auth/signup", api.signup)

	// admin endpoints
	mg := ag.Group("", jwt, adminMiddleware())
	mg.GET("", api.query)
	mg.POST("/:id/approve", api.approve)
	mg.POST("/:id/reject", api.reject)
}

// Handlers

func (api *enrollmentApi) apply(ctx echo.Context) error {
	var data enrollment.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	app, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting application")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *enrollmentApi) query(ctx echo.Context) error {
	apps, err := api.svc.Query(ctx.Request().Context(), ctx.QueryParam("status"))
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	if apps == nil {
		apps = []enrollment.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *enrollmentApi) approve(ctx echo.Context) error {
	app, link, err := api.svc.Approve(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		switch errors.Cause(err) {
		case enrollment.ErrNotFound:
			return errHttpNotFound
		case enrollment.ErrAlreadyProcessed:
			return echo.NewHTTPError(http.StatusConflict, enrollment.ErrAlreadyProcessed.Error())
		}
		return errors.Wrap(err, "approving application")
	}
	return ctx.JSON(http.StatusOK, ApprovalResponse{Application: app, SignupLink: link})
}

func (api *enrollmentApi) reject(ctx echo.Context) error {
	app, err := api.svc.Reject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		switch errors.Cause(err) {
		case enrollment.ErrNotFound:
			return errHttpNotFound
		case enrollment.ErrAlreadyProcessed:
			return echo.NewHTTPError(http.StatusConflict, enrollment.ErrAlreadyProcessed.Error())
		}
		return errors.Wrap(err, "rejecting application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *enrollmentApi) signup(ctx echo.Context) error {
	var data enrollment.Signup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Signup")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	parent, child, err := api.svc.Redeem(ctx.Request().Context(), data.Token, data.Password)
	if err != nil {
		switch errors.Cause(err) {
		case enrollment.ErrInvalidToken:
			return echo.NewHTTPError(http.StatusBadRequest, enrollment.ErrInvalidToken.Error())
		case enrollment.ErrNotFound:
			return errHttpNotFound
		case enrollment.ErrTokenExpired:
			return echo.NewHTTPError(http.StatusBadRequest, enrollment.ErrTokenExpired.Error())
		case enrollment.ErrAccountExists:
			return echo.NewHTTPError(http.StatusConflict, enrollment.ErrAccountExists.Error())
		}
		return errors.Wrap(err, "redeeming signup token")
	}
	return ctx.JSON(http.StatusCreated, SignupResponse{Parent: parent, Child: child})
}

type (
	ApprovalResponse struct {
		Application enrollment.Application `json:"application"`
		SignupLink  string                 `json:"signup_link"`
	}

	SignupResponse struct {
		Parent user.User `json:"parent"`
		Child  user.User `json:"child"`
	}
)
