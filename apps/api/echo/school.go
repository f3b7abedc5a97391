package echoapi

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nextcentury/backend/core"
	"github.com/nextcentury/backend/core/school"
	"github.com/nextcentury/backend/core/user"
)

type schoolApi struct {
	svc      school.Service
	usrSvc   user.Service
	conf     *core.Config
	validate *validator.Validate
}

func registerSchoolAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc school.Service,
	usrSvc user.Service,
	conf *core.Config,
	validate *validator.Validate,
) {
	api := schoolApi{svc: svc, usrSvc: usrSvc, conf: conf, validate: validate}

	// un-authed reads
	g.GET("/grades", api.queryGrades)
	g.GET("/subjects", api.querySubjects)
	g.GET("/subjects/grade/:id", api.querySubjectsByGrade)
	g.GET("/lessons", api.queryLessons)
	g.GET("/lessons/:id", api.retrieveLesson)
	g.GET("/lessons/subject/:id", api.queryLessonsBySubject)
	g.GET("/lessons/grade/:id", api.queryLessonsByGrade)
	g.GET("/assignments/grade/:id", api.queryAssignmentsByGrade)
	g.GET("/assignments/:id", api.retrieveAssignment)
	g.GET("/resources", api.queryResources)
	g.GET("/resources/:id/download", api.downloadResource)

	// admin endpoints
	lg := g.Group("/lessons", jwt, adminMiddleware())
	lg.POST("/grade/:id", api.createLesson)
	lg.PUT("/:id", api.updateLesson)
	lg.DELETE("/:id", api.destroyLesson)

	ag := g.Group("/assignments", jwt, adminMiddleware())
	ag.POST("", api.createAssignment)
	ag.DELETE("/:id", api.destroyAssignment)

	rg := g.Group("/resources", jwt, adminMiddleware())
	rg.POST("", api.uploadResource)
	rg.DELETE("/:id", api.destroyResource)

	g.GET("/admin/stats", api.stats, jwt, adminMiddleware())
}

// trapSchoolErr maps the school sentinels to 404s.
func trapSchoolErr(err error, msg string) error {
	switch errors.Cause(err) {
	case school.ErrGradeNotFound, school.ErrSubjectNotFound, school.ErrLessonNotFound,
		school.ErrAssignmentNotFound, school.ErrResourceNotFound:
		return errHttpNotFound
	}
	return errors.Wrap(err, msg)
}

// Handlers

func (api *schoolApi) queryGrades(ctx echo.Context) error {
	grades, err := api.svc.Grades(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying grades")
	}
	if grades == nil {
		grades = []school.Grade{}
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *schoolApi) querySubjects(ctx echo.Context) error {
	return api.subjects(ctx, "")
}

func (api *schoolApi) querySubjectsByGrade(ctx echo.Context) error {
	return api.subjects(ctx, ctx.Param("id"))
}

func (api *schoolApi) subjects(ctx echo.Context, gradeID string) error {
	subjects, err := api.svc.Subjects(ctx.Request().Context(), gradeID)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []school.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *schoolApi) queryLessons(ctx echo.Context) error {
	return api.lessons(ctx, school.LessonFilter{})
}

func (api *schoolApi) queryLessonsBySubject(ctx echo.Context) error {
	return api.lessons(ctx, school.LessonFilter{SubjectID: ctx.Param("id")})
}

func (api *schoolApi) queryLessonsByGrade(ctx echo.Context) error {
	return api.lessons(ctx, school.LessonFilter{GradeID: ctx.Param("id")})
}

func (api *schoolApi) lessons(ctx echo.Context, filter school.LessonFilter) error {
	lessons, err := api.svc.Lessons(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []school.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *schoolApi) retrieveLesson(ctx echo.Context) error {
	lsn, err := api.svc.GetLesson(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return trapSchoolErr(err, "getting lesson")
	}
	return ctx.JSON(http.StatusOK, lsn)
}

func (api *schoolApi) createLesson(ctx echo.Context) error {
	var data school.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if claims, err := getContextClaims(ctx); err == nil {
		data.CreatedBy = claims.Subject
	}

	lsn, err := api.svc.CreateLesson(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return trapSchoolErr(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, lsn)
}

func (api *schoolApi) updateLesson(ctx echo.Context) error {
	var data school.UpdateLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lsn, err := api.svc.UpdateLesson(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return trapSchoolErr(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, lsn)
}

func (api *schoolApi) destroyLesson(ctx echo.Context) error {
	if err := api.svc.DeleteLesson(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return trapSchoolErr(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) createAssignment(ctx echo.Context) error {
	var data school.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if claims, err := getContextClaims(ctx); err == nil {
		data.CreatedBy = claims.Subject
	}

	asg, err := api.svc.CreateAssignment(ctx.Request().Context(), data)
	if err != nil {
		return trapSchoolErr(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, asg)
}

func (api *schoolApi) queryAssignmentsByGrade(ctx echo.Context) error {
	assignments, err := api.svc.Assignments(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if assignments == nil {
		assignments = []school.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *schoolApi) retrieveAssignment(ctx echo.Context) error {
	asg, err := api.svc.GetAssignment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return trapSchoolErr(err, "getting assignment")
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *schoolApi) destroyAssignment(ctx echo.Context) error {
	if err := api.svc.DeleteAssignment(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return trapSchoolErr(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) uploadResource(ctx echo.Context) error {
	fileHdr, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "file", Error: "file is required"})
	}

	data := school.NewResource{
		Title:       ctx.FormValue("title"),
		Description: ctx.FormValue("description"),
	}
	if claims, cErr := getContextClaims(ctx); cErr == nil {
		data.UploadedBy = claims.Subject
	}

	src, err := fileHdr.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = src.Close() }()

	if err = os.MkdirAll(api.conf.UploadDir, 0o755); err != nil {
		return errors.Wrap(err, "creating upload dir")
	}
	filename := uuid.New().String() + "_" + filepath.Base(fileHdr.Filename)
	path := filepath.Join(api.conf.UploadDir, filename)

	dst, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating file")
	}
	defer func() { _ = dst.Close() }()
	if _, err = io.Copy(dst, src); err != nil {
		return errors.Wrap(err, "saving file")
	}
	data.FilePath = path

	if err = data.Validate(api.validate); err != nil {
		_ = os.Remove(path)
		return err
	}

	res, err := api.svc.CreateResource(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating resource")
	}
	return ctx.JSON(http.StatusCreated, api.withFileURL(res))
}

func (api *schoolApi) queryResources(ctx echo.Context) error {
	resources, err := api.svc.Resources(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying resources")
	}
	out := make([]school.Resource, 0, len(resources))
	for _, res := range resources {
		out = append(out, api.withFileURL(res))
	}
	return ctx.JSON(http.StatusOK, out)
}

func (api *schoolApi) downloadResource(ctx echo.Context) error {
	res, err := api.svc.GetResource(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return trapSchoolErr(err, "getting resource")
	}
	return ctx.Attachment(res.FilePath, filepath.Base(res.FilePath))
}

func (api *schoolApi) destroyResource(ctx echo.Context) error {
	res, err := api.svc.GetResource(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return trapSchoolErr(err, "getting resource")
	}
	if err = api.svc.DeleteResource(ctx.Request().Context(), res.ID); err != nil {
		return trapSchoolErr(err, "deleting resource")
	}
	// best effort file cleanup
	_ = os.Remove(res.FilePath)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *schoolApi) withFileURL(res school.Resource) school.Resource {
	res.FileURL = fmt.Sprintf("/api/resources/%s/download", res.ID)
	return res
}
