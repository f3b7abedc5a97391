package school

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/nextcentury/backend/core"
)

var (
	// errors
	ErrGradeNotFound        = errors.New("grade not found")
	ErrSubjectNotFound      = errors.New("subject not found")
	ErrLessonNotFound       = errors.New("lesson not found")
	ErrAssignmentNotFound   = errors.New("assignment not found")
	ErrResourceNotFound     = errors.New("resource not found")
	ErrSubjectGradeMismatch = errors.New("subject does not belong to the specified grade")
)

type (
	// LessonFilter narrows lesson queries; zero value means all lessons.
	LessonFilter struct {
		SubjectID string
		GradeID   string
	}

	Repository interface {
		QueryGrades(ctx context.Context, exec ...core.DBExecutor) ([]Grade, error)
		QuerySubjects(ctx context.Context, gradeID string, exec ...core.DBExecutor) ([]Subject, error)
		GetSubjectByID(ctx context.Context, id string, exec ...core.DBExecutor) (Subject, error)
		QueryLessons(ctx context.Context, filter LessonFilter, exec ...core.DBExecutor) ([]Lesson, error)
		GetLessonByID(ctx context.Context, id string, exec ...core.DBExecutor) (Lesson, error)
		CreateLesson(ctx context.Context, lsn Lesson, exec ...core.DBExecutor) (Lesson, error)
		UpdateLesson(ctx context.Context, lsn Lesson, exec ...core.DBExecutor) (Lesson, error)
		DeleteLesson(ctx context.Context, id string, exec ...core.DBExecutor) error
		CreateAssignment(ctx context.Context, asg Assignment, exec ...core.DBExecutor) (Assignment, error)
		QueryAssignments(ctx context.Context, gradeID string, exec ...core.DBExecutor) ([]Assignment, error)
		GetAssignmentByID(ctx context.Context, id string, exec ...core.DBExecutor) (Assignment, error)
		DeleteAssignment(ctx context.Context, id string, exec ...core.DBExecutor) error
		CreateResource(ctx context.Context, res Resource, exec ...core.DBExecutor) (Resource, error)
		QueryResources(ctx context.Context, exec ...core.DBExecutor) ([]Resource, error)
		GetResourceByID(ctx context.Context, id string, exec ...core.DBExecutor) (Resource, error)
		DeleteResource(ctx context.Context, id string, exec ...core.DBExecutor) error
		GetStats(ctx context.Context, exec ...core.DBExecutor) (Stats, error)
	}

	Service interface {
		Grades(ctx context.Context) ([]Grade, error)
		Subjects(ctx context.Context, gradeID string) ([]Subject, error)
		Lessons(ctx context.Context, filter LessonFilter) ([]Lesson, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
		CreateLesson(ctx context.Context, gradeID string, nl NewLesson) (Lesson, error)
		UpdateLesson(ctx context.Context, id string, ul UpdateLesson) (Lesson, error)
		DeleteLesson(ctx context.Context, id string) error
		CreateAssignment(ctx context.Context, na NewAssignment) (Assignment, error)
		Assignments(ctx context.Context, gradeID string) ([]Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		DeleteAssignment(ctx context.Context, id string) error
		CreateResource(ctx context.Context, nr NewResource) (Resource, error)
		Resources(ctx context.Context) ([]Resource, error)
		GetResource(ctx context.Context, id string) (Resource, error)
		DeleteResource(ctx context.Context, id string) error
		Stats(ctx context.Context) (Stats, error)
	}

	service struct {
		db   core.DB
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository) *service {
	return &service{db: db, repo: repo}
}

func (svc *service) Grades(ctx context.Context) ([]Grade, error) {
	return svc.repo.QueryGrades(ctx)
}

func (svc *service) Subjects(ctx context.Context, gradeID string) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, gradeID)
}

func (svc *service) Lessons(ctx context.Context, filter LessonFilter) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, filter)
}

func (svc *service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLessonByID(ctx, id)
}

// CreateLesson records a lesson under the given grade; the subject must
// belong to that grade.
func (svc *service) CreateLesson(ctx context.Context, gradeID string, nl NewLesson) (Lesson, error) {
	sub, err := svc.repo.GetSubjectByID(ctx, nl.SubjectID)
	if err != nil {
		return Lesson{}, err
	}
	if sub.GradeID != gradeID {
		return Lesson{}, core.NewValidationError(ErrSubjectGradeMismatch, core.FieldError{Field: "subject_id", Error: ErrSubjectGradeMismatch.Error()})
	}

	now := time.Now().UTC()
	lsn := Lesson{
		Title:       nl.Title,
		ContentText: nl.ContentText,
		VideoURL:    nl.VideoURL,
		SubjectID:   nl.SubjectID,
		CreatedBy:   nl.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateLesson(ctx, lsn)
}

func (svc *service) UpdateLesson(ctx context.Context, id string, ul UpdateLesson) (Lesson, error) {
	lsn := Lesson{
		ID:          id,
		Title:       ul.Title,
		ContentText: ul.ContentText,
		VideoURL:    ul.VideoURL,
		SubjectID:   ul.SubjectID,
		UpdatedAt:   time.Now().UTC(),
	}
	return svc.repo.UpdateLesson(ctx, lsn)
}

func (svc *service) DeleteLesson(ctx context.Context, id string) error {
	return svc.repo.DeleteLesson(ctx, id)
}

func (svc *service) CreateAssignment(ctx context.Context, na NewAssignment) (Assignment, error) {
	sub, err := svc.repo.GetSubjectByID(ctx, na.SubjectID)
	if err != nil {
		return Assignment{}, err
	}
	if sub.GradeID != na.GradeID {
		return Assignment{}, core.NewValidationError(ErrSubjectGradeMismatch, core.FieldError{Field: "subject_id", Error: ErrSubjectGradeMismatch.Error()})
	}

	asg := Assignment{
		Title:       na.Title,
		Description: na.Description,
		SubjectID:   na.SubjectID,
		GradeID:     na.GradeID,
		DueDate:     na.DueDate.UTC(),
		CreatedBy:   na.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateAssignment(ctx, asg)
}

func (svc *service) Assignments(ctx context.Context, gradeID string) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx, gradeID)
}

func (svc *service) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignmentByID(ctx, id)
}

func (svc *service) DeleteAssignment(ctx context.Context, id string) error {
	return svc.repo.DeleteAssignment(ctx, id)
}

func (svc *service) CreateResource(ctx context.Context, nr NewResource) (Resource, error) {
	res := Resource{
		Title:       nr.Title,
		Description: nr.Description,
		FilePath:    nr.FilePath,
		UploadedBy:  nr.UploadedBy,
		UploadedAt:  time.Now().UTC(),
	}
	return svc.repo.CreateResource(ctx, res)
}

func (svc *service) Resources(ctx context.Context) ([]Resource, error) {
	return svc.repo.QueryResources(ctx)
}

func (svc *service) GetResource(ctx context.Context, id string) (Resource, error) {
	return svc.repo.GetResourceByID(ctx, id)
}

func (svc *service) DeleteResource(ctx context.Context, id string) error {
	return svc.repo.DeleteResource(ctx, id)
}

func (svc *service) Stats(ctx context.Context) (Stats, error) {
	return svc.repo.GetStats(ctx)
}
