package school

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nextcentury/backend/core"
)

type Grade struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Subject struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	GradeID   string `json:"grade_id"`
	GradeName string `json:"grade_name"`
}

type Lesson struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	ContentText   string    `json:"content_text"`
	VideoURL      string    `json:"video_url,omitempty"`
	SubjectID     string    `json:"subject_id"`
	SubjectName   string    `json:"subject_name"`
	GradeName     string    `json:"grade_name"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedByName string    `json:"created_by_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

type Assignment struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	GradeID     string    `json:"grade_id"`
	DueDate     time.Time `json:"due_date"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

type Resource struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	FilePath    string    `json:"-"`
	FileURL     string    `json:"file_url"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"` // UTC
}

// Stats aggregates the admin dashboard counters.
type Stats struct {
	TotalUsers          int `json:"total_users"`
	PendingApplications int `json:"pending_applications"`
	TotalAssignments    int `json:"total_assignments"`
	ActiveStudents      int `json:"active_students"`
	TotalLessons        int `json:"total_lessons"`
}

type NewLesson struct {
	Title       string `json:"title" validate:"required"`
	SubjectID   string `json:"subject_id" validate:"required,uuid"`
	ContentText string `json:"content_text" validate:"required"`
	VideoURL    string `json:"video_url" validate:"omitempty,url"`
	CreatedBy   string `json:"created_by" validate:"omitempty,uuid"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.ContentText = core.CleanString(nl.ContentText)
	return validate.Struct(nl)
}

// UpdateLesson carries a partial update; empty fields keep their current
// values.
type UpdateLesson struct {
	Title       string `json:"title"`
	SubjectID   string `json:"subject_id" validate:"omitempty,uuid"`
	ContentText string `json:"content_text"`
	VideoURL    string `json:"video_url" validate:"omitempty,url"`
}

func (ul *UpdateLesson) Validate(validate *validator.Validate) error {
	ul.Title = core.CleanString(ul.Title)
	ul.ContentText = core.CleanString(ul.ContentText)
	return validate.Struct(ul)
}

type NewAssignment struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	SubjectID   string    `json:"subject_id" validate:"required,uuid"`
	GradeID     string    `json:"grade_id" validate:"required,uuid"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	CreatedBy   string    `json:"created_by" validate:"omitempty,uuid"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	return validate.Struct(na)
}

type NewResource struct {
	Title       string `validate:"required"`
	Description string
	FilePath    string `validate:"required"`
	UploadedBy  string `validate:"required,uuid"`
}

func (nr *NewResource) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	nr.Description = core.CleanString(nr.Description)
	return validate.Struct(nr)
}
