package enrollment

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/nextcentury/backend/core"
)

// Application statuses. Transitions are one-directional from pending;
// approved and rejected are terminal.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

var AllStatuses = []string{StatusPending, StatusApproved, StatusRejected}

// Application is a parent's request to enroll a child, subject to
// administrator approval.
type Application struct {
	ID          string    `json:"id"`
	ParentName  string    `json:"parent_name"`
	ParentEmail string    `json:"parent_email"`
	ChildName   string    `json:"child_name"`
	GradeID     string    `json:"grade_id"`
	GradeName   string    `json:"grade"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// SignupToken is a short-lived, single-use credential issued on approval and
// redeemed to create the family accounts.
type SignupToken struct {
	Token         string    `json:"-"`
	ApplicationID string    `json:"application_id"`
	ExpiresAt     time.Time `json:"expires_at"` // UTC
}

func (st SignupToken) Expired(now time.Time) bool {
	return !now.Before(st.ExpiresAt)
}

// NewApplication is the public submission payload. Wire names follow the
// enrollment form.
type NewApplication struct {
	ParentName  string `json:"parentName" validate:"required"`
	ParentEmail string `json:"email" validate:"required,email"`
	ChildName   string `json:"childName" validate:"required"`
	GradeName   string `json:"grade" validate:"required"`
}

func (na *NewApplication) Validate(validate *validator.Validate) error {
	na.ParentName = core.CleanString(na.ParentName)
	na.ParentEmail = core.CleanString(na.ParentEmail, true /* lower */)
	na.ChildName = core.CleanString(na.ChildName)
	na.GradeName = core.CleanString(na.GradeName)
	return validate.Struct(na)
}

// Signup is the token redemption payload.
type Signup struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (s *Signup) Validate(validate *validator.Validate) error {
	s.Token = core.CleanString(s.Token)
	return validate.Struct(s)
}

// InitValidators registers enrollment-specific validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation("appstatus", statusValidation)
	core.RegisterCustomTranslation(validate, translator, "appstatus", "invalid application status")
}

func statusValidation(fl validator.FieldLevel) bool {
	return ValidStatus(fl.Field().String())
}

func ValidStatus(status string) bool {
	for _, s := range AllStatuses {
		if status == s {
			return true
		}
	}
	return false
}
