package enrollment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/nextcentury/backend/core"
	"github.com/nextcentury/backend/core/user"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound         = errors.New("application not found")
	ErrAlreadyProcessed = errors.New("application has already been processed")
	ErrUnknownGrade     = errors.New("unknown grade")
	ErrInvalidToken     = errors.New("invalid signup token")
	ErrTokenExpired     = errors.New("signup token has expired")
	ErrAccountExists    = errors.New("an account with this login already exists")
)

type (
	Repository interface {
		CreateApplication(ctx context.Context, app Application, exec ...core.DBExecutor) (Application, error)
		QueryApplicationsByStatus(ctx context.Context, status string, exec ...core.DBExecutor) ([]Application, error)
		GetApplicationByID(ctx context.Context, id string, exec ...core.DBExecutor) (Application, error)
		// TransitionApplication performs a conditional status update guarded by
		// the expected prior status; it is the serialization point for
		// concurrent approvals. Absent id -> ErrNotFound; present but not in
		// `from` -> ErrAlreadyProcessed.
		TransitionApplication(ctx context.Context, id, from, to string, exec ...core.DBExecutor) (Application, error)
		GetGradeIDByName(ctx context.Context, name string, exec ...core.DBExecutor) (string, error)
		CreateSignupToken(ctx context.Context, tok SignupToken, exec ...core.DBExecutor) error
		// DeleteSignupToken removes and returns the token record in one
		// statement; absent token -> ErrInvalidToken.
		DeleteSignupToken(ctx context.Context, token string, exec ...core.DBExecutor) (SignupToken, error)
	}

	Service interface {
		Submit(ctx context.Context, na NewApplication) (Application, error)
		Query(ctx context.Context, status string) ([]Application, error)
		Approve(ctx context.Context, id string) (Application, string, error)
		Reject(ctx context.Context, id string) (Application, error)
		Redeem(ctx context.Context, token, password string) (user.User, user.User, error)
	}

	service struct {
		db      core.DB
		repo    Repository
		usrRepo user.Repository
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, usrRepo user.Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *service {
	return &service{
		db:      db,
		repo:    repo,
		usrRepo: usrRepo,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

// Submit records a new application with status pending. The grade name must
// resolve to a known grade.
func (svc *service) Submit(ctx context.Context, na NewApplication) (Application, error) {
	gradeID, err := svc.repo.GetGradeIDByName(ctx, na.GradeName)
	if err != nil {
		if errors.Cause(err) == ErrUnknownGrade {
			return Application{}, core.NewValidationError(err, core.FieldError{Field: "grade", Error: err.Error()})
		}
		return Application{}, errors.Wrap(err, "resolving grade")
	}

	app := Application{
		ParentName:  na.ParentName,
		ParentEmail: na.ParentEmail,
		ChildName:   na.ChildName,
		GradeID:     gradeID,
		GradeName:   na.GradeName,
		Status:      StatusPending,
		CreatedAt:   NowFunc().UTC(),
	}
	return svc.repo.CreateApplication(ctx, app)
}

// Query returns all applications with the given status, newest first. An
// omitted status means pending, the admin's default work queue.
func (svc *service) Query(ctx context.Context, status string) ([]Application, error) {
	if status == "" {
		status = StatusPending
	}
	if !ValidStatus(status) {
		return nil, core.NewValidationError(errors.New("invalid status"), core.FieldError{Field: "status", Error: "must be one of pending, approved, rejected"})
	}
	return svc.repo.QueryApplicationsByStatus(ctx, status)
}

// Approve transitions a pending application to approved and mints its signup
// token as one atomic unit. The notification is dispatched after commit;
// delivery failure never undoes the approval - the returned link allows a
// manual resend.
func (svc *service) Approve(ctx context.Context, id string) (Application, string, error) {
	var app Application
	var link string

	err := svc.db.Atomic(ctx, func(exec core.DBExecutor) error {
		var err error
		app, err = svc.repo.TransitionApplication(ctx, id, StatusPending, StatusApproved, exec)
		if err != nil {
			return err
		}

		token, err := GenerateToken()
		if err != nil {
			return errors.Wrap(err, "generating signup token")
		}
		st := SignupToken{
			Token:         token,
			ApplicationID: app.ID,
			ExpiresAt:     NowFunc().Add(svc.conf.SignupTokenTTL).UTC(),
		}
		if err = svc.repo.CreateSignupToken(ctx, st, exec); err != nil {
			return errors.Wrap(err, "creating signup token")
		}

		link = svc.signupLink(token)
		return nil
	})
	if err != nil {
		return Application{}, "", err
	}

	svc.logger.Info(fmt.Sprintf("application %s approved; signup link issued to %s", app.ID, app.ParentEmail))
	svc.sendApprovalMail(app, link)
	return app, link, nil
}

// Reject transitions a pending application to rejected. Like Approve, the
// transition is guarded: an already-processed application is not re-rejected.
func (svc *service) Reject(ctx context.Context, id string) (Application, error) {
	var app Application
	err := svc.db.Atomic(ctx, func(exec core.DBExecutor) error {
		var err error
		app, err = svc.repo.TransitionApplication(ctx, id, StatusPending, StatusRejected, exec)
		return err
	})
	if err != nil {
		return Application{}, err
	}
	return app, nil
}

// Redeem consumes a signup token and provisions the linked parent and child
// accounts. Token deletion, expiry check and both account inserts form one
// atomic unit: on any failure the whole unit rolls back and the token stays
// valid for a retry.
func (svc *service) Redeem(ctx context.Context, token, password string) (parent user.User, child user.User, err error) {
	err = svc.db.Atomic(ctx, func(exec core.DBExecutor) error {
		st, err := svc.repo.DeleteSignupToken(ctx, token, exec)
		if err != nil {
			return err
		}
		if st.Expired(NowFunc()) {
			return ErrTokenExpired
		}

		app, err := svc.repo.GetApplicationByID(ctx, st.ApplicationID, exec)
		if err != nil {
			return err
		}

		now := NowFunc().UTC()
		parent = user.User{
			Name:      app.ParentName,
			Username:  app.ParentEmail,
			Email:     app.ParentEmail,
			Role:      user.RoleParent,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err = parent.SetPassword(password); err != nil {
			return errors.Wrap(err, "hashing password")
		}
		if parent, err = svc.usrRepo.CreateUser(ctx, parent, exec); err != nil {
			return svc.trapAccountExists(err)
		}

		// the application never carries a child login; derive one from the
		// parent contact
		childLogin := ChildLogin(app.ParentEmail)
		child = user.User{
			Name:         app.ChildName,
			Username:     childLogin,
			Email:        childLogin,
			Role:         user.RoleStudent,
			ParentID:     parent.ID,
			GradeID:      app.GradeID,
			IsActive:     true,
			PasswordHash: parent.PasswordHash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if child, err = svc.usrRepo.CreateUser(ctx, child, exec); err != nil {
			return svc.trapAccountExists(err)
		}
		return nil
	})
	if err != nil {
		return user.User{}, user.User{}, err
	}
	return parent, child, nil
}

// ChildLogin derives the deterministic login identifier of the child account;
// the "child_" prefix lands on the local part, so the result is still a valid
// address.
func ChildLogin(parentEmail string) string {
	return "child_" + parentEmail
}

func (svc *service) trapAccountExists(err error) error {
	switch errors.Cause(err) {
	case user.ErrEmailExists, user.ErrUsernameExists:
		return ErrAccountExists
	}
	return err
}

func (svc *service) signupLink(token string) string {
	return fmt.Sprintf("%s/signup?token=%s", svc.conf.FrontendBaseURL, token)
}

func (svc *service) sendApprovalMail(app Application, link string) {
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"Great news! %s's application for %s has been approved.\n"+
			"Complete the registration within 48 hours using the link below:\n\n%s\n",
		app.ParentName, app.ChildName, app.GradeName, link,
	)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: app.ParentName, Address: app.ParentEmail}},
		Subject: fmt.Sprintf("Complete %s's registration", app.ChildName),
		BodyStr: body,
	})
}
