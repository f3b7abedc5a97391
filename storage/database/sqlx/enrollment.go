package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/nextcentury/backend/core"
	"github.com/nextcentury/backend/core/enrollment"
)

type applicationRow struct {
	ID          string    `db:"id"`
	ParentName  string    `db:"parent_name"`
	ParentEmail string    `db:"parent_email"`
	ChildName   string    `db:"child_name"`
	GradeID     string    `db:"grade_id"`
	GradeName   string    `db:"grade_name"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r applicationRow) application() enrollment.Application {
	return enrollment.Application{
		ID:          r.ID,
		ParentName:  r.ParentName,
		ParentEmail: r.ParentEmail,
		ChildName:   r.ChildName,
		GradeID:     r.GradeID,
		GradeName:   r.GradeName,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
	}
}

type enrollmentRepository struct {
	exec core.DBExecutor
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(exec core.DBExecutor) *enrollmentRepository {
	return &enrollmentRepository{exec: exec}
}

func (repo enrollmentRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

const applicationSelect = `
SELECT a.id, a.parent_name, a.parent_email, a.child_name, a.grade_id,
       g.name AS grade_name, a.status, a.created_at
FROM applications a
JOIN grades g ON a.grade_id = g.id`

func (repo enrollmentRepository) CreateApplication(ctx context.Context, app enrollment.Application, exec ...core.DBExecutor) (enrollment.Application, error) {
	app.ID = uuid.New().String()

	const q = `
INSERT INTO applications (id, parent_name, parent_email, child_name, grade_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		app.ID, app.ParentName, app.ParentEmail, app.ChildName,
		app.GradeID, app.Status, app.CreatedAt.UTC(),
	)
	if err != nil {
		return enrollment.Application{}, errors.Wrap(err, "inserting application")
	}
	return app, nil
}

func (repo enrollmentRepository) QueryApplicationsByStatus(ctx context.Context, status string, exec ...core.DBExecutor) ([]enrollment.Application, error) {
	q := applicationSelect
	args := []interface{}{}
	if status != "" {
		q += " WHERE a.status = $1"
		args = append(args, status)
	}
	q += " ORDER BY a.created_at DESC"

	var rows []applicationRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying applications")
	}
	apps := make([]enrollment.Application, 0, len(rows))
	for _, r := range rows {
		apps = append(apps, r.application())
	}
	return apps, nil
}

func (repo enrollmentRepository) GetApplicationByID(ctx context.Context, id string, exec ...core.DBExecutor) (enrollment.Application, error) {
	var row applicationRow
	q := applicationSelect + " WHERE a.id = $1"
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Application{}, enrollment.ErrNotFound
		}
		return enrollment.Application{}, errors.Wrap(err, "getting application")
	}
	return row.application(), nil
}

// TransitionApplication is a check-and-set in a single statement. Concurrent
// transitions of the same application serialize on the row lock; the loser
// sees zero rows updated and reports ErrAlreadyProcessed.
func (repo enrollmentRepository) TransitionApplication(ctx context.Context, id, from, to string, exec ...core.DBExecutor) (enrollment.Application, error) {
	const q = `
UPDATE applications
SET status = $3
WHERE id = $1 AND status = $2`
	res, err := repo.getExec(exec).ExecContext(ctx, q, id, from, to)
	if err != nil {
		return enrollment.Application{}, errors.Wrap(err, "transitioning application")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// distinguish absent from already-processed
		app, err := repo.GetApplicationByID(ctx, id, exec...)
		if err != nil {
			return enrollment.Application{}, err
		}
		return app, enrollment.ErrAlreadyProcessed
	}
	return repo.GetApplicationByID(ctx, id, exec...)
}

func (repo enrollmentRepository) GetGradeIDByName(ctx context.Context, name string, exec ...core.DBExecutor) (string, error) {
	var id string
	err := sqlx.GetContext(ctx, repo.getExec(exec), &id, "SELECT id FROM grades WHERE name = $1", name)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", enrollment.ErrUnknownGrade
		}
		return "", errors.Wrap(err, "getting grade by name")
	}
	return id, nil
}

func (repo enrollmentRepository) CreateSignupToken(ctx context.Context, tok enrollment.SignupToken, exec ...core.DBExecutor) error {
	const q = `
INSERT INTO signup_tokens (token, application_id, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (application_id) DO UPDATE SET token = $1, expires_at = $3`
	_, err := repo.getExec(exec).ExecContext(ctx, q, tok.Token, tok.ApplicationID, tok.ExpiresAt.UTC())
	return errors.Wrap(err, "inserting signup token")
}

// DeleteSignupToken removes and returns the token in one statement. Under
// concurrent redemption exactly one caller gets the row back; the rest see
// ErrInvalidToken.
func (repo enrollmentRepository) DeleteSignupToken(ctx context.Context, token string, exec ...core.DBExecutor) (enrollment.SignupToken, error) {
	var row struct {
		Token         string    `db:"token"`
		ApplicationID string    `db:"application_id"`
		ExpiresAt     time.Time `db:"expires_at"`
	}
	const q = `
DELETE FROM signup_tokens
WHERE token = $1
RETURNING token, application_id, expires_at`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, token); err != nil {
		if err == sql.ErrNoRows {
			return enrollment.SignupToken{}, enrollment.ErrInvalidToken
		}
		return enrollment.SignupToken{}, errors.Wrap(err, "deleting signup token")
	}
	return enrollment.SignupToken{
		Token:         row.Token,
		ApplicationID: row.ApplicationID,
		ExpiresAt:     row.ExpiresAt,
	}, nil
}
