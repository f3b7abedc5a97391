package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/nextcentury/backend/core"
	"github.com/nextcentury/backend/core/enrollment"
)

type EnrollmentRepository struct {
	db *enrollmentTable
}

var _ enrollment.Repository = (*EnrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db.enrollment}
}

// SeedGrade registers a grade for name lookups.
func (repo *EnrollmentRepository) SeedGrade(name string) string {
	repo.db.Lock()
	defer repo.db.Unlock()

	if id, ok := repo.db.grades[name]; ok {
		return id
	}
	id := uuid.New().String()
	repo.db.grades[name] = id
	return id
}

func (repo *EnrollmentRepository) CreateApplication(ctx context.Context, app enrollment.Application, exec ...core.DBExecutor) (enrollment.Application, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	app.ID = uuid.New().String()
	repo.db.applications[app.ID] = &app
	return app, nil
}

func (repo *EnrollmentRepository) QueryApplicationsByStatus(ctx context.Context, status string, exec ...core.DBExecutor) ([]enrollment.Application, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	apps := make([]enrollment.Application, 0, len(repo.db.applications))
	for _, app := range repo.db.applications {
		if status == "" || app.Status == status {
			apps = append(apps, *app)
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.After(apps[j].CreatedAt) })
	return apps, nil
}

func (repo *EnrollmentRepository) GetApplicationByID(ctx context.Context, id string, exec ...core.DBExecutor) (enrollment.Application, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if app, ok := repo.db.applications[id]; ok {
		return *app, nil
	}
	return enrollment.Application{}, enrollment.ErrNotFound
}

func (repo *EnrollmentRepository) TransitionApplication(ctx context.Context, id, from, to string, exec ...core.DBExecutor) (enrollment.Application, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	app, ok := repo.db.applications[id]
	if !ok {
		return enrollment.Application{}, enrollment.ErrNotFound
	}
	if app.Status != from {
		return *app, enrollment.ErrAlreadyProcessed
	}
	app.Status = to
	return *app, nil
}

func (repo *EnrollmentRepository) GetGradeIDByName(ctx context.Context, name string, exec ...core.DBExecutor) (string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if id, ok := repo.db.grades[name]; ok {
		return id, nil
	}
	return "", enrollment.ErrUnknownGrade
}

func (repo *EnrollmentRepository) CreateSignupToken(ctx context.Context, tok enrollment.SignupToken, exec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	// one live token per application
	for t, existing := range repo.db.tokens {
		if existing.ApplicationID == tok.ApplicationID {
			delete(repo.db.tokens, t)
		}
	}
	repo.db.tokens[tok.Token] = &tok
	return nil
}

func (repo *EnrollmentRepository) DeleteSignupToken(ctx context.Context, token string, exec ...core.DBExecutor) (enrollment.SignupToken, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	tok, ok := repo.db.tokens[token]
	if !ok {
		return enrollment.SignupToken{}, enrollment.ErrInvalidToken
	}
	delete(repo.db.tokens, token)
	return *tok, nil
}
