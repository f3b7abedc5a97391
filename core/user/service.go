package user

import (
	"context"
	"errors"
	"time"

	"github.com/nextcentury/backend/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		QueryAllUsers(ctx context.Context, exec ...core.DBExecutor) ([]User, error)
		GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (User, error)
		GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error)
		GetUserByUsernameOrEmail(ctx context.Context, username string, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error
		SetUserLastLogin(ctx context.Context, id string, lastLogin time.Time, exec ...core.DBExecutor) error
	}

	Service interface {
		CheckUniqueness(excluded *User, uname, email string) error
		Create(nu NewUser) (User, error)
		QueryAll() ([]User, error)
		GetByID(id string) (User, error)
		GetByEmail(email string) (User, error)
		GetByUsernameOrEmail(uname string) (User, error)
		Update(id string, uu UpdateUser) (User, error)
		Delete(ids ...string) error
		SetLastLogin(usr User) (User, error)
	}

	service struct {
		db   core.DB
		repo Repository
		conf *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, conf *core.Config) *service {
	return &service{db: db, repo: repo, conf: conf}
}

func (svc *service) CheckUniqueness(excluded *User, uname, email string) error {
	var exclUsers []User
	if excluded != nil {
		exclUsers = append(exclUsers, *excluded)
	}
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      nu.Role,
		GradeID:   nu.GradeID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(context.Background(), usr)
}

func (svc *service) QueryAll() ([]User, error) {
	return svc.repo.QueryAllUsers(context.Background())
}

func (svc *service) GetByID(id string) (User, error) {
	return svc.repo.GetUserByID(context.Background(), id)
}

func (svc *service) GetByEmail(email string) (User, error) {
	return svc.repo.GetUserByEmail(context.Background(), core.CleanString(email, true /* lower */))
}

func (svc *service) GetByUsernameOrEmail(uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(context.Background(), core.CleanString(uname, true /* lower */))
}

func (svc *service) Update(id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:            id,
		Name:          uu.Name,
		Username:      uu.Username,
		Email:         uu.Email,
		GradeID:       uu.GradeID,
		ProfilePicURL: uu.ProfilePicURL,
		UpdatedAt:     time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	return svc.repo.UpdateUser(context.Background(), usr, uu.IsActive)
}

func (svc *service) Delete(ids ...string) error {
	return svc.repo.DeleteUsersByID(context.Background(), ids)
}

func (svc *service) SetLastLogin(usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	if err := svc.repo.SetUserLastLogin(context.Background(), usr.ID, usr.LastLogin); err != nil {
		return User{}, err
	}
	return usr, nil
}
