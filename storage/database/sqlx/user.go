package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/nextcentury/backend/core"
	"github.com/nextcentury/backend/core/user"
)

const uniqueViolation = "23505"

// userRow is the users table shape; nullable columns map through sql.Null*.
type userRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Username      string         `db:"username"`
	Email         string         `db:"email"`
	Role          string         `db:"role"`
	ParentID      sql.NullString `db:"parent_id"`
	GradeID       sql.NullString `db:"grade_id"`
	GradeName     sql.NullString `db:"grade_name"`
	ProfilePicURL string         `db:"profile_pic_url"`
	IsActive      bool           `db:"is_active"`
	PasswordHash  []byte         `db:"password_hash"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	LastLogin     sql.NullTime   `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:            r.ID,
		Name:          r.Name,
		Username:      r.Username,
		Email:         r.Email,
		Role:          r.Role,
		ParentID:      r.ParentID.String,
		GradeID:       r.GradeID.String,
		GradeName:     r.GradeName.String,
		ProfilePicURL: r.ProfilePicURL,
		IsActive:      r.IsActive,
		PasswordHash:  r.PasswordHash,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		LastLogin:     r.LastLogin.Time,
	}
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const userSelect = `
SELECT u.id, u.name, u.username, u.email, u.role, u.parent_id, u.grade_id,
       g.name AS grade_name, u.profile_pic_url, u.is_active, u.password_hash,
       u.created_at, u.updated_at, u.last_login
FROM users u
LEFT JOIN grades g ON u.grade_id = g.id`

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	q := "SELECT username, email FROM users WHERE (username = $1 OR email = $2)"
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q += " AND id != ALL($3)"
		args = append(args, pq.Array(ids))
	}

	var rows []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, r := range rows {
		if r.Username == username {
			return user.ErrUsernameExists
		}
		if r.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()

	const q = `
INSERT INTO users (id, name, username, email, role, parent_id, grade_id,
                   profile_pic_url, is_active, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.Role,
		nullStr(usr.ParentID), nullStr(usr.GradeID), usr.ProfilePicURL,
		usr.IsActive, usr.PasswordHash, usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.User{}, errors.Wrap(repo.trapUniqueErr(err), "inserting user")
	}
	return usr, nil
}

// trapUniqueErr maps psql unique violations to the uniqueness sentinels so
// racing inserts surface the same way validation does.
func (repo userRepository) trapUniqueErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case "users_username_key":
			return user.ErrUsernameExists
		case "users_email_key":
			return user.ErrEmailExists
		}
	}
	return err
}

func (repo userRepository) QueryAllUsers(ctx context.Context, exec ...core.DBExecutor) ([]user.User, error) {
	var rows []userRow
	q := userSelect + " ORDER BY u.created_at DESC"
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	var row userRow
	q := userSelect + " WHERE u.id = $1"
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user by id")
	}
	return row.user(), nil
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	var row userRow
	q := userSelect + " WHERE u.email = $1"
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, email); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user by email")
	}
	return row.user(), nil
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string, exec ...core.DBExecutor) (user.User, error) {
	var row userRow
	q := userSelect + " WHERE u.username = $1 OR u.email = $1"
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, username); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user by username or email")
	}
	return row.user(), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool, exec ...core.DBExecutor) (user.User, error) {
	const q = `
UPDATE users
SET name            = COALESCE(NULLIF($2, ''), name),
    username        = COALESCE(NULLIF($3, ''), username),
    email           = COALESCE(NULLIF($4, ''), email),
    grade_id        = COALESCE($5, grade_id),
    profile_pic_url = COALESCE(NULLIF($6, ''), profile_pic_url),
    is_active       = COALESCE($7, is_active),
    password_hash   = COALESCE($8, password_hash),
    role            = COALESCE(NULLIF($10, ''), role),
    updated_at      = $9
WHERE id = $1`
	var hash []byte
	if len(usr.PasswordHash) > 0 {
		hash = usr.PasswordHash
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q,
		usr.ID, usr.Name, usr.Username, usr.Email, nullStr(usr.GradeID),
		usr.ProfilePicURL, isActive, hash, usr.UpdatedAt.UTC(), usr.Role,
	)
	if err != nil {
		return user.User{}, errors.Wrap(repo.trapUniqueErr(err), "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM users WHERE id = ANY($1)", pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}

func (repo userRepository) SetUserLastLogin(ctx context.Context, id string, lastLogin time.Time, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx,
		"UPDATE users SET last_login = $2 WHERE id = $1", id, lastLogin.UTC())
	if err != nil {
		return errors.Wrap(err, "setting last login")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
