package user_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextcentury/backend/core"
	"github.com/nextcentury/backend/core/user"
	inmemdb "github.com/nextcentury/backend/storage/database/inmem"
	testutil "github.com/nextcentury/backend/tests"
)

func setup(t *testing.T) (user.Service, user.Repository) {
	t.Helper()

	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewUserRepository(db)
	return user.NewService(db, repo, testutil.NewConfig()), repo
}

func Test_service_Create(t *testing.T) {
	svc, _ := setup(t)

	usr, err := svc.Create(user.NewUser{
		Name:            "Jane Doe",
		Username:        "janedoe",
		Email:           "jane@test.com",
		Role:            user.RoleTeacher,
		Password:        "s3cretPwd!",
		PasswordConfirm: "s3cretPwd!",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.IsActive)
	assert.False(t, usr.CreatedAt.IsZero())
	assert.NoError(t, usr.CheckPassword("s3cretPwd!"))
	assert.Error(t, usr.CheckPassword("wrong"))
}

func Test_service_CheckUniqueness(t *testing.T) {
	svc, repo := setup(t)

	existing := testutil.CreateUser(t, repo, "Jane Doe", "janedoe", "jane@test.com", "s3cretPwd!", user.RoleTeacher, true)

	var vErr *core.ValidationError

	err := svc.CheckUniqueness(nil, "janedoe", "new@test.com")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "username", vErr.Fields[0].Field)

	err = svc.CheckUniqueness(nil, "newuser", "jane@test.com")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "email", vErr.Fields[0].Field)

	// the user themselves is excluded
	assert.NoError(t, svc.CheckUniqueness(&existing, "janedoe", "jane@test.com"))
	assert.NoError(t, svc.CheckUniqueness(nil, "newuser", "new@test.com"))
}

func Test_service_GetByUsernameOrEmail(t *testing.T) {
	svc, repo := setup(t)

	usr := testutil.CreateUser(t, repo, "Jane Doe", "janedoe", "jane@test.com", "s3cretPwd!", user.RoleTeacher, true)

	got, err := svc.GetByUsernameOrEmail("janedoe")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	got, err = svc.GetByUsernameOrEmail("Jane@Test.com") // cleaned + lowered
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = svc.GetByUsernameOrEmail("nope")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func Test_service_Update(t *testing.T) {
	svc, repo := setup(t)

	usr := testutil.CreateUser(t, repo, "Jane Doe", "janedoe", "jane@test.com", "s3cretPwd!", user.RoleTeacher, true)

	inactive := false
	got, err := svc.Update(usr.ID, user.UpdateUser{Name: "Jane Smith", IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", got.Name)
	assert.False(t, got.IsActive)
	assert.Equal(t, "janedoe", got.Username) // untouched

	// password change
	_, err = svc.Update(usr.ID, user.UpdateUser{Password: "n3wPassword!", PasswordConfirm: "n3wPassword!"})
	require.NoError(t, err)
	got, err = svc.GetByID(usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("n3wPassword!"))
}

func Test_service_Delete(t *testing.T) {
	svc, repo := setup(t)

	usr1 := testutil.CreateUser(t, repo, "Jane Doe", "janedoe", "jane@test.com", "s3cretPwd!", user.RoleTeacher, true)
	usr2 := testutil.CreateUser(t, repo, "John Doe", "johndoe", "john@test.com", "s3cretPwd!", user.RoleStudent, true)

	require.NoError(t, svc.Delete(usr1.ID, usr2.ID))

	users, err := svc.QueryAll()
	require.NoError(t, err)
	assert.Empty(t, users)
}
