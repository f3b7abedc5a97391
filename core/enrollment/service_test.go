package enrollment_test

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextcentury/backend/core"
	"github.com/nextcentury/backend/core/enrollment"
	"github.com/nextcentury/backend/core/user"
	emailsvc "github.com/nextcentury/backend/services/email"
	logsvc "github.com/nextcentury/backend/services/logger"
	inmemdb "github.com/nextcentury/backend/storage/database/inmem"
	testutil "github.com/nextcentury/backend/tests"
)

type testEnv struct {
	conf    *core.Config
	svc     enrollment.Service
	repo    enrollment.Repository
	usrRepo user.Repository
	gradeID string
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := testutil.NewConfig()
	db, err := inmemdb.Open()
	require.NoError(t, err)

	repo := inmemdb.NewEnrollmentRepository(db)
	gradeID := repo.SeedGrade("Grade 3")
	usrRepo := inmemdb.NewUserRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	logger := logsvc.NewTestLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags))

	emailsvc.ClearSentMessages()

	return &testEnv{
		conf:    conf,
		svc:     enrollment.NewService(db, repo, usrRepo, mailSvc, logger, conf),
		repo:    repo,
		usrRepo: usrRepo,
		gradeID: gradeID,
	}
}

func submit(t *testing.T, env *testEnv) enrollment.Application {
	t.Helper()
	app, err := env.svc.Submit(context.Background(), enrollment.NewApplication{
		ParentName:  "Jane Doe",
		ParentEmail: "jane@test.com",
		ChildName:   "Johnny Doe",
		GradeName:   "Grade 3",
	})
	require.NoError(t, err)
	return app
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	i := strings.Index(link, "token=")
	require.Greater(t, i, -1, "signup link %q carries no token", link)
	return link[i+len("token="):]
}

func Test_service_Submit(t *testing.T) {
	env := setup(t)

	app := submit(t, env)
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, enrollment.StatusPending, app.Status)
	assert.Equal(t, env.gradeID, app.GradeID)
	assert.Equal(t, "Grade 3", app.GradeName)
	assert.False(t, app.CreatedAt.IsZero())
}

func Test_service_Submit_unknownGrade(t *testing.T) {
	env := setup(t)

	_, err := env.svc.Submit(context.Background(), enrollment.NewApplication{
		ParentName:  "Jane Doe",
		ParentEmail: "jane@test.com",
		ChildName:   "Johnny Doe",
		GradeName:   "Grade 13",
	})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Fields, 1)
	assert.Equal(t, "grade", vErr.Fields[0].Field)
}

func Test_service_Query(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	app1 := submit(t, env)
	app2 := submit(t, env)
	_, _, err := env.svc.Approve(ctx, app2.ID)
	require.NoError(t, err)

	pending, err := env.svc.Query(ctx, enrollment.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, app1.ID, pending[0].ID)

	approved, err := env.svc.Query(ctx, enrollment.StatusApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, app2.ID, approved[0].ID)

	// an omitted status defaults to the pending queue
	defaulted, err := env.svc.Query(ctx, "")
	require.NoError(t, err)
	require.Len(t, defaulted, 1)
	assert.Equal(t, app1.ID, defaulted[0].ID)

	_, err = env.svc.Query(ctx, "wait-listed")
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func Test_service_Approve(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	app := submit(t, env)
	approved, link, err := env.svc.Approve(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusApproved, approved.Status)
	assert.Contains(t, link, env.conf.FrontendBaseURL+"/signup?token=")

	// notification went out to the parent
	msgs := emailsvc.GetSentMessages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].To, 1)
	assert.Equal(t, "jane@test.com", msgs[0].To[0].Address)
	assert.Contains(t, msgs[0].TextContent, link)
}

func Test_service_Approve_absent(t *testing.T) {
	env := setup(t)

	_, _, err := env.svc.Approve(context.Background(), "9f4e297e-16f9-4a66-9e75-0b4a1e4a31f5")
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
}

func Test_service_Approve_alreadyProcessed(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	app := submit(t, env)
	_, _, err := env.svc.Approve(ctx, app.ID)
	require.NoError(t, err)

	_, _, err = env.svc.Approve(ctx, app.ID)
	assert.ErrorIs(t, err, enrollment.ErrAlreadyProcessed)

	_, err = env.svc.Reject(ctx, app.ID)
	assert.ErrorIs(t, err, enrollment.ErrAlreadyProcessed)
}

func Test_service_Approve_concurrent(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	app := submit(t, env)

	var wg sync.WaitGroup
	links := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, links[i], errs[i] = env.svc.Approve(ctx, app.ID)
		}(i)
	}
	wg.Wait()

	// exactly one admin wins; the loser sees the processed state
	winners := 0
	for i := range errs {
		if errs[i] == nil {
			winners++
			assert.NotEmpty(t, links[i])
		} else {
			assert.ErrorIs(t, errs[i], enrollment.ErrAlreadyProcessed)
			assert.Empty(t, links[i])
		}
	}
	require.Equal(t, 1, winners)

	// a single token was minted and a single notification sent
	assert.Len(t, emailsvc.GetSentMessages(), 1)
	for i := range errs {
		if errs[i] == nil {
			_, _, err := env.svc.Redeem(ctx, tokenFromLink(t, links[i]), "n3wPassword!")
			assert.NoError(t, err)
		}
	}
}

func Test_service_Reject(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	app := submit(t, env)
	rejected, err := env.svc.Reject(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusRejected, rejected.Status)

	// terminal; cannot approve a rejected application
	_, _, err = env.svc.Approve(ctx, app.ID)
	assert.ErrorIs(t, err, enrollment.ErrAlreadyProcessed)

	// no token was minted, no mail sent
	assert.Empty(t, emailsvc.GetSentMessages())
}

func Test_service_Redeem(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	app := submit(t, env)
	_, link, err := env.svc.Approve(ctx, app.ID)
	require.NoError(t, err)
	token := tokenFromLink(t, link)

	parent, child, err := env.svc.Redeem(ctx, token, "s3cretPwd!")
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", parent.Name)
	assert.Equal(t, "jane@test.com", parent.Username)
	assert.Equal(t, "jane@test.com", parent.Email)
	assert.Equal(t, user.RoleParent, parent.Role)
	assert.True(t, parent.IsActive)
	assert.NoError(t, parent.CheckPassword("s3cretPwd!"))

	assert.Equal(t, "Johnny Doe", child.Name)
	assert.Equal(t, "child_jane@test.com", child.Username)
	assert.Equal(t, user.RoleStudent, child.Role)
	assert.Equal(t, parent.ID, child.ParentID)
	assert.Equal(t, env.gradeID, child.GradeID)
	assert.NoError(t, child.CheckPassword("s3cretPwd!"))

	// both accounts are queryable
	got, err := env.usrRepo.GetUserByEmail(ctx, "jane@test.com")
	require.NoError(t, err)
	assert.Equal(t, parent.ID, got.ID)
}

func Test_service_Redeem_singleUse(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	app := submit(t, env)
	_, link, err := env.svc.Approve(ctx, app.ID)
	require.NoError(t, err)
	token := tokenFromLink(t, link)

	_, _, err = env.svc.Redeem(ctx, token, "s3cretPwd!")
	require.NoError(t, err)

	_, _, err = env.svc.Redeem(ctx, token, "s3cretPwd!")
	assert.ErrorIs(t, err, enrollment.ErrInvalidToken)
}

func Test_service_Redeem_invalidToken(t *testing.T) {
	env := setup(t)

	_, _, err := env.svc.Redeem(context.Background(), "bogus", "s3cretPwd!")
	assert.ErrorIs(t, err, enrollment.ErrInvalidToken)
}

func Test_service_Redeem_expiredToken(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	defer func() { enrollment.NowFunc = time.Now }()

	app := submit(t, env)
	_, link, err := env.svc.Approve(ctx, app.ID)
	require.NoError(t, err)
	token := tokenFromLink(t, link)

	enrollment.NowFunc = func() time.Time {
		return time.Now().Add(env.conf.SignupTokenTTL + time.Hour)
	}

	_, _, err = env.svc.Redeem(ctx, token, "s3cretPwd!")
	assert.ErrorIs(t, err, enrollment.ErrTokenExpired)

	// the unit rolled back; the token record is still there
	_, _, err = env.svc.Redeem(ctx, token, "s3cretPwd!")
	assert.ErrorIs(t, err, enrollment.ErrTokenExpired)

	// and no accounts were provisioned
	_, err = env.usrRepo.GetUserByEmail(ctx, "jane@test.com")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func Test_service_Redeem_accountExists(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	testutil.CreateUser(t, env.usrRepo, "Jane Doe", "jane@test.com", "jane@test.com", "s3cretPwd!", user.RoleParent, true)

	app := submit(t, env)
	_, link, err := env.svc.Approve(ctx, app.ID)
	require.NoError(t, err)
	token := tokenFromLink(t, link)

	_, _, err = env.svc.Redeem(ctx, token, "s3cretPwd!")
	assert.ErrorIs(t, err, enrollment.ErrAccountExists)

	// rollback kept the token valid for a retry
	_, _, err = env.svc.Redeem(ctx, token, "s3cretPwd!")
	assert.ErrorIs(t, err, enrollment.ErrAccountExists)
}

// the full pipeline: apply -> approve -> signup.
func Test_service_endToEnd(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	app, err := env.svc.Submit(ctx, enrollment.NewApplication{
		ParentName:  "John Smith",
		ParentEmail: "john@test.com",
		ChildName:   "Jill Smith",
		GradeName:   "Grade 3",
	})
	require.NoError(t, err)

	pending, err := env.svc.Query(ctx, enrollment.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, link, err := env.svc.Approve(ctx, app.ID)
	require.NoError(t, err)

	parent, child, err := env.svc.Redeem(ctx, tokenFromLink(t, link), "n3wPassword!")
	require.NoError(t, err)
	assert.Equal(t, "john@test.com", parent.Email)
	assert.Equal(t, "child_john@test.com", child.Username)

	pending, err = env.svc.Query(ctx, enrollment.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
