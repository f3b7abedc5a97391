package tests

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/nextcentury/backend/apps/api/echo"
	"github.com/nextcentury/backend/core"
	"github.com/nextcentury/backend/core/enrollment"
	"github.com/nextcentury/backend/core/school"
	"github.com/nextcentury/backend/core/user"
	emailsvc "github.com/nextcentury/backend/services/email"
	logsvc "github.com/nextcentury/backend/services/logger"
	inmemdb "github.com/nextcentury/backend/storage/database/inmem"
	testutil "github.com/nextcentury/backend/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server *Server
	conf   *core.Config

	usrRepo    *inmemdb.UserRepository
	enrollRepo *inmemdb.EnrollmentRepository
	schoolRepo *inmemdb.SchoolRepository

	usrSvc    user.Service
	enrollSvc enrollment.Service
	schoolSvc school.Service

	grade school.Grade
}

func setup(t *testing.T) *testApp {
	t.Helper()

	conf := testutil.NewConfig()
	conf.UploadDir = t.TempDir()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}

	usrRepo := inmemdb.NewUserRepository(db)
	enrollRepo := inmemdb.NewEnrollmentRepository(db)
	schoolRepo := inmemdb.NewSchoolRepository(db)
	grade := schoolRepo.SeedGrade("Grade 3")

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ClearSentMessages()
	logger := logsvc.NewTestLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags))

	usrSvc := user.NewService(db, usrRepo, conf)
	enrollSvc := enrollment.NewService(db, enrollRepo, usrRepo, mailSvc, logger, conf)
	schoolSvc := school.NewService(db, schoolRepo)

	validate, translator := testutil.NewValidator()

	server := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		EnrollmentSvc:  enrollSvc,
		SchoolSvc:      schoolSvc,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})

	return &testApp{
		server:     server,
		conf:       conf,
		usrRepo:    usrRepo,
		enrollRepo: enrollRepo,
		schoolRepo: schoolRepo,
		usrSvc:     usrSvc,
		enrollSvc:  enrollSvc,
		schoolSvc:  schoolSvc,
		grade:      grade,
	}
}

func (ta *testApp) createAdmin(t *testing.T) user.User {
	return testutil.CreateUser(t, ta.usrRepo, "Admin", "admin1", "admin@test.com", "s3cretPwd!", user.RoleAdmin, true)
}

func (ta *testApp) createTeacher(t *testing.T) user.User {
	return testutil.CreateUser(t, ta.usrRepo, "Teacher", "teach1", "teacher@test.com", "s3cretPwd!", user.RoleTeacher, true)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
