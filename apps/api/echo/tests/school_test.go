package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextcentury/backend/core/school"
	"github.com/nextcentury/backend/core/user"
	testutil "github.com/nextcentury/backend/tests"
)

func Test_schoolApi_grades(t *testing.T) {
	app := setup(t)

	req, rec := newRequest(http.MethodGet, "/api/grades")
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var grades []school.Grade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grades))
	require.Len(t, grades, 1)
	assert.Equal(t, "Grade 3", grades[0].Name)
}

func Test_schoolApi_subjects(t *testing.T) {
	app := setup(t)
	math := app.schoolRepo.SeedSubject("Mathematics", app.grade.ID)
	otherGrade := app.schoolRepo.SeedGrade("Grade 4")
	app.schoolRepo.SeedSubject("Science", otherGrade.ID)

	req, rec := newRequest(http.MethodGet, "/api/subjects")
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var subjects []school.Subject
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subjects))
	assert.Len(t, subjects, 2)

	req, rec = newRequest(http.MethodGet, "/api/subjects/grade/"+app.grade.ID)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	subjects = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subjects))
	require.Len(t, subjects, 1)
	assert.Equal(t, math.ID, subjects[0].ID)
}

func Test_schoolApi_lessons(t *testing.T) {
	app := setup(t)
	admin := app.createAdmin(t)
	adminToken := getToken(t, admin)
	math := app.schoolRepo.SeedSubject("Mathematics", app.grade.ID)
	otherGrade := app.schoolRepo.SeedGrade("Grade 4")
	science := app.schoolRepo.SeedSubject("Science", otherGrade.ID)

	newLessonBody := marchallObj(t, school.NewLesson{
		Title:       "Fractions",
		SubjectID:   math.ID,
		ContentText: "Halves and quarters.",
	})

	// writes are admin-only
	req, rec := newRequest(http.MethodPost, "/api/lessons/grade/"+app.grade.ID, newLessonBody)
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)

	req, rec = newAuthRequest(http.MethodPost, "/api/lessons/grade/"+app.grade.ID, adminToken, newLessonBody)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var lsn school.Lesson
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lsn))
	assert.Equal(t, "Fractions", lsn.Title)
	assert.Equal(t, admin.ID, lsn.CreatedBy)

	// the subject must belong to the target grade
	mismatch := marchallObj(t, school.NewLesson{Title: "Vulcanology", SubjectID: science.ID, ContentText: "Lava."})
	req, rec = newAuthRequest(http.MethodPost, "/api/lessons/grade/"+app.grade.ID, adminToken, mismatch)
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"subject_id": school.ErrSubjectGradeMismatch.Error()}),
	}, rec)

	// public reads
	req, rec = newRequest(http.MethodGet, "/api/lessons/"+lsn.ID)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = newRequest(http.MethodGet, "/api/lessons/subject/"+math.ID)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var lessons []school.Lesson
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lessons))
	assert.Len(t, lessons, 1)

	req, rec = newRequest(http.MethodGet, "/api/lessons/grade/"+otherGrade.ID)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	// update and destroy
	req, rec = newAuthRequest(http.MethodPut, "/api/lessons/"+lsn.ID, adminToken, []byte(`{"title":"Fractions II"}`))
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lsn))
	assert.Equal(t, "Fractions II", lsn.Title)
	assert.Equal(t, "Halves and quarters.", lsn.ContentText)

	req, rec = newAuthRequest(http.MethodDelete, "/api/lessons/"+lsn.ID, adminToken)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req, rec = newRequest(http.MethodGet, "/api/lessons/"+lsn.ID)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_schoolApi_assignments(t *testing.T) {
	app := setup(t)
	admin := app.createAdmin(t)
	adminToken := getToken(t, admin)
	math := app.schoolRepo.SeedSubject("Mathematics", app.grade.ID)

	body := marchallObj(t, school.NewAssignment{
		Title:     "Worksheet 1",
		SubjectID: math.ID,
		GradeID:   app.grade.ID,
		DueDate:   time.Now().UTC().Add(7 * 24 * time.Hour),
	})
	req, rec := newAuthRequest(http.MethodPost, "/api/assignments", adminToken, body)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var asg school.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &asg))

	// missing due date
	req, rec = newAuthRequest(http.MethodPost, "/api/assignments", adminToken,
		marchallObj(t, school.NewAssignment{Title: "No deadline", SubjectID: math.ID, GradeID: app.grade.ID}))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req, rec = newRequest(http.MethodGet, "/api/assignments/grade/"+app.grade.ID)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var assignments []school.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assignments))
	assert.Len(t, assignments, 1)

	req, rec = newRequest(http.MethodGet, "/api/assignments/"+asg.ID)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = newAuthRequest(http.MethodDelete, "/api/assignments/"+asg.ID, adminToken)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req, rec = newRequest(http.MethodGet, "/api/assignments/"+asg.ID)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func newUploadRequest(t *testing.T, path, token, filename, content string, fields map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for key, val := range fields {
		require.NoError(t, writer.WriteField(key, val))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func Test_schoolApi_resources(t *testing.T) {
	app := setup(t)
	admin := app.createAdmin(t)
	adminToken := getToken(t, admin)

	req, rec := newUploadRequest(t, "/api/resources", adminToken,
		"syllabus.pdf", "%PDF-1.4 fake", map[string]string{"title": "Syllabus", "description": "Term 1"})
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res school.Resource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "Syllabus", res.Title)
	assert.Equal(t, "/api/resources/"+res.ID+"/download", res.FileURL)

	// a file part is required
	req, rec = newUploadRequest(t, "/api/resources", adminToken, "", "", map[string]string{"title": "No file"})
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// so is a title, and the saved file must not linger
	req, rec = newUploadRequest(t, "/api/resources", adminToken, "orphan.txt", "data", nil)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	entries, err := os.ReadDir(app.conf.UploadDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	req, rec = newRequest(http.MethodGet, "/api/resources")
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resources []school.Resource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resources))
	require.Len(t, resources, 1)

	req, rec = newRequest(http.MethodGet, "/api/resources/"+res.ID+"/download")
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4 fake", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "syllabus.pdf")

	req, rec = newAuthRequest(http.MethodDelete, "/api/resources/"+res.ID, adminToken)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	entries, err = os.ReadDir(app.conf.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func Test_schoolApi_stats(t *testing.T) {
	app := setup(t)
	admin := app.createAdmin(t)
	teacher := app.createTeacher(t)
	testutil.CreateUser(t, app.usrRepo, "Student", "stude1", "student@test.com", "s3cretPwd!", user.RoleStudent, true)

	req, rec := newAuthRequest(http.MethodGet, "/api/admin/stats", getToken(t, teacher))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req, rec = newAuthRequest(http.MethodGet, "/api/admin/stats", getToken(t, admin))
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats school.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.TotalUsers)
	assert.Equal(t, 1, stats.ActiveStudents)
	assert.Equal(t, 0, stats.PendingApplications)
}
