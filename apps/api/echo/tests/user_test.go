package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/nextcentury/backend/apps/api/echo"
	"github.com/nextcentury/backend/core/user"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	app.createTeacher(t)

	tests := []httpTest{
		{
			name: "empty body", method: http.MethodPost, path: "/api/users/login",
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/api/users/login",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ghost@test.com", Password: "s3cretPwd!"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/users/login",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "teach1", Password: "wrongPwd!"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "by username", method: http.MethodPost, path: "/api/users/login",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "teach1", Password: "s3cretPwd!"}),
			wantCode: http.StatusOK,
		},
		{
			name: "by email, mixed case", method: http.MethodPost, path: "/api/users/login",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "Teacher@Test.com", Password: "s3cretPwd!"}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.server.ServeHTTP(rec, req)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}
			if rec.Code != tt.wantCode {
				t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userApi_login_deactivated(t *testing.T) {
	app := setup(t)
	usr := app.createTeacher(t)
	inactive := false
	_, err := app.usrRepo.UpdateUser(context.Background(), usr, &inactive)
	require.NoError(t, err)

	body := marchallObj(t, echoapi.LoginRequest{Username: "teach1", Password: "s3cretPwd!"})
	req, rec := newRequest(http.MethodPost, "/api/users/login", body)
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusForbidden,
		wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
	}, rec)
}

func Test_userApi_tokenRefresh(t *testing.T) {
	app := setup(t)
	teacher := app.createTeacher(t)

	req, rec := newAuthRequest(http.MethodPost, "/api/users/token-refresh", getToken(t, teacher))
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	// anonymous refresh is rejected
	req, rec = newRequest(http.MethodPost, "/api/users/token-refresh")
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
}

func Test_userApi_register(t *testing.T) {
	app := setup(t)
	admin := app.createAdmin(t)
	teacher := app.createTeacher(t)

	newUserBody := marchallObj(t, user.NewUser{
		Name:            "John Smith",
		Email:           "john@test.com",
		Role:            user.RoleTeacher,
		Password:        "s3cretPwd!",
		PasswordConfirm: "s3cretPwd!",
	})

	tests := []httpTest{
		{
			name: "anonymous", method: http.MethodPost, path: "/api/users/register",
			body: newUserBody, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "non-admin", method: http.MethodPost, path: "/api/users/register",
			body: newUserBody, token: getToken(t, teacher), wantCode: http.StatusForbidden,
		},
		{
			name: "admin", method: http.MethodPost, path: "/api/users/register",
			body: newUserBody, token: getToken(t, admin), wantCode: http.StatusCreated,
		},
		{
			name: "duplicate email", method: http.MethodPost, path: "/api/users/register",
			body: newUserBody, token: getToken(t, admin), wantCode: http.StatusBadRequest,
		},
		{
			name: "bad role", method: http.MethodPost, path: "/api/users/register",
			body: []byte(`{"name":"X Y","email":"xy@test.com","role":"principal","password":"s3cretPwd!","password_confirm":"s3cretPwd!"}`),
			token: getToken(t, admin), wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			} else if rec.Code != tt.wantCode {
				t.Errorf("failed! code = %v; wantCode %v; body %v", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func Test_userApi_detail(t *testing.T) {
	app := setup(t)
	admin := app.createAdmin(t)
	teacher := app.createTeacher(t)
	adminToken := getToken(t, admin)
	teacherToken := getToken(t, teacher)

	// users can retrieve themselves, admins anyone
	req, rec := newAuthRequest(http.MethodGet, "/api/users/"+teacher.ID, teacherToken)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got user.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, teacher.Username, got.Username)

	req, rec = newAuthRequest(http.MethodGet, "/api/users/"+teacher.ID, adminToken)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// but not each other
	req, rec = newAuthRequest(http.MethodGet, "/api/users/"+admin.ID, teacherToken)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// unknown id is a 404 for admin
	req, rec = newAuthRequest(http.MethodGet, "/api/users/7e57ed00-0000-4000-8000-000000000000", adminToken)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_userApi_update(t *testing.T) {
	app := setup(t)
	admin := app.createAdmin(t)
	teacher := app.createTeacher(t)

	// users may update their own profile fields
	req, rec := newAuthRequest(http.MethodPut, "/api/users/"+teacher.ID, getToken(t, teacher),
		[]byte(`{"name":"Renamed Teacher"}`))
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got user.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Renamed Teacher", got.Name)

	// but not privileged fields
	req, rec = newAuthRequest(http.MethodPut, "/api/users/"+teacher.ID, getToken(t, teacher),
		[]byte(`{"is_active":false}`))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req, rec = newAuthRequest(http.MethodPut, "/api/users/"+teacher.ID, getToken(t, teacher),
		[]byte(`{"email":"sneaky@test.com"}`))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// admins may
	req, rec = newAuthRequest(http.MethodPut, "/api/users/"+teacher.ID, getToken(t, admin),
		[]byte(`{"is_active":false}`))
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.IsActive)
}

func Test_userApi_destroy(t *testing.T) {
	app := setup(t)
	admin := app.createAdmin(t)
	teacher := app.createTeacher(t)
	adminToken := getToken(t, admin)

	// admins cannot delete themselves
	req, rec := newAuthRequest(http.MethodDelete, "/api/users/"+admin.ID, adminToken)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// non-admins cannot delete at all, not even themselves
	req, rec = newAuthRequest(http.MethodDelete, "/api/users/"+teacher.ID, getToken(t, teacher))
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req, rec = newAuthRequest(http.MethodDelete, "/api/users/"+teacher.ID, adminToken)
	app.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req, rec = newAuthRequest(http.MethodGet, "/api/users/"+teacher.ID, adminToken)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_userApi_destroyMultiple(t *testing.T) {
	app := setup(t)
	admin := app.createAdmin(t)
	teacher := app.createTeacher(t)
	adminToken := getToken(t, admin)

	tests := []httpTest{
		{
			name: "no ids", method: http.MethodDelete, path: "/api/users",
			token: adminToken, wantCode: http.StatusBadRequest,
		},
		{
			name: "self in batch", method: http.MethodDelete, path: "/api/users?ids=" + teacher.ID + "," + admin.ID,
			token: adminToken, wantCode: http.StatusForbidden,
		},
		{
			name: "ok", method: http.MethodDelete, path: "/api/users?ids=" + teacher.ID,
			token: adminToken, wantCode: http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			app.server.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("failed! code = %v; wantCode %v; body %v", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func Test_userApi_queryRoles(t *testing.T) {
	app := setup(t)
	admin := app.createAdmin(t)

	req, rec := newAuthRequest(http.MethodGet, "/api/users/roles", getToken(t, admin))
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, user.AllRoles)}, rec)
}
