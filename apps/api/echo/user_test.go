package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniroute/uniroute/core/user"
)

func Test_userApi_login(t *testing.T) {
	pwd := "LePapa&LaMama3"
	usr := createTestUser(t, "Awe Limbo", "awelimbo", pwd, []string{user.RoleStudent}, "")
	inactive := createTestUser(t, "N Dog", "ndoggg", pwd, []string{user.RoleStudent}, "")
	if _, err := usrSvc.Update(context.Background(), inactive.ID, user.UpdateUser{IsActive: boolPtr(false)}); err != nil {
		t.Fatalf("deactivating user: %v", err)
	}

	tests := []httpTest{
		{
			name: "empty body", method: http.MethodPost, path: "/v1/users/login",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login",
			body:     marchallObj(t, map[string]string{"username": "ghost", "password": pwd}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login",
			body:     marchallObj(t, map[string]string{"username": usr.Username, "password": "nope nope"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", method: http.MethodPost, path: "/v1/users/login",
			body:     marchallObj(t, map[string]string{"username": inactive.Username, "password": pwd}),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("login by username", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"username": usr.Username, "password": pwd})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)

		// the token works
		req, rec = newAuthRequest(http.MethodPost, "/v1/users/token-refresh", resp.Token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("login by email", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"username": usr.Email, "password": pwd})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func Test_userApi_accessControl(t *testing.T) {
	pwd := "LePapa&LaMama3"
	student := createTestUser(t, "Student", "student", pwd, []string{user.RoleStudent}, "")
	admin := createTestUser(t, "Admin", "admin", pwd, []string{user.RoleAdmin}, "")

	t.Run("listing is admin only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users", getToken(t, student))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("users can read themselves", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+student.ID, getToken(t, student))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got user.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, student.ID, got.ID)
	})

	t.Run("users cannot read others", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+admin.ID, getToken(t, student))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})

	t.Run("admins can read anyone", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+student.ID, getToken(t, admin))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("users cannot grant themselves roles", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"roles": []string{user.RoleAdmin}})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, getToken(t, student), body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("admins cannot delete themselves", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+admin.ID, getToken(t, admin))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})
}

func boolPtr(b bool) *bool { return &b }
