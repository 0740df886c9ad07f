package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniroute/uniroute/core/university"
	"github.com/uniroute/uniroute/core/user"
)

func Test_universityApi_publicCatalog(t *testing.T) {
	uni, prog := createTestCatalog(t)

	t.Run("browse universities without a token", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/universities?search="+uni.Name[:8])
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var unis []university.University
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unis))
		require.NotEmpty(t, unis)
		for i := range unis {
			if unis[i].ID == uni.ID {
				return
			}
		}
		t.Errorf("university %s missing from listing: %s", uni.ID, rec.Body.String())
	})

	t.Run("browse programs of a university", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/universities/"+uni.ID+"/programs")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var progs []university.Program
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progs))
		require.Len(t, progs, 1)
		assert.Equal(t, prog.ID, progs[0].ID)
	})

	t.Run("unknown university", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/universities/nope/programs")
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})
}

func Test_universityApi_management(t *testing.T) {
	student := createTestUser(t, "Student", "student", "password", []string{user.RoleStudent}, "")
	admin := createTestUser(t, "Admin", "admin", "password", []string{user.RoleAdmin}, "")
	adminToken := getToken(t, admin)

	t.Run("admin required", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"name": "Sabanci University", "country": "Turkey", "city": "Istanbul"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/universities", getToken(t, student), body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("create, update, add program", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"name": "Sabanci University", "country": "Turkey", "city": "Istanbul"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/universities", adminToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var uni university.University
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uni))
		assert.True(t, uni.IsActive)

		body = marchallObj(t, map[string]string{"city": "Tuzla"})
		req, rec = newAuthRequest(http.MethodPut, "/v1/universities/"+uni.ID, adminToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uni))
		assert.Equal(t, "Tuzla", uni.City)
		assert.Equal(t, "Sabanci University", uni.Name, "unset fields keep their value")

		body = marchallObj(t, map[string]interface{}{
			"name": "Data Science", "degree": "master", "tuition_fee": 9000, "duration_years": 2,
		})
		req, rec = newAuthRequest(http.MethodPost, "/v1/universities/"+uni.ID+"/programs", adminToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var prog university.Program
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prog))
		assert.Equal(t, uni.ID, prog.UniversityID)
	})

	t.Run("rejects an unknown degree", func(t *testing.T) {
		uni, _ := createTestCatalog(t)
		body := marchallObj(t, map[string]interface{}{
			"name": "Alchemy", "degree": "wizard", "tuition_fee": 1, "duration_years": 3,
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/universities/"+uni.ID+"/programs", adminToken, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("delete program then university", func(t *testing.T) {
		uni, prog := createTestCatalog(t)

		req, rec := newAuthRequest(http.MethodDelete, "/v1/universities/"+uni.ID+"/programs/"+prog.ID, adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodDelete, "/v1/universities/"+uni.ID, adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		req, rec = newRequest(http.MethodGet, "/v1/universities/"+uni.ID)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})
}
