package users

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolodex-app/rolodex/internal/shared"
)

func newUserRouter(repo Repository) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, _ := newTestUserService(repo, &fakeHasher{})
	h := NewHandler(logger, svc, time.Minute)
	r := chi.NewRouter()
	r.Route("/users", h.MountRoutes)
	return r
}

func withPrincipal(r *http.Request, id uuid.UUID, role string) *http.Request {
	p := &shared.Principal{ID: id, Username: "caller", Role: role}
	return r.WithContext(shared.ContextWithPrincipal(r.Context(), p))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return body
}

func TestGetUserProjections(t *testing.T) {
	u, repo := seededUser("ada")
	router := newUserRouter(repo)
	path := "/users/" + u.ID.String()

	// The owner sees the full record.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("GET", path, nil), u.ID, shared.RoleUser))
	require.Equal(t, http.StatusOK, rec.Code)
	ownerBody := decodeBody(t, rec)
	assert.Equal(t, u.Email, ownerBody["email"])
	ownerTag := rec.Header().Get("ETag")

	// A stranger sees the public projection, and a different entity tag,
	// because the tag covers what was actually served.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("GET", path, nil), uuid.New(), shared.RoleUser))
	require.Equal(t, http.StatusOK, rec.Code)
	strangerBody := decodeBody(t, rec)
	assert.Equal(t, "ada", strangerBody["username"])
	assert.NotContains(t, strangerBody, "email")
	assert.NotContains(t, strangerBody, "is_admin")
	assert.NotEqual(t, ownerTag, rec.Header().Get("ETag"))

	// Admins see everything.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("GET", path, nil), uuid.New(), shared.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, u.Email, decodeBody(t, rec)["email"])
}

func TestMeServesTheCallerRecord(t *testing.T) {
	u, repo := seededUser("ada")
	router := newUserRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("GET", "/users/me", nil), u.ID, shared.RoleUser))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, u.ID.String(), body["id"])
	assert.Equal(t, u.Email, body["email"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/users/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListProjectionIsUniform(t *testing.T) {
	u, repo := seededUser("ada")
	other, _ := seededUser("grace")
	repo.seed(other)
	router := newUserRouter(repo)

	// A plain user gets the public projection for every row, their own
	// record included.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("GET", "/users?limit=10", nil), u.ID, shared.RoleUser))
	require.Equal(t, http.StatusOK, rec.Code)
	var publicRows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &publicRows))
	require.Len(t, publicRows, 2)
	for _, row := range publicRows {
		assert.NotContains(t, row, "email")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("GET", "/users?limit=10", nil), uuid.New(), shared.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	var adminRows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &adminRows))
	require.Len(t, adminRows, 2)
	for _, row := range adminRows {
		assert.Contains(t, row, "email")
	}
}

func TestPatchUserPermissions(t *testing.T) {
	u, repo := seededUser("ada")
	router := newUserRouter(repo)
	path := "/users/" + u.ID.String()

	// A stranger may not edit.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("PATCH", path, bytes.NewBufferString(`{"phone":"+1-555-0100"}`)), uuid.New(), shared.RoleUser))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The owner may, and sees the canonical username come back.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("PATCH", path, bytes.NewBufferString(`{"username":"AdaL"}`)), u.ID, shared.RoleUser))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "adal", decodeBody(t, rec)["username"])

	// Privilege escalation by the owner is rejected.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("PATCH", path, bytes.NewBufferString(`{"is_admin":true}`)), u.ID, shared.RoleUser))
	body := decodeBody(t, rec)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, body["detail"], "is_admin")

	// An admin may grant the flag.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("PATCH", path, bytes.NewBufferString(`{"is_admin":true}`)), uuid.New(), shared.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["is_admin"])
}

func TestPatchUserValidation(t *testing.T) {
	u, repo := seededUser("ada")
	router := newUserRouter(repo)
	path := "/users/" + u.ID.String()

	cases := map[string]string{
		"short password": `{"password":"short"}`,
		"bad email":      `{"email":"not-an-email"}`,
		"long username":  `{"username":"` + string(bytes.Repeat([]byte("a"), 51)) + `"}`,
		"long phone":     `{"phone":"` + string(bytes.Repeat([]byte("9"), 21)) + `"}`,
		"bad date":       `{"birth_date":"10-05-1990"}`,
	}
	for name, payload := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("PATCH", path, bytes.NewBufferString(payload)), u.ID, shared.RoleUser))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestPatchUserBirthDateRoundTrip(t *testing.T) {
	u, repo := seededUser("ada")
	router := newUserRouter(repo)
	path := "/users/" + u.ID.String()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("PATCH", path, bytes.NewBufferString(`{"birth_date":"1815-12-10"}`)), u.ID, shared.RoleUser))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1815-12-10", decodeBody(t, rec)["birth_date"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("PATCH", path, bytes.NewBufferString(`{"birth_date":null}`)), u.ID, shared.RoleUser))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "birth_date")
}

func TestDeleteUserAdminOnly(t *testing.T) {
	u, repo := seededUser("ada")
	router := newUserRouter(repo)
	path := "/users/" + u.ID.String()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("DELETE", path, nil), u.ID, shared.RoleUser))
	assert.Equal(t, http.StatusForbidden, rec.Code, "even the owner may not delete their record")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("DELETE", path, nil), uuid.New(), shared.RoleAdmin))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withPrincipal(httptest.NewRequest("GET", path, nil), uuid.New(), shared.RoleAdmin))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
