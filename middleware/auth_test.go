package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/library-backend/middleware"
	"github.com/openshelf/library-backend/session"
)

func protectedServer(store *session.Store, role string) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := middleware.SessionUserFromContext(r.Context())
		if !ok {
			http.Error(w, "no session user in context", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(u.Email))
	})
	return middleware.RequireRole(store, role)(next)
}

func TestRequireRoleAdmitsMatchingRole(t *testing.T) {
	store := session.NewStore()
	store.Set("tok", session.User{Email: "admin@example.com", Role: "admin"})
	srv := protectedServer(store, "admin")

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "tok"})
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin@example.com", w.Body.String())
}

func TestRequireRoleRedirectsWithoutCookie(t *testing.T) {
	store := session.NewStore()
	srv := protectedServer(store, "admin")

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestRequireRoleDropsSessionOnRoleMismatch(t *testing.T) {
	store := session.NewStore()
	store.Set("tok", session.User{Email: "jane@example.com", Role: "student"})
	srv := protectedServer(store, "admin")

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "tok"})
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	// The mismatched session is removed, not just rejected.
	_, ok := store.Get("tok")
	assert.False(t, ok)
}

func TestRequireRoleRedirectsOnUnknownToken(t *testing.T) {
	store := session.NewStore()
	srv := protectedServer(store, "student")

	req := httptest.NewRequest(http.MethodGet, "/student", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "stale"})
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}
