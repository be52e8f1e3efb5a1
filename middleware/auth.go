package middleware

import (
	"context"
	"net/http"

	"github.com/openshelf/library-backend/session"
)

// Cookie names set by login.
const (
	SessionCookie = "id"
	NameCookie    = "name"
)

type contextKey string

const sessionUserKey contextKey = "sessionUser"

// RequireRole resolves the session cookie and admits the request only when
// the session's role matches. On failure the session (if any) is dropped,
// auth cookies are cleared and the client is redirected to /, matching the
// page-flow behavior of the login system.
func RequireRole(store *session.Store, role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(SessionCookie); err == nil {
				if u, ok := store.Get(cookie.Value); ok && u.Role == role {
					ctx := context.WithValue(r.Context(), sessionUserKey, u)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				store.Remove(cookie.Value)
			}
			ClearAuthCookies(w)
			http.Redirect(w, r, "/", http.StatusFound)
		})
	}
}

// SessionUserFromContext returns the session user placed by RequireRole.
func SessionUserFromContext(ctx context.Context) (session.User, bool) {
	u, ok := ctx.Value(sessionUserKey).(session.User)
	return u, ok
}

func ClearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.SetCookie(w, &http.Cookie{Name: NameCookie, Value: "", Path: "/", MaxAge: -1})
}
