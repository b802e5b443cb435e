package middleware

import (
	"context"
	"net/http"

	"github.com/floorreports/internal/model"
)

const SessionCookieName = "kvh_session"

type contextKey string

const contextKeyUser contextKey = "user"

// SessionReader retrieves the user ID for a session token.
type SessionReader interface {
	GetUserID(ctx context.Context, sessionID string) (string, error)
}

// userByIDer retrieves a user by ID.
type userByIDer interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Session validates the session cookie and puts the user in the request
// context. Requests without a valid session get a 401.
func Session(sessions SessionReader, users userByIDer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			userID, err := sessions.GetUserID(r.Context(), cookie.Value)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, user)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *model.User {
	v, _ := ctx.Value(contextKeyUser).(*model.User)
	return v
}

// RoleFromContext returns the authenticated user's role.
func RoleFromContext(ctx context.Context) model.Role {
	if u := UserFromContext(ctx); u != nil {
		return u.Role
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
