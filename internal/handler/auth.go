package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/floorreports/internal/auth"
	appmw "github.com/floorreports/internal/middleware"
	"github.com/floorreports/internal/model"
	"github.com/floorreports/internal/store"
)

type userFinder interface {
	GetByPinLookup(ctx context.Context, pinLookup string) (*model.User, string, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

type sessionCreatorDeleter interface {
	Create(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
	TTL() time.Duration
}

// AuthHandler handles pincode login for every dashboard role.
type AuthHandler struct {
	BaseHandler
	users         userFinder
	sessions      sessionCreatorDeleter
	pinKey        []byte
	secureCookies bool
}

func NewAuthHandler(logger *slog.Logger, users userFinder, sessions sessionCreatorDeleter, pinKey []byte, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		BaseHandler:   BaseHandler{Logger: logger},
		users:         users,
		sessions:      sessions,
		pinKey:        pinKey,
		secureCookies: secureCookies,
	}
}

type loginResponse struct {
	Name     string     `json:"name"`
	Role     model.Role `json:"role"`
	Redirect string     `json:"redirect"`
}

// Login checks a pincode and issues a session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Pincode string `json:"pincode"`
	}
	if err := h.readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	user, err := auth.Authenticate(r.Context(), h.users, h.pinKey, input.Pincode)
	switch {
	case errors.Is(err, auth.ErrBadCredentials), errors.Is(err, store.ErrNotFound):
		h.errorResponse(w, r, http.StatusUnauthorized, "invalid pincode")
		return
	case err != nil:
		h.serverErrorResponse(w, r, err)
		return
	}

	sessionID, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.users.UpdateLastLogin(r.Context(), user.ID); err != nil {
		h.Logger.Warn("auth: updating last login failed", "user", user.ID, "err", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     appmw.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(h.sessions.TTL()),
	})
	h.Logger.Info("auth: login", "user", user.ID, "role", user.Role)

	err = h.writeJSON(w, http.StatusOK, loginResponse{
		Name:     user.Name,
		Role:     user.Role,
		Redirect: user.Role.DashboardPath(),
	}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Logout deletes the current session and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(appmw.SessionCookieName); err == nil {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			h.Logger.Warn("auth: deleting session failed", "err", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:    appmw.SessionCookieName,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the logged-in user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := appmw.UserFromContext(r.Context())
	if user == nil {
		h.errorResponse(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	err := h.writeJSON(w, http.StatusOK, envelope{
		"user":     user,
		"redirect": user.Role.DashboardPath(),
	}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
