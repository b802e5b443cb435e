package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/floorreports/internal/mailer"
	appmw "github.com/floorreports/internal/middleware"
	"github.com/floorreports/internal/model"
)

// passwordMask stands in for a stored SMTP password in responses. Sending it
// back unchanged keeps the stored password.
const passwordMask = "********"

type settingsStore interface {
	Load(ctx context.Context) (*model.ReportSettings, error)
	Save(ctx context.Context, settings *model.ReportSettings, updatedBy string) error
}

type settingsMailer interface {
	Reconfigure(cfg *mailer.Config)
	SendTest(ctx context.Context, to string) error
	Ping(ctx context.Context) error
	CanEncrypt() error
}

// SettingsHandler serves the email report settings.
type SettingsHandler struct {
	BaseHandler
	settings settingsStore
	mailer   settingsMailer
}

func NewSettingsHandler(logger *slog.Logger, settings settingsStore, m settingsMailer) *SettingsHandler {
	return &SettingsHandler{BaseHandler: BaseHandler{Logger: logger}, settings: settings, mailer: m}
}

// Get returns the current settings with the SMTP password masked.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	err = h.writeJSON(w, http.StatusOK, envelope{"settings": masked(s), "issues": s.Issues()}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Update validates and saves the settings, then points the mailer at the
// new SMTP account. An empty or masked password keeps the stored one.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	s := model.DefaultReportSettings()
	if err := h.readJSON(w, r, s); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	if s.SMTPPass == "" || s.SMTPPass == passwordMask {
		current, err := h.settings.Load(r.Context())
		if err != nil {
			h.serverErrorResponse(w, r, err)
			return
		}
		s.SMTPPass = current.SMTPPass
	}

	if err := s.Normalize(); err != nil {
		h.failedValidationResponse(w, r, err)
		return
	}

	updatedBy := ""
	if u := appmw.UserFromContext(r.Context()); u != nil {
		updatedBy = u.Name
	}
	if err := h.settings.Save(r.Context(), s, updatedBy); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	h.mailer.Reconfigure(mailer.NewConfigFromSettings(s))
	h.Logger.Info("settings: report settings updated",
		"by", updatedBy, "daily", s.DailyEnabled, "weekly", s.WeeklyEnabled, "recipients", len(s.Recipients))

	err := h.writeJSON(w, http.StatusOK, envelope{"settings": masked(s), "issues": s.Issues()}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// TestEmail sends a test message. The address defaults to the first
// recipient.
func (h *SettingsHandler) TestEmail(w http.ResponseWriter, r *http.Request) {
	var input struct {
		To string `json:"to"`
	}
	if r.ContentLength > 0 {
		if err := h.readJSON(w, r, &input); err != nil {
			h.badRequestResponse(w, r, err)
			return
		}
	}

	s, err := h.settings.Load(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	to := input.To
	if to == "" && len(s.Recipients) > 0 {
		to = s.Recipients[0]
	}
	if _, err := mail.ParseAddress(to); err != nil {
		h.failedValidationResponse(w, r, errors.New("a valid test address is required"))
		return
	}

	h.mailer.Reconfigure(mailer.NewConfigFromSettings(s))
	if err := h.mailer.SendTest(r.Context(), to); err != nil {
		h.Logger.Warn("settings: test email failed", "to", to, "err", err)
		h.errorResponse(w, r, http.StatusBadGateway, "sending failed: "+err.Error())
		return
	}

	err = h.writeJSON(w, http.StatusOK, envelope{"sent": true, "to": to}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Validate lists configuration problems, whether a configured PGP key is
// usable and, when a host is set, whether the SMTP server accepts a login.
func (h *SettingsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	issues := s.Issues()
	h.mailer.Reconfigure(mailer.NewConfigFromSettings(s))
	if s.PGPPublicKey != "" {
		if err := h.mailer.CanEncrypt(); err != nil {
			issues = append(issues, "PGP public key is unusable: "+err.Error())
		}
	}

	smtpStatus := "skipped"
	if s.SMTPHost != "" && s.SMTPFromAddress != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		if err := h.mailer.Ping(ctx); err != nil {
			smtpStatus = "failed"
			issues = append(issues, "SMTP server check failed: "+err.Error())
		} else {
			smtpStatus = "ok"
		}
	}

	err = h.writeJSON(w, http.StatusOK, envelope{
		"valid":  len(issues) == 0,
		"issues": issues,
		"smtp":   smtpStatus,
	}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func masked(s *model.ReportSettings) *model.ReportSettings {
	c := s.Clone()
	if c.SMTPPass != "" {
		c.SMTPPass = passwordMask
	}
	return c
}
