package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	appmw "github.com/floorreports/internal/middleware"
	"github.com/floorreports/internal/model"
	"github.com/floorreports/internal/scheduler"
	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type dispatcher interface {
	Status() scheduler.Status
	Trigger(ctx context.Context, t model.ReportType, sentBy string) (*model.SendOutcome, error)
	Start()
	Stop()
}

type sendHistory interface {
	RecentHistory(ctx context.Context, limit int) ([]model.SendOutcome, error)
}

type reportGenerator interface {
	Generate(ctx context.Context, t model.ReportType, ref time.Time) (*model.Document, error)
}

// ReportsHandler exposes the dispatcher status, the send history, manual
// sends and PDF previews.
type ReportsHandler struct {
	BaseHandler
	scheduler dispatcher
	history   sendHistory
	generator reportGenerator
	loc       *time.Location
	now       func() time.Time
}

func NewReportsHandler(logger *slog.Logger, s dispatcher, history sendHistory, gen reportGenerator, loc *time.Location) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: BaseHandler{Logger: logger},
		scheduler:   s,
		history:     history,
		generator:   gen,
		loc:         loc,
		now:         time.Now,
	}
}

func (h *ReportsHandler) Status(w http.ResponseWriter, r *http.Request) {
	err := h.writeJSON(w, http.StatusOK, envelope{"scheduler": h.scheduler.Status()}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// History returns the most recent send attempts, newest first.
func (h *ReportsHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.badRequestResponse(w, r, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.history.RecentHistory(r.Context(), limit)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.SendOutcome{}
	}

	err = h.writeJSON(w, http.StatusOK, envelope{"history": entries}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Send dispatches a report right away.
func (h *ReportsHandler) Send(w http.ResponseWriter, r *http.Request) {
	t, err := model.ParseReportType(chi.URLParam(r, "type"))
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}

	sentBy := "admin"
	if u := appmw.UserFromContext(r.Context()); u != nil {
		sentBy = u.Name
	}

	outcome, err := h.scheduler.Trigger(r.Context(), t, sentBy)
	var cerr *scheduler.ConfigError
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		h.errorResponse(w, r, http.StatusConflict, err.Error())
		return
	case errors.As(err, &cerr):
		h.failedValidationResponse(w, r, err)
		return
	case err != nil && outcome == nil:
		h.serverErrorResponse(w, r, err)
		return
	case err != nil:
		h.Logger.Warn("reports: manual send failed", "type", t, "by", sentBy, "err", err)
		h.errorResponse(w, r, http.StatusBadGateway, envelope{"message": err.Error(), "outcome": outcome})
		return
	}

	err = h.writeJSON(w, http.StatusOK, envelope{"outcome": outcome}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Preview renders a report without sending it. The optional date query
// parameter (YYYY-MM-DD) picks the reference day, defaulting to today.
func (h *ReportsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	t, err := model.ParseReportType(chi.URLParam(r, "type"))
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}

	ref := h.now().In(h.loc)
	if v := r.URL.Query().Get("date"); v != "" {
		ref, err = time.ParseInLocation(time.DateOnly, v, h.loc)
		if err != nil {
			h.badRequestResponse(w, r, errors.New("date must be formatted as YYYY-MM-DD"))
			return
		}
	}
	y, m, d := ref.Date()
	ref = time.Date(y, m, d, 0, 0, 0, 0, h.loc)

	doc, err := h.generator.Generate(r.Context(), t, ref)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

func (h *ReportsHandler) StartScheduler(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Start()
	h.Status(w, r)
}

// StopScheduler stops polling. A send already in progress completes.
func (h *ReportsHandler) StopScheduler(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	h.Status(w, r)
}
