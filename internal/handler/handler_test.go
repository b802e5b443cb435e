package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/floorreports/internal/auth"
	"github.com/floorreports/internal/mailer"
	appmw "github.com/floorreports/internal/middleware"
	"github.com/floorreports/internal/model"
	"github.com/floorreports/internal/scheduler"
	"github.com/floorreports/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func asAdmin(r *http.Request) *http.Request {
	return r.WithContext(appmw.WithUser(r.Context(), &model.User{ID: "u1", Name: "Marieke", Role: model.RoleAdmin}))
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	cases := []struct {
		name       string
		db, prod   pinger
		wantStatus int
		want       string
	}{
		{"all up", fakePinger{}, fakePinger{}, http.StatusOK, "ok"},
		{"no production", fakePinger{}, nil, http.StatusOK, "ok"},
		{"db down", fakePinger{errors.New("closed")}, fakePinger{}, http.StatusServiceUnavailable, "degraded"},
		{"production down", fakePinger{}, fakePinger{errors.New("refused")}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Health(tc.db, tc.prod)(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.want, decode(t, rec)["status"])
		})
	}
}

var pinKey = []byte("test-pin-key")

type fakeUserStore struct {
	byLookup map[string]*model.User
	hashes   map[string]string
	logins   []string
}

func newFakeUserStore(t *testing.T, pin string, u *model.User) *fakeUserStore {
	t.Helper()
	hash, err := auth.Hash(pin)
	require.NoError(t, err)
	lookup := auth.PinLookup(pinKey, pin)
	return &fakeUserStore{
		byLookup: map[string]*model.User{lookup: u},
		hashes:   map[string]string{lookup: hash},
	}
}

func (f *fakeUserStore) GetByPinLookup(_ context.Context, lookup string) (*model.User, string, error) {
	u, ok := f.byLookup[lookup]
	if !ok {
		return nil, "", store.ErrNotFound
	}
	return u, f.hashes[lookup], nil
}

func (f *fakeUserStore) UpdateLastLogin(_ context.Context, id string) error {
	f.logins = append(f.logins, id)
	return nil
}

type fakeSessionStore struct {
	created []string
	deleted []string
}

func (f *fakeSessionStore) Create(_ context.Context, userID string) (string, error) {
	f.created = append(f.created, userID)
	return "sess-" + userID, nil
}

func (f *fakeSessionStore) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSessionStore) TTL() time.Duration { return 5 * time.Minute }

func TestLogin(t *testing.T) {
	users := newFakeUserStore(t, "4821", &model.User{ID: "u7", Name: "Kees", Role: model.RoleForklift})
	sessions := &fakeSessionStore{}
	h := NewAuthHandler(testLogger, users, sessions, pinKey, true)

	t.Run("valid pincode", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"pincode":"4821"}`)))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode(t, rec)
		assert.Equal(t, "Kees", body["name"])
		assert.Equal(t, "forklift", body["role"])
		assert.Equal(t, "/dashboard/forklift/index.html", body["redirect"])

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, appmw.SessionCookieName, cookies[0].Name)
		assert.Equal(t, "sess-u7", cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, []string{"u7"}, users.logins)
	})

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"wrong pincode", `{"pincode":"1111"}`, http.StatusUnauthorized},
		{"letters", `{"pincode":"abcd"}`, http.StatusUnauthorized},
		{"malformed", `{"pincode":`, http.StatusBadRequest},
		{"unknown field", `{"pin":"4821"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(tc.body)))
			assert.Equal(t, tc.status, rec.Code)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestLogout(t *testing.T) {
	sessions := &fakeSessionStore{}
	h := NewAuthHandler(testLogger, &fakeUserStore{}, sessions, pinKey, false)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(&http.Cookie{Name: appmw.SessionCookieName, Value: "sess-u7"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"sess-u7"}, sessions.deleted)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestMe(t *testing.T) {
	h := NewAuthHandler(testLogger, &fakeUserStore{}, &fakeSessionStore{}, pinKey, false)

	rec := httptest.NewRecorder()
	h.Me(rec, asAdmin(httptest.NewRequest(http.MethodGet, "/api/me", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/dashboard/admin/index.html", decode(t, rec)["redirect"])

	rec = httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type fakeSettingsStore struct {
	current   *model.ReportSettings
	saved     *model.ReportSettings
	updatedBy string
}

func (f *fakeSettingsStore) Load(context.Context) (*model.ReportSettings, error) {
	return f.current.Clone(), nil
}

func (f *fakeSettingsStore) Save(_ context.Context, s *model.ReportSettings, by string) error {
	f.saved = s.Clone()
	f.current = s.Clone()
	f.updatedBy = by
	return nil
}

type fakeMailer struct {
	cfg        *mailer.Config
	sentTo     []string
	sendErr    error
	pingErr    error
	encryptErr error
}

func (f *fakeMailer) Reconfigure(cfg *mailer.Config) { f.cfg = cfg }

func (f *fakeMailer) SendTest(_ context.Context, to string) error {
	f.sentTo = append(f.sentTo, to)
	return f.sendErr
}

func (f *fakeMailer) Ping(context.Context) error { return f.pingErr }

func (f *fakeMailer) CanEncrypt() error { return f.encryptErr }

func storedSettings() *model.ReportSettings {
	s := model.DefaultReportSettings()
	s.DailyEnabled = true
	s.Recipients = []string{"jan@kvh.nl"}
	s.SMTPHost = "smtp.kvh.nl"
	s.SMTPUser = "rapporten"
	s.SMTPPass = "geheim"
	s.SMTPFromAddress = "rapporten@kvh.nl"
	return s
}

func TestSettingsGetMasksPassword(t *testing.T) {
	h := NewSettingsHandler(testLogger, &fakeSettingsStore{current: storedSettings()}, &fakeMailer{})

	rec := httptest.NewRecorder()
	h.Get(rec, asAdmin(httptest.NewRequest(http.MethodGet, "/api/admin/report-settings", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "geheim")
	settings := decode(t, rec)["settings"].(map[string]any)
	assert.Equal(t, passwordMask, settings["smtpPass"])
	assert.Equal(t, "22:00", settings["sendTime"])
}

func TestSettingsUpdate(t *testing.T) {
	st := &fakeSettingsStore{current: storedSettings()}
	m := &fakeMailer{}
	h := NewSettingsHandler(testLogger, st, m)

	body := `{
		"dailyEnabled": true,
		"weeklyEnabled": true,
		"sendTime": "18:30",
		"weeklyDay": 5,
		"workdays": [1,2,3,4,5],
		"recipients": [" Piet@KVH.nl ", "jan@kvh.nl", "piet@kvh.nl"],
		"smtpHost": "smtp.kvh.nl",
		"smtpPort": 587,
		"smtpUser": "rapporten",
		"smtpPass": "********",
		"smtpFromAddress": "rapporten@kvh.nl",
		"smtpFromName": "KVH"
	}`
	rec := httptest.NewRecorder()
	h.Update(rec, asAdmin(httptest.NewRequest(http.MethodPut, "/api/admin/report-settings", strings.NewReader(body))))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, st.saved)
	assert.Equal(t, "geheim", st.saved.SMTPPass, "masked password keeps the stored one")
	assert.Equal(t, []string{"piet@kvh.nl", "jan@kvh.nl"}, st.saved.Recipients)
	assert.Equal(t, model.SendTime{Hour: 18, Minute: 30}, st.saved.SendTime)
	assert.Equal(t, "Marieke", st.updatedBy)
	require.NotNil(t, m.cfg)
	assert.Equal(t, "geheim", m.cfg.Pass)
}

func TestSettingsUpdateRejectsInvalid(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"bad recipient", `{"recipients":["not an address"]}`, http.StatusUnprocessableEntity},
		{"bad send time", `{"sendTime":"25:00"}`, http.StatusBadRequest},
		{"bad weekday", `{"weeklyDay":9}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := &fakeSettingsStore{current: storedSettings()}
			h := NewSettingsHandler(testLogger, st, &fakeMailer{})

			rec := httptest.NewRecorder()
			h.Update(rec, asAdmin(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(tc.body))))
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Nil(t, st.saved)
		})
	}
}

func TestSettingsTestEmail(t *testing.T) {
	m := &fakeMailer{}
	h := NewSettingsHandler(testLogger, &fakeSettingsStore{current: storedSettings()}, m)

	rec := httptest.NewRecorder()
	h.TestEmail(rec, asAdmin(httptest.NewRequest(http.MethodPost, "/", nil)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"jan@kvh.nl"}, m.sentTo)

	m.sendErr = errors.New("535 authentication failed")
	rec = httptest.NewRecorder()
	h.TestEmail(rec, asAdmin(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"to":"piet@kvh.nl"}`))))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "535 authentication failed")
}

func TestSettingsTestEmailNeedsAddress(t *testing.T) {
	s := storedSettings()
	s.Recipients = nil
	h := NewSettingsHandler(testLogger, &fakeSettingsStore{current: s}, &fakeMailer{})

	rec := httptest.NewRecorder()
	h.TestEmail(rec, asAdmin(httptest.NewRequest(http.MethodPost, "/", nil)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSettingsValidate(t *testing.T) {
	s := storedSettings()
	s.Recipients = nil
	m := &fakeMailer{pingErr: errors.New("dial tcp: connection refused")}
	h := NewSettingsHandler(testLogger, &fakeSettingsStore{current: s}, m)

	rec := httptest.NewRecorder()
	h.Validate(rec, asAdmin(httptest.NewRequest(http.MethodGet, "/", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "failed", body["smtp"])
	assert.Len(t, body["issues"], 2)
}

func TestSettingsValidateReportsUnusablePGPKey(t *testing.T) {
	s := storedSettings()
	s.PGPPublicKey = "not a key"
	m := &fakeMailer{encryptErr: errors.New("no PGP public key found")}
	h := NewSettingsHandler(testLogger, &fakeSettingsStore{current: s}, m)

	rec := httptest.NewRecorder()
	h.Validate(rec, asAdmin(httptest.NewRequest(http.MethodGet, "/", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "ok", body["smtp"])
	assert.Equal(t, []any{"PGP public key is unusable: no PGP public key found"}, body["issues"])
	assert.Equal(t, "not a key", m.cfg.PGPPublicKey)
}

type fakeDispatcher struct {
	status    scheduler.Status
	outcome   *model.SendOutcome
	err       error
	triggered []model.ReportType
	sentBy    string
	started   int
	stopped   int
}

func (f *fakeDispatcher) Status() scheduler.Status { return f.status }

func (f *fakeDispatcher) Trigger(_ context.Context, t model.ReportType, sentBy string) (*model.SendOutcome, error) {
	f.triggered = append(f.triggered, t)
	f.sentBy = sentBy
	return f.outcome, f.err
}

func (f *fakeDispatcher) Start() { f.started++ }
func (f *fakeDispatcher) Stop()  { f.stopped++ }

type fakeHistory struct {
	limit   int
	entries []model.SendOutcome
}

func (f *fakeHistory) RecentHistory(_ context.Context, limit int) ([]model.SendOutcome, error) {
	f.limit = limit
	return f.entries, nil
}

type fakeGenerator struct {
	ref time.Time
	t   model.ReportType
}

func (f *fakeGenerator) Generate(_ context.Context, t model.ReportType, ref time.Time) (*model.Document, error) {
	f.t, f.ref = t, ref
	return &model.Document{Filename: "KVH_Dagrapport_2025-03-14.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3")}, nil
}

func reportsRouter(h *ReportsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/reports/status", h.Status)
	r.Get("/reports/history", h.History)
	r.Post("/reports/{type}/send", h.Send)
	r.Get("/reports/{type}/preview", h.Preview)
	r.Post("/scheduler/start", h.StartScheduler)
	r.Post("/scheduler/stop", h.StopScheduler)
	return r
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, asAdmin(httptest.NewRequest(method, target, nil)))
	return rec
}

func TestReportsHistory(t *testing.T) {
	hist := &fakeHistory{}
	h := reportsRouter(NewReportsHandler(testLogger, &fakeDispatcher{}, hist, &fakeGenerator{}, time.UTC))

	rec := serve(h, http.MethodGet, "/reports/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistoryLimit, hist.limit)
	assert.JSONEq(t, `{"history":[]}`, rec.Body.String())

	serve(h, http.MethodGet, "/reports/history?limit=5000")
	assert.Equal(t, maxHistoryLimit, hist.limit)

	rec = serve(h, http.MethodGet, "/reports/history?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportsSend(t *testing.T) {
	cases := []struct {
		name    string
		target  string
		outcome *model.SendOutcome
		err     error
		status  int
	}{
		{"sent", "/reports/daily/send", &model.SendOutcome{Success: true}, nil, http.StatusOK},
		{"unknown type", "/reports/monthly/send", nil, nil, http.StatusNotFound},
		{"busy", "/reports/weekly/send", nil, scheduler.ErrBusy, http.StatusConflict},
		{"no recipients", "/reports/daily/send", &model.SendOutcome{}, &scheduler.ConfigError{Err: scheduler.ErrNoRecipients}, http.StatusUnprocessableEntity},
		{"delivery failed", "/reports/daily/send", &model.SendOutcome{}, errors.New("421 try later"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &fakeDispatcher{outcome: tc.outcome, err: tc.err}
			h := reportsRouter(NewReportsHandler(testLogger, d, &fakeHistory{}, &fakeGenerator{}, time.UTC))

			rec := serve(h, http.MethodPost, tc.target)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.status != http.StatusNotFound {
				assert.Equal(t, "Marieke", d.sentBy)
			}
		})
	}
}

func TestReportsPreview(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)
	gen := &fakeGenerator{}
	h := reportsRouter(NewReportsHandler(testLogger, &fakeDispatcher{}, &fakeHistory{}, gen, loc))

	rec := serve(h, http.MethodGet, "/reports/weekly/preview?date=2025-03-14")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "KVH_Dagrapport_2025-03-14.pdf")
	assert.Equal(t, "%PDF-1.3", rec.Body.String())
	assert.Equal(t, model.ReportWeekly, gen.t)
	assert.True(t, time.Date(2025, 3, 14, 0, 0, 0, 0, loc).Equal(gen.ref))

	rec = serve(h, http.MethodGet, "/reports/daily/preview?date=14-03-2025")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedulerStartStop(t *testing.T) {
	d := &fakeDispatcher{status: scheduler.Status{Running: true, Timezone: "Europe/Amsterdam"}}
	h := reportsRouter(NewReportsHandler(testLogger, d, &fakeHistory{}, &fakeGenerator{}, time.UTC))

	rec := serve(h, http.MethodPost, "/scheduler/start")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, d.started)
	assert.Contains(t, rec.Body.String(), `"running":true`)

	serve(h, http.MethodPost, "/scheduler/stop")
	assert.Equal(t, 1, d.stopped)

	rec = serve(h, http.MethodGet, "/reports/status")
	assert.Contains(t, rec.Body.String(), "Europe/Amsterdam")
}
