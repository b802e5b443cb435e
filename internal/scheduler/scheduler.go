// Package scheduler decides when the daily and weekly production reports go
// out, guards against duplicate sends and retries failed ones a bounded
// number of times.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/floorreports/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultCheckInterval = time.Minute
	DefaultStartupDelay  = 5 * time.Second
	DefaultGracePeriod   = 5 * time.Minute
	DefaultRetryDelay    = 10 * time.Minute
	DefaultMaxAttempts   = 3

	// SentByScheduler marks audit entries written by the polling loop.
	SentByScheduler = "scheduler"
)

var (
	// ErrBusy is returned by Trigger while a tick or another trigger is running.
	ErrBusy = errors.New("scheduler: a dispatch is already in progress")

	ErrNoRecipients = errors.New("no recipients configured")
	ErrNoSettings   = errors.New("no settings available")
)

// ConfigError marks a dispatch failure caused by configuration rather than
// by a collaborator.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// SettingsStore supplies the current report settings.
type SettingsStore interface {
	Load(ctx context.Context) (*model.ReportSettings, error)
}

// AuditLog records dispatch outcomes and answers whether a period was sent.
type AuditLog interface {
	WasReportSent(ctx context.Context, t model.ReportType, periodKey string) (bool, error)
	RecordSend(ctx context.Context, o model.SendOutcome) error
}

// ReportGenerator renders the document for a report type and reference date.
type ReportGenerator interface {
	Generate(ctx context.Context, t model.ReportType, ref time.Time) (*model.Document, error)
}

// MailTransport delivers a document to one recipient.
type MailTransport interface {
	Deliver(ctx context.Context, to string, doc *model.Document, meta model.DeliveryMeta) error
}

// SettingsApplier is implemented by transports that take their account from
// the report settings. The scheduler hands them the settings of every
// dispatch.
type SettingsApplier interface {
	ApplySettings(cfg *model.ReportSettings)
}

// Options tune the scheduler. Zero values fall back to the defaults.
type Options struct {
	Location      *time.Location
	CheckInterval time.Duration
	StartupDelay  time.Duration
	GracePeriod   time.Duration
	RetryDelay    time.Duration
	MaxAttempts   int
	Now           func() time.Time
	Logger        *slog.Logger
	Metrics       *Metrics
}

// attemptState is the retry bookkeeping of one report type.
type attemptState struct {
	periodKey   string
	reportDate  time.Time
	lastAttempt time.Time
	retryCount  int
	givenUp     bool
	lastError   string
	lastSent    time.Time
}

// Scheduler polls on a fixed interval and dispatches reports when due.
type Scheduler struct {
	settings  SettingsStore
	audit     AuditLog
	generator ReportGenerator
	mail      MailTransport

	loc           *time.Location
	checkInterval time.Duration
	startupDelay  time.Duration
	gracePeriod   time.Duration
	retryDelay    time.Duration
	maxAttempts   int
	now           func() time.Time
	logger        *slog.Logger
	metrics       *Metrics

	// busy serializes ticks and manual triggers.
	busy atomic.Bool

	// mu guards cfg and state, which Status reads from other goroutines.
	mu    sync.Mutex
	cfg   *model.ReportSettings
	state map[model.ReportType]*attemptState

	lifeMu  sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func New(settings SettingsStore, audit AuditLog, generator ReportGenerator, mail MailTransport, opts Options) *Scheduler {
	s := &Scheduler{
		settings:      settings,
		audit:         audit,
		generator:     generator,
		mail:          mail,
		loc:           opts.Location,
		checkInterval: opts.CheckInterval,
		startupDelay:  opts.StartupDelay,
		gracePeriod:   opts.GracePeriod,
		retryDelay:    opts.RetryDelay,
		maxAttempts:   opts.MaxAttempts,
		now:           opts.Now,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		state: map[model.ReportType]*attemptState{
			model.ReportDaily:  {},
			model.ReportWeekly: {},
		},
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.checkInterval <= 0 {
		s.checkInterval = DefaultCheckInterval
	}
	if s.startupDelay <= 0 {
		s.startupDelay = DefaultStartupDelay
	}
	if s.gracePeriod <= 0 {
		s.gracePeriod = DefaultGracePeriod
	}
	if s.retryDelay <= 0 {
		s.retryDelay = DefaultRetryDelay
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return s
}

// Start begins polling. The first tick runs after the startup delay rather
// than a full interval. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stopCh, s.done)

	s.logger.Info("scheduler: started",
		"interval", s.checkInterval, "first_check_in", s.startupDelay, "timezone", s.loc.String())
}

// Stop prevents further ticks. A tick already in flight runs to completion;
// use Wait to block until it has.
func (s *Scheduler) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	s.logger.Info("scheduler: stopped")
}

// Wait blocks until the most recently started loop has exited.
func (s *Scheduler) Wait() {
	s.lifeMu.Lock()
	done := s.done
	s.lifeMu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether the polling loop is active.
func (s *Scheduler) Running() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.running
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	first := time.NewTimer(s.startupDelay)
	defer first.Stop()
	select {
	case <-stop:
		return
	case <-first.C:
		s.Tick(s.now())
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick(s.now())
		}
	}
}
