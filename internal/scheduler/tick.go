package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/floorreports/internal/model"
)

// Tick runs one scheduling pass at now. It is a no-op when another tick or a
// manual trigger is still in flight. Panics outside a send are recovered so
// the polling loop survives them; panics during a send count as failures.
func (s *Scheduler) Tick(now time.Time) {
	if !s.busy.CompareAndSwap(false, true) {
		s.metrics.ticksSkipped.Inc()
		s.logger.Warn("scheduler: previous tick still running, skipping")
		return
	}
	defer s.busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler: tick panicked", "panic", r)
		}
	}()

	s.metrics.ticks.Inc()
	ctx := context.Background()

	cfg := s.loadSettings(ctx)
	if cfg == nil || !cfg.Enabled() {
		return
	}

	now = now.In(s.loc)
	if day, ok := s.dueDay(cfg, now); ok {
		if cfg.DailyEnabled && cfg.IsWorkday(day.Weekday()) {
			s.scheduled(ctx, cfg, model.ReportDaily, day, now)
		}
		if cfg.WeeklyEnabled && day.Weekday() == cfg.WeeklyDay {
			s.scheduled(ctx, cfg, model.ReportWeekly, day, now)
		}
	}

	for _, t := range model.ReportTypes {
		if cfg.TypeEnabled(t) {
			s.retry(ctx, cfg, t, now)
		}
	}
}

// loadSettings re-reads the settings, falling back to the last good copy.
func (s *Scheduler) loadSettings(ctx context.Context) *model.ReportSettings {
	cfg, err := s.settings.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Warn("scheduler: loading settings failed, using last known", "err", err)
		return s.cfg
	}
	s.cfg = cfg
	return cfg
}

// dueDay reports whether now falls inside a dispatch window and returns the
// local midnight of the day that window opened on. Comparison is at minute
// resolution and both bounds are inclusive.
func (s *Scheduler) dueDay(cfg *model.ReportSettings, now time.Time) (time.Time, bool) {
	minute := now.Truncate(time.Minute)
	today := startOfDay(now)
	for _, day := range []time.Time{today, today.AddDate(0, 0, -1)} {
		open := time.Date(day.Year(), day.Month(), day.Day(), cfg.SendTime.Hour, cfg.SendTime.Minute, 0, 0, s.loc)
		if !minute.Before(open) && !minute.After(open.Add(s.gracePeriod)) {
			return day, true
		}
	}
	return time.Time{}, false
}

// scheduled handles a report type whose window is open.
func (s *Scheduler) scheduled(ctx context.Context, cfg *model.ReportSettings, t model.ReportType, day, now time.Time) {
	key := periodKey(t, day)

	s.mu.Lock()
	attempted := s.state[t].periodKey == key
	s.mu.Unlock()
	if attempted {
		return
	}

	sent, err := s.audit.WasReportSent(ctx, t, key)
	if err != nil {
		s.logger.Warn("scheduler: audit log check failed, sending anyway", "type", t, "period", key, "err", err)
	}
	if sent {
		s.logger.Info("scheduler: report already sent", "type", t, "period", key)
		s.mu.Lock()
		s.state[t] = &attemptState{periodKey: key, reportDate: day, lastAttempt: now}
		s.mu.Unlock()
		s.metrics.retryCount.WithLabelValues(string(t)).Set(0)
		return
	}

	s.logger.Info("scheduler: report due", "type", t, "period", key)
	s.mu.Lock()
	s.state[t] = &attemptState{periodKey: key, reportDate: day}
	s.mu.Unlock()

	_, err = s.dispatch(ctx, cfg, t, day, now, SentByScheduler)
	s.record(t, now, err)
}

// retry re-sends a failed report once retryDelay has passed since the last
// attempt.
func (s *Scheduler) retry(ctx context.Context, cfg *model.ReportSettings, t model.ReportType, now time.Time) {
	s.mu.Lock()
	st := *s.state[t]
	s.mu.Unlock()

	if st.retryCount == 0 || st.givenUp || now.Sub(st.lastAttempt) < s.retryDelay {
		return
	}

	sent, err := s.audit.WasReportSent(ctx, t, st.periodKey)
	if err != nil {
		s.logger.Warn("scheduler: audit log check failed, retrying anyway", "type", t, "period", st.periodKey, "err", err)
	}
	if sent {
		s.logger.Info("scheduler: failed report was sent meanwhile", "type", t, "period", st.periodKey)
		s.record(t, now, nil)
		return
	}

	s.logger.Info("scheduler: retrying report",
		"type", t, "period", st.periodKey, "attempt", st.retryCount+1, "max", s.maxAttempts)
	_, err = s.dispatch(ctx, cfg, t, st.reportDate, now, SentByScheduler)
	s.record(t, now, err)
}

// record updates the bookkeeping of t after an attempt at now.
func (s *Scheduler) record(t model.ReportType, now time.Time, err error) {
	s.mu.Lock()
	st := s.state[t]
	st.lastAttempt = now
	if err == nil {
		st.retryCount = 0
		st.givenUp = false
		st.lastError = ""
		st.lastSent = now
	} else {
		st.retryCount = min(st.retryCount+1, s.maxAttempts)
		st.lastError = err.Error()
		st.givenUp = st.retryCount >= s.maxAttempts
	}
	count, givenUp, key := st.retryCount, st.givenUp, st.periodKey
	s.mu.Unlock()

	s.metrics.retryCount.WithLabelValues(string(t)).Set(float64(count))
	if givenUp {
		s.logger.Error("scheduler: giving up until the next window",
			"type", t, "period", key, "attempts", count, "err", err)
	}
}

// Trigger sends report t for the current period immediately. It ignores the
// enabled flags and leaves the retry bookkeeping alone.
func (s *Scheduler) Trigger(ctx context.Context, t model.ReportType, sentBy string) (*model.SendOutcome, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown report type %q", t)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	cfg := s.loadSettings(ctx)
	if cfg == nil {
		return nil, &ConfigError{Err: ErrNoSettings}
	}

	now := s.now().In(s.loc)
	outcome, err := s.dispatch(ctx, cfg, t, startOfDay(now), now, sentBy)
	return &outcome, err
}

// dispatch generates report t for day, delivers it to every recipient and
// writes one audit log entry for the batch. The batch succeeds when at least
// one recipient accepted it. Cancelling ctx does not abort a started send.
func (s *Scheduler) dispatch(ctx context.Context, cfg *model.ReportSettings, t model.ReportType, day, now time.Time, sentBy string) (model.SendOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	started := time.Now()

	if a, ok := s.mail.(SettingsApplier); ok {
		a.ApplySettings(cfg)
	}

	delivered, err := s.deliver(ctx, cfg, t, day, now)
	s.metrics.sendDuration.WithLabelValues(string(t)).Observe(time.Since(started).Seconds())

	outcome := model.SendOutcome{
		ReportType:  t,
		PeriodKey:   periodKey(t, day),
		ReportDate:  day,
		Recipients:  delivered,
		Success:     len(delivered) > 0,
		AttemptedAt: now,
		SentBy:      sentBy,
	}
	if err != nil {
		outcome.ErrorMessage = err.Error()
	}
	s.metrics.dispatches.WithLabelValues(string(t), result(outcome.Success)).Inc()

	if rerr := s.audit.RecordSend(ctx, outcome); rerr != nil {
		s.logger.Warn("scheduler: recording send failed", "type", t, "period", outcome.PeriodKey, "err", rerr)
	}

	if !outcome.Success {
		s.logger.Error("scheduler: report not sent", "type", t, "period", outcome.PeriodKey, "err", err)
		return outcome, err
	}
	if err != nil {
		s.logger.Warn("scheduler: report partially sent",
			"type", t, "period", outcome.PeriodKey, "delivered", len(delivered), "err", err)
	} else {
		s.logger.Info("scheduler: report sent", "type", t, "period", outcome.PeriodKey, "recipients", len(delivered))
	}
	return outcome, nil
}

// deliver returns the recipients that accepted the report. The error joins
// the failures of the other recipients. A panic in the generator or the
// transport fails the batch like any other error.
func (s *Scheduler) deliver(ctx context.Context, cfg *model.ReportSettings, t model.ReportType, day, now time.Time) (delivered []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler: send panicked", "type", t, "panic", r)
			err = errors.Join(err, fmt.Errorf("send %s report panicked: %v", t, r))
		}
	}()

	if len(cfg.Recipients) == 0 {
		return nil, &ConfigError{Err: ErrNoRecipients}
	}

	doc, err := s.generator.Generate(ctx, t, day)
	if err != nil {
		return nil, fmt.Errorf("generate %s report: %w", t, err)
	}
	meta := model.DeliveryMeta{ReportType: t, PeriodLabel: doc.PeriodLabel, GeneratedAt: now}

	var errs []error
	for _, to := range cfg.Recipients {
		if err := s.mail.Deliver(ctx, to, doc, meta); err != nil {
			s.metrics.deliveries.WithLabelValues(string(t), result(false)).Inc()
			s.logger.Warn("scheduler: delivery failed", "type", t, "to", to, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
			continue
		}
		s.metrics.deliveries.WithLabelValues(string(t), result(true)).Inc()
		delivered = append(delivered, to)
	}
	return delivered, errors.Join(errs...)
}

// periodKey identifies the period a report covers: the date for daily
// reports and the ISO week for weekly ones.
func periodKey(t model.ReportType, day time.Time) string {
	if t == model.ReportWeekly {
		year, week := day.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	}
	return day.Format(time.DateOnly)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
