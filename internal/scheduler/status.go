package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/floorreports/internal/model"
	"github.com/robfig/cron/v3"
)

// Status is a snapshot of the scheduler for the admin view.
type Status struct {
	Running     bool       `json:"running"`
	Enabled     bool       `json:"enabled"`
	Timezone    string     `json:"timezone"`
	SendTime    string     `json:"sendTime,omitempty"`
	Recipients  int        `json:"recipients"`
	MaxAttempts int        `json:"maxAttempts"`
	Daily       TypeStatus `json:"daily"`
	Weekly      TypeStatus `json:"weekly"`
}

// TypeStatus describes one report type.
type TypeStatus struct {
	Enabled       bool       `json:"enabled"`
	NextRun       *time.Time `json:"nextRun,omitempty"`
	NextRetry     *time.Time `json:"nextRetry,omitempty"`
	LastPeriod    string     `json:"lastPeriod,omitempty"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	LastSentAt    *time.Time `json:"lastSentAt,omitempty"`
	RetryCount    int        `json:"retryCount"`
	GivenUp       bool       `json:"givenUp"`
	LastError     string     `json:"lastError,omitempty"`
}

// Status reports the state as of the last tick. Settings are the ones the
// last tick saw, so a change shows up here within one check interval.
func (s *Scheduler) Status() Status {
	now := s.now().In(s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:     s.Running(),
		Timezone:    s.loc.String(),
		MaxAttempts: s.maxAttempts,
		Daily:       s.typeStatus(model.ReportDaily),
		Weekly:      s.typeStatus(model.ReportWeekly),
	}
	cfg := s.cfg
	if cfg == nil {
		return st
	}

	st.Enabled = cfg.Enabled()
	st.SendTime = cfg.SendTime.String()
	st.Recipients = len(cfg.Recipients)
	st.Daily.Enabled = cfg.DailyEnabled
	st.Weekly.Enabled = cfg.WeeklyEnabled

	if cfg.DailyEnabled {
		st.Daily.NextRun = s.nextRun(cfg.SendTime, cfg.Workdays, now)
	}
	if cfg.WeeklyEnabled {
		st.Weekly.NextRun = s.nextRun(cfg.SendTime, []time.Weekday{cfg.WeeklyDay}, now)
	}
	return st
}

// typeStatus must be called with s.mu held.
func (s *Scheduler) typeStatus(t model.ReportType) TypeStatus {
	a := s.state[t]
	ts := TypeStatus{
		LastPeriod: a.periodKey,
		RetryCount: a.retryCount,
		GivenUp:    a.givenUp,
		LastError:  a.lastError,
	}
	if !a.lastAttempt.IsZero() {
		at := a.lastAttempt
		ts.LastAttemptAt = &at
	}
	if !a.lastSent.IsZero() {
		at := a.lastSent
		ts.LastSentAt = &at
	}
	if a.retryCount > 0 && !a.givenUp {
		at := a.lastAttempt.Add(s.retryDelay)
		ts.NextRetry = &at
	}
	return ts
}

func (s *Scheduler) nextRun(at model.SendTime, days []time.Weekday, now time.Time) *time.Time {
	if len(days) == 0 {
		return nil
	}
	sched, err := cron.ParseStandard(cronSpec(s.loc, at, days))
	if err != nil {
		s.logger.Warn("scheduler: computing next run failed", "err", err)
		return nil
	}
	next := sched.Next(now)
	if next.IsZero() {
		return nil
	}
	return &next
}

// cronSpec renders a standard five-field cron line for the send time on the
// given weekdays, pinned to loc.
func cronSpec(loc *time.Location, at model.SendTime, days []time.Weekday) string {
	dows := make([]string, len(days))
	for i, d := range days {
		dows[i] = strconv.Itoa(int(d))
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * %s", loc.String(), at.Minute, at.Hour, strings.Join(dows, ","))
}
