package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"
)

const (
	DefaultSendHour   = 22
	DefaultSendMinute = 0
	DefaultWeeklyDay  = time.Friday
	DefaultSMTPPort   = 587
)

// DefaultWorkdays is Monday through Friday.
var DefaultWorkdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// SendTime is a wall-clock time of day, encoded as "HH:MM".
type SendTime struct {
	Hour   int
	Minute int
}

func ParseSendTime(s string) (SendTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return SendTime{}, fmt.Errorf("send time %q must be HH:MM", s)
	}
	return SendTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t SendTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t SendTime) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

func (t SendTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *SendTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseSendTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ReportSettings is the persisted configuration of the report dispatcher,
// including the SMTP account used to deliver it.
type ReportSettings struct {
	DailyEnabled  bool           `json:"dailyEnabled"`
	WeeklyEnabled bool           `json:"weeklyEnabled"`
	SendTime      SendTime       `json:"sendTime"`
	WeeklyDay     time.Weekday   `json:"weeklyDay"`
	Workdays      []time.Weekday `json:"workdays"`
	Recipients    []string       `json:"recipients"`

	SMTPHost        string `json:"smtpHost"`
	SMTPPort        int    `json:"smtpPort"`
	SMTPUser        string `json:"smtpUser"`
	SMTPPass        string `json:"smtpPass"`
	SMTPFromAddress string `json:"smtpFromAddress"`
	SMTPFromName    string `json:"smtpFromName"`
	PGPPublicKey    string `json:"pgpPublicKey,omitempty"`
}

// DefaultReportSettings returns settings with both reports disabled.
func DefaultReportSettings() *ReportSettings {
	return &ReportSettings{
		SendTime:     SendTime{Hour: DefaultSendHour, Minute: DefaultSendMinute},
		WeeklyDay:    DefaultWeeklyDay,
		Workdays:     slices.Clone(DefaultWorkdays),
		Recipients:   []string{},
		SMTPPort:     DefaultSMTPPort,
		SMTPFromName: "KVH Productie Dashboard",
	}
}

// Clone returns a deep copy.
func (s *ReportSettings) Clone() *ReportSettings {
	c := *s
	c.Workdays = slices.Clone(s.Workdays)
	c.Recipients = slices.Clone(s.Recipients)
	return &c
}

// Enabled reports whether any report type is switched on.
func (s *ReportSettings) Enabled() bool {
	return s.DailyEnabled || s.WeeklyEnabled
}

// TypeEnabled reports whether the given report type is switched on.
func (s *ReportSettings) TypeEnabled(t ReportType) bool {
	switch t {
	case ReportDaily:
		return s.DailyEnabled
	case ReportWeekly:
		return s.WeeklyEnabled
	}
	return false
}

func (s *ReportSettings) IsWorkday(d time.Weekday) bool {
	return slices.Contains(s.Workdays, d)
}

// Normalize validates the settings in place: recipients are trimmed,
// lower-cased and de-duplicated, workdays sorted and de-duplicated.
func (s *ReportSettings) Normalize() error {
	if !s.SendTime.Valid() {
		return fmt.Errorf("send time %s out of range", s.SendTime)
	}
	if s.WeeklyDay < time.Sunday || s.WeeklyDay > time.Saturday {
		return fmt.Errorf("weekly day %d out of range", s.WeeklyDay)
	}

	recipients, err := NormalizeRecipients(s.Recipients)
	if err != nil {
		return err
	}
	s.Recipients = recipients

	if s.Workdays == nil {
		s.Workdays = slices.Clone(DefaultWorkdays)
	}
	for _, d := range s.Workdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("workday %d out of range", d)
		}
	}
	slices.Sort(s.Workdays)
	s.Workdays = slices.Compact(s.Workdays)

	if s.SMTPPort == 0 {
		s.SMTPPort = DefaultSMTPPort
	}
	return nil
}

// NormalizeRecipients trims, lower-cases and de-duplicates addresses,
// rejecting anything net/mail cannot parse as a bare address.
func NormalizeRecipients(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	var errs []error
	for _, raw := range in {
		addr := strings.ToLower(strings.TrimSpace(raw))
		if addr == "" {
			continue
		}
		parsed, err := mail.ParseAddress(addr)
		if err != nil || parsed.Address != addr {
			errs = append(errs, fmt.Errorf("invalid recipient %q", raw))
			continue
		}
		if !slices.Contains(out, addr) {
			out = append(out, addr)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Issues lists configuration problems that would stop a report from going
// out. An empty result means the settings look deliverable.
func (s *ReportSettings) Issues() []string {
	var issues []string
	if !s.Enabled() {
		issues = append(issues, "no report type is enabled")
	}
	if len(s.Recipients) == 0 {
		issues = append(issues, "no recipients configured")
	}
	if s.SMTPHost == "" {
		issues = append(issues, "SMTP host is not set")
	}
	if s.SMTPFromAddress == "" {
		issues = append(issues, "sender address is not set")
	}
	if s.DailyEnabled && len(s.Workdays) == 0 {
		issues = append(issues, "daily report enabled but no workdays selected")
	}
	return issues
}
