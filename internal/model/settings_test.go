package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseSendTime(t *testing.T) {
	cases := []struct {
		in      string
		want    SendTime
		wantErr bool
	}{
		{"22:00", SendTime{22, 0}, false},
		{" 07:45 ", SendTime{7, 45}, false},
		{"00:00", SendTime{0, 0}, false},
		{"24:00", SendTime{}, true},
		{"7pm", SendTime{}, true},
		{"", SendTime{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseSendTime(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestReportSettingsJSONUsesClockTime(t *testing.T) {
	s := DefaultReportSettings()
	s.SendTime = SendTime{Hour: 6, Minute: 5}

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"sendTime":"06:05"`) {
		t.Errorf("expected HH:MM send time in %s", raw)
	}
}

func TestNormalizeRecipients(t *testing.T) {
	got, err := NormalizeRecipients([]string{" Jan@KVH.nl", "jan@kvh.nl", "", "piet@kvh.nl"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "jan@kvh.nl" || got[1] != "piet@kvh.nl" {
		t.Errorf("unexpected recipients %v", got)
	}

	_, err = NormalizeRecipients([]string{"jan@kvh.nl", "not-an-address", "Jan <jan@kvh.nl>"})
	if err == nil {
		t.Fatal("expected error for invalid addresses")
	}
	if !strings.Contains(err.Error(), "not-an-address") {
		t.Errorf("error should name the bad address, got %v", err)
	}
}

func TestNormalizeDefaultsWorkdays(t *testing.T) {
	s := &ReportSettings{SendTime: SendTime{22, 0}, WeeklyDay: time.Friday}
	if err := s.Normalize(); err != nil {
		t.Fatal(err)
	}
	if len(s.Workdays) != 5 || s.IsWorkday(time.Saturday) || !s.IsWorkday(time.Monday) {
		t.Errorf("expected Monday-Friday, got %v", s.Workdays)
	}
	if s.SMTPPort != DefaultSMTPPort {
		t.Errorf("expected default port, got %d", s.SMTPPort)
	}
}

func TestIssues(t *testing.T) {
	s := DefaultReportSettings()
	if len(s.Issues()) != 4 {
		t.Errorf("expected four issues for defaults, got %v", s.Issues())
	}

	s.DailyEnabled = true
	s.Recipients = []string{"jan@kvh.nl"}
	s.SMTPHost = "smtp.kvh.nl"
	s.SMTPFromAddress = "noreply@kvh.nl"
	if issues := s.Issues(); len(issues) != 0 {
		t.Errorf("expected no issues, got %v", issues)
	}
}

func TestRoleDashboardPath(t *testing.T) {
	if got := RoleTeamleader.DashboardPath(); got != "/dashboard/teamleader/index.html" {
		t.Errorf("unexpected path %q", got)
	}
	if got := Role("visitor").DashboardPath(); got != "/" {
		t.Errorf("unknown role should land on /, got %q", got)
	}
}
