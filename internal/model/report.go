package model

import (
	"fmt"
	"time"
)

type ReportType string

const (
	ReportDaily  ReportType = "daily"
	ReportWeekly ReportType = "weekly"
)

// ReportTypes lists every report type in dispatch order.
var ReportTypes = []ReportType{ReportDaily, ReportWeekly}

func (t ReportType) Valid() bool {
	return t == ReportDaily || t == ReportWeekly
}

// ParseReportType accepts "daily" or "weekly".
func ParseReportType(s string) (ReportType, error) {
	t := ReportType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown report type %q", s)
	}
	return t, nil
}

// SendOutcome is the result of one dispatch of one report to a batch of
// recipients. Recipients holds only the addresses that accepted the message.
type SendOutcome struct {
	ID           string     `json:"id,omitempty"`
	ReportType   ReportType `json:"reportType"`
	PeriodKey    string     `json:"periodKey"`
	ReportDate   time.Time  `json:"reportDate"`
	Recipients   []string   `json:"recipients"`
	Success      bool       `json:"success"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	AttemptedAt  time.Time  `json:"attemptedAt"`
	SentBy       string     `json:"sentBy"`
}

// Document is a rendered report ready to be attached to an email.
type Document struct {
	Filename    string
	ContentType string
	Title       string
	PeriodLabel string
	Data        []byte
}

// DeliveryMeta carries the text shown around an attached document.
type DeliveryMeta struct {
	ReportType  ReportType
	PeriodLabel string
	GeneratedAt time.Time
}
