package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/floorreports/internal/model"
	"github.com/google/uuid"
)

// EmailLogStore is the audit trail of report dispatches.
type EmailLogStore struct {
	db *sql.DB
}

func NewEmailLogStore(db *sql.DB) *EmailLogStore {
	return &EmailLogStore{db: db}
}

// WasReportSent reports whether a successful dispatch of t is on record for
// the given period key.
func (s *EmailLogStore) WasReportSent(ctx context.Context, t model.ReportType, periodKey string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM email_logs
			WHERE report_type = ? AND period_key = ? AND success = 1
		)`, string(t), periodKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email log: %w", err)
	}
	return exists, nil
}

// RecordSend appends one outcome to the log.
func (s *EmailLogStore) RecordSend(ctx context.Context, o model.SendOutcome) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_logs
			(id, report_type, period_key, report_date, recipients, success, error_message, attempted_at, sent_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		string(o.ReportType),
		o.PeriodKey,
		o.ReportDate.Format("2006-01-02"),
		strings.Join(o.Recipients, ", "),
		o.Success,
		o.ErrorMessage,
		formatTime(o.AttemptedAt),
		o.SentBy,
	)
	if err != nil {
		return fmt.Errorf("record email log: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit entries, newest first.
func (s *EmailLogStore) RecentHistory(ctx context.Context, limit int) ([]model.SendOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_type, period_key, report_date, recipients, success, error_message, attempted_at, sent_by
		FROM email_logs
		ORDER BY attempted_at DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query email log: %w", err)
	}
	defer rows.Close()

	history := []model.SendOutcome{}
	for rows.Next() {
		var (
			o                       model.SendOutcome
			reportType, recipients  string
			reportDate, attemptedAt string
		)
		if err := rows.Scan(&o.ID, &reportType, &o.PeriodKey, &reportDate, &recipients,
			&o.Success, &o.ErrorMessage, &attemptedAt, &o.SentBy); err != nil {
			return nil, err
		}
		o.ReportType = model.ReportType(reportType)
		o.Recipients = splitRecipients(recipients)
		if o.ReportDate, err = parseDate(reportDate); err != nil {
			return nil, err
		}
		if o.AttemptedAt, err = parseTime(attemptedAt); err != nil {
			return nil, err
		}
		history = append(history, o)
	}
	return history, rows.Err()
}

func splitRecipients(s string) []string {
	out := []string{}
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
