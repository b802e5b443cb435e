package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/floorreports/internal/crypto"
	"github.com/floorreports/internal/db"
	"github.com/floorreports/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testCrypter(t *testing.T) *crypto.Crypter {
	t.Helper()
	c, err := crypto.NewFromPassphrase("settings-key-settings-key-settings")
	require.NoError(t, err)
	return c
}

func TestSettingsStoreSeedsOnFirstLoad(t *testing.T) {
	ctx := context.Background()
	seed := model.DefaultReportSettings()
	seed.SMTPHost = "smtp.kvh.nl"

	s := NewSettingsStore(openTestDB(t), testCrypter(t), seed)
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "smtp.kvh.nl", got.SMTPHost)
	assert.False(t, got.Enabled())
	assert.Equal(t, model.SendTime{Hour: 22}, got.SendTime)

	got.SMTPHost = "changed"
	assert.Equal(t, "smtp.kvh.nl", seed.SMTPHost, "seed must not be aliased")
}

func TestSettingsStoreRoundTripIsEncrypted(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	s := NewSettingsStore(conn, testCrypter(t), nil)

	in := model.DefaultReportSettings()
	in.DailyEnabled = true
	in.Recipients = []string{"Jan@KVH.nl", "piet@kvh.nl", "jan@kvh.nl"}
	in.SMTPPass = "hunter2"
	in.SendTime = model.SendTime{Hour: 18, Minute: 30}
	require.NoError(t, s.Save(ctx, in, "admin"))

	var raw []byte
	require.NoError(t, conn.QueryRow(`SELECT data FROM settings`).Scan(&raw))
	assert.NotContains(t, string(raw), "hunter2")

	out, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, out.DailyEnabled)
	assert.Equal(t, []string{"jan@kvh.nl", "piet@kvh.nl"}, out.Recipients)
	assert.Equal(t, "hunter2", out.SMTPPass)
	assert.Equal(t, "18:30", out.SendTime.String())
}

func TestSettingsStoreRejectsBadRecipients(t *testing.T) {
	s := NewSettingsStore(openTestDB(t), testCrypter(t), nil)
	in := model.DefaultReportSettings()
	in.Recipients = []string{"nope"}
	assert.Error(t, s.Save(context.Background(), in, "admin"))
}

func TestEmailLogWasReportSent(t *testing.T) {
	ctx := context.Background()
	logs := NewEmailLogStore(openTestDB(t))
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	require.NoError(t, logs.RecordSend(ctx, model.SendOutcome{
		ReportType:   model.ReportDaily,
		PeriodKey:    "2025-03-14",
		ReportDate:   day,
		Success:      false,
		ErrorMessage: "smtp down",
		AttemptedAt:  day.Add(22 * time.Hour),
		SentBy:       "scheduler",
	}))

	sent, err := logs.WasReportSent(ctx, model.ReportDaily, "2025-03-14")
	require.NoError(t, err)
	assert.False(t, sent, "failed attempts do not count as sent")

	require.NoError(t, logs.RecordSend(ctx, model.SendOutcome{
		ReportType:  model.ReportDaily,
		PeriodKey:   "2025-03-14",
		ReportDate:  day,
		Recipients:  []string{"a@kvh.nl", "b@kvh.nl"},
		Success:     true,
		AttemptedAt: day.Add(22*time.Hour + 10*time.Minute),
		SentBy:      "scheduler",
	}))

	cases := []struct {
		name       string
		reportType model.ReportType
		key        string
		want       bool
	}{
		{"same period", model.ReportDaily, "2025-03-14", true},
		{"other day", model.ReportDaily, "2025-03-13", false},
		{"other type", model.ReportWeekly, "2025-03-14", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := logs.WasReportSent(ctx, tc.reportType, tc.key)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEmailLogRecentHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	logs := NewEmailLogStore(openTestDB(t))
	base := time.Date(2025, 3, 14, 22, 0, 0, 0, time.UTC)

	for i, key := range []string{"2025-W10", "2025-W11", "2025-W12"} {
		require.NoError(t, logs.RecordSend(ctx, model.SendOutcome{
			ReportType:  model.ReportWeekly,
			PeriodKey:   key,
			ReportDate:  base.AddDate(0, 0, 7*i),
			Recipients:  []string{"a@kvh.nl"},
			Success:     true,
			AttemptedAt: base.AddDate(0, 0, 7*i),
			SentBy:      "scheduler",
		}))
	}

	history, err := logs.RecentHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2025-W12", history[0].PeriodKey)
	assert.Equal(t, "2025-W11", history[1].PeriodKey)
	assert.Equal(t, []string{"a@kvh.nl"}, history[0].Recipients)
	assert.True(t, history[0].AttemptedAt.Equal(base.AddDate(0, 0, 14)))
	assert.NotEmpty(t, history[0].ID)
}

func TestUserAndSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	users := NewUserStore(conn)
	sessions := NewSessionStore(conn, 5*time.Minute)

	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	u := &model.User{ID: "u1", Name: "Anna", Role: model.RoleAdmin}
	require.NoError(t, users.Create(ctx, u, "lookup-1", "hash-1"))

	n, err := users.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, hash, err := users.GetByPinLookup(ctx, "lookup-1")
	require.NoError(t, err)
	assert.Equal(t, "Anna", got.Name)
	assert.Equal(t, "hash-1", hash)

	_, _, err = users.GetByPinLookup(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, users.UpdateLastLogin(ctx, "u1"))
	got, err = users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, got.LastLoginAt)

	id, err := sessions.Create(ctx, "u1")
	require.NoError(t, err)

	userID, err := sessions.GetUserID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	now = now.Add(6 * time.Minute)
	_, err = sessions.GetUserID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound, "session should expire after the ttl")

	removed, err := sessions.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}
