package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/floorreports/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var amsterdam = mustLoad("Europe/Amsterdam")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type fakeSource struct {
	machines    []model.Machine
	inspections []model.Inspection
	problems    []model.ProblemReport
	// failBefore makes queries whose window starts before it fail.
	failBefore time.Time
}

func (f *fakeSource) ActiveMachines(context.Context) ([]model.Machine, error) {
	return f.machines, nil
}

func (f *fakeSource) Inspections(_ context.Context, from, to time.Time) ([]model.Inspection, error) {
	if from.Before(f.failBefore) {
		return nil, errors.New("archive offline")
	}
	var out []model.Inspection
	for _, i := range f.inspections {
		if !i.CreatedAt.Before(from) && i.CreatedAt.Before(to) {
			out = append(out, i)
		}
	}
	return out, nil
}

func (f *fakeSource) Problems(_ context.Context, from, to time.Time) ([]model.ProblemReport, error) {
	var out []model.ProblemReport
	for _, p := range f.problems {
		if !p.ReportedAt.Before(from) && p.ReportedAt.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func inspectionsAt(machineID int64, at time.Time, passed, failed int) []model.Inspection {
	var out []model.Inspection
	for i := 0; i < passed+failed; i++ {
		out = append(out, model.Inspection{
			MachineID:         machineID,
			MeetsRequirements: i < passed,
			CreatedAt:         at.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func newTestGenerator(src dataSource) *Generator {
	g := NewGenerator(slog.New(slog.NewTextHandler(io.Discard, nil)), src, amsterdam)
	g.now = func() time.Time { return time.Date(2025, 3, 14, 22, 0, 0, 0, amsterdam) }
	return g
}

func TestMachineStatsStatus(t *testing.T) {
	day := time.Date(2025, 3, 14, 8, 0, 0, 0, amsterdam)
	machines := []model.Machine{{ID: 1, Name: "Pers 1"}, {ID: 2, Name: "Pers 2"}, {ID: 3, Name: "Pers 3"}}

	var inspections []model.Inspection
	inspections = append(inspections, inspectionsAt(1, day, 5, 0)...)
	inspections = append(inspections, inspectionsAt(2, day, 6, 1)...)
	inspections = append(inspections, inspectionsAt(3, day, 4, 0)...)
	problems := []model.ProblemReport{{MachineID: 2, ReportedAt: day}}

	stats := machineStats(machines, inspections, problems)
	cases := []struct {
		name   string
		idx    int
		status string
	}{
		{"enough checks and no problems", 0, StatusOK},
		{"problem reported", 1, StatusAttention},
		{"too few checks", 2, StatusAttention},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, stats[tc.idx].Status)
		})
	}
	assert.Equal(t, 7, stats[1].Inspections)
	assert.Equal(t, 6, stats[1].Passed)
}

func TestSummarize(t *testing.T) {
	day := time.Date(2025, 3, 14, 8, 0, 0, 0, amsterdam)
	s := summarize(inspectionsAt(1, day, 2, 1), []model.ProblemReport{{Solved: true}, {}, {}})
	assert.Equal(t, Summary{
		Inspections:    3,
		Passed:         2,
		QualityRate:    66.7,
		Problems:       3,
		OpenProblems:   2,
		SolvedProblems: 1,
	}, s)

	assert.Zero(t, summarize(nil, nil).QualityRate)
}

func TestDailyUsesLocalCalendarDay(t *testing.T) {
	src := &fakeSource{
		machines: []model.Machine{{ID: 1, Name: "Pers 1"}},
		inspections: []model.Inspection{
			{MachineID: 1, MeetsRequirements: true, CreatedAt: time.Date(2025, 3, 13, 23, 30, 0, 0, amsterdam)},
			{MachineID: 1, MeetsRequirements: true, CreatedAt: time.Date(2025, 3, 14, 0, 30, 0, 0, amsterdam)},
			{MachineID: 1, MeetsRequirements: false, CreatedAt: time.Date(2025, 3, 14, 23, 59, 0, 0, amsterdam)},
			{MachineID: 1, MeetsRequirements: true, CreatedAt: time.Date(2025, 3, 15, 0, 0, 0, 0, amsterdam)},
		},
	}

	data, err := newTestGenerator(src).Daily(context.Background(), time.Date(2025, 3, 14, 22, 1, 0, 0, amsterdam))
	require.NoError(t, err)
	assert.Equal(t, 2, data.Summary.Inspections)
	assert.Equal(t, 50.0, data.Summary.QualityRate)
}

func TestWeeklyWindowAndComparison(t *testing.T) {
	end := time.Date(2025, 3, 14, 22, 0, 0, 0, amsterdam) // Friday
	src := &fakeSource{machines: []model.Machine{{ID: 1, Name: "Pers 1"}}}
	for d := 0; d < 14; d++ {
		day := time.Date(2025, 3, 1+d, 10, 0, 0, 0, amsterdam)
		src.inspections = append(src.inspections, inspectionsAt(1, day, 4, 1)...)
	}

	w, err := newTestGenerator(src).Weekly(context.Background(), end)
	require.NoError(t, err)

	require.Len(t, w.Days, 7)
	assert.Equal(t, "2025-03-08", w.Start.Format("2006-01-02"))
	assert.Equal(t, "2025-03-14", w.End.Format("2006-01-02"))
	assert.Equal(t, 35, w.Summary.Inspections)
	assert.Equal(t, 80.0, w.AvgQualityRate)
	assert.Equal(t, 7.0, w.AvgInspectionsPerDay)
	require.NotNil(t, w.Previous)
	assert.Equal(t, 35, w.Previous.Inspections)
}

func TestWeeklyComparisonIsBestEffort(t *testing.T) {
	end := time.Date(2025, 3, 14, 22, 0, 0, 0, amsterdam)
	src := &fakeSource{failBefore: time.Date(2025, 3, 8, 0, 0, 0, 0, amsterdam)}

	w, err := newTestGenerator(src).Weekly(context.Background(), end)
	require.NoError(t, err)
	assert.Nil(t, w.Previous)
}

func TestGenerateProducesPDF(t *testing.T) {
	day := time.Date(2025, 3, 14, 9, 0, 0, 0, amsterdam)
	src := &fakeSource{
		machines:    []model.Machine{{ID: 1, Name: "Pers 1"}, {ID: 2, Name: "Zaagstraat"}},
		inspections: inspectionsAt(1, day, 5, 0),
		problems: []model.ProblemReport{
			{MachineID: 2, ProductCode: "P-9", Description: "Zaagblad moet vervangen worden na breuk", ReportedAt: day},
			{MachineID: 9, Description: "Onbekende machine", Solved: true, ReportedAt: day.Add(time.Hour)},
		},
	}
	g := newTestGenerator(src)

	cases := []struct {
		reportType model.ReportType
		filename   string
		label      string
	}{
		{model.ReportDaily, "KVH_Dagrapport_2025-03-14.pdf", "vrijdag 14 maart 2025"},
		{model.ReportWeekly, "KVH_Weekrapport_2025-03-14.pdf", "08-03-2025 - 14-03-2025"},
	}
	for _, tc := range cases {
		t.Run(string(tc.reportType), func(t *testing.T) {
			doc, err := g.Generate(context.Background(), tc.reportType, day)
			require.NoError(t, err)
			assert.Equal(t, tc.filename, doc.Filename)
			assert.Equal(t, "application/pdf", doc.ContentType)
			assert.Equal(t, tc.label, doc.PeriodLabel)
			assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF-")), "not a pdf")
		})
	}

	_, err := g.Generate(context.Background(), model.ReportType("monthly"), day)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "kort", truncate("kort", 100))
	long := "een heel erg lange omschrijving van het probleem"
	got := truncate(long, 47)
	assert.Equal(t, 10, len([]rune(got)))
	assert.Contains(t, got, "...")
}
