// Package report builds the daily and weekly production reports and renders
// them as PDF documents.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/floorreports/internal/model"
)

// MaxAttachmentSize is the largest document that will be mailed.
const MaxAttachmentSize = 5 * 1024 * 1024

var ErrDocumentTooLarge = errors.New("report: document too large to mail")

type dataSource interface {
	ActiveMachines(ctx context.Context) ([]model.Machine, error)
	Inspections(ctx context.Context, from, to time.Time) ([]model.Inspection, error)
	Problems(ctx context.Context, from, to time.Time) ([]model.ProblemReport, error)
}

// Generator turns production data into report documents.
type Generator struct {
	src    dataSource
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

func NewGenerator(logger *slog.Logger, src dataSource, loc *time.Location) *Generator {
	return &Generator{src: src, loc: loc, now: time.Now, logger: logger}
}

// Generate renders the report of type t for the day (daily) or the seven
// days ending on (weekly) ref.
func (g *Generator) Generate(ctx context.Context, t model.ReportType, ref time.Time) (*model.Document, error) {
	var (
		doc *model.Document
		err error
	)
	switch t {
	case model.ReportDaily:
		doc, err = g.daily(ctx, ref)
	case model.ReportWeekly:
		doc, err = g.weekly(ctx, ref)
	default:
		return nil, fmt.Errorf("report: unknown type %q", t)
	}
	if err != nil {
		return nil, err
	}

	if len(doc.Data) > MaxAttachmentSize {
		return nil, fmt.Errorf("%w: %s exceeds %s", ErrDocumentTooLarge,
			humanize.IBytes(uint64(len(doc.Data))), humanize.IBytes(MaxAttachmentSize))
	}
	g.logger.Debug("report: generated", "type", t, "file", doc.Filename, "size", humanize.IBytes(uint64(len(doc.Data))))
	return doc, nil
}

// Daily collects the data of the day containing date.
func (g *Generator) Daily(ctx context.Context, date time.Time) (*DailyData, error) {
	from := startOfDay(date, g.loc)
	to := from.AddDate(0, 0, 1)

	machines, err := g.src.ActiveMachines(ctx)
	if err != nil {
		return nil, fmt.Errorf("daily report: %w", err)
	}
	inspections, err := g.src.Inspections(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily report: %w", err)
	}
	problems, err := g.src.Problems(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily report: %w", err)
	}
	return buildDaily(from, machines, inspections, problems), nil
}

// Weekly collects the seven days ending on the day containing end, plus the
// seven days before that for comparison when they can be read.
func (g *Generator) Weekly(ctx context.Context, end time.Time) (*WeeklyData, error) {
	last := startOfDay(end, g.loc)
	first := last.AddDate(0, 0, -6)
	to := last.AddDate(0, 0, 1)

	machines, err := g.src.ActiveMachines(ctx)
	if err != nil {
		return nil, fmt.Errorf("weekly report: %w", err)
	}
	inspections, err := g.src.Inspections(ctx, first, to)
	if err != nil {
		return nil, fmt.Errorf("weekly report: %w", err)
	}
	problems, err := g.src.Problems(ctx, first, to)
	if err != nil {
		return nil, fmt.Errorf("weekly report: %w", err)
	}
	w := buildWeekly(first, last, g.loc, machines, inspections, problems)

	if prev, err := g.previousWeek(ctx, first); err != nil {
		g.logger.Warn("report: previous week unavailable", "err", err)
	} else {
		w.Previous = prev
	}
	return w, nil
}

func (g *Generator) previousWeek(ctx context.Context, start time.Time) (*Summary, error) {
	from := start.AddDate(0, 0, -7)
	inspections, err := g.src.Inspections(ctx, from, start)
	if err != nil {
		return nil, err
	}
	problems, err := g.src.Problems(ctx, from, start)
	if err != nil {
		return nil, err
	}
	s := summarize(inspections, problems)
	return &s, nil
}

func (g *Generator) daily(ctx context.Context, ref time.Time) (*model.Document, error) {
	data, err := g.Daily(ctx, ref)
	if err != nil {
		return nil, err
	}
	pdf, err := renderDaily(data, g.now().In(g.loc))
	if err != nil {
		return nil, err
	}
	return &model.Document{
		Filename:    "KVH_Dagrapport_" + data.Date.Format("2006-01-02") + ".pdf",
		ContentType: "application/pdf",
		Title:       dailyTitle,
		PeriodLabel: longDate(data.Date),
		Data:        pdf,
	}, nil
}

func (g *Generator) weekly(ctx context.Context, ref time.Time) (*model.Document, error) {
	data, err := g.Weekly(ctx, ref)
	if err != nil {
		return nil, err
	}
	pdf, err := renderWeekly(data, g.now().In(g.loc))
	if err != nil {
		return nil, err
	}
	return &model.Document{
		Filename:    "KVH_Weekrapport_" + data.End.Format("2006-01-02") + ".pdf",
		ContentType: "application/pdf",
		Title:       weeklyTitle,
		PeriodLabel: shortDate(data.Start) + " - " + shortDate(data.End),
		Data:        pdf,
	}, nil
}
