package report

import (
	"math"
	"time"

	"github.com/floorreports/internal/model"
)

const (
	StatusOK        = "OK"
	StatusAttention = "Aandacht"

	// minInspectionsOK is how many checks a machine needs on a day before it
	// can be reported as OK.
	minInspectionsOK = 5

	// productionDaysPerWeek is the divisor for the weekly per-day average.
	productionDaysPerWeek = 5
)

// Summary aggregates inspections and problem reports over a period.
type Summary struct {
	Inspections    int     `json:"inspections"`
	Passed         int     `json:"passed"`
	QualityRate    float64 `json:"qualityRate"`
	Problems       int     `json:"problems"`
	OpenProblems   int     `json:"openProblems"`
	SolvedProblems int     `json:"solvedProblems"`
}

// MachineStats is the per-machine slice of a Summary.
type MachineStats struct {
	Machine     model.Machine `json:"machine"`
	Inspections int           `json:"inspections"`
	Passed      int           `json:"passed"`
	Problems    int           `json:"problems"`
	Status      string        `json:"status"`
}

// DailyData is everything the daily report shows.
type DailyData struct {
	Date     time.Time             `json:"date"`
	Summary  Summary               `json:"summary"`
	Machines []MachineStats        `json:"machines"`
	Problems []model.ProblemReport `json:"problems"`
}

// DayStats is one row of the weekly per-day breakdown.
type DayStats struct {
	Date    time.Time `json:"date"`
	Summary Summary   `json:"summary"`
}

// WeeklyData is everything the weekly report shows.
type WeeklyData struct {
	Start                time.Time      `json:"start"`
	End                  time.Time      `json:"end"`
	Summary              Summary        `json:"summary"`
	Days                 []DayStats     `json:"days"`
	Machines             []MachineStats `json:"machines"`
	AvgQualityRate       float64        `json:"avgQualityRate"`
	AvgInspectionsPerDay float64        `json:"avgInspectionsPerDay"`
	Previous             *Summary       `json:"previous,omitempty"`
}

func summarize(inspections []model.Inspection, problems []model.ProblemReport) Summary {
	var s Summary
	s.Inspections = len(inspections)
	for _, i := range inspections {
		if i.MeetsRequirements {
			s.Passed++
		}
	}
	s.QualityRate = qualityRate(s.Passed, s.Inspections)

	s.Problems = len(problems)
	for _, p := range problems {
		if p.Solved {
			s.SolvedProblems++
		} else {
			s.OpenProblems++
		}
	}
	return s
}

// qualityRate is the passed percentage rounded to one decimal, 0 when
// nothing was inspected.
func qualityRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(passed) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func machineStats(machines []model.Machine, inspections []model.Inspection, problems []model.ProblemReport) []MachineStats {
	byID := make(map[int64]*MachineStats, len(machines))
	stats := make([]MachineStats, len(machines))
	for i, m := range machines {
		stats[i] = MachineStats{Machine: m}
		byID[m.ID] = &stats[i]
	}

	for _, in := range inspections {
		if s, ok := byID[in.MachineID]; ok {
			s.Inspections++
			if in.MeetsRequirements {
				s.Passed++
			}
		}
	}
	for _, p := range problems {
		if s, ok := byID[p.MachineID]; ok {
			s.Problems++
		}
	}

	for i := range stats {
		stats[i].Status = StatusAttention
		if stats[i].Inspections >= minInspectionsOK && stats[i].Problems == 0 {
			stats[i].Status = StatusOK
		}
	}
	return stats
}

func buildDaily(date time.Time, machines []model.Machine, inspections []model.Inspection, problems []model.ProblemReport) *DailyData {
	return &DailyData{
		Date:     date,
		Summary:  summarize(inspections, problems),
		Machines: machineStats(machines, inspections, problems),
		Problems: problems,
	}
}

func buildWeekly(start, end time.Time, loc *time.Location, machines []model.Machine, inspections []model.Inspection, problems []model.ProblemReport) *WeeklyData {
	w := &WeeklyData{
		Start:    start,
		End:      end,
		Summary:  summarize(inspections, problems),
		Machines: machineStats(machines, inspections, problems),
	}

	dayIns := make(map[string][]model.Inspection)
	for _, in := range inspections {
		k := dayKey(in.CreatedAt, loc)
		dayIns[k] = append(dayIns[k], in)
	}
	dayProb := make(map[string][]model.ProblemReport)
	for _, p := range problems {
		k := dayKey(p.ReportedAt, loc)
		dayProb[k] = append(dayProb[k], p)
	}

	var rateSum float64
	var rateDays int
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		k := dayKey(d, loc)
		s := summarize(dayIns[k], dayProb[k])
		w.Days = append(w.Days, DayStats{Date: d, Summary: s})
		if s.Inspections > 0 {
			rateSum += s.QualityRate
			rateDays++
		}
	}
	if rateDays > 0 {
		w.AvgQualityRate = round1(rateSum / float64(rateDays))
	}
	w.AvgInspectionsPerDay = round1(float64(w.Summary.Inspections) / productionDaysPerWeek)
	return w
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// startOfDay returns local midnight of t's calendar day in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
