package report

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/floorreports/internal/model"
	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const (
	companyName   = "KVH Productie Dashboard"
	footerContact = "info@kvh.nl | tel +31 (0) 73 5992255"
	dailyTitle    = "Dagelijks Productie Rapport"
	weeklyTitle   = "Wekelijks Productie Rapport"

	margin     = 40.0
	lineHeight = 16.0
)

type rgb struct{ r, g, b int }

var (
	colorBrand  = rgb{30, 64, 120}
	colorMuted  = rgb{110, 110, 110}
	colorHeader = rgb{230, 236, 245}
	colorOK     = rgb{30, 130, 60}
	colorWarn   = rgb{190, 90, 20}
)

// column is one table column: header text, width in points and alignment.
type column struct {
	title string
	width float64
	align string
}

type document struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func newDocument(title, period string, generatedAt time.Time) *document {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin+20)
	pdf.AliasNbPages("")
	pdf.SetTitle(title+" "+period, true)
	pdf.SetAuthor(companyName, true)
	pdf.SetCreator(companyName, true)

	d := &document{pdf: pdf, tr: cp1252}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin - 10)
		d.font("", 8, colorMuted)
		pdf.CellFormat(0, 10, d.tr(companyName+" | "+footerContact), "", 0, "L", false, 0, "")
		pdf.SetX(margin)
		pdf.CellFormat(0, 10, fmt.Sprintf("Pagina %d van {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	d.font("B", 18, colorBrand)
	pdf.CellFormat(0, 24, d.tr(title), "", 1, "L", false, 0, "")
	d.font("", 11, colorMuted)
	pdf.CellFormat(0, lineHeight, d.tr(period), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, lineHeight, "Gegenereerd op "+generatedAt.Format("02-01-2006 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(10)
	return d
}

func (d *document) font(style string, size float64, c rgb) {
	d.pdf.SetFont("Helvetica", style, size)
	d.pdf.SetTextColor(c.r, c.g, c.b)
}

func (d *document) heading(text string) {
	d.pdf.Ln(8)
	d.font("B", 13, colorBrand)
	d.pdf.CellFormat(0, 20, d.tr(text), "B", 1, "L", false, 0, "")
	d.pdf.Ln(4)
}

func (d *document) paragraph(text string) {
	d.font("", 10, rgb{})
	d.pdf.MultiCell(0, lineHeight, d.tr(text), "", "L", false)
}

// boxes draws a row of labelled key figures.
func (d *document) boxes(items [][2]string) {
	pageW, _ := d.pdf.GetPageSize()
	w := (pageW - 2*margin) / float64(len(items))
	y := d.pdf.GetY()
	for i, it := range items {
		x := margin + float64(i)*w
		d.pdf.SetFillColor(colorHeader.r, colorHeader.g, colorHeader.b)
		d.pdf.Rect(x+2, y, w-4, 48, "F")
		d.pdf.SetXY(x+2, y+6)
		d.font("B", 16, colorBrand)
		d.pdf.CellFormat(w-4, 20, d.tr(it[1]), "", 2, "C", false, 0, "")
		d.font("", 8, colorMuted)
		d.pdf.CellFormat(w-4, 14, d.tr(it[0]), "", 0, "C", false, 0, "")
	}
	d.pdf.SetXY(margin, y+56)
}

func (d *document) table(cols []column, rows [][]string, status func(row []string) *rgb) {
	d.font("B", 9, rgb{})
	d.pdf.SetFillColor(colorHeader.r, colorHeader.g, colorHeader.b)
	for _, c := range cols {
		d.pdf.CellFormat(c.width, lineHeight+2, d.tr(c.title), "1", 0, c.align, true, 0, "")
	}
	d.pdf.Ln(-1)

	for _, row := range rows {
		for i, c := range cols {
			d.font("", 9, rgb{})
			if status != nil && i == len(cols)-1 {
				if col := status(row); col != nil {
					d.font("B", 9, *col)
				}
			}
			d.pdf.CellFormat(c.width, lineHeight, d.tr(truncate(row[i], c.width)), "1", 0, c.align, false, 0, "")
		}
		d.pdf.Ln(-1)
	}
}

func (d *document) bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

var machineColumns = []column{
	{"Machine", 175, "L"},
	{"Controles", 85, "R"},
	{"Goedgekeurd", 85, "R"},
	{"Problemen", 85, "R"},
	{"Status", 85, "C"},
}

func machineRows(stats []MachineStats) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Machine.Name,
			strconv.Itoa(s.Inspections),
			strconv.Itoa(s.Passed),
			strconv.Itoa(s.Problems),
			s.Status,
		})
	}
	return rows
}

func machineStatusColor(row []string) *rgb {
	if row[len(row)-1] == StatusOK {
		return &colorOK
	}
	return &colorWarn
}

func summaryBoxes(s Summary) [][2]string {
	return [][2]string{
		{"Controles", strconv.Itoa(s.Inspections)},
		{"Goedgekeurd", strconv.Itoa(s.Passed)},
		{"Kwaliteit", percent(s.QualityRate)},
		{"Problemen", strconv.Itoa(s.Problems)},
		{"Open", strconv.Itoa(s.OpenProblems)},
	}
}

func renderDaily(data *DailyData, generatedAt time.Time) ([]byte, error) {
	d := newDocument(dailyTitle, longDate(data.Date), generatedAt)

	d.heading("Samenvatting")
	d.boxes(summaryBoxes(data.Summary))

	d.heading("Machines")
	if len(data.Machines) == 0 {
		d.paragraph("Geen actieve machines.")
	} else {
		d.table(machineColumns, machineRows(data.Machines), machineStatusColor)
	}

	d.heading("Probleemmeldingen")
	if len(data.Problems) == 0 {
		d.paragraph("Geen problemen gemeld.")
	} else {
		names := make(map[int64]string, len(data.Machines))
		for _, m := range data.Machines {
			names[m.Machine.ID] = m.Machine.Name
		}
		rows := make([][]string, 0, len(data.Problems))
		for _, p := range data.Problems {
			name, ok := names[p.MachineID]
			if !ok {
				name = "#" + strconv.FormatInt(p.MachineID, 10)
			}
			rows = append(rows, []string{
				p.ReportedAt.In(data.Date.Location()).Format("15:04"),
				name,
				p.ProductCode,
				p.Description,
				problemStatus(p),
			})
		}
		d.table([]column{
			{"Tijd", 45, "C"},
			{"Machine", 100, "L"},
			{"Product", 70, "L"},
			{"Omschrijving", 240, "L"},
			{"Status", 60, "C"},
		}, rows, func(row []string) *rgb {
			if row[len(row)-1] == "Opgelost" {
				return &colorOK
			}
			return &colorWarn
		})
	}
	return d.bytes()
}

func renderWeekly(data *WeeklyData, generatedAt time.Time) ([]byte, error) {
	d := newDocument(weeklyTitle, shortDate(data.Start)+" - "+shortDate(data.End), generatedAt)

	d.heading("Samenvatting")
	d.boxes(summaryBoxes(data.Summary))
	d.paragraph(fmt.Sprintf("Gemiddelde kwaliteit per dag: %s. Gemiddeld %.1f controles per productiedag.",
		percent(data.AvgQualityRate), data.AvgInspectionsPerDay))

	d.heading("Per dag")
	rows := make([][]string, 0, len(data.Days))
	for _, day := range data.Days {
		rows = append(rows, []string{
			dayName(day.Date) + " " + shortDate(day.Date),
			strconv.Itoa(day.Summary.Inspections),
			strconv.Itoa(day.Summary.Passed),
			percent(day.Summary.QualityRate),
			strconv.Itoa(day.Summary.Problems),
		})
	}
	d.table([]column{
		{"Datum", 175, "L"},
		{"Controles", 85, "R"},
		{"Goedgekeurd", 85, "R"},
		{"Kwaliteit", 85, "R"},
		{"Problemen", 85, "R"},
	}, rows, nil)

	d.heading("Machines")
	if len(data.Machines) == 0 {
		d.paragraph("Geen actieve machines.")
	} else {
		d.table(machineColumns, machineRows(data.Machines), machineStatusColor)
	}

	if data.Previous != nil {
		d.heading("Vergelijking met vorige week")
		p := data.Previous
		d.table([]column{
			{"", 175, "L"},
			{"Deze week", 120, "R"},
			{"Vorige week", 120, "R"},
			{"Verschil", 100, "R"},
		}, [][]string{
			{"Controles", strconv.Itoa(data.Summary.Inspections), strconv.Itoa(p.Inspections), signed(float64(data.Summary.Inspections - p.Inspections))},
			{"Kwaliteit", percent(data.Summary.QualityRate), percent(p.QualityRate), signed(round1(data.Summary.QualityRate - p.QualityRate))},
			{"Problemen", strconv.Itoa(data.Summary.Problems), strconv.Itoa(p.Problems), signed(float64(data.Summary.Problems - p.Problems))},
		}, nil)
	}
	return d.bytes()
}

var cp1252Encoder = encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())

// cp1252 converts UTF-8 to the code page of the core PDF fonts.
func cp1252(s string) string {
	out, err := cp1252Encoder.String(s)
	if err != nil {
		return s
	}
	return out
}

func problemStatus(p model.ProblemReport) string {
	if p.Solved {
		return "Opgelost"
	}
	return "Open"
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

func signed(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v > 0 {
		return "+" + s
	}
	return s
}

// truncate shortens s to roughly fit a cell of width points at 9pt.
func truncate(s string, width float64) string {
	limit := int(width / 4.6)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}

var (
	dutchDays   = [...]string{"zondag", "maandag", "dinsdag", "woensdag", "donderdag", "vrijdag", "zaterdag"}
	dutchMonths = [...]string{"januari", "februari", "maart", "april", "mei", "juni", "juli", "augustus", "september", "oktober", "november", "december"}
)

func dayName(t time.Time) string {
	return dutchDays[t.Weekday()]
}

// longDate formats like "vrijdag 14 maart 2025".
func longDate(t time.Time) string {
	return fmt.Sprintf("%s %d %s %d", dayName(t), t.Day(), dutchMonths[t.Month()-1], t.Year())
}

func shortDate(t time.Time) string {
	return t.Format("02-01-2006")
}
