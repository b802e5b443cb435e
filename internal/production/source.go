// Package production reads the shop-floor data the dashboard records:
// machines, quality inspections and problem reports.
package production

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/floorreports/internal/model"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Source queries the dashboard's Postgres database.
type Source struct {
	db *sql.DB
}

// Open connects to the Postgres database at url.
func Open(ctx context.Context, url string) (*Source, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open production database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping production database: %w", err)
	}
	return New(db), nil
}

func New(db *sql.DB) *Source {
	return &Source{db: db}
}

func (s *Source) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Source) Close() error {
	return s.db.Close()
}

// ActiveMachines returns machines whose status is "actief", ordered by name.
func (s *Source) ActiveMachines(ctx context.Context) ([]model.Machine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status
		FROM machines
		WHERE status = $1
		ORDER BY name`, model.MachineStatusActive)
	if err != nil {
		return nil, fmt.Errorf("query machines: %w", err)
	}
	defer rows.Close()

	machines := []model.Machine{}
	for rows.Next() {
		var m model.Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.Status); err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// Inspections returns quality checks created in [from, to).
func (s *Source) Inspections(ctx context.Context, from, to time.Time) ([]model.Inspection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id,
		       COALESCE(machine_id, 0),
		       COALESCE(employee_name, ''),
		       COALESCE(product_number, ''),
		       COALESCE(current_weight, 0)::float8,
		       COALESCE(control_weight, 0)::float8,
		       meets_requirements,
		       COALESCE(comments, ''),
		       created_at
		FROM quality_control
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query inspections: %w", err)
	}
	defer rows.Close()

	inspections := []model.Inspection{}
	for rows.Next() {
		var i model.Inspection
		if err := rows.Scan(&i.ID, &i.MachineID, &i.EmployeeName, &i.ProductNumber,
			&i.CurrentWeight, &i.ControlWeight, &i.MeetsRequirements, &i.Comments, &i.CreatedAt); err != nil {
			return nil, err
		}
		inspections = append(inspections, i)
	}
	return inspections, rows.Err()
}

// Problems returns problem reports filed in [from, to).
func (s *Source) Problems(ctx context.Context, from, to time.Time) ([]model.ProblemReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id,
		       COALESCE(machine_id, 0),
		       COALESCE(productcode, ''),
		       COALESCE(argumentatie, ''),
		       oplossing_gevonden,
		       COALESCE(oplossing_omschrijving, ''),
		       COALESCE(gebruiker_naam, ''),
		       datum_tijd
		FROM probleem_meldingen
		WHERE datum_tijd >= $1 AND datum_tijd < $2
		ORDER BY datum_tijd`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query problem reports: %w", err)
	}
	defer rows.Close()

	problems := []model.ProblemReport{}
	for rows.Next() {
		var p model.ProblemReport
		if err := rows.Scan(&p.ID, &p.MachineID, &p.ProductCode, &p.Description,
			&p.Solved, &p.Solution, &p.ReportedBy, &p.ReportedAt); err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}
