package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stellarlinkco/standup/internal/registry"
	"github.com/stellarlinkco/standup/internal/report"
)

const dayLayout = "2006-01-02"

// MetricsStore reads business metrics from a local SQLite database.
type MetricsStore struct {
	path string
	db   *sql.DB
}

// DailySales is one day of the weekly sales trend.
type DailySales struct {
	Date    string
	Sales   int
	Revenue float64
}

func NewMetricsStore(path string) *MetricsStore {
	return &MetricsStore{path: path}
}

func (s *MetricsStore) Name() string { return "metrics" }

func (s *MetricsStore) Connect(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return &ConnectionError{Adapter: s.Name(), Err: fmt.Errorf("create db dir: %w", err)}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return &ConnectionError{Adapter: s.Name(), Err: fmt.Errorf("open sqlite: %w", err)}
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return &ConnectionError{Adapter: s.Name(), Err: fmt.Errorf("sqlite pragma %q: %w", p, err)}
		}
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return &ConnectionError{Adapter: s.Name(), Err: err}
	}

	s.db = db
	return nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sales (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			amount DECIMAL(10,2),
			product TEXT,
			customer TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS support_tickets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			status TEXT,
			priority TEXT,
			resolved_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *MetricsStore) Ready() bool { return s.db != nil }

func (s *MetricsStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Snapshot returns the sales and support numbers for one calendar day.
// A day with no rows is a valid zero snapshot, not an error.
func (s *MetricsStore) Snapshot(ctx context.Context, day time.Time) (report.Metrics, error) {
	if s.db == nil {
		return report.Metrics{}, &QueryError{Err: fmt.Errorf("store not connected")}
	}
	date := day.Format(dayLayout)

	m := report.Metrics{AsOf: day}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM sales WHERE DATE(created_at) = ?`,
		date,
	).Scan(&m.SalesCount, &m.Revenue)
	if err != nil {
		return report.Metrics{}, &QueryError{Err: fmt.Errorf("sales for %s: %w", date, err)}
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM support_tickets WHERE DATE(resolved_at) = ?`,
		date,
	).Scan(&m.TicketsResolved)
	if err != nil {
		return report.Metrics{}, &QueryError{Err: fmt.Errorf("tickets for %s: %w", date, err)}
	}

	return m, nil
}

// WeeklyTrends returns per-day sales totals for the last 7 days.
func (s *MetricsStore) WeeklyTrends(ctx context.Context) ([]DailySales, error) {
	if s.db == nil {
		return nil, &QueryError{Err: fmt.Errorf("store not connected")}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DATE(created_at) as date, COUNT(*) as sales, SUM(amount) as revenue
		 FROM sales
		 WHERE created_at >= date('now', '-7 days')
		 GROUP BY DATE(created_at)
		 ORDER BY date`,
	)
	if err != nil {
		return nil, &QueryError{Err: fmt.Errorf("weekly trends: %w", err)}
	}
	defer rows.Close()

	var trends []DailySales
	for rows.Next() {
		var d DailySales
		if err := rows.Scan(&d.Date, &d.Sales, &d.Revenue); err != nil {
			return nil, &QueryError{Err: fmt.Errorf("scan trend row: %w", err)}
		}
		trends = append(trends, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Err: err}
	}
	return trends, nil
}

// Seed inserts sample data for the given day: 45 sales totaling about
// $12k and 3 resolved support tickets. Intended for local development.
func (s *MetricsStore) Seed(ctx context.Context, day time.Time) error {
	if s.db == nil {
		return &QueryError{Err: fmt.Errorf("store not connected")}
	}
	ts := day.Format(dayLayout + " 15:04:05")

	for i := 0; i < 45; i++ {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sales (amount, product, customer, created_at) VALUES (?, ?, ?, ?)`,
			266.67, fmt.Sprintf("Product %d", i%5), fmt.Sprintf("Customer %d", i%20), ts,
		)
		if err != nil {
			return &QueryError{Err: fmt.Errorf("seed sales: %w", err)}
		}
	}
	for i := 0; i < 3; i++ {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO support_tickets (status, priority, resolved_at) VALUES ('resolved', 'medium', ?)`,
			ts,
		)
		if err != nil {
			return &QueryError{Err: fmt.Errorf("seed tickets: %w", err)}
		}
	}
	log.Printf("[metrics] seeded sample data for %s", day.Format(dayLayout))
	return nil
}

func (s *MetricsStore) RegisterTools(reg *registry.Registry) error {
	err := reg.Register("get_yesterday_metrics", func(ctx context.Context, args ...any) (any, error) {
		day := time.Now().AddDate(0, 0, -1)
		if len(args) > 0 {
			if d, ok := args[0].(time.Time); ok {
				day = d
			}
		}
		return s.Snapshot(ctx, day)
	})
	if err != nil {
		return err
	}
	return reg.Register("get_weekly_trends", func(ctx context.Context, args ...any) (any, error) {
		return s.WeeklyTrends(ctx)
	})
}
