package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"

	"autograder/internal/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS grade_runs (
		run_id CHAR(26) NOT NULL PRIMARY KEY,
		bundle VARCHAR(512) NOT NULL,
		created_at DATETIME(3) NOT NULL,
		duration_ns BIGINT NOT NULL,
		workers INT NOT NULL,
		programs INT NOT NULL,
		passing_programs INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS grade_reports (
		run_id CHAR(26) NOT NULL,
		program_id VARCHAR(255) NOT NULL,
		source VARCHAR(255) NOT NULL,
		expected_tests INT NULL,
		grade DOUBLE NOT NULL,
		passing BOOLEAN NOT NULL,
		fault VARCHAR(16) NOT NULL,
		timeout_ns BIGINT NOT NULL,
		soft_timeout_ns BIGINT NOT NULL,
		hard_errors MEDIUMTEXT NOT NULL,
		style_issues MEDIUMTEXT NOT NULL,
		PRIMARY KEY (run_id, program_id)
	)`,
	`CREATE TABLE IF NOT EXISTS grade_results (
		run_id CHAR(26) NOT NULL,
		program_id VARCHAR(255) NOT NULL,
		idx INT NOT NULL,
		test_id VARCHAR(255) NOT NULL,
		score DOUBLE NOT NULL,
		info TEXT NOT NULL,
		elapsed_ns BIGINT NOT NULL,
		timeout_ns BIGINT NOT NULL,
		soft_timeout_ns BIGINT NOT NULL,
		sections MEDIUMTEXT NOT NULL,
		PRIMARY KEY (run_id, program_id, idx)
	)`,
}

var databaseName = regexp.MustCompile(`^[A-Za-z0-9_$]{1,64}$`)

// ErrNoRuns is returned by Load when the gradebook is empty
var ErrNoRuns = errors.New("no grading runs stored")

// MySQLStorage stores runs in a MySQL gradebook
type MySQLStorage struct {
	db *sql.DB
}

// NewMySQLStorage wraps an open database handle
func NewMySQLStorage(db *sql.DB) *MySQLStorage {
	return &MySQLStorage{db: db}
}

// OpenMySQL connects to the gradebook described by dsn
func OpenMySQL(ctx context.Context, dsn string) (*MySQLStorage, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database server: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database server: %w", err)
	}
	return &MySQLStorage{db: db}, nil
}

// EnsureDatabase creates the database named in dsn when it does not exist yet.
// It reports whether the database was created.
func EnsureDatabase(ctx context.Context, dsn string) (bool, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return false, fmt.Errorf("parse dsn: %w", err)
	}
	name := cfg.DBName
	if !databaseName.MatchString(name) {
		return false, fmt.Errorf("invalid database name: %q", name)
	}

	// Connect to MySQL server (without specifying database)
	cfg.DBName = ""
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return false, fmt.Errorf("failed to connect to database server: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return false, fmt.Errorf("failed to ping database server: %w", err)
	}

	var exists bool
	query := "SELECT EXISTS(SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?)"
	if err := db.QueryRowContext(ctx, query, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check database %s: %w", name, err)
	}
	if exists {
		return false, nil
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)); err != nil {
		return false, fmt.Errorf("failed to create database %s: %w", name, err)
	}
	return true, nil
}

// EnsureSchema creates the gradebook tables
func (s *MySQLStorage) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create gradebook tables: %w", err)
		}
	}
	return nil
}

// Close closes the database handle
func (s *MySQLStorage) Close() error {
	return s.db.Close()
}

// Save implements Storage
func (s *MySQLStorage) Save(run *Run) error {
	return s.SaveContext(context.Background(), run)
}

// SaveContext stores the run and all its reports in one transaction
func (s *MySQLStorage) SaveContext(ctx context.Context, run *Run) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	created, err := time.Parse(time.RFC3339, run.Meta.Timestamp)
	if err != nil {
		created = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO grade_runs (run_id, bundle, created_at, duration_ns, workers, programs, passing_programs)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.Meta.RunID, run.Meta.Bundle, created.UTC(),
		int64(run.Meta.DurationSeconds*float64(time.Second)),
		run.Meta.Workers, run.Meta.Programs, run.Meta.PassingPrograms)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.Meta.RunID, err)
	}

	for _, rep := range run.Reports {
		row, err := newReportRow(rep)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO grade_reports (run_id, program_id, source, expected_tests, grade, passing, fault,
			timeout_ns, soft_timeout_ns, hard_errors, style_issues)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.Meta.RunID, rep.ProgramID, rep.Source, row.expected, rep.Grade(), rep.IsPassing(),
			string(rep.Fault), int64(rep.Timeout), int64(rep.SoftTimeout), row.hardErrors, row.styleIssues)
		if err != nil {
			return fmt.Errorf("insert report %s: %w", rep.ProgramID, err)
		}

		for _, result := range rep.Results {
			sections, err := encodeJSON(result.Sections)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO grade_results (run_id, program_id, idx, test_id, score, info, elapsed_ns,
				timeout_ns, soft_timeout_ns, sections)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.Meta.RunID, rep.ProgramID, result.Index, result.ID, result.Score, result.Info,
				int64(result.Elapsed), int64(result.Timeout), int64(result.SoftTimeout), sections)
			if err != nil {
				return fmt.Errorf("insert result %s: %w", result.Name(), err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load implements Storage
func (s *MySQLStorage) Load() (*Run, error) {
	return s.LoadContext(context.Background())
}

// LoadContext reads the most recent run
func (s *MySQLStorage) LoadContext(ctx context.Context) (*Run, error) {
	var (
		run      Run
		created  time.Time
		duration int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, bundle, created_at, duration_ns, workers FROM grade_runs
		ORDER BY created_at DESC, run_id DESC LIMIT 1`).
		Scan(&run.Meta.RunID, &run.Meta.Bundle, &created, &duration, &run.Meta.Workers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	reports, err := s.loadReports(ctx, run.Meta.RunID)
	if err != nil {
		return nil, err
	}
	if err := s.loadResults(ctx, run.Meta.RunID, reports); err != nil {
		return nil, err
	}

	loaded := NewRun(run.Meta.RunID, run.Meta.Bundle, reports.ordered, time.Duration(duration), run.Meta.Workers)
	loaded.Meta.Timestamp = created.Format(time.RFC3339)
	return loaded, nil
}

type reportSet struct {
	byID    map[string]*domain.Report
	ordered []*domain.Report
}

func (s *MySQLStorage) loadReports(ctx context.Context, runID string) (*reportSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT program_id, source, expected_tests, fault, timeout_ns, soft_timeout_ns, hard_errors, style_issues
		FROM grade_reports WHERE run_id = ? ORDER BY program_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	defer rows.Close()

	set := &reportSet{byID: make(map[string]*domain.Report)}
	for rows.Next() {
		var (
			rep                     domain.Report
			expected                sql.NullInt64
			fault                   string
			timeout, soft           int64
			hardErrors, styleIssues string
		)
		if err := rows.Scan(&rep.ProgramID, &rep.Source, &expected, &fault, &timeout, &soft, &hardErrors, &styleIssues); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if expected.Valid {
			n := int(expected.Int64)
			rep.ExpectedTests = &n
		}
		rep.Fault = domain.FaultKind(fault)
		rep.Timeout, rep.SoftTimeout = time.Duration(timeout), time.Duration(soft)
		if err := json.Unmarshal([]byte(hardErrors), &rep.HardErrors); err != nil {
			return nil, fmt.Errorf("decode hard errors of %s: %w", rep.ProgramID, err)
		}
		if err := json.Unmarshal([]byte(styleIssues), &rep.StyleIssues); err != nil {
			return nil, fmt.Errorf("decode style issues of %s: %w", rep.ProgramID, err)
		}
		rep.Completed, rep.Published = true, true

		set.byID[rep.ProgramID] = &rep
		set.ordered = append(set.ordered, &rep)
	}
	return set, rows.Err()
}

func (s *MySQLStorage) loadResults(ctx context.Context, runID string, reports *reportSet) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT program_id, idx, test_id, score, info, elapsed_ns, timeout_ns, soft_timeout_ns, sections
		FROM grade_results WHERE run_id = ? ORDER BY program_id, idx`, runID)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			result                 domain.TestResult
			elapsed, timeout, soft int64
			sections               string
		)
		if err := rows.Scan(&result.Program, &result.Index, &result.ID, &result.Score, &result.Info,
			&elapsed, &timeout, &soft, &sections); err != nil {
			return fmt.Errorf("scan result: %w", err)
		}
		result.Elapsed = time.Duration(elapsed)
		result.Timeout, result.SoftTimeout = time.Duration(timeout), time.Duration(soft)
		if err := json.Unmarshal([]byte(sections), &result.Sections); err != nil {
			return fmt.Errorf("decode feedback of %s: %w", result.Name(), err)
		}
		result.Scored, result.Published = true, true

		rep, ok := reports.byID[result.Program]
		if !ok {
			continue
		}
		rep.Results = append(rep.Results, &result)
	}
	return rows.Err()
}

type reportRow struct {
	expected    sql.NullInt64
	hardErrors  string
	styleIssues string
}

func newReportRow(rep *domain.Report) (reportRow, error) {
	var row reportRow
	if rep.ExpectedTests != nil {
		row.expected = sql.NullInt64{Int64: int64(*rep.ExpectedTests), Valid: true}
	}
	var err error
	if row.hardErrors, err = encodeJSON(nonNil(rep.HardErrors)); err != nil {
		return row, err
	}
	if row.styleIssues, err = encodeJSON(nonNil(rep.StyleIssues)); err != nil {
		return row, err
	}
	return row, nil
}

func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode column: %w", err)
	}
	return string(data), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
