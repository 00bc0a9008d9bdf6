package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/interviewer/internal/model"

	_ "modernc.org/sqlite"
)

// Store archives finished interview reports. Live session state is never stored.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interview_reports (
		session_id TEXT PRIMARY KEY,
		candidate_name TEXT NOT NULL,
		skill_level TEXT NOT NULL,
		percentage REAL NOT NULL,
		proficiency_level TEXT NOT NULL,
		ended_early INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_interview_reports_created_at ON interview_reports(created_at);

	CREATE TABLE IF NOT EXISTS archive_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveReport stores r, replacing any earlier report with the same session id.
func (s *Store) SaveReport(r *model.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO interview_reports
		   (session_id, candidate_name, skill_level, percentage, proficiency_level, ended_early, created_at, report_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   candidate_name = excluded.candidate_name,
		   skill_level = excluded.skill_level,
		   percentage = excluded.percentage,
		   proficiency_level = excluded.proficiency_level,
		   ended_early = excluded.ended_early,
		   report_json = excluded.report_json`,
		r.SessionID, r.CandidateName, string(r.SkillLevel), r.Percentage, string(r.ProficiencyLevel),
		r.EndedEarly, s.now().UTC(), string(data),
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", r.SessionID, err)
	}
	return nil
}

// GetReport returns the report for sessionID, or nil if there is none.
func (s *Store) GetReport(sessionID string) (*model.Report, error) {
	var data string
	err := s.db.QueryRow(
		`SELECT report_json FROM interview_reports WHERE session_id = ?`, sessionID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var r model.Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", sessionID, err)
	}
	return &r, nil
}

// ListReports returns summaries of all reports, newest first.
func (s *Store) ListReports() ([]model.ReportSummary, error) {
	rows, err := s.db.Query(
		`SELECT session_id, candidate_name, skill_level, percentage, proficiency_level, ended_early, created_at
		 FROM interview_reports ORDER BY created_at DESC, session_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.ReportSummary
	for rows.Next() {
		var r model.ReportSummary
		var level, proficiency string
		if err := rows.Scan(&r.SessionID, &r.CandidateName, &level, &r.Percentage, &proficiency, &r.EndedEarly, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.SkillLevel = model.SkillLevel(level)
		r.ProficiencyLevel = model.Proficiency(proficiency)
		list = append(list, r)
	}
	return list, rows.Err()
}

// ReportCount returns the number of archived reports.
func (s *Store) ReportCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM interview_reports`).Scan(&n)
	return n, err
}
