package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/saranrapjs/esrs-ixbrl/pkg/report"
)

// ErrNotFound is returned when a report or context is not cached.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite database connection caching reports and contexts.
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes tables
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// createTables creates the required tables if they don't exist
func (db *DB) createTables() error {
	reportsSQL := `
		CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			data BLOB NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := db.conn.Exec(reportsSQL); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}

	contextsSQL := `
		CREATE TABLE IF NOT EXISTS contexts (
			position INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			data BLOB NOT NULL
		);
	`
	if _, err := db.conn.Exec(contextsSQL); err != nil {
		return fmt.Errorf("failed to create contexts table: %w", err)
	}

	// Full text search over report titles and block text
	searchSQL := `
		CREATE VIRTUAL TABLE IF NOT EXISTS report_search USING fts5(
			id UNINDEXED,
			title,
			content
		);
	`
	if _, err := db.conn.Exec(searchSQL); err != nil {
		return fmt.Errorf("failed to create report_search table: %w", err)
	}

	return nil
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// ReportSummary is a cached report without its blocks.
type ReportSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updatedAt"`
}

// StoreReport inserts or replaces a report and refreshes its search entry.
func (db *DB) StoreReport(doc *report.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("report must have an id")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := timestamp()
	query := `
		INSERT INTO reports (id, title, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := tx.Exec(query, doc.ID, doc.Title, data, now, now); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM report_search WHERE id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear report search entry: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO report_search (id, title, content) VALUES (?, ?, ?)`, doc.ID, doc.Title, searchText(doc)); err != nil {
		return fmt.Errorf("failed to store report search entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func searchText(doc *report.Document) string {
	parts := make([]string, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		if b != nil {
			parts = append(parts, b.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// GetReport retrieves a report by id.
func (db *DB) GetReport(id string) (*report.Document, error) {
	var data []byte
	err := db.conn.QueryRow("SELECT data FROM reports WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query report: %w", err)
	}

	var doc report.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &doc, nil
}

// ListReports returns every cached report, most recently updated first.
func (db *DB) ListReports() ([]ReportSummary, error) {
	rows, err := db.conn.Query(`SELECT id, title, updated_at FROM reports ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []ReportSummary{}
	for rows.Next() {
		var s ReportSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		reports = append(reports, s)
	}
	return reports, rows.Err()
}

// DeleteReport removes a report and its search entry.
func (db *DB) DeleteReport(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if _, err := tx.Exec(`DELETE FROM report_search WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete report search entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsReportStale reports whether the cached report is missing or was last
// stored more than maxAge ago.
func (db *DB) IsReportStale(id string, maxAge time.Duration) (bool, error) {
	var updatedAt string
	err := db.conn.QueryRow("SELECT updated_at FROM reports WHERE id = ?", id).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("failed to query report timestamp: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	return time.Since(ts) > maxAge, nil
}

// SearchReports runs a prefix full text search over report titles and
// text, best match first.
func (db *DB) SearchReports(query string, limit int) ([]ReportSummary, error) {
	match := ftsQuery(query)
	if match == "" {
		return []ReportSummary{}, nil
	}
	sqlQuery := `
		SELECT r.id, r.title, r.updated_at
		FROM report_search s
		JOIN reports r ON r.id = s.id
		WHERE report_search MATCH ?
		ORDER BY s.rank
		LIMIT ?
	`
	rows, err := db.conn.Query(sqlQuery, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search reports: %w", err)
	}
	defer rows.Close()

	results := []ReportSummary{}
	for rows.Next() {
		var s ReportSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// ftsQuery quotes each word so user input cannot inject FTS5 syntax, and
// makes the last word a prefix.
func ftsQuery(q string) string {
	words := strings.Fields(q)
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	if len(words) == 0 {
		return ""
	}
	words[len(words)-1] += "*"
	return strings.Join(words, " ")
}

// StoreContext inserts or updates a context, keeping its original position.
func (db *DB) StoreContext(c report.Context) error {
	if c.ID == "" {
		return fmt.Errorf("context must have an id")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	query := `
		INSERT INTO contexts (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`
	if _, err := db.conn.Exec(query, c.ID, data); err != nil {
		return fmt.Errorf("failed to store context: %w", err)
	}
	return nil
}

// GetContext retrieves a context by id.
func (db *DB) GetContext(id string) (report.Context, error) {
	var data []byte
	err := db.conn.QueryRow("SELECT data FROM contexts WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return report.Context{}, fmt.Errorf("context %s: %w", id, ErrNotFound)
		}
		return report.Context{}, fmt.Errorf("failed to query context: %w", err)
	}
	var c report.Context
	if err := json.Unmarshal(data, &c); err != nil {
		return report.Context{}, fmt.Errorf("failed to unmarshal context: %w", err)
	}
	return c, nil
}

// ListContexts returns every context in insertion order.
func (db *DB) ListContexts() ([]report.Context, error) {
	rows, err := db.conn.Query(`SELECT data FROM contexts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contexts: %w", err)
	}
	defer rows.Close()

	contexts := []report.Context{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan context row: %w", err)
		}
		var c report.Context
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
		contexts = append(contexts, c)
	}
	return contexts, rows.Err()
}

// DeleteContext removes a context.
func (db *DB) DeleteContext(id string) error {
	res, err := db.conn.Exec(`DELETE FROM contexts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete context: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("context %s: %w", id, ErrNotFound)
	}
	return nil
}

// ReportsReferencingContext returns the ids of cached reports with at least
// one tag bound to the context.
func (db *DB) ReportsReferencingContext(contextID string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT data FROM reports ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		var doc report.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		if doc.ReferencesContext(contextID) {
			ids = append(ids, doc.ID)
		}
	}
	return ids, rows.Err()
}
