package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
	"github.com/joelkehle/lucidra-engine/internal/insight"
)

// SQLite persists sessions as JSON documents next to append-only insight
// and supersession tables.
type SQLite struct {
	db  *sqlx.DB
	now func() time.Time
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id  TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	industry    TEXT NOT NULL DEFAULT '',
	canvas_json TEXT NOT NULL DEFAULT '[]',
	forces_json TEXT NOT NULL DEFAULT '[]',
	version     INTEGER NOT NULL DEFAULT 1,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS insights (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	insight_id  TEXT NOT NULL UNIQUE,
	session_id  TEXT NOT NULL,
	type        TEXT NOT NULL,
	section     TEXT NOT NULL,
	confidence  INTEGER NOT NULL,
	impact      TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL DEFAULT '',
	evidence    TEXT NOT NULL DEFAULT '[]',
	sources     TEXT NOT NULL DEFAULT '[]',
	origin      TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS insights_by_session ON insights (session_id, seq);

CREATE TABLE IF NOT EXISTS insight_supersessions (
	insight_id    TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	superseded_by TEXT NOT NULL,
	superseded_at TEXT NOT NULL
);
`

type sessionRow struct {
	ID         string `db:"session_id"`
	Name       string `db:"name"`
	Industry   string `db:"industry"`
	CanvasJSON string `db:"canvas_json"`
	ForcesJSON string `db:"forces_json"`
	Version    int64  `db:"version"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

type insightRow struct {
	Seq         int64  `db:"seq"`
	ID          string `db:"insight_id"`
	SessionID   string `db:"session_id"`
	Type        string `db:"type"`
	Section     string `db:"section"`
	Confidence  int    `db:"confidence"`
	Impact      string `db:"impact"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Action      string `db:"action"`
	Evidence    string `db:"evidence"`
	Sources     string `db:"sources"`
	Origin      string `db:"origin"`
	CreatedAt   string `db:"created_at"`
}

type supersessionRow struct {
	InsightID    string `db:"insight_id"`
	SessionID    string `db:"session_id"`
	SupersededBy string `db:"superseded_by"`
	SupersededAt string `db:"superseded_at"`
}

func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if strings.TrimSpace(sess.ID) == "" {
		sess.ID = uuid.NewString()
	}
	now := s.now().UTC()
	sess.Version = 1
	sess.CreatedAt = now
	sess.UpdatedAt = now
	row := toSessionRow(sess)
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO sessions (session_id, name, industry, canvas_json, forces_json, version, created_at, updated_at)
		VALUES (:session_id, :name, :industry, :canvas_json, :forces_json, :version, :created_at, :updated_at)`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return Session{}, apperr.Conflict("session %q already exists", sess.ID)
		}
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return fromSessionRow(row)
}

func (s *SQLite) GetSession(ctx context.Context, id string) (Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `SELECT session_id, name, industry, canvas_json, forces_json, version, created_at, updated_at
		FROM sessions WHERE session_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.NotFound("session %q not found", id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	return fromSessionRow(row)
}

func (s *SQLite) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows, `SELECT session_id, name, industry, version, created_at, updated_at
		FROM sessions ORDER BY created_at, session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]SessionSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, SessionSummary{
			ID:        r.ID,
			Name:      r.Name,
			Industry:  r.Industry,
			Version:   r.Version,
			CreatedAt: parseTime(r.CreatedAt),
			UpdatedAt: parseTime(r.UpdatedAt),
		})
	}
	return out, nil
}

func (s *SQLite) SaveSession(ctx context.Context, sess Session) (Session, error) {
	expected := sess.Version
	sess.Version = expected + 1
	sess.UpdatedAt = s.now().UTC()
	row := toSessionRow(sess)
	res, err := s.db.ExecContext(ctx, `UPDATE sessions
		SET name = ?, industry = ?, canvas_json = ?, forces_json = ?, version = ?, updated_at = ?
		WHERE session_id = ? AND version = ?`,
		row.Name, row.Industry, row.CanvasJSON, row.ForcesJSON, row.Version, row.UpdatedAt, row.ID, expected)
	if err != nil {
		return Session{}, fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Session{}, fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		var current int64
		err := s.db.GetContext(ctx, &current, `SELECT version FROM sessions WHERE session_id = ?`, sess.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, apperr.NotFound("session %q not found", sess.ID)
		}
		if err != nil {
			return Session{}, fmt.Errorf("load session version: %w", err)
		}
		return Session{}, apperr.Conflict("session %q is at version %d, not %d", sess.ID, current, expected)
	}
	return s.GetSession(ctx, sess.ID)
}

func (s *SQLite) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("session %q not found", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM insights WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete insights: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM insight_supersessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete supersessions: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) AppendInsights(ctx context.Context, sessionID string, list []insight.Insight) error {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insights: %w", err)
	}
	defer tx.Rollback()
	for _, in := range list {
		row := insightRow{
			ID:          in.ID,
			SessionID:   sessionID,
			Type:        string(in.Type),
			Section:     in.Section,
			Confidence:  in.Confidence,
			Impact:      string(in.Impact),
			Title:       in.Title,
			Description: in.Description,
			Action:      in.Action,
			Evidence:    marshalJSON(nonNilStrings(in.Evidence)),
			Sources:     marshalJSON(nonNilStrings(in.Sources)),
			Origin:      in.Origin,
			CreatedAt:   timeToString(in.Timestamp),
		}
		_, err := tx.NamedExecContext(ctx, `INSERT OR IGNORE INTO insights
			(insight_id, session_id, type, section, confidence, impact, title, description, action, evidence, sources, origin, created_at)
			VALUES (:insight_id, :session_id, :type, :section, :confidence, :impact, :title, :description, :action, :evidence, :sources, :origin, :created_at)`, row)
		if err != nil {
			return fmt.Errorf("insert insight %s: %w", in.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) RecordSupersessions(ctx context.Context, sessionID string, list []insight.Supersession) error {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin supersessions: %w", err)
	}
	defer tx.Rollback()
	for _, sup := range list {
		row := supersessionRow{
			InsightID:    sup.InsightID,
			SessionID:    sessionID,
			SupersededBy: sup.SupersededBy,
			SupersededAt: timeToString(sup.At),
		}
		_, err := tx.NamedExecContext(ctx, `INSERT OR IGNORE INTO insight_supersessions (insight_id, session_id, superseded_by, superseded_at)
			VALUES (:insight_id, :session_id, :superseded_by, :superseded_at)`, row)
		if err != nil {
			return fmt.Errorf("insert supersession %s: %w", sup.InsightID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) ListInsights(ctx context.Context, sessionID string, includeSuperseded bool) ([]insight.Insight, error) {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	query := `SELECT i.seq, i.insight_id, i.session_id, i.type, i.section, i.confidence, i.impact, i.title,
		i.description, i.action, i.evidence, i.sources, i.origin, i.created_at
		FROM insights i WHERE i.session_id = ?`
	if !includeSuperseded {
		query += ` AND NOT EXISTS (SELECT 1 FROM insight_supersessions s WHERE s.insight_id = i.insight_id)`
	}
	query += ` ORDER BY i.seq`
	var rows []insightRow
	if err := s.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	out := make([]insight.Insight, 0, len(rows))
	for _, r := range rows {
		in := insight.Insight{
			ID:          r.ID,
			Type:        insight.Type(r.Type),
			Section:     r.Section,
			Confidence:  r.Confidence,
			Impact:      insight.Impact(r.Impact),
			Title:       r.Title,
			Description: r.Description,
			Action:      r.Action,
			Origin:      r.Origin,
			Timestamp:   parseTime(r.CreatedAt),
		}
		if err := json.Unmarshal([]byte(r.Evidence), &in.Evidence); err != nil {
			return nil, fmt.Errorf("decode evidence for %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.Sources), &in.Sources); err != nil {
			return nil, fmt.Errorf("decode sources for %s: %w", r.ID, err)
		}
		in.Evidence = nonNilStrings(in.Evidence)
		in.Sources = nonNilStrings(in.Sources)
		out = append(out, in)
	}
	return out, nil
}

func (s *SQLite) ListSupersessions(ctx context.Context, sessionID string) ([]insight.Supersession, error) {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	var rows []supersessionRow
	err := s.db.SelectContext(ctx, &rows, `SELECT insight_id, session_id, superseded_by, superseded_at
		FROM insight_supersessions WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list supersessions: %w", err)
	}
	out := make([]insight.Supersession, 0, len(rows))
	for _, r := range rows {
		out = append(out, insight.Supersession{InsightID: r.InsightID, SupersededBy: r.SupersededBy, At: parseTime(r.SupersededAt)})
	}
	return out, nil
}

func (s *SQLite) requireSession(ctx context.Context, id string) error {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("session %q not found", id)
	}
	return nil
}

func toSessionRow(s Session) sessionRow {
	return sessionRow{
		ID:         s.ID,
		Name:       s.Name,
		Industry:   s.Industry,
		CanvasJSON: marshalJSON(s.Sections),
		ForcesJSON: marshalJSON(s.Forces),
		Version:    s.Version,
		CreatedAt:  timeToString(s.CreatedAt),
		UpdatedAt:  timeToString(s.UpdatedAt),
	}
}

func fromSessionRow(r sessionRow) (Session, error) {
	s := Session{
		ID:        r.ID,
		Name:      r.Name,
		Industry:  r.Industry,
		Version:   r.Version,
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
	if err := json.Unmarshal([]byte(r.CanvasJSON), &s.Sections); err != nil {
		return Session{}, fmt.Errorf("decode canvas for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.ForcesJSON), &s.Forces); err != nil {
		return Session{}, fmt.Errorf("decode forces for %s: %w", r.ID, err)
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}
