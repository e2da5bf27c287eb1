package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/joelkehle/lucidra-engine/internal/canvas"
	"github.com/joelkehle/lucidra-engine/internal/fiveforces"
	"github.com/joelkehle/lucidra-engine/internal/insight"
)

// Session is one persisted planning workspace: a canvas, an optional five
// forces analysis, and a version bumped on every save.
type Session struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Industry  string             `json:"industry,omitempty"`
	Sections  []canvas.Section   `json:"sections"`
	Forces    []fiveforces.Force `json:"forces"`
	Version   int64              `json:"version"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type SessionSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Industry  string    `json:"industry,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// API is the persistence contract shared by the memory and SQLite stores.
// Insights and supersessions are append-only.
type API interface {
	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context) ([]SessionSummary, error)
	// SaveSession stores s if the stored version equals s.Version and
	// returns it with the bumped version.
	SaveSession(ctx context.Context, s Session) (Session, error)
	DeleteSession(ctx context.Context, id string) error

	AppendInsights(ctx context.Context, sessionID string, list []insight.Insight) error
	RecordSupersessions(ctx context.Context, sessionID string, list []insight.Supersession) error
	ListInsights(ctx context.Context, sessionID string, includeSuperseded bool) ([]insight.Insight, error)
	ListSupersessions(ctx context.Context, sessionID string) ([]insight.Supersession, error)

	Close() error
}

func summaryOf(s Session) SessionSummary {
	return SessionSummary{
		ID:        s.ID,
		Name:      s.Name,
		Industry:  s.Industry,
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// sortableTime keeps a fixed fraction width so stored strings order like the
// instants they encode.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(sortableTime)
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
