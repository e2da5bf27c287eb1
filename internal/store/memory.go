package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
	"github.com/joelkehle/lucidra-engine/internal/insight"
)

// Memory keeps everything in process. Values are deep-copied on the way in
// and out so callers never share slices with the store.
type Memory struct {
	mu           sync.Mutex
	now          func() time.Time
	sessions     map[string]Session
	insights     map[string][]insight.Insight
	insightIDs   map[string]struct{}
	supersession map[string][]insight.Supersession
	superseded   map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		now:          time.Now,
		sessions:     map[string]Session{},
		insights:     map[string][]insight.Insight{},
		insightIDs:   map[string]struct{}{},
		supersession: map[string][]insight.Supersession{},
		superseded:   map[string]struct{}{},
	}
}

func (m *Memory) CreateSession(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(s.ID) == "" {
		s.ID = uuid.NewString()
	}
	if _, ok := m.sessions[s.ID]; ok {
		return Session{}, apperr.Conflict("session %q already exists", s.ID)
	}
	now := m.now().UTC()
	s.Version = 1
	s.CreatedAt = now
	s.UpdatedAt = now
	stored, err := deepCopy(s)
	if err != nil {
		return Session{}, err
	}
	m.sessions[s.ID] = stored
	return deepCopy(stored)
}

func (m *Memory) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, apperr.NotFound("session %q not found", id)
	}
	return deepCopy(s)
}

func (m *Memory) ListSessions(_ context.Context) ([]SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionSummary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, summaryOf(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) SaveSession(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok {
		return Session{}, apperr.NotFound("session %q not found", s.ID)
	}
	if cur.Version != s.Version {
		return Session{}, apperr.Conflict("session %q is at version %d, not %d", s.ID, cur.Version, s.Version)
	}
	s.Version = cur.Version + 1
	s.CreatedAt = cur.CreatedAt
	s.UpdatedAt = m.now().UTC()
	stored, err := deepCopy(s)
	if err != nil {
		return Session{}, err
	}
	m.sessions[s.ID] = stored
	return deepCopy(stored)
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return apperr.NotFound("session %q not found", id)
	}
	delete(m.sessions, id)
	for _, in := range m.insights[id] {
		delete(m.insightIDs, in.ID)
		delete(m.superseded, in.ID)
	}
	delete(m.insights, id)
	delete(m.supersession, id)
	return nil
}

func (m *Memory) AppendInsights(_ context.Context, sessionID string, list []insight.Insight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return apperr.NotFound("session %q not found", sessionID)
	}
	for _, in := range list {
		if _, dup := m.insightIDs[in.ID]; dup {
			continue
		}
		cp, err := deepCopy(in)
		if err != nil {
			return err
		}
		m.insightIDs[in.ID] = struct{}{}
		m.insights[sessionID] = append(m.insights[sessionID], cp)
	}
	return nil
}

func (m *Memory) RecordSupersessions(_ context.Context, sessionID string, list []insight.Supersession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return apperr.NotFound("session %q not found", sessionID)
	}
	for _, sup := range list {
		if _, dup := m.superseded[sup.InsightID]; dup {
			continue
		}
		m.superseded[sup.InsightID] = struct{}{}
		m.supersession[sessionID] = append(m.supersession[sessionID], sup)
	}
	return nil
}

func (m *Memory) ListInsights(_ context.Context, sessionID string, includeSuperseded bool) ([]insight.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, apperr.NotFound("session %q not found", sessionID)
	}
	out := []insight.Insight{}
	for _, in := range m.insights[sessionID] {
		if _, gone := m.superseded[in.ID]; gone && !includeSuperseded {
			continue
		}
		cp, err := deepCopy(in)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (m *Memory) ListSupersessions(_ context.Context, sessionID string) ([]insight.Supersession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, apperr.NotFound("session %q not found", sessionID)
	}
	return append([]insight.Supersession{}, m.supersession[sessionID]...), nil
}

func (m *Memory) Close() error { return nil }

func deepCopy[T any](v T) (T, error) {
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}
