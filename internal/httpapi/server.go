package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
	"github.com/joelkehle/lucidra-engine/internal/assessment"
	"github.com/joelkehle/lucidra-engine/internal/canvas"
	"github.com/joelkehle/lucidra-engine/internal/fiveforces"
	"github.com/joelkehle/lucidra-engine/internal/render"
	"github.com/joelkehle/lucidra-engine/internal/session"
)

const maxBodyBytes = 1 << 20

type Server struct {
	svc      *session.Service
	renderer *render.Renderer
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithRenderer(r *render.Renderer) Option {
	return func(s *Server) {
		if r != nil {
			s.renderer = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func NewServer(svc *session.Service, opts ...Option) http.Handler {
	s := &Server{svc: svc, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.renderer == nil {
		s.renderer = render.New()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("PUT /v1/sessions/{id}/sections/{section}/content", s.handleReplaceContent)
	mux.HandleFunc("POST /v1/sessions/{id}/sections/{section}/items", s.handleAddItem)
	mux.HandleFunc("PUT /v1/sessions/{id}/sections/{section}/items/{item}", s.handleUpdateItem)
	mux.HandleFunc("DELETE /v1/sessions/{id}/sections/{section}/items/{item}", s.handleRemoveItem)
	mux.HandleFunc("POST /v1/sessions/{id}/sections/{section}/clear", s.handleClearSection)
	mux.HandleFunc("PUT /v1/sessions/{id}/sections/{section}/status", s.handleSetStatus)
	mux.HandleFunc("POST /v1/sessions/{id}/sections/{section}/comments", s.handleAddComment)
	mux.HandleFunc("POST /v1/sessions/{id}/sections/{section}/comments/{comment}/resolve", s.handleResolveComment)
	mux.HandleFunc("POST /v1/sessions/{id}/sections/{section}/attachments", s.handleAddAttachment)
	mux.HandleFunc("POST /v1/sessions/{id}/preset", s.handleApplyPreset)
	mux.HandleFunc("PUT /v1/sessions/{id}/forces/{force}", s.handleUpdateForce)
	mux.HandleFunc("GET /v1/sessions/{id}/validation", s.handleValidation)
	mux.HandleFunc("GET /v1/sessions/{id}/scores", s.handleScores)
	mux.HandleFunc("GET /v1/sessions/{id}/position", s.handlePosition)
	mux.HandleFunc("POST /v1/sessions/{id}/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /v1/sessions/{id}/insights", s.handleInsights)
	mux.HandleFunc("GET /v1/sessions/{id}/export", s.handleExport)
	return requestLogger(s.logger, mux)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	ae := apperr.As(err)
	message := ae.Message
	var ce *apperr.ConfigurationError
	if errors.As(err, &ce) {
		message = ce.Error()
	}
	writeJSON(w, ae.Status, map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":    ae.Code,
			"message": message,
		},
	})
}

// decodeBody reads an optional JSON body into dst. An empty body leaves
// dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	blob, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperr.Validation("read body: %v", err)
	}
	if len(strings.TrimSpace(string(blob))) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}

func sectionParam(r *http.Request) (canvas.SectionID, error) {
	id := canvas.SectionID(r.PathValue("section"))
	if !id.Valid() {
		return "", apperr.NotFound("section %q not found", id)
	}
	return id, nil
}

func authorOf(r *http.Request, fromBody string) string {
	if a := strings.TrimSpace(fromBody); a != "" {
		return a
	}
	return strings.TrimSpace(r.Header.Get("X-Author"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": s.now().UTC()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Author = authorOf(r, req.Author)
	sess, err := s.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "session": sess})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReplaceContent(w http.ResponseWriter, r *http.Request) {
	section, err := sectionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Lines  []string `json:"lines"`
		Text   string   `json:"text"`
		Author string   `json:"author"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	lines := req.Lines
	if req.Text != "" {
		lines = append(lines, req.Text)
	}
	sec, err := s.svc.ReplaceContent(r.Context(), r.PathValue("id"), section, lines, authorOf(r, req.Author))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "section": sec})
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	section, err := sectionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		canvas.ItemInput
		Author string `json:"author"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	item, err := s.svc.AddItem(r.Context(), r.PathValue("id"), section, req.ItemInput, authorOf(r, req.Author))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "item": item})
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	section, err := sectionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		canvas.ItemInput
		Author string `json:"author"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	item, err := s.svc.UpdateItem(r.Context(), r.PathValue("id"), section, r.PathValue("item"), req.ItemInput, authorOf(r, req.Author))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "item": item})
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	section, err := sectionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sec, err := s.svc.RemoveItem(r.Context(), r.PathValue("id"), section, r.PathValue("item"), authorOf(r, ""))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "section": sec})
}

func (s *Server) handleClearSection(w http.ResponseWriter, r *http.Request) {
	section, err := sectionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sec, err := s.svc.ClearSection(r.Context(), r.PathValue("id"), section, authorOf(r, ""))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "section": sec})
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	section, err := sectionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Status canvas.Status `json:"status"`
		Author string        `json:"author"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sec, err := s.svc.SetStatus(r.Context(), r.PathValue("id"), section, req.Status, authorOf(r, req.Author))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "section": sec})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	section, err := sectionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Text   string             `json:"text"`
		Type   canvas.CommentType `json:"type"`
		Author string             `json:"author"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.svc.AddComment(r.Context(), r.PathValue("id"), section, authorOf(r, req.Author), req.Text, req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "comment": c})
}

func (s *Server) handleResolveComment(w http.ResponseWriter, r *http.Request) {
	section, err := sectionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sec, err := s.svc.ResolveComment(r.Context(), r.PathValue("id"), section, r.PathValue("comment"), authorOf(r, ""))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "section": sec})
}

func (s *Server) handleAddAttachment(w http.ResponseWriter, r *http.Request) {
	section, err := sectionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Name   string `json:"name"`
		URL    string `json:"url"`
		Author string `json:"author"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := s.svc.AddAttachment(r.Context(), r.PathValue("id"), section, req.Name, req.URL, authorOf(r, req.Author))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "attachment": a})
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Preset string `json:"preset"`
		Author string `json:"author"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.svc.ApplyPreset(r.Context(), r.PathValue("id"), req.Preset, authorOf(r, req.Author))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session": sess})
}

func (s *Server) handleUpdateForce(w http.ResponseWriter, r *http.Request) {
	id := fiveforces.ForceID(r.PathValue("force"))
	if !id.Valid() {
		writeError(w, apperr.NotFound("force %q not found", id))
		return
	}
	var req fiveforces.Update
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	f, err := s.svc.UpdateForce(r.Context(), r.PathValue("id"), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "force": f})
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	ev, err := s.svc.Evaluate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": ev.Validation})
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	ev, err := s.svc.Evaluate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev.Scores)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	ev, err := s.svc.Evaluate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ev.Position == nil {
		writeError(w, apperr.NotFound("session %q has no five forces analysis", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, ev.Position)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		External *bool `json:"external"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	external := true
	if req.External != nil {
		external = *req.External
	}
	res, err := s.svc.Analyze(r.Context(), r.PathValue("id"), external, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"stale":  res.Stale,
		"report": assessment.BuildResponse(res.Report),
	})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	list, err := s.svc.Insights(r.Context(), r.PathValue("id"), all)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": list})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rep, err := s.svc.Report(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "json"
	}
	var (
		body        []byte
		contentType string
	)
	switch format {
	case "json":
		body, err = assessment.ExportJSON(rep, s.now())
		contentType = "application/json"
	case "csv":
		body, err = assessment.ExportCSV(rep)
		contentType = "text/csv; charset=utf-8"
	case "md", "markdown":
		format = "md"
		body = []byte(assessment.BuildMarkdown(rep))
		contentType = "text/markdown; charset=utf-8"
	case "html":
		var doc string
		doc, err = s.renderer.HTML(assessment.BuildResponse(rep))
		body = []byte(doc)
		contentType = "text/html; charset=utf-8"
	case "pdf":
		body, err = s.renderer.PDF(r.Context(), assessment.BuildResponse(rep))
		if errors.Is(err, render.ErrNoChrome) {
			err = apperr.Wrap(apperr.CodeUnavailable, err)
		}
		contentType = "application/pdf"
	default:
		err = apperr.Validation("unsupported export format %q", format)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportName(id, format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func exportName(id, format string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, id)
	return "lucidra-" + safe + "." + format
}
