package canvas

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
)

const SystemAuthor = "System"

// Item score defaults for newly created statements.
const (
	DefaultConfidence = 70
	DefaultImpact     = 50
	DefaultEffort     = 50
	DefaultRisk       = 30
)

var ErrItemNotFound = apperr.NotFound("item not found")

// Canvas owns the nine fixed sections of one business model. It is not
// safe for concurrent mutation; callers serialize edits per session.
type Canvas struct {
	sections [SectionCount]Section
	now      func() time.Time
	newID    func() string
}

type Option func(*Canvas)

func WithClock(clock func() time.Time) Option {
	return func(c *Canvas) {
		if clock != nil {
			c.now = clock
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(c *Canvas) {
		if gen != nil {
			c.newID = gen
		}
	}
}

func New(defs []Definition, opts ...Option) (*Canvas, error) {
	checked, err := CheckDefinitions(defs)
	if err != nil {
		return nil, err
	}
	c := newCanvas(opts)
	ts := c.now().UTC()
	for i, d := range checked {
		c.sections[i] = Section{
			Definition:  d,
			Content:     []Item{},
			Status:      StatusEmpty,
			Version:     1,
			Comments:    []Comment{},
			Attachments: []Attachment{},
			LastUpdated: ts,
			UpdatedBy:   SystemAuthor,
		}
	}
	return c, nil
}

func NewDefault(opts ...Option) (*Canvas, error) {
	defs, err := DefaultDefinitions()
	if err != nil {
		return nil, err
	}
	return New(defs, opts...)
}

// FromSections rebuilds a canvas from a stored snapshot, enforcing the
// nine-section and status invariants.
func FromSections(sections []Section, opts ...Option) (*Canvas, error) {
	defs := make([]Definition, len(sections))
	for i, s := range sections {
		defs[i] = s.Definition
	}
	checked, err := CheckDefinitions(defs)
	if err != nil {
		return nil, err
	}
	c := newCanvas(opts)
	for _, s := range sections {
		idx := s.ID.Index()
		s = s.clone()
		s.Definition = checked[idx]
		if err := checkSectionState(s); err != nil {
			return nil, err
		}
		c.sections[idx] = s
	}
	return c, nil
}

func newCanvas(opts []Option) *Canvas {
	c := &Canvas{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func checkSectionState(s Section) error {
	if !s.Status.Valid() {
		return apperr.Configuration("section_status", "section %q has unknown status %q", s.ID, s.Status)
	}
	if (s.Status == StatusEmpty) != !s.HasContent() {
		return apperr.Configuration("status_invariant", "section %q status %q does not match its content", s.ID, s.Status)
	}
	if s.Version < 1 {
		return apperr.Configuration("version", "section %q version must be positive", s.ID)
	}
	for _, it := range s.Content {
		if err := checkItem(it); err != nil {
			return err
		}
	}
	return nil
}

func checkItem(it Item) error {
	if !it.Priority.Valid() {
		return apperr.Configuration("item_priority", "item %q has unknown priority %q", it.ID, it.Priority)
	}
	if !it.Status.Valid() {
		return apperr.Configuration("item_status", "item %q has unknown status %q", it.ID, it.Status)
	}
	for name, v := range map[string]int{"confidence": it.Confidence, "impact": it.Impact, "effort": it.Effort, "risk": it.Risk} {
		if v < 0 || v > 100 {
			return apperr.Configuration("item_score_range", "item %q %s %d outside [0,100]", it.ID, name, v)
		}
	}
	return nil
}

func (c *Canvas) Sections() []Section {
	out := make([]Section, SectionCount)
	for i := range c.sections {
		out[i] = c.sections[i].clone()
	}
	return out
}

func (c *Canvas) Section(id SectionID) (Section, error) {
	s, err := c.ref(id)
	if err != nil {
		return Section{}, err
	}
	return s.clone(), nil
}

func (c *Canvas) ref(id SectionID) (*Section, error) {
	idx := id.Index()
	if idx < 0 {
		return nil, apperr.Configuration("nine_sections", "unknown section %q", id)
	}
	return &c.sections[idx], nil
}

// mutate applies fn to one section and records the accepted edit.
func (c *Canvas) mutate(id SectionID, author, action, summary string, fn func(s *Section, now time.Time) error) (Section, error) {
	s, err := c.ref(id)
	if err != nil {
		return Section{}, err
	}
	now := c.now().UTC()
	work := s.clone()
	if err := fn(&work, now); err != nil {
		return Section{}, err
	}
	if !work.HasContent() {
		work.Status = StatusEmpty
	} else if work.Status == StatusEmpty {
		work.Status = StatusDraft
	}
	if strings.TrimSpace(author) == "" {
		author = SystemAuthor
	}
	work.Version++
	work.LastUpdated = now
	work.UpdatedBy = author
	work.History = append(work.History, HistoryEntry{
		Version:   work.Version,
		Timestamp: now,
		Author:    author,
		Action:    action,
		Summary:   summary,
	})
	*s = work
	return work.clone(), nil
}

type ItemInput struct {
	Text       string     `json:"text"`
	Priority   Priority   `json:"priority,omitempty"`
	Status     ItemStatus `json:"status,omitempty"`
	Confidence *int       `json:"confidence,omitempty"`
	Impact     *int       `json:"impact,omitempty"`
	Effort     *int       `json:"effort,omitempty"`
	Risk       *int       `json:"risk,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Owner      string     `json:"owner,omitempty"`
	Source     string     `json:"source,omitempty"`
	Evidence   string     `json:"evidence,omitempty"`
}

func (c *Canvas) newItem(text string, now time.Time) Item {
	return Item{
		ID:         c.newID(),
		Text:       strings.TrimSpace(text),
		Priority:   PriorityMedium,
		Status:     ItemActive,
		Confidence: DefaultConfidence,
		Impact:     DefaultImpact,
		Effort:     DefaultEffort,
		Risk:       DefaultRisk,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func applyItemInput(it *Item, in ItemInput) {
	if t := strings.TrimSpace(in.Text); t != "" {
		it.Text = t
	}
	if in.Priority != "" {
		it.Priority = in.Priority
	}
	if in.Status != "" {
		it.Status = in.Status
	}
	if in.Confidence != nil {
		it.Confidence = *in.Confidence
	}
	if in.Impact != nil {
		it.Impact = *in.Impact
	}
	if in.Effort != nil {
		it.Effort = *in.Effort
	}
	if in.Risk != nil {
		it.Risk = *in.Risk
	}
	if in.Tags != nil {
		it.Tags = uniqueStrings(in.Tags)
	}
	if in.Notes != "" {
		it.Notes = in.Notes
	}
	if in.Owner != "" {
		it.Owner = in.Owner
	}
	if in.Source != "" {
		it.Source = in.Source
	}
	if in.Evidence != "" {
		it.Evidence = in.Evidence
	}
}

func (c *Canvas) AddItem(id SectionID, in ItemInput, author string) (Item, error) {
	if strings.TrimSpace(in.Text) == "" {
		return Item{}, apperr.Configuration("item_text", "item text must not be blank")
	}
	var added Item
	_, err := c.mutate(id, author, "add_item", truncate(in.Text), func(s *Section, now time.Time) error {
		it := c.newItem(in.Text, now)
		applyItemInput(&it, in)
		if err := checkItem(it); err != nil {
			return err
		}
		s.Content = append(s.Content, it)
		added = it
		return nil
	})
	return added, err
}

func (c *Canvas) UpdateItem(id SectionID, itemID string, in ItemInput, author string) (Item, error) {
	var updated Item
	_, err := c.mutate(id, author, "update_item", itemID, func(s *Section, now time.Time) error {
		for i := range s.Content {
			if s.Content[i].ID != itemID {
				continue
			}
			it := s.Content[i]
			applyItemInput(&it, in)
			if err := checkItem(it); err != nil {
				return err
			}
			it.UpdatedAt = now
			s.Content[i] = it
			updated = it
			return nil
		}
		return ErrItemNotFound
	})
	return updated, err
}

func (c *Canvas) RemoveItem(id SectionID, itemID, author string) (Section, error) {
	return c.mutate(id, author, "remove_item", itemID, func(s *Section, _ time.Time) error {
		for i := range s.Content {
			if s.Content[i].ID == itemID {
				s.Content = append(s.Content[:i], s.Content[i+1:]...)
				return nil
			}
		}
		return ErrItemNotFound
	})
}

// ReplaceContent rewrites a section from free-form lines, one item per
// non-blank line.
func (c *Canvas) ReplaceContent(id SectionID, lines []string, author string) (Section, error) {
	texts := SplitLines(lines...)
	return c.mutate(id, author, "save", fmt.Sprintf("%d items", len(texts)), func(s *Section, now time.Time) error {
		items := make([]Item, 0, len(texts))
		for _, t := range texts {
			items = append(items, c.newItem(t, now))
		}
		s.Content = items
		if len(items) > 0 {
			s.Status = StatusDraft
		}
		return nil
	})
}

func (c *Canvas) ClearSection(id SectionID, author string) (Section, error) {
	return c.mutate(id, author, "clear", "", func(s *Section, _ time.Time) error {
		s.Content = []Item{}
		return nil
	})
}

func (c *Canvas) SetStatus(id SectionID, status Status, author string) (Section, error) {
	if !status.Valid() {
		return Section{}, apperr.Configuration("section_status", "unknown status %q", status)
	}
	return c.mutate(id, author, "status", string(status), func(s *Section, _ time.Time) error {
		if status == StatusEmpty && s.HasContent() {
			return apperr.Configuration("status_invariant", "section %q has content and cannot be marked empty", id)
		}
		if status != StatusEmpty && !s.HasContent() {
			return apperr.Configuration("status_invariant", "section %q has no content and must stay empty", id)
		}
		s.Status = status
		return nil
	})
}

func (c *Canvas) AddComment(id SectionID, author, text string, kind CommentType) (Comment, error) {
	if strings.TrimSpace(text) == "" {
		return Comment{}, apperr.Configuration("comment_text", "comment text must not be blank")
	}
	if kind == "" {
		kind = CommentPlain
	}
	var added Comment
	_, err := c.mutate(id, author, "comment", truncate(text), func(s *Section, now time.Time) error {
		added = Comment{ID: c.newID(), Author: author, Text: strings.TrimSpace(text), Type: kind, Timestamp: now}
		s.Comments = append(s.Comments, added)
		return nil
	})
	return added, err
}

func (c *Canvas) ResolveComment(id SectionID, commentID, author string) (Section, error) {
	return c.mutate(id, author, "resolve_comment", commentID, func(s *Section, _ time.Time) error {
		for i := range s.Comments {
			if s.Comments[i].ID == commentID {
				s.Comments[i].Resolved = true
				return nil
			}
		}
		return apperr.NotFound("comment %q not found", commentID)
	})
}

func (c *Canvas) AddAttachment(id SectionID, name, url, author string) (Attachment, error) {
	if strings.TrimSpace(name) == "" {
		return Attachment{}, apperr.Configuration("attachment_name", "attachment name must not be blank")
	}
	var added Attachment
	_, err := c.mutate(id, author, "attach", name, func(s *Section, now time.Time) error {
		added = Attachment{ID: c.newID(), Name: strings.TrimSpace(name), URL: strings.TrimSpace(url), AddedAt: now}
		s.Attachments = append(s.Attachments, added)
		return nil
	})
	return added, err
}

// SplitLines trims every line and drops blanks. Embedded newlines split
// one input into several lines.
func SplitLines(in ...string) []string {
	out := []string{}
	for _, block := range in {
		for _, line := range strings.Split(block, "\n") {
			if t := strings.TrimSpace(line); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func uniqueStrings(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func truncate(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > 80 {
		return string(r[:80])
	}
	return string(r)
}
