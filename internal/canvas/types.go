package canvas

import (
	"strings"
	"time"
)

type SectionID string

const (
	KeyPartners           SectionID = "key-partners"
	KeyActivities         SectionID = "key-activities"
	KeyResources          SectionID = "key-resources"
	ValuePropositions     SectionID = "value-propositions"
	CustomerRelationships SectionID = "customer-relationships"
	Channels              SectionID = "channels"
	CustomerSegments      SectionID = "customer-segments"
	CostStructure         SectionID = "cost-structure"
	RevenueStreams        SectionID = "revenue-streams"
)

const SectionCount = 9

// displayOrder is the canonical canvas layout order used for every
// ordered output (validation results, exports, reports).
var displayOrder = [SectionCount]SectionID{
	KeyPartners,
	KeyActivities,
	KeyResources,
	ValuePropositions,
	CustomerRelationships,
	Channels,
	CustomerSegments,
	CostStructure,
	RevenueStreams,
}

func Order() []SectionID {
	out := make([]SectionID, SectionCount)
	copy(out, displayOrder[:])
	return out
}

func (id SectionID) Index() int {
	for i, v := range displayOrder {
		if v == id {
			return i
		}
	}
	return -1
}

func (id SectionID) Valid() bool { return id.Index() >= 0 }

type Status string

const (
	StatusEmpty    Status = "empty"
	StatusDraft    Status = "draft"
	StatusReview   Status = "review"
	StatusApproved Status = "approved"
	StatusOutdated Status = "outdated"
)

func (s Status) Valid() bool {
	switch s {
	case StatusEmpty, StatusDraft, StatusReview, StatusApproved, StatusOutdated:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type ItemStatus string

const (
	ItemActive      ItemStatus = "active"
	ItemInactive    ItemStatus = "inactive"
	ItemUnderReview ItemStatus = "under_review"
	ItemDeprecated  ItemStatus = "deprecated"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemActive, ItemInactive, ItemUnderReview, ItemDeprecated:
		return true
	}
	return false
}

type RuleType string

const (
	RuleRequired  RuleType = "required"
	RuleMinLength RuleType = "min_length"
	RuleMaxLength RuleType = "max_length"
	RulePattern   RuleType = "pattern"
	RuleCustom    RuleType = "custom"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Rule is static section configuration. Value is interpreted per Type:
// a count for the length rules, a regular expression for pattern, and
// "false" switches a required rule off.
type Rule struct {
	ID       string   `json:"id" yaml:"id"`
	Type     RuleType `json:"type" yaml:"type"`
	Value    string   `json:"value,omitempty" yaml:"value,omitempty"`
	Message  string   `json:"message" yaml:"message"`
	Severity Severity `json:"severity" yaml:"severity"`
}

type Item struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Priority   Priority   `json:"priority"`
	Status     ItemStatus `json:"status"`
	Confidence int        `json:"confidence"`
	Impact     int        `json:"impact"`
	Effort     int        `json:"effort"`
	Risk       int        `json:"risk"`
	Tags       []string   `json:"tags,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Owner      string     `json:"owner,omitempty"`
	Source     string     `json:"source,omitempty"`
	Evidence   string     `json:"evidence,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (it Item) Counted() bool { return strings.TrimSpace(it.Text) != "" }

type CommentType string

const (
	CommentPlain      CommentType = "comment"
	CommentSuggestion CommentType = "suggestion"
	CommentQuestion   CommentType = "question"
	CommentApproval   CommentType = "approval"
)

type Comment struct {
	ID        string      `json:"id"`
	Author    string      `json:"author"`
	Text      string      `json:"text"`
	Type      CommentType `json:"type"`
	Resolved  bool        `json:"resolved"`
	Timestamp time.Time   `json:"timestamp"`
}

type Attachment struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	URL     string    `json:"url,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

type HistoryEntry struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author"`
	Action    string    `json:"action"`
	Summary   string    `json:"summary,omitempty"`
}

// Definition is the static part of a section, loaded from YAML.
type Definition struct {
	ID               SectionID   `json:"id" yaml:"id"`
	Title            string      `json:"title" yaml:"title"`
	Description      string      `json:"description,omitempty" yaml:"description"`
	Icon             string      `json:"icon,omitempty" yaml:"icon"`
	Color            string      `json:"color,omitempty" yaml:"color"`
	CompletionWeight int         `json:"completion_weight" yaml:"completion_weight"`
	Tips             []string    `json:"tips,omitempty" yaml:"tips"`
	Examples         []string    `json:"examples,omitempty" yaml:"examples"`
	Questions        []string    `json:"questions,omitempty" yaml:"questions"`
	Rules            []Rule      `json:"rules,omitempty" yaml:"rules"`
	Dependencies     []SectionID `json:"dependencies,omitempty" yaml:"dependencies"`
}

type Section struct {
	Definition
	Content     []Item         `json:"content"`
	Status      Status         `json:"status"`
	Version     int            `json:"version"`
	Comments    []Comment      `json:"comments"`
	Attachments []Attachment   `json:"attachments"`
	LastUpdated time.Time      `json:"last_updated"`
	UpdatedBy   string         `json:"updated_by"`
	History     []HistoryEntry `json:"history,omitempty"`
}

// ItemCount counts items whose text is non-blank.
func (s Section) ItemCount() int {
	n := 0
	for _, it := range s.Content {
		if it.Counted() {
			n++
		}
	}
	return n
}

func (s Section) HasContent() bool { return s.ItemCount() > 0 }

func (s Section) Texts() []string {
	out := make([]string, 0, len(s.Content))
	for _, it := range s.Content {
		if it.Counted() {
			out = append(out, strings.TrimSpace(it.Text))
		}
	}
	return out
}

func (s Section) clone() Section {
	out := s
	out.Tips = append([]string(nil), s.Tips...)
	out.Examples = append([]string(nil), s.Examples...)
	out.Questions = append([]string(nil), s.Questions...)
	out.Rules = append([]Rule(nil), s.Rules...)
	out.Dependencies = append([]SectionID(nil), s.Dependencies...)
	out.Content = make([]Item, len(s.Content))
	for i, it := range s.Content {
		it.Tags = append([]string(nil), it.Tags...)
		out.Content[i] = it
	}
	out.Comments = append([]Comment(nil), s.Comments...)
	out.Attachments = append([]Attachment(nil), s.Attachments...)
	out.History = append([]HistoryEntry(nil), s.History...)
	return out
}
