package canvas

import (
	"sort"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
)

type Preset struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Industry    string                 `json:"industry"`
	Stage       string                 `json:"stage"`
	Tags        []string               `json:"tags,omitempty"`
	Content     map[SectionID][]string `json:"content"`
}

var presets = map[string]Preset{
	"saas-startup": {
		ID:          "saas-startup",
		Name:        "SaaS Startup",
		Description: "Template for software-as-a-service businesses",
		Industry:    "Technology",
		Stage:       "startup",
		Tags:        []string{"SaaS", "Technology", "Subscription"},
		Content: map[SectionID][]string{
			ValuePropositions: {"Automated workflow optimization", "Real-time collaboration tools", "Advanced analytics dashboard"},
			CustomerSegments:  {"Small to medium businesses", "Remote teams", "Project managers"},
			RevenueStreams:    {"Monthly subscription fees", "Annual subscription discounts", "Premium feature add-ons"},
		},
	},
	"ecommerce": {
		ID:          "ecommerce",
		Name:        "E-commerce Platform",
		Description: "Template for online retail businesses",
		Industry:    "Retail",
		Stage:       "growth",
		Tags:        []string{"E-commerce", "Retail", "Marketplace"},
		Content: map[SectionID][]string{
			ValuePropositions: {"Wide product selection", "Fast home delivery", "Hassle-free returns"},
			CustomerSegments:  {"Online shoppers", "Mobile-first consumers"},
			Channels:          {"Web storefront", "Mobile app", "Social commerce"},
			RevenueStreams:    {"Product margins", "Shipping fees", "Membership program"},
		},
	},
	"marketplace": {
		ID:          "marketplace",
		Name:        "Two-Sided Marketplace",
		Description: "Template for platform businesses connecting buyers and sellers",
		Industry:    "Platform",
		Stage:       "startup",
		Tags:        []string{"Marketplace", "Platform", "Network Effects"},
		Content: map[SectionID][]string{
			ValuePropositions: {"Trusted matching of buyers and sellers", "Secure payments and escrow"},
			CustomerSegments:  {"Independent sellers", "Price-conscious buyers"},
			KeyActivities:     {"Platform development", "Trust and safety operations"},
			RevenueStreams:    {"Transaction commissions", "Featured listing fees"},
		},
	},
}

func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyPreset replaces the content of every section the preset names.
// Sections it does not name are left untouched.
func (c *Canvas) ApplyPreset(name, author string) ([]Section, error) {
	p, ok := presets[name]
	if !ok {
		return nil, apperr.NotFound("preset %q not found", name)
	}
	var changed []Section
	for _, id := range displayOrder {
		lines, ok := p.Content[id]
		if !ok {
			continue
		}
		s, err := c.ReplaceContent(id, lines, author)
		if err != nil {
			return nil, err
		}
		changed = append(changed, s)
	}
	return changed, nil
}
