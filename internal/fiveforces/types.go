package fiveforces

type ForceID string

const (
	NewEntrants   ForceID = "new-entrants"
	SupplierPower ForceID = "supplier-power"
	BuyerPower    ForceID = "buyer-power"
	Substitutes   ForceID = "substitutes"
	Rivalry       ForceID = "rivalry"
)

const ForceCount = 5

var forceOrder = [ForceCount]ForceID{NewEntrants, SupplierPower, BuyerPower, Substitutes, Rivalry}

var forceNames = map[ForceID]string{
	NewEntrants:   "Threat of New Entrants",
	SupplierPower: "Bargaining Power of Suppliers",
	BuyerPower:    "Bargaining Power of Buyers",
	Substitutes:   "Threat of Substitute Products",
	Rivalry:       "Competitive Rivalry",
}

var forceDescriptions = map[ForceID]string{
	NewEntrants:   "How easy is it for new competitors to enter your market?",
	SupplierPower: "How much power do suppliers have over pricing and terms?",
	BuyerPower:    "How much power do customers have over pricing?",
	Substitutes:   "How likely are customers to switch to alternative solutions?",
	Rivalry:       "How intense is competition among existing players?",
}

var vocabulary = map[ForceID][]string{
	NewEntrants: {
		"Capital requirements", "Economies of scale", "Brand loyalty", "Government regulations",
		"Technology barriers", "Distribution access", "Network effects", "Switching costs",
	},
	SupplierPower: {
		"Supplier concentration", "Switching costs", "Substitute inputs", "Forward integration threat",
		"Importance of volume", "Differentiation of inputs", "Information availability", "Supplier profitability",
	},
	BuyerPower: {
		"Buyer concentration", "Purchase volume", "Switching costs", "Backward integration threat",
		"Product standardization", "Price sensitivity", "Information availability", "Buyer profitability",
	},
	Substitutes: {
		"Relative price performance", "Switching costs", "Buyer propensity to substitute", "Substitute quality",
		"Technology trends", "User habits", "Availability of substitutes", "Perceived value",
	},
	Rivalry: {
		"Number of competitors", "Industry growth rate", "Fixed costs", "Product differentiation",
		"Exit barriers", "Strategic stakes", "Capacity additions", "Competitor diversity",
	},
}

func Order() []ForceID {
	out := make([]ForceID, ForceCount)
	copy(out, forceOrder[:])
	return out
}

func (id ForceID) Index() int {
	for i, v := range forceOrder {
		if v == id {
			return i
		}
	}
	return -1
}

func (id ForceID) Valid() bool { return id.Index() >= 0 }

func (id ForceID) Name() string { return forceNames[id] }

func (id ForceID) Description() string { return forceDescriptions[id] }

// Vocabulary lists the qualitative drivers that may be selected for a force.
func Vocabulary(id ForceID) []string {
	return append([]string(nil), vocabulary[id]...)
}

func inVocabulary(id ForceID, factor string) bool {
	for _, f := range vocabulary[id] {
		if f == factor {
			return true
		}
	}
	return false
}

type Force struct {
	ID                   ForceID  `json:"id"`
	Name                 string   `json:"name"`
	Intensity            int      `json:"intensity"`
	Factors              []string `json:"factors"`
	Impact               string   `json:"impact"`
	MitigationStrategies []string `json:"mitigation_strategies"`
}

type Outlook string

const (
	OutlookAttractive   Outlook = "attractive"
	OutlookModerate     Outlook = "moderate"
	OutlookUnattractive Outlook = "unattractive"
)

type Recommendation struct {
	Code  string  `json:"code"`
	Force ForceID `json:"force,omitempty"`
	Text  string  `json:"text"`
	Rank  int     `json:"rank"`
}

type Position struct {
	OverallAttractiveness    float64          `json:"overall_attractiveness"`
	AverageIntensity         float64          `json:"average_intensity"`
	Outlook                  Outlook          `json:"outlook"`
	Opportunities            []ForceID        `json:"opportunities"`
	RiskAreas                []ForceID        `json:"risk_areas"`
	StrategicRecommendations []Recommendation `json:"strategic_recommendations"`
	PriorityActions          []string         `json:"priority_actions"`
}
