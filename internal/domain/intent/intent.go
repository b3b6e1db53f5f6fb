// Package intent defines intent labels, classification results, and the
// intent-to-responder routing table.
package intent

// Well-known intent labels. The classifier may emit others; unknown labels
// route to the coordinator responder.
const (
	LabelGeneral           = "general"
	LabelEmail             = "email"
	LabelCalendar          = "calendar"
	LabelTaskManagement    = "task_management"
	LabelSystemMonitoring  = "system_monitoring"
	LabelSystemCommand     = "system_command"
	LabelDocument          = "document_processing"
	LabelKnowledgeQuery    = "knowledge_query"
	LabelContentGeneration = "content_generation"
	LabelFinancialAnalysis = "financial_analysis"
	LabelMarketData        = "market_data"
	LabelInvestmentAdvice  = "investment_advice"
	LabelValidationRequest = "validation_request"
	LabelConsensusBuilding = "consensus_building"
)

// Classification is the output of the intent classifier: a label, a
// confidence score, and any entities extracted from the text.
type Classification struct {
	Label      string            `json:"label"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
	Reasoning  string            `json:"reasoning,omitempty"`
}

// RoutingTable maps intent labels to responder IDs, with a default
// responder for unknown labels. Injected at pipeline construction; never a
// module-level constant.
type RoutingTable struct {
	Routes  map[string]string `yaml:"routes"`
	Default string            `yaml:"default"`
}

// ResponderFor returns the responder bound to a label, falling back to the
// table's default.
func (t RoutingTable) ResponderFor(label string) string {
	if id, ok := t.Routes[label]; ok {
		return id
	}
	return t.Default
}

// DefaultRoutingTable returns the stock intent-to-responder map.
func DefaultRoutingTable() RoutingTable {
	return RoutingTable{
		Default: "coordinator",
		Routes: map[string]string{
			LabelEmail:             "coordinator",
			LabelCalendar:          "coordinator",
			LabelTaskManagement:    "coordinator",
			LabelSystemMonitoring:  "sysops",
			LabelSystemCommand:     "sysops",
			LabelDocument:          "archivist",
			LabelKnowledgeQuery:    "archivist",
			LabelContentGeneration: "archivist",
			LabelFinancialAnalysis: "analyst",
			LabelMarketData:        "analyst",
			LabelInvestmentAdvice:  "analyst",
			LabelValidationRequest: "validator",
			LabelConsensusBuilding: "validator",
			LabelGeneral:           "coordinator",
		},
	}
}

// AlwaysValidate is the set of intents that trigger consensus validation
// even when no approval is required.
func AlwaysValidate() map[string]bool {
	return map[string]bool{
		LabelValidationRequest: true,
		LabelConsensusBuilding: true,
	}
}
