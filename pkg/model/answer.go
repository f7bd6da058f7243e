package model

import "github.com/m-mizutani/goerr/v2"

// AgentID identifies a specialist agent
type AgentID string

const (
	AgentLocalSpecialist  AgentID = "local_specialist"
	AgentSearchSpecialist AgentID = "search_specialist"
)

// AgentResponse is the transient per-turn output of one specialist agent
type AgentResponse struct {
	AgentID    AgentID
	Response   string
	Sources    []string
	Confidence float64
}

// QueryClass is the advisory classification of which knowledge sources a
// query needs. Both specialists run regardless; the class only informs the
// reasoning text and the synthesis prompt.
type QueryClass string

const (
	QueryClassInternal QueryClass = "internal"
	QueryClassExternal QueryClass = "external"
	QueryClassBoth     QueryClass = "both"
)

// Validate checks if the query class is one of the known values
func (c QueryClass) Validate() error {
	switch c {
	case QueryClassInternal, QueryClassExternal, QueryClassBoth:
		return nil
	default:
		return goerr.New("invalid query class", goerr.V("class", c))
	}
}

// OrchestrationResult is the only externally visible output of a turn
// besides the session ID.
type OrchestrationResult struct {
	FinalResponse    string
	Reasoning        string
	Sources          []string
	ConflictResolved bool
}
