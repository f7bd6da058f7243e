package agent

import (
	"context"

	"github.com/tandemlab/tandem/pkg/model"
)

// Specialist is a retrieval adapter bound to one knowledge source. The
// orchestrator runs both specialists concurrently and treats an error from
// either as "no response from that source", never as a request failure.
type Specialist interface {
	ID() model.AgentID
	Run(ctx context.Context, query string, sessionID model.SessionID) (*model.AgentResponse, error)
}
