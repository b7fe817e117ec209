package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/klubi/scout/internal/agent"
	"github.com/klubi/scout/internal/store"
	"github.com/klubi/scout/pkg/rpc"
)

// callsLimit caps the call log fetched per refresh.
const callsLimit = 200

// RecordSource reads runs from a local store and calls from a tool server.
type RecordSource struct {
	runs   store.Store
	client *rpc.Client
}

// NewRecordSource creates a Source. client may be nil, in which case the
// calls view reports that no server is configured.
func NewRecordSource(runs store.Store, client *rpc.Client) *RecordSource {
	return &RecordSource{runs: runs, client: client}
}

func (s *RecordSource) Runs() ([]*agent.RunRecord, error) {
	return agent.ListRuns(s.runs)
}

func (s *RecordSource) Calls() ([]rpc.CallRecord, error) {
	if s.client == nil {
		return nil, fmt.Errorf("no tool server configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Calls(ctx, callsLimit)
}

func (s *RecordSource) DeleteRun(id string) error {
	return s.runs.Delete(store.RecordKey(store.KindRun, id))
}

func (s *RecordSource) Describe() string {
	if s.client == nil {
		return "local runs"
	}
	return s.client.BaseURL()
}
