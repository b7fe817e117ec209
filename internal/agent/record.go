package agent

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/klubi/scout/internal/store"
)

// RunRecord is the audit entry kept for a finished run. Records are
// read-only history; runs are never resumed from them.
type RunRecord struct {
	ID         string    `json:"id" yaml:"id"`
	Prompt     string    `json:"prompt" yaml:"prompt"`
	Model      string    `json:"model,omitempty" yaml:"model,omitempty"`
	Outcome    Outcome   `json:"outcome" yaml:"outcome"`
	Answer     string    `json:"answer,omitempty" yaml:"answer,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	Steps      int       `json:"steps" yaml:"steps"`
	Transcript []Message `json:"transcript" yaml:"transcript"`
	StartedAt  time.Time `json:"startedAt" yaml:"startedAt"`
	FinishedAt time.Time `json:"finishedAt" yaml:"finishedAt"`
}

// NewRunRecord captures a run. runErr is the error returned by Run, if any.
func NewRunRecord(prompt, model string, res *Result, runErr error, startedAt time.Time) *RunRecord {
	rec := &RunRecord{
		ID:         uuid.New().String(),
		Prompt:     prompt,
		Model:      model,
		Outcome:    res.Outcome,
		Answer:     res.Answer,
		Steps:      res.Steps,
		Transcript: res.Transcript,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	if runErr == nil {
		runErr = res.Err()
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}

// SaveRun stores rec.
func SaveRun(s store.Store, rec *RunRecord) error {
	if err := s.Create(store.RecordKey(store.KindRun, rec.ID), rec); err != nil {
		return fmt.Errorf("saving run %s: %w", rec.ID, err)
	}
	return nil
}

// ListRuns returns every stored run, newest first.
func ListRuns(s store.Store) ([]*RunRecord, error) {
	return listRuns(s, store.KindPrefix(store.KindRun))
}

// GetRun returns the run whose id starts with idPrefix. The prefix must
// identify exactly one run.
func GetRun(s store.Store, idPrefix string) (*RunRecord, error) {
	idPrefix = strings.TrimSpace(idPrefix)
	if idPrefix == "" {
		return nil, fmt.Errorf("run id required")
	}
	runs, err := listRuns(s, store.KindPrefix(store.KindRun)+idPrefix)
	if err != nil {
		return nil, err
	}
	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("run %s: %w", idPrefix, store.ErrNotFound)
	case 1:
		return runs[0], nil
	default:
		return nil, fmt.Errorf("run id %q is ambiguous (%d matches)", idPrefix, len(runs))
	}
}

func listRuns(s store.Store, prefix string) ([]*RunRecord, error) {
	items, err := s.List(prefix, func() interface{} { return &RunRecord{} })
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	runs := make([]*RunRecord, 0, len(items))
	for _, item := range items {
		runs = append(runs, item.(*RunRecord))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}
