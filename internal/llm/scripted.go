package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/klubi/scout/internal/agent"
)

// ErrScriptExhausted is returned once every scripted reply has been used.
var ErrScriptExhausted = errors.New("scripted model: no replies left")

// Scripted replays canned replies in order. It backs `scout ask --dry-run`.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	next    int
}

// NewScripted creates a model that returns replies one per call.
func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

// Name identifies the backend in run records.
func (s *Scripted) Name() string { return "scripted" }

// Complete returns the next reply.
func (s *Scripted) Complete(ctx context.Context, _ []agent.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.replies) {
		return "", ErrScriptExhausted
	}
	reply := s.replies[s.next]
	s.next++
	return reply, nil
}
