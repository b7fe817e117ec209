package agent

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/klubi/scout/internal/store"
)

// scriptedModel replies with the next entry of replies, repeating the last
// one once the script runs out.
type scriptedModel struct {
	replies []string
	calls   int
	seen    [][]Message
	err     error
}

func (m *scriptedModel) Complete(_ context.Context, messages []Message) (string, error) {
	m.seen = append(m.seen, messages)
	if m.err != nil {
		return "", m.err
	}
	i := m.calls
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	m.calls++
	return m.replies[i], nil
}

// recordingCaller returns canned observations and remembers every action.
type recordingCaller struct {
	actions     []Action
	observation string
	onCall      func()
}

func (c *recordingCaller) Call(_ context.Context, a Action) string {
	c.actions = append(c.actions, a)
	if c.onCall != nil {
		c.onCall()
	}
	return c.observation
}

func newTestLoop(t *testing.T, m Model, c Caller, cfg Config) *Loop {
	t.Helper()
	return NewLoop(m, c, cfg, zaptest.NewLogger(t), nil)
}

func TestLoopActionThenAnswer(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"Thought: I should echo.\nAction: Echo: ping\nPAUSE",
		"Answer: done",
	}}
	caller := &recordingCaller{observation: "ping"}

	res, err := newTestLoop(t, model, caller, Config{SystemPrompt: "sys"}).Run(context.Background(), "say ping")
	require.NoError(t, err)
	require.NoError(t, res.Err())

	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, "done", res.Answer)
	assert.Equal(t, 2, res.Steps)
	require.Len(t, caller.actions, 1)
	assert.Equal(t, Action{Tool: "Echo", Args: []string{"ping"}}, caller.actions[0])

	// The second model call sees the observation as the latest user turn.
	require.Len(t, model.seen, 2)
	second := model.seen[1]
	assert.Equal(t, Message{Role: RoleSystem, Content: "sys"}, second[0])
	assert.Equal(t, Message{Role: RoleUser, Content: "say ping"}, second[1])
	assert.Equal(t, RoleAssistant, second[2].Role)
	assert.Equal(t, Message{Role: RoleUser, Content: "Observation:\nping"}, second[3])

	assert.Len(t, res.Transcript, 5)
	assert.Equal(t, "Answer: done", res.Transcript[4].Content)
}

func TestLoopExhaustsIterations(t *testing.T) {
	model := &scriptedModel{replies: []string{"Action: Echo: again\nPAUSE"}}
	caller := &recordingCaller{observation: "again"}

	res, err := newTestLoop(t, model, caller, Config{}).Run(context.Background(), "loop forever")
	require.NoError(t, err)

	assert.Equal(t, OutcomeExhausted, res.Outcome)
	assert.Equal(t, DefaultMaxIterations, res.Steps)
	assert.Equal(t, DefaultMaxIterations, model.calls)
	assert.Len(t, caller.actions, DefaultMaxIterations)
	assert.Empty(t, res.Answer)
	assert.True(t, errors.Is(res.Err(), ErrIncomplete))
}

func TestLoopCustomIterationLimit(t *testing.T) {
	model := &scriptedModel{replies: []string{"Action: Echo\nPAUSE"}}

	res, err := newTestLoop(t, model, &recordingCaller{}, Config{MaxIterations: 3}).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, OutcomeExhausted, res.Outcome)
}

func TestLoopStalls(t *testing.T) {
	model := &scriptedModel{replies: []string{"Let me think about that."}}
	caller := &recordingCaller{}

	res, err := newTestLoop(t, model, caller, Config{MaxStalls: 2}).Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, OutcomeStalled, res.Outcome)
	assert.Equal(t, 2, res.Steps)
	assert.Empty(t, caller.actions)
	assert.True(t, errors.Is(res.Err(), ErrStalled))

	// A stalled step adds no user turn; the model is simply asked again.
	assert.Len(t, model.seen[1], 3)
}

func TestLoopStallCheckDisabled(t *testing.T) {
	model := &scriptedModel{replies: []string{"hmm"}}

	res, err := newTestLoop(t, model, &recordingCaller{}, Config{MaxIterations: 4}).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExhausted, res.Outcome)
	assert.Equal(t, 4, res.Steps)
}

func TestLoopActionResetsStalls(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"hmm",
		"Action: Echo: a\nPAUSE",
		"hmm",
		"Answer: ok",
	}}

	res, err := newTestLoop(t, model, &recordingCaller{}, Config{MaxStalls: 2}).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Equal(t, 4, res.Steps)
}

func TestLoopModelFailure(t *testing.T) {
	model := &scriptedModel{err: errors.New("rate limited")}

	res, err := newTestLoop(t, model, &recordingCaller{}, Config{}).Run(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 1, res.Steps)
}

func TestLoopCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	model := &scriptedModel{replies: []string{"Action: Echo: x\nPAUSE"}}
	caller := &recordingCaller{onCall: cancel}

	res, err := newTestLoop(t, model, caller, Config{}).Run(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, 1, model.calls)
}

func TestLoopEchoesReplies(t *testing.T) {
	var out bytes.Buffer
	model := &scriptedModel{replies: []string{"Answer: yes"}}

	loop := NewLoop(model, &recordingCaller{}, Config{}, zaptest.NewLogger(t), &out)
	_, err := loop.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "Answer: yes\n", out.String())
}

func TestRunRecords(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	older := NewRunRecord("first", "m", &Result{Outcome: OutcomeAnswered, Answer: "a", Steps: 1}, nil, time.Now().Add(-time.Minute))
	newer := NewRunRecord("second", "m", &Result{Outcome: OutcomeExhausted, Steps: 10}, nil, time.Now())
	require.NoError(t, SaveRun(s, older))
	require.NoError(t, SaveRun(s, newer))

	assert.Empty(t, older.Error)
	assert.Contains(t, newer.Error, "iteration limit")

	runs, err := ListRuns(s)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "second", runs[0].Prompt)
	assert.Equal(t, "first", runs[1].Prompt)

	got, err := GetRun(s, older.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	_, err = GetRun(s, "zzzz")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = GetRun(s, "")
	assert.Error(t, err)
}
