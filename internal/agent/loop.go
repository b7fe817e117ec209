package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Markers of the text protocol between the model and the loop.
const (
	PauseMarker  = "PAUSE"
	ActionMarker = "Action: "
	AnswerMarker = "Answer: "
)

const (
	DefaultMaxIterations = 10
	DefaultMaxStalls     = 3
)

var (
	// ErrIncomplete is reported for runs that used every iteration
	// without producing an answer.
	ErrIncomplete = errors.New("agent run incomplete: iteration limit reached without an answer")

	// ErrStalled is reported for runs where the model repeatedly replied
	// with neither an action nor an answer.
	ErrStalled = errors.New("agent run stalled: model made no progress")
)

// Model is the language model the loop talks to.
type Model interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeAnswered  Outcome = "Answered"
	OutcomeExhausted Outcome = "Exhausted"
	OutcomeStalled   Outcome = "Stalled"
	OutcomeCancelled Outcome = "Cancelled"
	OutcomeFailed    Outcome = "Failed"
)

// Result describes a finished run.
type Result struct {
	Outcome    Outcome
	Answer     string
	Steps      int
	Transcript []Message
}

// Err returns the run-level failure for incomplete outcomes, nil otherwise.
func (r *Result) Err() error {
	switch r.Outcome {
	case OutcomeExhausted:
		return fmt.Errorf("%w (%d steps)", ErrIncomplete, r.Steps)
	case OutcomeStalled:
		return fmt.Errorf("%w (%d steps)", ErrStalled, r.Steps)
	}
	return nil
}

// Config tunes a Loop.
type Config struct {
	SystemPrompt string
	// MaxIterations caps model calls per run.
	MaxIterations int
	// MaxStalls ends a run after this many consecutive replies with
	// neither action nor answer. Zero disables the check.
	MaxStalls int
}

// Loop drives ReAct runs. It keeps no per-run state, so one Loop can
// serve several runs, each with its own Conversation.
type Loop struct {
	model  Model
	caller Caller
	cfg    Config
	logger *zap.Logger
	out    io.Writer
}

// NewLoop creates a Loop. Model replies are echoed to out when non-nil.
// A non-positive MaxIterations means DefaultMaxIterations; a negative
// MaxStalls is treated as zero.
func NewLoop(model Model, caller Caller, cfg Config, logger *zap.Logger, out io.Writer) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxStalls < 0 {
		cfg.MaxStalls = 0
	}
	return &Loop{
		model:  model,
		caller: caller,
		cfg:    cfg,
		logger: logger,
		out:    out,
	}
}

// Run answers prompt. Exhausted and stalled runs return a nil error and a
// Result whose Err reports the condition; a model failure or cancellation
// returns the error alongside the partial Result.
func (l *Loop) Run(ctx context.Context, prompt string) (*Result, error) {
	conv := NewConversation(l.cfg.SystemPrompt)
	res := &Result{Outcome: OutcomeExhausted}
	pending := prompt
	stalls := 0

	finish := func(o Outcome) *Result {
		res.Outcome = o
		res.Transcript = conv.Messages()
		return res
	}

	for step := 1; step <= l.cfg.MaxIterations; step++ {
		if err := ctx.Err(); err != nil {
			l.logger.Info("agent run cancelled", zap.Int("step", step))
			return finish(OutcomeCancelled), err
		}

		reply, err := l.step(ctx, conv, pending)
		res.Steps = step
		if err != nil {
			l.logger.Error("model call failed", zap.Int("step", step), zap.Error(err))
			if ctx.Err() != nil {
				return finish(OutcomeCancelled), ctx.Err()
			}
			return finish(OutcomeFailed), fmt.Errorf("step %d: %w", step, err)
		}

		d := Decide(reply)
		l.logger.Info("agent step",
			zap.Int("step", step),
			zap.String("decision", d.Kind.String()),
		)

		switch d.Kind {
		case DecisionAction:
			stalls = 0
			observation := l.caller.Call(ctx, d.Action)
			pending = ObservationPrompt(observation)

		case DecisionAnswer:
			res.Answer = d.Answer
			return finish(OutcomeAnswered), nil

		default:
			pending = ""
			stalls++
			if l.cfg.MaxStalls > 0 && stalls >= l.cfg.MaxStalls {
				l.logger.Warn("agent run stalled", zap.Int("step", step), zap.Int("stalls", stalls))
				return finish(OutcomeStalled), nil
			}
		}
	}

	l.logger.Warn("agent run exhausted", zap.Int("maxIterations", l.cfg.MaxIterations))
	return finish(OutcomeExhausted), nil
}

// step appends pending input (when not blank), asks the model and
// appends its reply.
func (l *Loop) step(ctx context.Context, conv *Conversation, pending string) (string, error) {
	if strings.TrimSpace(pending) != "" {
		conv.AddUser(pending)
	}

	reply, err := l.model.Complete(ctx, conv.Messages())
	if err != nil {
		return "", err
	}
	conv.AddAssistant(reply)

	if l.out != nil {
		fmt.Fprintln(l.out, reply)
	}
	return reply, nil
}

// DecisionKind classifies a model reply.
type DecisionKind int

const (
	DecisionNone DecisionKind = iota
	DecisionAction
	DecisionAnswer
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAction:
		return "action"
	case DecisionAnswer:
		return "answer"
	default:
		return "none"
	}
}

// Decision is what the loop does with one reply.
type Decision struct {
	Kind   DecisionKind
	Action Action
	Answer string
}

// Decide classifies a reply. A pause together with a parseable action wins
// over an answer; an action marker whose line does not parse counts as no
// action.
func Decide(reply string) Decision {
	if strings.Contains(reply, PauseMarker) && strings.Contains(reply, ActionMarker) {
		if a, ok := ParseAction(reply); ok {
			return Decision{Kind: DecisionAction, Action: a}
		}
	}
	if i := strings.Index(reply, AnswerMarker); i >= 0 {
		return Decision{Kind: DecisionAnswer, Answer: strings.TrimSpace(reply[i+len(AnswerMarker):])}
	}
	return Decision{Kind: DecisionNone}
}
