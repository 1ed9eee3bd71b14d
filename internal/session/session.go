// Package session implements the per-conversation dispatch state
// machine between users, the oracle and the function catalog.
//
// Each session is strictly sequential internally (a mutex serializes
// turns); distinct sessions run fully concurrently. The oracle loop is
// a bounded state machine, never open-ended recursion: it stops after
// MaxRounds call/response rounds and surfaces a fixed "unable to
// complete" message.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opsgraph/opsgraph/internal/catalog"
	"github.com/opsgraph/opsgraph/internal/graph"
	"github.com/opsgraph/opsgraph/internal/metrics"
	"github.com/opsgraph/opsgraph/internal/oracle"
)

// State of the dispatch machine. Only observable for logging and
// tests; transitions happen inside HandleTurn.
type State int

const (
	StateIdle State = iota
	StateAwaitingOracle
	StateExecutingCalls
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingOracle:
		return "awaiting_oracle"
	case StateExecutingCalls:
		return "executing_calls"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// ErrRoundLimit reports that a turn exceeded the oracle round cap.
var ErrRoundLimit = errors.New("round limit exceeded")

// User-facing fallback texts. These are fixed contracts: tests assert
// on them and the grounding rule depends on them never being replaced
// by fabricated content.
const (
	MsgCouldNotUnderstand = "I could not map that question to a known operation. Try asking about services, databases, teams, or their dependencies."
	MsgUnableToComplete   = "I was unable to complete this request. Please try rephrasing it."
	MsgApology            = "Sorry, something went wrong on our side. Please try again in a moment."
)

// Config bounds a session's resource use.
type Config struct {
	// MaxRounds caps oracle call/response rounds per turn.
	MaxRounds int
	// HistoryWindow bounds how many transcript messages are replayed
	// to the oracle.
	HistoryWindow int
	// OracleTimeout bounds each oracle call.
	OracleTimeout time.Duration
	// ExecTimeout bounds each catalog function execution (and thereby
	// each traversal).
	ExecTimeout time.Duration
	// StoreRetries bounds retries of store-unavailable reads. Catalog
	// functions are pure, so retrying is always safe.
	StoreRetries int
}

// DefaultConfig mirrors the documented bounds.
func DefaultConfig() Config {
	return Config{
		MaxRounds:     4,
		HistoryWindow: 20,
		OracleTimeout: 30 * time.Second,
		ExecTimeout:   10 * time.Second,
		StoreRetries:  2,
	}
}

// Session is one conversation. Created by the Store on first turn,
// cleared on reset, evicted on idle expiry.
type Session struct {
	id      string
	oracle  oracle.Oracle
	catalog *catalog.Catalog
	cfg     Config

	mu         sync.Mutex
	state      State
	history    []oracle.Message
	lastActive time.Time
}

func newSession(id string, orc oracle.Oracle, cat *catalog.Catalog, cfg Config) *Session {
	return &Session{
		id:         id,
		oracle:     orc,
		catalog:    cat,
		cfg:        cfg,
		state:      StateIdle,
		lastActive: time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// HandleTurn runs one full user turn through the dispatch loop and
// returns user-safe response text. The returned error carries the
// internal cause (round limit, oracle unavailable, ...) for logging;
// the text is always presentable as-is.
func (s *Session) HandleTurn(ctx context.Context, utterance string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	s.history = append(s.history, oracle.Message{Role: oracle.RoleUser, Content: utterance})

	executedAny := false
	rounds := 0
	defer func() { metrics.OracleRounds.Observe(float64(rounds)) }()

	for rounds = 1; rounds <= s.cfg.MaxRounds; rounds++ {
		s.state = StateAwaitingOracle
		turn, err := s.askOracle(ctx)
		if err != nil {
			s.state = StateIdle
			metrics.TurnsTotal.WithLabelValues("oracle_unavailable").Inc()
			return MsgApology, err
		}

		s.history = append(s.history, oracle.Message{
			Role:      oracle.RoleAssistant,
			Content:   turn.Text,
			ToolCalls: turn.Calls,
		})

		if len(turn.Calls) == 0 {
			s.state = StateDone
			defer func() { s.state = StateIdle }()
			if turn.Text == "" {
				// Nothing proposed and nothing said: the utterance
				// mapped to no known operation.
				metrics.TurnsTotal.WithLabelValues("fallback").Inc()
				if executedAny {
					return MsgUnableToComplete, nil
				}
				return MsgCouldNotUnderstand, nil
			}
			metrics.TurnsTotal.WithLabelValues("ok").Inc()
			return turn.Text, nil
		}

		s.state = StateExecutingCalls
		toolMessages, err := s.executeCalls(ctx, turn.Calls)
		if err != nil {
			// Infrastructure failure mid-execution: discard partial
			// round state rather than answering from half a result.
			s.state = StateIdle
			metrics.TurnsTotal.WithLabelValues("store_unavailable").Inc()
			return MsgApology, err
		}
		executedAny = true
		s.history = append(s.history, toolMessages...)
	}

	s.state = StateIdle
	metrics.TurnsTotal.WithLabelValues("round_limit").Inc()
	return MsgUnableToComplete, fmt.Errorf("session %s: %w", s.id, ErrRoundLimit)
}

// Reset clears the bounded history window. The graph snapshot is
// untouched.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.state = StateIdle
	s.lastActive = time.Now()
}

func (s *Session) askOracle(ctx context.Context) (*oracle.Turn, error) {
	octx := ctx
	if s.cfg.OracleTimeout > 0 {
		var cancel context.CancelFunc
		octx, cancel = context.WithTimeout(ctx, s.cfg.OracleTimeout)
		defer cancel()
	}
	return s.oracle.Complete(octx, systemPrompt, s.window(), s.catalog.Functions())
}

// executeCalls runs each proposed call, capturing validation and
// lookup failures as structured tool results fed back to the oracle.
// Only store-unavailability aborts the round.
func (s *Session) executeCalls(ctx context.Context, calls []oracle.ToolCall) ([]oracle.Message, error) {
	messages := make([]oracle.Message, 0, len(calls))
	for _, call := range calls {
		content, err := s.executeOne(ctx, call)
		if err != nil {
			return nil, err
		}
		messages = append(messages, oracle.Message{
			Role:       oracle.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
		})
	}
	return messages, nil
}

func (s *Session) executeOne(ctx context.Context, call oracle.ToolCall) (string, error) {
	ectx := ctx
	if s.cfg.ExecTimeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, s.cfg.ExecTimeout)
		defer cancel()
	}

	operation := func() (any, error) {
		result, err := s.catalog.Execute(ectx, call.Name, call.Arguments)
		if err != nil && !errors.Is(err, graph.ErrStoreUnavailable) {
			return nil, backoff.Permanent(err)
		}
		return result, err
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.cfg.StoreRetries)), ectx)
	result, err := backoff.RetryWithData(operation, policy)

	switch {
	case err == nil:
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "ok").Inc()
		return catalog.FormatResult(result), nil
	case errors.Is(err, catalog.ErrValidation):
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "validation_error").Inc()
		slog.Debug("tool call rejected", "session", s.id, "function", call.Name, "err", err)
		return "Invalid arguments: " + err.Error(), nil
	case errors.Is(err, graph.ErrNotFound):
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "not_found").Inc()
		return "Not found: " + err.Error(), nil
	case errors.Is(err, graph.ErrNoPath):
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "ok").Inc()
		return "No path exists: " + err.Error(), nil
	case errors.Is(err, graph.ErrInvalidArgument):
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "validation_error").Inc()
		return "Invalid arguments: " + err.Error(), nil
	case errors.Is(err, graph.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		return "", err
	default:
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		return "Execution failed: " + err.Error(), nil
	}
}

// window returns the bounded tail of the transcript. Leading tool
// messages are dropped so the window never starts with results whose
// proposing assistant message was trimmed away.
func (s *Session) window() []oracle.Message {
	history := s.history
	if n := s.cfg.HistoryWindow; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	for len(history) > 0 && history[0].Role == oracle.RoleTool {
		history = history[1:]
	}
	return history
}
