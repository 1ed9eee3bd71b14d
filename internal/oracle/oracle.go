// Package oracle abstracts the external language model as a
// function-calling service: given a bounded transcript and the
// function catalog schema, it proposes free text and/or structured
// calls. The dispatch session treats it as opaque and retryable.
package oracle

import (
	"context"
	"errors"

	"github.com/opsgraph/opsgraph/internal/catalog"
)

// ErrUnavailable reports that the oracle could not be reached after
// bounded retries. Surfaced to users as a generic apology, never raw.
var ErrUnavailable = errors.New("oracle unavailable")

// Message roles in a transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is one structured function proposal from the oracle.
// Arguments is nil when the raw argument payload was not valid JSON;
// Raw always preserves the original text so errors can be fed back.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	Raw       string
}

// Message is one entry in a conversation transcript.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // assistant messages proposing calls
	ToolCallID string     // tool messages answering a call
}

// Turn is one oracle response: free text, zero or more proposed calls,
// or both.
type Turn struct {
	Text  string
	Calls []ToolCall
}

// Oracle proposes function calls and renders answers. Implementations
// must be safe for concurrent use across sessions; the session layer
// guarantees calls for one session never overlap.
type Oracle interface {
	Complete(ctx context.Context, system string, messages []Message, functions []*catalog.Function) (*Turn, error)
}
