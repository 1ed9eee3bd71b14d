package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/opsgraph/opsgraph/internal/catalog"
)

const defaultModel = "gpt-4o-mini"

// OpenAIOracle implements Oracle over the OpenAI chat completions API
// using its native tool-calling. Transient failures are retried with
// exponential backoff up to MaxRetries before ErrUnavailable surfaces.
type OpenAIOracle struct {
	client     *openai.Client
	model      string
	maxRetries uint64
}

// NewOpenAI builds an oracle for the given API key and model. An empty
// model falls back to the default.
func NewOpenAI(apiKey, model string, maxRetries int) *OpenAIOracle {
	if model == "" {
		model = defaultModel
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &OpenAIOracle{
		client:     openai.NewClient(apiKey),
		model:      model,
		maxRetries: uint64(maxRetries),
	}
}

func (o *OpenAIOracle) Complete(ctx context.Context, system string, messages []Message, functions []*catalog.Function) (*Turn, error) {
	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toOpenAIMessages(system, messages),
		Tools:    toOpenAITools(functions),
	}

	operation := func() (openai.ChatCompletionResponse, error) {
		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 && apiErr.HTTPStatusCode != 429 {
				return resp, backoff.Permanent(err)
			}
			slog.Warn("oracle call failed, will retry", "err", err)
		}
		return resp, err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), o.maxRetries), ctx)
	resp, err := backoff.RetryWithData(operation, policy)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %v: %w", err, ErrUnavailable)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion: %w", ErrUnavailable)
	}

	message := resp.Choices[0].Message
	turn := &Turn{Text: message.Content}
	for _, tc := range message.ToolCalls {
		call := ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Raw:  tc.Function.Arguments,
		}
		// Leave Arguments nil on malformed JSON; catalog validation
		// turns that into a structured error fed back to the oracle.
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err == nil {
			call.Arguments = args
		}
		turn.Calls = append(turn.Calls, call)
	}
	return turn, nil
}

func toOpenAIMessages(system string, messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range messages {
		converted := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			raw := call.Raw
			if raw == "" {
				encoded, err := json.Marshal(call.Arguments)
				if err != nil {
					encoded = []byte("{}")
				}
				raw = string(encoded)
			}
			converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: raw,
				},
			})
		}
		out = append(out, converted)
	}
	return out
}

func toOpenAITools(functions []*catalog.Function) []openai.Tool {
	if len(functions) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(functions))
	for _, fn := range functions {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Schema,
			},
		})
	}
	return tools
}
