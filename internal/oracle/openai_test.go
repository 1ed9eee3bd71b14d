package oracle

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgraph/opsgraph/internal/catalog"
	"github.com/opsgraph/opsgraph/internal/graph"
	"github.com/opsgraph/opsgraph/internal/traverse"
)

func TestToOpenAIMessages(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "who owns orders?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{
			ID:   "call-1",
			Name: "get_owner",
			Raw:  `{"id":"service:orders"}`,
		}}},
		{Role: RoleTool, Content: "Owned by [team] team:orders-team (orders-team)", ToolCallID: "call-1"},
	}

	converted := toOpenAIMessages("you are a helpful graph assistant", messages)
	require.Len(t, converted, 4)

	assert.Equal(t, openai.ChatMessageRoleSystem, converted[0].Role)
	assert.Equal(t, RoleUser, converted[1].Role)

	// Tool calls replay with their original raw argument JSON.
	require.Len(t, converted[2].ToolCalls, 1)
	assert.Equal(t, "call-1", converted[2].ToolCalls[0].ID)
	assert.Equal(t, `{"id":"service:orders"}`, converted[2].ToolCalls[0].Function.Arguments)

	assert.Equal(t, "call-1", converted[3].ToolCallID)
}

func TestToOpenAIMessagesEncodesArgumentsWithoutRaw(t *testing.T) {
	converted := toOpenAIMessages("", []Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{
			ID:        "call-1",
			Name:      "get_node",
			Arguments: map[string]any{"id": "service:orders"},
		}}},
	})
	require.Len(t, converted, 1)
	require.Len(t, converted[0].ToolCalls, 1)
	assert.JSONEq(t, `{"id":"service:orders"}`, converted[0].ToolCalls[0].Function.Arguments)
}

func TestToOpenAITools(t *testing.T) {
	store := graph.NewMemoryStore()
	cat := catalog.New(store, traverse.New(store))

	tools := toOpenAITools(cat.Functions())
	require.Len(t, tools, len(cat.Functions()))
	for _, tool := range tools {
		assert.Equal(t, openai.ToolTypeFunction, tool.Type)
		assert.NotEmpty(t, tool.Function.Name)
		assert.NotEmpty(t, tool.Function.Description)
	}
	assert.Nil(t, toOpenAITools(nil))
}
