package adapters

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Role is a common-model message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the vendor-agnostic message representation.
// A tool-role message carries exactly one tool result, correlated by
// ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-requested tool invocation. IDs are vendor-assigned and
// unique within one response; vendors without call IDs get synthesized ones.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is a post-execution tool outcome, correlated to the originating
// call by ID. Content holds the vendor's value as decoded JSON: a string, or
// arbitrary structured data.
type ToolResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content any    `json:"content"`
	IsError bool   `json:"is_error"`
}

// McpToolDefinition describes one tool offered to the model.
type McpToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// Usage holds token counts. Missing vendor fields stay zero.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// parseArguments decodes a tool-call argument string. An unparsable string
// becomes an empty object, never an error: the upstream model occasionally
// emits malformed JSON and the request must still be representable.
func parseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// decodeContentValue decodes a vendor content value into the common model:
// strings stay strings, structured values decode to generic Go values.
func decodeContentValue(v gjson.Result) any {
	if !v.Exists() {
		return nil
	}
	if v.Type == gjson.String {
		return v.String()
	}
	return v.Value()
}

// decodeObject decodes a JSON object field, empty map when absent or not an
// object.
func decodeObject(v gjson.Result) map[string]any {
	if m, ok := v.Value().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
