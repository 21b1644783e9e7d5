// Package adapters projects heterogeneous LLM vendor wire formats onto one
// common message/tool-call model, and back.
//
// DESIGN: The bridge sits between a client speaking one vendor's protocol and
// an upstream that may be a different vendor. Each vendor gets an adapter
// triple:
//
//   - RequestAdapter:  reads a vendor-native request into the common model,
//     stages mutations (model override, tool-result rewrites, content
//     transforms), materializes a new vendor-native request
//   - ResponseAdapter: extracts text/tool calls/usage from a vendor-native
//     non-streaming response; synthesizes refusal responses
//   - StreamAdapter:   stateful accumulator over vendor-native stream chunks;
//     reassembles fragmented tool-call arguments; detects completion
//
// FLOW:
//  1. Proxy identifies provider and gets its registry Entry
//  2. Entry.NewRequest(body) parses the inbound request; policy code reads
//     Messages/ToolResults/Tools and stages mutations
//  3. ToProviderRequest() materializes the upstream body (pure: original
//     bytes are never mutated, calling it twice yields the same output)
//  4. Entry.Execute / Entry.ExecuteStream performs the upstream call
//  5. Entry.NewResponse / Entry.NewStream normalizes the result
//
// Adapters are constructed fresh per inbound call and never pooled. The only
// shared state is the registry table, which is read-only after init.
package adapters

import (
	"context"

	"github.com/lotbones1-code/llmbridge/internal/transform"
)

// Provider identifies a supported vendor wire format.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderVLLM      Provider = "vllm"
	ProviderOllama    Provider = "ollama"
	ProviderXAI       Provider = "xai"
)

// RequestAdapter wraps one vendor-native request body.
//
// Read methods never mutate. Mutations are staged on the adapter and only
// applied when ToProviderRequest materializes a new body from the original
// bytes plus the accumulated patch.
type RequestAdapter interface {
	Provider() Provider

	Model() string
	IsStreaming() bool
	Messages() []Message
	ToolResults() []ToolResult
	Tools() []McpToolDefinition
	HasTools() bool

	// SetModel stages a model override.
	SetModel(model string)

	// UpdateToolResult stages a full replacement of the tool-result content
	// correlated with the given tool call ID.
	UpdateToolResult(toolCallID, newContent string)

	// ApplyToolResultUpdates is the bulk form of UpdateToolResult.
	ApplyToolResultUpdates(updates map[string]string)

	// ApplyToonCompression re-encodes every structured tool-result payload
	// into token-oriented notation, staging the rewrites. Returns nil when no
	// tool result holds structured content.
	ApplyToonCompression(ctx context.Context, model string) (*transform.ToonResult, error)

	// ToProviderRequest materializes a new vendor-native request from the
	// original body and the staged patch. Idempotent; the original is never
	// mutated.
	ToProviderRequest() ([]byte, error)

	// TransformStats reports images stripped and omitted by the last
	// ToProviderRequest call.
	TransformStats() (stripped, omitted int)
}

// ResponseAdapter wraps the first choice/candidate of a vendor-native
// non-streaming response.
type ResponseAdapter interface {
	Provider() Provider

	ID() string
	Model() string
	// Text returns the assistant text, empty string when absent (never an
	// error).
	Text() string
	ToolCalls() []ToolCall
	HasToolCalls() bool
	// Usage defaults missing token counts to zero.
	Usage() Usage

	// ToRefusalResponse builds a new vendor-native response with the same
	// id/model/usage, the assistant message replaced by contentMessage, no
	// tool calls, and the finish reason normalized to the vendor's "stop"
	// equivalent. refusalMessage is attached where the wire format has a
	// place for it.
	ToRefusalResponse(refusalMessage, contentMessage string) ([]byte, error)
}

// StreamAdapter accumulates one vendor-native event stream.
//
// Chunks must be fed in strict arrival order: tool-call argument fragments
// are concatenated positionally and the operation is not commutative.
type StreamAdapter interface {
	Provider() Provider

	// ProcessChunk ingests one vendor event (the JSON payload of an SSE data
	// line, or one NDJSON line) and returns the event re-serialized in the
	// same vendor wire format for verbatim forwarding to the client.
	ProcessChunk(chunk []byte) ([]byte, error)

	// IsComplete reports whether the vendor's terminal signal has been seen.
	// The rule is vendor-specific; a stream that ends without it is treated
	// as not yet final, never as complete.
	IsComplete() bool

	// State exposes the accumulator for post-hoc consumers.
	State() *StreamState

	// RawEvents replays exactly the chunks observed, in arrival order.
	RawEvents() [][]byte

	// ToProviderResponse synthesizes a complete non-streaming-shaped
	// response from the final accumulator state.
	ToProviderResponse() ([]byte, error)
}
