package adapters

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lotbones1-code/llmbridge/external"
)

// =============================================================================
// OLLAMA REQUEST ADAPTER
// =============================================================================

func TestOllama_StreamingDefaultsToTrue(t *testing.T) {
	req, err := newOllamaRequest([]byte(`{"model": "llama3.2", "messages": []}`), RequestOptions{})
	require.NoError(t, err)
	assert.True(t, req.IsStreaming())

	req, err = newOllamaRequest([]byte(`{"model": "llama3.2", "stream": false, "messages": []}`), RequestOptions{})
	require.NoError(t, err)
	assert.False(t, req.IsStreaming())
}

func TestOllama_PositionalToolCallIDs(t *testing.T) {
	body := []byte(`{
		"model": "llama3.2",
		"messages": [
			{"role": "assistant", "tool_calls": [
				{"function": {"name": "get_weather", "arguments": {"city": "SF"}}},
				{"function": {"name": "get_time", "arguments": {}}}
			]},
			{"role": "tool", "content": "sunny"},
			{"role": "tool", "tool_name": "get_time", "content": "noon"}
		]
	}`)

	req, err := newOllamaRequest(body, RequestOptions{})
	require.NoError(t, err)

	msgs := req.Messages()
	require.Len(t, msgs, 3)
	require.Len(t, msgs[0].ToolCalls, 2)
	assert.Equal(t, "ollama_call_0", msgs[0].ToolCalls[0].ID)
	assert.Equal(t, "ollama_call_1", msgs[0].ToolCalls[1].ID)
	assert.Equal(t, map[string]any{"city": "SF"}, msgs[0].ToolCalls[0].Arguments)
	assert.Equal(t, "ollama_call_0", msgs[1].ToolCallID)
	assert.Equal(t, "ollama_call_1", msgs[2].ToolCallID)

	// tool_name wins when present; otherwise the matching call's name.
	results := req.ToolResults()
	require.Len(t, results, 2)
	assert.Equal(t, "get_weather", results[0].Name)
	assert.Equal(t, "get_time", results[1].Name)
}

func TestOllama_UpdateToolResultByPosition(t *testing.T) {
	body := []byte(`{
		"model": "llama3.2",
		"messages": [
			{"role": "tool", "content": "first"},
			{"role": "tool", "content": "second"}
		]
	}`)

	req, err := newOllamaRequest(body, RequestOptions{})
	require.NoError(t, err)

	req.UpdateToolResult("ollama_call_1", `{"temperature":75}`)

	out, err := req.ToProviderRequest()
	require.NoError(t, err)
	assert.Equal(t, "first", gjson.GetBytes(out, "messages.0.content").String())
	assert.Equal(t, `{"temperature":75}`, gjson.GetBytes(out, "messages.1.content").String())
}

func TestOllama_StripImagesFromToolMessage(t *testing.T) {
	body := []byte(`{
		"model": "codellama",
		"messages": [
			{"role": "tool", "content": "rendered chart", "images": ["aGVsbG8="]}
		]
	}`)

	caps := external.NewStaticCapabilities([]string{"codellama"})
	req, err := newOllamaRequest(body, RequestOptions{Capabilities: caps})
	require.NoError(t, err)

	out, err := req.ToProviderRequest()
	require.NoError(t, err)

	content := gjson.GetBytes(out, "messages.0.content").String()
	assert.Contains(t, content, "rendered chart")
	assert.Contains(t, content, "[1 image(s) removed: model does not support image input]")
	// The images array is gone entirely.
	assert.False(t, gjson.GetBytes(out, "messages.0.images").Exists())
}

// =============================================================================
// OLLAMA RESPONSE ADAPTER
// =============================================================================

func TestOllama_ResponseParsing(t *testing.T) {
	body := []byte(`{
		"model": "llama3.2",
		"message": {"role": "assistant", "content": "sunny", "tool_calls": [
			{"function": {"name": "get_weather", "arguments": {"city": "SF"}}}
		]},
		"done": true,
		"done_reason": "stop",
		"prompt_eval_count": 25,
		"eval_count": 7
	}`)

	resp, err := newOllamaResponse(body)
	require.NoError(t, err)

	// Ollama responses carry no identifier.
	assert.Equal(t, "", resp.ID())
	assert.Equal(t, "llama3.2", resp.Model())
	assert.Equal(t, "sunny", resp.Text())
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "ollama_call_0", calls[0].ID)
	assert.Equal(t, map[string]any{"city": "SF"}, calls[0].Arguments)
	assert.Equal(t, Usage{InputTokens: 25, OutputTokens: 7}, resp.Usage())
}

func TestOllama_ToRefusalResponse(t *testing.T) {
	body := []byte(`{
		"model": "llama3.2",
		"message": {"role": "assistant", "content": "", "tool_calls": [
			{"function": {"name": "rm_rf", "arguments": {}}}
		]},
		"done": true,
		"done_reason": "tool_calls"
	}`)

	resp, err := newOllamaResponse(body)
	require.NoError(t, err)

	out, err := resp.ToRefusalResponse("policy violation", "I can't do that.")
	require.NoError(t, err)

	assert.Equal(t, "I can't do that.", gjson.GetBytes(out, "message.content").String())
	assert.False(t, gjson.GetBytes(out, "message.tool_calls").Exists())
	assert.True(t, gjson.GetBytes(out, "done").Bool())
	assert.Equal(t, "stop", gjson.GetBytes(out, "done_reason").String())
}

// =============================================================================
// OLLAMA STREAM ADAPTER
// =============================================================================

func TestOllama_StreamAssembly(t *testing.T) {
	stream := newOllamaStream()

	chunks := [][]byte{
		[]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"Let me "},"done":false}`),
		[]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"check"},"done":false}`),
		[]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"get_weather","arguments":{"city":"SF"}}}]},"done":false}`),
	}
	for _, chunk := range chunks {
		frame, err := stream.ProcessChunk(chunk)
		require.NoError(t, err)
		// NDJSON framing: the payload plus a newline, no SSE prefix.
		assert.Equal(t, string(chunk)+"\n", string(frame))
		assert.False(t, stream.IsComplete())
	}

	// Only the done:true line is terminal; it carries the usage counters.
	_, err := stream.ProcessChunk([]byte(`{"model":"llama3.2","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":30,"eval_count":12}`))
	require.NoError(t, err)
	require.True(t, stream.IsComplete())

	state := stream.State()
	assert.Equal(t, "Let me check", state.Text())
	assert.Equal(t, "stop", state.StopReason)
	assert.Equal(t, Usage{InputTokens: 30, OutputTokens: 12}, state.UsageOrZero())

	calls := state.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "ollama_call_0", calls[0].ID)
	assert.Equal(t, `{"city":"SF"}`, calls[0].Arguments())
}

func TestOllama_StreamEndWithoutDoneIsIncomplete(t *testing.T) {
	stream := newOllamaStream()
	_, err := stream.ProcessChunk([]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"partial"},"done":false}`))
	require.NoError(t, err)
	assert.False(t, stream.IsComplete())
}

func TestOllama_StreamToProviderResponse(t *testing.T) {
	stream := newOllamaStream()
	for _, chunk := range [][]byte{
		[]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"hi"},"done":false}`),
		[]byte(`{"model":"llama3.2","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":4,"eval_count":2}`),
	} {
		_, err := stream.ProcessChunk(chunk)
		require.NoError(t, err)
	}

	out, err := stream.ToProviderResponse()
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", gjson.GetBytes(out, "model").String())
	assert.Equal(t, "hi", gjson.GetBytes(out, "message.content").String())
	assert.True(t, gjson.GetBytes(out, "done").Bool())
	assert.Equal(t, int64(4), gjson.GetBytes(out, "prompt_eval_count").Int())
	assert.True(t, strings.Contains(gjson.GetBytes(out, "created_at").String(), "T"))
}
