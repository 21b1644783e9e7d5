package adapters

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lotbones1-code/llmbridge/external"
)

// =============================================================================
// OPENAI REQUEST ADAPTER
// =============================================================================

func TestOpenAI_RequestParsing(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"stream": true,
		"messages": [
			{"role": "system", "content": "be helpful"},
			{"role": "user", "content": "weather in SF?"},
			{"role": "assistant", "content": null, "tool_calls": [
				{"id": "call_123", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"SF\"}"}}
			]},
			{"role": "tool", "tool_call_id": "call_123", "content": "{\"temperature\":60}"}
		],
		"tools": [
			{"type": "function", "function": {"name": "get_weather", "description": "current weather", "parameters": {"type": "object"}}}
		]
	}`)

	req, err := newOpenAIRequest(ProviderOpenAI, body, RequestOptions{})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", req.Model())
	assert.True(t, req.IsStreaming())

	msgs := req.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "be helpful", msgs[0].Content)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "call_123", msgs[2].ToolCalls[0].ID)
	assert.Equal(t, "get_weather", msgs[2].ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"city": "SF"}, msgs[2].ToolCalls[0].Arguments)

	results := req.ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, "call_123", results[0].ID)
	assert.Equal(t, "get_weather", results[0].Name)

	require.True(t, req.HasTools())
	tools := req.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "get_weather", tools[0].Name)
	assert.Equal(t, "current weather", tools[0].Description)
}

func TestOpenAI_RequestInvalidBody(t *testing.T) {
	_, err := newOpenAIRequest(ProviderOpenAI, []byte(`not json`), RequestOptions{})
	require.Error(t, err)
}

func TestOpenAI_UnparsableArgumentsBecomeEmptyMap(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [
			{"role": "assistant", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "f", "arguments": "{broken"}}
			]}
		]
	}`)

	req, err := newOpenAIRequest(ProviderOpenAI, body, RequestOptions{})
	require.NoError(t, err)

	msgs := req.Messages()
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, map[string]any{}, msgs[0].ToolCalls[0].Arguments)
}

func TestOpenAI_UpdateToolResult(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [
			{"role": "assistant", "tool_calls": [
				{"id": "call_123", "type": "function", "function": {"name": "get_weather", "arguments": "{}"}}
			]},
			{"role": "tool", "tool_call_id": "call_123", "content": "original"}
		]
	}`)

	req, err := newOpenAIRequest(ProviderOpenAI, body, RequestOptions{})
	require.NoError(t, err)

	req.UpdateToolResult("call_123", `{"temperature":75}`)

	out, err := req.ToProviderRequest()
	require.NoError(t, err)
	assert.Equal(t, `{"temperature":75}`, gjson.GetBytes(out, "messages.1.content").String())

	// The original is never mutated and materialization is idempotent.
	assert.Equal(t, "original", gjson.GetBytes(body, "messages.1.content").String())
	again, err := req.ToProviderRequest()
	require.NoError(t, err)
	assert.Equal(t, string(out), string(again))
}

func TestOpenAI_SetModel(t *testing.T) {
	body := []byte(`{"model": "gpt-4o", "messages": []}`)

	req, err := newOpenAIRequest(ProviderOpenAI, body, RequestOptions{})
	require.NoError(t, err)

	req.SetModel("gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", req.Model())

	out, err := req.ToProviderRequest()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", gjson.GetBytes(out, "model").String())
}

func TestOpenAI_MaterializeWithoutChanges(t *testing.T) {
	body := []byte(`{"model": "gpt-4o", "messages": [{"role": "user", "content": "hi"}]}`)

	req, err := newOpenAIRequest(ProviderOpenAI, body, RequestOptions{})
	require.NoError(t, err)

	out, err := req.ToProviderRequest()
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(out))
}

func TestOpenAI_StripImagesForIncapableModel(t *testing.T) {
	body := []byte(`{
		"model": "gpt-3.5-turbo",
		"messages": [
			{"role": "tool", "tool_call_id": "call_1", "content": [
				{"type": "text", "text": "screenshot taken"},
				{"type": "image_url", "image_url": {"url": "data:image/png;base64,aGVsbG8="}}
			]}
		]
	}`)

	caps := external.NewStaticCapabilities([]string{"gpt-3.5"})
	req, err := newOpenAIRequest(ProviderOpenAI, body, RequestOptions{Capabilities: caps})
	require.NoError(t, err)

	out, err := req.ToProviderRequest()
	require.NoError(t, err)

	content := gjson.GetBytes(out, "messages.0.content")
	require.True(t, content.IsArray())
	parts := content.Array()
	require.Len(t, parts, 2)
	assert.Equal(t, "screenshot taken", parts[0].Get("text").String())
	assert.Equal(t, "[1 image(s) removed: model does not support image input]", parts[1].Get("text").String())

	stripped, omitted := req.TransformStats()
	assert.Equal(t, 1, stripped)
	assert.Equal(t, 0, omitted)
}

func TestOpenAI_OmitOversizedImage(t *testing.T) {
	huge := strings.Repeat("A", 140000)
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [
			{"role": "tool", "tool_call_id": "call_1", "content": [
				{"type": "image_url", "image_url": {"url": "data:image/png;base64,` + huge + `"}}
			]}
		]
	}`)

	req, err := newOpenAIRequest(ProviderOpenAI, body, RequestOptions{})
	require.NoError(t, err)

	out, err := req.ToProviderRequest()
	require.NoError(t, err)

	parts := gjson.GetBytes(out, "messages.0.content").Array()
	require.Len(t, parts, 1)
	assert.Equal(t, "text", parts[0].Get("type").String())
	assert.Equal(t, "[Image omitted due to size]", parts[0].Get("text").String())

	stripped, omitted := req.TransformStats()
	assert.Equal(t, 0, stripped)
	assert.Equal(t, 1, omitted)
}

func TestOpenAI_ToonCompression(t *testing.T) {
	rows := `[{"id":1,"name":"alpha","score":10},{"id":2,"name":"beta","score":20},{"id":3,"name":"gamma","score":30}]`
	// Content is a JSON string holding a JSON array.
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [
			{"role": "assistant", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "list_items", "arguments": "{}"}}
			]},
			{"role": "tool", "tool_call_id": "call_1", "content": ` + escapeJSONString(rows) + `}
		]
	}`)

	req, err := newOpenAIRequest(ProviderOpenAI, body, RequestOptions{})
	require.NoError(t, err)

	res, err := req.ApplyToonCompression(context.Background(), "gpt-4o")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Greater(t, res.TokensBefore, res.TokensAfter)
	assert.Nil(t, res.CostSavings)

	out, err := req.ToProviderRequest()
	require.NoError(t, err)
	compressed := gjson.GetBytes(out, "messages.1.content").String()
	assert.Contains(t, compressed, "[3]{id,name,score}:")
}

func TestOpenAI_ToonCompressionNoStructuredContent(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [{"role": "tool", "tool_call_id": "c1", "content": "plain text"}]
	}`)

	req, err := newOpenAIRequest(ProviderOpenAI, body, RequestOptions{})
	require.NoError(t, err)

	res, err := req.ApplyToonCompression(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func escapeJSONString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

// =============================================================================
// OPENAI RESPONSE ADAPTER
// =============================================================================

func TestOpenAI_ResponseParsing(t *testing.T) {
	body := []byte(`{
		"id": "chatcmpl-abc",
		"model": "gpt-4o",
		"choices": [{"index": 0, "message": {
			"role": "assistant",
			"content": "sunny",
			"tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"SF\"}"}}
			]
		}, "finish_reason": "tool_calls"}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 5}
	}`)

	resp, err := newOpenAIResponse(ProviderOpenAI, body)
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-abc", resp.ID())
	assert.Equal(t, "gpt-4o", resp.Model())
	assert.Equal(t, "sunny", resp.Text())
	require.True(t, resp.HasToolCalls())
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{"city": "SF"}, calls[0].Arguments)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 5}, resp.Usage())
}

func TestOpenAI_ResponseUsageDefaultsToZero(t *testing.T) {
	resp, err := newOpenAIResponse(ProviderOpenAI, []byte(`{"id": "x", "choices": []}`))
	require.NoError(t, err)
	assert.Equal(t, Usage{}, resp.Usage())
	assert.Equal(t, "", resp.Text())
	assert.False(t, resp.HasToolCalls())
}

func TestOpenAI_ToRefusalResponse(t *testing.T) {
	body := []byte(`{
		"id": "chatcmpl-abc",
		"model": "gpt-4o",
		"choices": [{"index": 0, "message": {
			"role": "assistant",
			"content": null,
			"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "rm_rf", "arguments": "{}"}}]
		}, "finish_reason": "tool_calls"}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 5}
	}`)

	resp, err := newOpenAIResponse(ProviderOpenAI, body)
	require.NoError(t, err)

	out, err := resp.ToRefusalResponse("policy violation", "I can't do that.")
	require.NoError(t, err)

	assert.Equal(t, "I can't do that.", gjson.GetBytes(out, "choices.0.message.content").String())
	assert.False(t, gjson.GetBytes(out, "choices.0.message.tool_calls").Exists())
	assert.Equal(t, "policy violation", gjson.GetBytes(out, "choices.0.message.refusal").String())
	assert.Equal(t, "stop", gjson.GetBytes(out, "choices.0.finish_reason").String())
	// Identity and usage survive.
	assert.Equal(t, "chatcmpl-abc", gjson.GetBytes(out, "id").String())
	assert.Equal(t, int64(12), gjson.GetBytes(out, "usage.prompt_tokens").Int())
}

// =============================================================================
// OPENAI STREAM ADAPTER
// =============================================================================

func TestOpenAI_StreamTextAndToolAssembly(t *testing.T) {
	stream := newOpenAIStream(ProviderOpenAI, finalityFinishReason)

	chunks := [][]byte{
		[]byte(`{"id":"chatcmpl-abc","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Let me check"}}]}`),
		[]byte(`{"id":"chatcmpl-abc","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather","arguments":"{\"a\":1"}}]}}]}`),
		[]byte(`{"id":"chatcmpl-abc","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"}"}}]}}]}`),
		[]byte(`{"id":"chatcmpl-abc","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":9,"completion_tokens":4}}`),
	}

	for _, chunk := range chunks {
		frame, err := stream.ProcessChunk(chunk)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(frame), "data: "))
		assert.True(t, strings.HasSuffix(string(frame), "\n\n"))
	}

	require.True(t, stream.IsComplete())
	state := stream.State()
	assert.Equal(t, "chatcmpl-abc", state.ResponseID)
	assert.Equal(t, "gpt-4o", state.Model)
	assert.Equal(t, "Let me check", state.Text())
	assert.Equal(t, "tool_calls", state.StopReason)

	calls := state.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, `{"a":1}`, calls[0].Arguments())

	assert.Equal(t, Usage{InputTokens: 9, OutputTokens: 4}, state.UsageOrZero())
	assert.Len(t, stream.RawEvents(), 4)
}

func TestOpenAI_StreamInterleavedToolCalls(t *testing.T) {
	stream := newOpenAIStream(ProviderOpenAI, finalityFinishReason)

	chunks := [][]byte{
		[]byte(`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"first","arguments":"{\"x\""}}]}}]}`),
		[]byte(`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","function":{"name":"second","arguments":"{}"}}]}}]}`),
		[]byte(`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":":2}"}}]}}]}`),
	}
	for _, chunk := range chunks {
		_, err := stream.ProcessChunk(chunk)
		require.NoError(t, err)
	}

	calls := stream.State().ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "first", calls[0].Name)
	assert.Equal(t, `{"x":2}`, calls[0].Arguments())
	assert.Equal(t, "second", calls[1].Name)
	assert.Equal(t, `{}`, calls[1].Arguments())
}

func TestOpenAI_StreamIncompleteWithoutFinishReason(t *testing.T) {
	stream := newOpenAIStream(ProviderOpenAI, finalityFinishReason)
	_, err := stream.ProcessChunk([]byte(`{"choices":[{"index":0,"delta":{"content":"partial"}}]}`))
	require.NoError(t, err)
	assert.False(t, stream.IsComplete())
}

func TestOpenAI_StreamToProviderResponse(t *testing.T) {
	stream := newOpenAIStream(ProviderOpenAI, finalityFinishReason)
	for _, chunk := range [][]byte{
		[]byte(`{"id":"chatcmpl-abc","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"hello"}}]}`),
		[]byte(`{"id":"chatcmpl-abc","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`),
	} {
		_, err := stream.ProcessChunk(chunk)
		require.NoError(t, err)
	}

	out, err := stream.ToProviderResponse()
	require.NoError(t, err)
	assert.Equal(t, "chatcmpl-abc", gjson.GetBytes(out, "id").String())
	assert.Equal(t, "chat.completion", gjson.GetBytes(out, "object").String())
	assert.Equal(t, "hello", gjson.GetBytes(out, "choices.0.message.content").String())
	assert.Equal(t, "stop", gjson.GetBytes(out, "choices.0.finish_reason").String())
	assert.Equal(t, int64(5), gjson.GetBytes(out, "usage.total_tokens").Int())
}

func TestOpenAI_StreamSynthesizesIDWhenAbsent(t *testing.T) {
	stream := newOpenAIStream(ProviderOpenAI, finalityFinishReason)
	_, err := stream.ProcessChunk([]byte(`{"choices":[{"index":0,"delta":{"content":"x"},"finish_reason":"stop"}]}`))
	require.NoError(t, err)

	out, err := stream.ToProviderResponse()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gjson.GetBytes(out, "id").String(), "chatcmpl-"))
}
