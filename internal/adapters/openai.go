package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lotbones1-code/llmbridge/internal/transform"
)

// The OpenAI chat-completions wire is shared by three providers: OpenAI
// itself, vLLM, and xAI. The triple below is parameterized by provider tag
// and stream-finality rule; vllm.go and xai.go only bind those parameters.

// streamFinality selects how an OpenAI-wire stream signals completion.
type streamFinality int

const (
	// finalityFinishReason: complete once a choice carries a finish_reason
	// (OpenAI, xAI).
	finalityFinishReason streamFinality = iota

	// finalityTrailingUsage: complete only on the trailing usage-bearing
	// chunk that carries no choices (vLLM always appends one).
	finalityTrailingUsage
)

// =============================================================================
// REQUEST
// =============================================================================

// openaiRequest adapts an OpenAI-wire chat-completions request.
// Wire shape: messages[] with role:"tool" carrying tool_call_id, assistant
// tool_calls[] with string-encoded function arguments, tools[] with
// {type:"function", function:{...}}.
type openaiRequest struct {
	requestCore
}

func newOpenAIRequest(provider Provider, body []byte, opts RequestOptions) (*openaiRequest, error) {
	core, err := newRequestCore(provider, body, opts)
	if err != nil {
		return nil, err
	}
	return &openaiRequest{requestCore: core}, nil
}

func (r *openaiRequest) Model() string {
	return r.effectiveModel("model")
}

func (r *openaiRequest) IsStreaming() bool {
	if r.opts.Streaming != nil {
		return *r.opts.Streaming
	}
	return gjson.GetBytes(r.body, "stream").Bool()
}

func (r *openaiRequest) Messages() []Message {
	var msgs []Message
	gjson.GetBytes(r.body, "messages").ForEach(func(_, msg gjson.Result) bool {
		m := Message{
			Role:       Role(msg.Get("role").String()),
			Content:    flattenOpenAIContent(msg.Get("content")),
			ToolCallID: msg.Get("tool_call_id").String(),
		}
		msg.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
			m.ToolCalls = append(m.ToolCalls, ToolCall{
				ID:        tc.Get("id").String(),
				Name:      tc.Get("function.name").String(),
				Arguments: parseArguments(tc.Get("function.arguments").String()),
			})
			return true
		})
		msgs = append(msgs, m)
		return true
	})
	return msgs
}

func (r *openaiRequest) ToolResults() []ToolResult {
	names := openAIToolNames(r.body)
	var results []ToolResult
	gjson.GetBytes(r.body, "messages").ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() != string(RoleTool) {
			return true
		}
		id := msg.Get("tool_call_id").String()
		results = append(results, ToolResult{
			ID:      id,
			Name:    names[id],
			Content: decodeContentValue(msg.Get("content")),
		})
		return true
	})
	return results
}

func (r *openaiRequest) Tools() []McpToolDefinition {
	var tools []McpToolDefinition
	gjson.GetBytes(r.body, "tools").ForEach(func(_, tool gjson.Result) bool {
		fn := tool.Get("function")
		if !fn.Exists() {
			return true
		}
		tools = append(tools, McpToolDefinition{
			Name:        fn.Get("name").String(),
			Description: fn.Get("description").String(),
			InputSchema: decodeObject(fn.Get("parameters")),
		})
		return true
	})
	return tools
}

func (r *openaiRequest) HasTools() bool {
	return gjson.GetBytes(r.body, "tools.#").Int() > 0
}

func (r *openaiRequest) ApplyToonCompression(ctx context.Context, model string) (*transform.ToonResult, error) {
	return r.applyToon(ctx, model, r.ToolResults())
}

// ToProviderRequest materializes the upstream body: model override, staged
// tool-result rewrites, and the per-block image transform on array-shaped
// tool-result content. Pure over (original, patch).
func (r *openaiRequest) ToProviderRequest() ([]byte, error) {
	r.beginMaterialize()
	out := r.body
	var err error

	if r.modelOverride != "" {
		if out, err = sjson.SetBytes(out, "model", r.modelOverride); err != nil {
			return nil, fmt.Errorf("failed to stage model override: %w", err)
		}
	}

	model := r.Model()
	msgs := gjson.GetBytes(r.body, "messages").Array()
	for i, msg := range msgs {
		if msg.Get("role").String() != string(RoleTool) {
			continue
		}
		path := fmt.Sprintf("messages.%d.content", i)

		if replacement, ok := r.stagedUpdate(msg.Get("tool_call_id").String()); ok {
			if out, err = sjson.SetBytes(out, path, replacement); err != nil {
				return nil, fmt.Errorf("failed to apply tool result update: %w", err)
			}
			continue
		}

		content := msg.Get("content")
		if !content.IsArray() {
			continue
		}
		res := transform.Apply(decodeOpenAIBlocks(content), r.transformOptions(model))
		r.noteTransform(res)
		if !res.Changed() {
			continue
		}
		encoded, encErr := encodeOpenAIBlocks(res.Blocks)
		if encErr != nil {
			return nil, encErr
		}
		if out, err = sjson.SetRawBytes(out, path, encoded); err != nil {
			return nil, fmt.Errorf("failed to apply content transform: %w", err)
		}
	}
	return out, nil
}

// openAIToolNames maps tool call IDs to names from assistant tool_calls.
func openAIToolNames(body []byte) map[string]string {
	names := make(map[string]string)
	gjson.GetBytes(body, "messages").ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() != string(RoleAssistant) {
			return true
		}
		msg.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
			if id := tc.Get("id").String(); id != "" {
				names[id] = tc.Get("function.name").String()
			}
			return true
		})
		return true
	})
	return names
}

// flattenOpenAIContent joins string-or-parts message content into plain text.
func flattenOpenAIContent(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if !content.IsArray() {
		return ""
	}
	var sb strings.Builder
	content.ForEach(func(_, part gjson.Result) bool {
		if part.Get("type").String() == "text" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(part.Get("text").String())
		}
		return true
	})
	return sb.String()
}

// decodeOpenAIBlocks converts an OpenAI tool-message content array into
// common blocks. Images arrive as data URLs inside image_url parts.
func decodeOpenAIBlocks(content gjson.Result) []transform.Block {
	var blocks []transform.Block
	content.ForEach(func(_, part gjson.Result) bool {
		switch part.Get("type").String() {
		case "text":
			blocks = append(blocks, transform.Block{Type: transform.BlockText, Text: part.Get("text").String()})
		case "image_url":
			url := part.Get("image_url.url").String()
			if mime, data, ok := splitDataURL(url); ok {
				blocks = append(blocks, transform.Block{Type: transform.BlockImage, MimeType: mime, Data: data})
			} else {
				// Remote URL: the size gate applies to the URL itself.
				blocks = append(blocks, transform.Block{Type: transform.BlockImage, Data: url})
			}
		default:
			blocks = append(blocks, transform.Block{Type: transform.BlockOpaque, Raw: part.Raw})
		}
		return true
	})
	return blocks
}

// encodeOpenAIBlocks re-encodes common blocks into the OpenAI parts array.
func encodeOpenAIBlocks(blocks []transform.Block) ([]byte, error) {
	parts := make([]json.RawMessage, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case transform.BlockText:
			part, err := json.Marshal(map[string]any{"type": "text", "text": b.Text})
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case transform.BlockImage:
			url := b.Data
			if b.MimeType != "" {
				url = "data:" + b.MimeType + ";base64," + b.Data
			}
			part, err := json.Marshal(map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": url},
			})
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case transform.BlockOpaque:
			parts = append(parts, json.RawMessage(b.Raw))
		}
	}
	return json.Marshal(parts)
}

// splitDataURL splits "data:<mime>;base64,<payload>" into its parts.
func splitDataURL(url string) (mime, data string, ok bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", "", false
	}
	rest := strings.TrimPrefix(url, "data:")
	idx := strings.Index(rest, ";base64,")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+len(";base64,"):], true
}

// =============================================================================
// RESPONSE
// =============================================================================

// openaiResponse wraps the first choice of an OpenAI-wire non-streaming
// response.
type openaiResponse struct {
	provider Provider
	body     []byte
}

func newOpenAIResponse(provider Provider, body []byte) (*openaiResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: response body is not valid JSON", provider)
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	return &openaiResponse{provider: provider, body: buf}, nil
}

func (r *openaiResponse) Provider() Provider { return r.provider }

func (r *openaiResponse) ID() string    { return gjson.GetBytes(r.body, "id").String() }
func (r *openaiResponse) Model() string { return gjson.GetBytes(r.body, "model").String() }

func (r *openaiResponse) Text() string {
	return gjson.GetBytes(r.body, "choices.0.message.content").String()
}

func (r *openaiResponse) ToolCalls() []ToolCall {
	var calls []ToolCall
	gjson.GetBytes(r.body, "choices.0.message.tool_calls").ForEach(func(_, tc gjson.Result) bool {
		calls = append(calls, ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: parseArguments(tc.Get("function.arguments").String()),
		})
		return true
	})
	return calls
}

func (r *openaiResponse) HasToolCalls() bool {
	return gjson.GetBytes(r.body, "choices.0.message.tool_calls.#").Int() > 0
}

func (r *openaiResponse) Usage() Usage {
	return Usage{
		InputTokens:  int(gjson.GetBytes(r.body, "usage.prompt_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(r.body, "usage.completion_tokens").Int()),
	}
}

// ToRefusalResponse keeps id/model/usage, swaps the assistant text, drops
// tool calls, and normalizes the finish reason. OpenAI's wire has a native
// refusal field, so the refusal reason rides there.
func (r *openaiResponse) ToRefusalResponse(refusalMessage, contentMessage string) ([]byte, error) {
	out := r.body
	var err error
	if out, err = sjson.SetBytes(out, "choices.0.message.content", contentMessage); err != nil {
		return nil, err
	}
	if out, err = sjson.DeleteBytes(out, "choices.0.message.tool_calls"); err != nil {
		return nil, err
	}
	if refusalMessage != "" {
		if out, err = sjson.SetBytes(out, "choices.0.message.refusal", refusalMessage); err != nil {
			return nil, err
		}
	}
	if out, err = sjson.SetBytes(out, "choices.0.finish_reason", "stop"); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// STREAM
// =============================================================================

// openaiStream accumulates an OpenAI-wire SSE stream. Tool-call argument
// fragments are keyed by the delta's positional index and concatenated in
// arrival order.
type openaiStream struct {
	provider Provider
	finality streamFinality
	state    *StreamState
	complete bool
}

func newOpenAIStream(provider Provider, finality streamFinality) *openaiStream {
	return &openaiStream{provider: provider, finality: finality, state: NewStreamState()}
}

func (s *openaiStream) Provider() Provider { return s.provider }

func (s *openaiStream) ProcessChunk(chunk []byte) ([]byte, error) {
	s.state.ObserveChunk(chunk)
	event := gjson.ParseBytes(chunk)

	if s.state.ResponseID == "" {
		s.state.ResponseID = event.Get("id").String()
	}
	if s.state.Model == "" {
		s.state.Model = event.Get("model").String()
	}

	usage := event.Get("usage")
	if usage.IsObject() {
		s.state.MergeUsage(
			int(usage.Get("prompt_tokens").Int()),
			int(usage.Get("completion_tokens").Int()),
		)
	}

	choice := event.Get("choices.0")
	if choice.Exists() {
		if delta := choice.Get("delta.content"); delta.Type == gjson.String {
			s.state.AppendText(delta.String())
		}
		choice.Get("delta.tool_calls").ForEach(func(_, tc gjson.Result) bool {
			slot := s.state.Slot(int(tc.Get("index").Int()))
			if id := tc.Get("id").String(); id != "" {
				slot.ID = id
			}
			if name := tc.Get("function.name").String(); name != "" {
				slot.Name = name
			}
			if args := tc.Get("function.arguments"); args.Type == gjson.String {
				slot.AppendArguments(args.String())
			}
			return true
		})
		if fr := choice.Get("finish_reason"); fr.Type == gjson.String {
			s.state.StopReason = fr.String()
			if s.finality == finalityFinishReason {
				s.complete = true
			}
		}
	}

	// vLLM signals completion only through its trailing usage chunk, which
	// carries no choices.
	if s.finality == finalityTrailingUsage && usage.IsObject() && event.Get("choices.#").Int() == 0 {
		s.complete = true
	}

	return sseDataFrame(chunk), nil
}

func (s *openaiStream) IsComplete() bool    { return s.complete }
func (s *openaiStream) State() *StreamState { return s.state }
func (s *openaiStream) RawEvents() [][]byte { return s.state.RawEvents() }

// ToProviderResponse synthesizes a chat.completion response from the final
// accumulator state for post-hoc consumers.
func (s *openaiStream) ToProviderResponse() ([]byte, error) {
	type fnCall struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	}
	type toolCall struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Function fnCall `json:"function"`
	}
	type message struct {
		Role      string     `json:"role"`
		Content   *string    `json:"content"`
		ToolCalls []toolCall `json:"tool_calls,omitempty"`
	}
	type choice struct {
		Index        int     `json:"index"`
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	}
	type usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	}
	type completion struct {
		ID      string   `json:"id"`
		Object  string   `json:"object"`
		Created int64    `json:"created"`
		Model   string   `json:"model"`
		Choices []choice `json:"choices"`
		Usage   usage    `json:"usage"`
	}

	msg := message{Role: string(RoleAssistant)}
	if text := s.state.Text(); text != "" {
		msg.Content = &text
	}
	for _, c := range s.state.ToolCalls() {
		msg.ToolCalls = append(msg.ToolCalls, toolCall{
			ID:       c.ID,
			Type:     "function",
			Function: fnCall{Name: c.Name, Arguments: c.Arguments()},
		})
	}

	stop := s.state.StopReason
	if stop == "" {
		stop = "stop"
	}
	id := s.state.ResponseID
	if id == "" {
		id = "chatcmpl-" + uuid.NewString()
	}
	u := s.state.UsageOrZero()

	return json.Marshal(completion{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   s.state.Model,
		Choices: []choice{{Message: msg, FinishReason: stop}},
		Usage: usage{
			PromptTokens:     u.InputTokens,
			CompletionTokens: u.OutputTokens,
			TotalTokens:      u.InputTokens + u.OutputTokens,
		},
	})
}

// sseDataFrame re-serializes one event payload as an SSE data frame.
func sseDataFrame(chunk []byte) []byte {
	frame := make([]byte, 0, len(chunk)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, chunk...)
	frame = append(frame, "\n\n"...)
	return frame
}

var (
	_ RequestAdapter  = (*openaiRequest)(nil)
	_ ResponseAdapter = (*openaiResponse)(nil)
	_ StreamAdapter   = (*openaiStream)(nil)
)
