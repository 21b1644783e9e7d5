package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lotbones1-code/llmbridge/internal/transform"
)

// Anthropic wire shape: messages[] whose content is a string or an array of
// typed blocks. Tool calls are assistant tool_use blocks with object inputs;
// tool results are tool_result blocks inside user messages, correlated by
// tool_use_id. Streaming uses named SSE events with the event type repeated
// in the payload.

// =============================================================================
// REQUEST
// =============================================================================

type anthropicRequest struct {
	requestCore
}

func newAnthropicRequest(body []byte, opts RequestOptions) (*anthropicRequest, error) {
	core, err := newRequestCore(ProviderAnthropic, body, opts)
	if err != nil {
		return nil, err
	}
	return &anthropicRequest{requestCore: core}, nil
}

func (r *anthropicRequest) Model() string {
	return r.effectiveModel("model")
}

func (r *anthropicRequest) IsStreaming() bool {
	if r.opts.Streaming != nil {
		return *r.opts.Streaming
	}
	return gjson.GetBytes(r.body, "stream").Bool()
}

// Messages projects the Anthropic shape onto the common model. Each
// tool_result block becomes its own tool-role message so the one-result-per-
// message invariant holds; a top-level system prompt becomes a system
// message.
func (r *anthropicRequest) Messages() []Message {
	var msgs []Message

	if system := gjson.GetBytes(r.body, "system"); system.Exists() {
		msgs = append(msgs, Message{Role: RoleSystem, Content: flattenAnthropicContent(system)})
	}

	gjson.GetBytes(r.body, "messages").ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		content := msg.Get("content")

		if role == "assistant" {
			m := Message{Role: RoleAssistant, Content: flattenAnthropicContent(content)}
			content.ForEach(func(_, block gjson.Result) bool {
				if block.Get("type").String() == "tool_use" {
					m.ToolCalls = append(m.ToolCalls, ToolCall{
						ID:        block.Get("id").String(),
						Name:      block.Get("name").String(),
						Arguments: decodeObject(block.Get("input")),
					})
				}
				return true
			})
			msgs = append(msgs, m)
			return true
		}

		// User messages may interleave plain text with tool_result blocks.
		var userText strings.Builder
		content.ForEach(func(_, block gjson.Result) bool {
			switch block.Get("type").String() {
			case "tool_result":
				msgs = append(msgs, Message{
					Role:       RoleTool,
					Content:    flattenAnthropicContent(block.Get("content")),
					ToolCallID: block.Get("tool_use_id").String(),
				})
			case "text":
				if userText.Len() > 0 {
					userText.WriteString("\n")
				}
				userText.WriteString(block.Get("text").String())
			}
			return true
		})
		if content.Type == gjson.String {
			userText.WriteString(content.String())
		}
		if userText.Len() > 0 {
			msgs = append(msgs, Message{Role: RoleUser, Content: userText.String()})
		}
		return true
	})
	return msgs
}

func (r *anthropicRequest) ToolResults() []ToolResult {
	names := anthropicToolNames(r.body)
	var results []ToolResult
	gjson.GetBytes(r.body, "messages").ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() != "user" {
			return true
		}
		msg.Get("content").ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() != "tool_result" {
				return true
			}
			id := block.Get("tool_use_id").String()
			results = append(results, ToolResult{
				ID:      id,
				Name:    names[id],
				Content: decodeContentValue(block.Get("content")),
				IsError: block.Get("is_error").Bool(),
			})
			return true
		})
		return true
	})
	return results
}

func (r *anthropicRequest) Tools() []McpToolDefinition {
	var tools []McpToolDefinition
	gjson.GetBytes(r.body, "tools").ForEach(func(_, tool gjson.Result) bool {
		tools = append(tools, McpToolDefinition{
			Name:        tool.Get("name").String(),
			Description: tool.Get("description").String(),
			InputSchema: decodeObject(tool.Get("input_schema")),
		})
		return true
	})
	return tools
}

func (r *anthropicRequest) HasTools() bool {
	return gjson.GetBytes(r.body, "tools.#").Int() > 0
}

func (r *anthropicRequest) ApplyToonCompression(ctx context.Context, model string) (*transform.ToonResult, error) {
	return r.applyToon(ctx, model, r.ToolResults())
}

func (r *anthropicRequest) ToProviderRequest() ([]byte, error) {
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
		if msg.Get("role").String() != "user" {
			continue
		}
		blocks := msg.Get("content")
		if !blocks.IsArray() {
			continue
		}
		for j, block := range blocks.Array() {
			if block.Get("type").String() != "tool_result" {
				continue
			}
			path := fmt.Sprintf("messages.%d.content.%d.content", i, j)

			if replacement, ok := r.stagedUpdate(block.Get("tool_use_id").String()); ok {
				if out, err = sjson.SetBytes(out, path, replacement); err != nil {
					return nil, fmt.Errorf("failed to apply tool result update: %w", err)
				}
				continue
			}

			inner := block.Get("content")
			if !inner.IsArray() {
				continue
			}
			res := transform.Apply(decodeAnthropicBlocks(inner), r.transformOptions(model))
			r.noteTransform(res)
			if !res.Changed() {
				continue
			}
			encoded, encErr := encodeAnthropicBlocks(res.Blocks)
			if encErr != nil {
				return nil, encErr
			}
			if out, err = sjson.SetRawBytes(out, path, encoded); err != nil {
				return nil, fmt.Errorf("failed to apply content transform: %w", err)
			}
		}
	}
	return out, nil
}

func anthropicToolNames(body []byte) map[string]string {
	names := make(map[string]string)
	gjson.GetBytes(body, "messages").ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() != "assistant" {
			return true
		}
		msg.Get("content").ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "tool_use" {
				if id := block.Get("id").String(); id != "" {
					names[id] = block.Get("name").String()
				}
			}
			return true
		})
		return true
	})
	return names
}

// flattenAnthropicContent joins string-or-blocks content into plain text.
func flattenAnthropicContent(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if !content.IsArray() {
		return ""
	}
	var sb strings.Builder
	content.ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(block.Get("text").String())
		}
		return true
	})
	return sb.String()
}

// decodeAnthropicBlocks converts a tool_result content array into common
// blocks. Images use {type:"image", source:{type:"base64", media_type, data}}.
func decodeAnthropicBlocks(content gjson.Result) []transform.Block {
	var blocks []transform.Block
	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			blocks = append(blocks, transform.Block{Type: transform.BlockText, Text: block.Get("text").String()})
		case "image":
			blocks = append(blocks, transform.Block{
				Type:     transform.BlockImage,
				MimeType: block.Get("source.media_type").String(),
				Data:     block.Get("source.data").String(),
			})
		default:
			blocks = append(blocks, transform.Block{Type: transform.BlockOpaque, Raw: block.Raw})
		}
		return true
	})
	return blocks
}

func encodeAnthropicBlocks(blocks []transform.Block) ([]byte, error) {
	out := make([]json.RawMessage, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case transform.BlockText:
			part, err := json.Marshal(map[string]any{"type": "text", "text": b.Text})
			if err != nil {
				return nil, err
			}
			out = append(out, part)
		case transform.BlockImage:
			part, err := json.Marshal(map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": b.MimeType,
					"data":       b.Data,
				},
			})
			if err != nil {
				return nil, err
			}
			out = append(out, part)
		case transform.BlockOpaque:
			out = append(out, json.RawMessage(b.Raw))
		}
	}
	return json.Marshal(out)
}

// =============================================================================
// RESPONSE
// =============================================================================

type anthropicResponse struct {
	body []byte
}

func newAnthropicResponse(body []byte) (*anthropicResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("anthropic: response body is not valid JSON")
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	return &anthropicResponse{body: buf}, nil
}

func (r *anthropicResponse) Provider() Provider { return ProviderAnthropic }

func (r *anthropicResponse) ID() string    { return gjson.GetBytes(r.body, "id").String() }
func (r *anthropicResponse) Model() string { return gjson.GetBytes(r.body, "model").String() }

func (r *anthropicResponse) Text() string {
	return flattenAnthropicContent(gjson.GetBytes(r.body, "content"))
}

func (r *anthropicResponse) ToolCalls() []ToolCall {
	var calls []ToolCall
	gjson.GetBytes(r.body, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "tool_use" {
			calls = append(calls, ToolCall{
				ID:        block.Get("id").String(),
				Name:      block.Get("name").String(),
				Arguments: decodeObject(block.Get("input")),
			})
		}
		return true
	})
	return calls
}

func (r *anthropicResponse) HasToolCalls() bool {
	return len(r.ToolCalls()) > 0
}

func (r *anthropicResponse) Usage() Usage {
	return Usage{
		InputTokens:  int(gjson.GetBytes(r.body, "usage.input_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(r.body, "usage.output_tokens").Int()),
	}
}

// ToRefusalResponse rebuilds the content as a single text block and
// normalizes stop_reason to end_turn, Anthropic's "stop" equivalent.
func (r *anthropicResponse) ToRefusalResponse(refusalMessage, contentMessage string) ([]byte, error) {
	blocks, err := json.Marshal([]map[string]any{{"type": "text", "text": contentMessage}})
	if err != nil {
		return nil, err
	}
	out := r.body
	if out, err = sjson.SetRawBytes(out, "content", blocks); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "stop_reason", "end_turn"); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// STREAM
// =============================================================================

// anthropicStream accumulates the named-event SSE stream: message_start,
// content_block_start/delta/stop, message_delta, message_stop. Tool-call
// argument fragments arrive as input_json_delta partial_json strings keyed by
// the top-level block index.
type anthropicStream struct {
	state *StreamState
	// text block indexes do not hold tool calls; tool slots are keyed by the
	// wire's block index directly.
	complete bool
}

func newAnthropicStream() *anthropicStream {
	return &anthropicStream{state: NewStreamState()}
}

func (s *anthropicStream) Provider() Provider { return ProviderAnthropic }

func (s *anthropicStream) ProcessChunk(chunk []byte) ([]byte, error) {
	s.state.ObserveChunk(chunk)
	event := gjson.ParseBytes(chunk)
	eventType := event.Get("type").String()

	switch eventType {
	case "message_start":
		msg := event.Get("message")
		if s.state.ResponseID == "" {
			s.state.ResponseID = msg.Get("id").String()
		}
		if s.state.Model == "" {
			s.state.Model = msg.Get("model").String()
		}
		if usage := msg.Get("usage"); usage.IsObject() {
			s.state.MergeUsage(int(usage.Get("input_tokens").Int()), int(usage.Get("output_tokens").Int()))
		}

	case "content_block_start":
		block := event.Get("content_block")
		if block.Get("type").String() == "tool_use" {
			slot := s.state.Slot(int(event.Get("index").Int()))
			slot.ID = block.Get("id").String()
			slot.Name = block.Get("name").String()
		}

	case "content_block_delta":
		delta := event.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			s.state.AppendText(delta.Get("text").String())
		case "input_json_delta":
			s.state.Slot(int(event.Get("index").Int())).AppendArguments(delta.Get("partial_json").String())
		}

	case "message_delta":
		if sr := event.Get("delta.stop_reason"); sr.Type == gjson.String {
			s.state.StopReason = sr.String()
		}
		if usage := event.Get("usage"); usage.IsObject() {
			s.state.MergeUsage(int(usage.Get("input_tokens").Int()), int(usage.Get("output_tokens").Int()))
		}

	case "message_stop":
		// Anthropic's explicit terminal event. Only this makes the stream
		// final; a dropped connection before it is treated as incomplete.
		s.complete = true
	}

	return anthropicSSEFrame(eventType, chunk), nil
}

func (s *anthropicStream) IsComplete() bool    { return s.complete }
func (s *anthropicStream) State() *StreamState { return s.state }
func (s *anthropicStream) RawEvents() [][]byte { return s.state.RawEvents() }

// ToProviderResponse synthesizes a non-streaming Messages response from the
// accumulator: text block first, then assembled tool_use blocks.
func (s *anthropicStream) ToProviderResponse() ([]byte, error) {
	var content []map[string]any
	if text := s.state.Text(); text != "" {
		content = append(content, map[string]any{"type": "text", "text": text})
	}
	for _, c := range s.state.ToolCalls() {
		content = append(content, map[string]any{
			"type":  "tool_use",
			"id":    c.ID,
			"name":  c.Name,
			"input": parseArguments(c.Arguments()),
		})
	}
	if content == nil {
		content = []map[string]any{}
	}

	stop := s.state.StopReason
	if stop == "" {
		stop = "end_turn"
	}
	id := s.state.ResponseID
	if id == "" {
		id = "msg_" + uuid.NewString()
	}
	u := s.state.UsageOrZero()

	return json.Marshal(map[string]any{
		"id":          id,
		"type":        "message",
		"role":        "assistant",
		"model":       s.state.Model,
		"content":     content,
		"stop_reason": stop,
		"usage": map[string]any{
			"input_tokens":  u.InputTokens,
			"output_tokens": u.OutputTokens,
		},
	})
}

// anthropicSSEFrame re-serializes one payload as a named SSE event.
func anthropicSSEFrame(eventType string, chunk []byte) []byte {
	frame := make([]byte, 0, len(chunk)+len(eventType)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, eventType...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, chunk...)
	frame = append(frame, "\n\n"...)
	return frame
}

var (
	_ RequestAdapter  = (*anthropicRequest)(nil)
	_ ResponseAdapter = (*anthropicResponse)(nil)
	_ StreamAdapter   = (*anthropicStream)(nil)
)
