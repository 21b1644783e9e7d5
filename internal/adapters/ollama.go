package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lotbones1-code/llmbridge/internal/transform"
)

// Ollama's native /api/chat wire looks like a simplified OpenAI shape with
// three differences that matter here:
//
//   - tool calls and tool results carry no IDs; the adapter synthesizes
//     positional "ollama_call_k" IDs and correlates the k-th tool-role
//     message with the k-th assistant tool call
//   - tool-call arguments are objects on the wire, not fragment strings
//   - streaming is newline-delimited JSON, terminated by a "done": true
//     line carrying prompt_eval_count/eval_count usage
//
// Requests stream by default; an absent "stream" field means true.

const ollamaCallIDPrefix = "ollama_call_"

// =============================================================================
// REQUEST
// =============================================================================

type ollamaRequest struct {
	requestCore
}

func newOllamaRequest(body []byte, opts RequestOptions) (*ollamaRequest, error) {
	core, err := newRequestCore(ProviderOllama, body, opts)
	if err != nil {
		return nil, err
	}
	return &ollamaRequest{requestCore: core}, nil
}

func (r *ollamaRequest) Model() string {
	return r.effectiveModel("model")
}

func (r *ollamaRequest) IsStreaming() bool {
	if r.opts.Streaming != nil {
		return *r.opts.Streaming
	}
	if stream := gjson.GetBytes(r.body, "stream"); stream.Exists() {
		return stream.Bool()
	}
	return true
}

func (r *ollamaRequest) Messages() []Message {
	var msgs []Message
	callOrdinal := 0
	resultOrdinal := 0
	gjson.GetBytes(r.body, "messages").ForEach(func(_, msg gjson.Result) bool {
		role := Role(msg.Get("role").String())
		m := Message{Role: role, Content: msg.Get("content").String()}
		if role == RoleTool {
			m.ToolCallID = fmt.Sprintf("%s%d", ollamaCallIDPrefix, resultOrdinal)
			resultOrdinal++
		}
		msg.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
			m.ToolCalls = append(m.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("%s%d", ollamaCallIDPrefix, callOrdinal),
				Name:      tc.Get("function.name").String(),
				Arguments: decodeObject(tc.Get("function.arguments")),
			})
			callOrdinal++
			return true
		})
		msgs = append(msgs, m)
		return true
	})
	return msgs
}

func (r *ollamaRequest) ToolResults() []ToolResult {
	names := ollamaToolNames(r.body)
	var results []ToolResult
	ordinal := 0
	gjson.GetBytes(r.body, "messages").ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() != string(RoleTool) {
			return true
		}
		id := fmt.Sprintf("%s%d", ollamaCallIDPrefix, ordinal)
		name := msg.Get("tool_name").String()
		if name == "" {
			name = names[ordinal]
		}
		results = append(results, ToolResult{
			ID:      id,
			Name:    name,
			Content: decodeContentValue(msg.Get("content")),
		})
		ordinal++
		return true
	})
	return results
}

func (r *ollamaRequest) Tools() []McpToolDefinition {
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

func (r *ollamaRequest) HasTools() bool {
	return gjson.GetBytes(r.body, "tools.#").Int() > 0
}

func (r *ollamaRequest) ApplyToonCompression(ctx context.Context, model string) (*transform.ToonResult, error) {
	return r.applyToon(ctx, model, r.ToolResults())
}

// ToProviderRequest rewrites tool messages by positional ID and runs the
// image transform over their images array (Ollama carries images out-of-band
// from the text content).
func (r *ollamaRequest) ToProviderRequest() ([]byte, error) {
	r.beginMaterialize()
	out := r.body
	var err error

	if r.modelOverride != "" {
		if out, err = sjson.SetBytes(out, "model", r.modelOverride); err != nil {
			return nil, fmt.Errorf("failed to stage model override: %w", err)
		}
	}

	model := r.Model()
	ordinal := 0
	for i, msg := range gjson.GetBytes(r.body, "messages").Array() {
		if msg.Get("role").String() != string(RoleTool) {
			continue
		}
		id := fmt.Sprintf("%s%d", ollamaCallIDPrefix, ordinal)
		ordinal++

		if replacement, ok := r.stagedUpdate(id); ok {
			if out, err = sjson.SetBytes(out, fmt.Sprintf("messages.%d.content", i), replacement); err != nil {
				return nil, fmt.Errorf("failed to apply tool result update: %w", err)
			}
			continue
		}

		images := msg.Get("images")
		if !images.IsArray() || len(images.Array()) == 0 {
			continue
		}
		blocks := []transform.Block{{Type: transform.BlockText, Text: msg.Get("content").String()}}
		images.ForEach(func(_, img gjson.Result) bool {
			blocks = append(blocks, transform.Block{Type: transform.BlockImage, Data: img.String()})
			return true
		})
		res := transform.Apply(blocks, r.transformOptions(model))
		r.noteTransform(res)
		if !res.Changed() {
			continue
		}

		var texts []string
		var kept []string
		for _, b := range res.Blocks {
			switch b.Type {
			case transform.BlockText:
				if b.Text != "" {
					texts = append(texts, b.Text)
				}
			case transform.BlockImage:
				kept = append(kept, b.Data)
			}
		}
		if out, err = sjson.SetBytes(out, fmt.Sprintf("messages.%d.content", i), strings.Join(texts, "\n")); err != nil {
			return nil, fmt.Errorf("failed to apply content transform: %w", err)
		}
		imagesPath := fmt.Sprintf("messages.%d.images", i)
		if len(kept) == 0 {
			if out, err = sjson.DeleteBytes(out, imagesPath); err != nil {
				return nil, fmt.Errorf("failed to apply content transform: %w", err)
			}
		} else if out, err = sjson.SetBytes(out, imagesPath, kept); err != nil {
			return nil, fmt.Errorf("failed to apply content transform: %w", err)
		}
	}
	return out, nil
}

// ollamaToolNames maps tool-result ordinals to names via the matching
// assistant tool-call ordinals.
func ollamaToolNames(body []byte) map[int]string {
	names := make(map[int]string)
	ordinal := 0
	gjson.GetBytes(body, "messages").ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() != string(RoleAssistant) {
			return true
		}
		msg.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
			names[ordinal] = tc.Get("function.name").String()
			ordinal++
			return true
		})
		return true
	})
	return names
}

// =============================================================================
// RESPONSE
// =============================================================================

type ollamaResponse struct {
	body []byte
}

func newOllamaResponse(body []byte) (*ollamaResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("ollama: response body is not valid JSON")
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	return &ollamaResponse{body: buf}, nil
}

func (r *ollamaResponse) Provider() Provider { return ProviderOllama }

// ID returns empty: Ollama responses carry no identifier.
func (r *ollamaResponse) ID() string    { return "" }
func (r *ollamaResponse) Model() string { return gjson.GetBytes(r.body, "model").String() }

func (r *ollamaResponse) Text() string {
	return gjson.GetBytes(r.body, "message.content").String()
}

func (r *ollamaResponse) ToolCalls() []ToolCall {
	var calls []ToolCall
	gjson.GetBytes(r.body, "message.tool_calls").ForEach(func(_, tc gjson.Result) bool {
		calls = append(calls, ToolCall{
			ID:        fmt.Sprintf("%s%d", ollamaCallIDPrefix, len(calls)),
			Name:      tc.Get("function.name").String(),
			Arguments: decodeObject(tc.Get("function.arguments")),
		})
		return true
	})
	return calls
}

func (r *ollamaResponse) HasToolCalls() bool {
	return gjson.GetBytes(r.body, "message.tool_calls.#").Int() > 0
}

// Usage reads Ollama's native eval counters.
func (r *ollamaResponse) Usage() Usage {
	return Usage{
		InputTokens:  int(gjson.GetBytes(r.body, "prompt_eval_count").Int()),
		OutputTokens: int(gjson.GetBytes(r.body, "eval_count").Int()),
	}
}

func (r *ollamaResponse) ToRefusalResponse(refusalMessage, contentMessage string) ([]byte, error) {
	out := r.body
	var err error
	if out, err = sjson.SetBytes(out, "message.content", contentMessage); err != nil {
		return nil, err
	}
	if out, err = sjson.DeleteBytes(out, "message.tool_calls"); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "done", true); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "done_reason", "stop"); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// STREAM
// =============================================================================

// ollamaStream accumulates NDJSON chunks. Tool calls arrive whole, one slot
// per arrival; the object arguments are recorded as a single fragment.
type ollamaStream struct {
	state     *StreamState
	nextIndex int
	complete  bool
}

func newOllamaStream() *ollamaStream {
	return &ollamaStream{state: NewStreamState()}
}

func (s *ollamaStream) Provider() Provider { return ProviderOllama }

func (s *ollamaStream) ProcessChunk(chunk []byte) ([]byte, error) {
	s.state.ObserveChunk(chunk)
	event := gjson.ParseBytes(chunk)

	if s.state.Model == "" {
		s.state.Model = event.Get("model").String()
	}

	if content := event.Get("message.content"); content.Type == gjson.String {
		s.state.AppendText(content.String())
	}
	event.Get("message.tool_calls").ForEach(func(_, tc gjson.Result) bool {
		slot := s.state.Slot(s.nextIndex)
		slot.ID = fmt.Sprintf("%s%d", ollamaCallIDPrefix, s.nextIndex)
		slot.Name = tc.Get("function.name").String()
		slot.AppendArguments(tc.Get("function.arguments").Raw)
		s.nextIndex++
		return true
	})

	// The terminal line carries done:true plus the eval counters.
	if event.Get("done").Bool() {
		s.complete = true
		if dr := event.Get("done_reason"); dr.Type == gjson.String {
			s.state.StopReason = dr.String()
		}
		s.state.MergeUsage(
			int(event.Get("prompt_eval_count").Int()),
			int(event.Get("eval_count").Int()),
		)
	}

	return ndjsonFrame(chunk), nil
}

func (s *ollamaStream) IsComplete() bool    { return s.complete }
func (s *ollamaStream) State() *StreamState { return s.state }
func (s *ollamaStream) RawEvents() [][]byte { return s.state.RawEvents() }

func (s *ollamaStream) ToProviderResponse() ([]byte, error) {
	message := map[string]any{
		"role":    string(RoleAssistant),
		"content": s.state.Text(),
	}
	if calls := s.state.ToolCalls(); len(calls) > 0 {
		encoded := make([]map[string]any, 0, len(calls))
		for _, c := range calls {
			encoded = append(encoded, map[string]any{
				"function": map[string]any{
					"name":      c.Name,
					"arguments": parseArguments(c.Arguments()),
				},
			})
		}
		message["tool_calls"] = encoded
	}

	stop := s.state.StopReason
	if stop == "" {
		stop = "stop"
	}
	u := s.state.UsageOrZero()

	return json.Marshal(map[string]any{
		"model":             s.state.Model,
		"created_at":        time.Now().UTC().Format(time.RFC3339Nano),
		"message":           message,
		"done":              true,
		"done_reason":       stop,
		"prompt_eval_count": u.InputTokens,
		"eval_count":        u.OutputTokens,
	})
}

// ndjsonFrame re-serializes one payload as an NDJSON line.
func ndjsonFrame(chunk []byte) []byte {
	frame := make([]byte, 0, len(chunk)+1)
	frame = append(frame, chunk...)
	frame = append(frame, '\n')
	return frame
}

var (
	_ RequestAdapter  = (*ollamaRequest)(nil)
	_ ResponseAdapter = (*ollamaResponse)(nil)
	_ StreamAdapter   = (*ollamaStream)(nil)
)
