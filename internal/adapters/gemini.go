package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lotbones1-code/llmbridge/internal/transform"
)

// Gemini wire shape: contents[]/parts[] with functionCall and
// functionResponse objects. Three quirks the other vendors don't have:
//
//   - the model rides in the URL path, not the body, so Model() falls back
//     to the URL-supplied RequestOptions.Model
//   - streaming is signaled by the :streamGenerateContent path, so
//     IsStreaming() relies on RequestOptions.Streaming
//   - tool calls carry no IDs; the adapter synthesizes "name-k" where k is
//     the per-name occurrence ordinal, and correlates the k-th
//     functionResponse of a name with the k-th functionCall of that name
//
// Tool arguments arrive as objects, never fragment strings.

// =============================================================================
// REQUEST
// =============================================================================

type geminiRequest struct {
	requestCore
}

func newGeminiRequest(body []byte, opts RequestOptions) (*geminiRequest, error) {
	core, err := newRequestCore(ProviderGemini, body, opts)
	if err != nil {
		return nil, err
	}
	return &geminiRequest{requestCore: core}, nil
}

func (r *geminiRequest) Model() string {
	return r.effectiveModel("")
}

func (r *geminiRequest) IsStreaming() bool {
	if r.opts.Streaming != nil {
		return *r.opts.Streaming
	}
	return false
}

func (r *geminiRequest) Messages() []Message {
	var msgs []Message

	if system := gjson.GetBytes(r.body, "systemInstruction.parts"); system.Exists() {
		msgs = append(msgs, Message{Role: RoleSystem, Content: flattenGeminiParts(system)})
	}

	callIDs := newGeminiIDGenerator()
	respIDs := newGeminiIDGenerator()

	gjson.GetBytes(r.body, "contents").ForEach(func(_, content gjson.Result) bool {
		role := content.Get("role").String()
		parts := content.Get("parts")

		if role == "model" {
			m := Message{Role: RoleAssistant, Content: flattenGeminiParts(parts)}
			parts.ForEach(func(_, part gjson.Result) bool {
				if fc := part.Get("functionCall"); fc.Exists() {
					name := fc.Get("name").String()
					m.ToolCalls = append(m.ToolCalls, ToolCall{
						ID:        callIDs.next(name),
						Name:      name,
						Arguments: decodeObject(fc.Get("args")),
					})
				}
				return true
			})
			msgs = append(msgs, m)
			return true
		}

		var userText strings.Builder
		parts.ForEach(func(_, part gjson.Result) bool {
			if fr := part.Get("functionResponse"); fr.Exists() {
				name := fr.Get("name").String()
				msgs = append(msgs, Message{
					Role:       RoleTool,
					Content:    fr.Get("response").Raw,
					ToolCallID: respIDs.next(name),
				})
				return true
			}
			if text := part.Get("text"); text.Exists() {
				if userText.Len() > 0 {
					userText.WriteString("\n")
				}
				userText.WriteString(text.String())
			}
			return true
		})
		if userText.Len() > 0 {
			msgs = append(msgs, Message{Role: RoleUser, Content: userText.String()})
		}
		return true
	})
	return msgs
}

func (r *geminiRequest) ToolResults() []ToolResult {
	ids := newGeminiIDGenerator()
	var results []ToolResult
	gjson.GetBytes(r.body, "contents").ForEach(func(_, content gjson.Result) bool {
		if content.Get("role").String() == "model" {
			return true
		}
		content.Get("parts").ForEach(func(_, part gjson.Result) bool {
			fr := part.Get("functionResponse")
			if !fr.Exists() {
				return true
			}
			name := fr.Get("name").String()
			results = append(results, ToolResult{
				ID:      ids.next(name),
				Name:    name,
				Content: decodeContentValue(fr.Get("response")),
			})
			return true
		})
		return true
	})
	return results
}

func (r *geminiRequest) Tools() []McpToolDefinition {
	var tools []McpToolDefinition
	gjson.GetBytes(r.body, "tools").ForEach(func(_, tool gjson.Result) bool {
		tool.Get("functionDeclarations").ForEach(func(_, decl gjson.Result) bool {
			tools = append(tools, McpToolDefinition{
				Name:        decl.Get("name").String(),
				Description: decl.Get("description").String(),
				InputSchema: decodeObject(decl.Get("parameters")),
			})
			return true
		})
		return true
	})
	return tools
}

func (r *geminiRequest) HasTools() bool {
	return len(r.Tools()) > 0
}

func (r *geminiRequest) ApplyToonCompression(ctx context.Context, model string) (*transform.ToonResult, error) {
	return r.applyToon(ctx, model, r.ToolResults())
}

// ToProviderRequest applies staged tool-result rewrites to functionResponse
// parts and runs the image transform over the parts of tool-result contents.
// Gemini carries the model in the URL, so a staged override surfaces through
// Model() for the caller building the request path, not through the body.
func (r *geminiRequest) ToProviderRequest() ([]byte, error) {
	r.beginMaterialize()
	out := r.body
	var err error
	model := r.Model()
	ids := newGeminiIDGenerator()

	// Pass 1: staged tool-result rewrites.
	for i, content := range gjson.GetBytes(r.body, "contents").Array() {
		if content.Get("role").String() == "model" {
			continue
		}
		for j, part := range content.Get("parts").Array() {
			fr := part.Get("functionResponse")
			if !fr.Exists() {
				continue
			}
			replacement, ok := r.stagedUpdate(ids.next(fr.Get("name").String()))
			if !ok {
				continue
			}
			path := fmt.Sprintf("contents.%d.parts.%d.functionResponse.response", i, j)
			if out, err = sjson.SetRawBytes(out, path, geminiResponseValue(replacement)); err != nil {
				return nil, fmt.Errorf("failed to apply tool result update: %w", err)
			}
		}
	}

	// Pass 2: image transform over tool-result contents, which may carry
	// sibling inline image parts next to the functionResponse.
	for i, content := range gjson.GetBytes(out, "contents").Array() {
		if content.Get("role").String() == "model" {
			continue
		}
		parts := content.Get("parts")
		hasFunctionResponse := false
		parts.ForEach(func(_, p gjson.Result) bool {
			if p.Get("functionResponse").Exists() {
				hasFunctionResponse = true
				return false
			}
			return true
		})
		if !hasFunctionResponse {
			continue
		}
		res := transform.Apply(decodeGeminiParts(parts), r.transformOptions(model))
		r.noteTransform(res)
		if !res.Changed() {
			continue
		}
		encoded, encErr := encodeGeminiParts(res.Blocks)
		if encErr != nil {
			return nil, encErr
		}
		if out, err = sjson.SetRawBytes(out, fmt.Sprintf("contents.%d.parts", i), encoded); err != nil {
			return nil, fmt.Errorf("failed to apply content transform: %w", err)
		}
	}
	return out, nil
}

// geminiResponseValue wraps a staged replacement for functionResponse.response,
// which must be an object on the wire.
func geminiResponseValue(replacement string) []byte {
	if parsed := gjson.Parse(replacement); parsed.IsObject() {
		return []byte(replacement)
	}
	wrapped, _ := json.Marshal(map[string]any{"result": replacement})
	return wrapped
}

// geminiIDGenerator synthesizes stable per-name ordinal IDs.
type geminiIDGenerator struct {
	counts map[string]int
}

func newGeminiIDGenerator() *geminiIDGenerator {
	return &geminiIDGenerator{counts: make(map[string]int)}
}

func (g *geminiIDGenerator) next(name string) string {
	id := fmt.Sprintf("%s-%d", name, g.counts[name])
	g.counts[name]++
	return id
}

func flattenGeminiParts(parts gjson.Result) string {
	var sb strings.Builder
	parts.ForEach(func(_, part gjson.Result) bool {
		if text := part.Get("text"); text.Exists() {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(text.String())
		}
		return true
	})
	return sb.String()
}

// decodeGeminiParts converts a parts array into common blocks. Inline images
// use inlineData {mimeType, data}; the snake_case spelling is accepted too.
// functionCall/functionResponse parts pass through opaquely.
func decodeGeminiParts(parts gjson.Result) []transform.Block {
	var blocks []transform.Block
	parts.ForEach(func(_, part gjson.Result) bool {
		inline := part.Get("inlineData")
		if !inline.Exists() {
			inline = part.Get("inline_data")
		}
		switch {
		case inline.Exists():
			mime := inline.Get("mimeType").String()
			if mime == "" {
				mime = inline.Get("mime_type").String()
			}
			blocks = append(blocks, transform.Block{
				Type:     transform.BlockImage,
				MimeType: mime,
				Data:     inline.Get("data").String(),
			})
		case part.Get("text").Exists():
			blocks = append(blocks, transform.Block{Type: transform.BlockText, Text: part.Get("text").String()})
		default:
			blocks = append(blocks, transform.Block{Type: transform.BlockOpaque, Raw: part.Raw})
		}
		return true
	})
	return blocks
}

func encodeGeminiParts(blocks []transform.Block) ([]byte, error) {
	parts := make([]json.RawMessage, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case transform.BlockText:
			part, err := json.Marshal(map[string]any{"text": b.Text})
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case transform.BlockImage:
			part, err := json.Marshal(map[string]any{
				"inlineData": map[string]any{"mimeType": b.MimeType, "data": b.Data},
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

// =============================================================================
// RESPONSE
// =============================================================================

type geminiResponse struct {
	body []byte
}

func newGeminiResponse(body []byte) (*geminiResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("gemini: response body is not valid JSON")
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	return &geminiResponse{body: buf}, nil
}

func (r *geminiResponse) Provider() Provider { return ProviderGemini }

func (r *geminiResponse) ID() string    { return gjson.GetBytes(r.body, "responseId").String() }
func (r *geminiResponse) Model() string { return gjson.GetBytes(r.body, "modelVersion").String() }

func (r *geminiResponse) Text() string {
	return flattenGeminiParts(gjson.GetBytes(r.body, "candidates.0.content.parts"))
}

func (r *geminiResponse) ToolCalls() []ToolCall {
	ids := newGeminiIDGenerator()
	var calls []ToolCall
	gjson.GetBytes(r.body, "candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
		fc := part.Get("functionCall")
		if !fc.Exists() {
			return true
		}
		name := fc.Get("name").String()
		calls = append(calls, ToolCall{
			ID:        ids.next(name),
			Name:      name,
			Arguments: decodeObject(fc.Get("args")),
		})
		return true
	})
	return calls
}

func (r *geminiResponse) HasToolCalls() bool {
	return len(r.ToolCalls()) > 0
}

func (r *geminiResponse) Usage() Usage {
	return Usage{
		InputTokens:  int(gjson.GetBytes(r.body, "usageMetadata.promptTokenCount").Int()),
		OutputTokens: int(gjson.GetBytes(r.body, "usageMetadata.candidatesTokenCount").Int()),
	}
}

func (r *geminiResponse) ToRefusalResponse(refusalMessage, contentMessage string) ([]byte, error) {
	parts, err := json.Marshal([]map[string]any{{"text": contentMessage}})
	if err != nil {
		return nil, err
	}
	out := r.body
	if out, err = sjson.SetRawBytes(out, "candidates.0.content.parts", parts); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "candidates.0.finishReason", "STOP"); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// STREAM
// =============================================================================

// geminiStream accumulates SSE chunks each shaped like a partial
// GenerateContentResponse. Text parts are deltas; functionCall parts arrive
// whole, one slot per arrival. usageMetadata repeats cumulative totals.
type geminiStream struct {
	state     *StreamState
	ids       *geminiIDGenerator
	nextIndex int
	complete  bool
}

func newGeminiStream() *geminiStream {
	return &geminiStream{state: NewStreamState(), ids: newGeminiIDGenerator()}
}

func (s *geminiStream) Provider() Provider { return ProviderGemini }

func (s *geminiStream) ProcessChunk(chunk []byte) ([]byte, error) {
	s.state.ObserveChunk(chunk)
	event := gjson.ParseBytes(chunk)

	if s.state.ResponseID == "" {
		s.state.ResponseID = event.Get("responseId").String()
	}
	if s.state.Model == "" {
		s.state.Model = event.Get("modelVersion").String()
	}

	if usage := event.Get("usageMetadata"); usage.IsObject() {
		s.state.MergeUsage(
			int(usage.Get("promptTokenCount").Int()),
			int(usage.Get("candidatesTokenCount").Int()),
		)
	}

	candidate := event.Get("candidates.0")
	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		if fc := part.Get("functionCall"); fc.Exists() {
			slot := s.state.Slot(s.nextIndex)
			s.nextIndex++
			name := fc.Get("name").String()
			slot.ID = s.ids.next(name)
			slot.Name = name
			slot.AppendArguments(fc.Get("args").Raw)
			return true
		}
		if text := part.Get("text"); text.Exists() {
			s.state.AppendText(text.String())
		}
		return true
	})

	// Gemini marks the terminal chunk with a candidate-level finishReason.
	if fr := candidate.Get("finishReason"); fr.Type == gjson.String && fr.String() != "" {
		s.state.StopReason = fr.String()
		s.complete = true
	}

	return sseDataFrame(chunk), nil
}

func (s *geminiStream) IsComplete() bool    { return s.complete }
func (s *geminiStream) State() *StreamState { return s.state }
func (s *geminiStream) RawEvents() [][]byte { return s.state.RawEvents() }

func (s *geminiStream) ToProviderResponse() ([]byte, error) {
	var parts []map[string]any
	if text := s.state.Text(); text != "" {
		parts = append(parts, map[string]any{"text": text})
	}
	for _, c := range s.state.ToolCalls() {
		parts = append(parts, map[string]any{
			"functionCall": map[string]any{
				"name": c.Name,
				"args": parseArguments(c.Arguments()),
			},
		})
	}
	if parts == nil {
		parts = []map[string]any{}
	}

	stop := s.state.StopReason
	if stop == "" {
		stop = "STOP"
	}
	u := s.state.UsageOrZero()

	out := map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"role": "model", "parts": parts},
			"finishReason": stop,
			"index":        0,
		}},
		"usageMetadata": map[string]any{
			"promptTokenCount":     u.InputTokens,
			"candidatesTokenCount": u.OutputTokens,
			"totalTokenCount":      u.InputTokens + u.OutputTokens,
		},
	}
	if s.state.ResponseID != "" {
		out["responseId"] = s.state.ResponseID
	}
	if s.state.Model != "" {
		out["modelVersion"] = s.state.Model
	}
	return json.Marshal(out)
}

var (
	_ RequestAdapter  = (*geminiRequest)(nil)
	_ ResponseAdapter = (*geminiResponse)(nil)
	_ StreamAdapter   = (*geminiStream)(nil)
)
