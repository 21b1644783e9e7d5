package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/lotbones1-code/llmbridge/external"
	"github.com/lotbones1-code/llmbridge/internal/transform"
)

// RequestOptions carries per-call collaborator handles and wire hints into a
// request adapter. The zero value is usable: no transform collaborators means
// images are kept and compression falls back to a character estimate.
type RequestOptions struct {
	// Streaming overrides streaming detection for vendors whose request body
	// carries no stream flag (Gemini signals streaming in the URL path).
	Streaming *bool

	// Model supplies the model for vendors that carry it in the URL rather
	// than the body.
	Model string

	// Capabilities answers whether the target model accepts image input.
	// Nil means every model is assumed capable.
	Capabilities external.ModelCapabilities

	// MaxImageChars overrides the encoded-image size threshold when positive.
	MaxImageChars int

	// Tokenizer and Prices back ApplyToonCompression. A nil tokenizer falls
	// back to a four-characters-per-token estimate; a nil price table yields
	// nil cost savings.
	Tokenizer external.Tokenizer
	Prices    external.PriceTable
}

// requestCore is the vendor-independent half of every request adapter: the
// immutable original body plus the accumulated patch. Vendor code only
// decides where in the wire format the patch lands.
type requestCore struct {
	provider Provider
	body     []byte
	opts     RequestOptions

	modelOverride string
	toolUpdates   map[string]string

	// Image-transform counts from the last materialization, for metrics.
	imagesStripped int
	imagesOmitted  int
}

func newRequestCore(provider Provider, body []byte, opts RequestOptions) (requestCore, error) {
	if !gjson.ValidBytes(body) {
		return requestCore{}, fmt.Errorf("%s: request body is not valid JSON", provider)
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	return requestCore{
		provider:    provider,
		body:        buf,
		opts:        opts,
		toolUpdates: make(map[string]string),
	}, nil
}

func (rc *requestCore) Provider() Provider { return rc.provider }

// SetModel stages a model override.
func (rc *requestCore) SetModel(model string) {
	rc.modelOverride = model
}

// UpdateToolResult stages a full content replacement for one tool result.
func (rc *requestCore) UpdateToolResult(toolCallID, newContent string) {
	rc.toolUpdates[toolCallID] = newContent
}

// ApplyToolResultUpdates stages replacements in bulk.
func (rc *requestCore) ApplyToolResultUpdates(updates map[string]string) {
	for id, content := range updates {
		rc.toolUpdates[id] = content
	}
}

// stagedUpdate returns the staged replacement for a tool call ID, if any.
func (rc *requestCore) stagedUpdate(toolCallID string) (string, bool) {
	content, ok := rc.toolUpdates[toolCallID]
	return content, ok
}

// effectiveModel resolves the model after staging: override first, then the
// body field at the given gjson path, then the URL-supplied model.
func (rc *requestCore) effectiveModel(bodyPath string) string {
	if rc.modelOverride != "" {
		return rc.modelOverride
	}
	if bodyPath != "" {
		if m := gjson.GetBytes(rc.body, bodyPath); m.Exists() {
			return m.String()
		}
	}
	return rc.opts.Model
}

// beginMaterialize resets per-materialization counters. Called at the top of
// every ToProviderRequest so repeated calls do not double count.
func (rc *requestCore) beginMaterialize() {
	rc.imagesStripped = 0
	rc.imagesOmitted = 0
}

// noteTransform accumulates image-transform counts for observability.
func (rc *requestCore) noteTransform(res transform.Result) {
	rc.imagesStripped += res.ImagesStripped
	rc.imagesOmitted += res.ImagesOmitted
}

// TransformStats reports images stripped and omitted by the last
// materialization.
func (rc *requestCore) TransformStats() (stripped, omitted int) {
	return rc.imagesStripped, rc.imagesOmitted
}

// transformOptions builds the image-transform options for the target model.
func (rc *requestCore) transformOptions(model string) transform.Options {
	accepts := true
	if rc.opts.Capabilities != nil {
		accepts = rc.opts.Capabilities.AcceptsImageInput(model)
	}
	return transform.Options{
		ModelAcceptsImages: accepts,
		MaxImageChars:      rc.opts.MaxImageChars,
	}
}

// applyToon runs token-oriented re-encoding over the given tool results,
// staging an update for every result whose content parses as a structured
// value and shrinks under the model's tokenizer. Returns nil when no result
// holds structured content.
func (rc *requestCore) applyToon(ctx context.Context, model string, results []ToolResult) (*transform.ToonResult, error) {
	var (
		res        transform.ToonResult
		structured bool
	)

	for _, tr := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, ok := structuredContent(tr.Content)
		if !ok {
			continue
		}
		encoded, ok := transform.EncodeToon([]byte(raw))
		if !ok {
			continue
		}
		structured = true

		before, err := rc.countTokens(model, raw)
		if err != nil {
			return nil, err
		}
		after, err := rc.countTokens(model, encoded)
		if err != nil {
			return nil, err
		}

		res.TokensBefore += before
		if after < before {
			rc.UpdateToolResult(tr.ID, encoded)
			res.TokensAfter += after
		} else {
			res.TokensAfter += before
		}
	}

	if !structured {
		return nil, nil
	}

	if rc.opts.Prices != nil && res.TokensSaved() > 0 {
		if price, ok := rc.opts.Prices.InputPricePerMTok(model); ok {
			savings := float64(res.TokensSaved()) * price / 1e6
			res.CostSavings = &savings
		}
	}
	return &res, nil
}

func (rc *requestCore) countTokens(model, text string) (int, error) {
	if rc.opts.Tokenizer == nil {
		return (len(text) + 3) / 4, nil
	}
	return rc.opts.Tokenizer.CountTokens(model, text)
}

// structuredContent returns the raw JSON of a tool-result content value when
// it is (or parses as) an object or array.
func structuredContent(content any) (string, bool) {
	switch v := content.(type) {
	case string:
		res := gjson.Parse(v)
		if res.IsObject() || res.IsArray() {
			return v, true
		}
		return "", false
	case map[string]any, []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(raw), true
	default:
		return "", false
	}
}
