// The registry is the static factory table binding each vendor's adapter
// triple to its network conventions: base URL, auth-header convention,
// endpoint paths, stream framing, and error envelope.
//
// DESIGN: one immutable entry per vendor, built once at package init and
// read-only afterward, so concurrent requests share it without locking.
// Dispatch is by provider tag, not inheritance.
package adapters

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// streamFraming selects the wire framing of a vendor's event stream.
type streamFraming int

const (
	framingSSE streamFraming = iota
	framingNDJSON
)

// Entry binds one vendor's adapter triple plus its network metadata.
type Entry struct {
	Provider Provider

	// InteractionType groups telemetry: the OpenAI family and Anthropic are
	// "chat", Gemini is "generate".
	InteractionType string

	baseURL          string
	framing          streamFraming
	streamTerminator []byte

	newRequest  func(body []byte, opts RequestOptions) (RequestAdapter, error)
	newResponse func(body []byte) (ResponseAdapter, error)
	newStream   func() StreamAdapter

	extractAPIKey func(http.Header, url.Values) string
	applyAuth     func(*http.Request, string)
	endpointPath  func(model string, streaming bool) string
	extractError  func(body []byte) string
}

// NewRequest constructs a fresh request adapter for one inbound call.
func (e *Entry) NewRequest(body []byte, opts RequestOptions) (RequestAdapter, error) {
	return e.newRequest(body, opts)
}

// NewResponse constructs a fresh response adapter over a vendor body.
func (e *Entry) NewResponse(body []byte) (ResponseAdapter, error) {
	return e.newResponse(body)
}

// NewStream constructs a fresh stream accumulator.
func (e *Entry) NewStream() StreamAdapter {
	return e.newStream()
}

// ExtractAPIKey pulls the caller's credential using the vendor's convention:
// bearer passthrough, custom header, or query parameter.
func (e *Entry) ExtractAPIKey(header http.Header, query url.Values) string {
	return e.extractAPIKey(header, query)
}

// BaseURL returns the vendor's default upstream base URL.
func (e *Entry) BaseURL() string { return e.baseURL }

// SpanName names the upstream call for tracing.
func (e *Entry) SpanName(streaming bool) string {
	suffix := e.InteractionType
	if streaming {
		suffix += "_stream"
	}
	return fmt.Sprintf("llm.%s.%s", e.Provider, suffix)
}

// StreamTerminator is the vendor's end-of-stream marker to send after the
// last event, nil when the vendor has none.
func (e *Entry) StreamTerminator() []byte { return e.streamTerminator }

// StreamContentType is the response content type for this vendor's stream.
func (e *Entry) StreamContentType() string {
	if e.framing == framingNDJSON {
		return "application/x-ndjson"
	}
	return "text/event-stream"
}

// ExtractErrorMessage normalizes a vendor error body to a plain string,
// falling back to a generic message when no known envelope matches.
func (e *Entry) ExtractErrorMessage(body []byte) string {
	return e.extractError(body)
}

// registry is built once and never mutated afterward.
var registry = map[Provider]*Entry{
	ProviderOpenAI: {
		Provider:         ProviderOpenAI,
		InteractionType:  "chat",
		baseURL:          "https://api.openai.com/v1",
		framing:          framingSSE,
		streamTerminator: []byte("data: [DONE]\n\n"),
		newRequest: func(body []byte, opts RequestOptions) (RequestAdapter, error) {
			return newOpenAIRequest(ProviderOpenAI, body, opts)
		},
		newResponse: func(body []byte) (ResponseAdapter, error) {
			return newOpenAIResponse(ProviderOpenAI, body)
		},
		newStream: func() StreamAdapter {
			return newOpenAIStream(ProviderOpenAI, finalityFinishReason)
		},
		extractAPIKey: bearerAPIKey,
		applyAuth:     bearerAuth,
		endpointPath:  staticPath("/chat/completions"),
		extractError:  openAIErrorMessage,
	},
	ProviderAnthropic: {
		Provider:        ProviderAnthropic,
		InteractionType: "chat",
		baseURL:         "https://api.anthropic.com",
		framing:         framingSSE,
		newRequest: func(body []byte, opts RequestOptions) (RequestAdapter, error) {
			return newAnthropicRequest(body, opts)
		},
		newResponse: func(body []byte) (ResponseAdapter, error) {
			return newAnthropicResponse(body)
		},
		newStream: func() StreamAdapter {
			return newAnthropicStream()
		},
		extractAPIKey: func(h http.Header, _ url.Values) string {
			return h.Get("x-api-key")
		},
		applyAuth: func(req *http.Request, key string) {
			req.Header.Set("x-api-key", key)
			req.Header.Set("anthropic-version", anthropicVersion)
		},
		endpointPath: staticPath("/v1/messages"),
		extractError: openAIErrorMessage,
	},
	ProviderGemini: {
		Provider:        ProviderGemini,
		InteractionType: "generate",
		baseURL:         "https://generativelanguage.googleapis.com",
		framing:         framingSSE,
		newRequest: func(body []byte, opts RequestOptions) (RequestAdapter, error) {
			return newGeminiRequest(body, opts)
		},
		newResponse: func(body []byte) (ResponseAdapter, error) {
			return newGeminiResponse(body)
		},
		newStream: func() StreamAdapter {
			return newGeminiStream()
		},
		extractAPIKey: func(h http.Header, q url.Values) string {
			if key := h.Get("x-goog-api-key"); key != "" {
				return key
			}
			return q.Get("key")
		},
		applyAuth: func(req *http.Request, key string) {
			req.Header.Set("x-goog-api-key", key)
		},
		endpointPath: func(model string, streaming bool) string {
			if streaming {
				return fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse", model)
			}
			return fmt.Sprintf("/v1beta/models/%s:generateContent", model)
		},
		extractError: geminiErrorMessage,
	},
	ProviderVLLM: {
		Provider:         ProviderVLLM,
		InteractionType:  "chat",
		baseURL:          "http://localhost:8000/v1",
		framing:          framingSSE,
		streamTerminator: []byte("data: [DONE]\n\n"),
		newRequest:       newVLLMRequest,
		newResponse:      newVLLMResponse,
		newStream:        newVLLMStream,
		extractAPIKey:    bearerAPIKey,
		applyAuth:        bearerAuth,
		endpointPath:     staticPath("/chat/completions"),
		extractError:     openAIErrorMessage,
	},
	ProviderOllama: {
		Provider:        ProviderOllama,
		InteractionType: "chat",
		baseURL:         "http://localhost:11434",
		framing:         framingNDJSON,
		newRequest: func(body []byte, opts RequestOptions) (RequestAdapter, error) {
			return newOllamaRequest(body, opts)
		},
		newResponse: func(body []byte) (ResponseAdapter, error) {
			return newOllamaResponse(body)
		},
		newStream: func() StreamAdapter {
			return newOllamaStream()
		},
		extractAPIKey: bearerAPIKey,
		applyAuth:     bearerAuth,
		endpointPath:  staticPath("/api/chat"),
		extractError:  ollamaErrorMessage,
	},
	ProviderXAI: {
		Provider:         ProviderXAI,
		InteractionType:  "chat",
		baseURL:          "https://api.x.ai/v1",
		framing:          framingSSE,
		streamTerminator: []byte("data: [DONE]\n\n"),
		newRequest:       newXAIRequest,
		newResponse:      newXAIResponse,
		newStream:        newXAIStream,
		extractAPIKey:    bearerAPIKey,
		applyAuth:        bearerAuth,
		endpointPath:     staticPath("/chat/completions"),
		extractError:     openAIErrorMessage,
	},
}

// anthropicVersion is the Anthropic API version header value.
const anthropicVersion = "2023-06-01"

// Lookup resolves a provider tag to its registry entry.
func Lookup(provider string) (*Entry, bool) {
	e, ok := registry[Provider(provider)]
	return e, ok
}

// Providers lists the registered provider tags.
func Providers() []Provider {
	out := make([]Provider, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	return out
}

func bearerAPIKey(h http.Header, _ url.Values) string {
	auth := h.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func bearerAuth(req *http.Request, key string) {
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

func staticPath(path string) func(string, bool) string {
	return func(string, bool) string { return path }
}
