package adapters

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LookupKnownProviders(t *testing.T) {
	for _, p := range []Provider{
		ProviderOpenAI, ProviderAnthropic, ProviderGemini,
		ProviderVLLM, ProviderOllama, ProviderXAI,
	} {
		entry, ok := Lookup(string(p))
		require.True(t, ok, "provider %s should be registered", p)
		assert.Equal(t, p, entry.Provider)
		assert.NotEmpty(t, entry.BaseURL())
	}

	_, ok := Lookup("bedrock")
	assert.False(t, ok)
}

func TestRegistry_ExtractAPIKeyConventions(t *testing.T) {
	bearer := http.Header{"Authorization": []string{"Bearer sk-test-123"}}

	openai, _ := Lookup("openai")
	assert.Equal(t, "sk-test-123", openai.ExtractAPIKey(bearer, nil))
	assert.Equal(t, "", openai.ExtractAPIKey(http.Header{"Authorization": []string{"Basic abc"}}, nil))

	anthropic, _ := Lookup("anthropic")
	assert.Equal(t, "ant-key", anthropic.ExtractAPIKey(http.Header{"X-Api-Key": []string{"ant-key"}}, nil))

	gemini, _ := Lookup("gemini")
	assert.Equal(t, "goog-key", gemini.ExtractAPIKey(http.Header{"X-Goog-Api-Key": []string{"goog-key"}}, nil))
	// Query parameter is the fallback when the header is absent.
	assert.Equal(t, "query-key", gemini.ExtractAPIKey(http.Header{}, url.Values{"key": []string{"query-key"}}))
}

func TestRegistry_ApplyAuth(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://example.com", nil)
	require.NoError(t, err)

	anthropic, _ := Lookup("anthropic")
	anthropic.applyAuth(req, "ant-key")
	assert.Equal(t, "ant-key", req.Header.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, req.Header.Get("anthropic-version"))

	openai, _ := Lookup("openai")
	openai.applyAuth(req, "sk-1")
	assert.Equal(t, "Bearer sk-1", req.Header.Get("Authorization"))
}

func TestRegistry_SpanName(t *testing.T) {
	openai, _ := Lookup("openai")
	assert.Equal(t, "llm.openai.chat", openai.SpanName(false))
	assert.Equal(t, "llm.openai.chat_stream", openai.SpanName(true))

	gemini, _ := Lookup("gemini")
	assert.Equal(t, "llm.gemini.generate", gemini.SpanName(false))
}

func TestRegistry_StreamWireMetadata(t *testing.T) {
	openai, _ := Lookup("openai")
	assert.Equal(t, "text/event-stream", openai.StreamContentType())
	assert.Equal(t, "data: [DONE]\n\n", string(openai.StreamTerminator()))

	ollama, _ := Lookup("ollama")
	assert.Equal(t, "application/x-ndjson", ollama.StreamContentType())
	assert.Nil(t, ollama.StreamTerminator())

	// Anthropic ends with message_stop, no extra terminator.
	anthropic, _ := Lookup("anthropic")
	assert.Nil(t, anthropic.StreamTerminator())
}

func TestRegistry_EndpointPaths(t *testing.T) {
	openai, _ := Lookup("openai")
	assert.Equal(t, "/chat/completions", openai.endpointPath("gpt-4o", true))

	gemini, _ := Lookup("gemini")
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", gemini.endpointPath("gemini-2.0-flash", false))
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:streamGenerateContent?alt=sse", gemini.endpointPath("gemini-2.0-flash", true))

	ollama, _ := Lookup("ollama")
	assert.Equal(t, "/api/chat", ollama.endpointPath("llama3.2", false))
}

func TestRegistry_ExtractErrorMessage(t *testing.T) {
	openai, _ := Lookup("openai")
	assert.Equal(t, "invalid model", openai.ExtractErrorMessage([]byte(`{"error":{"message":"invalid model"}}`)))
	assert.Equal(t, genericUpstreamError, openai.ExtractErrorMessage([]byte(`<html>bad gateway</html>`)))

	gemini, _ := Lookup("gemini")
	assert.Equal(t, "quota exceeded", gemini.ExtractErrorMessage([]byte(`[{"error":{"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}]`)))

	ollama, _ := Lookup("ollama")
	assert.Equal(t, "model not found", ollama.ExtractErrorMessage([]byte(`{"error":"model not found"}`)))
}
