package adapters

import "github.com/tidwall/gjson"

// genericUpstreamError is returned when no known vendor error envelope
// matches. Callers never see vendor-internal structure.
const genericUpstreamError = "upstream provider request failed"

// openAIErrorMessage reads the {"error":{"message":...}} envelope shared by
// OpenAI, vLLM, and xAI. Anthropic uses the same nesting.
func openAIErrorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	return genericUpstreamError
}

// geminiErrorMessage reads Gemini's {"error":{"message","status"}} envelope.
// Batch endpoints wrap it in an array.
func geminiErrorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	if msg := gjson.GetBytes(body, "0.error.message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	return genericUpstreamError
}

// ollamaErrorMessage reads Ollama's flat {"error":"..."} shape.
func ollamaErrorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	return genericUpstreamError
}
