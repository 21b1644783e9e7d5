package adapters

// xAI's API is OpenAI-compatible: same wire, same finish_reason finality.
// Only the base URL and telemetry tag differ, which the registry binds.

func newXAIRequest(body []byte, opts RequestOptions) (RequestAdapter, error) {
	return newOpenAIRequest(ProviderXAI, body, opts)
}

func newXAIResponse(body []byte) (ResponseAdapter, error) {
	return newOpenAIResponse(ProviderXAI, body)
}

func newXAIStream() StreamAdapter {
	return newOpenAIStream(ProviderXAI, finalityFinishReason)
}
