package adapters

// vLLM serves the OpenAI chat-completions wire unchanged, so the triple
// delegates to the OpenAI adapters. The one behavioral difference is stream
// finality: vLLM always appends a trailing usage-bearing chunk with no
// choices, and only that chunk makes the stream final.

func newVLLMRequest(body []byte, opts RequestOptions) (RequestAdapter, error) {
	return newOpenAIRequest(ProviderVLLM, body, opts)
}

func newVLLMResponse(body []byte) (ResponseAdapter, error) {
	return newOpenAIResponse(ProviderVLLM, body)
}

func newVLLMStream() StreamAdapter {
	return newOpenAIStream(ProviderVLLM, finalityTrailingUsage)
}
