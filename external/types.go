// Package external declares the call contracts of collaborators that live
// outside this core: the tokenizer-by-model-family service, the per-model
// price table, and the model-capability lookup. Default in-process
// implementations are provided; production deployments may swap them for
// remote services.
package external

// Tokenizer counts tokens for a model family. Implementations may suspend on
// a remote call; the default is an in-process tiktoken encoder.
type Tokenizer interface {
	// CountTokens returns the token count of text under the model's
	// encoding.
	CountTokens(model, text string) (int, error)
}

// PriceTable resolves input-token pricing per model.
type PriceTable interface {
	// InputPricePerMTok returns the USD price per million input tokens.
	// The second return is false when the model has no price entry.
	InputPricePerMTok(model string) (float64, bool)
}

// ModelCapabilities answers capability questions about a target model.
type ModelCapabilities interface {
	// AcceptsImageInput returns false only when the model is known not to
	// accept image input. Unknown models are assumed capable.
	AcceptsImageInput(model string) bool
}
