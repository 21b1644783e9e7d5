package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vLLM shares the OpenAI wire; what needs its own coverage is the finality
// rule, where the finish_reason chunk is NOT terminal and the trailing
// usage-only chunk is.

func TestVLLM_FinishReasonChunkIsNotTerminal(t *testing.T) {
	stream := newVLLMStream()

	chunks := [][]byte{
		[]byte(`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"role":"assistant","content":"hi"}}]}`),
		[]byte(`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`),
	}
	for _, chunk := range chunks {
		_, err := stream.ProcessChunk(chunk)
		require.NoError(t, err)
	}
	assert.False(t, stream.IsComplete())

	// The trailing chunk has no choices, only usage.
	_, err := stream.ProcessChunk([]byte(`{"id":"chatcmpl-1","choices":[],"usage":{"prompt_tokens":9,"completion_tokens":3,"total_tokens":12}}`))
	require.NoError(t, err)
	assert.True(t, stream.IsComplete())

	state := stream.State()
	assert.Equal(t, "hi", state.Text())
	assert.Equal(t, "stop", state.StopReason)
	assert.Equal(t, Usage{InputTokens: 9, OutputTokens: 3}, state.UsageOrZero())
}

func TestXAI_FinishReasonChunkIsTerminal(t *testing.T) {
	stream := newXAIStream()

	_, err := stream.ProcessChunk([]byte(`{"id":"chatcmpl-2","choices":[{"index":0,"delta":{"role":"assistant","content":"hello"}}]}`))
	require.NoError(t, err)
	assert.False(t, stream.IsComplete())

	_, err = stream.ProcessChunk([]byte(`{"id":"chatcmpl-2","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`))
	require.NoError(t, err)
	assert.True(t, stream.IsComplete())
	assert.Equal(t, Usage{InputTokens: 5, OutputTokens: 2}, stream.State().UsageOrZero())
}
