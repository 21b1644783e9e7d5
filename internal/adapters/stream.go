package adapters

import (
	"strings"
	"time"
)

// StreamToolCall is one tool-call slot being assembled from stream deltas.
// Argument fragments are concatenated strictly in arrival order and only
// parsed once the stream is final.
type StreamToolCall struct {
	Index int
	ID    string
	Name  string
	args  strings.Builder
}

// AppendArguments concatenates one argument fragment.
func (c *StreamToolCall) AppendArguments(fragment string) {
	c.args.WriteString(fragment)
}

// Arguments returns the argument string assembled so far.
func (c *StreamToolCall) Arguments() string {
	return c.args.String()
}

// StreamState is the per-call accumulator reconstructing one logical response
// from an ordered sequence of stream chunks. It is exclusively owned by the
// one in-flight stream and never shared.
type StreamState struct {
	ResponseID string
	Model      string
	StopReason string

	// Usage stays nil until a usage-bearing chunk arrives. Some vendors only
	// deliver usage in a nearly-empty terminal chunk.
	Usage *Usage

	Start      time.Time
	FirstChunk time.Time

	text strings.Builder

	// Tool-call slots: append-only ordered list plus an index lookup keyed by
	// the vendor's positional index. Safe without locking because chunk
	// processing is strictly sequential.
	toolCalls []*StreamToolCall
	byIndex   map[int]*StreamToolCall

	rawEvents [][]byte
}

// NewStreamState creates an accumulator stamped with the stream start time.
func NewStreamState() *StreamState {
	return &StreamState{
		Start:   time.Now(),
		byIndex: make(map[int]*StreamToolCall),
	}
}

// ObserveChunk records a verbatim copy of one chunk for replay and stamps the
// first-chunk arrival time once.
func (s *StreamState) ObserveChunk(chunk []byte) {
	if s.FirstChunk.IsZero() {
		s.FirstChunk = time.Now()
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.rawEvents = append(s.rawEvents, buf)
}

// AppendText appends one incremental text delta.
func (s *StreamState) AppendText(delta string) {
	s.text.WriteString(delta)
}

// Text returns the accumulated assistant text.
func (s *StreamState) Text() string {
	return s.text.String()
}

// MergeUsage folds usage from a chunk into the accumulator. Later chunks win
// field-wise when they carry larger counts (OpenAI-style terminal usage
// chunks repeat cumulative totals).
func (s *StreamState) MergeUsage(input, output int) {
	if s.Usage == nil {
		s.Usage = &Usage{}
	}
	if input > s.Usage.InputTokens {
		s.Usage.InputTokens = input
	}
	if output > s.Usage.OutputTokens {
		s.Usage.OutputTokens = output
	}
}

// Slot returns the tool-call slot for a vendor positional index, creating it
// on first sight. Slot order follows first appearance, not index value.
func (s *StreamState) Slot(index int) *StreamToolCall {
	if c, ok := s.byIndex[index]; ok {
		return c
	}
	c := &StreamToolCall{Index: index}
	s.byIndex[index] = c
	s.toolCalls = append(s.toolCalls, c)
	return c
}

// ToolCalls returns the slots in first-seen order.
func (s *StreamState) ToolCalls() []*StreamToolCall {
	return s.toolCalls
}

// RawEvents replays the observed chunks in arrival order.
func (s *StreamState) RawEvents() [][]byte {
	return s.rawEvents
}

// CommonToolCalls converts the assembled slots into common-model tool calls.
// Unparsable argument strings decode to empty objects.
func (s *StreamState) CommonToolCalls() []ToolCall {
	calls := make([]ToolCall, 0, len(s.toolCalls))
	for _, c := range s.toolCalls {
		calls = append(calls, ToolCall{
			ID:        c.ID,
			Name:      c.Name,
			Arguments: parseArguments(c.Arguments()),
		})
	}
	return calls
}

// UsageOrZero returns the merged usage, defaulting to zero counts when no
// usage-bearing chunk was seen.
func (s *StreamState) UsageOrZero() Usage {
	if s.Usage == nil {
		return Usage{}
	}
	return *s.Usage
}
