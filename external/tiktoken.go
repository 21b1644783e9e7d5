package external

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter is the default Tokenizer: an in-process tiktoken encoder
// selected by model family. Non-OpenAI families have no published BPE; the
// o200k_base encoding is a close enough proxy for relative token counts,
// which is all the compression savings estimate needs.
type TiktokenCounter struct {
	mu    sync.Mutex
	cache map[string]*tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter with an empty encoding cache.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{cache: make(map[string]*tiktoken.Tiktoken)}
}

// CountTokens counts tokens under the encoding of the model's family.
func (c *TiktokenCounter) CountTokens(model, text string) (int, error) {
	enc, err := c.encoding(encodingForFamily(model))
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

func (c *TiktokenCounter) encoding(name string) (*tiktoken.Tiktoken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", name, err)
	}
	c.cache[name] = enc
	return enc, nil
}

// encodingForFamily maps a model name to a tiktoken encoding name.
func encodingForFamily(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"),
		strings.HasPrefix(m, "gpt-5"), strings.HasPrefix(m, "o1"),
		strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return "o200k_base"
	case strings.HasPrefix(m, "gpt-4"), strings.HasPrefix(m, "gpt-3.5"),
		strings.HasPrefix(m, "text-embedding"):
		return "cl100k_base"
	default:
		return "o200k_base"
	}
}

var _ Tokenizer = (*TiktokenCounter)(nil)
