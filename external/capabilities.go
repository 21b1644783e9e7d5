package external

import "strings"

// StaticCapabilities is the default ModelCapabilities: a denylist of model
// name fragments known to lack image input. Anything not on the list is
// assumed capable, so unknown models keep their images.
type StaticCapabilities struct {
	noImageFragments []string
}

// DefaultNoImageModels lists model-name fragments for text-only families.
var DefaultNoImageModels = []string{
	"gpt-3.5",
	"o1-mini",
	"o3-mini",
	"text-",
	"deepseek",
	"qwen2.5-coder",
	"codellama",
	"grok-3-mini",
}

// NewStaticCapabilities builds a lookup from the given fragments, falling
// back to DefaultNoImageModels when none are given.
func NewStaticCapabilities(noImageFragments []string) *StaticCapabilities {
	if len(noImageFragments) == 0 {
		noImageFragments = DefaultNoImageModels
	}
	frags := make([]string, len(noImageFragments))
	for i, f := range noImageFragments {
		frags[i] = strings.ToLower(f)
	}
	return &StaticCapabilities{noImageFragments: frags}
}

// AcceptsImageInput reports false only for models matching a known text-only
// fragment.
func (c *StaticCapabilities) AcceptsImageInput(model string) bool {
	m := strings.ToLower(model)
	for _, frag := range c.noImageFragments {
		if strings.Contains(m, frag) {
			return false
		}
	}
	return true
}

var _ ModelCapabilities = (*StaticCapabilities)(nil)
