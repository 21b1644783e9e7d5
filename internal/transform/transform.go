// Package transform holds the vendor-independent content transforms applied
// to tool-result payloads: image-block conversion/stripping and token-cost
// compression.
//
// DESIGN: Decisions are evaluated per block, never per message, and block
// order is preserved. The package is log-free and side-effect free; callers
// that want diagnostics observe the returned stats.
package transform

import "fmt"

// BlockType discriminates tool-result content blocks.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image"

	// BlockOpaque is a vendor-specific block the transform does not
	// understand. It passes through untouched so nothing is lost.
	BlockOpaque BlockType = "opaque"
)

// Block is one vendor-agnostic tool-result content block. Image blocks carry
// a base64 payload plus its media type; opaque blocks carry the vendor's raw
// JSON verbatim.
type Block struct {
	Type     BlockType
	Text     string
	MimeType string
	Data     string
	Raw      string
}

const (
	// OversizeImagePlaceholder replaces an image whose encoded payload
	// exceeds the size threshold, regardless of model capability.
	OversizeImagePlaceholder = "[Image omitted due to size]"

	// DefaultMaxImageChars is the encoded-payload threshold above which an
	// image is omitted. 128 KiB of base64 keeps tool results well under
	// typical vendor request limits.
	DefaultMaxImageChars = 131072

	// strippedImagesFormat summarizes images removed because the target
	// model does not accept image input.
	strippedImagesFormat = "[%d image(s) removed: model does not support image input]"
)

// Options controls the image transform for one target model.
type Options struct {
	// ModelAcceptsImages is false only when the target model is known not to
	// accept image input. Unknown models keep their images.
	ModelAcceptsImages bool

	// MaxImageChars overrides DefaultMaxImageChars when positive.
	MaxImageChars int
}

// Result reports what Apply did to one block array.
type Result struct {
	Blocks         []Block
	ImagesKept     int
	ImagesOmitted  int
	ImagesStripped int
}

// Changed reports whether the block array differs from the input.
func (r Result) Changed() bool {
	return r.ImagesOmitted > 0 || r.ImagesStripped > 0
}

// Apply runs the per-block image transform over one tool-result block array:
//
//   - an image whose encoded payload exceeds the threshold becomes the
//     oversize placeholder, in place
//   - remaining images are dropped when the model lacks image input; one
//     counted summary placeholder is appended for all of them
//   - remaining images are kept for the vendor encoder to re-encode
//
// Text blocks pass through untouched.
func Apply(blocks []Block, opts Options) Result {
	maxChars := opts.MaxImageChars
	if maxChars <= 0 {
		maxChars = DefaultMaxImageChars
	}

	res := Result{Blocks: make([]Block, 0, len(blocks))}
	for _, b := range blocks {
		if b.Type != BlockImage {
			res.Blocks = append(res.Blocks, b)
			continue
		}
		if len(b.Data) > maxChars {
			res.Blocks = append(res.Blocks, Block{Type: BlockText, Text: OversizeImagePlaceholder})
			res.ImagesOmitted++
			continue
		}
		if !opts.ModelAcceptsImages {
			res.ImagesStripped++
			continue
		}
		res.Blocks = append(res.Blocks, b)
		res.ImagesKept++
	}

	if res.ImagesStripped > 0 {
		res.Blocks = append(res.Blocks, Block{
			Type: BlockText,
			Text: fmt.Sprintf(strippedImagesFormat, res.ImagesStripped),
		})
	}
	return res
}
