package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_KeepsEverythingForCapableModel(t *testing.T) {
	blocks := []Block{
		{Type: BlockText, Text: "result"},
		{Type: BlockImage, MimeType: "image/png", Data: "aGVsbG8="},
	}

	res := Apply(blocks, Options{ModelAcceptsImages: true})

	assert.False(t, res.Changed())
	assert.Equal(t, 1, res.ImagesKept)
	require.Len(t, res.Blocks, 2)
	assert.Equal(t, BlockImage, res.Blocks[1].Type)
}

func TestApply_StripsImagesForIncapableModel(t *testing.T) {
	blocks := []Block{
		{Type: BlockText, Text: "result"},
		{Type: BlockImage, MimeType: "image/png", Data: "aGVsbG8="},
		{Type: BlockImage, MimeType: "image/jpeg", Data: "d29ybGQ="},
	}

	res := Apply(blocks, Options{ModelAcceptsImages: false})

	assert.True(t, res.Changed())
	assert.Equal(t, 2, res.ImagesStripped)
	require.Len(t, res.Blocks, 2)
	assert.Equal(t, "result", res.Blocks[0].Text)
	// One summary placeholder for all stripped images, appended at the end.
	assert.Equal(t, "[2 image(s) removed: model does not support image input]", res.Blocks[1].Text)
}

func TestApply_OmitsOversizedImageRegardlessOfCapability(t *testing.T) {
	huge := strings.Repeat("A", 140000)
	blocks := []Block{
		{Type: BlockImage, MimeType: "image/png", Data: huge},
	}

	// Oversize wins even when the model cannot accept images at all: the
	// size gate runs first, so the placeholder names the size, not the
	// capability.
	for _, accepts := range []bool{true, false} {
		res := Apply(blocks, Options{ModelAcceptsImages: accepts})

		assert.True(t, res.Changed())
		assert.Equal(t, 1, res.ImagesOmitted)
		assert.Equal(t, 0, res.ImagesStripped)
		require.Len(t, res.Blocks, 1)
		assert.Equal(t, BlockText, res.Blocks[0].Type)
		assert.Equal(t, "[Image omitted due to size]", res.Blocks[0].Text)
	}
}

func TestApply_CustomSizeThreshold(t *testing.T) {
	blocks := []Block{{Type: BlockImage, Data: strings.Repeat("A", 100)}}

	res := Apply(blocks, Options{ModelAcceptsImages: true, MaxImageChars: 50})
	assert.Equal(t, 1, res.ImagesOmitted)

	res = Apply(blocks, Options{ModelAcceptsImages: true, MaxImageChars: 200})
	assert.Equal(t, 1, res.ImagesKept)
}

func TestApply_OpaqueBlocksPassThrough(t *testing.T) {
	blocks := []Block{
		{Type: BlockOpaque, Raw: `{"type":"audio","data":"..."}`},
		{Type: BlockImage, Data: "aGVsbG8="},
	}

	res := Apply(blocks, Options{ModelAcceptsImages: false})

	require.Len(t, res.Blocks, 2)
	assert.Equal(t, BlockOpaque, res.Blocks[0].Type)
	assert.Equal(t, `{"type":"audio","data":"..."}`, res.Blocks[0].Raw)
}

func TestApply_EmptyInput(t *testing.T) {
	res := Apply(nil, Options{ModelAcceptsImages: false})
	assert.False(t, res.Changed())
	assert.Empty(t, res.Blocks)
}
