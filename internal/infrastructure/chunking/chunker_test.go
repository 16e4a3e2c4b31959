package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/raglite/internal/core/domain"
)

func TestNewChunkerRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap above size", 10, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewChunker(tc.size, tc.overlap, IDModeRandom)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
		})
	}
}

func TestBySizeCoversEveryCharacter(t *testing.T) {
	configs := []struct{ size, overlap int }{
		{10, 3}, {7, 1}, {100, 20}, {5, 4}, {1000, 200},
	}
	text := strings.Repeat("abcdefghijklmnopqrstuvwxyz0123456789 ", 41)

	for _, cfg := range configs {
		c, err := NewChunker(cfg.size, cfg.overlap, IDModeRandom)
		require.NoError(t, err)

		chunks := c.BySize([]domain.Page{{Number: 1, Text: text}}, "doc", "src")
		runes := []rune(text)
		step := cfg.size - cfg.overlap
		wantCount := (len(runes) + step - 1) / step
		assert.Len(t, chunks, wantCount, "size=%d overlap=%d", cfg.size, cfg.overlap)

		covered := make([]bool, len(runes))
		for i, ch := range chunks {
			start := i * step
			require.Equal(t, string(runes[start:start+len([]rune(ch.Text))]), ch.Text)
			for j := start; j < start+len([]rune(ch.Text)); j++ {
				covered[j] = true
			}
			require.NotNil(t, ch.Metadata.ChunkIndex)
			assert.Equal(t, i, *ch.Metadata.ChunkIndex)
		}
		for idx, ok := range covered {
			if !ok {
				t.Fatalf("size=%d overlap=%d: rune %d not covered", cfg.size, cfg.overlap, idx)
			}
		}
	}
}

func TestBySizeSkipsBlankPagesAndRestartsIndexPerPage(t *testing.T) {
	c, err := NewChunker(4, 1, IDModeRandom)
	require.NoError(t, err)

	pages := []domain.Page{
		{Number: 1, Text: "abcdefg"},
		{Number: 2, Text: "   \n\t "},
		{Number: 3, Text: "xyz"},
	}
	chunks := c.BySize(pages, "doc-1", "doc.pdf")

	require.Len(t, chunks, 4)
	assert.Equal(t, []string{"abcd", "defg", "g", "xyz"}, []string{chunks[0].Text, chunks[1].Text, chunks[2].Text, chunks[3].Text})
	assert.Equal(t, 3, chunks[3].Metadata.Page)
	assert.Equal(t, 0, *chunks[3].Metadata.ChunkIndex)
	for _, ch := range chunks {
		assert.Equal(t, "doc-1", ch.Metadata.DocumentID)
		assert.Equal(t, "doc.pdf", ch.Metadata.Source)
		assert.Equal(t, domain.ChunkTypeSize, ch.Metadata.ChunkType)
	}
}

func TestByPageOneChunkPerNonEmptyPage(t *testing.T) {
	c, err := NewChunker(DefaultChunkSize, DefaultOverlap, IDModeRandom)
	require.NoError(t, err)

	chunks := c.ByPage([]domain.Page{
		{Number: 1, Text: "first page"},
		{Number: 2, Text: ""},
		{Number: 3, Text: "third page"},
	}, "doc", "src")

	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Metadata.Page)
	assert.Equal(t, 3, chunks[1].Metadata.Page)
	assert.Nil(t, chunks[0].Metadata.ChunkIndex)
	assert.Equal(t, domain.ChunkTypePage, chunks[1].Metadata.ChunkType)
}

func TestRechunkingYieldsSameTextWithFreshIDs(t *testing.T) {
	c, err := NewChunker(8, 2, IDModeRandom)
	require.NoError(t, err)
	pages := []domain.Page{{Number: 1, Text: "the quick brown fox jumps over the lazy dog"}}

	first := c.BySize(pages, "doc", "src")
	second := c.BySize(pages, "doc", "src")

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Metadata, second[i].Metadata)
		assert.NotEqual(t, first[i].ID, second[i].ID)
	}
}

func TestDeterministicIDsAreStable(t *testing.T) {
	c, err := NewChunker(8, 2, IDModeDeterministic)
	require.NoError(t, err)
	pages := []domain.Page{{Number: 1, Text: "the quick brown fox jumps over the lazy dog"}}

	first := c.BySize(pages, "doc", "src")
	second := c.BySize(pages, "doc", "src")
	other := c.BySize(pages, "doc-2", "src")

	seen := map[string]bool{}
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.NotEqual(t, first[i].ID, other[i].ID)
		assert.False(t, seen[first[i].ID], "duplicate id within document")
		seen[first[i].ID] = true
	}
}

func TestChunkRejectsUnknownStrategy(t *testing.T) {
	c, err := NewChunker(10, 0, "")
	require.NoError(t, err)
	_, err = c.Chunk("sentences", nil, "doc", "src")
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
}
