package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/blinkpdf/internal/filetype"
)

func TestCatalogIntegrity(t *testing.T) {
	seen := map[string]bool{}
	for _, tool := range Catalog() {
		assert.False(t, seen[tool.Slug], "duplicate slug %s", tool.Slug)
		seen[tool.Slug] = true

		assert.NotEmpty(t, tool.Title, tool.Slug)
		assert.NotEmpty(t, tool.Description, tool.Slug)
		assert.NotEmpty(t, tool.Accepts, tool.Slug)
		assert.NotEmpty(t, tool.Suffix, tool.Slug)
		assert.GreaterOrEqual(t, tool.MinFiles, 1, tool.Slug)
		assert.GreaterOrEqual(t, tool.MaxFiles, tool.MinFiles, tool.Slug)
	}
	// The full suite: 33 PDF tools plus 5 AI tools.
	assert.Len(t, Catalog(), 38)
}

func TestBySlug(t *testing.T) {
	tool, err := BySlug("merge-pdf")
	require.NoError(t, err)
	assert.Equal(t, "Merge PDF", tool.Title)
	assert.Equal(t, 2, tool.MinFiles)

	_, err = BySlug("nonexistent-tool")
	assert.Error(t, err)
}

func TestAIToolsFlagged(t *testing.T) {
	for _, slug := range []string{"ai-summarizer", "ai-translator", "ai-chat", "ai-table-extract", "ai-editor"} {
		tool, err := BySlug(slug)
		require.NoError(t, err)
		assert.True(t, tool.AI, slug)
		assert.Equal(t, CategoryAI, tool.Category, slug)
	}
	tool, err := BySlug("compress-pdf")
	require.NoError(t, err)
	assert.False(t, tool.AI)
}

func TestSignToolAcceptsImage(t *testing.T) {
	tool, err := BySlug("sign-pdf")
	require.NoError(t, err)
	assert.True(t, filetype.Accepts(filetype.KindImage, tool.Accepts))
	assert.True(t, filetype.Accepts(filetype.KindPDF, tool.Accepts))
}

func TestDownloadName(t *testing.T) {
	tool, err := BySlug("merge-pdf")
	require.NoError(t, err)

	assert.Equal(t, "report_merged.pdf", tool.DownloadName("report", ".pdf"))
	assert.Equal(t, "document_merged.pdf", tool.DownloadName("", ".pdf"))
}
