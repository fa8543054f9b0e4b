package ai

import (
    "strings"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestBuildPromptPerTool(t *testing.T) {
    tests := []struct {
        tool    string
        opts    map[string]string
        wantErr string
        inSys   string
        inUser  string
    }{
        {tool: "ai-summarizer", inSys: "summarize", inUser: "chunk text"},
        {tool: "ai-translator", opts: map[string]string{"language": "Polish"}, inSys: "Polish", inUser: "chunk text"},
        {tool: "ai-translator", wantErr: "language option"},
        {tool: "ai-chat", opts: map[string]string{"question": "who signed?"}, inSys: "NO ANSWER", inUser: "who signed?"},
        {tool: "ai-chat", wantErr: "question option"},
        {tool: "ai-table-extract", inSys: "CSV", inUser: "chunk text"},
        {tool: "ai-editor", opts: map[string]string{"instructions": "fix typos"}, inSys: "edit", inUser: "fix typos"},
        {tool: "ai-editor", wantErr: "instructions option"},
        {tool: "merge-pdf", wantErr: "unknown ai tool"},
    }
    for _, tt := range tests {
        sys, prompt, err := BuildPrompt(tt.tool, tt.opts, 1, 1, "chunk text")
        if tt.wantErr != "" {
            assert.ErrorContains(t, err, tt.wantErr, tt.tool)
            continue
        }
        require.NoError(t, err, tt.tool)
        assert.Contains(t, sys, tt.inSys, tt.tool)
        assert.Contains(t, prompt, tt.inUser, tt.tool)
    }
}

func TestBuildPromptMultiChunkScope(t *testing.T) {
    sys, _, err := BuildPrompt("ai-summarizer", nil, 2, 5, "text")
    require.NoError(t, err)
    assert.Contains(t, sys, "part 2 of 5")

    sys, _, err = BuildPrompt("ai-summarizer", nil, 1, 1, "text")
    require.NoError(t, err)
    assert.NotContains(t, sys, "part 1")
}

func TestJoinChunkAnswers(t *testing.T) {
    got := JoinChunkAnswers([]string{"NO ANSWER IN THIS PART.", "Alice signed it.", "  ", "no answer in this part"})
    assert.Equal(t, "Alice signed it.", got)

    got = JoinChunkAnswers([]string{"NO ANSWER IN THIS PART."})
    assert.Contains(t, got, "does not appear to contain")
}

func TestChunkText(t *testing.T) {
    pages := []string{strings.Repeat("a", 30), strings.Repeat("b", 30), strings.Repeat("c", 30)}
    chunks := ChunkText(pages, 70)
    require.Len(t, chunks, 2)
    assert.Contains(t, chunks[0], "aaa")
    assert.Contains(t, chunks[0], "bbb")
    assert.Contains(t, chunks[1], "ccc")
}

func TestChunkTextSkipsEmptyPagesAndOversized(t *testing.T) {
    chunks := ChunkText([]string{"", "  ", strings.Repeat("x", 100)}, 50)
    require.Len(t, chunks, 1)
    assert.Len(t, chunks[0], 100)

    assert.Empty(t, ChunkText(nil, 50))
}
