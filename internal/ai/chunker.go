package ai

import "strings"

// ChunkText groups per-page text into chunks of at most maxChars characters.
// Pages are never split, so a chunk boundary is always a page boundary; a
// single page longer than maxChars becomes its own chunk.
func ChunkText(pages []string, maxChars int) []string {
    if maxChars <= 0 {
        maxChars = 8000
    }
    var chunks []string
    var cur strings.Builder
    for _, page := range pages {
        page = strings.TrimSpace(page)
        if page == "" {
            continue
        }
        if cur.Len() > 0 && cur.Len()+len(page)+2 > maxChars {
            chunks = append(chunks, cur.String())
            cur.Reset()
        }
        if cur.Len() > 0 {
            cur.WriteString("\n\n")
        }
        cur.WriteString(page)
    }
    if cur.Len() > 0 {
        chunks = append(chunks, cur.String())
    }
    return chunks
}
