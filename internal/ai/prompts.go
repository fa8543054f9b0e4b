package ai

import (
    "fmt"
    "strings"
)

// BuildPrompt returns the system instruction and user prompt for one chunk of
// an AI tool job. Chunks are numbered 1-based; the system prompt tells the
// model it only sees part of the document so per-chunk outputs concatenate
// cleanly.
func BuildPrompt(tool string, opts map[string]string, chunkID, totalChunks int, text string) (system, prompt string, err error) {
    scope := ""
    if totalChunks > 1 {
        scope = fmt.Sprintf(" You are given part %d of %d of the document; respond for this part only, without introductions or closing remarks, so the parts can be joined.", chunkID, totalChunks)
    }

    switch tool {
    case "ai-summarizer":
        system = "You summarize documents. Produce a concise summary that keeps key facts, figures and conclusions. Use plain paragraphs, no preamble." + scope
        prompt = text

    case "ai-translator":
        lang := strings.TrimSpace(opts["language"])
        if lang == "" {
            return "", "", fmt.Errorf("ai-translator needs a language option")
        }
        system = fmt.Sprintf("You translate documents into %s. Preserve the original formatting, paragraph breaks and lists. Output only the translation.", lang) + scope
        prompt = text

    case "ai-chat":
        q := strings.TrimSpace(opts["question"])
        if q == "" {
            return "", "", fmt.Errorf("ai-chat needs a question option")
        }
        system = "You answer questions about a document using only the document content. If this part of the document does not contain the answer, reply with exactly: NO ANSWER IN THIS PART." + scope
        prompt = fmt.Sprintf("DOCUMENT:\n%s\n\nQUESTION: %s", text, q)

    case "ai-table-extract":
        system = "You extract tabular data from documents. Output every table found as CSV, one table after another separated by a blank line. If no tables are present, output nothing." + scope
        prompt = text

    case "ai-editor":
        instr := strings.TrimSpace(opts["instructions"])
        if instr == "" {
            return "", "", fmt.Errorf("ai-editor needs an instructions option")
        }
        system = "You edit document text according to the user's instructions. Output the full edited text, preserving parts the instructions do not touch." + scope
        prompt = fmt.Sprintf("INSTRUCTIONS: %s\n\nTEXT:\n%s", instr, text)

    default:
        return "", "", fmt.Errorf("unknown ai tool %q", tool)
    }
    return system, prompt, nil
}

// JoinChunkAnswers merges per-chunk ai-chat answers, dropping the no-answer
// marker chunks. Other tools concatenate chunk outputs as-is.
func JoinChunkAnswers(parts []string) string {
    kept := make([]string, 0, len(parts))
    for _, p := range parts {
        t := strings.TrimSpace(p)
        if t == "" || strings.EqualFold(t, "NO ANSWER IN THIS PART.") || strings.EqualFold(t, "NO ANSWER IN THIS PART") {
            continue
        }
        kept = append(kept, t)
    }
    if len(kept) == 0 {
        return "The document does not appear to contain an answer to this question."
    }
    return strings.Join(kept, "\n\n")
}
