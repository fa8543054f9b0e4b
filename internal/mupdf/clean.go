package mupdf

import (
	"fmt"
	"strconv"
	"strings"
)

// CleanPageText strips headers, footers, page numbers and layout noise from
// raw page text. The AI pipeline runs on cleaned text; the extract-text tool
// keeps the raw output.
func CleanPageText(text string, pageNum int) string {
	lines := strings.Split(text, "\n")
	var cleanedLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			continue
		}
		if isPageNumber(trimmed, pageNum) {
			continue
		}
		if isHeaderFooter(trimmed) {
			continue
		}
		if isNoise(trimmed) {
			continue
		}

		cleanedLines = append(cleanedLines, line)
	}

	result := strings.Join(cleanedLines, "\n")
	result = fixBrokenLines(result)

	return strings.TrimSpace(result)
}

// isPageNumber checks if a line is likely a page number
func isPageNumber(line string, pageNum int) bool {
	if line == strconv.Itoa(pageNum) {
		return true
	}

	patterns := []string{
		fmt.Sprintf("Page %d", pageNum),
		fmt.Sprintf("- %d -", pageNum),
		fmt.Sprintf("[%d]", pageNum),
		fmt.Sprintf("%d.", pageNum),
	}

	for _, pattern := range patterns {
		if strings.EqualFold(line, pattern) {
			return true
		}
	}

	return false
}

// isHeaderFooter checks if a line looks like a header or footer
func isHeaderFooter(line string) bool {
	// Too short to be meaningful content
	if len(line) < 3 {
		return true
	}

	// All caps and short (likely header)
	if len(line) < 50 && strings.ToUpper(line) == line {
		// But allow if it contains multiple words (could be a title)
		words := strings.Fields(line)
		if len(words) <= 2 {
			return true
		}
	}

	footerPatterns := []string{
		"CONFIDENTIAL",
		"COPYRIGHT",
		"ALL RIGHTS RESERVED",
		"PROPRIETARY",
	}

	upperLine := strings.ToUpper(line)
	for _, pattern := range footerPatterns {
		if strings.Contains(upperLine, pattern) && len(line) < 100 {
			return true
		}
	}

	return false
}

// isNoise checks if a line is just noise (special chars, standalone numbers)
func isNoise(line string) bool {
	if _, err := strconv.Atoi(line); err == nil {
		return true
	}

	specialOnly := true
	for _, r := range line {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			specialOnly = false
			break
		}
	}

	return specialOnly
}

// fixBrokenLines attempts to fix lines broken mid-sentence
func fixBrokenLines(text string) string {
	lines := strings.Split(text, "\n")
	var fixed []string

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if i < len(lines)-1 {
			trimmed := strings.TrimSpace(line)
			nextTrimmed := strings.TrimSpace(lines[i+1])

			if trimmed != "" && nextTrimmed != "" {
				lastChar := trimmed[len(trimmed)-1]
				isSentenceEnd := lastChar == '.' || lastChar == '!' || lastChar == '?' || lastChar == ':' || lastChar == ';'

				if !isSentenceEnd {
					firstChar := nextTrimmed[0]
					startsWithLower := firstChar >= 'a' && firstChar <= 'z'

					if startsWithLower && !strings.HasSuffix(trimmed, "-") {
						fixed = append(fixed, trimmed+" "+nextTrimmed)
						i++ // skip merged line
						continue
					}
				}
			}
		}

		fixed = append(fixed, line)
	}

	return strings.Join(fixed, "\n")
}
