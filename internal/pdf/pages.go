package pdf

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParsePageSpec parses a page selection like "1,3,5-7" into a sorted list of
// unique 1-based page numbers. An empty spec selects every page. Pages out of
// [1, pageCount] and reversed ranges are errors.
func ParsePageSpec(spec string, pageCount int) ([]int, error) {
	if pageCount < 1 {
		return nil, fmt.Errorf("document has no pages")
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		pages := make([]int, pageCount)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty entry in page spec %q", spec)
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			from, err := parsePageNum(lo, pageCount)
			if err != nil {
				return nil, err
			}
			to, err := parsePageNum(hi, pageCount)
			if err != nil {
				return nil, err
			}
			if from > to {
				return nil, fmt.Errorf("reversed range %q", part)
			}
			for p := from; p <= to; p++ {
				seen[p] = true
			}
		} else {
			p, err := parsePageNum(part, pageCount)
			if err != nil {
				return nil, err
			}
			seen[p] = true
		}
	}

	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, nil
}

func parsePageNum(s string, pageCount int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid page number %q", s)
	}
	if n < 1 || n > pageCount {
		return 0, fmt.Errorf("page %d out of range 1-%d", n, pageCount)
	}
	return n, nil
}

// selection converts 1-based pages to the string form pdfcpu's API takes.
func selection(pages []int) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = strconv.Itoa(p)
	}
	return out
}
