// Package pagerange turns user page-selection expressions such as "1,3-5,8"
// into sorted, deduplicated zero-based page indices.
//
// Parsing is lenient: numbers outside 1..total and reversed ranges are
// dropped token by token. Only an overall empty result is an error.
package pagerange

import (
	"sort"
	"strconv"
	"strings"

	"github.com/local/pdftoolkit/internal/pdferr"
)

// IndexSet is a strictly increasing list of zero-based page indices.
type IndexSet []int

// Len returns the number of selected pages.
func (s IndexSet) Len() int { return len(s) }

// Selectors renders the set as 1-based page selectors ("1", "3", ...).
func (s IndexSet) Selectors() []string {
	out := make([]string, len(s))
	for i, idx := range s {
		out[i] = strconv.Itoa(idx + 1)
	}
	return out
}

// All returns the full selection 0..total-1.
func All(total int) IndexSet {
	if total <= 0 {
		return IndexSet{}
	}
	out := make(IndexSet, total)
	for i := range out {
		out[i] = i
	}
	return out
}

// Parse resolves expr against a document of total pages.
// It fails with pdferr.EmptySelection when nothing usable remains.
func Parse(expr string, total int) (IndexSet, error) {
	seen := make(map[int]struct{})
	for _, tok := range strings.Split(expr, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		start, end, ok := parseToken(tok)
		if !ok {
			continue
		}
		if start < 1 {
			start = 1
		}
		if end > total {
			end = total
		}
		for p := start; p <= end; p++ {
			seen[p-1] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil, pdferr.New(pdferr.EmptySelection, "page range %q selects no pages of a %d-page document", expr, total)
	}

	out := make(IndexSet, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out, nil
}

// parseToken reads "n" or "a-b" (1-based, inclusive). Malformed tokens are reported as !ok.
func parseToken(tok string) (int, int, bool) {
	if i := strings.Index(tok, "-"); i > 0 {
		start, err1 := strconv.Atoi(strings.TrimSpace(tok[:i]))
		end, err2 := strconv.Atoi(strings.TrimSpace(tok[i+1:]))
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return start, end, true
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, 0, false
	}
	return n, n, true
}
