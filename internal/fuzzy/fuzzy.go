// Package fuzzy decides whether a query loosely matches a candidate
// string and ranks ambiguous matches deterministically.
package fuzzy

import (
	"sort"
	"strings"

	sahilm "github.com/sahilm/fuzzy"
)

// Match reports whether query matches candidate. Matching is
// case-insensitive; an exact substring always matches, and so does any
// subsequence (all query runes appear in order, gaps allowed). The empty
// query matches everything.
func Match(query, candidate string) bool {
	q := strings.ToLower(query)
	c := strings.ToLower(candidate)
	if q == "" || strings.Contains(c, q) {
		return true
	}
	// Subsequence scan.
	want := []rune(q)
	j := 0
	for _, r := range c {
		if j < len(want) && r == want[j] {
			j++
		}
	}
	return j == len(want)
}

// Rank returns the indices of all candidates matching query, best match
// first. Ties break deterministically: exact (case-insensitive) equality
// beats a prefix match, which beats a higher fuzzy score; remaining ties
// prefer the shorter candidate, then lexicographic order.
func Rank(query string, candidates []string) []int {
	if query == "" {
		out := make([]int, len(candidates))
		for i := range candidates {
			out[i] = i
		}
		return out
	}

	scores := make(map[int]int, len(candidates))
	for _, m := range sahilm.Find(query, candidates) {
		scores[m.Index] = m.Score
	}

	q := strings.ToLower(query)
	type ranked struct {
		idx    int
		exact  bool
		prefix bool
		score  int
	}
	var rs []ranked
	for i, c := range candidates {
		if !Match(query, c) {
			continue
		}
		lc := strings.ToLower(c)
		rs = append(rs, ranked{
			idx:    i,
			exact:  lc == q,
			prefix: strings.HasPrefix(lc, q),
			score:  scores[i],
		})
	}

	sort.SliceStable(rs, func(a, b int) bool {
		ra, rb := rs[a], rs[b]
		if ra.exact != rb.exact {
			return ra.exact
		}
		if ra.prefix != rb.prefix {
			return ra.prefix
		}
		if ra.score != rb.score {
			return ra.score > rb.score
		}
		ca, cb := candidates[ra.idx], candidates[rb.idx]
		if len(ca) != len(cb) {
			return len(ca) < len(cb)
		}
		return ca < cb
	})

	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.idx
	}
	return out
}
