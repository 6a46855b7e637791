package fuzzy

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Document is a searchable message.
type Document struct {
	ID      string
	Subject string
	Sender  string
	Content string
}

// Match is a document that matched a query with its relevance.
type Match struct {
	ID    string
	Score float64
}

// LevenshteinDistance is the number of single-rune edits turning s1 into s2,
// compared after normalization.
func LevenshteinDistance(s1, s2 string) int {
	r1 := []rune(normalize(s1))
	r2 := []rune(normalize(s2))
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}

// threshold is the typo tolerance for a query of the given length.
func threshold(query string) int {
	n := len([]rune(query))
	switch {
	case n <= 3:
		return 0
	case n >= 8:
		return 2
	default:
		return 1
	}
}

// fieldScore rates how well query matches one field. weight scales the result.
func fieldScore(query, field string, weight float64) float64 {
	field = normalize(field)
	if field == "" {
		return 0
	}
	if strings.Contains(field, query) {
		score := weight
		for _, w := range strings.Fields(field) {
			if w == query {
				return score * 1.5
			}
		}
		return score
	}

	best := 0.0
	tol := threshold(query)
	for _, w := range strings.FieldsFunc(field, isSeparator) {
		if strings.HasPrefix(w, query) {
			best = max(best, weight*0.8)
			continue
		}
		if d := LevenshteinDistance(query, w); d <= tol {
			best = max(best, weight*(0.6-0.15*float64(d)))
		}
	}
	return best
}

// Score is the relevance of doc for query; zero means no match.
func Score(query string, doc Document) float64 {
	query = normalize(query)
	if query == "" {
		return 0
	}
	content := doc.Content
	if r := []rune(content); len(r) > 1000 {
		content = string(r[:1000])
	}
	return fieldScore(query, doc.Subject, 100) +
		fieldScore(query, doc.Sender, 80) +
		fieldScore(query, content, 40)
}

// Rank returns the matching documents, most relevant first.
func Rank(query string, docs []Document) []Match {
	var matches []Match
	for _, d := range docs {
		if s := Score(query, d); s > 0 {
			matches = append(matches, Match{ID: d.ID, Score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '@')
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalize lowercases, drops diacritics and collapses whitespace, so
// "Đặt  lịch" and "dat lich" compare equal.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "đ", "d")
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	return strings.Join(strings.Fields(s), " ")
}
