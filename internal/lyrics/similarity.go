package lyrics

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Candidate scoring weights. Without a query artist the title carries the
// whole score.
const (
	titleWeight  = 0.6
	artistWeight = 0.4
	syncedBonus  = 5.0

	// containedTitleScore is granted when the candidate title contains the
	// whole query title, e.g. "Song (Live)" for "Song"
	containedTitleScore = 90.0
)

var (
	noiseWords  = regexp.MustCompile(`\b(the|a|an|and|or|of|in|on|at|to|for)\b`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	spaces      = regexp.MustCompile(`\s+`)
)

// Score rates how well c answers a query for title and artist, roughly on a
// 0-100 scale. Synced lyrics get a small bonus.
func Score(c Candidate, title, artist string) float64 {
	t := similarity(title, c.Title)
	if t < containedTitleScore {
		if q, ct := normalize(title), normalize(c.Title); q != "" && strings.Contains(ct, q) {
			t = containedTitleScore
		}
	}

	score := t
	if strings.TrimSpace(artist) != "" {
		score = t*titleWeight + similarity(artist, c.Artist)*artistWeight
	}
	if c.Synced {
		score += syncedBonus
	}
	return score
}

// similarity is the normalised Levenshtein similarity of two strings, 0-100
func similarity(s1, s2 string) float64 {
	n1, n2 := normalize(s1), normalize(s2)

	if n1 == "" && n2 == "" {
		return 100.0
	}
	if n1 == "" || n2 == "" {
		return 0.0
	}
	if n1 == n2 {
		return 100.0
	}

	r1, r2 := []rune(n1), []rune(n2)
	distance := levenshteinDistance(r1, r2)
	maxLen := max(len(r1), len(r2))

	return math.Max(0, (1.0-float64(distance)/float64(maxLen))*100)
}

// normalize folds width and case, strips diacritics, drops common English
// filler words and punctuation, and collapses whitespace
func normalize(s string) string {
	s = Fold(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}

	result = noiseWords.ReplaceAllString(result, " ")
	result = punctuation.ReplaceAllString(result, " ")
	result = spaces.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// levenshteinDistance calculates the edit distance between two rune slices
func levenshteinDistance(r1, r2 []rune) int {
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	// Two rows instead of the full matrix
	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}
