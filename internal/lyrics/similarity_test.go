package lyrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1, s2   string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"kitten", "sitting", 3},
		{"晴天", "晴天了", 1},
	}

	for _, tt := range tests {
		t.Run(tt.s1+"_"+tt.s2, func(t *testing.T) {
			assert.Equal(t, tt.expected, levenshteinDistance([]rune(tt.s1), []rune(tt.s2)))
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input, expected string
	}{
		{"Hello World", "hello world"},
		{"The Beatles", "beatles"},
		{"Sigur Rós", "sigur ros"},
		{"AC/DC", "ac dc"},
		{"  Multiple   Spaces  ", "multiple spaces"},
		{"The, A, An", ""},
		{"ＡＢＣ", "abc"},
		{"晴天", "晴天"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalize(tt.input))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 100.0, similarity("", ""))
	assert.Equal(t, 0.0, similarity("song", ""))
	assert.Equal(t, 100.0, similarity("The Beatles", "beatles"))
	assert.InDelta(t, 75.0, similarity("abcd", "abce"), 0.01)
}

func TestScore(t *testing.T) {
	exact := Candidate{Title: "Song", Artist: "Band"}
	live := Candidate{Title: "Song (Live)", Artist: "Band"}
	other := Candidate{Title: "Another Tune", Artist: "Someone"}

	assert.InDelta(t, 100.0, Score(exact, "song", "band"), 0.001)
	assert.InDelta(t, 94.0, Score(live, "Song", "Band"), 0.001)
	assert.Less(t, Score(other, "Song", "Band"), Score(live, "Song", "Band"))

	// no artist in the query leaves the title as the whole score
	assert.Equal(t, 100.0, Score(Candidate{Title: "Song", Artist: "Anyone"}, "Song", ""))

	synced := exact
	synced.Synced = true
	assert.InDelta(t, 105.0, Score(synced, "Song", "Band"), 0.001)
}

func TestRank_PrefersCloserMatch(t *testing.T) {
	candidates := []Candidate{
		{Title: "Other Song", Source: "a"},
		{Title: "Song (Live)", Artist: "Band", Source: "b"},
		{Title: "Song", Artist: "Band", Source: "c"},
	}
	rank(candidates, "Song", "Band")
	assert.Equal(t, "c", candidates[0].Source)
	assert.Equal(t, "b", candidates[1].Source)
	assert.Equal(t, "a", candidates[2].Source)
}
