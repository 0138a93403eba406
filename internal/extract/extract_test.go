package extract

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadata_Normalize(t *testing.T) {
	m := (&Metadata{DurationSeconds: -5}).Normalize()

	assert.Equal(t, UnknownTitle, m.Title)
	assert.Equal(t, UnknownUploader, m.Uploader)
	assert.Equal(t, 0, m.DurationSeconds)
	assert.Equal(t, UnknownUploader, m.Artist)
	assert.Equal(t, UnknownTitle, m.Track)
}

func TestMetadata_NormalizeKeepsValues(t *testing.T) {
	m := (&Metadata{Title: " 周杰伦 - 晴天 ", Uploader: "someone", DurationSeconds: 269}).Normalize()

	assert.Equal(t, "周杰伦 - 晴天", m.Title)
	assert.Equal(t, "someone", m.Uploader)
	assert.Equal(t, 269, m.DurationSeconds)
	assert.Equal(t, "周杰伦", m.Artist)
	assert.Equal(t, "晴天", m.Track)
}

func TestParseArtistTrack(t *testing.T) {
	tests := []struct {
		title, uploader string
		artist, track   string
	}{
		{"Artist - Song (Official Video)", "up", "Artist", "Song"},
		{"Artist | Song [HD]", "up", "Artist", "Song"},
		{"【MV】Just a Title", "uploader", "uploader", "Just a Title"},
		{"晴天（官方）", "周杰伦", "周杰伦", "晴天"},
		{" - leading separator", "up", "up", "- leading separator"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			artist, track := ParseArtistTrack(tt.title, tt.uploader)
			assert.Equal(t, tt.artist, artist)
			assert.Equal(t, tt.track, track)
		})
	}
}

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	transient := fmt.Errorf("fetch: %w", Transient(base))
	assert.True(t, IsTransient(transient))
	assert.ErrorIs(t, transient, base)
	_, ok := AsPermanent(transient)
	assert.False(t, ok)

	permanent := fmt.Errorf("fetch: %w", Permanent(ReasonPrivate, base))
	pe, ok := AsPermanent(permanent)
	assert.True(t, ok)
	assert.Equal(t, ReasonPrivate, pe.Reason)
	assert.False(t, IsTransient(permanent))

	assert.False(t, IsTransient(ErrEmptyResult))
}
