package download

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openmusicplayer/bilimusic/internal/extract"
)

func TestProgressBand_KnownTotal(t *testing.T) {
	b := newProgressBand(PercentDownloadFloor, PercentDownloadCeil)

	tests := []struct {
		done, total int64
		want        int
		moved       bool
	}{
		{0, 100, 30, false},
		{50, 100, 62, true},
		{40, 100, 62, false}, // never backwards
		{100, 100, 95, true},
		{200, 100, 95, false},
	}

	for _, tt := range tests {
		got, moved := b.update(extract.Progress{BytesDone: tt.done, BytesTotal: tt.total})
		assert.Equal(t, tt.want, got, "done=%d", tt.done)
		assert.Equal(t, tt.moved, moved, "done=%d", tt.done)
	}
}

func TestProgressBand_UnknownTotal(t *testing.T) {
	b := newProgressBand(PercentDownloadFloor, PercentDownloadCeil)

	last := PercentDownloadFloor
	for i := 0; i < 200; i++ {
		got, _ := b.update(extract.Progress{BytesDone: int64(i * 1000)})
		assert.GreaterOrEqual(t, got, last)
		last = got
	}
	assert.Equal(t, PercentDownloadCeil-1, last)
}

func TestProgressBand_Reset(t *testing.T) {
	b := newProgressBand(PercentDownloadFloor, PercentDownloadCeil)
	b.update(extract.Progress{BytesDone: 90, BytesTotal: 100})

	b.reset()

	got, moved := b.update(extract.Progress{BytesDone: 10, BytesTotal: 100})
	assert.True(t, moved)
	assert.Equal(t, 36, got)
}
