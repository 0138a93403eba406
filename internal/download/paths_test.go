package download

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathBroker_ConcurrentSameName(t *testing.T) {
	dir := t.TempDir()
	b := newPathBroker()

	const n = 10
	paths := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i] = b.reserve(NewJobID(), dir, "Same Song", "mp3")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, p := range paths {
		assert.False(t, seen[p], "duplicate reservation %s", p)
		seen[p] = true
	}
	assert.True(t, seen[filepath.Join(dir, "Same Song.mp3")])
	assert.True(t, seen[filepath.Join(dir, "Same Song_9.mp3")])
}

func TestPathBroker_ReleaseFreesName(t *testing.T) {
	dir := t.TempDir()
	b := newPathBroker()

	first := b.reserve(NewJobID(), dir, "a", "mp3")
	b.release(first)
	second := b.reserve(NewJobID(), dir, "a", "mp3")

	assert.Equal(t, first, second)
}

func TestPathBroker_SkipsFilesOnDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp3"), []byte("x"), 0644))

	got := newPathBroker().reserve(NewJobID(), dir, "a", "mp3")
	assert.Equal(t, filepath.Join(dir, "a_1.mp3"), got)
}

func TestLocateOutput(t *testing.T) {
	dir := t.TempDir()
	reserved := filepath.Join(dir, "song.mp3")

	_, ok := locateOutput(reserved, reserved)
	assert.False(t, ok, "nothing on disk")

	require.NoError(t, os.WriteFile(reserved, nil, 0644))
	_, ok = locateOutput(reserved, reserved)
	assert.False(t, ok, "empty file does not count")
	assert.NoFileExists(t, reserved, "empty file is removed")

	alt := filepath.Join(dir, "song.m4a")
	require.NoError(t, os.WriteFile(alt, []byte("audio"), 0644))
	got, ok := locateOutput(reserved, reserved)
	assert.True(t, ok)
	assert.Equal(t, alt, got)

	require.NoError(t, os.WriteFile(reserved, []byte("audio"), 0644))
	got, ok = locateOutput("", reserved)
	assert.True(t, ok)
	assert.Equal(t, reserved, got)
}

func TestPathBroker_FoldsCaseWhereFilesystemDoes(t *testing.T) {
	old := foldCase
	t.Cleanup(func() { foldCase = old })

	dir := t.TempDir()

	foldCase = true
	b := newPathBroker()
	first := b.reserve(NewJobID(), dir, "Song", "mp3")
	second := b.reserve(NewJobID(), dir, "SONG", "mp3")
	assert.Equal(t, filepath.Join(dir, "Song.mp3"), first)
	assert.Equal(t, filepath.Join(dir, "SONG_1.mp3"), second)
	assert.True(t, b.isReserved(filepath.Join(dir, "song.MP3")))

	b.release(filepath.Join(dir, "SONG.mp3"))
	assert.False(t, b.isReserved(first))

	foldCase = false
	b = newPathBroker()
	assert.Equal(t, filepath.Join(dir, "Song.mp3"), b.reserve(NewJobID(), dir, "Song", "mp3"))
	assert.Equal(t, filepath.Join(dir, "SONG.mp3"), b.reserve(NewJobID(), dir, "SONG", "mp3"))
}

func TestIsLeftover(t *testing.T) {
	tests := []struct {
		rest string
		want bool
	}{
		{".mp3", true},
		{".mp3.part", true},
		{".webm", true},
		{".f30280.m4a", true},
		{".f30280.m4a.part", true},
		{".f100026.mp4.part-Frag3", true},
		{".temp.mp3", false},
		{".mp3.temp", true},
		{".jpg", false},
		{".lrc", false},
		{".final.mp3", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isLeftover(tt.rest, ".mp3"), tt.rest)
	}
}
