package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmusicplayer/bilimusic/internal/tags"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return lib
}

func TestScan(t *testing.T) {
	lib := newLibrary(t)
	writeFile(t, filepath.Join(lib.Root, "b.mp3"), "audio")
	writeFile(t, filepath.Join(lib.Root, "b.lrc"), "[00:00.00]x")
	writeFile(t, filepath.Join(lib.Root, "sub", "a.m4a"), "audio")
	writeFile(t, filepath.Join(lib.Root, "notes.txt"), "nope")

	require.NoError(t, lib.Tags.Write(filepath.Join(lib.Root, "b.mp3"), tags.Tags{Artist: "Band"}))

	tracks, err := lib.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	assert.Equal(t, "b", tracks[0].Title)
	assert.Equal(t, "Band", tracks[0].Artist)
	assert.True(t, tracks[0].HasLyrics)

	// m4a tags are unreadable, so placeholders are used
	assert.Equal(t, filepath.Join(lib.Root, "sub", "a.m4a"), tracks[1].Path)
	assert.Equal(t, "a", tracks[1].Title)
	assert.Equal(t, UnknownArtist, tracks[1].Artist)
	assert.Equal(t, UnknownGenre, tracks[1].Genre)
	assert.False(t, tracks[1].HasLyrics)
	assert.EqualValues(t, 5, tracks[1].Size)
}

func TestRename_CarriesLyrics(t *testing.T) {
	lib := newLibrary(t)
	writeFile(t, filepath.Join(lib.Root, "old.mp3"), "audio")
	writeFile(t, filepath.Join(lib.Root, "old.lrc"), "lyrics")

	dst, err := lib.Rename("old.mp3", "new: name")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(lib.Root, "new name.mp3"), dst)
	assert.FileExists(t, dst)
	assert.FileExists(t, filepath.Join(lib.Root, "new name.lrc"))
	assert.NoFileExists(t, filepath.Join(lib.Root, "old.mp3"))
	assert.NoFileExists(t, filepath.Join(lib.Root, "old.lrc"))
}

func TestRename_RefusesOverwrite(t *testing.T) {
	lib := newLibrary(t)
	writeFile(t, filepath.Join(lib.Root, "a.mp3"), "a")
	writeFile(t, filepath.Join(lib.Root, "b.mp3"), "b")

	_, err := lib.Rename("a.mp3", "b.mp3")
	assert.ErrorIs(t, err, ErrExists)
}

func TestMove(t *testing.T) {
	lib := newLibrary(t)
	writeFile(t, filepath.Join(lib.Root, "song.mp3"), "audio")
	writeFile(t, filepath.Join(lib.Root, "song.lrc"), "lyrics")

	dst, err := lib.Move(filepath.Join(lib.Root, "song.mp3"), "archive/2024")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(lib.Root, "archive", "2024", "song.mp3"), dst)
	assert.FileExists(t, filepath.Join(lib.Root, "archive", "2024", "song.lrc"))
	assert.NoFileExists(t, filepath.Join(lib.Root, "song.mp3"))
}

func TestDelete(t *testing.T) {
	lib := newLibrary(t)
	writeFile(t, filepath.Join(lib.Root, "song.mp3"), "audio")
	writeFile(t, filepath.Join(lib.Root, "song.lrc"), "lyrics")

	require.NoError(t, lib.Delete("song.mp3"))
	assert.NoFileExists(t, filepath.Join(lib.Root, "song.mp3"))
	assert.NoFileExists(t, filepath.Join(lib.Root, "song.lrc"))

	assert.ErrorIs(t, lib.Delete("song.mp3"), ErrNotFound)
}

func TestPathsMustStayInsideLibrary(t *testing.T) {
	lib := newLibrary(t)
	outside := filepath.Join(t.TempDir(), "x.mp3")
	writeFile(t, outside, "audio")

	assert.ErrorIs(t, lib.Delete(outside), ErrOutsideLibrary)
	assert.ErrorIs(t, lib.Delete("../x.mp3"), ErrOutsideLibrary)

	writeFile(t, filepath.Join(lib.Root, "in.mp3"), "audio")
	_, err := lib.Move("in.mp3", "../elsewhere")
	assert.ErrorIs(t, err, ErrOutsideLibrary)

	writeFile(t, filepath.Join(lib.Root, "readme.txt"), "text")
	assert.ErrorIs(t, lib.Delete("readme.txt"), ErrNotAudio)
}

func TestUpdateTags(t *testing.T) {
	lib := newLibrary(t)
	writeFile(t, filepath.Join(lib.Root, "song.mp3"), "audio")

	track, err := lib.UpdateTags("song.mp3", tags.Tags{Title: "Song", Genre: "rock"})
	require.NoError(t, err)
	assert.Equal(t, "Song", track.Title)
	assert.Equal(t, "rock", track.Genre)
	assert.Equal(t, "", track.Artist)
}

func TestIsAudioFile(t *testing.T) {
	assert.True(t, IsAudioFile("a.MP3"))
	assert.True(t, IsAudioFile("/x/y.flac"))
	assert.False(t, IsAudioFile("a.lrc"))
	assert.False(t, IsAudioFile("mp3"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00", FormatDuration(0))
	assert.Equal(t, "03:20", FormatDuration(200))
	assert.Equal(t, "61:01", FormatDuration(3661))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KB", FormatFileSize(1536))
	assert.Equal(t, "3.0 MB", FormatFileSize(3*1024*1024))
	assert.Equal(t, "2.0 GB", FormatFileSize(2*1024*1024*1024))
}
