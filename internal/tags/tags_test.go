package tags

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMP3 writes a file with no ID3 header; id3v2 prepends one on save
func fakeMP3(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not really audio frames"), 0644))
	return path
}

func TestID3Port_WriteThenRead(t *testing.T) {
	path := fakeMP3(t, "song.mp3")
	port := NewID3Port()

	require.NoError(t, port.Write(path, Tags{Title: "晴天", Artist: "周杰伦", Year: "2003"}))

	got, err := port.Read(path)
	require.NoError(t, err)
	assert.Equal(t, Tags{Title: "晴天", Artist: "周杰伦", Year: "2003"}, got)

	// Empty fields leave existing values alone
	require.NoError(t, port.Write(path, Tags{Album: "叶惠美"}))
	got, err = port.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "晴天", got.Title)
	assert.Equal(t, "叶惠美", got.Album)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "not really audio frames")
}

func TestID3Port_ReadUntagged(t *testing.T) {
	got, err := NewID3Port().Read(fakeMP3(t, "plain.MP3"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestID3Port_UnsupportedFormat(t *testing.T) {
	path := fakeMP3(t, "song.m4a")

	_, err := NewID3Port().Read(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.ErrorIs(t, NewID3Port().Write(path, Tags{Title: "x"}), ErrUnsupportedFormat)
}

func TestTags_Merge(t *testing.T) {
	base := Tags{Title: "a", Artist: "b", Genre: "pop"}
	got := base.Merge(Tags{Artist: "c", Year: "2020"})
	assert.Equal(t, Tags{Title: "a", Artist: "c", Genre: "pop", Year: "2020"}, got)
}
