package ytdlp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmusicplayer/bilimusic/internal/extract"
	"github.com/openmusicplayer/bilimusic/internal/metrics"
)

const fakeYtdlp = `#!/bin/sh
if [ -n "$FAKE_YTDLP_ARGS" ]; then printf '%s\n' "$@" > "$FAKE_YTDLP_ARGS"; fi
mode=audio
out=""
url=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  if [ "$a" = "--dump-json" ]; then mode=meta; fi
  prev="$a"
  url="$a"
done
case "$url" in
  *fail-private*) echo "ERROR: [BiliBili] BV1: This video is private" >&2; exit 1;;
  *fail-net*) echo "ERROR: Unable to download webpage: <urlopen error timed out>" >&2; exit 1;;
esac
if [ "$mode" = meta ]; then
  echo '{"id":"BV1xx411c7mD","title":"Artist - Song (Official Video)","uploader":"up","duration":199.6}'
  exit 0
fi
file=$(echo "$out" | sed 's/%(ext)s/mp3/')
echo "[BiliBili] Extracting URL"
echo "bilimusic-dl:500:1000:NA"
case "$url" in
  *slow*) exec sleep 30;;
esac
echo "bilimusic-dl:1000:NA:1000"
echo "[ExtractAudio] Destination: $file"
printf 'audio' > "$file"
echo "bilimusic-path:$file"
`

func newFakeService(t *testing.T) *Service {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp is a shell script")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	bin := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(bin, []byte(fakeYtdlp), 0755))

	svc, err := New(&Config{YtdlpPath: bin})
	require.NoError(t, err)
	return svc
}

func TestNew_MissingBinary(t *testing.T) {
	_, err := New(&Config{YtdlpPath: filepath.Join(t.TempDir(), "nope")})
	assert.ErrorIs(t, err, ErrYtdlpNotFound)
}

func TestService_FetchMetadata(t *testing.T) {
	svc := newFakeService(t)

	m, err := svc.FetchMetadata(context.Background(), "https://www.bilibili.com/video/BV1xx411c7mD")
	require.NoError(t, err)

	assert.Equal(t, "BV1xx411c7mD", m.ID)
	assert.Equal(t, "Artist - Song (Official Video)", m.Title)
	assert.Equal(t, "up", m.Uploader)
	assert.Equal(t, 200, m.DurationSeconds)
	assert.Equal(t, "Artist", m.Artist)
	assert.Equal(t, "Song", m.Track)
}

type memoryCache struct {
	data map[string]*extract.Metadata
}

func (c *memoryCache) GetMetadata(ctx context.Context, url string) (*extract.Metadata, bool) {
	m, ok := c.data[url]
	return m, ok
}

func (c *memoryCache) SetMetadata(ctx context.Context, url string, m *extract.Metadata) {
	c.data[url] = m
}

func TestService_FetchMetadataUsesCache(t *testing.T) {
	svc := newFakeService(t)
	cache := &memoryCache{data: map[string]*extract.Metadata{}}
	svc.cfg.Cache = cache
	m := metrics.New()
	svc.cfg.Metrics = m

	url := "https://www.bilibili.com/video/BV1xx411c7mD"
	_, err := svc.FetchMetadata(context.Background(), url)
	require.NoError(t, err)
	require.Contains(t, cache.data, url)

	cache.data[url] = &extract.Metadata{Title: "cached"}
	got, err := svc.FetchMetadata(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Title)

	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `bilimusic_counter{name="metadata_cache_hits"} 1`)
	assert.Contains(t, rec.Body.String(), `bilimusic_counter{name="metadata_cache_misses"} 1`)
}

func TestService_FetchMetadataErrors(t *testing.T) {
	svc := newFakeService(t)

	_, err := svc.FetchMetadata(context.Background(), "https://b23.tv/fail-private")
	pe, ok := extract.AsPermanent(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, extract.ReasonPrivate, pe.Reason)

	_, err = svc.FetchMetadata(context.Background(), "https://b23.tv/fail-net")
	assert.True(t, extract.IsTransient(err), "got %v", err)
}

func TestService_FetchAudio(t *testing.T) {
	svc := newFakeService(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "My Song.mp3")

	var got []extract.Progress
	path, err := svc.FetchAudio(context.Background(), extract.AudioRequest{
		URL:        "https://b23.tv/abcDE",
		Directory:  dir,
		OutputPath: out,
	}, func(p extract.Progress) error {
		got = append(got, p)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, out, path)
	assert.FileExists(t, out)
	assert.Equal(t, []extract.Progress{
		{BytesDone: 500, BytesTotal: 1000, Phase: extract.PhaseDownloading},
		{BytesDone: 1000, BytesTotal: 1000, Phase: extract.PhaseDownloading},
		{Phase: extract.PhasePostprocessing},
	}, got)
}

func TestService_FetchAudioPassesFfmpegLocation(t *testing.T) {
	svc := newFakeService(t)
	argsFile := filepath.Join(t.TempDir(), "args")
	t.Setenv("FAKE_YTDLP_ARGS", argsFile)
	svc.cfg.FfmpegPath = "/opt/ffmpeg/bin/ffmpeg"

	dir := t.TempDir()
	_, err := svc.FetchAudio(context.Background(), extract.AudioRequest{
		URL:        "https://b23.tv/abcDE",
		Directory:  dir,
		OutputPath: filepath.Join(dir, "x.mp3"),
	}, func(p extract.Progress) error { return nil })
	require.NoError(t, err)

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	args := strings.Split(strings.TrimSpace(string(raw)), "\n")
	i := slices.Index(args, "--ffmpeg-location")
	require.GreaterOrEqual(t, i, 0, "args: %v", args)
	require.Less(t, i+1, len(args))
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", args[i+1])
}

func TestService_FetchAudioAbortedByCallback(t *testing.T) {
	svc := newFakeService(t)
	dir := t.TempDir()
	stop := errors.New("stop")

	_, err := svc.FetchAudio(context.Background(), extract.AudioRequest{
		URL:        "https://b23.tv/slow",
		Directory:  dir,
		OutputPath: filepath.Join(dir, "x.mp3"),
	}, func(p extract.Progress) error {
		return stop
	})

	assert.ErrorIs(t, err, stop)
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name      string
		stderr    string
		transient bool
		reason    extract.Reason
	}{
		{"private", "ERROR: This video is private", false, extract.ReasonPrivate},
		{"members only", "ERROR: [BiliBili] 该视频为大会员专享", false, extract.ReasonLoginRequired},
		{"login", "ERROR: Login required. Use --cookies", false, extract.ReasonLoginRequired},
		{"age gate", "ERROR: Sign in to confirm your age. Use --cookies-from-browser or --cookies", false, extract.ReasonLoginRequired},
		{"cookie advice on network error", "ERROR: Unable to download webpage: HTTP Error 503. Try passing --cookies", true, ""},
		{"cookie warning", "WARNING: cookies are expired\nERROR: Read timed out.", true, ""},
		{"removed", "ERROR: [BiliBili] BV1: 啊叻？视频不见了", false, extract.ReasonRemoved},
		{"http 404", "ERROR: HTTP Error 404: Not Found", false, extract.ReasonRemoved},
		{"unsupported", "ERROR: Unsupported URL: https://x", false, extract.ReasonUnknown},
		{"timeout", "ERROR: Read timed out.", true, ""},
		{"precondition failed", "ERROR: HTTP Error 412: Precondition Failed", true, ""},
		{"unrecognised", "ERROR: something odd", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := categorizeError("u", errors.New("exit status 1"), tt.stderr)
			if tt.transient {
				assert.True(t, extract.IsTransient(err), "got %v", err)
				return
			}
			pe, ok := extract.AsPermanent(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.reason, pe.Reason)
		})
	}
}

func TestParseLine(t *testing.T) {
	kind, p, _ := parseLine("bilimusic-dl:2048:NA:4096.5")
	assert.Equal(t, lineProgress, kind)
	assert.Equal(t, extract.Progress{BytesDone: 2048, BytesTotal: 4096, Phase: extract.PhaseDownloading}, p)

	kind, p, _ = parseLine("bilimusic-dl:NA:NA:NA")
	assert.Equal(t, lineProgress, kind)
	assert.Zero(t, p.BytesTotal)

	kind, p, _ = parseLine("bilimusic-pp:started")
	assert.Equal(t, lineProgress, kind)
	assert.Equal(t, extract.PhasePostprocessing, p.Phase)

	kind, _, path := parseLine("bilimusic-path:/music/a b.mp3")
	assert.Equal(t, linePath, kind)
	assert.Equal(t, "/music/a b.mp3", path)

	kind, _, _ = parseLine("[BiliBili] Extracting URL")
	assert.Equal(t, lineOther, kind)
}

func TestNew_FfmpegCommandNameResolvedOnPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp is a shell script")
	}
	bin := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(bin, []byte(fakeYtdlp), 0755))

	svc, err := New(&Config{YtdlpPath: bin, FfmpegPath: "no-such-ffmpeg-binary"})
	require.NoError(t, err)
	assert.Empty(t, svc.cfg.FfmpegPath, "unknown command name is dropped")

	svc, err = New(&Config{YtdlpPath: bin, FfmpegPath: "/opt/ffmpeg/bin/ffmpeg"})
	require.NoError(t, err)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", svc.cfg.FfmpegPath)
}
