// Package ytdlp implements extract.Extractor on top of the yt-dlp command
// line program.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openmusicplayer/bilimusic/internal/extract"
	"github.com/openmusicplayer/bilimusic/internal/logger"
	"github.com/openmusicplayer/bilimusic/internal/metrics"
)

// Config holds configuration for the yt-dlp service
type Config struct {
	// YtdlpPath is the path to yt-dlp binary (default: "yt-dlp")
	YtdlpPath string
	// AudioFormat is the target container (default: "mp3")
	AudioFormat string
	// AudioQuality is passed to --audio-quality; "0" is best VBR
	AudioQuality string
	// SocketTimeout bounds every network read yt-dlp performs
	SocketTimeout time.Duration
	// CookiesFile is an optional Netscape cookie jar for members-only videos
	CookiesFile string
	// FfmpegPath is passed to --ffmpeg-location when set
	FfmpegPath string
	// Cache, when set, short-circuits repeated metadata lookups
	Cache MetadataCache
	// Metrics counts cache hits and misses; nil disables counting
	Metrics *metrics.Metrics
}

// MetadataCache stores metadata by URL
type MetadataCache interface {
	GetMetadata(ctx context.Context, url string) (*extract.Metadata, bool)
	SetMetadata(ctx context.Context, url string, m *extract.Metadata)
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		YtdlpPath:     "yt-dlp",
		AudioFormat:   "mp3",
		AudioQuality:  "0",
		SocketTimeout: 30 * time.Second,
	}
}

// Service wraps yt-dlp for audio downloads
type Service struct {
	cfg *Config
	log *logger.Logger
}

var _ extract.Extractor = (*Service)(nil)

// New creates a new yt-dlp service
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	def := DefaultConfig()
	if cfg.YtdlpPath == "" {
		cfg.YtdlpPath = def.YtdlpPath
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = def.AudioFormat
	}
	if cfg.AudioQuality == "" {
		cfg.AudioQuality = def.AudioQuality
	}
	if cfg.SocketTimeout <= 0 {
		cfg.SocketTimeout = def.SocketTimeout
	}

	// Verify yt-dlp is available
	if _, err := exec.LookPath(cfg.YtdlpPath); err != nil {
		return nil, ErrYtdlpNotFound
	}
	// yt-dlp wants a path, not a command name
	if cfg.FfmpegPath != "" && !strings.ContainsRune(cfg.FfmpegPath, filepath.Separator) {
		if abs, err := exec.LookPath(cfg.FfmpegPath); err == nil {
			cfg.FfmpegPath = abs
		} else {
			cfg.FfmpegPath = ""
		}
	}

	return &Service{cfg: cfg, log: logger.Default().WithComponent("ytdlp")}, nil
}

// Version returns the installed yt-dlp version
func (s *Service) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, s.cfg.YtdlpPath, "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (s *Service) commonArgs() []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--socket-timeout", strconv.Itoa(int(s.cfg.SocketTimeout.Seconds())),
	}
	if s.cfg.CookiesFile != "" {
		args = append(args, "--cookies", s.cfg.CookiesFile)
	}
	return args
}

// FetchMetadata retrieves metadata for a URL without downloading
func (s *Service) FetchMetadata(ctx context.Context, sourceURL string) (*extract.Metadata, error) {
	if s.cfg.Cache != nil {
		if m, ok := s.cfg.Cache.GetMetadata(ctx, sourceURL); ok {
			s.count("metadata_cache_hits")
			return m, nil
		}
		s.count("metadata_cache_misses")
	}

	args := append([]string{"--dump-json", "--skip-download"}, s.commonArgs()...)
	args = append(args, "--", sourceURL)

	cmd := exec.CommandContext(ctx, s.cfg.YtdlpPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, categorizeError(sourceURL, err, stderr.String())
	}

	var ytdlpOutput YtdlpOutput
	if err := json.Unmarshal(firstJSONLine(output), &ytdlpOutput); err != nil {
		return nil, extract.Permanent(extract.ReasonUnknown, &DownloadError{
			URL: sourceURL, Message: "failed to parse metadata", Err: err,
		})
	}

	m := ytdlpOutput.ToMetadata()
	if s.cfg.Cache != nil {
		s.cfg.Cache.SetMetadata(ctx, sourceURL, m)
	}
	return m, nil
}

func (s *Service) count(name string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncCounter(name)
	}
}

// firstJSONLine keeps only the first object when yt-dlp prints several
// (multi-part videos)
func firstJSONLine(out []byte) []byte {
	if i := bytes.IndexByte(out, '\n'); i >= 0 {
		return out[:i]
	}
	return out
}

// FetchAudio downloads and transcodes the audio of req.URL next to
// req.OutputPath. onProgress is called from the calling goroutine.
func (s *Service) FetchAudio(ctx context.Context, req extract.AudioRequest, onProgress extract.ProgressFunc) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stem := strings.TrimSuffix(req.OutputPath, filepath.Ext(req.OutputPath))
	outputTemplate := stem + ".%(ext)s"

	args := []string{
		"-f", "bestaudio/best",
		"--extract-audio",
		"--audio-format", s.cfg.AudioFormat,
		"--audio-quality", s.cfg.AudioQuality,
		"--output", outputTemplate,
		"--newline",
		"--progress",
		"--no-simulate",
		"--progress-template", downloadTemplate,
		"--progress-template", postprocessTemplate,
		"--print", pathTemplate,
	}
	if s.cfg.FfmpegPath != "" {
		args = append(args, "--ffmpeg-location", s.cfg.FfmpegPath)
	}
	args = append(args, s.commonArgs()...)
	args = append(args, "--", req.URL)

	cmd := exec.CommandContext(ctx, s.cfg.YtdlpPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", &DownloadError{URL: req.URL, Message: "failed to create stdout pipe", Err: err}
	}

	var stderrOutput lockedBuffer
	cmd.Stderr = &stderrOutput

	if err := cmd.Start(); err != nil {
		return "", extract.Permanent(extract.ReasonUnknown, &DownloadError{URL: req.URL, Message: "failed to start yt-dlp", Err: err})
	}

	var finalPath string
	var callbackErr error

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if callbackErr != nil {
			continue // drain so yt-dlp is not blocked on a full pipe
		}

		kind, progress, path := parseLine(scanner.Text())
		switch kind {
		case lineProgress:
			if onProgress != nil {
				if err := onProgress(progress); err != nil {
					callbackErr = err
					cancel()
				}
			}
		case linePath:
			finalPath = path
		}
	}

	waitErr := cmd.Wait()

	if callbackErr != nil {
		return "", callbackErr
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if waitErr != nil {
		return "", categorizeError(req.URL, waitErr, stderrOutput.String())
	}

	if finalPath == "" {
		finalPath = stem + "." + s.cfg.AudioFormat
	}

	s.log.Debug(ctx, "yt-dlp finished", map[string]interface{}{"url": req.URL, "path": finalPath})
	return finalPath, nil
}

// lockedBuffer is written by exec's stderr copier and read after Wait
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CheckAvailable reports whether the binary at path can be executed
func CheckAvailable(ctx context.Context, path string) error {
	if path == "" {
		path = "yt-dlp"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrYtdlpNotFound, path)
	}
	if err := exec.CommandContext(ctx, resolved, "--version").Run(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("yt-dlp is not runnable: %w", err)
	}
	return nil
}
