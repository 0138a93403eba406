// Package library manages the audio files in the download directory: listing
// them with their tags and renaming, moving or deleting them together with
// their lyric sidecars.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/openmusicplayer/bilimusic/internal/logger"
	"github.com/openmusicplayer/bilimusic/internal/naming"
	"github.com/openmusicplayer/bilimusic/internal/tags"
)

const (
	UnknownArtist = "unknown artist"
	UnknownGenre  = "unknown genre"

	// LyricsExt is the extension of the lyric sidecar kept next to a track
	LyricsExt = ".lrc"
)

var (
	ErrNotAudio       = errors.New("not an audio file")
	ErrOutsideLibrary = errors.New("path is outside the library")
	ErrExists         = errors.New("destination already exists")
	ErrNotFound       = errors.New("file not found")
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
}

// IsAudioFile reports whether path has a known audio extension
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// Track is one audio file in the library
type Track struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Album     string `json:"album,omitempty"`
	Genre     string `json:"genre"`
	Year      string `json:"year,omitempty"`
	Size      int64  `json:"size"`
	HasLyrics bool   `json:"has_lyrics"`
}

// Library is rooted at the download directory. Every path argument may be
// absolute or relative to Root but must resolve inside it.
type Library struct {
	Root string
	Tags tags.Port
	log  *logger.Logger
}

func New(root string, port tags.Port) (*Library, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid library root: %w", err)
	}
	if port == nil {
		port = tags.NewID3Port()
	}
	return &Library{
		Root: abs,
		Tags: port,
		log:  logger.Default().WithComponent("library"),
	}, nil
}

// LyricsPath returns the sidecar path for an audio file
func LyricsPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + LyricsExt
}

// Resolve maps path into the library and rejects anything that escapes Root
func (l *Library) Resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.Root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(l.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideLibrary, path)
	}
	return path, nil
}

func (l *Library) resolveAudio(path string) (string, error) {
	resolved, err := l.Resolve(path)
	if err != nil {
		return "", err
	}
	if !IsAudioFile(resolved) {
		return "", fmt.Errorf("%w: %s", ErrNotAudio, filepath.Base(resolved))
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, resolved)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotAudio, resolved)
	}
	return resolved, nil
}

// Scan lists every audio file under Root, sorted by path
func (l *Library) Scan(ctx context.Context) ([]Track, error) {
	var tracks []Track

	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == l.Root {
				return err
			}
			l.log.Warn(ctx, "skipping unreadable entry", map[string]interface{}{"path": path, "error": err.Error()})
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !IsAudioFile(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		tracks = append(tracks, l.describe(path, info.Size()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Path < tracks[j].Path })
	return tracks, nil
}

// Get describes a single file
func (l *Library) Get(path string) (Track, error) {
	resolved, err := l.resolveAudio(path)
	if err != nil {
		return Track{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return Track{}, err
	}
	return l.describe(resolved, info.Size()), nil
}

func (l *Library) describe(path string, size int64) Track {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	t := Track{
		Path:      path,
		Name:      filepath.Base(path),
		Size:      size,
		HasLyrics: naming.Exists(LyricsPath(path)),
	}

	tg, err := l.Tags.Read(path)
	if err != nil {
		t.Title = stem
		t.Artist = UnknownArtist
		t.Genre = UnknownGenre
		return t
	}

	t.Title = tg.Title
	t.Artist = tg.Artist
	t.Album = tg.Album
	t.Genre = tg.Genre
	t.Year = tg.Year
	if t.Title == "" {
		t.Title = stem
	}
	return t
}

// Rename gives a track a new base name in the same directory. The original
// extension is kept when newName has no audio extension.
func (l *Library) Rename(path, newName string) (string, error) {
	src, err := l.resolveAudio(path)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(src)
	if IsAudioFile(newName) {
		ext = filepath.Ext(newName)
		newName = strings.TrimSuffix(newName, ext)
	}
	dst := filepath.Join(filepath.Dir(src), naming.Sanitize(newName)+ext)

	if err := l.relocate(src, dst); err != nil {
		return "", err
	}
	l.log.Info(context.Background(), "renamed track", map[string]interface{}{"from": src, "to": dst})
	return dst, nil
}

// Move puts a track into targetDir, creating it if needed
func (l *Library) Move(path, targetDir string) (string, error) {
	src, err := l.resolveAudio(path)
	if err != nil {
		return "", err
	}
	dir, err := l.Resolve(targetDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create target directory: %w", err)
	}

	dst := filepath.Join(dir, filepath.Base(src))
	if err := l.relocate(src, dst); err != nil {
		return "", err
	}
	l.log.Info(context.Background(), "moved track", map[string]interface{}{"from": src, "to": dst})
	return dst, nil
}

// relocate moves src to dst and carries the lyric sidecar along
func (l *Library) relocate(src, dst string) error {
	if src == dst {
		return nil
	}
	if naming.Exists(dst) {
		return fmt.Errorf("%w: %s", ErrExists, dst)
	}
	if err := moveFile(src, dst); err != nil {
		return err
	}

	srcLyrics, dstLyrics := LyricsPath(src), LyricsPath(dst)
	if naming.Exists(srcLyrics) && !naming.Exists(dstLyrics) {
		if err := moveFile(srcLyrics, dstLyrics); err != nil {
			l.log.Warn(context.Background(), "failed to move lyrics", map[string]interface{}{"path": srcLyrics, "error": err.Error()})
		}
	}
	return nil
}

// Delete removes a track and its lyric sidecar
func (l *Library) Delete(path string) error {
	src, err := l.resolveAudio(path)
	if err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return err
	}
	if err := os.Remove(LyricsPath(src)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.log.Warn(context.Background(), "failed to delete lyrics", map[string]interface{}{"path": src, "error": err.Error()})
	}
	l.log.Info(context.Background(), "deleted track", map[string]interface{}{"path": src})
	return nil
}

// UpdateTags writes the non-empty fields of t and returns the refreshed track
func (l *Library) UpdateTags(path string, t tags.Tags) (Track, error) {
	src, err := l.resolveAudio(path)
	if err != nil {
		return Track{}, err
	}
	if err := l.Tags.Write(src, t); err != nil {
		return Track{}, err
	}
	return l.Get(src)
}

// moveFile renames, falling back to copy and remove across filesystems
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

// FormatDuration renders seconds as MM:SS
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "00:00"
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// FormatFileSize renders a byte count with a binary unit
func FormatFileSize(size int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case size < kb:
		return fmt.Sprintf("%d B", size)
	case size < mb:
		return fmt.Sprintf("%.1f KB", float64(size)/kb)
	case size < gb:
		return fmt.Sprintf("%.1f MB", float64(size)/mb)
	default:
		return fmt.Sprintf("%.1f GB", float64(size)/gb)
	}
}
