package download

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/openmusicplayer/bilimusic/internal/naming"
)

// alternateExtensions are containers yt-dlp may leave behind when it could
// not transcode to mp3.
var alternateExtensions = []string{".m4a", ".webm", ".opus", ".aac", ".flac", ".ogg", ".wav"}

// leftoverSuffixes mark yt-dlp working files next to an output path.
var leftoverSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

// foldCase is set where the usual filesystem ignores case, so two titles
// differing only in case do not get the same file.
var foldCase = runtime.GOOS == "darwin" || runtime.GOOS == "windows"

func reservationKey(path string) string {
	if foldCase {
		return strings.ToLower(path)
	}
	return path
}

// pathBroker serialises name resolution per destination directory and keeps
// track of paths handed to jobs that have not written them yet.
type pathBroker struct {
	mu       sync.Mutex
	dirs     map[string]*sync.Mutex
	reserved map[string]JobID
}

func newPathBroker() *pathBroker {
	return &pathBroker{
		dirs:     make(map[string]*sync.Mutex),
		reserved: make(map[string]JobID),
	}
}

func (b *pathBroker) dirLock(dir string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.dirs[dir]
	if !ok {
		l = &sync.Mutex{}
		b.dirs[dir] = l
	}
	return l
}

func (b *pathBroker) isReserved(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.reserved[reservationKey(path)]
	return ok
}

// reserve resolves a free path for base.ext in dir and holds it for id
// until release is called.
func (b *pathBroker) reserve(id JobID, dir, base, ext string) string {
	dir = cleanDir(dir)
	l := b.dirLock(dir)
	l.Lock()
	defer l.Unlock()

	path := naming.ResolveFunc(dir, base, ext, func(p string) bool {
		return b.isReserved(p) || naming.Exists(p)
	})

	b.mu.Lock()
	b.reserved[reservationKey(path)] = id
	b.mu.Unlock()
	return path
}

func (b *pathBroker) release(path string) {
	if path == "" {
		return
	}
	b.mu.Lock()
	delete(b.reserved, reservationKey(path))
	b.mu.Unlock()
}

func cleanDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

// locateOutput finds the file an audio fetch produced. It prefers the path
// the extractor returned, then the reserved path, then the reserved path
// with each alternate container extension. Zero-byte candidates are
// removed and skipped.
func locateOutput(produced, reserved string) (string, bool) {
	candidates := []string{produced, reserved}
	stem := strings.TrimSuffix(reserved, filepath.Ext(reserved))
	for _, ext := range alternateExtensions {
		candidates = append(candidates, stem+ext)
	}

	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true

		info, err := os.Stat(c)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() == 0 {
			os.Remove(c)
			continue
		}
		return c, true
	}
	return "", false
}

// removeLeftovers deletes what an interrupted fetch left under the reserved
// stem: the output itself, fragments and intermediate containers. Files
// under the same stem that yt-dlp would not write are kept.
func removeLeftovers(reserved string) {
	if reserved == "" {
		return
	}
	dir := filepath.Dir(reserved)
	stem := strings.TrimSuffix(filepath.Base(reserved), filepath.Ext(reserved))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, stem+".") {
			continue
		}
		if isLeftover(strings.TrimPrefix(name, stem), filepath.Ext(reserved)) {
			os.Remove(filepath.Join(dir, name))
		}
	}
}

func isLeftover(rest, outExt string) bool {
	if rest == outExt || strings.Contains(rest, ".part-Frag") {
		return true
	}
	for _, suf := range leftoverSuffixes {
		if strings.HasSuffix(rest, suf) {
			return true
		}
	}
	for _, ext := range alternateExtensions {
		if rest == ext {
			return true
		}
	}
	// format-specific intermediates such as .f30280.m4a
	if strings.HasPrefix(rest, ".f") {
		if i := strings.Index(rest[2:], "."); i > 0 {
			id := rest[2 : 2+i]
			return strings.Trim(id, "0123456789") == ""
		}
	}
	return false
}
