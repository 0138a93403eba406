// Package naming turns video titles into safe, collision-free audio file
// paths.
package naming

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxBaseLength is the maximum number of characters kept from a title.
	MaxBaseLength = 100

	// Fallback is used when nothing usable is left of a title.
	Fallback = "untitled"

	illegalChars = `<>:"/\|?*`
)

// Sanitize strips characters that are illegal in file names on common
// filesystems, trims surrounding whitespace and dots, and truncates the
// result to MaxBaseLength characters.
func Sanitize(name string) string {
	name = norm.NFC.String(name)

	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) || strings.ContainsRune(illegalChars, r) {
			return -1
		}
		return r
	}, name)

	cleaned = trimEdges(cleaned)

	if utf8.RuneCountInString(cleaned) > MaxBaseLength {
		runes := []rune(cleaned)
		cleaned = trimEdges(string(runes[:MaxBaseLength]))
	}

	if cleaned == "" {
		return Fallback
	}
	return cleaned
}

func trimEdges(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.'
	})
}

// Resolve returns {dir}/{Sanitize(base)}.{ext}, appending _1, _2, ... to
// the base name until the path does not exist on disk.
//
// Two callers resolving the same name concurrently can observe the same
// free path; callers that need uniqueness across goroutines must serialise
// through a shared lock and reserve the result (see ResolveFunc).
func Resolve(dir, base, ext string) string {
	return ResolveFunc(dir, base, ext, Exists)
}

// ResolveFunc is Resolve with a caller-supplied occupancy check.
func ResolveFunc(dir, base, ext string, taken func(path string) bool) string {
	base = Sanitize(base)
	ext = strings.TrimPrefix(ext, ".")

	candidate := filepath.Join(dir, joinExt(base, ext))
	for n := 1; taken(candidate); n++ {
		candidate = filepath.Join(dir, joinExt(base+"_"+strconv.Itoa(n), ext))
	}
	return candidate
}

func joinExt(base, ext string) string {
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// Exists reports whether anything occupies path.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
