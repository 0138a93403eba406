// Package tags reads and writes the descriptive tags embedded in audio files.
package tags

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
)

// ErrUnsupportedFormat is returned for containers the port cannot edit
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Tags are the fields the library shows and edits
type Tags struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Genre  string `json:"genre,omitempty"`
	Year   string `json:"year,omitempty"`
}

// IsZero reports whether no field is set
func (t Tags) IsZero() bool {
	return t == Tags{}
}

// Merge returns t with every non-empty field of update applied
func (t Tags) Merge(update Tags) Tags {
	if update.Title != "" {
		t.Title = update.Title
	}
	if update.Artist != "" {
		t.Artist = update.Artist
	}
	if update.Album != "" {
		t.Album = update.Album
	}
	if update.Genre != "" {
		t.Genre = update.Genre
	}
	if update.Year != "" {
		t.Year = update.Year
	}
	return t
}

// Port reads and writes tags for a file on disk
type Port interface {
	Read(path string) (Tags, error)
	// Write replaces only the non-empty fields of t
	Write(path string, t Tags) error
}

// ID3Port edits ID3v2 tags of MP3 files
type ID3Port struct{}

var _ Port = ID3Port{}

func NewID3Port() ID3Port {
	return ID3Port{}
}

func supported(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mp3")
}

func (ID3Port) Read(path string) (Tags, error) {
	if !supported(path) {
		return Tags{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return Tags{}, fmt.Errorf("failed to open tags: %w", err)
	}
	defer tag.Close()

	return Tags{
		Title:  tag.Title(),
		Artist: tag.Artist(),
		Album:  tag.Album(),
		Genre:  tag.Genre(),
		Year:   tag.Year(),
	}, nil
}

func (ID3Port) Write(path string, t Tags) error {
	if !supported(path) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open tags: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if t.Title != "" {
		tag.SetTitle(t.Title)
	}
	if t.Artist != "" {
		tag.SetArtist(t.Artist)
	}
	if t.Album != "" {
		tag.SetAlbum(t.Album)
	}
	if t.Genre != "" {
		tag.SetGenre(t.Genre)
	}
	if t.Year != "" {
		tag.SetYear(t.Year)
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save tags: %w", err)
	}
	return nil
}
