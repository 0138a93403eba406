package extract

import (
	"regexp"
	"strings"
)

var separators = []string{" - ", " — ", " – ", " | ", "｜"}

var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*\(Official.*?\)`),
	regexp.MustCompile(`(?i)\s*\(Lyric.*?\)`),
	regexp.MustCompile(`(?i)\s*\(Audio.*?\)`),
	regexp.MustCompile(`(?i)\s*\(Music Video.*?\)`),
	regexp.MustCompile(`(?i)\s*\[Official.*?\]`),
	regexp.MustCompile(`(?i)\s*\[(HD|HQ|4K|Hi-Res|Lyrics)\]`),
	regexp.MustCompile(`\s*【(MV|PV|官方MV|中字|高音质|无损)】`),
	regexp.MustCompile(`\s*[（(](官方|完整版|现场版|伴奏|纯音乐)[)）]`),
}

// ParseArtistTrack extracts artist and track from a title such as
// "Artist - Track". Titles without a separator use the uploader as the
// artist.
func ParseArtistTrack(title, uploader string) (artist, track string) {
	for _, sep := range separators {
		if idx := strings.Index(title, sep); idx > 0 {
			artist = strings.TrimSpace(title[:idx])
			track = CleanTrackName(title[idx+len(sep):])
			if artist != "" && track != "" {
				return artist, track
			}
		}
	}

	return uploader, CleanTrackName(title)
}

// CleanTrackName removes decorations like "(Official Video)" or "【MV】"
func CleanTrackName(track string) string {
	result := track
	for _, re := range noisePatterns {
		result = re.ReplaceAllString(result, "")
	}
	result = strings.TrimSpace(result)
	if result == "" {
		return strings.TrimSpace(track)
	}
	return result
}
