package ytdlp

import (
	"strconv"
	"strings"

	"github.com/openmusicplayer/bilimusic/internal/extract"
)

// Line prefixes produced by the --progress-template and --print flags
const (
	downloadLinePrefix    = "bilimusic-dl:"
	postprocessLinePrefix = "bilimusic-pp:"
	pathLinePrefix        = "bilimusic-path:"

	downloadTemplate    = "download:" + downloadLinePrefix + "%(progress.downloaded_bytes)s:%(progress.total_bytes)s:%(progress.total_bytes_estimate)s"
	postprocessTemplate = "postprocess:" + postprocessLinePrefix + "%(progress.status)s"
	pathTemplate        = "after_move:" + pathLinePrefix + "%(filepath)s"
)

// lineKind classifies one line of yt-dlp output
type lineKind int

const (
	lineOther lineKind = iota
	lineProgress
	linePath
)

// parseLine extracts progress or the final file path from a yt-dlp stdout line
func parseLine(line string) (lineKind, extract.Progress, string) {
	line = strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(line, downloadLinePrefix):
		fields := strings.Split(strings.TrimPrefix(line, downloadLinePrefix), ":")
		p := extract.Progress{Phase: extract.PhaseDownloading}
		if len(fields) > 0 {
			p.BytesDone = parseBytes(fields[0])
		}
		if len(fields) > 1 {
			p.BytesTotal = parseBytes(fields[1])
		}
		if p.BytesTotal == 0 && len(fields) > 2 {
			p.BytesTotal = parseBytes(fields[2])
		}
		return lineProgress, p, ""

	case strings.HasPrefix(line, postprocessLinePrefix),
		strings.HasPrefix(line, "[ExtractAudio]"),
		strings.HasPrefix(line, "[ffmpeg]"):
		return lineProgress, extract.Progress{Phase: extract.PhasePostprocessing}, ""

	case strings.HasPrefix(line, pathLinePrefix):
		return linePath, extract.Progress{}, strings.TrimPrefix(line, pathLinePrefix)
	}

	return lineOther, extract.Progress{}, ""
}

// parseBytes accepts integers, floats and yt-dlp's "NA" placeholder
func parseBytes(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" || s == "None" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return int64(f)
	}
	return 0
}
