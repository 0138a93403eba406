package ytdlp

import (
	"errors"
	"strings"

	"github.com/openmusicplayer/bilimusic/internal/extract"
)

var (
	// ErrYtdlpNotFound indicates yt-dlp is not installed
	ErrYtdlpNotFound = errors.New("yt-dlp not found in PATH")

	// ErrDownloadFailed indicates the download failed for an unrecognised reason
	ErrDownloadFailed = errors.New("download failed")
)

// DownloadError wraps an error with additional context
type DownloadError struct {
	URL     string
	Message string
	Stderr  string
	Err     error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// stderr fragments mapped to permanent failure reasons, checked in order
var permanentHints = []struct {
	reason extract.Reason
	hints  []string
}{
	{extract.ReasonPrivate, []string{
		"private video", "is private", "仅up主自己可见", "仅自己可见",
	}},
	{extract.ReasonLoginRequired, []string{
		"login required", "need to login", "sign in to confirm your age",
		"only available for registered users", "members-only", "premium member",
		"大会员", "需要登录", "登录后",
	}},
	{extract.ReasonRemoved, []string{
		"video unavailable", "this video is unavailable", "has been removed",
		"not exist", "404", "视频不见了", "稿件不可见", "已失效",
	}},
}

var transientHints = []string{
	"timed out", "timeout", "connection", "network", "temporary failure",
	"unable to download", "http error 5", "http error 412", "http error 429",
	"ssl", "eof", "name resolution", "reset by peer",
}

var unsupportedHints = []string{
	"unsupported url", "no suitable extractor", "is not a valid url",
}

// categorizeError converts a yt-dlp failure into the extraction error taxonomy
func categorizeError(sourceURL string, err error, stderr string) error {
	stderrLower := strings.ToLower(stderr)

	for _, group := range permanentHints {
		for _, hint := range group.hints {
			if strings.Contains(stderrLower, hint) {
				return extract.Permanent(group.reason, &DownloadError{
					URL: sourceURL, Message: string(group.reason), Stderr: stderr, Err: err,
				})
			}
		}
	}

	for _, hint := range unsupportedHints {
		if strings.Contains(stderrLower, hint) {
			return extract.Permanent(extract.ReasonUnknown, &DownloadError{
				URL: sourceURL, Message: "url not supported", Stderr: stderr, Err: err,
			})
		}
	}

	for _, hint := range transientHints {
		if strings.Contains(stderrLower, hint) {
			return extract.Transient(&DownloadError{
				URL: sourceURL, Message: "network error", Stderr: stderr, Err: err,
			})
		}
	}

	// Unrecognised failures are retried within the job's attempt bound
	return extract.Transient(&DownloadError{
		URL: sourceURL, Message: "download failed", Stderr: stderr, Err: errors.Join(ErrDownloadFailed, err),
	})
}
