package errors

import (
	"context"
	stderrors "errors"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/openmusicplayer/bilimusic/internal/extract"
)

// User-facing messages carried by failed download jobs
const (
	MsgInvalidURL    = "unsupported or malformed link"
	MsgTransient     = "network error or timeout, retries exhausted"
	MsgRemoved       = "the video has been removed"
	MsgPrivate       = "the video is private"
	MsgLoginRequired = "the video requires a logged-in account"
	MsgUnavailable   = "the video is unavailable"
	MsgEmptyResult   = "no audio was produced"
	MsgFilesystem    = "could not write to the destination folder"
	MsgDiskFull      = "not enough disk space"
)

// ErrInvalidURL is returned for links that fail validation
var ErrInvalidURL = stderrors.New("invalid url")

func InvalidURL() *AppError {
	return New(CodeInvalidURL, MsgInvalidURL, CategoryClient, http.StatusBadRequest)
}

func TransientExtraction() *AppError {
	return New(CodeTransientExtraction, MsgTransient, CategoryExternal, http.StatusBadGateway)
}

func PermanentExtraction(reason extract.Reason) *AppError {
	e := New(CodePermanentExtraction, PermanentMessage(reason), CategoryExternal, http.StatusUnprocessableEntity)
	e.Details = map[string]any{"reason": string(reason)}
	return e
}

func EmptyResult() *AppError {
	return New(CodeEmptyResult, MsgEmptyResult, CategoryExternal, http.StatusBadGateway)
}

func FilesystemError(message string) *AppError {
	return New(CodeFilesystemError, message, CategoryServer, http.StatusInternalServerError)
}

// PermanentMessage maps a permanent failure reason to its message
func PermanentMessage(reason extract.Reason) string {
	switch reason {
	case extract.ReasonRemoved:
		return MsgRemoved
	case extract.ReasonPrivate:
		return MsgPrivate
	case extract.ReasonLoginRequired:
		return MsgLoginRequired
	default:
		return MsgUnavailable
	}
}

// Classify translates any error raised while running a download job into
// the job error taxonomy. An *AppError anywhere in the chain is returned
// as is; anything else is wrapped as the cause of a new AppError.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	if stderrors.Is(err, ErrInvalidURL) {
		return InvalidURL().WithCause(err)
	}

	if pe, ok := extract.AsPermanent(err); ok {
		return PermanentExtraction(pe.Reason).WithCause(err)
	}

	if extract.IsTransient(err) {
		return TransientExtraction().WithCause(err)
	}

	if stderrors.Is(err, extract.ErrEmptyResult) {
		return EmptyResult().WithCause(err)
	}

	if stderrors.Is(err, syscall.ENOSPC) {
		return FilesystemError(MsgDiskFull).WithCause(err)
	}

	var pathErr *fs.PathError
	if stderrors.As(err, &pathErr) {
		return FilesystemError(MsgFilesystem).WithCause(err)
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return TransientExtraction().WithCause(err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return TransientExtraction().WithCause(err)
	}

	if matchesRetryablePattern(err) {
		return TransientExtraction().WithCause(err)
	}

	return PermanentExtraction(extract.ReasonUnknown).WithCause(err)
}

// Message returns the user-facing message for err after classification
func Message(err error) string {
	if appErr := Classify(err); appErr != nil {
		return appErr.Message
	}
	return ""
}

func matchesRetryablePattern(err error) bool {
	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
