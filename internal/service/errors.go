package service

import (
	"context"
	"errors"
	"strings"

	"github.com/raphaelgruber/clipvault/internal/llm"
	"github.com/raphaelgruber/clipvault/internal/media"
	"github.com/raphaelgruber/clipvault/internal/moderation"
)

// Lifecycle errors returned by VideoService.
var (
	ErrVideoNotFound     = errors.New("video not found")
	ErrVideoBusy         = errors.New("video is being processed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// User-safe failure messages.
const (
	MsgCorrupt           = "The video file is corrupt or incomplete. Please re-upload."
	MsgNoFrames          = "We could not read any frames from this video. Please re-upload it in a common format such as MP4."
	MsgReviewUnavailable = "Content review is temporarily unavailable. Please try again later."
	MsgToolUnavailable   = "Video processing is temporarily unavailable. Please try again later."
	MsgTimeout           = "Processing took too long and was stopped. Please try again with a shorter video."
	MsgGeneric           = "Something went wrong while processing your video. Please try again."
)

type failureRule struct {
	sentinels []error
	patterns  []string // lower-case substrings of the raw error
	message   string
}

// failureRules is checked in order; the first match wins.
var failureRules = []failureRule{
	{
		sentinels: []error{media.ErrCorruptMedia},
		patterns:  []string{"moov atom not found", "invalid data found", "end of file", "no such file"},
		message:   MsgCorrupt,
	},
	{
		sentinels: []error{media.ErrNoFramesExtracted, moderation.ErrNoFrames},
		message:   MsgNoFrames,
	},
	{
		sentinels: []error{moderation.ErrNoClassifiedFrames, llm.ErrClassifierUnavailable},
		patterns:  []string{"quota", "rate limit"},
		message:   MsgReviewUnavailable,
	},
	{
		sentinels: []error{media.ErrToolMissing},
		patterns:  []string{"executable file not found"},
		message:   MsgToolUnavailable,
	},
	{
		sentinels: []error{context.DeadlineExceeded},
		message:   MsgTimeout,
	},
}

// FailureMessage maps an internal error to text that is safe to show the uploader.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	raw := strings.ToLower(err.Error())
	for _, rule := range failureRules {
		for _, s := range rule.sentinels {
			if errors.Is(err, s) {
				return rule.message
			}
		}
		for _, p := range rule.patterns {
			if strings.Contains(raw, p) {
				return rule.message
			}
		}
	}
	return MsgGeneric
}

// frameErrorCode is the short label stored for an errored frame.
func frameErrorCode(err error) string {
	switch {
	case errors.Is(err, llm.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, llm.ErrMalformedOutput):
		return "malformed_output"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, llm.ErrClassifierUnavailable):
		return "unavailable"
	default:
		return "unreadable_frame"
	}
}
