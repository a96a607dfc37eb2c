package core

import (
	"context"
	"errors"
)

// Input validation.
var (
	ErrNotReady        = errors.New("credential not ready")
	ErrEmptyInput      = errors.New("empty input")
	ErrInvalidSequence = errors.New("invalid transcript sequence")
)

// Remote chat endpoint.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrServiceError = errors.New("chat service error")
	ErrTimeout      = errors.New("request timed out")
)

// Remote synthesis endpoint and audio engine.
var (
	ErrSynthesisUnavailable = errors.New("speech synthesis unavailable")
	ErrEmptyText            = errors.New("empty text")
	ErrTextTooLong          = errors.New("text too long for synthesis")
	ErrPlaybackFailed       = errors.New("audio playback failed")
)

// Lifecycle outcomes. These are never surfaced to the user as failures.
var (
	ErrSuperseded       = errors.New("request superseded by a newer one")
	ErrCancelled        = errors.New("request cancelled")
	ErrStopped          = errors.New("playback stopped")
	ErrResourceReleased = errors.New("audio resource already released")
)

// ErrorCategory is the user-facing classification of an error.
type ErrorCategory string

const (
	CategoryNone         ErrorCategory = ""
	CategoryCredential   ErrorCategory = "Please enter a valid API key to use the chat."
	CategoryInput        ErrorCategory = "Please type a message first."
	CategoryConversation ErrorCategory = "The conversation is busy; wait for the current reply."
	CategoryAuth         ErrorCategory = "The API key was rejected by the chat service."
	CategoryRateLimit    ErrorCategory = "Too many requests. Please wait a moment and try again."
	CategoryService      ErrorCategory = "Failed to send message. Please try again."
	CategoryTimeout      ErrorCategory = "The assistant took too long to answer. Please try again."
	CategorySpeech       ErrorCategory = "Failed to generate or play speech."
	CategorySpeechText   ErrorCategory = "There is nothing to speak in this message."
	CategoryAudio        ErrorCategory = "Failed to play audio. Please try again."
	CategoryInterrupted  ErrorCategory = "Interrupted."
	CategoryUnknown      ErrorCategory = "Something went wrong."
)

// Category maps every error to exactly one user-facing category.
func Category(err error) ErrorCategory {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, ErrNotReady):
		return CategoryCredential
	case errors.Is(err, ErrEmptyInput):
		return CategoryInput
	case errors.Is(err, ErrInvalidSequence):
		return CategoryConversation
	case errors.Is(err, ErrUnauthorized):
		return CategoryAuth
	case errors.Is(err, ErrRateLimited):
		return CategoryRateLimit
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, ErrServiceError):
		return CategoryService
	case errors.Is(err, ErrEmptyText), errors.Is(err, ErrTextTooLong):
		return CategorySpeechText
	case errors.Is(err, ErrSynthesisUnavailable):
		return CategorySpeech
	case errors.Is(err, ErrPlaybackFailed), errors.Is(err, ErrResourceReleased):
		return CategoryAudio
	case errors.Is(err, ErrSuperseded), errors.Is(err, ErrCancelled), errors.Is(err, ErrStopped),
		errors.Is(err, context.Canceled):
		return CategoryInterrupted
	default:
		return CategoryUnknown
	}
}

// IsInterruption reports whether err only records that newer user intent won.
func IsInterruption(err error) bool {
	return Category(err) == CategoryInterrupted
}
