package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategory(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCategory
	}{
		{nil, CategoryNone},
		{fmt.Errorf("chat: send: %w", ErrNotReady), CategoryCredential},
		{ErrEmptyInput, CategoryInput},
		{ErrInvalidSequence, CategoryConversation},
		{fmt.Errorf("%w: %w", ErrServiceError, ErrUnauthorized), CategoryAuth},
		{ErrRateLimited, CategoryRateLimit},
		{fmt.Errorf("x: %w", context.DeadlineExceeded), CategoryTimeout},
		{ErrServiceError, CategoryService},
		{ErrTextTooLong, CategorySpeechText},
		{ErrSynthesisUnavailable, CategorySpeech},
		{ErrResourceReleased, CategoryAudio},
		{ErrSuperseded, CategoryInterrupted},
		{context.Canceled, CategoryInterrupted},
		{errors.New("mystery"), CategoryUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Category(tc.err), "%v", tc.err)
	}
}

func TestIsInterruption(t *testing.T) {
	assert.True(t, IsInterruption(fmt.Errorf("playback: %w", ErrStopped)))
	assert.False(t, IsInterruption(ErrPlaybackFailed))
	assert.False(t, IsInterruption(nil))
}

func TestErrorEvent(t *testing.T) {
	e := NewErrorEvent("chat", fmt.Errorf("chat: %w", ErrRateLimited))
	assert.Equal(t, "shared.error", e.GetId())
	assert.Equal(t, CategoryRateLimit, e.Category)
	assert.Equal(t, "chat: rate limited", e.Error)
}
