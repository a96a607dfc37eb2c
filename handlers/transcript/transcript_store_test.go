package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat/core"
)

func TestStore_AppendRejectsUserWhilePending(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(core.NewUserMessage("Hello")))
	require.NoError(t, s.Append(core.NewPendingAssistantMessage()))

	err := s.Append(core.NewUserMessage("again"))
	assert.ErrorIs(t, err, core.ErrInvalidSequence)

	err = s.Append(core.NewPendingAssistantMessage())
	assert.ErrorIs(t, err, core.ErrInvalidSequence)

	assert.Equal(t, 2, s.Len())
}

func TestStore_AppendRejectsUnknownRole(t *testing.T) {
	s := NewStore()
	err := s.Append(core.Message{ID: "x", Role: "tool", Content: "hi"})
	assert.ErrorIs(t, err, core.ErrInvalidSequence)
	assert.Equal(t, 0, s.Len())
}

func TestStore_AppendRejectsAssistantWithoutStatus(t *testing.T) {
	s := NewStore()
	err := s.Append(core.Message{ID: "x", Role: core.MessageRoleAssistant, Content: "hi"})
	assert.ErrorIs(t, err, core.ErrInvalidSequence)
}

func TestStore_UpdatePending(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(core.NewUserMessage("Hello")))
	placeholder := core.NewPendingAssistantMessage()
	require.NoError(t, s.Append(placeholder))

	pending, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, placeholder.ID, pending.ID)

	err := s.UpdatePending(placeholder.ID, "", core.MessageStatusPending)
	assert.ErrorIs(t, err, core.ErrInvalidSequence, "pending is not a terminal target")

	err = s.UpdatePending("other", "Hi there", core.MessageStatusComplete)
	assert.ErrorIs(t, err, core.ErrInvalidSequence)

	require.NoError(t, s.UpdatePending(placeholder.ID, "Hi there", core.MessageStatusComplete))
	_, ok = s.Pending()
	assert.False(t, ok)

	err = s.UpdatePending(placeholder.ID, "again", core.MessageStatusFailed)
	assert.ErrorIs(t, err, core.ErrInvalidSequence, "a resolved message cannot be resolved twice")

	got, ok := s.Get(placeholder.ID)
	require.True(t, ok)
	assert.Equal(t, "Hi there", got.Content)
	assert.Equal(t, core.MessageStatusComplete, got.Status)

	// the next user turn is accepted once nothing is pending
	require.NoError(t, s.Append(core.NewUserMessage("next")))
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(core.NewUserMessage("Hello")))

	snap := s.Snapshot()
	snap[0].Content = "mutated"

	got := s.Snapshot()
	assert.Equal(t, "Hello", got[0].Content)
}

func TestStore_HistorySkipsUnfinishedReplies(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(core.NewUserMessage("one")))
	failed := core.NewPendingAssistantMessage()
	require.NoError(t, s.Append(failed))
	require.NoError(t, s.UpdatePending(failed.ID, "", core.MessageStatusFailed))

	require.NoError(t, s.Append(core.NewUserMessage("two")))
	ok := core.NewPendingAssistantMessage()
	require.NoError(t, s.Append(ok))
	require.NoError(t, s.UpdatePending(ok.ID, "reply", core.MessageStatusComplete))

	require.NoError(t, s.Append(core.NewUserMessage("three")))
	require.NoError(t, s.Append(core.NewPendingAssistantMessage()))

	assert.Equal(t, []core.ChatTurn{
		{Role: core.MessageRoleUser, Content: "one"},
		{Role: core.MessageRoleUser, Content: "two"},
		{Role: core.MessageRoleAssistant, Content: "reply"},
		{Role: core.MessageRoleUser, Content: "three"},
	}, s.History(0))

	assert.Equal(t, []core.ChatTurn{
		{Role: core.MessageRoleAssistant, Content: "reply"},
		{Role: core.MessageRoleUser, Content: "three"},
	}, s.History(2))
}

func TestStore_LastCompletedAssistant(t *testing.T) {
	s := NewStore()
	_, ok := s.LastCompletedAssistant()
	assert.False(t, ok)

	require.NoError(t, s.Append(core.NewUserMessage("Hello")))
	reply := core.NewPendingAssistantMessage()
	require.NoError(t, s.Append(reply))
	require.NoError(t, s.UpdatePending(reply.ID, "Hi there", core.MessageStatusComplete))

	require.NoError(t, s.Append(core.NewUserMessage("again")))
	failed := core.NewPendingAssistantMessage()
	require.NoError(t, s.Append(failed))
	require.NoError(t, s.UpdatePending(failed.ID, "", core.MessageStatusFailed))

	last, ok := s.LastCompletedAssistant()
	require.True(t, ok)
	assert.Equal(t, reply.ID, last.ID)
}

func TestStore_Reset(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(core.NewUserMessage("Hello")))
	require.NoError(t, s.Append(core.NewPendingAssistantMessage()))

	s.Reset()
	assert.Equal(t, 0, s.Len())
	_, ok := s.Pending()
	assert.False(t, ok)
	require.NoError(t, s.Append(core.NewUserMessage("fresh")))
}
