package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	name    string
	initErr error
	inits   int
	cleaned int
}

func (s *stubService) Init(context.Context) error { s.inits++; return s.initErr }
func (s *stubService) Cleanup() error             { s.cleaned++; return nil }
func (s *stubService) Reset() error               { return nil }

func TestSwitchToBackupService(t *testing.T) {
	primary, backup := &stubService{name: "primary"}, &stubService{name: "backup"}
	h := NewBaseHandler[*stubService](primary, []*stubService{backup})
	require.NoError(t, h.Initialize(context.Background()))

	require.NoError(t, h.SwitchToBackupService(primary))
	assert.Same(t, backup, h.Service())
	assert.Equal(t, 1, primary.cleaned)
	assert.Equal(t, 1, backup.inits)

	// a second caller that saw the same failure does not switch again
	require.NoError(t, h.SwitchToBackupService(primary))
	assert.Same(t, backup, h.Service())

	assert.ErrorIs(t, h.SwitchToBackupService(backup), ErrNoBackupService)
}

func TestSwitchKeepsCurrentWhenBackupFailsInit(t *testing.T) {
	primary := &stubService{name: "primary"}
	backup := &stubService{name: "backup", initErr: errors.New("down")}
	h := NewBaseHandler[*stubService](primary, []*stubService{backup})

	assert.Error(t, h.SwitchToBackupService(primary))
	assert.Same(t, primary, h.Service())
	assert.Zero(t, primary.cleaned)
}
