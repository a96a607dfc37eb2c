package core

import (
	"context"
	"errors"
	"sync"
)

// ErrNoBackupService is returned when a handler has no service left to fall back to.
var ErrNoBackupService = errors.New("no backup services available")

type IService interface {
	Init(
		ctx context.Context,
	) error
	Cleanup() error
	Reset() error
}

// BaseHandler owns a primary remote service plus an ordered list of backups.
// Handlers embed it and call Service() for every request.
type BaseHandler[S IService] struct {
	mu             sync.Mutex
	service        S
	BackupServices []S
	Ctx            context.Context
}

func NewBaseHandler[S IService](service S, backupServices []S) *BaseHandler[S] {
	return &BaseHandler[S]{
		service:        service,
		BackupServices: backupServices,
		Ctx:            context.Background(),
	}
}

// Initialize runs Init on the primary service.
func (h *BaseHandler[S]) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Ctx = ctx
	return h.service.Init(ctx)
}

// Service returns the service currently in use.
func (h *BaseHandler[S]) Service() S {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.service
}

// SwitchToBackupService promotes the next backup if failed is still current.
// Concurrent callers that observed the same failure switch only once.
func (h *BaseHandler[S]) SwitchToBackupService(failed S) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if any(h.service) != any(failed) {
		return nil
	}
	if len(h.BackupServices) == 0 {
		return ErrNoBackupService
	}
	next := h.BackupServices[0]
	if err := next.Init(h.Ctx); err != nil {
		return err
	}
	h.service.Cleanup()
	h.service = next
	h.BackupServices = h.BackupServices[1:]
	GetLogger().With(map[string]any{"backups_left": len(h.BackupServices)}).Warn("switched to backup service")
	return nil
}

func (h *BaseHandler[S]) Cleanup() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.service.Cleanup()
	for _, b := range h.BackupServices {
		if cerr := b.Cleanup(); err == nil {
			err = cerr
		}
	}
	return err
}

func (h *BaseHandler[S]) Reset() error {
	return h.Service().Reset()
}
