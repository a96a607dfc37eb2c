package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"voicechat/core"
	"voicechat/events/credential"
	"voicechat/store"
)

type Validity string

const (
	ValidityUnknown Validity = "unknown"
	ValidityValid   Validity = "valid"
	ValidityInvalid Validity = "invalid"
)

// Gate holds the API credential and decides locally whether chat may proceed.
// It never talks to the network; a remote rejection surfaces later as core.ErrUnauthorized.
type Gate struct {
	mu       sync.RWMutex
	value    string
	validity Validity

	pattern  *regexp.Regexp
	key      string
	kv       store.KV
	notifier core.Notifier
	logger   *core.Logger
}

// NewGate compiles config.Pattern. A nil kv keeps the credential in memory only.
func NewGate(kv store.KV, config CredentialConfig, notifier core.Notifier) (*Gate, error) {
	def := DefaultConfig()
	if config.Pattern == "" {
		config.Pattern = def.Pattern
	}
	if config.StoreKey == "" {
		config.StoreKey = def.StoreKey
	}
	pattern, err := regexp.Compile(config.Pattern)
	if err != nil {
		return nil, fmt.Errorf("credential: compile pattern: %w", err)
	}
	if kv == nil {
		kv = store.NewMemoryKV()
	}
	if notifier == nil {
		notifier = core.NopNotifier{}
	}
	return &Gate{
		validity: ValidityUnknown,
		pattern:  pattern,
		key:      config.StoreKey,
		kv:       kv,
		notifier: notifier,
		logger:   core.GetLogger().With(map[string]any{"component": "credential"}),
	}, nil
}

func (g *Gate) classify(value string) Validity {
	switch {
	case value == "":
		return ValidityUnknown
	case g.pattern.MatchString(value):
		return ValidityValid
	default:
		return ValidityInvalid
	}
}

// Load reads the persisted credential. A missing entry leaves the gate unknown.
func (g *Gate) Load(ctx context.Context) error {
	value, err := g.kv.Get(ctx, g.key)
	if errors.Is(err, store.ErrNotFound) {
		value, err = "", nil
	}
	if err != nil {
		return fmt.Errorf("credential: load: %w", err)
	}

	g.mu.Lock()
	g.value = strings.TrimSpace(value)
	g.validity = g.classify(g.value)
	validity := g.validity
	g.mu.Unlock()

	g.logger.With(map[string]any{"validity": validity, "fingerprint": Fingerprint(value)}).Debug("credential loaded")
	return nil
}

// SetCredential stores value (trimmed), recomputes validity and persists it.
// An invalid shape is not an error; only persistence failures are.
func (g *Gate) SetCredential(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)

	var err error
	if value == "" {
		err = g.kv.Delete(ctx, g.key)
	} else {
		err = g.kv.Set(ctx, g.key, value)
	}
	if err != nil {
		return fmt.Errorf("credential: persist: %w", err)
	}

	g.mu.Lock()
	g.value = value
	g.validity = g.classify(value)
	validity := g.validity
	g.mu.Unlock()

	fp := Fingerprint(value)
	g.logger.With(map[string]any{"validity": validity, "fingerprint": fp}).Info("credential changed")
	g.notifier.Notify(&credential.CredentialChangedEvent{Validity: string(validity), Fingerprint: fp})
	return nil
}

// IsReady reports whether the credential passed the local shape check.
func (g *Gate) IsReady() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.validity == ValidityValid
}

func (g *Gate) Value() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

func (g *Gate) Validity() Validity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.validity
}

// Masked returns a display-safe form of the credential.
func (g *Gate) Masked() string {
	return Fingerprint(g.Value())
}

// Fingerprint identifies a secret in logs without revealing it.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(secret))
	prefix := secret
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return prefix + "…" + hex.EncodeToString(sum[:4])
}
