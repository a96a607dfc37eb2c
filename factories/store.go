package factories

import (
	"fmt"

	"voicechat/store"
)

// StoreConfig selects where the credential is persisted.
type StoreConfig struct {
	// Driver is "sqlite", "file" or "memory".
	Driver string `json:"driver" toml:"driver"`
	// Path is the database or JSON file location; unused for "memory".
	Path string `json:"path,omitempty" toml:"path"`
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Driver: "sqlite",
		Path:   "voicechat.db",
	}
}

// BuildStore opens the configured key-value store.
func BuildStore(config StoreConfig) (store.KV, error) {
	switch config.Driver {
	case "", "sqlite":
		path := config.Path
		if path == "" {
			path = DefaultStoreConfig().Path
		}
		return store.NewSQLite(path)
	case "file":
		if config.Path == "" {
			return nil, fmt.Errorf("store: file driver needs a path")
		}
		return store.NewFileKV(config.Path)
	case "memory":
		return store.NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", config.Driver)
	}
}
