package credential

type CredentialConfig struct {
	Pattern  string `json:"pattern" toml:"pattern"`     // Regular expression a credential must fully match to be considered valid.
	StoreKey string `json:"store_key" toml:"store_key"` // Key under which the credential is persisted.
}

// DefaultConfig accepts OpenAI-style secret keys.
func DefaultConfig() CredentialConfig {
	return CredentialConfig{
		Pattern:  `^sk-[A-Za-z0-9_-]{20,}$`,
		StoreKey: "api_key",
	}
}
