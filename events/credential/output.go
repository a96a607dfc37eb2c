package credential

type CredentialChangedEvent struct {
	Validity    string
	Fingerprint string // Masked form of the credential; never the secret.
}

func (e *CredentialChangedEvent) GetId() string {
	return "credential.changed"
}
