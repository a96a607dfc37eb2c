package core

// ErrorEvent carries a user-facing failure. Category is the message to show.
type ErrorEvent struct {
	Source   string        // Component that surfaced the error, e.g. "chat" or "playback".
	Category ErrorCategory // Human-readable category from Category(err).
	Error    string        // Underlying error text, for logs and diagnostics.
}

func (e *ErrorEvent) GetId() string {
	return "shared.error"
}

// NewErrorEvent classifies err for the notification surface.
func NewErrorEvent(source string, err error) *ErrorEvent {
	return &ErrorEvent{Source: source, Category: Category(err), Error: err.Error()}
}
