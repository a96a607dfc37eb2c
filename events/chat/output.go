package chat

type ChatRequestStartedEvent struct {
	RequestID string // Identifier of the in-flight request.
	MessageID string // Pending assistant placeholder the reply will fill.
}

func (e *ChatRequestStartedEvent) GetId() string {
	return "chat.request_started"
}

type ChatResponseCompletedEvent struct {
	MessageID string
	FullText  string // The complete assistant reply.
}

func (e *ChatResponseCompletedEvent) GetId() string {
	return "chat.response_completed"
}

// ChatResponseFailedEvent is emitted when the current request fails. Superseded
// requests never produce one.
type ChatResponseFailedEvent struct {
	MessageID string
	Error     string
}

func (e *ChatResponseFailedEvent) GetId() string {
	return "chat.response_failed"
}

type ChatResetEvent struct{}

func (e *ChatResetEvent) GetId() string {
	return "chat.reset"
}
