package tts

type TTSSynthesisStartedEvent struct {
	VoiceID    string
	TextLength int // Length of the normalized text in runes.
}

func (e *TTSSynthesisStartedEvent) GetId() string {
	return "tts.synthesis_started"
}

type TTSSynthesisCompletedEvent struct {
	ResourceID string
	Bytes      int
	Cached     bool // Served from the recent-synthesis cache.
}

func (e *TTSSynthesisCompletedEvent) GetId() string {
	return "tts.synthesis_completed"
}
