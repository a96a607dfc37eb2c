package playback

// PlaybackStateChangedEvent reports every transition of the playback state machine.
type PlaybackStateChangedEvent struct {
	SessionID string
	From      string
	To        string
}

func (e *PlaybackStateChangedEvent) GetId() string {
	return "playback.state_changed"
}

// started and ended events
type PlaybackStartedEvent struct {
	SessionID string
	Duration  float64 // Seconds, when the format allows computing it.
}

func (e *PlaybackStartedEvent) GetId() string {
	return "playback.started"
}

type PlaybackEndedEvent struct {
	SessionID string
	Reason    string // "completed", "stopped" or "failed".
}

func (e *PlaybackEndedEvent) GetId() string {
	return "playback.ended"
}
