package core

import (
	"sync"

	"github.com/google/uuid"
)

type AudioEncodingFormat int

const (
	PCM  AudioEncodingFormat = iota // 16-bit little-endian linear PCM.
	ULAW                            // μ-law encoding format.
	ALAW                            // A-law encoding format.
	WAV                             // RIFF/WAVE container, payload described by its header.
	MP3                             // MPEG-1 Audio Layer III; not decodable by the local speaker.
)

// AudioChunk is a slice of decoded audio handed to an output sink.
type AudioChunk struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// DurationSeconds assumes 16-bit samples.
func (ac AudioChunk) DurationSeconds() float64 {
	if ac.SampleRate == 0 || ac.Channels == 0 {
		return 0.0
	}
	totalSamples := len(ac.Data) / (2 * ac.Channels)
	return float64(totalSamples) / float64(ac.SampleRate)
}

// AudioResource is a handle to a transient synthesized audio payload.
// The payload is dropped on Release; a second Release reports ErrResourceReleased.
type AudioResource struct {
	ID          string
	ContentType string
	SampleRate  int
	Channels    int
	Format      AudioEncodingFormat

	mu       sync.Mutex
	data     []byte
	released bool
	onFree   func()
}

// NewAudioResource wraps data in a new handle. onFree, if set, runs once on release.
func NewAudioResource(data []byte, contentType string, format AudioEncodingFormat, onFree func()) *AudioResource {
	return &AudioResource{
		ID:          uuid.New().String(),
		ContentType: contentType,
		Format:      format,
		data:        data,
		onFree:      onFree,
	}
}

// Data returns the payload, or nil once released.
func (r *AudioResource) Data() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

func (r *AudioResource) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *AudioResource) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// Release frees the payload.
func (r *AudioResource) Release() error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return ErrResourceReleased
	}
	r.released = true
	r.data = nil
	onFree := r.onFree
	r.mu.Unlock()

	if onFree != nil {
		onFree()
	}
	return nil
}
