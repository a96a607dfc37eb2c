package speaker

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"voicechat/core"
	"voicechat/utils/audio"
)

// Sink opens an output for 16-bit little-endian PCM in the given layout.
type Sink func(sampleRate, channels int) (io.WriteCloser, error)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// DiscardSink consumes audio at playback pace without producing sound.
func DiscardSink(int, int) (io.WriteCloser, error) {
	return nopWriteCloser{io.Discard}, nil
}

// CommandSink pipes audio into an external player. {rate} and {channels} in
// the command line are replaced with the stream layout, for example
// "aplay -q -t raw -f S16_LE -r {rate} -c {channels}".
func CommandSink(commandLine string) Sink {
	return func(sampleRate, channels int) (io.WriteCloser, error) {
		fields := strings.Fields(commandLine)
		if len(fields) == 0 {
			return nil, errors.New("speaker: empty player command")
		}
		for i, f := range fields {
			f = strings.ReplaceAll(f, "{rate}", strconv.Itoa(sampleRate))
			fields[i] = strings.ReplaceAll(f, "{channels}", strconv.Itoa(channels))
		}
		cmd := exec.Command(fields[0], fields[1:]...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("speaker: player stdin: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("speaker: start player: %w", err)
		}
		return &commandWriter{WriteCloser: stdin, cmd: cmd}, nil
	}
}

type commandWriter struct {
	io.WriteCloser
	cmd *exec.Cmd
}

func (c *commandWriter) Close() error {
	c.WriteCloser.Close()
	return c.cmd.Wait()
}

// Device plays decoded PCM into a Sink in real time, one frame per tick, so
// that Stop takes effect within a frame.
type Device struct {
	sink  Sink
	frame time.Duration

	mu      sync.Mutex
	chunk   core.AudioChunk
	loaded  bool
	playing chan struct{} // closed by Stop
}

func NewDevice(sink Sink, frame time.Duration) *Device {
	if sink == nil {
		sink = DiscardSink
	}
	if frame <= 0 {
		frame = 20 * time.Millisecond
	}
	return &Device{sink: sink, frame: frame}
}

// Load decodes res. The device keeps the decoded samples, not the resource.
func (d *Device) Load(res *core.AudioResource) error {
	chunk, err := audio.DecodeResource(res)
	if err != nil {
		return fmt.Errorf("speaker: load: %w", err)
	}
	if chunk.SampleRate <= 0 {
		return errors.New("speaker: load: unknown sample rate")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.chunk = chunk
	d.loaded = true
	return nil
}

func (d *Device) Play() (<-chan error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return nil, errors.New("speaker: play: nothing loaded")
	}
	d.stopLocked()

	w, err := d.sink(d.chunk.SampleRate, d.chunk.Channels)
	if err != nil {
		return nil, err
	}
	stop := make(chan struct{})
	d.playing = stop
	end := make(chan error, 1)
	go d.run(w, d.chunk, stop, end)
	return end, nil
}

func (d *Device) run(w io.WriteCloser, chunk core.AudioChunk, stop <-chan struct{}, end chan<- error) {
	frameBytes := int(d.frame.Seconds()*float64(chunk.SampleRate)) * chunk.Channels * 2
	if frameBytes <= 0 {
		frameBytes = 2 * chunk.Channels
	}
	ticker := time.NewTicker(d.frame)
	defer ticker.Stop()

	data := chunk.Data
	for off := 0; off < len(data); off += frameBytes {
		select {
		case <-stop:
			w.Close()
			return
		default:
		}
		if _, err := w.Write(data[off:min(off+frameBytes, len(data))]); err != nil {
			w.Close()
			end <- fmt.Errorf("speaker: write: %w", err)
			return
		}
		select {
		case <-stop:
			w.Close()
			return
		case <-ticker.C:
		}
	}
	end <- w.Close()
}

// Stop halts output and forgets the loaded audio.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.chunk = core.AudioChunk{}
	d.loaded = false
	return nil
}

func (d *Device) stopLocked() {
	if d.playing != nil {
		close(d.playing)
		d.playing = nil
	}
}
