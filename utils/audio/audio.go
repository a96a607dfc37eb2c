package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zaf/g711"

	"voicechat/core"
)

// WAV format tags found in the fmt chunk.
const (
	wavFormatPCM  = 1
	wavFormatALaw = 6
	wavFormatULaw = 7
)

var (
	ErrNotWAV            = errors.New("audio: not a RIFF/WAVE payload")
	ErrUnsupportedFormat = errors.New("audio: unsupported encoding")
)

// WAVInfo describes the fmt and data chunks of a WAV payload.
type WAVInfo struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	BitsPerSample int
	Data          []byte // contents of the data chunk, still in AudioFormat
}

// PCMBytesToULaw converts PCM bytes to µ-law
func PCMBytesToULaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeUlaw(pcm), nil
}

// ULawBytesToPCM converts µ-law bytes to PCM bytes
func ULawBytesToPCM(uBytes []byte) []byte {
	return g711.DecodeUlaw(uBytes)
}

// ALawBytesToPCM converts A-law bytes to PCM bytes
func ALawBytesToPCM(aBytes []byte) []byte {
	return g711.DecodeAlaw(aBytes)
}

// PCMBytesToWavBytes wraps PCM []byte into WAV []byte (16-bit little endian)
func PCMBytesToWavBytes(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if err := ValidatePCMData(pcm, numChannels); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}

	const (
		bitsPerSample = 16
		subchunk1Size = 16
	)
	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := len(pcm)

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(subchunk1Size))
	binary.Write(buf, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// ParseWAV walks the RIFF chunks of data and returns its fmt and data contents.
func ParseWAV(data []byte) (WAVInfo, error) {
	if len(data) < 12 || !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return WAVInfo{}, ErrNotWAV
	}

	var info WAVInfo
	haveFmt := false
	i := 12
	for i+8 <= len(data) {
		chunkID := string(data[i : i+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		body := i + 8
		next := body + chunkSize

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || next > len(data) {
				return WAVInfo{}, errors.New("audio: invalid WAV fmt chunk")
			}
			info.AudioFormat = int(binary.LittleEndian.Uint16(data[body : body+2]))
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAVInfo{}, errors.New("audio: WAV data chunk before fmt chunk")
			}
			// Streamed WAVs sometimes carry a placeholder size; take what is there.
			if next > len(data) || chunkSize == 0 {
				next = len(data)
			}
			info.Data = data[body:next]
			return info, nil
		}

		// Account for padding to even boundary
		if chunkSize%2 != 0 {
			next++
		}
		if next > len(data) {
			break
		}
		i = next
	}
	return WAVInfo{}, errors.New("audio: invalid WAV, data chunk not found")
}

// DecodeResource converts a synthesized payload into 16-bit PCM for a local output.
func DecodeResource(res *core.AudioResource) (core.AudioChunk, error) {
	data := res.Data()
	if data == nil {
		return core.AudioChunk{}, core.ErrResourceReleased
	}

	switch res.Format {
	case core.PCM:
		return core.AudioChunk{Data: data, SampleRate: res.SampleRate, Channels: max(res.Channels, 1)}, nil
	case core.ULAW:
		return core.AudioChunk{Data: ULawBytesToPCM(data), SampleRate: res.SampleRate, Channels: max(res.Channels, 1)}, nil
	case core.ALAW:
		return core.AudioChunk{Data: ALawBytesToPCM(data), SampleRate: res.SampleRate, Channels: max(res.Channels, 1)}, nil
	case core.WAV:
		info, err := ParseWAV(data)
		if err != nil {
			return core.AudioChunk{}, err
		}
		return decodeWAV(info)
	default:
		return core.AudioChunk{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, res.ContentType)
	}
}

func decodeWAV(info WAVInfo) (core.AudioChunk, error) {
	chunk := core.AudioChunk{SampleRate: info.SampleRate, Channels: max(info.Channels, 1)}
	switch {
	case info.AudioFormat == wavFormatPCM && info.BitsPerSample == 16:
		chunk.Data = info.Data
	case info.AudioFormat == wavFormatULaw:
		chunk.Data = ULawBytesToPCM(info.Data)
	case info.AudioFormat == wavFormatALaw:
		chunk.Data = ALawBytesToPCM(info.Data)
	default:
		return core.AudioChunk{}, fmt.Errorf("%w: WAV format %d, %d bits", ErrUnsupportedFormat, info.AudioFormat, info.BitsPerSample)
	}
	// drop a trailing partial frame
	frame := 2 * chunk.Channels
	chunk.Data = chunk.Data[:len(chunk.Data)-len(chunk.Data)%frame]
	return chunk, nil
}

// DescribeWAV fills SampleRate and Channels on a WAV resource from its header.
// Resources in other formats are left untouched.
func DescribeWAV(res *core.AudioResource) error {
	if res.Format != core.WAV {
		return nil
	}
	info, err := ParseWAV(res.Data())
	if err != nil {
		return err
	}
	res.SampleRate = info.SampleRate
	res.Channels = info.Channels
	return nil
}

// ValidatePCMData validates PCM byte array for basic integrity
func ValidatePCMData(pcm []byte, numChannels int) error {
	if len(pcm)%2 != 0 {
		return errors.New("PCM data must have even length (16-bit samples)")
	}
	if len(pcm) == 0 {
		return errors.New("PCM data is empty")
	}
	if numChannels <= 0 {
		return errors.New("invalid number of channels")
	}
	if len(pcm)%(2*numChannels) != 0 {
		return errors.New("PCM data length doesn't match channel count")
	}
	return nil
}
