package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicechat/core"
)

func pcmSamples(samples ...int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func TestParseWAV_RoundTrip(t *testing.T) {
	pcm := pcmSamples(0, 1000, -1000, 32767)
	wav, err := PCMBytesToWavBytes(pcm, 1, 24000)
	require.NoError(t, err)
	require.Len(t, wav, 44+len(pcm))

	info, err := ParseWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, wavFormatPCM, info.AudioFormat)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 24000, info.SampleRate)
	assert.Equal(t, 16, info.BitsPerSample)
	assert.Equal(t, pcm, info.Data)
}

func TestParseWAV_Rejects(t *testing.T) {
	_, err := ParseWAV([]byte("ID3 mp3 payload"))
	assert.ErrorIs(t, err, ErrNotWAV)

	_, err = ParseWAV([]byte("RIFF\x00\x00\x00\x00WAVEjunk\x04\x00\x00\x00abcd"))
	assert.Error(t, err)
}

func TestDecodeResource(t *testing.T) {
	pcm := pcmSamples(100, -100, 200, -200)
	wav, err := PCMBytesToWavBytes(pcm, 2, 16000)
	require.NoError(t, err)

	res := core.NewAudioResource(wav, "audio/wav", core.WAV, nil)
	require.NoError(t, DescribeWAV(res))
	assert.Equal(t, 16000, res.SampleRate)
	assert.Equal(t, 2, res.Channels)

	chunk, err := DecodeResource(res)
	require.NoError(t, err)
	assert.Equal(t, pcm, chunk.Data)
	assert.Equal(t, 2, chunk.Channels)
	assert.InDelta(t, 2.0/16000, chunk.DurationSeconds(), 1e-9)

	ulaw, err := PCMBytesToULaw(pcm)
	require.NoError(t, err)
	res = core.NewAudioResource(ulaw, "audio/basic", core.ULAW, nil)
	res.SampleRate = 8000
	chunk, err = DecodeResource(res)
	require.NoError(t, err)
	assert.Len(t, chunk.Data, len(pcm))

	res = core.NewAudioResource([]byte{1, 2, 3}, "audio/mpeg", core.MP3, nil)
	_, err = DecodeResource(res)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	require.NoError(t, res.Release())
	_, err = DecodeResource(res)
	assert.ErrorIs(t, err, core.ErrResourceReleased)
}
