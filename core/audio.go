package core

import (
	"fmt"
	"strings"
)

type AudioEncodingFormat int

const (
	PCM  AudioEncodingFormat = iota // 16-bit little-endian linear PCM.
	ULAW                            // G.711 μ-law.
	ALAW                            // G.711 A-law.
	WAV                             // RIFF/WAVE container.
	MP3                             // MPEG-1 Audio Layer III.
	WEBM                            // WebM/Opus as produced by browser MediaRecorder.
	OGG                             // Ogg/Opus.
)

var audioFormatNames = map[AudioEncodingFormat]string{
	PCM:  "pcm",
	ULAW: "ulaw",
	ALAW: "alaw",
	WAV:  "wav",
	MP3:  "mp3",
	WEBM: "webm",
	OGG:  "ogg",
}

func (f AudioEncodingFormat) String() string {
	if name, ok := audioFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// MIMEType returns the media type browsers expect for playback.
func (f AudioEncodingFormat) MIMEType() string {
	switch f {
	case MP3:
		return "audio/mpeg"
	case WAV:
		return "audio/wav"
	case WEBM:
		return "audio/webm"
	case OGG:
		return "audio/ogg"
	case ULAW:
		return "audio/basic"
	default:
		return "application/octet-stream"
	}
}

// Raw reports whether the format carries bare samples without a container.
func (f AudioEncodingFormat) Raw() bool {
	return f == PCM || f == ULAW || f == ALAW
}

// ParseAudioFormat accepts the names produced by String as well as common
// aliases ("linear16", "mulaw", "mpeg").
func ParseAudioFormat(name string) (AudioEncodingFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pcm", "linear16", "s16le":
		return PCM, nil
	case "ulaw", "mulaw", "pcmu":
		return ULAW, nil
	case "alaw", "pcma":
		return ALAW, nil
	case "wav", "wave":
		return WAV, nil
	case "mp3", "mpeg":
		return MP3, nil
	case "webm":
		return WEBM, nil
	case "ogg", "opus":
		return OGG, nil
	}
	return PCM, fmt.Errorf("core: unknown audio format %q", name)
}

// AudioClip is a complete piece of audio: one recorded utterance or one
// synthesized reply.
type AudioClip struct {
	Data       []byte              // Encoded or raw audio bytes.
	SampleRate int                 // Sample rate, meaningful for raw formats.
	Channels   int                 // Channel count, meaningful for raw formats.
	Format     AudioEncodingFormat // Encoding of Data.
}

// Empty reports whether the clip has no audio bytes.
func (c AudioClip) Empty() bool {
	return len(c.Data) == 0
}

// DurationSeconds returns the playback length of raw clips and 0 for
// container formats, whose length is not derivable without decoding.
func (c AudioClip) DurationSeconds() float64 {
	if c.SampleRate == 0 || c.Channels == 0 || !c.Format.Raw() {
		return 0.0
	}
	bytesPerSample := 2
	if c.Format != PCM {
		bytesPerSample = 1
	}
	totalSamples := len(c.Data) / (bytesPerSample * c.Channels)
	return float64(totalSamples) / float64(c.SampleRate)
}
