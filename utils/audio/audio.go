package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/zaf/g711"

	"speechbot/core"
)

// Pool for WAV header buffers (typically 44-46 bytes)
var wavHeaderPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 64))
	},
}

func getWavHeaderBuffer() *bytes.Buffer {
	return wavHeaderPool.Get().(*bytes.Buffer)
}

func putWavHeaderBuffer(buf *bytes.Buffer) {
	buf.Reset()
	wavHeaderPool.Put(buf)
}

// ULawBytesToPCM converts µ-law bytes to 16-bit PCM bytes
func ULawBytesToPCM(uBytes []byte) []byte {
	return g711.DecodeUlaw(uBytes)
}

// ALawBytesToPCM converts A-law bytes to 16-bit PCM bytes
func ALawBytesToPCM(aBytes []byte) []byte {
	return g711.DecodeAlaw(aBytes)
}

// PCMBytesToULaw converts PCM bytes to µ-law
func PCMBytesToULaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.New("PCM byte slice length must be even (16-bit samples)")
	}
	return g711.EncodeUlaw(pcm), nil
}

// PCMBytesToWavBytes wraps PCM []byte into WAV []byte (16-bit little endian).
// Supports mono or stereo.
func PCMBytesToWavBytes(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("PCM data is empty")
	}
	if numChannels <= 0 || numChannels > 2 {
		return nil, errors.New("only mono (1) or stereo (2) channels supported")
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if len(pcm)%(2*numChannels) != 0 {
		return nil, errors.New("PCM data length doesn't match channel count")
	}

	buf := getWavHeaderBuffer()
	defer putWavHeaderBuffer(buf)

	const (
		bitsPerSample  = 16
		audioFormatPCM = 1
		subchunk1Size  = 16
	)

	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := len(pcm)
	fileSize := 36 + dataSize

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(subchunk1Size))
	binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	result := make([]byte, buf.Len()+len(pcm))
	copy(result, buf.Bytes())
	copy(result[buf.Len():], pcm)
	return result, nil
}

// WAVInfo is what ParseWAV reads from the fmt and data chunks.
type WAVInfo struct {
	AudioFormat   int // 1 = PCM, 6 = A-law, 7 = µ-law.
	Channels      int
	SampleRate    int
	BitsPerSample int
	Data          []byte
}

// ParseWAV walks the RIFF chunks of a WAV file and returns its format and
// sample data. Unknown chunks are skipped.
func ParseWAV(wav []byte) (WAVInfo, error) {
	var info WAVInfo
	if len(wav) < 12 || !bytes.HasPrefix(wav, []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		return info, errors.New("invalid WAV: missing RIFF/WAVE header")
	}

	foundFmt := false
	i := 12
	for i+8 <= len(wav) {
		chunkID := string(wav[i : i+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[i+4 : i+8]))
		body := i + 8
		next := body + chunkSize

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || next > len(wav) {
				return info, errors.New("invalid WAV: short fmt chunk")
			}
			info.AudioFormat = int(binary.LittleEndian.Uint16(wav[body : body+2]))
			info.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(wav[body+14 : body+16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return info, errors.New("invalid WAV: data chunk before fmt chunk")
			}
			if next > len(wav) {
				return info, errors.New("invalid WAV: data chunk exceeds buffer length")
			}
			info.Data = wav[body:next]
			return info, nil
		}

		if chunkSize%2 != 0 {
			next++
		}
		if next > len(wav) {
			break
		}
		i = next
	}
	return info, errors.New("invalid WAV: data chunk not found")
}

// StripWAVHeaderIfPresent returns raw sample bytes if input starts with a
// RIFF/WAVE header. If the input is not a WAV file, it returns the input
// unchanged.
func StripWAVHeaderIfPresent(chunk []byte) ([]byte, error) {
	if len(chunk) < 12 || !bytes.HasPrefix(chunk, []byte("RIFF")) || !bytes.Equal(chunk[8:12], []byte("WAVE")) {
		return chunk, nil
	}
	info, err := ParseWAV(chunk)
	if err != nil {
		return nil, err
	}
	return info.Data, nil
}

// ToPCM16 decodes clip into 16-bit linear PCM. G.711 and PCM WAV files are
// supported; compressed containers (MP3, WebM, Ogg) are not decoded here.
func ToPCM16(clip core.AudioClip) (core.AudioClip, error) {
	out := core.AudioClip{SampleRate: clip.SampleRate, Channels: clip.Channels, Format: core.PCM}
	switch clip.Format {
	case core.PCM:
		out.Data = clip.Data
	case core.ULAW:
		out.Data = ULawBytesToPCM(clip.Data)
	case core.ALAW:
		out.Data = ALawBytesToPCM(clip.Data)
	case core.WAV:
		info, err := ParseWAV(clip.Data)
		if err != nil {
			return core.AudioClip{}, err
		}
		out.SampleRate, out.Channels = info.SampleRate, info.Channels
		switch {
		case info.AudioFormat == 1 && info.BitsPerSample == 16:
			out.Data = info.Data
		case info.AudioFormat == 7:
			out.Data = ULawBytesToPCM(info.Data)
		case info.AudioFormat == 6:
			out.Data = ALawBytesToPCM(info.Data)
		default:
			return core.AudioClip{}, fmt.Errorf("unsupported WAV encoding %d/%d-bit", info.AudioFormat, info.BitsPerSample)
		}
	default:
		return core.AudioClip{}, fmt.Errorf("cannot decode %s to PCM", clip.Format)
	}
	if out.Channels <= 0 {
		out.Channels = 1
	}
	if out.SampleRate <= 0 {
		if clip.Format == core.ULAW || clip.Format == core.ALAW {
			out.SampleRate = 8000
		} else {
			out.SampleRate = 16000
		}
	}
	if err := ValidatePCMData(out.Data, out.Channels); err != nil {
		return core.AudioClip{}, err
	}
	return out, nil
}

// ToContainer returns clip in a self-describing container: raw sample
// formats are decoded and wrapped as WAV, containers pass through.
func ToContainer(clip core.AudioClip) (core.AudioClip, error) {
	if !clip.Format.Raw() {
		return clip, nil
	}
	pcm, err := ToPCM16(clip)
	if err != nil {
		return core.AudioClip{}, err
	}
	wav, err := PCMBytesToWavBytes(pcm.Data, pcm.Channels, pcm.SampleRate)
	if err != nil {
		return core.AudioClip{}, err
	}
	return core.AudioClip{Data: wav, SampleRate: pcm.SampleRate, Channels: pcm.Channels, Format: core.WAV}, nil
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

// StereoToMono averages the two channels of interleaved 16-bit PCM.
func StereoToMono(stereoPCM []byte) []byte {
	samples := len(stereoPCM) / 4
	result := make([]byte, samples*2)
	for i := range samples {
		left := int16(binary.LittleEndian.Uint16(stereoPCM[i*4 : i*4+2]))
		right := int16(binary.LittleEndian.Uint16(stereoPCM[i*4+2 : i*4+4]))
		binary.LittleEndian.PutUint16(result[i*2:], uint16(int16((int(left)+int(right))/2)))
	}
	return result
}
