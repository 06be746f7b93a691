// Package chime plays a short sound when a recording starts.
package chime

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
	"github.com/youpy/go-wav"
)

const (
	outputRate     = 44100
	outputChannels = 2
)

// Player holds one decoded sound and an audio output context.
type Player struct {
	otoCtx  *oto.Context
	pcm     []byte
	name    string
	playing atomic.Bool
}

// New decodes the WAV or MP3 file at path and opens the audio device.
func New(path string) (*Player, error) {
	pcm, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	op := &oto.NewContextOptions{
		SampleRate:   outputRate,
		ChannelCount: outputChannels,
		Format:       oto.FormatSignedInt16LE,
	}
	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	return &Player{otoCtx: otoCtx, pcm: pcm, name: filepath.Base(path)}, nil
}

// Play starts the sound in the background. Calls while it is still playing are dropped.
func (p *Player) Play() {
	if !p.playing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer p.playing.Store(false)
		player := p.otoCtx.NewPlayer(bytes.NewReader(p.pcm))
		defer player.Close()
		player.Play()
		for player.IsPlaying() {
			time.Sleep(50 * time.Millisecond)
		}
		slog.Debug("Chime finished", "file", p.name)
	}()
}

// decodeFile returns 16-bit little-endian PCM at 44.1kHz stereo.
func decodeFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sound file: %w", err)
	}

	var (
		pcm      []byte
		rate     int
		channels int
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		format, err := wav.NewReader(bytes.NewReader(data)).Format()
		if err != nil {
			return nil, fmt.Errorf("failed to get wav format: %w", err)
		}
		pcm, err = io.ReadAll(wav.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode wav data: %w", err)
		}
		rate, channels = int(format.SampleRate), int(format.NumChannels)
	case ".mp3":
		decoder, err := mp3.NewDecoder(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
		}
		pcm, err = io.ReadAll(decoder)
		if err != nil {
			return nil, fmt.Errorf("failed to decode mp3 data: %w", err)
		}
		rate, channels = decoder.SampleRate(), 2
	default:
		return nil, fmt.Errorf("unsupported sound format %q", filepath.Ext(path))
	}

	if rate != outputRate || channels != outputChannels {
		pcm = convertAudio(pcm, rate, channels, outputRate, outputChannels)
	}
	return pcm, nil
}

// convertAudio resamples 16-bit PCM with linear interpolation and widens mono to stereo.
// Interpolation runs per frame so interleaved channels never bleed into each other.
func convertAudio(pcm []byte, fromRate, fromChannels, toRate, toChannels int) []byte {
	count := len(pcm) / 2
	samples := make([]int16, count)
	for i := 0; i < count; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}

	channels := fromChannels
	if fromChannels == 1 && toChannels == 2 {
		stereo := make([]int16, count*2)
		for i, s := range samples {
			stereo[i*2] = s
			stereo[i*2+1] = s
		}
		samples = stereo
		channels = 2
	}

	frames := 0
	if channels > 0 {
		frames = len(samples) / channels
	}
	if fromRate != toRate && fromRate > 0 && frames > 0 {
		ratio := float64(toRate) / float64(fromRate)
		outFrames := int(float64(frames) * ratio)
		resampled := make([]int16, outFrames*channels)
		for i := 0; i < outFrames; i++ {
			pos := float64(i) / ratio
			idx := int(pos)
			frac := pos - float64(idx)
			for ch := 0; ch < channels; ch++ {
				if idx >= frames-1 {
					resampled[i*channels+ch] = samples[(frames-1)*channels+ch]
					continue
				}
				a := float64(samples[idx*channels+ch])
				b := float64(samples[(idx+1)*channels+ch])
				resampled[i*channels+ch] = int16(a + (b-a)*frac)
			}
		}
		samples = resampled
	}

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(s))
	}
	return out
}
