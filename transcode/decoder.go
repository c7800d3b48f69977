package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/faiface/beep/mp3"
	"github.com/mjibson/go-dsp/wav"

	"github.com/RyanBlaney/sonido-stems/logging"
)

// AudioData represents a decoded, mono stem
type AudioData struct {
	PCM        []float64     `json:"-"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"` // channel count of the source before down-mixing
	Duration   time.Duration `json:"duration"`
	Source     string        `json:"source,omitempty"`
	Codec      string        `json:"codec"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	// Used by the ffmpeg path only; WAV and MP3 keep their native rate
	TargetSampleRate int           `json:"target_sample_rate"`
	FFmpegPath       string        `json:"ffmpeg_path"`
	Timeout          time.Duration `json:"timeout"`
	MaxDuration      time.Duration `json:"max_duration"`
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 44100,
		FFmpegPath:       "ffmpeg", // Assume in PATH
		Timeout:          2 * time.Minute,
		MaxDuration:      0, // No limit
	}
}

// CacheKey identifies the settings that change decoded PCM. Timeout and
// the ffmpeg binary are left out.
func (c *DecoderConfig) CacheKey() string {
	return fmt.Sprintf("sr=%d;max=%s", c.TargetSampleRate, c.MaxDuration)
}

// Decoder turns stem files into mono float PCM. WAV is read with go-dsp,
// MP3 with beep, and every other container is piped through ffmpeg.
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// CacheKey reports the decoder settings for result caching
func (d *Decoder) CacheKey() string {
	return d.config.CacheKey()
}

// DecodeFile decodes an audio file, choosing the decoder by extension.
// Fields stored in ctx with logging.ContextWithFields are added to its logs.
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	logger.Debug("Starting audio file decode")

	var (
		data *AudioData
		err  error
	)

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav", ".wave":
		data, err = d.decodeFileWith(filename, DecodeWAV)
	case ".mp3":
		data, err = d.decodeFileWith(filename, func(r io.Reader) (*AudioData, error) {
			return DecodeMP3(io.NopCloser(r))
		})
	default:
		data, err = d.decodeWithFFmpeg(ctx, filename, logger)
	}
	if err != nil {
		logger.Error(err, "Failed to decode audio file")
		return nil, err
	}

	data.Source = filename
	data = d.truncate(data)

	logger.Debug("Audio file decoded", logging.Fields{
		"sample_rate": data.SampleRate,
		"channels":    data.Channels,
		"codec":       data.Codec,
		"samples":     len(data.PCM),
		"duration":    data.Duration.Seconds(),
	})

	return data, nil
}

func (d *Decoder) decodeFileWith(filename string, decode func(io.Reader) (*AudioData, error)) (*AudioData, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	return decode(f)
}

// truncate applies MaxDuration
func (d *Decoder) truncate(data *AudioData) *AudioData {
	if d.config.MaxDuration <= 0 || data.SampleRate <= 0 {
		return data
	}
	limit := int(d.config.MaxDuration.Seconds() * float64(data.SampleRate))
	if limit < len(data.PCM) {
		data.PCM = data.PCM[:limit]
		data.Duration = durationOf(len(data.PCM), data.SampleRate)
	}
	return data
}

// DecodeWAV reads a PCM or IEEE-float WAV stream and down-mixes it to mono
func DecodeWAV(r io.Reader) (*AudioData, error) {
	w, err := wav.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read wav header: %w", err)
	}
	if w.NumChannels == 0 || w.SampleRate == 0 {
		return nil, fmt.Errorf("invalid wav header: %d channels at %d Hz", w.NumChannels, w.SampleRate)
	}

	floats, err := w.ReadFloats(w.Samples)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read wav samples: %w", err)
	}

	interleaved := make([]float64, len(floats))
	for i, v := range floats {
		interleaved[i] = float64(v)
	}

	channels := int(w.NumChannels)
	sampleRate := int(w.SampleRate)
	pcm := Downmix(interleaved, channels)
	if len(pcm) == 0 {
		return nil, fmt.Errorf("no audio samples decoded")
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   durationOf(len(pcm), sampleRate),
		Codec:      "pcm_s" + strconv.Itoa(int(w.BitsPerSample)),
	}, nil
}

// DecodeMP3 decodes an MP3 stream with beep and down-mixes it to mono
func DecodeMP3(rc io.ReadCloser) (*AudioData, error) {
	streamer, format, err := mp3.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}
	defer streamer.Close()

	var pcm []float64
	buf := make([][2]float64, 4096)
	for {
		n, ok := streamer.Stream(buf)
		for _, frame := range buf[:n] {
			if format.NumChannels > 1 {
				pcm = append(pcm, (frame[0]+frame[1])/2)
			} else {
				pcm = append(pcm, frame[0])
			}
		}
		if !ok || n == 0 {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("no audio samples decoded")
	}

	sampleRate := int(format.SampleRate)
	return &AudioData{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   format.NumChannels,
		Duration:   durationOf(len(pcm), sampleRate),
		Codec:      "mp3",
	}, nil
}

// decodeWithFFmpeg asks ffmpeg for mono f64le at the target rate
func (d *Decoder) decodeWithFFmpeg(ctx context.Context, filename string, logger logging.Logger) (*AudioData, error) {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	args := d.buildFFmpegArgs(filename)
	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := cmd.Output()
	if err != nil {
		logger.Error(err, "Ffmpeg decode failed", logging.Fields{
			"stderr": stderr.String(),
		})
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio samples decoded")
	}

	return &AudioData{
		PCM:        samples,
		SampleRate: d.config.TargetSampleRate,
		Channels:   1,
		Duration:   durationOf(len(samples), d.config.TargetSampleRate),
		Codec:      strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
	}, nil
}

// buildFFmpegArgs builds the ffmpeg arguments for a mono float64 decode
func (d *Decoder) buildFFmpegArgs(filename string) []string {
	args := []string{
		"-i", filename,
		"-f", "f64le", // Output raw float64 little-endian
		"-ac", "1",
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	// Suppress ffmpeg output
	args = append(args, "-v", "error", "pipe:1")

	return args
}

// Downmix averages interleaved frames into a mono signal. A trailing
// partial frame is dropped.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		out := make([]float64, len(interleaved))
		copy(out, interleaved)
		return out
	}

	frames := len(interleaved) / channels
	out := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// bytesToFloat64 converts raw float64 bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	if len(data)%8 != 0 {
		// Trim to multiple of 8 bytes
		data = data[:len(data)-(len(data)%8)]
	}

	if len(data) == 0 {
		return nil
	}

	sampleCount := len(data) / 8
	samples := make([]float64, sampleCount)

	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

func durationOf(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
