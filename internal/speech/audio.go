// Package speech turns a recorded answer into a transcript and delivery
// metrics: audio extraction with ffmpeg, recognition with Google
// Speech-to-Text, and speed/volume scoring.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
)

// Audio is the extracted speech track of a video.
type Audio struct {
	Path         string
	DurationSec  float64
	MeanVolumeDB float64
}

// ErrNoAudio is returned when ffmpeg found no usable audio stream.
var ErrNoAudio = errors.New("no audio stream")

var (
	durationRe   = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	meanVolumeRe = regexp.MustCompile(`mean_volume:\s*(-?\d+(?:\.\d+)?|-inf)\s*dB`)
)

// Extractor runs ffmpeg.
type Extractor struct {
	ffmpeg string
}

// NewExtractor creates an extractor using the given ffmpeg binary.
func NewExtractor(ffmpegPath string) *Extractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Extractor{ffmpeg: ffmpegPath}
}

// Extract converts the input video to 16 kHz mono FLAC at outPath and measures
// its duration and mean volume in the same pass.
func (e *Extractor) Extract(ctx context.Context, inPath, outPath string) (Audio, error) {
	cmd := exec.CommandContext(ctx, e.ffmpeg,
		"-hide_banner", "-nostdin",
		"-i", inPath,
		"-vn",
		"-af", "volumedetect",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "flac",
		"-y",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Audio{}, ctx.Err()
		}
		return Audio{}, fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.Bytes(), 512))
	}
	a, err := parseFFmpegLog(stderr.Bytes())
	if err != nil {
		return Audio{}, err
	}
	a.Path = outPath
	return a, nil
}

// parseFFmpegLog reads the input duration and the volumedetect mean volume.
func parseFFmpegLog(log []byte) (Audio, error) {
	var a Audio
	m := durationRe.FindSubmatch(log)
	if m == nil {
		return Audio{}, fmt.Errorf("ffmpeg: duration not reported")
	}
	h, _ := strconv.Atoi(string(m[1]))
	mi, _ := strconv.Atoi(string(m[2]))
	s, _ := strconv.ParseFloat(string(m[3]), 64)
	a.DurationSec = float64(h*3600+mi*60) + s

	v := meanVolumeRe.FindSubmatch(log)
	if v == nil {
		return Audio{}, ErrNoAudio
	}
	if string(v[1]) == "-inf" {
		a.MeanVolumeDB = SilenceDB
	} else {
		a.MeanVolumeDB, _ = strconv.ParseFloat(string(v[1]), 64)
	}
	return a, nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(bytes.TrimSpace(b))
}
