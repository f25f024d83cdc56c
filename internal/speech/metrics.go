package speech

import (
	"math"
	"unicode"
)

// Delivery targets for spoken Japanese answers.
const (
	idealCharsPerSecLow  = 4.5
	idealCharsPerSecHigh = 6.0
	minCharsPerSec       = 2.0
	maxCharsPerSec       = 9.0

	idealVolumeLowDB  = -30.0
	idealVolumeHighDB = -16.0
	minVolumeDB       = -50.0
	maxVolumeDB       = -5.0

	// SilenceDB stands in for a -inf mean volume.
	SilenceDB = -91.0
)

// CountChars counts spoken characters: letters, digits and marks, ignoring
// whitespace and punctuation.
func CountChars(transcript string) int {
	n := 0
	for _, r := range transcript {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		n++
	}
	return n
}

// CharsPerSec is the speaking rate over the whole answer.
func CharsPerSec(transcript string, durationSec float64) float64 {
	if durationSec <= 0 {
		return 0
	}
	return round2(float64(CountChars(transcript)) / durationSec)
}

// SpeedScore rates a speaking rate in [0,1]: full marks inside the ideal band,
// falling linearly to zero at the outer limits.
func SpeedScore(charsPerSec float64) float64 {
	return bandScore(charsPerSec, minCharsPerSec, idealCharsPerSecLow, idealCharsPerSecHigh, maxCharsPerSec)
}

// VolumeScore rates a mean volume in dBFS in [0,1] the same way.
func VolumeScore(meanDB float64) float64 {
	return bandScore(meanDB, minVolumeDB, idealVolumeLowDB, idealVolumeHighDB, maxVolumeDB)
}

func bandScore(v, floor, low, high, ceil float64) float64 {
	switch {
	case math.IsNaN(v) || v <= floor || v >= ceil:
		return 0
	case v < low:
		return round3((v - floor) / (low - floor))
	case v > high:
		return round3((ceil - v) / (ceil - high))
	default:
		return 1
	}
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
