package capture

import (
	"context"
	"time"
)

// Encoding is a container/codec MIME type a recorder can produce.
type Encoding string

const (
	EncodingVP9Opus Encoding = "video/webm; codecs=vp9,opus"
	EncodingWebM    Encoding = "video/webm"
)

// PreferredEncodings lists encodings in order of preference.
var PreferredEncodings = []Encoding{EncodingVP9Opus, EncodingWebM}

// VideoBitsPerSecond is the target video bitrate for every recording.
const VideoBitsPerSecond = 250_000

// DefaultTimeslice is how often a recorder delivers a chunk.
const DefaultTimeslice = time.Second

// Device is a camera+microphone source.
type Device interface {
	// IsTypeSupported reports whether the device can record the given MIME type.
	IsTypeSupported(mimeType string) bool
	// Open acquires the camera and microphone. A denied or missing device is an error.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open camera+microphone pair.
type Stream interface {
	NewRecorder(enc Encoding, timeslice time.Duration) (Recorder, error)
	// Close releases the underlying devices.
	Close() error
}

// Recorder turns a stream into encoded chunks.
type Recorder interface {
	Start() error
	// Chunks delivers encoded data in order. It is closed after Stop has flushed
	// the final chunk.
	Chunks() <-chan []byte
	Stop() error
}

// SelectEncoding returns the first preferred encoding the device supports.
func SelectEncoding(d Device) (Encoding, bool) {
	for _, enc := range PreferredEncodings {
		if d.IsTypeSupported(string(enc)) {
			return enc, true
		}
	}
	return "", false
}
