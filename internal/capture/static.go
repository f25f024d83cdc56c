package capture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// StaticDevice replays fixed bytes as a recording. It backs headless runs and tests.
type StaticDevice struct {
	Data []byte
	// Supported restricts the encodings reported as supported; nil supports all.
	Supported []Encoding
	// OpenErr, when set, is returned from Open to simulate a denied device.
	OpenErr error
	// ChunkSize splits Data into chunks; zero delivers it as one chunk.
	ChunkSize int
}

// NewFileDevice loads a recording from disk.
func NewFileDevice(path string) (*StaticDevice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &StaticDevice{Data: data, ChunkSize: 64 << 10}, nil
}

func (d *StaticDevice) IsTypeSupported(mimeType string) bool {
	if d.Supported == nil {
		return true
	}
	for _, enc := range d.Supported {
		if string(enc) == mimeType {
			return true
		}
	}
	return false
}

func (d *StaticDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	return &staticStream{device: d}, nil
}

type staticStream struct {
	device *StaticDevice
}

func (s *staticStream) NewRecorder(_ Encoding, _ time.Duration) (Recorder, error) {
	return &staticRecorder{
		chunks: split(s.device.Data, s.device.ChunkSize),
		out:    make(chan []byte),
		stop:   make(chan struct{}),
	}, nil
}

func (s *staticStream) Close() error { return nil }

type staticRecorder struct {
	chunks   [][]byte
	out      chan []byte
	stop     chan struct{}
	stopOnce sync.Once
	started  bool
}

func (r *staticRecorder) Start() error {
	if r.started {
		return fmt.Errorf("recorder already started")
	}
	r.started = true
	go r.run()
	return nil
}

// run emits chunks until stopped, then flushes the remainder as one final chunk.
func (r *staticRecorder) run() {
	defer close(r.out)
	for i, chunk := range r.chunks {
		select {
		case r.out <- chunk:
		case <-r.stop:
			var rest []byte
			for _, c := range r.chunks[i:] {
				rest = append(rest, c...)
			}
			if len(rest) > 0 {
				r.out <- rest
			}
			return
		}
	}
	<-r.stop
}

func (r *staticRecorder) Chunks() <-chan []byte { return r.out }

func (r *staticRecorder) Stop() error {
	r.stopOnce.Do(func() { close(r.stop) })
	return nil
}

func split(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if size <= 0 || size >= len(data) {
		return [][]byte{data}
	}
	var out [][]byte
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		out = append(out, data[start:end])
	}
	return out
}
