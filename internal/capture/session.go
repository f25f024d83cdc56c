// Package capture records one interview answer from a camera and microphone.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/apperr"
	"github.com/mimic-ai/interview/internal/clock"
)

// ErrNotRecording is returned by Stop when no recording is active. Callers ignore it.
var ErrNotRecording = errors.New("capture: not recording")

// ErrAlreadyRecording is returned by Start while a recording is active.
var ErrAlreadyRecording = errors.New("capture: already recording")

// ErrNoEncoding is returned when the device supports none of PreferredEncodings.
var ErrNoEncoding = errors.New("capture: no supported encoding")

const finalizeTimeout = 15 * time.Second

// Artifact is a finished recording. It is not modified after Stop returns it.
type Artifact struct {
	Data       []byte
	MimeType   string
	Filename   string
	CapturedAt time.Time
	Duration   time.Duration
}

// Size returns the artifact length in bytes.
func (a *Artifact) Size() int { return len(a.Data) }

// HumanSize renders the artifact length for logs and terminal output.
func (a *Artifact) HumanSize() string { return humanize.Bytes(uint64(len(a.Data))) }

// Options configures a Session. Zero values pick the defaults.
type Options struct {
	// LockPath is the cross-process lock file. Empty keeps the lock in-process only.
	LockPath  string
	Timeslice time.Duration
	// Username names the artifact; empty falls back to "Guest".
	Username func() string
	Now      func() time.Time
	// NewTicker drives the elapsed-seconds counter.
	NewTicker clock.NewTickerFunc
	Logger    *zap.Logger
}

// Session owns the capture device between Start and Stop.
type Session struct {
	device    Device
	lockPath  string
	timeslice time.Duration
	username  func() string
	now       func() time.Time
	newTicker clock.NewTickerFunc
	log       *zap.Logger

	mu        sync.Mutex
	recording bool
	lock      *deviceLock
	stream    Stream
	recorder  Recorder
	encoding  Encoding
	startedAt time.Time
	chunks    [][]byte
	collected chan struct{}
	stopTick  chan struct{}
	tickDone  chan struct{}

	elapsed atomic.Int64
}

// NewSession creates a capture session bound to a device.
func NewSession(device Device, opts Options) *Session {
	s := &Session{
		device:    device,
		lockPath:  opts.LockPath,
		timeslice: opts.Timeslice,
		username:  opts.Username,
		now:       opts.Now,
		newTicker: opts.NewTicker,
		log:       opts.Logger,
	}
	if s.timeslice <= 0 {
		s.timeslice = DefaultTimeslice
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newTicker == nil {
		s.newTicker = clock.NewTicker
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Start acquires the device and begins recording. Device failures are
// apperr.KindDeviceAccess and are not retried.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording {
		return ErrAlreadyRecording
	}

	lock, err := acquireDeviceLock(s.lockPath)
	if err != nil {
		return apperr.DeviceAccess("capture start", err)
	}
	enc, ok := SelectEncoding(s.device)
	if !ok {
		_ = lock.release()
		return apperr.DeviceAccess("capture start", ErrNoEncoding)
	}
	stream, err := s.device.Open(ctx)
	if err != nil {
		_ = lock.release()
		return apperr.DeviceAccess("capture start", err)
	}
	rec, err := stream.NewRecorder(enc, s.timeslice)
	if err == nil {
		err = rec.Start()
	}
	if err != nil {
		_ = stream.Close()
		_ = lock.release()
		return apperr.DeviceAccess("capture start", fmt.Errorf("start recorder: %w", err))
	}

	s.lock = lock
	s.stream = stream
	s.recorder = rec
	s.encoding = enc
	s.startedAt = s.now()
	s.chunks = nil
	s.collected = make(chan struct{})
	s.stopTick = make(chan struct{})
	s.tickDone = make(chan struct{})
	s.elapsed.Store(0)
	s.recording = true

	go s.collect(rec.Chunks(), s.collected)
	go s.count(s.newTicker(time.Second), s.stopTick, s.tickDone)

	s.log.Info("recording started", zap.String("encoding", string(enc)))
	return nil
}

// collect buffers chunks in delivery order until the recorder closes its channel.
func (s *Session) collect(chunks <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		s.mu.Lock()
		s.chunks = append(s.chunks, chunk)
		s.mu.Unlock()
	}
}

func (s *Session) count(t clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			s.elapsed.Add(1)
		}
	}
}

// Stop finalizes the recorder, releases the device and returns the artifact.
func (s *Session) Stop() (*Artifact, error) {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	s.recording = false
	rec, stream, lock := s.recorder, s.stream, s.lock
	collected, stopTick, tickDone := s.collected, s.stopTick, s.tickDone
	enc, startedAt := s.encoding, s.startedAt
	s.recorder, s.stream, s.lock = nil, nil, nil
	s.mu.Unlock()

	close(stopTick)
	<-tickDone

	stopErr := rec.Stop()
	select {
	case <-collected:
	case <-time.After(finalizeTimeout):
		stopErr = errors.Join(stopErr, errors.New("capture: recorder did not flush"))
	}
	if err := stream.Close(); err != nil {
		s.log.Warn("close stream", zap.Error(err))
	}
	if err := lock.release(); err != nil {
		s.log.Warn("release device lock", zap.Error(err))
	}

	s.mu.Lock()
	data := bytes.Join(s.chunks, nil)
	s.chunks = nil
	s.mu.Unlock()

	if stopErr != nil {
		return nil, apperr.DeviceAccess("capture stop", stopErr)
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.KindDeviceAccess, "capture stop", "録画データが空です")
	}

	stoppedAt := s.now()
	art := &Artifact{
		Data:       data,
		MimeType:   string(enc),
		Filename:   Filename(s.currentUsername(), stoppedAt),
		CapturedAt: startedAt,
		Duration:   stoppedAt.Sub(startedAt),
	}
	s.log.Info("recording stopped",
		zap.String("filename", art.Filename),
		zap.String("size", art.HumanSize()),
		zap.Int64("elapsed_sec", s.elapsed.Load()),
	)
	return art, nil
}

func (s *Session) currentUsername() string {
	if s.username == nil {
		return ""
	}
	return s.username()
}

// Recording reports whether a recording is active.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Encoding returns the encoding of the current or last recording.
func (s *Session) Encoding() Encoding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encoding
}

// Elapsed returns whole seconds recorded. It resets on Start and freezes on Stop.
func (s *Session) Elapsed() int {
	return int(s.elapsed.Load())
}

// Filename builds "<username>_<unix millis>.webm", using "Guest" for an empty name.
func Filename(username string, at time.Time) string {
	if username == "" {
		username = "Guest"
	}
	return fmt.Sprintf("%s_%d.webm", username, at.UnixMilli())
}

// FormatElapsed renders seconds as MM:SS.
func FormatElapsed(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}
