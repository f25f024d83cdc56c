package capture

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimic-ai/interview/internal/apperr"
	"github.com/mimic-ai/interview/internal/clock"
)

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker { return &manualTicker{ch: make(chan time.Time)} }

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.stopped.Store(true) }

// tick blocks until the counting goroutine has taken the tick.
func (t *manualTicker) tick() { t.ch <- time.Time{} }

type countingDevice struct {
	*StaticDevice
	opens  atomic.Int32
	closes atomic.Int32
}

func (d *countingDevice) Open(ctx context.Context) (Stream, error) {
	st, err := d.StaticDevice.Open(ctx)
	if err != nil {
		return nil, err
	}
	d.opens.Add(1)
	return &countingStream{Stream: st, device: d}, nil
}

type countingStream struct {
	Stream
	device *countingDevice
}

func (s *countingStream) Close() error {
	s.device.closes.Add(1)
	return s.Stream.Close()
}

func fixedClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[min(i, len(times)-1)]
		i++
		return t
	}
}

func newTestSession(t *testing.T, d Device, ticker *manualTicker, opts Options) *Session {
	t.Helper()
	opts.NewTicker = func(time.Duration) clock.Ticker { return ticker }
	if opts.LockPath == "" {
		opts.LockPath = filepath.Join(t.TempDir(), "camera.lock")
	}
	return NewSession(d, opts)
}

func TestStartStopProducesArtifact(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	stop := start.Add(12 * time.Second)
	dev := &countingDevice{StaticDevice: &StaticDevice{Data: []byte("webm-bytes-0123456789"), ChunkSize: 4}}
	ticker := newManualTicker()
	s := newTestSession(t, dev, ticker, Options{
		Username: func() string { return "taro" },
		Now:      fixedClock(start, stop),
	})

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Recording())
	assert.Equal(t, EncodingVP9Opus, s.Encoding())

	art, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, []byte("webm-bytes-0123456789"), art.Data)
	assert.Equal(t, string(EncodingVP9Opus), art.MimeType)
	assert.Equal(t, "taro_1700000012000.webm", art.Filename)
	assert.Equal(t, start, art.CapturedAt)
	assert.Equal(t, 12*time.Second, art.Duration)
	assert.False(t, s.Recording())
	assert.Equal(t, int32(1), dev.opens.Load())
	assert.Equal(t, int32(1), dev.closes.Load())
	assert.True(t, ticker.stopped.Load())
}

func TestEncodingFallsBackToPlainWebM(t *testing.T) {
	dev := &StaticDevice{Data: []byte("x"), Supported: []Encoding{EncodingWebM}}
	s := newTestSession(t, dev, newManualTicker(), Options{})
	require.NoError(t, s.Start(context.Background()))
	art, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, EncodingWebM, s.Encoding())
	assert.Equal(t, "video/webm", art.MimeType)
}

func TestNoSupportedEncoding(t *testing.T) {
	dev := &StaticDevice{Data: []byte("x"), Supported: []Encoding{}}
	s := newTestSession(t, dev, newManualTicker(), Options{})
	err := s.Start(context.Background())
	assert.True(t, apperr.IsKind(err, apperr.KindDeviceAccess))
	assert.ErrorIs(t, err, ErrNoEncoding)
	assert.False(t, s.Recording())
}

func TestDeniedDeviceIsDeviceAccess(t *testing.T) {
	denied := errors.New("permission denied")
	dev := &StaticDevice{OpenErr: denied}
	lockPath := filepath.Join(t.TempDir(), "camera.lock")
	s := newTestSession(t, dev, newManualTicker(), Options{LockPath: lockPath})

	err := s.Start(context.Background())
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apperr.KindDeviceAccess, e.Kind)
	assert.Equal(t, apperr.MsgDeviceAccess, e.UserMessage())
	assert.ErrorIs(t, err, denied)
	assert.False(t, apperr.Retryable(err))

	// the lock is released so a later attempt can proceed
	dev.OpenErr = nil
	dev.Data = []byte("ok")
	require.NoError(t, s.Start(context.Background()))
	_, err = s.Stop()
	require.NoError(t, err)
}

func TestElapsedCounter(t *testing.T) {
	ticker := newManualTicker()
	s := newTestSession(t, &StaticDevice{Data: []byte("x")}, ticker, Options{})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 0, s.Elapsed())
	for range 3 {
		ticker.tick()
	}
	assert.Eventually(t, func() bool { return s.Elapsed() == 3 }, time.Second, time.Millisecond)

	_, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, 3, s.Elapsed(), "frozen after stop")

	next := newManualTicker()
	s.newTicker = func(time.Duration) clock.Ticker { return next }
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 0, s.Elapsed(), "reset on start")
	next.tick()
	assert.Eventually(t, func() bool { return s.Elapsed() == 1 }, time.Second, time.Millisecond)
	_, err = s.Stop()
	require.NoError(t, err)
}

func TestStopWithoutStart(t *testing.T) {
	s := newTestSession(t, &StaticDevice{}, newManualTicker(), Options{})
	_, err := s.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestStartTwiceIsRejected(t *testing.T) {
	s := newTestSession(t, &StaticDevice{Data: []byte("x")}, newManualTicker(), Options{})
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRecording)
	_, err := s.Stop()
	require.NoError(t, err)
}

func TestDeviceLockIsExclusive(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "camera.lock")
	first := newTestSession(t, &StaticDevice{Data: []byte("a")}, newManualTicker(), Options{LockPath: lockPath})
	second := newTestSession(t, &StaticDevice{Data: []byte("b")}, newManualTicker(), Options{LockPath: lockPath})

	require.NoError(t, first.Start(context.Background()))
	err := second.Start(context.Background())
	assert.True(t, apperr.IsKind(err, apperr.KindDeviceAccess))
	assert.ErrorIs(t, err, ErrDeviceBusy)

	_, err = first.Stop()
	require.NoError(t, err)
	require.NoError(t, second.Start(context.Background()))
	_, err = second.Stop()
	require.NoError(t, err)
}

func TestEmptyRecordingFails(t *testing.T) {
	s := newTestSession(t, &StaticDevice{}, newManualTicker(), Options{})
	require.NoError(t, s.Start(context.Background()))
	_, err := s.Stop()
	assert.True(t, apperr.IsKind(err, apperr.KindDeviceAccess))
}

func TestFilenameAndFormatElapsed(t *testing.T) {
	at := time.UnixMilli(1_712_345_678_901)
	assert.Equal(t, "Guest_1712345678901.webm", Filename("", at))
	assert.Equal(t, "hanako_1712345678901.webm", Filename("hanako", at))

	assert.Equal(t, "00:00", FormatElapsed(0))
	assert.Equal(t, "00:59", FormatElapsed(59))
	assert.Equal(t, "01:05", FormatElapsed(65))
	assert.Equal(t, "61:01", FormatElapsed(3661))
}

func TestRecordArgs(t *testing.T) {
	args, err := recordArgs([]string{"-f", "lavfi", "-i", "testsrc"}, EncodingVP9Opus)
	require.NoError(t, err)
	assert.Contains(t, args, "libvpx-vp9")
	assert.Contains(t, args, "libopus")
	assert.Contains(t, args, "250000")
	assert.Equal(t, "pipe:1", args[len(args)-1])

	_, err = recordArgs(nil, Encoding("video/mp4"))
	assert.Error(t, err)
}

func TestSplit(t *testing.T) {
	assert.Nil(t, split(nil, 4))
	assert.Equal(t, [][]byte{[]byte("abcdef")}, split([]byte("abcdef"), 0))
	assert.Equal(t, [][]byte{[]byte("abcd"), []byte("ef")}, split([]byte("abcdef"), 4))
}
