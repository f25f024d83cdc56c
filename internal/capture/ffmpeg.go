package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	probeTimeout    = 10 * time.Second
	gracefulTimeout = 10 * time.Second
	readBufferSize  = 32 << 10
)

// FFmpegDevice records from a local camera and microphone through ffmpeg,
// muxing WebM to stdout.
type FFmpegDevice struct {
	Path string
	// Input holds the ffmpeg input arguments, e.g. "-f v4l2 -i /dev/video0 -f alsa -i default".
	Input []string
	Log   *zap.Logger

	encodersOnce sync.Once
	encoders     string
}

// NewFFmpegDevice returns a device with platform default inputs.
func NewFFmpegDevice(path string, log *zap.Logger) *FFmpegDevice {
	if path == "" {
		path = "ffmpeg"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FFmpegDevice{Path: path, Input: DefaultInput(runtime.GOOS), Log: log}
}

// DefaultInput returns ffmpeg input arguments for the default camera and microphone.
func DefaultInput(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"-f", "avfoundation", "-framerate", "30", "-i", "0:0"}
	case "windows":
		return []string{"-f", "dshow", "-i", "video=Integrated Camera:audio=Microphone"}
	default:
		return []string{"-f", "v4l2", "-i", "/dev/video0", "-f", "alsa", "-i", "default"}
	}
}

// IsTypeSupported checks the ffmpeg build for the encoders the MIME type needs.
func (d *FFmpegDevice) IsTypeSupported(mimeType string) bool {
	d.encodersOnce.Do(func() {
		out, err := exec.Command(d.Path, "-hide_banner", "-encoders").Output()
		if err != nil {
			d.Log.Warn("list ffmpeg encoders", zap.Error(err))
			return
		}
		d.encoders = string(out)
	})
	switch Encoding(mimeType) {
	case EncodingVP9Opus:
		return strings.Contains(d.encoders, "libvpx-vp9") && strings.Contains(d.encoders, "libopus")
	case EncodingWebM:
		return strings.Contains(d.encoders, "libvpx")
	default:
		return false
	}
}

// Open probes the inputs by grabbing a single frame, so a missing or denied
// device fails here rather than mid-recording.
func (d *FFmpegDevice) Open(ctx context.Context) (Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	args := append([]string{"-hide_banner", "-loglevel", "error"}, d.Input...)
	args = append(args, "-frames:v", "1", "-f", "null", "-")
	out, err := exec.CommandContext(ctx, d.Path, args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("open camera/microphone: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return &ffmpegStream{device: d}, nil
}

type ffmpegStream struct {
	device *FFmpegDevice
}

func (s *ffmpegStream) NewRecorder(enc Encoding, timeslice time.Duration) (Recorder, error) {
	args, err := recordArgs(s.device.Input, enc)
	if err != nil {
		return nil, err
	}
	return &ffmpegRecorder{
		path:      s.device.Path,
		args:      args,
		timeslice: timeslice,
		log:       s.device.Log,
		out:       make(chan []byte, 8),
	}, nil
}

// Close is a no-op: ffmpeg releases the devices when the recorder process exits.
func (s *ffmpegStream) Close() error { return nil }

func recordArgs(input []string, enc Encoding) ([]string, error) {
	var codecs []string
	switch enc {
	case EncodingVP9Opus:
		codecs = []string{"-c:v", "libvpx-vp9", "-c:a", "libopus"}
	case EncodingWebM:
		codecs = []string{"-c:v", "libvpx", "-c:a", "libvorbis"}
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
	args := append([]string{"-hide_banner", "-loglevel", "error"}, input...)
	args = append(args, codecs...)
	args = append(args,
		"-b:v", fmt.Sprintf("%d", VideoBitsPerSecond),
		"-deadline", "realtime",
		"-f", "webm",
		"pipe:1",
	)
	return args, nil
}

type ffmpegRecorder struct {
	path      string
	args      []string
	timeslice time.Duration
	log       *zap.Logger
	out       chan []byte

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	waited chan error
}

func (r *ffmpegRecorder) Start() error {
	// Not bound to a request context: stop is explicit through Stop.
	cmd := exec.Command(r.path, r.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = &r.stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	r.cmd = cmd
	r.stdin = stdin
	r.waited = make(chan error, 1)

	pipeDone := make(chan struct{})
	go func() {
		r.pump(stdout)
		close(pipeDone)
	}()
	go func() {
		<-pipeDone
		r.waited <- cmd.Wait()
	}()
	r.log.Debug("ffmpeg recording", zap.Strings("args", r.args))
	return nil
}

// pump reads muxed output and delivers it once per timeslice, flushing the rest at EOF.
func (r *ffmpegRecorder) pump(stdout io.Reader) {
	defer close(r.out)
	var (
		mu      sync.Mutex
		pending []byte
	)
	flush := func() {
		mu.Lock()
		chunk := pending
		pending = nil
		mu.Unlock()
		if len(chunk) > 0 {
			r.out <- chunk
		}
	}

	stopFlush := make(chan struct{})
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		ticker := time.NewTicker(r.timeslice)
		defer ticker.Stop()
		for {
			select {
			case <-stopFlush:
				return
			case <-ticker.C:
				flush()
			}
		}
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			mu.Lock()
			pending = append(pending, buf[:n]...)
			mu.Unlock()
		}
		if err != nil {
			break
		}
	}
	close(stopFlush)
	<-flushDone
	flush()
}

func (r *ffmpegRecorder) Chunks() <-chan []byte { return r.out }

// Stop asks ffmpeg to finish the file with "q" and kills it if it does not exit in time.
func (r *ffmpegRecorder) Stop() error {
	if r.cmd == nil || r.cmd.Process == nil {
		return nil
	}
	_, _ = io.WriteString(r.stdin, "q")
	_ = r.stdin.Close()

	select {
	case err := <-r.waited:
		if err != nil && !isInterrupted(err) {
			return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(r.stderr.String()))
		}
		return nil
	case <-time.After(gracefulTimeout):
		_ = r.cmd.Process.Signal(os.Interrupt)
		select {
		case <-r.waited:
		case <-time.After(2 * time.Second):
			_ = r.cmd.Process.Kill()
			<-r.waited
		}
		r.log.Warn("ffmpeg did not exit after q; signalled")
		return nil
	}
}

// isInterrupted treats the exit status ffmpeg reports after a graceful stop as success.
func isInterrupted(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	code := exitErr.ExitCode()
	return code == 255 || code == -1
}
