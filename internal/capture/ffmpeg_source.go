package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	ffmpegStartGrace  = 500 * time.Millisecond
	ffmpegStopTimeout = 10 * time.Second
	ffmpegReadSize    = 32 * 1024
	stderrTailBytes   = 4096
)

// FFmpegConfig describes the desktop grab.
type FFmpegConfig struct {
	Binary      string
	InputFormat string // x11grab, avfoundation, gdigrab
	Input       string // :0.0, "1:none", desktop
	FrameRate   int
}

// FFmpegSource grabs the desktop with an ffmpeg subprocess and streams the
// encoded container from its stdout.
type FFmpegSource struct {
	cfg      FFmpegConfig
	encoders map[string]bool
	logger   *zap.Logger
}

// NewFFmpegSource creates a source. encoders lists the ffmpeg encoders
// available on this host, as reported by the probe.
func NewFFmpegSource(cfg FFmpegConfig, encoders []string, logger *zap.Logger) *FFmpegSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	enc := make(map[string]bool, len(encoders))
	for _, e := range encoders {
		enc[e] = true
	}
	return &FFmpegSource{cfg: cfg, encoders: enc, logger: logger}
}

// encoderFor maps a capture MIME type to ffmpeg encoder and muxer.
func encoderFor(mimeType string) (encoder, muxer string) {
	base := BaseMIMEType(mimeType)
	switch {
	case base == "video/webm" && strings.Contains(mimeType, "vp9"):
		return "libvpx-vp9", "webm"
	case base == "video/webm":
		return "libvpx", "webm"
	case base == "video/mp4":
		return "libx264", "mp4"
	case base == "video/x-ivf":
		return "libvpx", "ivf"
	}
	return "", ""
}

// Supports implements Source.
func (s *FFmpegSource) Supports(mimeType string) bool {
	enc, _ := encoderFor(mimeType)
	return enc != "" && s.encoders[enc]
}

// Args returns the ffmpeg arguments for mimeType. Audio is never captured.
func (s *FFmpegSource) Args(mimeType string) []string {
	enc, muxer := encoderFor(mimeType)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", s.cfg.InputFormat,
		"-framerate", strconv.Itoa(s.cfg.FrameRate),
		"-i", s.cfg.Input,
		"-an",
		"-c:v", enc,
	}
	switch enc {
	case "libvpx", "libvpx-vp9":
		args = append(args, "-deadline", "realtime", "-cpu-used", "8", "-b:v", "2M")
	case "libx264":
		args = append(args, "-preset", "ultrafast", "-pix_fmt", "yuv420p", "-movflags", "frag_keyframe+empty_moov")
	}
	return append(args, "-f", muxer, "pipe:1")
}

// Open starts ffmpeg. An immediate exit is reported as ErrPermissionDenied
// when ffmpeg could not open the display, otherwise as a start failure.
func (s *FFmpegSource) Open(_ context.Context, mimeType string) (Stream, error) {
	if !s.Supports(mimeType) {
		return nil, ErrUnsupportedEncoding
	}
	cmd := exec.Command(s.cfg.Binary, s.Args(mimeType)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	st := &ffmpegStream{
		cmd:    cmd,
		chunks: make(chan []byte, 64),
		ended:  make(chan struct{}),
		exited: make(chan struct{}),
		logger: s.logger,
	}
	go st.pump(stdout)

	select {
	case <-st.exited:
		if st.exitErr != nil {
			msg := stderr.String()
			s.logger.Warn("ffmpeg exited on start", zap.Error(st.exitErr), zap.String("stderr", msg))
			if deniedAccess(msg) {
				return nil, ErrPermissionDenied
			}
			return nil, fmt.Errorf("ffmpeg exited: %w: %s", st.exitErr, strings.TrimSpace(msg))
		}
	case <-time.After(ffmpegStartGrace):
	}
	s.logger.Info("ffmpeg capture started", zap.Int("pid", cmd.Process.Pid), zap.String("mime_type", mimeType))
	return st, nil
}

func deniedAccess(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range []string{"permission denied", "cannot open display", "not authorized", "operation not permitted"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	chunks chan []byte
	ended  chan struct{}
	exited chan struct{}
	logger *zap.Logger

	exitErr error

	mu       sync.Mutex
	stopping bool
}

func (st *ffmpegStream) Chunks() <-chan []byte  { return st.chunks }
func (st *ffmpegStream) Ended() <-chan struct{} { return st.ended }

// pump forwards stdout to Chunks, then reaps the process.
func (st *ffmpegStream) pump(stdout io.Reader) {
	for {
		buf := make([]byte, ffmpegReadSize)
		n, err := stdout.Read(buf)
		if n > 0 {
			st.chunks <- buf[:n]
		}
		if err != nil {
			break
		}
	}
	st.exitErr = st.cmd.Wait()
	close(st.exited)
	close(st.chunks)

	st.mu.Lock()
	stopping := st.stopping
	st.mu.Unlock()
	if !stopping {
		close(st.ended)
	}
}

// Stop interrupts ffmpeg so it finalizes the container, killing it after a timeout.
func (st *ffmpegStream) Stop() error {
	st.mu.Lock()
	st.stopping = true
	st.mu.Unlock()

	select {
	case <-st.exited:
		return nil
	default:
	}
	if err := st.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("interrupt ffmpeg: %w", err)
	}
	select {
	case <-st.exited:
		return nil
	case <-time.After(ffmpegStopTimeout):
		st.logger.Warn("ffmpeg did not exit, killing", zap.Int("pid", st.cmd.Process.Pid))
		return st.cmd.Process.Kill()
	}
}

// Close kills ffmpeg if it is still running.
func (st *ffmpegStream) Close() error {
	st.mu.Lock()
	st.stopping = true
	st.mu.Unlock()
	select {
	case <-st.exited:
		return nil
	default:
	}
	if err := st.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
