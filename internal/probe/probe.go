// Package probe checks whether the ffmpeg toolchain is installed and which
// encoders it offers.
package probe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds each probe command.
const DefaultTimeout = 10 * time.Second

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Result is the capability report returned by POST /test-ffmpeg.
type Result struct {
	Success          bool     `json:"success"`
	FFmpegAvailable  bool     `json:"ffmpegAvailable"`
	FFprobeAvailable bool     `json:"ffprobeAvailable"`
	CanEncodeH264    bool     `json:"canEncodeH264"`
	CanEncodeVP8     bool     `json:"canEncodeVP8"`
	Version          string   `json:"version,omitempty"`
	Logs             []string `json:"logs"`
	Encoders         []string `json:"-"`
}

func (r *Result) logf(format string, args ...interface{}) {
	r.Logs = append(r.Logs, fmt.Sprintf(format, args...))
}

// Prober runs the capability checks.
type Prober struct {
	ffmpeg  string
	ffprobe string
	run     Runner
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithRunner replaces the command runner.
func WithRunner(run Runner) Option { return func(p *Prober) { p.run = run } }

// WithTimeout sets the per-command timeout.
func WithTimeout(d time.Duration) Option { return func(p *Prober) { p.timeout = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *Prober) { p.logger = l } }

// New creates a prober for the given binaries.
func New(ffmpegPath, ffprobePath string, opts ...Option) *Prober {
	p := &Prober{
		ffmpeg:  ffmpegPath,
		ffprobe: ffprobePath,
		run:     ExecRunner,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs the checks. It never fails: problems are reported in the result.
func (p *Prober) Run(ctx context.Context) *Result {
	res := &Result{Logs: []string{}}

	res.logf("Checking %s", p.ffmpeg)
	out, err := p.exec(ctx, p.ffmpeg, "-version")
	if err != nil {
		res.logf("ffmpeg not available: %v", err)
	} else {
		res.FFmpegAvailable = true
		res.Version = firstLine(out)
		res.logf("ffmpeg found: %s", res.Version)
	}

	res.logf("Checking %s", p.ffprobe)
	if out, err := p.exec(ctx, p.ffprobe, "-version"); err != nil {
		res.logf("ffprobe not available: %v", err)
	} else {
		res.FFprobeAvailable = true
		res.logf("ffprobe found: %s", firstLine(out))
	}

	if res.FFmpegAvailable {
		out, err := p.exec(ctx, p.ffmpeg, "-hide_banner", "-encoders")
		if err != nil {
			res.logf("listing encoders failed: %v", err)
		} else {
			res.Encoders = ParseEncoders(out)
			res.CanEncodeH264 = hasEncoder(res.Encoders, "264")
			res.CanEncodeVP8 = hasEncoder(res.Encoders, "vp8") || contains(res.Encoders, "libvpx")
			res.logf("H.264 encoding: %s", yesNo(res.CanEncodeH264))
			res.logf("VP8 encoding: %s", yesNo(res.CanEncodeVP8))
		}
	}

	res.Success = res.FFmpegAvailable
	p.logger.Info("ffmpeg probe finished",
		zap.Bool("ffmpeg", res.FFmpegAvailable),
		zap.Bool("ffprobe", res.FFprobeAvailable),
		zap.Bool("h264", res.CanEncodeH264),
		zap.Bool("vp8", res.CanEncodeVP8),
	)
	return res
}

func (p *Prober) exec(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	out, err := p.run(ctx, name, args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("timed out after %s", p.timeout)
		}
		if tail := lastLine(out); tail != "" {
			return nil, fmt.Errorf("%w: %s", err, tail)
		}
		return nil, err
	}
	return out, nil
}

// ParseEncoders extracts encoder names from `ffmpeg -encoders` output.
// Entries follow the "------" separator as "<flags> <name> <description>".
func ParseEncoders(out []byte) []string {
	var names []string
	started := false
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !started {
			started = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		names = append(names, fields[1])
	}
	return names
}

func hasEncoder(names []string, sub string) bool {
	for _, n := range names {
		if strings.Contains(n, sub) {
			return true
		}
	}
	return false
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func lastLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
