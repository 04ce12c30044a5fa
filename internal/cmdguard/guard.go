package cmdguard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/ppiankov/testguard/internal/enforce"
)

// Defaults for Config zero values.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxOutput = 1 << 20
)

// ErrTimeout is wrapped by the error Run returns when the command outlives its timeout.
var ErrTimeout = errors.New("command timed out")

// Config holds command guard configuration.
type Config struct {
	Timeout   time.Duration // per run; zero means DefaultTimeout
	MaxOutput int           // bytes kept per stream; zero means DefaultMaxOutput
	Redact    bool          // scrub secrets from captured output
}

// Result captures subprocess execution outcome.
type Result struct {
	Stdout          string        `json:"stdout"`
	Stderr          string        `json:"stderr"`
	ExitCode        int           `json:"exit_code"`
	StdoutTruncated bool          `json:"stdout_truncated,omitempty"`
	StderrTruncated bool          `json:"stderr_truncated,omitempty"`
	Redacted        int           `json:"redacted,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Guard runs subprocesses only through the gateway's process-spawn guard.
// While a session is active every run is refused with a violation.
type Guard struct {
	gw  *enforce.Gateway
	cfg Config
}

// New creates a Guard. A nil gateway means enforce.Default.
func New(gw *enforce.Gateway, cfg Config) *Guard {
	if gw == nil {
		gw = enforce.Default
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = DefaultMaxOutput
	}
	return &Guard{gw: gw, cfg: cfg}
}

// Run executes name with args if the gateway allows it.
func (g *Guard) Run(ctx context.Context, name string, args []string, stdin io.Reader) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	cmd, err := g.gw.Command(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	return g.run(ctx, cmd, stdin)
}

// RunShell executes script with the system shell if the gateway allows it.
func (g *Guard) RunShell(ctx context.Context, script string, stdin io.Reader) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	cmd, err := g.gw.Shell(ctx, script)
	if err != nil {
		return nil, err
	}
	return g.run(ctx, cmd, stdin)
}

func (g *Guard) run(ctx context.Context, cmd *exec.Cmd, stdin io.Reader) (*Result, error) {
	stdout := newLimitedWriter(g.cfg.MaxOutput)
	stderr := newLimitedWriter(g.cfg.MaxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("cmdguard: %s after %s: %w", cmd.Path, g.cfg.Timeout, ErrTimeout)
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		exitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Exited() {
			exitCode = status.ExitStatus()
		}
	}

	result := &Result{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExitCode:        exitCode,
		StdoutTruncated: stdout.truncated,
		StderrTruncated: stderr.truncated,
		Duration:        elapsed,
	}
	if g.cfg.Redact {
		var n, m int
		result.Stdout, n = ScanOutputFull(result.Stdout)
		result.Stderr, m = ScanOutputFull(result.Stderr)
		result.Redacted = n + m
	}
	return result, nil
}

// limitedWriter keeps the first limit bytes and reports full consumption
// so the child never blocks on a full pipe.
type limitedWriter struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newLimitedWriter(limit int) *limitedWriter {
	return &limitedWriter{limit: limit}
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	room := w.limit - w.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			w.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		w.buf.Write(p[:room])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *limitedWriter) String() string { return w.buf.String() }
