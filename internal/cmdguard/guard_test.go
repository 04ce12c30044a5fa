package cmdguard

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/testguard/internal/enforce"
	"github.com/ppiankov/testguard/internal/model"
	"github.com/ppiankov/testguard/internal/policy"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a unix shell")
	}
}

func activeSession(t *testing.T) *enforce.Context {
	t.Helper()
	dir := t.TempDir()
	reg, err := policy.NewRegistry(&policy.Config{TestMode: true, BaseDir: dir, AllowedPathRoots: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	c := enforce.New(reg, enforce.WithLogger(slog.New(slog.DiscardHandler)))
	if err := c.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	t.Cleanup(func() { c.Uninstall() })
	return c
}

func TestRunBlockedInSession(t *testing.T) {
	c := activeSession(t)
	g := New(nil, Config{})

	_, err := g.Run(context.Background(), "ls", []string{"-la"}, nil)
	if !errors.Is(err, enforce.ErrProcessSpawnBlocked) {
		t.Fatalf("expected ErrProcessSpawnBlocked, got %v", err)
	}
	events := c.Log().Snapshot()
	if len(events) != 1 || events[0].Surface != model.SurfaceCommand || events[0].Target != "ls -la" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestRunShellBlockedInSession(t *testing.T) {
	c := activeSession(t)
	g := New(c.Gateway(), Config{})

	_, err := g.RunShell(context.Background(), "echo $HOME", nil)
	if !errors.Is(err, enforce.ErrProcessSpawnBlocked) {
		t.Fatalf("expected ErrProcessSpawnBlocked, got %v", err)
	}
	if ev := c.Log().Snapshot()[0]; ev.Surface != model.SurfaceShell {
		t.Errorf("expected shell surface, got %q", ev.Surface)
	}
}

func TestRunOutsideSession(t *testing.T) {
	skipOnWindows(t)
	g := New(nil, Config{})
	result, err := g.Run(context.Background(), "echo", []string{"hello"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("expected hello, got %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestExitCodeCaptured(t *testing.T) {
	skipOnWindows(t)
	g := New(nil, Config{})
	result, err := g.RunShell(context.Background(), "echo oops >&2; exit 3", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", result.ExitCode)
	}
	if strings.TrimSpace(result.Stderr) != "oops" {
		t.Errorf("expected stderr captured, got %q", result.Stderr)
	}
}

func TestTimeout(t *testing.T) {
	skipOnWindows(t)
	g := New(nil, Config{Timeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := g.Run(context.Background(), "sleep", []string{"5"}, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout did not stop the command")
	}
}

func TestContextCancellation(t *testing.T) {
	skipOnWindows(t)
	g := New(nil, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Run(ctx, "sleep", []string{"5"}, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestStdinPassthrough(t *testing.T) {
	skipOnWindows(t)
	g := New(nil, Config{})
	input := "piped input\n"
	result, err := g.Run(context.Background(), "cat", nil, strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stdout != input {
		t.Errorf("expected stdout %q, got %q", input, result.Stdout)
	}
}

func TestOutputTruncation(t *testing.T) {
	skipOnWindows(t)
	g := New(nil, Config{MaxOutput: 4})
	result, err := g.Run(context.Background(), "echo", []string{"truncate me"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.StdoutTruncated || result.Stdout != "trun" {
		t.Errorf("expected truncated stdout, got %q truncated=%v", result.Stdout, result.StdoutTruncated)
	}
	if result.StderrTruncated {
		t.Error("stderr should not be truncated for echo")
	}
}

func TestRedaction(t *testing.T) {
	skipOnWindows(t)
	g := New(nil, Config{Redact: true})
	result, err := g.Run(context.Background(), "echo", []string{"API_KEY=abc"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(result.Stdout, "abc") || result.Redacted != 1 {
		t.Errorf("expected redaction, got %q (%d)", result.Stdout, result.Redacted)
	}
}

func TestMissingBinary(t *testing.T) {
	g := New(nil, Config{})
	_, err := g.Run(context.Background(), "testguard-no-such-binary", nil, nil)
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("missing binary is not a timeout")
	}
}

func TestLimitedWriterUnderLimit(t *testing.T) {
	w := newLimitedWriter(1024)
	data := []byte("hello world")
	n, err := w.Write(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(data) {
		t.Errorf("expected %d bytes written, got %d", len(data), n)
	}
	if w.truncated {
		t.Error("expected no truncation")
	}
	if w.String() != "hello world" {
		t.Errorf("expected 'hello world', got %q", w.String())
	}
}

func TestLimitedWriterAtLimit(t *testing.T) {
	w := newLimitedWriter(5)
	n, err := w.Write([]byte("helloworld"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 10 {
		t.Errorf("expected 10 reported (full consumption), got %d", n)
	}
	if !w.truncated {
		t.Error("expected truncation")
	}
	if w.String() != "hello" {
		t.Errorf("expected 'hello', got %q", w.String())
	}
}

func TestLimitedWriterMultipleWrites(t *testing.T) {
	w := newLimitedWriter(10)
	w.Write([]byte("12345"))
	w.Write([]byte("67890"))
	w.Write([]byte("overflow"))

	if !w.truncated {
		t.Error("expected truncation on third write")
	}
	if w.String() != "1234567890" {
		t.Errorf("expected '1234567890', got %q", w.String())
	}
}
