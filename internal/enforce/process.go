package enforce

import (
	"context"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ppiankov/testguard/internal/model"
)

// Command prepares name with args. The command line is decided before
// the *exec.Cmd exists, so a blocked spawn never reaches the OS.
func (g *Gateway) Command(ctx context.Context, name string, args ...string) (*exec.Cmd, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	if _, err := g.guard(model.ProcessSpawn, model.SurfaceCommand, line); err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, name, args...), nil
}

// Shell prepares script for the system shell.
func (g *Gateway) Shell(ctx context.Context, script string) (*exec.Cmd, error) {
	if _, err := g.guard(model.ProcessSpawn, model.SurfaceShell, script); err != nil {
		return nil, err
	}
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", script), nil
	}
	return exec.CommandContext(ctx, "sh", "-c", script), nil
}
