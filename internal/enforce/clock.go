package enforce

import (
	"os"
	"time"

	"github.com/ppiankov/testguard/internal/model"
)

// Now reads the gateway clock. Reading time is never guarded.
func (g *Gateway) Now() time.Time {
	return g.clock.Load().Now()
}

// Sleep pauses on the gateway clock.
func (g *Gateway) Sleep(d time.Duration) error {
	if _, err := g.guard(model.ClockControl, model.SurfaceSleep, d.String()); err != nil {
		return err
	}
	g.clock.Load().Sleep(d)
	return nil
}

// SetSystemClock sets the OS wall clock. Requires privileges and is
// unsupported on some platforms.
func (g *Gateway) SetSystemClock(t time.Time) error {
	if _, err := g.guard(model.ClockControl, model.SurfaceSetTime, t.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return setSystemClock(t)
}

// Chtimes is os.Chtimes.
func (g *Gateway) Chtimes(name string, atime, mtime time.Time) error {
	if _, err := g.guard(model.ClockControl, model.SurfaceUtime, name); err != nil {
		return err
	}
	return os.Chtimes(name, atime, mtime)
}

// SetClock replaces the gateway clock. Blocked while a session is active.
func (g *Gateway) SetClock(c Clock) error {
	if c == nil {
		c = SystemClock
	}
	if _, err := g.guard(model.ClockPatch, model.SurfaceSwapClock, clockName(c)); err != nil {
		return err
	}
	g.clock.Store(&clockBox{c})
	return nil
}

func clockName(c Clock) string {
	if c == SystemClock {
		return "system"
	}
	if s, ok := c.(interface{ String() string }); ok {
		return s.String()
	}
	return "custom"
}
