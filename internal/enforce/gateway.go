package enforce

import (
	"sync/atomic"
	"time"

	"github.com/ppiankov/testguard/internal/model"
)

// Clock is the time source a Gateway hands out.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}

type clockBox struct{ Clock }

// Gateway exposes the guarded counterparts of network, process, file,
// environment, clock, permission and database primitives. While its
// context is active each call is decided by the policy and audited;
// otherwise it behaves exactly like the unguarded primitive.
type Gateway struct {
	ctx   *Context
	clock atomic.Pointer[clockBox]
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithContext binds the gateway to c instead of the process-wide active context.
func WithContext(c *Context) GatewayOption {
	return func(g *Gateway) { g.ctx = c }
}

// WithClock sets the initial clock.
func WithClock(c Clock) GatewayOption {
	return func(g *Gateway) {
		if c != nil {
			g.clock.Store(&clockBox{c})
		}
	}
}

// NewGateway creates a Gateway. Without WithContext it follows whichever
// context is active at call time.
func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{}
	g.clock.Store(&clockBox{SystemClock})
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Default follows the process-wide active context.
var Default = NewGateway()

// session returns the context that governs calls right now, or nil.
func (g *Gateway) session() *Context {
	if g.ctx != nil {
		if g.ctx.IsActive() {
			return g.ctx
		}
		return nil
	}
	return Active()
}

// guard decides one operation. With no active session it returns the
// target unchanged and a nil error.
func (g *Gateway) guard(cat model.Category, surface, target string) (string, error) {
	c := g.session()
	if c == nil {
		return target, nil
	}
	op, err := c.decide(model.Operation{Category: cat, Surface: surface, Target: target})
	return op.Target, err
}

// Check decides op without performing it. The decision is audited like
// any guarded call. Returns nil when no session is active.
func (g *Gateway) Check(op model.Operation) error {
	_, err := g.guard(op.Category, op.Surface, op.Target)
	return err
}
