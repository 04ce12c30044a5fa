package testguard

import (
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/ppiankov/testguard/internal/enforce"
	"github.com/ppiankov/testguard/internal/policy"
)

// Session is an installed enforcement context.
type Session struct {
	ctx *enforce.Context
}

// Start loads the policy, opens its audit sinks and installs a session.
func Start(opts ...Option) (*Session, error) {
	cfg := sessionConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	var (
		reg *policy.Registry
		err error
	)
	if cfg.config != nil {
		reg, err = policy.NewRegistry(cfg.config)
	} else {
		reg, err = policy.Load(cfg.policyPath)
	}
	if err != nil {
		return nil, fmt.Errorf("testguard: failed to load policy: %w", err)
	}

	var ctxOpts []enforce.Option
	if cfg.logger != nil {
		ctxOpts = append(ctxOpts, enforce.WithLogger(cfg.logger))
	}
	if cfg.sessionID != "" {
		ctxOpts = append(ctxOpts, enforce.WithSessionID(cfg.sessionID))
	}
	c, err := enforce.Open(reg, ctxOpts...)
	if err != nil {
		return nil, fmt.Errorf("testguard: failed to open audit sinks: %w", err)
	}
	if err := c.Install(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &Session{ctx: c}, nil
}

// Close uninstalls the session and closes its audit sinks.
func (s *Session) Close() error { return s.ctx.Close() }

// ID returns the session id stamped on every event.
func (s *Session) ID() string { return s.ctx.SessionID() }

// Gateway returns a gateway bound to this session.
func (s *Session) Gateway() *Gateway { return s.ctx.Gateway() }

// Events returns a copy of the audit events recorded so far.
func (s *Session) Events() []Event { return s.ctx.Log().Snapshot() }

// Context returns the underlying enforcement context.
func (s *Session) Context() *enforce.Context { return s.ctx }

// Runner is satisfied by *testing.M.
type Runner interface {
	Run() int
}

// Run wraps m.Run in a session for use from TestMain. It returns 2
// without running tests when the session cannot be started.
func Run(m Runner, opts ...Option) int {
	return run(m, os.Stderr, opts...)
}

func run(m Runner, stderr io.Writer, opts ...Option) int {
	s, err := Start(opts...)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	code := m.Run()
	if err := s.Close(); err != nil {
		fmt.Fprintln(stderr, err)
	}
	return code
}

// Install starts a session for the duration of t.
func Install(t testing.TB, opts ...Option) *Session {
	t.Helper()
	s, err := Start(opts...)
	if err != nil {
		t.Fatalf("testguard: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Skip records a skip outcome in the active session and skips t.
func Skip(t testing.TB, reason string) {
	t.Helper()
	if c := enforce.Active(); c != nil {
		c.Skip(t.Name(), reason)
	}
	t.Skip(reason)
}

// Xfail records that t is expected to fail and skips it.
func Xfail(t testing.TB, reason string) {
	t.Helper()
	if c := enforce.Active(); c != nil {
		c.Xfail(t.Name(), reason)
	}
	t.Skip("xfail: " + reason)
}
