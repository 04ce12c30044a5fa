package enforce

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ppiankov/testguard/internal/audit"
	"github.com/ppiankov/testguard/internal/model"
	"github.com/ppiankov/testguard/internal/policy"
)

// active is the process-wide enforcement context, nil when none is installed.
var active atomic.Pointer[Context]

const (
	stateNew int32 = iota
	stateActive
	stateDone
)

// Context is one enforcement session: a policy registry, an audit log and
// a session id. At most one Context is active per process.
type Context struct {
	registry  *policy.Registry
	log       *audit.Log
	sessionID string
	logger    *slog.Logger
	state     atomic.Int32
}

// Option configures a Context.
type Option func(*Context)

// WithLog uses l instead of a fresh in-memory log.
func WithLog(l *audit.Log) Option {
	return func(c *Context) {
		if l != nil {
			c.log = l
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(c *Context) {
		if id != "" {
			c.sessionID = id
		}
	}
}

// New creates an uninstalled Context over reg with an in-memory audit log.
func New(reg *policy.Registry, opts ...Option) *Context {
	c := &Context{
		registry:  reg,
		sessionID: uuid.NewString(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = audit.NewLog(audit.WithLogger(c.logger))
	}
	c.logger = c.logger.With("session", c.sessionID)
	return c
}

// Open is New plus the durable sinks named in the registry config
// (hash-chained JSONL file, sqlite database).
func Open(reg *policy.Registry, opts ...Option) (*Context, error) {
	c := New(reg, opts...)
	if p := reg.AuditLogPath(); p != "" {
		fs, err := audit.OpenFile(p, reg.Hash())
		if err != nil {
			return nil, err
		}
		c.log.AddSink(fs)
	}
	if p := reg.AuditDBPath(); p != "" {
		db, err := audit.OpenSQLite(p)
		if err != nil {
			_ = c.log.Close()
			return nil, err
		}
		c.log.AddSink(db)
	}
	return c, nil
}

// Install makes c the active context. It fails if the registry is not in
// test mode, if another context is active, or if c was installed before.
func (c *Context) Install() error {
	if !c.registry.TestMode() {
		return &LifecycleError{Op: "install", Err: ErrTestModeDisabled}
	}
	if !c.state.CompareAndSwap(stateNew, stateActive) {
		if c.state.Load() == stateDone {
			return &LifecycleError{Op: "install", Err: ErrContextUsed}
		}
		return &LifecycleError{Op: "install", Err: ErrAlreadyActive}
	}
	if !active.CompareAndSwap(nil, c) {
		c.state.Store(stateNew)
		return &LifecycleError{Op: "install", Err: ErrAlreadyActive}
	}

	c.logger.Info("enforcement installed",
		"policy_hash", c.registry.Hash(),
		"roots", c.registry.Roots(),
	)
	return nil
}

// Uninstall deactivates c. Guarded primitives pass through afterwards.
func (c *Context) Uninstall() error {
	if !active.CompareAndSwap(c, nil) {
		return &LifecycleError{Op: "uninstall", Err: ErrNotActive}
	}
	c.state.Store(stateDone)

	c.logger.Info("enforcement uninstalled",
		"events", c.log.Len(),
		"blocked", c.log.Count(model.Block),
	)
	return nil
}

// Close uninstalls c if active and closes its durable sinks.
func (c *Context) Close() error {
	var errs []error
	if c.IsActive() {
		errs = append(errs, c.Uninstall())
	}
	errs = append(errs, c.log.Close())
	return errors.Join(errs...)
}

// Active returns the installed context, or nil.
func Active() *Context {
	return active.Load()
}

// IsActive reports whether c is the installed context.
func (c *Context) IsActive() bool {
	return active.Load() == c
}

// SessionID returns the session id stamped on every event.
func (c *Context) SessionID() string { return c.sessionID }

// Registry returns the policy registry.
func (c *Context) Registry() *policy.Registry { return c.registry }

// Log returns the audit log.
func (c *Context) Log() *audit.Log { return c.log }

// Gateway returns a gateway bound to c.
func (c *Context) Gateway() *Gateway { return NewGateway(WithContext(c)) }

// Skip records that test was skipped.
func (c *Context) Skip(test, reason string) audit.Event {
	return c.outcome(model.Skip, test, reason)
}

// Xfail records that test is expected to fail.
func (c *Context) Xfail(test, reason string) audit.Event {
	return c.outcome(model.Xfail, test, reason)
}

func (c *Context) outcome(d model.Decision, test, reason string) audit.Event {
	ev := c.log.Append(audit.Record{
		SessionID: c.sessionID,
		Category:  model.TestOutcome,
		Target:    test,
		Decision:  d,
		Reason:    reason,
	})
	c.logger.Info("test outcome declared", "decision", d, "test", test, "reason", reason)
	return ev
}

// decide evaluates op against the registry and appends the decision.
// The returned operation carries the target the decision was made on.
func (c *Context) decide(op model.Operation) (model.Operation, error) {
	resolved, v := c.registry.Resolve(op)
	return resolved, c.record(resolved, v)
}

// decideAll decides ops that one call performs together. Nothing is
// appended until every op is decided: if any is blocked only the first
// block is recorded, otherwise each op is recorded as allowed.
func (c *Context) decideAll(ops []model.Operation) ([]model.Operation, error) {
	resolved := make([]model.Operation, len(ops))
	verdicts := make([]model.Verdict, len(ops))
	for i, op := range ops {
		resolved[i], verdicts[i] = c.registry.Resolve(op)
	}
	for i, v := range verdicts {
		if !v.Allowed() {
			return resolved, c.record(resolved[i], v)
		}
	}
	for i, v := range verdicts {
		c.record(resolved[i], v)
	}
	return resolved, nil
}

func (c *Context) record(op model.Operation, v model.Verdict) error {
	ev := c.log.Append(audit.Record{
		SessionID: c.sessionID,
		Category:  op.Category,
		Surface:   op.Surface,
		Target:    op.Target,
		Decision:  v.Decision,
		Reason:    v.Reason,
		RuleID:    v.RuleID,
	})
	if v.Allowed() {
		return nil
	}

	c.logger.Warn("operation blocked",
		"seq", ev.Seq,
		"category", op.Category,
		"surface", op.Surface,
		"target", op.Target,
		"reason", v.Reason,
	)
	return &Violation{
		Kind:     KindFor(op.Category),
		Category: op.Category,
		Surface:  op.Surface,
		Target:   op.Target,
		Reason:   v.Reason,
		RuleID:   v.RuleID,
		Seq:      ev.Seq,
	}
}

func (c *Context) String() string {
	return fmt.Sprintf("enforce.Context{session=%s active=%v}", c.sessionID, c.IsActive())
}
