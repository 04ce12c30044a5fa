package testguard

import (
	"github.com/ppiankov/testguard/internal/audit"
	"github.com/ppiankov/testguard/internal/enforce"
	"github.com/ppiankov/testguard/internal/model"
)

// Violation is the error returned by a guarded operation the policy blocks.
type Violation = enforce.Violation

// Event is one audit log entry.
type Event = audit.Event

// Gateway exposes the guarded primitives.
type Gateway = enforce.Gateway

// Decision is an audit decision (allow, block, skip, xfail).
type Decision = model.Decision

const (
	DecisionAllow = model.Allow
	DecisionBlock = model.Block
	DecisionSkip  = model.Skip
	DecisionXfail = model.Xfail
)

// Default is the gateway bound to whichever session is active.
var Default = enforce.Default

// Sentinels for errors.Is against a *Violation.
var (
	ErrNetworkBlocked          = enforce.ErrNetworkBlocked
	ErrProcessSpawnBlocked     = enforce.ErrProcessSpawnBlocked
	ErrFilesystemWriteBlocked  = enforce.ErrFilesystemWriteBlocked
	ErrEnvMutationBlocked      = enforce.ErrEnvMutationBlocked
	ErrTimeControlBlocked      = enforce.ErrTimeControlBlocked
	ErrClockPatchBlocked       = enforce.ErrClockPatchBlocked
	ErrPermissionChangeBlocked = enforce.ErrPermissionChangeBlocked
	ErrDatabaseBlocked         = enforce.ErrDatabaseBlocked
)

// Lifecycle sentinels.
var (
	ErrAlreadyActive    = enforce.ErrAlreadyActive
	ErrTestModeDisabled = enforce.ErrTestModeDisabled
)
