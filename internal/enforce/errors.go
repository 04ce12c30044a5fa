package enforce

import (
	"errors"
	"fmt"

	"github.com/ppiankov/testguard/internal/model"
)

// Kind classifies a violation by guard.
type Kind string

const (
	KindNetworkBlocked          Kind = "NetworkBlocked"
	KindProcessSpawnBlocked     Kind = "ProcessSpawnBlocked"
	KindFilesystemWriteBlocked  Kind = "FilesystemWriteBlocked"
	KindEnvMutationBlocked      Kind = "EnvMutationBlocked"
	KindTimeControlBlocked      Kind = "TimeControlBlocked"
	KindClockPatchBlocked       Kind = "ClockPatchBlocked"
	KindPermissionChangeBlocked Kind = "PermissionChangeBlocked"
	KindDatabaseBlocked         Kind = "DatabaseBlocked"
)

// Sentinels matched by errors.Is against a *Violation of the same kind.
var (
	ErrNetworkBlocked          = errors.New("network blocked")
	ErrProcessSpawnBlocked     = errors.New("process spawn blocked")
	ErrFilesystemWriteBlocked  = errors.New("filesystem write blocked")
	ErrEnvMutationBlocked      = errors.New("env mutation blocked")
	ErrTimeControlBlocked      = errors.New("time control blocked")
	ErrClockPatchBlocked       = errors.New("clock patch blocked")
	ErrPermissionChangeBlocked = errors.New("permission change blocked")
	ErrDatabaseBlocked         = errors.New("database blocked")
)

var kindByCategory = map[model.Category]Kind{
	model.Network:          KindNetworkBlocked,
	model.ProcessSpawn:     KindProcessSpawnBlocked,
	model.FilesystemWrite:  KindFilesystemWriteBlocked,
	model.EnvMutation:      KindEnvMutationBlocked,
	model.ClockControl:     KindTimeControlBlocked,
	model.ClockPatch:       KindClockPatchBlocked,
	model.PermissionChange: KindPermissionChangeBlocked,
	model.Database:         KindDatabaseBlocked,
}

var sentinelByKind = map[Kind]error{
	KindNetworkBlocked:          ErrNetworkBlocked,
	KindProcessSpawnBlocked:     ErrProcessSpawnBlocked,
	KindFilesystemWriteBlocked:  ErrFilesystemWriteBlocked,
	KindEnvMutationBlocked:      ErrEnvMutationBlocked,
	KindTimeControlBlocked:      ErrTimeControlBlocked,
	KindClockPatchBlocked:       ErrClockPatchBlocked,
	KindPermissionChangeBlocked: ErrPermissionChangeBlocked,
	KindDatabaseBlocked:         ErrDatabaseBlocked,
}

// KindFor returns the violation kind raised by the guard of category c.
func KindFor(c model.Category) Kind {
	if k, ok := kindByCategory[c]; ok {
		return k
	}
	return Kind(string(c) + "_blocked")
}

// Violation is returned when a guard blocks an operation. The matching
// audit event has already been appended when the caller sees it.
type Violation struct {
	Kind     Kind
	Category model.Category
	Surface  string
	Target   string
	Reason   string
	RuleID   string
	Seq      uint64 // audit sequence number of the block event
}

func (v *Violation) Error() string {
	return fmt.Sprintf("testguard: %s: %s (%s %q)", v.Kind, v.Reason, v.Surface, v.Target)
}

// Is matches the sentinel for v.Kind.
func (v *Violation) Is(target error) bool {
	if s, ok := sentinelByKind[v.Kind]; ok {
		return s == target
	}
	return false
}

// Lifecycle sentinels.
var (
	ErrAlreadyActive    = errors.New("another enforcement context is already active")
	ErrNotActive        = errors.New("enforcement context is not active")
	ErrTestModeDisabled = errors.New("test mode is disabled in the policy")
	ErrContextUsed      = errors.New("enforcement context was already installed once")
)

// LifecycleError reports a failed Install or Uninstall.
type LifecycleError struct {
	Op  string // "install" or "uninstall"
	Err error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("testguard: %s: %v", e.Op, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }
