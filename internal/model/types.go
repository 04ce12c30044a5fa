package model

import "strings"

// Category identifies the class of guarded operation.
type Category string

const (
	Network          Category = "network"
	ProcessSpawn     Category = "process_spawn"
	FilesystemWrite  Category = "filesystem_write"
	EnvMutation      Category = "env_mutation"
	ClockControl     Category = "clock_control"
	ClockPatch       Category = "clock_patch"
	PermissionChange Category = "permission_change"
	Database         Category = "database"

	// TestOutcome tags skip and xfail declarations. Not a guard category.
	TestOutcome Category = "test_outcome"
)

// GuardCategories lists the categories that have a guard, in evaluation order.
var GuardCategories = []Category{
	Network,
	ProcessSpawn,
	FilesystemWrite,
	EnvMutation,
	ClockControl,
	ClockPatch,
	PermissionChange,
	Database,
}

// ParseCategory resolves a category name. Accepts the canonical snake_case
// form and a few short aliases used on the command line.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "network", "net":
		return Network, true
	case "process_spawn", "process", "spawn", "exec":
		return ProcessSpawn, true
	case "filesystem_write", "fs", "write", "file":
		return FilesystemWrite, true
	case "env_mutation", "env":
		return EnvMutation, true
	case "clock_control", "clock", "time":
		return ClockControl, true
	case "clock_patch":
		return ClockPatch, true
	case "permission_change", "perm", "chmod":
		return PermissionChange, true
	case "database", "db":
		return Database, true
	case "test_outcome":
		return TestOutcome, true
	}
	return "", false
}

// Decision is the outcome recorded for an operation.
type Decision string

const (
	Allow Decision = "allow"
	Block Decision = "block"
	Skip  Decision = "skip"
	Xfail Decision = "xfail"
)

// Surface names the concrete primitive used within a category.
const (
	SurfaceDial         = "dial"
	SurfaceListen       = "listen"
	SurfaceListenPacket = "listen_packet"
	SurfaceCommand      = "command"
	SurfaceShell        = "shell"
	SurfaceOpen         = "open"
	SurfaceCreate       = "create"
	SurfaceWriteFile    = "write_file"
	SurfaceMkdir        = "mkdir"
	SurfaceRemove       = "remove"
	SurfaceRename       = "rename"
	SurfaceSetenv       = "setenv"
	SurfaceUnsetenv     = "unsetenv"
	SurfaceSleep        = "sleep"
	SurfaceSetTime      = "settime"
	SurfaceUtime        = "utime"
	SurfaceSwapClock    = "swap_clock"
	SurfaceChmod        = "chmod"
	SurfaceChown        = "chown"
	SurfaceOpenDB       = "open_db"
)

// Operation describes one attempted guarded operation.
type Operation struct {
	Category Category `json:"category"`
	Surface  string   `json:"surface,omitempty"`
	Target   string   `json:"target"`
}

// Verdict is a guard's answer: Allow, or Block with a reason.
type Verdict struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason"`
	RuleID   string   `json:"rule_id,omitempty"`
}

// Allowed reports whether the verdict permits the operation.
func (v Verdict) Allowed() bool {
	return v.Decision == Allow
}

// AllowVerdict builds an Allow verdict.
func AllowVerdict(ruleID, reason string) Verdict {
	return Verdict{Decision: Allow, Reason: reason, RuleID: ruleID}
}

// BlockVerdict builds a Block verdict.
func BlockVerdict(ruleID, reason string) Verdict {
	return Verdict{Decision: Block, Reason: reason, RuleID: ruleID}
}
