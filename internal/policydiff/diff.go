package policydiff

import (
	"fmt"
	"slices"

	"github.com/ppiankov/testguard/internal/policy"
)

// Change represents a scalar field change or a list entry added/removed.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// DiffResult holds the comparison of two policy configs.
type DiffResult struct {
	OldPath    string   `json:"old_path"`
	NewPath    string   `json:"new_path"`
	Changes    []Change `json:"changes"`
	HasChanges bool     `json:"has_changes"`
}

// Diff compares two policy configs and returns the differences.
// Each change is labelled stricter or looser where that is meaningful.
func Diff(old, new *policy.Config) *DiffResult {
	r := &DiffResult{}

	if old.TestMode != new.TestMode {
		comment := "looser"
		if new.TestMode {
			comment = "stricter"
		}
		r.Changes = append(r.Changes, Change{
			Field:   "test_mode",
			Old:     fmt.Sprintf("%v", old.TestMode),
			New:     fmt.Sprintf("%v", new.TestMode),
			Comment: comment,
		})
	}

	diffString(r, "base_dir", old.BaseDir, new.BaseDir)
	diffString(r, "protected_files_path", old.ProtectedFilesPath, new.ProtectedFilesPath)
	diffString(r, "audit_log", old.AuditLog, new.AuditLog)
	diffString(r, "audit_db", old.AuditDB, new.AuditDB)

	// Adding a root or whitelisted variable widens the sandbox; adding a
	// protected file narrows it.
	diffList(r, "allowed_path_roots", old.AllowedPathRoots, new.AllowedPathRoots, false)
	diffList(r, "protected_files", old.ProtectedFiles, new.ProtectedFiles, true)
	diffList(r, "env_whitelist", old.EnvWhitelist, new.EnvWhitelist, false)

	r.HasChanges = len(r.Changes) > 0
	return r
}

func diffString(r *DiffResult, field, old, new string) {
	if old != new {
		r.Changes = append(r.Changes, Change{Field: field, Old: old, New: new})
	}
}

func diffList(r *DiffResult, field string, oldItems, newItems []string, addIsStricter bool) {
	added, removed := "added, looser", "removed, stricter"
	if addIsStricter {
		added, removed = "added, stricter", "removed, looser"
	}

	for _, item := range newItems {
		if !slices.Contains(oldItems, item) {
			r.Changes = append(r.Changes, Change{Field: field, New: item, Comment: added})
		}
	}
	for _, item := range oldItems {
		if !slices.Contains(newItems, item) {
			r.Changes = append(r.Changes, Change{Field: field, Old: item, Comment: removed})
		}
	}
}

// DiffFiles loads two policy files and compares them. Environment
// overrides are not applied, so the result reflects the files alone.
func DiffFiles(oldPath, newPath string) (*DiffResult, error) {
	old, err := policy.ReadConfig(oldPath)
	if err != nil {
		return nil, err
	}
	new, err := policy.ReadConfig(newPath)
	if err != nil {
		return nil, err
	}
	r := Diff(old, new)
	r.OldPath, r.NewPath = oldPath, newPath
	return r, nil
}
