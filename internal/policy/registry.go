package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/ppiankov/testguard/internal/denylist"
	"github.com/ppiankov/testguard/internal/model"
	"github.com/ppiankov/testguard/internal/pathutil"
)

// Rule is one ordered policy entry. The first rule of a category whose
// Match returns true decides the operation.
type Rule struct {
	ID       string
	Category model.Category
	Decision model.Decision
	Reason   string
	Match    func(target string) bool
}

// Registry is the immutable sandbox policy. Safe for concurrent use.
type Registry struct {
	testMode  bool
	baseDir   string
	roots     []string
	protected *denylist.Denylist
	whitelist map[string]struct{}
	hash      string
	rules     []Rule
	cfg       Config
}

// Reasons recorded on filesystem write decisions.
const (
	ReasonProtected    = "protected file"
	ReasonOutsideRoots = "outside allowed roots"
	ReasonUnresolvable = "unresolvable path"
	ReasonUnderRoot    = "under allowed root"
)

// NewRegistry validates cfg and builds a Registry. Relative roots and
// protected entries are resolved against cfg.BaseDir (cwd when empty).
func NewRegistry(cfg *Config) (*Registry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	baseDir := cfg.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("policy: resolve base dir: %w", err)
		}
		baseDir = wd
	}
	baseDir, err := pathutil.Canonicalize(baseDir)
	if err != nil {
		return nil, fmt.Errorf("policy: base dir: %w", err)
	}

	r := &Registry{
		testMode:  cfg.TestMode,
		baseDir:   baseDir,
		whitelist: make(map[string]struct{}, len(cfg.EnvWhitelist)),
		cfg:       cfg.clone(),
	}

	for _, root := range cfg.AllowedPathRoots {
		if root == "" {
			continue
		}
		if !filepath.IsAbs(root) {
			root = filepath.Join(baseDir, root)
		}
		canonical, err := pathutil.Canonicalize(root)
		if err != nil {
			return nil, fmt.Errorf("policy: allowed root %q: %w", root, err)
		}
		if !slices.Contains(r.roots, canonical) {
			r.roots = append(r.roots, canonical)
		}
	}

	entries := append([]string(nil), cfg.ProtectedFiles...)
	if cfg.ProtectedFilesPath != "" {
		extra, err := loadPatterns(cfg.ProtectedFilesPath)
		if err != nil {
			return nil, err
		}
		entries = append(entries, extra...)
	}
	r.protected, err = denylist.New(entries, baseDir)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	for _, name := range cfg.EnvWhitelist {
		if name != "" {
			r.whitelist[name] = struct{}{}
		}
	}

	data, err := cfg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("policy: hash config: %w", err)
	}
	h := sha256.Sum256(data)
	r.hash = "sha256:" + hex.EncodeToString(h[:])

	r.rules = r.buildRules()
	return r, nil
}

// Load reads the config at path (see LoadConfigWithHash) and builds a
// Registry whose hash is the hash of the file on disk.
func Load(path string) (*Registry, error) {
	cfg, hash, err := LoadConfigWithHash(path)
	if err != nil {
		return nil, err
	}
	r, err := NewRegistry(cfg)
	if err != nil {
		return nil, err
	}
	r.hash = hash
	return r, nil
}

func loadPatterns(path string) ([]string, error) {
	dl, err := denylist.Load(path, "")
	if err != nil {
		return nil, fmt.Errorf("policy: protected files: %w", err)
	}
	return dl.Entries(), nil
}

func (r *Registry) buildRules() []Rule {
	always := func(string) bool { return true }
	return []Rule{
		{ID: "network.block", Category: model.Network, Decision: model.Block,
			Reason: "network sockets are not allowed in test mode", Match: always},
		{ID: "process.block", Category: model.ProcessSpawn, Decision: model.Block,
			Reason: "process spawning is not allowed in test mode", Match: always},
		{ID: "fs.protected", Category: model.FilesystemWrite, Decision: model.Block,
			Reason: ReasonProtected, Match: func(p string) bool {
				blocked, _ := r.protected.IsProtected(p)
				return blocked
			}},
		{ID: "fs.outside_roots", Category: model.FilesystemWrite, Decision: model.Block,
			Reason: ReasonOutsideRoots, Match: func(p string) bool { return !r.withinRoots(p) }},
		{ID: "fs.allowed_root", Category: model.FilesystemWrite, Decision: model.Allow,
			Reason: ReasonUnderRoot, Match: always},
		{ID: "env.whitelist", Category: model.EnvMutation, Decision: model.Allow,
			Reason: "whitelisted variable", Match: r.EnvAllowed},
		{ID: "env.block", Category: model.EnvMutation, Decision: model.Block,
			Reason: "variable is not in the env whitelist", Match: always},
		{ID: "clock.block", Category: model.ClockControl, Decision: model.Block,
			Reason: "system clock and file time control is not allowed in test mode", Match: always},
		{ID: "clock_patch.block", Category: model.ClockPatch, Decision: model.Block,
			Reason: "replacing the clock is not allowed in test mode", Match: always},
		{ID: "permission.block", Category: model.PermissionChange, Decision: model.Block,
			Reason: "permission changes are not allowed in test mode", Match: always},
		{ID: "database.block", Category: model.Database, Decision: model.Block,
			Reason: "database connections are not allowed in test mode", Match: always},
	}
}

// Evaluate decides op. Filesystem targets are canonicalized first; use
// Resolve to also get the canonical target back. Categories without a
// matching rule are blocked.
func (r *Registry) Evaluate(op model.Operation) model.Verdict {
	_, v := r.Resolve(op)
	return v
}

// Resolve decides op and returns it with the target in the form the
// decision was made on.
func (r *Registry) Resolve(op model.Operation) (model.Operation, model.Verdict) {
	if op.Category == model.FilesystemWrite {
		canonicalize := pathutil.Canonicalize
		if op.Surface == model.SurfaceRemove || op.Surface == model.SurfaceRename {
			canonicalize = pathutil.CanonicalizeEntry
		}
		canonical, err := canonicalize(op.Target)
		if err != nil {
			return op, model.BlockVerdict("fs.unresolvable", ReasonUnresolvable)
		}
		op.Target = canonical
	}

	for _, rule := range r.rules {
		if rule.Category != op.Category || !rule.Match(op.Target) {
			continue
		}
		v := model.Verdict{Decision: rule.Decision, Reason: rule.Reason, RuleID: rule.ID}
		if rule.ID == "fs.protected" {
			if _, detail := r.protected.IsProtected(op.Target); detail != "" {
				v.Reason = detail
			}
		}
		return op, v
	}
	return op, model.BlockVerdict("default.block", "no rule permits "+string(op.Category))
}

// CheckWrite runs the two-stage write decision: protected files first,
// then allowed roots. Returns the canonical path the decision used.
func (r *Registry) CheckWrite(path string) (string, model.Verdict) {
	op, v := r.Resolve(model.Operation{Category: model.FilesystemWrite, Target: path})
	return op.Target, v
}

// CheckEnv decides mutation of the named variable.
func (r *Registry) CheckEnv(name string) model.Verdict {
	return r.Evaluate(model.Operation{Category: model.EnvMutation, Target: name})
}

// EnvAllowed reports whether name is in the whitelist.
func (r *Registry) EnvAllowed(name string) bool {
	_, ok := r.whitelist[name]
	return ok
}

func (r *Registry) withinRoots(canonical string) bool {
	for _, root := range r.roots {
		if pathutil.Within(canonical, root) {
			return true
		}
	}
	return false
}

// TestMode reports whether the registry was built with test mode on.
func (r *Registry) TestMode() bool { return r.testMode }

// Hash returns the policy content hash ("sha256:<hex>").
func (r *Registry) Hash() string { return r.hash }

// BaseDir returns the canonical base directory.
func (r *Registry) BaseDir() string { return r.baseDir }

// Roots returns the canonical allowed roots in config order.
func (r *Registry) Roots() []string { return append([]string(nil), r.roots...) }

// Protected returns the protected file set.
func (r *Registry) Protected() *denylist.Denylist { return r.protected }

// Whitelist returns the env whitelist, sorted.
func (r *Registry) Whitelist() []string {
	out := make([]string, 0, len(r.whitelist))
	for name := range r.whitelist {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Rules returns the ordered rule list.
func (r *Registry) Rules() []Rule { return append([]Rule(nil), r.rules...) }

// Config returns a copy of the config the registry was built from.
func (r *Registry) Config() Config { return r.cfg.clone() }

// AuditLogPath and AuditDBPath name the durable sinks, if configured.
func (r *Registry) AuditLogPath() string { return r.cfg.AuditLog }
func (r *Registry) AuditDBPath() string  { return r.cfg.AuditDB }
