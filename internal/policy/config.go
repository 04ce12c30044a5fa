package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/testguard/internal/denylist"
)

// Environment variables recognized by the config layer.
const (
	EnvTestMode   = "TESTGUARD_TEST_MODE"
	EnvPolicyPath = "TESTGUARD_POLICY"
)

// Config holds the static sandbox policy for one test session.
type Config struct {
	TestMode bool `yaml:"test_mode"`

	// BaseDir anchors relative roots and protected entries.
	// Empty means the working directory at registry construction.
	BaseDir string `yaml:"base_dir,omitempty"`

	AllowedPathRoots []string `yaml:"allowed_path_roots"`
	ProtectedFiles   []string `yaml:"protected_files"`

	// ProtectedFilesPath names an extra YAML file in denylist format
	// ("files: [...]") whose entries are appended to ProtectedFiles.
	ProtectedFilesPath string `yaml:"protected_files_path,omitempty"`

	EnvWhitelist []string `yaml:"env_whitelist"`

	// Optional durable audit sinks.
	AuditLog string `yaml:"audit_log,omitempty"`
	AuditDB  string `yaml:"audit_db,omitempty"`
}

// DefaultConfig returns the built-in policy: writes allowed under the
// working directory and the system temp dir, .env and the watchdog marker
// protected, and only module search path variables mutable.
func DefaultConfig() *Config {
	return &Config{
		TestMode:         false,
		AllowedPathRoots: []string{".", os.TempDir()},
		ProtectedFiles:   append([]string(nil), denylist.DefaultProtectedFiles...),
		EnvWhitelist:     []string{"PATH", "PYTHONPATH", "GOPATH"},
	}
}

// DefaultPath returns ~/.testguard/policy.yaml, or "" if the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".testguard", "policy.yaml")
}

// ResolvePath picks the config path: explicit path, then $TESTGUARD_POLICY,
// then DefaultPath.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if p := os.Getenv(EnvPolicyPath); p != "" {
		return p
	}
	return DefaultPath()
}

// LoadConfig loads policy configuration from a YAML file.
// Empty path falls back to $TESTGUARD_POLICY, then ~/.testguard/policy.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
// Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads policy configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*Config, string, error) {
	path = ResolvePath(path)

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to read policy config: %w", err)
		}
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	cfg, err := parseConfig(path, data)
	if err != nil {
		return nil, "", err
	}
	if err := ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, "", err
	}
	return cfg, hash, nil
}

// ReadConfig parses the policy file at path on top of the defaults.
// Unlike LoadConfig the file must exist and no env overrides apply.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy config: %w", err)
	}
	return parseConfig(path, data)
}

// parseConfig starts with defaults; YAML overwrites only specified fields.
func parseConfig(path string, data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}
	if cfg.BaseDir != "" && !filepath.IsAbs(cfg.BaseDir) {
		cfg.BaseDir = filepath.Join(filepath.Dir(path), cfg.BaseDir)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides to cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvTestMode)); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvTestMode, v, err)
		}
		cfg.TestMode = on
	}
	return nil
}

func (c *Config) clone() Config {
	out := *c
	out.AllowedPathRoots = append([]string(nil), c.AllowedPathRoots...)
	out.ProtectedFiles = append([]string(nil), c.ProtectedFiles...)
	out.EnvWhitelist = append([]string(nil), c.EnvWhitelist...)
	return out
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteDefault writes the default policy (with test mode on) to path.
// Refuses to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create policy directory: %w", err)
	}

	cfg := DefaultConfig()
	cfg.TestMode = true
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("marshal default policy: %w", err)
	}
	header := "# testguard sandbox policy\n# Writes are allowed only under allowed_path_roots; protected_files always win.\n"
	return os.WriteFile(path, append([]byte(header), data...), 0600)
}
