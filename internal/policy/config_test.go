package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearPolicyEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvTestMode, "")
	t.Setenv(EnvPolicyPath, "")
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.TestMode {
		t.Error("test mode must be off by default")
	}
	if len(cfg.AllowedPathRoots) != 2 || cfg.AllowedPathRoots[0] != "." || cfg.AllowedPathRoots[1] != os.TempDir() {
		t.Errorf("unexpected default roots: %v", cfg.AllowedPathRoots)
	}
	if len(cfg.ProtectedFiles) != 2 {
		t.Errorf("expected 2 protected defaults, got %v", cfg.ProtectedFiles)
	}
	found := false
	for _, name := range cfg.EnvWhitelist {
		if name == "PATH" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected PATH in default whitelist, got %v", cfg.EnvWhitelist)
	}
}

func TestDefaultConfigIsFreshCopy(t *testing.T) {
	a := DefaultConfig()
	a.ProtectedFiles[0] = "mutated"
	b := DefaultConfig()
	if b.ProtectedFiles[0] == "mutated" {
		t.Error("DefaultConfig must not share slices between calls")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearPolicyEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TestMode || len(cfg.EnvWhitelist) != 3 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigEmptyPathUsesHome(t *testing.T) {
	clearPolicyEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	os.MkdirAll(filepath.Join(home, ".testguard"), 0700)
	os.WriteFile(filepath.Join(home, ".testguard", "policy.yaml"), []byte("test_mode: true\n"), 0600)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.TestMode {
		t.Error("expected test_mode from ~/.testguard/policy.yaml")
	}
}

func TestLoadConfigPolicyEnvPath(t *testing.T) {
	clearPolicyEnv(t)
	path := filepath.Join(t.TempDir(), "p.yaml")
	os.WriteFile(path, []byte("env_whitelist: [GOFLAGS]\n"), 0600)
	t.Setenv(EnvPolicyPath, path)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.EnvWhitelist) != 1 || cfg.EnvWhitelist[0] != "GOFLAGS" {
		t.Errorf("expected whitelist from $%s, got %v", EnvPolicyPath, cfg.EnvWhitelist)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	clearPolicyEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `test_mode: true
base_dir: project
allowed_path_roots:
  - sandbox
protected_files:
  - sandbox/secret.txt
env_whitelist: [PATH, LANG]
audit_log: /var/log/testguard.jsonl
`
	os.WriteFile(path, []byte(content), 0600)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.TestMode {
		t.Error("expected test_mode true")
	}
	if cfg.BaseDir != filepath.Join(dir, "project") {
		t.Errorf("relative base_dir should resolve against config dir, got %q", cfg.BaseDir)
	}
	if len(cfg.AllowedPathRoots) != 1 || cfg.AllowedPathRoots[0] != "sandbox" {
		t.Errorf("unexpected roots: %v", cfg.AllowedPathRoots)
	}
	if len(cfg.EnvWhitelist) != 2 {
		t.Errorf("unexpected whitelist: %v", cfg.EnvWhitelist)
	}
	if cfg.AuditLog != "/var/log/testguard.jsonl" {
		t.Errorf("unexpected audit_log: %q", cfg.AuditLog)
	}
}

func TestLoadConfigPartialYAML(t *testing.T) {
	clearPolicyEnv(t)
	path := filepath.Join(t.TempDir(), "policy.yaml")
	os.WriteFile(path, []byte("test_mode: true\n"), 0600)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.ProtectedFiles) != 2 {
		t.Errorf("unspecified fields should keep defaults, got %v", cfg.ProtectedFiles)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	clearPolicyEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("test_mode: [unterminated"), 0600)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadConfigWithHashStable(t *testing.T) {
	clearPolicyEnv(t)
	path := filepath.Join(t.TempDir(), "policy.yaml")
	os.WriteFile(path, []byte("test_mode: true\n"), 0600)

	_, h1, err := LoadConfigWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	_, h2, _ := LoadConfigWithHash(path)
	if h1 != h2 {
		t.Errorf("hash not stable: %s vs %s", h1, h2)
	}
	if !strings.HasPrefix(h1, "sha256:") {
		t.Errorf("expected sha256: prefix, got %s", h1)
	}

	os.WriteFile(path, []byte("test_mode: false\n"), 0600)
	_, h3, _ := LoadConfigWithHash(path)
	if h3 == h1 {
		t.Error("hash should change with content")
	}
}

func TestEnvOverrideTestMode(t *testing.T) {
	clearPolicyEnv(t)
	t.Setenv(EnvTestMode, "1")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.TestMode {
		t.Errorf("expected %s=1 to enable test mode", EnvTestMode)
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		value   string
		start   bool
		want    bool
		wantErr bool
	}{
		{"", true, true, false},
		{"true", false, true, false},
		{"0", true, false, false},
		{" 1 ", false, true, false},
		{"maybe", false, false, true},
	}
	for _, tt := range tests {
		cfg := &Config{TestMode: tt.start}
		err := ApplyEnv(cfg, func(string) string { return tt.value })
		if (err != nil) != tt.wantErr {
			t.Errorf("ApplyEnv(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && cfg.TestMode != tt.want {
			t.Errorf("ApplyEnv(%q) TestMode = %v, want %v", tt.value, cfg.TestMode, tt.want)
		}
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	clearPolicyEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "policy.yaml")
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.TestMode {
		t.Error("written default should enable test mode")
	}
	if err := WriteDefault(path, false); err == nil {
		t.Error("expected refusal to overwrite without force")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("force overwrite: %v", err)
	}
}

func TestReadConfigIgnoresEnv(t *testing.T) {
	t.Setenv(EnvTestMode, "1")
	path := filepath.Join(t.TempDir(), "policy.yaml")
	os.WriteFile(path, []byte("env_whitelist: [LANG]\n"), 0600)

	cfg, err := ReadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TestMode {
		t.Error("ReadConfig must not apply env overrides")
	}
	if len(cfg.EnvWhitelist) != 1 || cfg.EnvWhitelist[0] != "LANG" {
		t.Errorf("unexpected whitelist: %v", cfg.EnvWhitelist)
	}
	if len(cfg.ProtectedFiles) != 2 {
		t.Errorf("unspecified fields should keep defaults, got %v", cfg.ProtectedFiles)
	}
}

func TestReadConfigMissingFile(t *testing.T) {
	if _, err := ReadConfig(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
