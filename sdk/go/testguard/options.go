package testguard

import (
	"log/slog"

	"github.com/ppiankov/testguard/internal/policy"
)

// Option configures a Session at creation time.
type Option func(*sessionConfig)

type sessionConfig struct {
	policyPath string
	config     *policy.Config
	logger     *slog.Logger
	sessionID  string
}

// WithPolicy sets the path to a policy YAML file. Without it the policy
// comes from $TESTGUARD_POLICY, then ~/.testguard/policy.yaml.
func WithPolicy(path string) Option {
	return func(c *sessionConfig) { c.policyPath = path }
}

// WithConfig uses cfg directly instead of loading a policy file.
func WithConfig(cfg *policy.Config) Option {
	return func(c *sessionConfig) { c.config = cfg }
}

// WithLogger sets the logger for lifecycle and block messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *sessionConfig) { c.logger = logger }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(c *sessionConfig) { c.sessionID = id }
}
