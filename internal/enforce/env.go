package enforce

import (
	"os"

	"github.com/ppiankov/testguard/internal/model"
)

// Setenv is os.Setenv. Only whitelisted names may change while active.
func (g *Gateway) Setenv(name, value string) error {
	if _, err := g.guard(model.EnvMutation, model.SurfaceSetenv, name); err != nil {
		return err
	}
	return os.Setenv(name, value)
}

// Unsetenv is os.Unsetenv.
func (g *Gateway) Unsetenv(name string) error {
	if _, err := g.guard(model.EnvMutation, model.SurfaceUnsetenv, name); err != nil {
		return err
	}
	return os.Unsetenv(name)
}

// CheckEnv decides a mutation of name without performing it.
func (g *Gateway) CheckEnv(name string) error {
	_, err := g.guard(model.EnvMutation, model.SurfaceSetenv, name)
	return err
}
