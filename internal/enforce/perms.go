package enforce

import (
	"os"

	"github.com/ppiankov/testguard/internal/model"
)

// Chmod is os.Chmod.
func (g *Gateway) Chmod(name string, mode os.FileMode) error {
	if _, err := g.guard(model.PermissionChange, model.SurfaceChmod, name); err != nil {
		return err
	}
	return os.Chmod(name, mode)
}

// Chown is os.Chown.
func (g *Gateway) Chown(name string, uid, gid int) error {
	if _, err := g.guard(model.PermissionChange, model.SurfaceChown, name); err != nil {
		return err
	}
	return os.Chown(name, uid, gid)
}
