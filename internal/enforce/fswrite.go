package enforce

import (
	"os"

	"github.com/ppiankov/testguard/internal/model"
	"github.com/ppiankov/testguard/internal/pathutil"
)

const writeFlags = os.O_WRONLY | os.O_RDWR | os.O_CREATE | os.O_TRUNC | os.O_APPEND

func (g *Gateway) checkWrite(surface, name string) (string, error) {
	return g.guard(model.FilesystemWrite, surface, name)
}

// OpenFile is os.OpenFile. Only opens with a write flag are guarded;
// the file is opened at the resolved path the decision was made on.
func (g *Gateway) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	if flag&writeFlags == 0 {
		return os.OpenFile(name, flag, perm)
	}
	path, err := g.checkWrite(model.SurfaceOpen, name)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(path, flag, perm)
}

// Create is os.Create.
func (g *Gateway) Create(name string) (*os.File, error) {
	path, err := g.checkWrite(model.SurfaceCreate, name)
	if err != nil {
		return nil, err
	}
	return os.Create(path)
}

// WriteFile is os.WriteFile.
func (g *Gateway) WriteFile(name string, data []byte, perm os.FileMode) error {
	path, err := g.checkWrite(model.SurfaceWriteFile, name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

// Mkdir is os.Mkdir.
func (g *Gateway) Mkdir(name string, perm os.FileMode) error {
	path, err := g.checkWrite(model.SurfaceMkdir, name)
	if err != nil {
		return err
	}
	return os.Mkdir(path, perm)
}

// MkdirAll is os.MkdirAll.
func (g *Gateway) MkdirAll(name string, perm os.FileMode) error {
	path, err := g.checkWrite(model.SurfaceMkdir, name)
	if err != nil {
		return err
	}
	return os.MkdirAll(path, perm)
}

// Remove, RemoveAll and Rename do not follow a final symlink, so they are
// decided on the entry itself and act on the path that was decided.

// Remove is os.Remove.
func (g *Gateway) Remove(name string) error {
	path, err := g.checkWrite(model.SurfaceRemove, name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// RemoveAll is os.RemoveAll. Protected files below the named root are
// decided too, so a tree holding one is left alone.
func (g *Gateway) RemoveAll(name string) error {
	c := g.session()
	if c == nil {
		return os.RemoveAll(name)
	}
	root, _ := c.registry.Resolve(removeOp(name))
	ops := []model.Operation{removeOp(name)}
	for _, p := range c.registry.Protected().Paths() {
		if p != root.Target && pathutil.Within(p, root.Target) {
			ops = append(ops, removeOp(p))
		}
	}
	decided, err := c.decideAll(ops)
	if err != nil {
		return err
	}
	return os.RemoveAll(decided[0].Target)
}

func removeOp(target string) model.Operation {
	return model.Operation{Category: model.FilesystemWrite, Surface: model.SurfaceRemove, Target: target}
}

// Rename is os.Rename. Both ends are decided before either is recorded.
func (g *Gateway) Rename(oldpath, newpath string) error {
	c := g.session()
	if c == nil {
		return os.Rename(oldpath, newpath)
	}
	decided, err := c.decideAll([]model.Operation{
		{Category: model.FilesystemWrite, Surface: model.SurfaceRename, Target: oldpath},
		{Category: model.FilesystemWrite, Surface: model.SurfaceRename, Target: newpath},
	})
	if err != nil {
		return err
	}
	return os.Rename(decided[0].Target, decided[1].Target)
}

// CheckWrite decides a write to name without performing it.
func (g *Gateway) CheckWrite(name string) error {
	_, err := g.checkWrite(model.SurfaceWriteFile, name)
	return err
}
