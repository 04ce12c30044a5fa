package enforce

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/testguard/internal/model"
)

// OpenDB is sql.Open. The "sqlite" driver is always registered.
func (g *Gateway) OpenDB(driver, dsn string) (*sql.DB, error) {
	if _, err := g.guard(model.Database, model.SurfaceOpenDB, driver+":"+dsn); err != nil {
		return nil, err
	}
	return sql.Open(driver, dsn)
}
