// Package migrations applies the SQL files under migrations/ with
// golang-migrate, the same library the pack's jbrackens-AttaboyGO and
// riskibarqy-fantasy-league manifests depend on (no source exemplar of
// its call pattern exists in the retrieval pack; this package follows
// golang-migrate's own documented file-source + postgres-driver usage).
package migrations

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Apply runs every pending up migration under sourceDir against dsn.
// ErrNoChange is swallowed since "already at the latest migration" is a
// normal startup outcome, not a failure.
func Apply(sourceDir, dsn string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", sourceDir), dsn)
	if err != nil {
		return fmt.Errorf("migrations: opening migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: applying: %w", err)
	}
	return nil
}
