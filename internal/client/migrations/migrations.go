// Package migrations embeds the goose SQL migrations for the two client
// databases: the preference store and the content catalog.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

// Set names a migration directory inside FS.
type Set string

const (
	Prefs   Set = "prefs"
	Content Set = "content"
)

//go:embed prefs/*.sql content/*.sql
var FS embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// Up applies every pending migration of set to db.
func Up(ctx context.Context, db *sql.DB, set Set) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(FS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, string(set)); err != nil {
		return fmt.Errorf("migrate %s: %w", set, err)
	}
	return nil
}

// Version reports the applied schema version of set on db.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, db)
}
