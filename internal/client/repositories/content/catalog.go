package content

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/bankwiser/internal/client/migrations"
	"github.com/dmitrijs2005/bankwiser/internal/client/models"
	"github.com/dmitrijs2005/bankwiser/internal/common"
	"github.com/dmitrijs2005/bankwiser/internal/dbx"
)

// Catalog serves Repository queries from the live content database file.
// It is safe for concurrent use.
type Catalog struct {
	path string

	mu   sync.RWMutex
	db   *sql.DB
	repo *SQLiteRepository
}

var _ Repository = (*Catalog)(nil)

// Open opens (creating if needed) the content database at path and brings
// its schema up to date.
func Open(ctx context.Context, path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Path() string { return c.path }

// Reload reopens the database file, typically after it was replaced on disk.
// On failure the catalog is left closed and queries return
// common.ErrContentUnavailable until a later Reload succeeds.
func (c *Catalog) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		_ = c.db.Close()
		c.db, c.repo = nil, nil
	}

	db, err := dbx.OpenSQLite(ctx, c.path)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrContentUnavailable, err)
	}
	if err := migrations.Up(ctx, db, migrations.Content); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %v", common.ErrContentUnavailable, err)
	}

	c.db = db
	c.repo = NewSQLiteRepository(db)
	return nil
}

// Close releases the database handle. Queries after Close return
// common.ErrContentUnavailable.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db, c.repo = nil, nil
	return err
}

func (c *Catalog) with(fn func(r *SQLiteRepository) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.repo == nil {
		return common.ErrContentUnavailable
	}
	return fn(c.repo)
}

func (c *Catalog) Categories(ctx context.Context) (out []models.Category, err error) {
	err = c.with(func(r *SQLiteRepository) error {
		out, err = r.Categories(ctx)
		return err
	})
	return out, err
}

func (c *Catalog) SubCategories(ctx context.Context, categoryID int64) (out []models.SubCategory, err error) {
	err = c.with(func(r *SQLiteRepository) error {
		out, err = r.SubCategories(ctx, categoryID)
		return err
	})
	return out, err
}

func (c *Catalog) Notes(ctx context.Context, subCategoryID int64) (out []models.Note, err error) {
	err = c.with(func(r *SQLiteRepository) error {
		out, err = r.Notes(ctx, subCategoryID)
		return err
	})
	return out, err
}

func (c *Catalog) Note(ctx context.Context, id string) (out *models.Note, err error) {
	err = c.with(func(r *SQLiteRepository) error {
		out, err = r.Note(ctx, id)
		return err
	})
	return out, err
}

func (c *Catalog) FAQs(ctx context.Context, subCategoryID int64) (out []models.FAQ, err error) {
	err = c.with(func(r *SQLiteRepository) error {
		out, err = r.FAQs(ctx, subCategoryID)
		return err
	})
	return out, err
}

func (c *Catalog) MCQs(ctx context.Context, subCategoryID int64) (out []models.MCQ, err error) {
	err = c.with(func(r *SQLiteRepository) error {
		out, err = r.MCQs(ctx, subCategoryID)
		return err
	})
	return out, err
}

func (c *Catalog) AudioItems(ctx context.Context, subCategoryID int64) (out []models.Audio, err error) {
	err = c.with(func(r *SQLiteRepository) error {
		out, err = r.AudioItems(ctx, subCategoryID)
		return err
	})
	return out, err
}

func (c *Catalog) Audio(ctx context.Context, id string) (out *models.Audio, err error) {
	err = c.with(func(r *SQLiteRepository) error {
		out, err = r.Audio(ctx, id)
		return err
	})
	return out, err
}

// Validate checks that the SQLite file at path opens and carries every
// table in RequiredTables. It does not modify the file.
func Validate(ctx context.Context, path string) error {
	db, err := dbx.OpenSQLite(ctx, "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open content db: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return fmt.Errorf("not a content database: %w", err)
	}
	defer rows.Close()

	have := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("not a content database: %w", err)
	}

	var missing []string
	for _, t := range RequiredTables {
		if !have[t] {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("content database is missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}
