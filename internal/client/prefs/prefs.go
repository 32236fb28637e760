// Package prefs is the typed preference store: download records, bookmark
// flags, the subscription flag, the content schema version and the theme,
// all kept as prefixed keys in the metadata table.
//
// Every write is synchronous and returns its error.
package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/bankwiser/internal/client/migrations"
	"github.com/dmitrijs2005/bankwiser/internal/client/models"
	"github.com/dmitrijs2005/bankwiser/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/bankwiser/internal/dbx"
)

const (
	pathPrefix     = "downloaded_audio_path_"
	bookmarkPrefix = "bookmarked_"
	subscribedKey  = "is_user_subscribed"
	dbVersionKey   = "current_db_version"
	themeKey       = "theme_preference"
)

type Store struct {
	db   *sql.DB
	repo metadata.Repository
}

func New(db *sql.DB) *Store {
	return &Store{db: db, repo: metadata.NewSQLiteRepository(db)}
}

// Open opens the preference database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := dbx.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(ctx, db, migrations.Prefs); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func (s *Store) Close() error { return s.db.Close() }

// KV exposes the raw metadata table for the sealed key store.
func (s *Store) KV() metadata.Repository { return s.repo }

// GetPath returns the Download Record for id. ok is false when none exists.
func (s *Store) GetPath(ctx context.Context, id string) (path string, ok bool, err error) {
	v, err := s.repo.Get(ctx, pathPrefix+id)
	if err != nil || v == nil {
		return "", false, err
	}
	return string(v), true, nil
}

func (s *Store) SetPath(ctx context.Context, id, path string) error {
	return s.repo.Set(ctx, pathPrefix+id, []byte(path))
}

func (s *Store) RemovePath(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, pathPrefix+id)
}

// Paths returns every Download Record keyed by content id.
func (s *Store) Paths(ctx context.Context) (map[string]string, error) {
	raw, err := s.repo.List(ctx, pathPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[strings.TrimPrefix(k, pathPrefix)] = string(v)
	}
	return out, nil
}

func bookmarkKey(kind models.ItemKind, id string) string {
	return bookmarkPrefix + string(kind) + "_" + id
}

func (s *Store) IsBookmarked(ctx context.Context, kind models.ItemKind, id string) (bool, error) {
	return s.getBool(ctx, bookmarkKey(kind, id))
}

// SetBookmarked sets or clears a bookmark. Clearing removes the key.
func (s *Store) SetBookmarked(ctx context.Context, kind models.ItemKind, id string, on bool) error {
	if !on {
		return s.repo.Delete(ctx, bookmarkKey(kind, id))
	}
	return s.setBool(ctx, bookmarkKey(kind, id), true)
}

// Bookmarks lists the bookmarked ids of kind in ascending order.
func (s *Store) Bookmarks(ctx context.Context, kind models.ItemKind) ([]string, error) {
	prefix := bookmarkPrefix + string(kind) + "_"
	raw, err := s.repo.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for k, v := range raw {
		if parseBool(v) {
			ids = append(ids, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) IsSubscribed(ctx context.Context) (bool, error) {
	return s.getBool(ctx, subscribedKey)
}

func (s *Store) SetSubscribed(ctx context.Context, on bool) error {
	return s.setBool(ctx, subscribedKey, on)
}

// DBVersion is the installed content schema version, 0 when never set.
func (s *Store) DBVersion(ctx context.Context) (int, error) {
	v, err := s.repo.Get(ctx, dbVersionKey)
	if err != nil || v == nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return 0, fmt.Errorf("corrupt %s %q: %w", dbVersionKey, v, err)
	}
	return n, nil
}

func (s *Store) SetDBVersion(ctx context.Context, version int) error {
	return s.repo.Set(ctx, dbVersionKey, []byte(strconv.Itoa(version)))
}

// Theme returns the stored theme, ThemeSystem when unset or unrecognized.
func (s *Store) Theme(ctx context.Context) (models.Theme, error) {
	v, err := s.repo.Get(ctx, themeKey)
	if err != nil {
		return models.ThemeSystem, err
	}
	t, perr := models.ParseTheme(string(v))
	if perr != nil {
		return models.ThemeSystem, nil
	}
	return t, nil
}

func (s *Store) SetTheme(ctx context.Context, t models.Theme) error {
	if _, err := models.ParseTheme(string(t)); err != nil {
		return err
	}
	return s.repo.Set(ctx, themeKey, []byte(t))
}

// ClearUserData drops bookmarks and the subscription flag in one
// transaction. Download records, schema version and theme are kept.
func (s *Store) ClearUserData(ctx context.Context) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := metadata.NewSQLiteRepository(tx)
		if _, err := r.DeletePrefix(ctx, bookmarkPrefix); err != nil {
			return err
		}
		return r.Delete(ctx, subscribedKey)
	})
}

func (s *Store) getBool(ctx context.Context, key string) (bool, error) {
	v, err := s.repo.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return parseBool(v), nil
}

func (s *Store) setBool(ctx context.Context, key string, on bool) error {
	return s.repo.Set(ctx, key, []byte(strconv.FormatBool(on)))
}

func parseBool(v []byte) bool {
	b, err := strconv.ParseBool(string(v))
	return err == nil && b
}
