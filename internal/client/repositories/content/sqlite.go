package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bankwiser/internal/client/models"
	"github.com/dmitrijs2005/bankwiser/internal/common"
	"github.com/dmitrijs2005/bankwiser/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// queryAll runs query and appends one scanned item per row.
func queryAll[T any](ctx context.Context, db dbx.DBTX, what string, scan func(*sql.Rows, *T) error, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", what, err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		var item T
		if err := scan(rows, &item); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", what, err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", what, err)
	}
	return result, nil
}

func (r *SQLiteRepository) Categories(ctx context.Context) ([]models.Category, error) {
	return queryAll(ctx, r.db, "categories",
		func(rows *sql.Rows, c *models.Category) error {
			return rows.Scan(&c.ID, &c.Name)
		},
		`SELECT id, name FROM categories ORDER BY sort_order, id`)
}

func (r *SQLiteRepository) SubCategories(ctx context.Context, categoryID int64) ([]models.SubCategory, error) {
	return queryAll(ctx, r.db, "sub-categories",
		func(rows *sql.Rows, s *models.SubCategory) error {
			return rows.Scan(&s.ID, &s.CategoryID, &s.Name)
		},
		`SELECT id, category_id, name FROM sub_categories WHERE category_id = ? ORDER BY sort_order, id`,
		categoryID)
}

func scanNote(row interface{ Scan(...any) error }, n *models.Note) error {
	return row.Scan(&n.ID, &n.SubCategoryID, &n.Title, &n.Body, &n.IsPremium)
}

func (r *SQLiteRepository) Notes(ctx context.Context, subCategoryID int64) ([]models.Note, error) {
	return queryAll(ctx, r.db, "notes",
		func(rows *sql.Rows, n *models.Note) error { return scanNote(rows, n) },
		`SELECT id, sub_category_id, title, body, is_premium FROM notes WHERE sub_category_id = ? ORDER BY title, id`,
		subCategoryID)
}

func (r *SQLiteRepository) Note(ctx context.Context, id string) (*models.Note, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, sub_category_id, title, body, is_premium FROM notes WHERE id = ?`, id)

	n := &models.Note{}
	if err := scanNote(row, n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("note %q: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) FAQs(ctx context.Context, subCategoryID int64) ([]models.FAQ, error) {
	return queryAll(ctx, r.db, "faqs",
		func(rows *sql.Rows, f *models.FAQ) error {
			return rows.Scan(&f.ID, &f.SubCategoryID, &f.Question, &f.Answer, &f.IsPremium)
		},
		`SELECT id, sub_category_id, question, answer, is_premium FROM faqs WHERE sub_category_id = ? ORDER BY id`,
		subCategoryID)
}

func (r *SQLiteRepository) MCQs(ctx context.Context, subCategoryID int64) ([]models.MCQ, error) {
	return queryAll(ctx, r.db, "mcqs",
		func(rows *sql.Rows, m *models.MCQ) error {
			return rows.Scan(&m.ID, &m.SubCategoryID, &m.Question,
				&m.Options[0], &m.Options[1], &m.Options[2], &m.Options[3],
				&m.Correct, &m.Explanation, &m.IsPremium)
		},
		`SELECT id, sub_category_id, question, option_a, option_b, option_c, option_d,
		        correct_option, explanation, is_premium
		   FROM mcqs WHERE sub_category_id = ? ORDER BY id`,
		subCategoryID)
}

func scanAudio(row interface{ Scan(...any) error }, a *models.Audio) error {
	return row.Scan(&a.ID, &a.SubCategoryID, &a.Title, &a.URL, &a.DurationSeconds, &a.IsPremium)
}

func (r *SQLiteRepository) AudioItems(ctx context.Context, subCategoryID int64) ([]models.Audio, error) {
	return queryAll(ctx, r.db, "audio",
		func(rows *sql.Rows, a *models.Audio) error { return scanAudio(rows, a) },
		`SELECT id, sub_category_id, title, url, duration_seconds, is_premium FROM audio WHERE sub_category_id = ? ORDER BY title, id`,
		subCategoryID)
}

func (r *SQLiteRepository) Audio(ctx context.Context, id string) (*models.Audio, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, sub_category_id, title, url, duration_seconds, is_premium FROM audio WHERE id = ?`, id)

	a := &models.Audio{}
	if err := scanAudio(row, a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audio %q: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return a, nil
}
