package content

import (
	"context"

	"github.com/dmitrijs2005/bankwiser/internal/client/models"
)

// Repository lists catalog items. Single-item lookups return
// common.ErrNotFound for an unknown id.
type Repository interface {
	Categories(ctx context.Context) ([]models.Category, error)
	SubCategories(ctx context.Context, categoryID int64) ([]models.SubCategory, error)
	Notes(ctx context.Context, subCategoryID int64) ([]models.Note, error)
	Note(ctx context.Context, id string) (*models.Note, error)
	FAQs(ctx context.Context, subCategoryID int64) ([]models.FAQ, error)
	MCQs(ctx context.Context, subCategoryID int64) ([]models.MCQ, error)
	AudioItems(ctx context.Context, subCategoryID int64) ([]models.Audio, error)
	Audio(ctx context.Context, id string) (*models.Audio, error)
}

// RequiredTables must all exist in a usable content database.
var RequiredTables = []string{"categories", "sub_categories", "notes", "faqs", "mcqs", "audio"}
