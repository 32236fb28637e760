// Package content is the read side of the exam-preparation catalog:
// categories, sub-categories and the notes, FAQs, MCQs and audio summaries
// filed under them.
//
// SQLiteRepository runs the queries over a dbx.DBTX. Catalog owns the
// database handle for the live content file and can swap it in place after
// a content-pack update (Reload); readers never observe a closed handle.
//
//	cat, err := content.Open(ctx, cfg.ContentDBPath())
//	cats, _ := cat.Categories(ctx)
//	subs, _ := cat.SubCategories(ctx, cats[0].ID)
//	audio, _ := cat.Audio(ctx, "a1")
package content
