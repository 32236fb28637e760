package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/bankwiser/internal/client/contentpack"
	"github.com/dmitrijs2005/bankwiser/internal/client/downloads"
	"github.com/dmitrijs2005/bankwiser/internal/client/models"
	"github.com/dmitrijs2005/bankwiser/internal/common"
)

type usageError string

func (u usageError) Error() string { return "usage: " + string(u) }

func parseID(args []string, usage string) (int64, error) {
	if len(args) != 1 {
		return 0, usageError(usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, usageError(usage)
	}
	return id, nil
}

func oneArg(args []string, usage string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", usageError(usage)
	}
	return args[0], nil
}

func lock(premium bool) string {
	if premium {
		return " [premium]"
	}
	return ""
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) Categories(ctx context.Context, _ []string) error {
	cats, err := a.library.Categories(ctx)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		a.printf("No content installed. Try 'update'.\n")
		return nil
	}
	for _, c := range cats {
		a.printf("%4d  %s\n", c.ID, c.Name)
	}
	return nil
}

func (a *App) SubCategories(ctx context.Context, args []string) error {
	id, err := parseID(args, "subs <category-id>")
	if err != nil {
		return err
	}
	subs, err := a.library.SubCategories(ctx, id)
	if err != nil {
		return err
	}
	for _, s := range subs {
		a.printf("%4d  %s\n", s.ID, s.Name)
	}
	return nil
}

func (a *App) Notes(ctx context.Context, args []string) error {
	id, err := parseID(args, "notes <sub-category-id>")
	if err != nil {
		return err
	}
	notes, err := a.library.Notes(ctx, id)
	if err != nil {
		return err
	}
	for _, n := range notes {
		a.printf("%-12s %s%s\n", n.ID, n.Title, lock(n.IsPremium))
	}
	return nil
}

func (a *App) ReadNote(ctx context.Context, args []string) error {
	id, err := oneArg(args, "read <note-id>")
	if err != nil {
		return err
	}
	n, err := a.library.ReadNote(ctx, id)
	if err != nil {
		return err
	}
	a.printf("%s\n%s\n\n%s\n", n.Title, strings.Repeat("-", len(n.Title)), n.Body)
	return nil
}

func (a *App) FAQs(ctx context.Context, args []string) error {
	id, err := parseID(args, "faqs <sub-category-id>")
	if err != nil {
		return err
	}
	faqs, err := a.library.FAQs(ctx, id)
	if err != nil {
		return err
	}
	subscribed, err := a.library.IsSubscribed(ctx)
	if err != nil {
		return err
	}
	for _, f := range faqs {
		a.printf("[%s] Q: %s\n", f.ID, f.Question)
		if f.IsPremium && !subscribed {
			a.printf("    A: (premium)\n")
			continue
		}
		a.printf("    A: %s\n", f.Answer)
	}
	return nil
}

// Quiz walks through the MCQs of a sub-category, asking for an answer to
// each and printing the score at the end.
func (a *App) Quiz(ctx context.Context, args []string) error {
	id, err := parseID(args, "quiz <sub-category-id>")
	if err != nil {
		return err
	}
	mcqs, err := a.library.MCQs(ctx, id)
	if err != nil {
		return err
	}
	subscribed, err := a.library.IsSubscribed(ctx)
	if err != nil {
		return err
	}

	asked, score := 0, 0
	for _, q := range mcqs {
		if q.IsPremium && !subscribed {
			continue
		}
		asked++
		var b strings.Builder
		b.WriteString(q.Question)
		for i, opt := range q.Options {
			fmt.Fprintf(&b, "\n  %c) %s", 'A'+i, opt)
		}
		ans, err := GetSimpleText(a.reader, b.String(), a.out)
		if err != nil {
			return err
		}
		if q.Check(ans) {
			score++
			a.printf("Correct!\n")
		} else {
			a.printf("Wrong, the answer is %s.\n", q.Correct)
		}
		if q.Explanation != "" {
			a.printf("%s\n", q.Explanation)
		}
	}
	a.printf("Score: %d/%d\n", score, asked)
	return nil
}

func (a *App) Audio(ctx context.Context, args []string) error {
	id, err := parseID(args, "audio <sub-category-id>")
	if err != nil {
		return err
	}
	items, err := a.library.AudioItems(ctx, id)
	if err != nil {
		return err
	}
	for _, it := range items {
		st, err := a.library.AudioStatus(ctx, it.ID)
		if err != nil {
			return err
		}
		state := st.State.String()
		if st.Downloaded {
			state = "downloaded"
		}
		a.printf("%-12s %-40s %3dm%02ds  %s%s\n", it.ID, it.Title, it.DurationSeconds/60, it.DurationSeconds%60, state, lock(it.IsPremium))
	}
	return nil
}

func (a *App) Download(ctx context.Context, args []string) error {
	id, err := oneArg(args, "download <audio-id>")
	if err != nil {
		return err
	}
	// Downloads outlive the command.
	started, err := a.library.StartDownload(context.WithoutCancel(ctx), id)
	if err != nil {
		return err
	}
	if !started {
		a.printf("%s is already downloading or downloaded\n", id)
		return nil
	}
	a.printf("Downloading %s in the background\n", id)
	return nil
}

func (a *App) Cancel(_ context.Context, args []string) error {
	id, err := oneArg(args, "cancel <audio-id>")
	if err != nil {
		return err
	}
	if !a.library.CancelDownload(id) {
		a.printf("%s is not downloading\n", id)
	}
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := oneArg(args, "delete <audio-id>")
	if err != nil {
		return err
	}
	ok, err := Confirm(a.reader, fmt.Sprintf("Delete the offline copy of %s?", id), a.out)
	if err != nil || !ok {
		return err
	}
	if err := a.library.DeleteDownload(ctx, id); err != nil {
		return err
	}
	a.printf("Deleted %s\n", id)
	return nil
}

// Play decrypts a downloaded lesson into a file an external player can open.
func (a *App) Play(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("play <audio-id> <output-file>")
	}
	id, dst := args[0], args[1]

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := a.library.Play(ctx, id, f); err != nil {
		_ = os.Remove(dst)
		return err
	}
	a.printf("Decrypted %s to %s\n", id, dst)
	return nil
}

func (a *App) Status(ctx context.Context, args []string) error {
	if len(args) == 1 {
		st, err := a.library.AudioStatus(ctx, args[0])
		if err != nil {
			return err
		}
		a.printf("%s: %s (downloaded: %t)\n", st.Audio.ID, st.State, st.Downloaded)
		return nil
	}

	got, err := a.library.Downloaded(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(got))
	for id := range got {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a.printf("%-12s %s\n", id, got[id])
	}
	if len(ids) == 0 {
		a.printf("Nothing downloaded yet\n")
	}
	return nil
}

func (a *App) Bookmark(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("bookmark <note|faq|mcq|audio> <id>")
	}
	kind, err := models.ParseItemKind(args[0])
	if err != nil {
		return err
	}
	on, err := a.library.ToggleBookmark(ctx, kind, args[1])
	if err != nil {
		return err
	}
	if on {
		a.printf("Bookmarked %s %s\n", kind, args[1])
	} else {
		a.printf("Removed bookmark %s %s\n", kind, args[1])
	}
	return nil
}

func (a *App) Bookmarks(ctx context.Context, args []string) error {
	kinds := []models.ItemKind{models.KindNote, models.KindFAQ, models.KindMCQ, models.KindAudio}
	if len(args) == 1 {
		k, err := models.ParseItemKind(args[0])
		if err != nil {
			return err
		}
		kinds = []models.ItemKind{k}
	}
	for _, k := range kinds {
		ids, err := a.library.Bookmarks(ctx, k)
		if err != nil {
			return err
		}
		for _, id := range ids {
			a.printf("%-6s %s\n", k, id)
		}
	}
	return nil
}

func (a *App) Theme(ctx context.Context, args []string) error {
	switch len(args) {
	case 0:
		t, err := a.library.Theme(ctx)
		if err != nil {
			return err
		}
		a.printf("Theme: %s\n", t)
		return nil
	case 1:
		return a.library.SetTheme(ctx, args[0])
	default:
		return usageError("theme [light|dark|system]")
	}
}

func (a *App) Subscribe(ctx context.Context, args []string) error {
	token, err := oneArg(args, "subscribe <token>")
	if err != nil {
		return err
	}
	claims, err := a.library.Subscribe(ctx, token)
	if err != nil {
		return err
	}
	if claims.Premium {
		a.printf("Premium unlocked until %s\n", claims.ExpiresAt.Time.Format("2006-01-02"))
	} else {
		a.printf("Token accepted, no premium entitlement\n")
	}
	return nil
}

func (a *App) SignOut(ctx context.Context, _ []string) error {
	if err := a.library.SignOut(ctx); err != nil {
		return err
	}
	a.printf("Signed out\n")
	return nil
}

func (a *App) Update(ctx context.Context, _ []string) error {
	err := a.library.UpdateContent(ctx, func(s contentpack.Status) {
		a.printf("update: %s\n", s)
	})
	if errors.Is(err, common.ErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return err
	}
	v, err := a.library.ContentVersion(ctx)
	if err != nil {
		return err
	}
	a.printf("Content is now at version %d\n", v)
	return nil
}

// onDownloadEvent prints terminal download states. In-progress events are
// shown by 'status' on demand rather than interleaved with the prompt.
func (a *App) onDownloadEvent(e downloads.Event) {
	if !e.State.Terminal() {
		return
	}
	printlnFn(fmt.Sprintf("\n[download %s] %s", e.ContentID, e.State))
}

func (a *App) statusLine(ctx context.Context) string {
	var parts []string
	if ok, err := a.library.IsSubscribed(ctx); err == nil && ok {
		parts = append(parts, "premium")
	}
	if t, err := a.library.Theme(ctx); err == nil && t != models.ThemeSystem {
		parts = append(parts, string(t))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " ") + ")"
}
