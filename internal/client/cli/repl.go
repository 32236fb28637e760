package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

type commandFn func(ctx context.Context, args []string) error

// execIface defines the command surface the REPL dispatches to.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Categories(ctx context.Context, args []string) error
	SubCategories(ctx context.Context, args []string) error
	Notes(ctx context.Context, args []string) error
	ReadNote(ctx context.Context, args []string) error
	FAQs(ctx context.Context, args []string) error
	Quiz(ctx context.Context, args []string) error
	Audio(ctx context.Context, args []string) error
	Download(ctx context.Context, args []string) error
	Cancel(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Play(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	Bookmark(ctx context.Context, args []string) error
	Bookmarks(ctx context.Context, args []string) error
	Theme(ctx context.Context, args []string) error
	Subscribe(ctx context.Context, args []string) error
	SignOut(ctx context.Context, args []string) error
	Update(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  categories                     list categories
  subs <category-id>             list sub-categories
  notes <sub-id>                 list notes
  read <note-id>                 show a note
  faqs <sub-id>                  show FAQs
  quiz <sub-id>                  answer the MCQs of a sub-category
  audio <sub-id>                 list audio lessons and their download state
  download <audio-id>            download a lesson for offline use
  cancel <audio-id>              cancel a running download
  delete <audio-id>              delete an offline copy
  play <audio-id> <file>         decrypt an offline copy to file
  status [audio-id]              show downloads
  bookmark <kind> <id>           toggle a bookmark (note, faq, mcq, audio)
  bookmarks [kind]               list bookmarks
  theme [light|dark|system]      show or set the theme
  subscribe <token>              redeem a subscription token
  signout                        forget bookmarks and subscription
  update                         install the latest content pack
  exit | quit                    leave the program`

func commands(a execIface) map[string]commandFn {
	return map[string]commandFn{
		"categories": a.Categories,
		"cats":       a.Categories,
		"subs":       a.SubCategories,
		"notes":      a.Notes,
		"read":       a.ReadNote,
		"faqs":       a.FAQs,
		"quiz":       a.Quiz,
		"mcqs":       a.Quiz,
		"audio":      a.Audio,
		"download":   a.Download,
		"cancel":     a.Cancel,
		"delete":     a.Delete,
		"play":       a.Play,
		"status":     a.Status,
		"bookmark":   a.Bookmark,
		"bookmarks":  a.Bookmarks,
		"theme":      a.Theme,
		"subscribe":  a.Subscribe,
		"signout":    a.SignOut,
		"update":     a.Update,
	}
}

// runREPL starts a read–eval–print loop.
//
// It reads a line from reader, parses the first token as the command and
// dispatches it with the remaining tokens as arguments. Command errors are
// printed and the loop continues. The loop exits on EOF, when ctx is done,
// or when the user types "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	table := commands(a)
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("bw %s> ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		fn, ok := table[cmd]
		if !ok {
			printlnFn("Unknown command:", cmd)
			continue
		}
		if err := fn(ctx, args); err != nil {
			printlnFn("Error:", describe(err))
		}
	}
}
