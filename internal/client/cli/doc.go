// Package cli provides the interactive BankWiser command-line client.
//
// It wires configuration, the local preference and content databases, the
// audio encryption key, the download manager and optional remote content
// updates, then runs a REPL on top of services.LibraryService.
//
// Key features:
//   - Browse categories, notes, FAQs, MCQs and audio lessons
//   - Download audio for offline use, encrypted at rest
//   - Decrypt a downloaded lesson to a file for playback
//   - Bookmarks, theme preference, subscription tokens
//   - Content pack updates
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
