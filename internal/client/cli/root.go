package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/bankwiser/internal/client/entitlement"
	"github.com/dmitrijs2005/bankwiser/internal/common"
	"github.com/dmitrijs2005/bankwiser/internal/netx"
)

// Root prints the banner, subscribes to download events and runs the REPL
// until the user exits.
func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to BankWiser (type 'help' for commands)")

	unsubscribe := a.library.OnDownloadEvent(a.onDownloadEvent)
	defer unsubscribe()

	runREPL(ctx, a, func() string { return a.statusLine(ctx) }, a.reader)
}

// describe turns known errors into messages for the prompt.
func describe(err error) string {
	var usage usageError
	var status *netx.HTTPStatusError
	switch {
	case errors.As(err, &usage):
		return usage.Error()
	case errors.Is(err, common.ErrPremiumRequired):
		return "this item needs a premium subscription (see 'subscribe')"
	case errors.Is(err, common.ErrNotFound):
		return "no such item"
	case errors.Is(err, common.ErrContentUnavailable):
		return "content database unavailable, try 'update'"
	case errors.Is(err, entitlement.ErrInvalidToken):
		return "the subscription token is invalid or expired"
	case errors.As(err, &status):
		return "server replied " + status.Error()
	default:
		return err.Error()
	}
}
