package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/bankwiser/internal/client/config"
	"github.com/dmitrijs2005/bankwiser/internal/client/contentpack"
	"github.com/dmitrijs2005/bankwiser/internal/client/downloads"
	"github.com/dmitrijs2005/bankwiser/internal/client/entitlement"
	"github.com/dmitrijs2005/bankwiser/internal/client/prefs"
	"github.com/dmitrijs2005/bankwiser/internal/client/repositories/content"
	"github.com/dmitrijs2005/bankwiser/internal/client/services"
	"github.com/dmitrijs2005/bankwiser/internal/common"
	"github.com/dmitrijs2005/bankwiser/internal/cryptox"
	"github.com/dmitrijs2005/bankwiser/internal/filex"
	"github.com/dmitrijs2005/bankwiser/internal/keystore"
	"github.com/dmitrijs2005/bankwiser/internal/logging"
)

// getPassword is swapped in tests.
var getPassword = GetPassword

type App struct {
	config  *config.Config
	library services.LibraryService
	log     logging.Logger
	reader  *bufio.Reader
	out     io.Writer

	closers []func() error
}

// NewApp opens the local databases and wires every service the REPL uses.
// With the sealed key backend the passphrase is read from the terminal.
func NewApp(ctx context.Context, c *config.Config) (app *App, err error) {
	log := logging.NewTextLogger(os.Stderr, c.LogLevel)
	a := &App{config: c, log: log, reader: bufio.NewReader(os.Stdin), out: os.Stdout}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if _, err := filex.EnsureDir(c.DataDir); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	store, err := prefs.Open(ctx, c.PrefsDBPath())
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	catalog, err := content.Open(ctx, c.ContentDBPath())
	if err != nil {
		return nil, fmt.Errorf("open content: %w", err)
	}
	a.closers = append(a.closers, catalog.Close)

	keys, err := a.keyStore(store)
	if err != nil {
		return nil, err
	}
	engine := cryptox.NewEngine(keystore.NewProvider(keys, c.KeyAlias))

	mgr, err := downloads.NewManager(engine, store, downloads.Options{
		AudioDir: c.AudioDir(),
		TempDir:  c.TempDir(),
		HTTPClient: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: c.HTTPTimeout,
		}},
		ProgressInterval: c.ProgressInterval,
		Logger:           log.With("component", "downloads"),
	})
	if err != nil {
		return nil, err
	}
	// Closed first: pending records are written before the databases go.
	a.closers = append([]func() error{mgr.Close}, a.closers...)

	var redeemer services.Redeemer
	if c.EntitlementSecret != "" {
		redeemer = entitlement.NewVerifier([]byte(c.EntitlementSecret), store)
	}

	var updater services.ContentUpdater
	if c.UpdatesEnabled() {
		src, err := contentpack.NewS3Source(ctx, contentpack.S3Options{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		remote := contentpack.HTTPConfig{URL: c.RemoteConfigURL, Client: &http.Client{Timeout: c.HTTPTimeout}}
		updater = contentpack.NewUpdater(remote, src, store, catalog, contentpack.Options{
			TempDir:          c.TempDir(),
			ProgressInterval: c.ProgressInterval,
			Logger:           log.With("component", "contentpack"),
		})
	}

	a.library = services.NewLibraryService(catalog, store, mgr, redeemer, updater)
	return a, nil
}

func (a *App) keyStore(store *prefs.Store) (keystore.Store, error) {
	switch a.config.KeyBackend {
	case config.KeyBackendSealed:
		pass, err := getPassword(a.out)
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		defer common.WipeByteArray(pass)
		return keystore.NewSealedStore(store.KV(), pass), nil
	case config.KeyBackendKeyring:
		return keystore.NewKeyringStore(keystore.DefaultService), nil
	default:
		return nil, fmt.Errorf("%w: key backend %q", common.ErrInvalidArgument, a.config.KeyBackend)
	}
}

// Run starts the REPL and releases resources when the user exits.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Error(ctx, "shutdown", "error", err)
		}
	}()
	a.Root(ctx)
}

// Close stops in-flight downloads and closes the databases.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
