// Package contentpack keeps the local content database at the version the
// remote config asks for. An update downloads the pack's database file,
// validates it, swaps it in place of the live file and reloads the catalog.
package contentpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/bankwiser/internal/client/repositories/content"
	"github.com/dmitrijs2005/bankwiser/internal/common"
	"github.com/dmitrijs2005/bankwiser/internal/filex"
	"github.com/dmitrijs2005/bankwiser/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type Phase int

const (
	Checking Phase = iota
	Downloading
	Installing
	Completed
	UpToDate
	Failed
)

func (p Phase) String() string {
	switch p {
	case Checking:
		return "checking"
	case Downloading:
		return "downloading"
	case Installing:
		return "installing"
	case Completed:
		return "completed"
	case UpToDate:
		return "up-to-date"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Status is one progress report of an update run.
type Status struct {
	Phase   Phase
	Percent int
	Message string
}

func (s Status) String() string {
	switch s.Phase {
	case Downloading:
		return fmt.Sprintf("downloading(%d%%)", s.Percent)
	case Failed:
		return fmt.Sprintf("failed(%s)", s.Message)
	default:
		return s.Phase.String()
	}
}

// VersionStore persists the installed content schema version.
type VersionStore interface {
	DBVersion(ctx context.Context) (int, error)
	SetDBVersion(ctx context.Context, version int) error
}

// Catalog is the live content database that gets replaced.
type Catalog interface {
	Path() string
	Reload(ctx context.Context) error
}

type Updater struct {
	remote   ConfigFetcher
	source   Source
	versions VersionStore
	catalog  Catalog
	tempDir  string
	interval time.Duration
	log      logging.Logger

	// validate checks a downloaded file before it goes live.
	validate func(ctx context.Context, path string) error
}

type Options struct {
	TempDir          string
	ProgressInterval time.Duration
	Logger           logging.Logger
}

func NewUpdater(remote ConfigFetcher, source Source, versions VersionStore, catalog Catalog, opts Options) *Updater {
	log := opts.Logger
	if log == nil {
		log = logging.NewDiscard()
	}
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Updater{
		remote:   remote,
		source:   source,
		versions: versions,
		catalog:  catalog,
		tempDir:  tempDir,
		interval: opts.ProgressInterval,
		log:      log,
		validate: content.Validate,
	}
}

// Check fetches the remote config and reports whether its target version
// is newer than the installed one.
func (u *Updater) Check(ctx context.Context) (RemoteConfig, bool, error) {
	rc, err := u.remote.Fetch(ctx)
	if err != nil {
		return rc, false, err
	}
	current, err := u.versions.DBVersion(ctx)
	if err != nil {
		return rc, false, fmt.Errorf("read installed version: %w", err)
	}
	return rc, rc.TargetVersion > current, nil
}

// Run checks for an update and applies it when one is due. report, if not
// nil, receives every status in order; the last one is Completed, UpToDate
// or Failed. The returned error is common.ErrAlreadyUpToDate when nothing
// had to be done.
func (u *Updater) Run(ctx context.Context, report func(Status)) error {
	if report == nil {
		report = func(Status) {}
	}

	report(Status{Phase: Checking})
	rc, due, err := u.Check(ctx)
	if err != nil {
		report(Status{Phase: Failed, Message: err.Error()})
		return err
	}
	if !due {
		u.log.Info(ctx, "content database up to date", "target_version", rc.TargetVersion)
		report(Status{Phase: UpToDate})
		return common.ErrAlreadyUpToDate
	}

	if err := u.Apply(ctx, rc, report); err != nil {
		report(Status{Phase: Failed, Message: err.Error()})
		return err
	}
	report(Status{Phase: Completed})
	return nil
}

// Apply installs the pack described by rc regardless of the installed
// version. It reports Downloading and Installing; the caller reports the
// final outcome. On any failure the live database is left as it was.
func (u *Updater) Apply(ctx context.Context, rc RemoteConfig, report func(Status)) error {
	if report == nil {
		report = func(Status) {}
	}
	if err := rc.validate(); err != nil {
		return err
	}

	log := u.log.With("pack", rc.PackName, "target_version", rc.TargetVersion)
	log.Info(ctx, "content update started")

	if _, err := filex.EnsureDir(u.tempDir); err != nil {
		return err
	}
	tmp := filepath.Join(u.tempDir, "content-"+uuid.NewString()+".db.part")
	defer func() { _ = filex.RemoveIfExists(tmp) }()

	report(Status{Phase: Downloading})
	if err := u.download(ctx, rc, tmp, report); err != nil {
		log.Error(ctx, "content download failed", "error", err)
		return err
	}

	report(Status{Phase: Installing})
	if err := u.validate(ctx, tmp); err != nil {
		log.Error(ctx, "content pack rejected", "error", err)
		return fmt.Errorf("invalid content pack: %w", err)
	}

	if err := u.install(ctx, tmp); err != nil {
		log.Error(ctx, "content install failed", "error", err)
		return err
	}

	if err := u.versions.SetDBVersion(ctx, rc.TargetVersion); err != nil {
		return fmt.Errorf("record content version: %w", err)
	}

	log.Info(ctx, "content update finished")
	return nil
}

func (u *Updater) download(ctx context.Context, rc RemoteConfig, dst string, report func(Status)) error {
	body, size, err := u.source.Open(ctx, rc.PackName, rc.DBFileName)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	var throttle *rate.Sometimes
	if u.interval > 0 {
		throttle = &rate.Sometimes{Interval: u.interval}
	}
	last := 0
	pw := &progressWriter{w: f, onWrite: func(written int64) {
		if size <= 0 {
			return
		}
		p := int(written * 100 / size)
		if p > 99 {
			p = 99
		}
		if p == last {
			return
		}
		emit := func() {
			last = p
			report(Status{Phase: Downloading, Percent: p})
		}
		if throttle == nil {
			emit()
		} else {
			throttle.Do(emit)
		}
	}}

	if _, err := io.Copy(pw, contextReader{ctx: ctx, r: body}); err != nil {
		_ = f.Close()
		return fmt.Errorf("download content pack: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync content pack: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close content pack: %w", err)
	}

	report(Status{Phase: Downloading, Percent: 100})
	return nil
}

// install moves src over the live database and reloads the catalog. The
// previous file is restored if the reload fails.
func (u *Updater) install(ctx context.Context, src string) error {
	live := u.catalog.Path()
	backup := live + ".bak"

	hadLive, err := filex.Exists(live)
	if err != nil {
		return err
	}
	if hadLive {
		if err := filex.MoveFile(live, backup); err != nil {
			return fmt.Errorf("back up content db: %w", err)
		}
	}

	if err := filex.MoveFile(src, live); err != nil {
		if hadLive {
			_ = filex.MoveFile(backup, live)
		}
		return fmt.Errorf("install content db: %w", err)
	}

	if err := u.catalog.Reload(ctx); err != nil {
		if hadLive {
			if rerr := filex.MoveFile(backup, live); rerr == nil {
				err = errors.Join(err, u.catalog.Reload(ctx))
			}
		}
		return fmt.Errorf("reload content db: %w", err)
	}

	return filex.RemoveIfExists(backup)
}

type progressWriter struct {
	w       io.Writer
	written int64
	onWrite func(written int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.onWrite(p.written)
	return n, err
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(b []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(b)
}
