// Package downloads fetches audio over HTTP straight into encrypted offline
// storage and tracks per-item download state.
//
// A Manager admits at most one download per content id. Each download
// streams the response body through the encryption engine into a temp file,
// renames it to <audioDir>/<id>.enc, writes the Download Record and only
// then publishes success. State transitions are delivered to subscribers
// on a single dispatcher goroutine in the order they happened.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/bankwiser/internal/common"
	"github.com/dmitrijs2005/bankwiser/internal/filex"
	"github.com/dmitrijs2005/bankwiser/internal/logging"
	"github.com/dmitrijs2005/bankwiser/internal/netx"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// EncryptionFailed is the error message published when the engine rejects
// the stream for reasons other than the network or cancellation.
const EncryptionFailed = "Encryption failed"

// Records persists the content id to artifact path mapping.
type Records interface {
	GetPath(ctx context.Context, id string) (string, bool, error)
	SetPath(ctx context.Context, id, path string) error
	RemovePath(ctx context.Context, id string) error
	Paths(ctx context.Context) (map[string]string, error)
}

// Cryptor is the streaming encryption engine.
type Cryptor interface {
	Encrypt(ctx context.Context, in io.ReadCloser, out io.WriteCloser) error
	Decrypt(ctx context.Context, in io.ReadCloser, out io.WriteCloser) error
}

type Options struct {
	AudioDir string
	TempDir  string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// ProgressInterval throttles in-progress events per download. Zero
	// publishes every percent change.
	ProgressInterval time.Duration

	Logger logging.Logger
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Manager struct {
	engine   Cryptor
	records  Records
	client   *http.Client
	audioDir string
	tempDir  string
	interval time.Duration
	log      logging.Logger

	ctx       context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	// gate serializes admission so the "active or downloaded" check and
	// registration happen atomically.
	gate sync.Mutex

	mu     sync.Mutex
	active map[string]*task
	states map[string]State
	closed bool

	events *dispatcher
}

func NewManager(engine Cryptor, records Records, opts Options) (*Manager, error) {
	if opts.AudioDir == "" || opts.TempDir == "" {
		return nil, fmt.Errorf("%w: audio and temp directories are required", common.ErrInvalidArgument)
	}
	for _, dir := range []string{opts.AudioDir, opts.TempDir} {
		if _, err := filex.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewDiscard()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		engine:    engine,
		records:   records,
		client:    client,
		audioDir:  opts.AudioDir,
		tempDir:   opts.TempDir,
		interval:  opts.ProgressInterval,
		log:       log,
		ctx:       ctx,
		cancelAll: cancel,
		active:    map[string]*task{},
		states:    map[string]State{},
		events:    newDispatcher(),
	}, nil
}

// Subscribe registers fn for every future event and returns a function that
// removes it. fn runs on the dispatcher goroutine and must not block for long.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	return m.events.subscribe(fn)
}

// State returns the latest published state of id.
func (m *Manager) State(id string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[id]; ok {
		return s
	}
	return idle()
}

// Active reports whether a download of id is running.
func (m *Manager) Active(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// Download starts fetching url for id in the background and reports whether
// it did. It does nothing when id is already downloading or already
// downloaded. The download stops when ctx is done, on Cancel or on Close.
func (m *Manager) Download(ctx context.Context, id, url string) bool {
	if err := checkID(id); err != nil {
		m.log.Warn(ctx, "download rejected", "content_id", id, "error", err)
		return false
	}

	m.gate.Lock()
	defer m.gate.Unlock()

	if m.Active(id) {
		return false
	}

	downloaded, err := m.IsDownloaded(ctx, id)
	if err != nil {
		m.log.Warn(ctx, "download record lookup failed", "content_id", id, "error", err)
	}
	if downloaded {
		return false
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	tctx, cancel := context.WithCancel(m.ctx)
	stop := context.AfterFunc(ctx, cancel)
	t := &task{cancel: cancel, done: make(chan struct{})}
	m.active[id] = t
	m.wg.Add(1)
	m.mu.Unlock()

	m.publish(id, progress(0))

	go func() {
		defer m.wg.Done()
		defer close(t.done)
		defer stop()
		defer cancel()

		final := m.run(tctx, id, url)

		// Still active while the final state goes out, so a retry cannot
		// publish progress that this state would overwrite.
		m.publish(id, final)

		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
	}()

	return true
}

// Cancel aborts a running download of id. The temp file is removed and the
// state returns to idle. It reports whether a download was running.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	t, ok := m.active[id]
	m.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel()
	<-t.done
	return true
}

// Delete removes the artifact and Download Record of id and resets its
// state to idle. A running download is cancelled first. A missing file is
// not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	m.gate.Lock()
	defer m.gate.Unlock()

	m.Cancel(id)

	path, ok, err := m.records.GetPath(ctx, id)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", id, err)
	}
	if ok {
		if err := filex.RemoveIfExists(path); err != nil {
			m.log.Warn(ctx, "remove artifact failed", "content_id", id, "path", path, "error", err)
		}
		if err := m.records.RemovePath(ctx, id); err != nil {
			return fmt.Errorf("remove record %s: %w", id, err)
		}
	}
	// A leftover artifact without a record still belongs to id.
	_ = filex.RemoveIfExists(m.artifactPath(id))

	m.publish(id, idle())
	m.log.Info(ctx, "download deleted", "content_id", id)
	return nil
}

// IsDownloaded reports whether id has a Download Record whose file exists.
// A record pointing at a missing file is removed.
func (m *Manager) IsDownloaded(ctx context.Context, id string) (bool, error) {
	path, ok, err := m.records.GetPath(ctx, id)
	if err != nil || !ok {
		return false, err
	}

	exists, err := filex.Exists(path)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}

	m.log.Warn(ctx, "dropping stale download record", "content_id", id, "path", path)
	if err := m.records.RemovePath(ctx, id); err != nil {
		return false, fmt.Errorf("remove stale record %s: %w", id, err)
	}
	return false, nil
}

// Downloaded returns the ids with a Download Record.
func (m *Manager) Downloaded(ctx context.Context) (map[string]string, error) {
	return m.records.Paths(ctx)
}

// Open decrypts the stored artifact of id into w, closing w when done.
// It returns common.ErrNotFound when id is not downloaded.
func (m *Manager) Open(ctx context.Context, id string, w io.WriteCloser) error {
	ok, err := m.IsDownloaded(ctx, id)
	if err != nil {
		_ = w.Close()
		return err
	}
	if !ok {
		_ = w.Close()
		return fmt.Errorf("audio %q: %w", id, common.ErrNotFound)
	}

	path, _, err := m.records.GetPath(ctx, id)
	if err != nil {
		_ = w.Close()
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("open artifact: %w", err)
	}
	return m.engine.Decrypt(ctx, f, w)
}

// Wait blocks until no download is running.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels running downloads, waits for them, delivers the remaining
// events and stops the dispatcher. Download is a no-op afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancelAll()
	m.wg.Wait()
	m.events.close()
	return nil
}

// checkID rejects ids that cannot be used as a single file name inside the
// audio and temp directories.
func checkID(id string) error {
	if id == "" || !filepath.IsLocal(id) || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: content id %q", common.ErrInvalidArgument, id)
	}
	return nil
}

func (m *Manager) artifactPath(id string) string {
	return filepath.Join(m.audioDir, id+".enc")
}

func (m *Manager) publish(id string, s State) {
	m.mu.Lock()
	m.states[id] = s
	m.mu.Unlock()

	m.events.publish(Event{ContentID: id, State: s})
}

// run performs one download and returns its final state.
func (m *Manager) run(ctx context.Context, id, url string) State {
	log := m.log.With("content_id", id)
	log.Info(ctx, "download started", "url", url)

	body, size, err := netx.OpenGet(ctx, m.client, url)
	if err != nil {
		return m.fail(ctx, log, err)
	}

	tmp := filepath.Join(m.tempDir, id+"-"+uuid.NewString()+".part")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		_ = body.Close()
		return m.fail(ctx, log, fmt.Errorf("create temp file: %w", err))
	}

	pr := m.newProgressReader(id, body, size)
	if err := m.engine.Encrypt(ctx, pr, f); err != nil {
		_ = filex.RemoveIfExists(tmp)
		switch {
		case ctx.Err() != nil:
			return m.fail(ctx, log, ctx.Err())
		case pr.err != nil:
			return m.fail(ctx, log, pr.err)
		default:
			log.Error(ctx, "encryption failed", "error", err)
			return failed(EncryptionFailed)
		}
	}

	// Past this point the artifact is complete; cancellation no longer applies.
	commitCtx := context.WithoutCancel(ctx)

	dst := m.artifactPath(id)
	if err := filex.MoveFile(tmp, dst); err != nil {
		_ = filex.RemoveIfExists(tmp)
		return m.fail(commitCtx, log, err)
	}

	if err := m.records.SetPath(commitCtx, id, dst); err != nil {
		_ = filex.RemoveIfExists(dst)
		return m.fail(commitCtx, log, fmt.Errorf("write download record: %w", err))
	}

	pr.finish()
	log.Info(ctx, "download finished", "bytes", pr.read, "path", dst)
	return success()
}

// fail maps err to the final state: cancellation returns to idle, anything
// else becomes an error carrying err's message.
func (m *Manager) fail(ctx context.Context, log logging.Logger, err error) State {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Info(ctx, "download cancelled")
		return idle()
	}
	log.Error(ctx, "download failed", "error", err)
	return failed(err.Error())
}

// progressReader counts bytes pulled through it by the engine, remembers
// the first read error and reports percent changes.
type progressReader struct {
	r     io.ReadCloser
	total int64
	read  int64
	err   error

	last     int
	throttle *rate.Sometimes
	report   func(percent int)
}

func (m *Manager) newProgressReader(id string, r io.ReadCloser, total int64) *progressReader {
	pr := &progressReader{
		r:      r,
		total:  total,
		last:   0,
		report: func(p int) { m.publish(id, progress(p)) },
	}
	if m.interval > 0 {
		pr.throttle = &rate.Sometimes{Interval: m.interval}
	}
	return pr
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if err != nil && !errors.Is(err, io.EOF) && p.err == nil {
		p.err = err
	}

	if p.total > 0 {
		// 100% is held back until the artifact is committed.
		percent := int(p.read * 100 / p.total)
		if percent > 99 {
			percent = 99
		}
		if percent != p.last {
			p.emit(percent)
		}
	}
	return n, err
}

func (p *progressReader) emit(percent int) {
	if p.throttle == nil {
		p.last = percent
		p.report(percent)
		return
	}
	p.throttle.Do(func() {
		p.last = percent
		p.report(percent)
	})
}

// finish publishes 100% unconditionally.
func (p *progressReader) finish() {
	p.last = 100
	p.report(100)
}

func (p *progressReader) Close() error {
	return p.r.Close()
}
