package downloads

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/bankwiser/internal/client/prefs"
	"github.com/dmitrijs2005/bankwiser/internal/common"
	"github.com/dmitrijs2005/bankwiser/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	m        *Manager
	records  *prefs.Store
	audioDir string
	tempDir  string
	events   chan Event
}

func newEnv(t *testing.T, engine Cryptor) *env {
	t.Helper()
	dir := t.TempDir()

	records, err := prefs.Open(context.Background(), filepath.Join(dir, "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	material := make([]byte, cryptox.KeySize)
	_, err = rand.Read(material)
	require.NoError(t, err)
	key, err := cryptox.NewKey("test", material)
	require.NoError(t, err)
	eng := cryptox.NewEngine(cryptox.StaticKeyProvider{Key: key})
	if engine == nil {
		engine = eng
	}

	e := &env{
		records:  records,
		audioDir: filepath.Join(dir, "audio"),
		tempDir:  filepath.Join(dir, "tmp"),
		events:   make(chan Event, 4096),
	}

	e.m, err = NewManager(engine, records, Options{
		AudioDir: e.audioDir,
		TempDir:  e.tempDir,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.m.Close() })

	e.m.Subscribe(func(ev Event) { e.events <- ev })
	return e
}

// waitFor collects events for id until done returns true.
func (e *env) waitFor(t *testing.T, id string, done func(State) bool) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-e.events:
			if ev.ContentID != id {
				continue
			}
			got = append(got, ev)
			if done(ev.State) {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s; got %v", id, got)
		}
	}
}

func terminal(s State) bool { return s.Terminal() }

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, de := range entries {
		names = append(names, de.Name())
	}
	return names
}

func payload(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func serveBytes(body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}
}

type sink struct {
	bytes.Buffer
	closed bool
}

func (s *sink) Close() error { s.closed = true; return nil }

func TestDownload_SuccessEndToEnd(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	body := payload(t, 3*cryptox.ChunkSize+123)

	ts := httptest.NewServer(serveBytes(body))
	defer ts.Close()

	require.True(t, e.m.Download(ctx, "a1", ts.URL+"/a1.mp3"))
	events := e.waitFor(t, "a1", terminal)
	e.m.Wait()

	require.Equal(t, success(), e.m.State("a1"))

	// Transition order: starts at 0, climbs monotonically to 100, ends in success.
	require.Equal(t, progress(0), events[0].State)
	require.Equal(t, success(), events[len(events)-1].State)
	require.Equal(t, progress(100), events[len(events)-2].State)
	last := -1
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, InProgress, ev.State.Kind)
		require.Greater(t, ev.State.Percent, last)
		last = ev.State.Percent
	}

	path, ok, err := e.records.GetPath(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, filepath.Join(e.audioDir, "a1.enc"), path)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NotEqual(t, int64(len(body)), fi.Size(), "artifact must not be plaintext")

	var out sink
	require.NoError(t, e.m.Open(ctx, "a1", &out))
	require.True(t, out.closed)
	require.Equal(t, body, out.Bytes())

	require.Empty(t, tempFiles(t, e.tempDir))
}

func TestDownload_SmallBodySingleChunkLayout(t *testing.T) {
	e := newEnv(t, nil)
	body := []byte("tiny audio")

	ts := httptest.NewServer(serveBytes(body))
	defer ts.Close()

	require.True(t, e.m.Download(context.Background(), "a1", ts.URL))
	e.waitFor(t, "a1", terminal)

	raw, err := os.ReadFile(filepath.Join(e.audioDir, "a1.enc"))
	require.NoError(t, err)
	require.Len(t, raw, cryptox.NonceSize+len(body)+cryptox.TagSize)
}

func TestDownload_NotFound(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	require.True(t, e.m.Download(ctx, "a1", ts.URL))
	events := e.waitFor(t, "a1", terminal)

	final := events[len(events)-1].State
	require.Equal(t, Failed, final.Kind)
	require.Contains(t, final.Message, "404")
	require.Equal(t, "404 Not Found", e.m.State("a1").Message)

	_, ok, err := e.records.GetPath(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, tempFiles(t, e.audioDir))
	require.Empty(t, tempFiles(t, e.tempDir))
}

func TestDownload_AtMostOneInFlight(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	body := payload(t, 1000)

	var hits atomic.Int32
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		serveBytes(body)(w, r)
	}))
	defer ts.Close()

	require.True(t, e.m.Download(ctx, "a1", ts.URL))
	require.False(t, e.m.Download(ctx, "a1", ts.URL))
	require.True(t, e.m.Active("a1"))
	close(release)

	events := e.waitFor(t, "a1", terminal)
	e.m.Wait()

	require.Equal(t, success(), events[len(events)-1].State)
	require.EqualValues(t, 1, hits.Load())

	// Completed items are not overwritten without an explicit delete.
	require.False(t, e.m.Download(ctx, "a1", ts.URL))
	require.EqualValues(t, 1, hits.Load())

	all, err := e.m.Downloaded(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestDownload_ConcurrentCallersOneWins(t *testing.T) {
	e := newEnv(t, nil)
	ts := httptest.NewServer(serveBytes(payload(t, 5000)))
	defer ts.Close()

	var started atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e.m.Download(context.Background(), "a1", ts.URL) {
				started.Add(1)
			}
		}()
	}
	wg.Wait()
	e.m.Wait()

	require.EqualValues(t, 1, started.Load())
	require.Equal(t, success(), e.m.State("a1"))
}

func TestDelete_ThenRedownload(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	body := payload(t, 2*cryptox.ChunkSize)

	ts := httptest.NewServer(serveBytes(body))
	defer ts.Close()

	require.True(t, e.m.Download(ctx, "a1", ts.URL))
	e.waitFor(t, "a1", terminal)

	require.NoError(t, e.m.Delete(ctx, "a1"))
	e.waitFor(t, "a1", func(s State) bool { return s.Kind == Idle })
	require.Equal(t, idle(), e.m.State("a1"))

	_, err := os.Stat(filepath.Join(e.audioDir, "a1.enc"))
	require.True(t, os.IsNotExist(err))
	_, ok, err := e.records.GetPath(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)

	var out sink
	require.ErrorIs(t, e.m.Open(ctx, "a1", &out), common.ErrNotFound)

	require.True(t, e.m.Download(ctx, "a1", ts.URL))
	e.waitFor(t, "a1", terminal)
	require.Equal(t, success(), e.m.State("a1"))

	out = sink{}
	require.NoError(t, e.m.Open(ctx, "a1", &out))
	require.Equal(t, body, out.Bytes())
}

func TestDelete_MissingFileAndRecordIsFine(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, e.m.Delete(ctx, "never"))

	require.NoError(t, e.records.SetPath(ctx, "gone", filepath.Join(e.audioDir, "gone.enc")))
	require.NoError(t, e.m.Delete(ctx, "gone"))
	_, ok, err := e.records.GetPath(ctx, "gone")
	require.NoError(t, err)
	require.False(t, ok)
}

// stallingServer sends part of the body and then holds the connection open
// until the client goes away.
func stallingServer(t *testing.T, hit chan<- struct{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(10*cryptox.ChunkSize))
		_, _ = w.Write(make([]byte, 3*cryptox.ChunkSize))
		w.(http.Flusher).Flush()
		hit <- struct{}{}
		<-r.Context().Done()
	}))
}

func TestCancel_CleansUpAndReturnsToIdle(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	hit := make(chan struct{}, 1)
	ts := stallingServer(t, hit)
	defer ts.Close()

	require.True(t, e.m.Download(ctx, "a1", ts.URL))
	<-hit

	require.True(t, e.m.Cancel("a1"))
	require.False(t, e.m.Cancel("a1"))

	require.Equal(t, idle(), e.m.State("a1"))
	require.False(t, e.m.Active("a1"))
	require.Empty(t, tempFiles(t, e.tempDir))
	require.Empty(t, tempFiles(t, e.audioDir))

	_, ok, err := e.records.GetPath(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)

	events := e.waitFor(t, "a1", func(s State) bool { return s.Kind == Idle })
	for _, ev := range events {
		require.False(t, ev.State.Terminal(), "cancellation is not a terminal transition")
	}
}

func TestCancel_ByCallerContext(t *testing.T) {
	e := newEnv(t, nil)

	hit := make(chan struct{}, 1)
	ts := stallingServer(t, hit)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, e.m.Download(ctx, "a1", ts.URL))
	<-hit
	cancel()

	e.waitFor(t, "a1", func(s State) bool { return s.Kind == Idle })
	e.m.Wait()
	require.Equal(t, idle(), e.m.State("a1"))
	require.Empty(t, tempFiles(t, e.tempDir))
}

func TestDownload_TruncatedResponseIsAnError(t *testing.T) {
	e := newEnv(t, nil)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		_, _ = w.Write(make([]byte, 1000))
	}))
	defer ts.Close()

	require.True(t, e.m.Download(context.Background(), "a1", ts.URL))
	events := e.waitFor(t, "a1", terminal)

	final := events[len(events)-1].State
	require.Equal(t, Failed, final.Kind)
	require.NotEqual(t, EncryptionFailed, final.Message)
	require.Empty(t, tempFiles(t, e.tempDir))
	require.Empty(t, tempFiles(t, e.audioDir))
}

type brokenCryptor struct {
	Cryptor
}

func (brokenCryptor) Encrypt(ctx context.Context, in io.ReadCloser, out io.WriteCloser) error {
	_, _ = out.Write([]byte("partial"))
	_ = in.Close()
	_ = out.Close()
	return cryptox.ErrInvalidKey
}

func TestDownload_EncryptionFailure(t *testing.T) {
	e := newEnv(t, brokenCryptor{})
	ctx := context.Background()

	ts := httptest.NewServer(serveBytes([]byte("audio")))
	defer ts.Close()

	require.True(t, e.m.Download(ctx, "a1", ts.URL))
	events := e.waitFor(t, "a1", terminal)

	require.Equal(t, failed(EncryptionFailed), events[len(events)-1].State)
	require.Empty(t, tempFiles(t, e.tempDir))
	_, ok, err := e.records.GetPath(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)

	// error -> in-progress via a fresh call.
	require.True(t, e.m.Download(ctx, "a1", ts.URL))
	e.waitFor(t, "a1", terminal)
}

func TestIsDownloaded_DropsStaleRecord(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, e.records.SetPath(ctx, "a1", filepath.Join(e.audioDir, "a1.enc")))

	ok, err := e.m.IsDownloaded(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)

	_, found, err := e.records.GetPath(ctx, "a1")
	require.NoError(t, err)
	require.False(t, found)

	ts := httptest.NewServer(serveBytes([]byte("fresh")))
	defer ts.Close()
	require.True(t, e.m.Download(ctx, "a1", ts.URL))
	e.waitFor(t, "a1", terminal)
	require.Equal(t, success(), e.m.State("a1"))
}

func TestOpen_TamperedArtifact(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	ts := httptest.NewServer(serveBytes(payload(t, 4096)))
	defer ts.Close()
	require.True(t, e.m.Download(ctx, "a1", ts.URL))
	e.waitFor(t, "a1", terminal)

	path := filepath.Join(e.audioDir, "a1.enc")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	var out sink
	err = e.m.Open(ctx, "a1", &out)
	require.ErrorIs(t, err, cryptox.ErrIntegrity)
	require.Zero(t, out.Len())
}

func TestClose_StopsNewDownloads(t *testing.T) {
	e := newEnv(t, nil)

	hit := make(chan struct{}, 1)
	ts := stallingServer(t, hit)
	defer ts.Close()

	require.True(t, e.m.Download(context.Background(), "a1", ts.URL))
	<-hit

	require.NoError(t, e.m.Close())
	require.NoError(t, e.m.Close())
	require.Equal(t, idle(), e.m.State("a1"))
	require.False(t, e.m.Download(context.Background(), "a2", ts.URL))
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	e := newEnv(t, nil)

	var mu sync.Mutex
	var seen []Event
	unsub := e.m.Subscribe(func(ev Event) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	})
	unsub()
	unsub()

	ts := httptest.NewServer(serveBytes([]byte("x")))
	defer ts.Close()
	require.True(t, e.m.Download(context.Background(), "a1", ts.URL))
	e.waitFor(t, "a1", terminal)

	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, seen)
}

func TestNewManager_RequiresDirs(t *testing.T) {
	_, err := NewManager(nil, nil, Options{})
	require.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestProgressReader_ThrottlesAndFinishes(t *testing.T) {
	body := make([]byte, 1000)
	var reported []int
	pr := &progressReader{
		r:        io.NopCloser(bytes.NewReader(body)),
		total:    int64(len(body)),
		throttle: nil,
		report:   func(p int) { reported = append(reported, p) },
	}

	buf := make([]byte, 100)
	for {
		_, err := pr.Read(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}
	pr.finish()
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 99, 100}, reported)

	reported = nil
	m := &Manager{interval: time.Hour}
	slow := m.newProgressReader("a1", io.NopCloser(bytes.NewReader(body)), int64(len(body)))
	slow.report = func(p int) { reported = append(reported, p) }
	for {
		_, err := slow.Read(buf)
		if errors.Is(err, io.EOF) {
			break
		}
	}
	slow.finish()
	assert.Equal(t, []int{10, 100}, reported)
}

func TestProgressReader_UnknownLength(t *testing.T) {
	var reported []int
	pr := &progressReader{
		r:      io.NopCloser(bytes.NewReader(make([]byte, 500))),
		total:  -1,
		report: func(p int) { reported = append(reported, p) },
	}
	_, _ = io.Copy(io.Discard, pr)
	require.Empty(t, reported)
	require.EqualValues(t, 500, pr.read)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", idle().String())
	assert.Equal(t, "in-progress(42%)", progress(42).String())
	assert.Equal(t, "success", success().String())
	assert.Equal(t, "error(404 Not Found)", failed("404 Not Found").String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}

func TestDownload_RejectsIDsOutsideAudioDir(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("audio"))
	}))
	defer ts.Close()

	for _, id := range []string{"", "..", "../escaped", "a/b", `a\b`, "/abs"} {
		require.False(t, e.m.Download(ctx, id, ts.URL), "id %q", id)
	}
	e.m.Wait()
	require.Zero(t, hits.Load())
	require.Empty(t, tempFiles(t, e.audioDir))

	_, err := os.Stat(filepath.Join(filepath.Dir(e.audioDir), "escaped.enc"))
	require.True(t, os.IsNotExist(err))
	paths, err := e.records.Paths(ctx)
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestDelete_RejectsIDsOutsideAudioDir(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	outside := filepath.Join(filepath.Dir(e.audioDir), "victim.enc")
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0o600))

	require.ErrorIs(t, e.m.Delete(ctx, "../victim"), common.ErrInvalidArgument)
	require.ErrorIs(t, e.m.Delete(ctx, "x/../../victim"), common.ErrInvalidArgument)

	_, err := os.Stat(outside)
	require.NoError(t, err)
}

func TestDownload_RetryAfterFailureIsNotOverwritten(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	var calls atomic.Int32
	hit := make(chan struct{}, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(4*cryptox.ChunkSize))
		_, _ = w.Write(make([]byte, cryptox.ChunkSize))
		w.(http.Flusher).Flush()
		hit <- struct{}{}
		<-r.Context().Done()
	}))
	defer ts.Close()

	require.True(t, e.m.Download(ctx, "a1", ts.URL))

	// Retry as early as admission allows.
	deadline := time.Now().Add(10 * time.Second)
	for !e.m.Download(ctx, "a1", ts.URL) {
		require.True(t, time.Now().Before(deadline), "retry never admitted")
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, InProgress, e.m.State("a1").Kind)
	<-hit

	require.Equal(t, InProgress, e.m.State("a1").Kind)
	events := e.waitFor(t, "a1", func(s State) bool { return s.Kind == Failed })
	require.Equal(t, Failed, events[len(events)-1].State.Kind)

	// Every event after the failure belongs to the retry.
	after := e.waitFor(t, "a1", func(s State) bool { return s.Kind == InProgress })
	for _, ev := range after {
		require.NotEqual(t, Failed, ev.State.Kind)
	}
	require.Equal(t, InProgress, e.m.State("a1").Kind)
	require.True(t, e.m.Cancel("a1"))
}
