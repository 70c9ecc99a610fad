package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/svrlab/video-archiver/internal/db"
	"github.com/svrlab/video-archiver/internal/secretbox"
	"github.com/svrlab/video-archiver/internal/service"
)

type fakeStore struct {
	mu      sync.Mutex
	sources map[uint]*db.Source
	chunks  map[string]service.Chunk
	secrets map[string]db.Secret
	// statusLog records every persisted transition per source.
	statusLog map[uint][]db.SourceStatus
}

func newFakeStore(sources ...*db.Source) *fakeStore {
	s := &fakeStore{
		sources:   make(map[uint]*db.Source),
		chunks:    make(map[string]service.Chunk),
		secrets:   make(map[string]db.Secret),
		statusLog: make(map[uint][]db.SourceStatus),
	}
	for _, src := range sources {
		s.sources[src.ID] = src
	}
	return s
}

func (s *fakeStore) GetSource(id uint) (*db.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("source %d: %w", id, service.ErrNotFound)
	}
	copied := *src
	return &copied, nil
}

func (s *fakeStore) UpdateStatus(id uint, status db.SourceStatus, statusMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.sources[id]
	src.StatusCode = status
	src.StatusMsg = statusMsg
	s.statusLog[id] = append(s.statusLog[id], status)
	return nil
}

func (s *fakeStore) ListRunnable() ([]db.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Source
	for _, src := range s.sources {
		if !src.StatusCode.Terminal() {
			out = append(out, *src)
		}
	}
	return out, nil
}

func (s *fakeStore) RecordChunk(sourceID uint, chunk service.Chunk) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chunk.EndTime <= chunk.StartTime || chunk.FrameCount < 0 {
		return 0, fmt.Errorf("chunk %s: %w", chunk.FilePath, service.ErrInvalidChunk)
	}
	if _, exists := s.chunks[chunk.FilePath]; exists {
		return 0, fmt.Errorf("chunk %s: %w", chunk.FilePath, service.ErrDuplicateChunk)
	}
	s.chunks[chunk.FilePath] = chunk
	return uint(len(s.chunks)), nil
}

func (s *fakeStore) GetSecret(name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[name]
	if !ok {
		return "", false, fmt.Errorf("secret %q: %w", name, service.ErrNotFound)
	}
	return secret.Value, secret.Encrypted, nil
}

type fakeLeases struct {
	mu       sync.Mutex
	held     map[uint]bool // leases owned elsewhere
	acquired []uint
	released []uint
}

func newFakeLeases() *fakeLeases {
	return &fakeLeases{held: make(map[uint]bool)}
}

func (l *fakeLeases) Acquire(sourceID uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[sourceID] {
		return fmt.Errorf("source %d: %w", sourceID, ErrLeaseHeld)
	}
	l.acquired = append(l.acquired, sourceID)
	return nil
}

func (l *fakeLeases) Renew(sourceID uint) error { return nil }

func (l *fakeLeases) Release(sourceID uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = append(l.released, sourceID)
	return nil
}

func (l *fakeLeases) ReclaimExpired() (int64, error) { return 0, nil }

type fakeFetcher struct {
	path        string
	err         error
	credentials []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, credential string) (string, error) {
	f.credentials = append(f.credentials, credential)
	if f.err != nil {
		return "", f.err
	}
	return f.path, nil
}

type fakeSplitter struct {
	chunks []service.Chunk
	err    error
	calls  int
}

func (s *fakeSplitter) Split(ctx context.Context, sourceID uint, path string) ([]service.Chunk, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.chunks, nil
}

func testChunks() []service.Chunk {
	return []service.Chunk{
		{FilePath: "/chunks/1/000000000.000_000000060.000.mp4", StartTime: 0, EndTime: 60, FrameCount: 1800},
		{FilePath: "/chunks/1/000000060.000_000000120.000.mp4", StartTime: 60, EndTime: 120, FrameCount: 1800},
		{FilePath: "/chunks/1/000000120.000_000000125.000.mp4", StartTime: 120, EndTime: 125, FrameCount: 150},
	}
}

func serviceForTest(t *testing.T, store Store, leases Leases,
	fetcher MediaFetcher, splitter ChunkSplitter, box *secretbox.Box) *Service {
	t.Helper()
	svc, err := newService(store, fetcher, splitter, leases, box, HostSecretName, &Config{
		Workers:       1,
		QueueSize:     10,
		PollInterval:  time.Hour, // tests drive processSource directly
		SplitPoolSize: 2,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { svc.splitPool.Release() })
	return svc
}

func TestProcessSourceHappyPath(t *testing.T) {
	store := newFakeStore(&db.Source{ID: 1, URL: "http://cam.example/feed.mp4", StatusCode: db.StatusPending})
	leases := newFakeLeases()
	svc := serviceForTest(t, store, leases, &fakeFetcher{path: "/tmp/feed.mp4"},
		&fakeSplitter{chunks: testChunks()}, nil)

	svc.processSource(1)

	src, _ := store.GetSource(1)
	assert.Equal(t, db.StatusReady, src.StatusCode)
	assert.Empty(t, src.StatusMsg)
	assert.Len(t, store.chunks, 3)
	assert.Equal(t, []db.SourceStatus{
		db.StatusFetching, db.StatusSplitting, db.StatusIndexing, db.StatusReady,
	}, store.statusLog[1])
	assert.Equal(t, []uint{1}, leases.acquired)
	assert.Equal(t, []uint{1}, leases.released)
}

func TestProcessSourceFetchFailure(t *testing.T) {
	store := newFakeStore(&db.Source{ID: 1, URL: "http://down.example/feed.mp4", StatusCode: db.StatusPending})
	leases := newFakeLeases()
	svc := serviceForTest(t, store, leases,
		&fakeFetcher{err: fmt.Errorf("%w: connection refused", ErrUnreachable)},
		&fakeSplitter{}, nil)

	svc.processSource(1)

	src, _ := store.GetSource(1)
	assert.Equal(t, db.StatusFailed, src.StatusCode)
	assert.NotEmpty(t, src.StatusMsg)
	assert.Empty(t, store.chunks, "no chunks recorded for a failed fetch")
	assert.Equal(t, []uint{1}, leases.released, "lease released even on failure")
}

func TestProcessSourceDecodeFailure(t *testing.T) {
	store := newFakeStore(&db.Source{ID: 1, URL: "http://cam.example/feed.mp4", StatusCode: db.StatusPending})
	svc := serviceForTest(t, store, newFakeLeases(), &fakeFetcher{path: "/tmp/feed.mp4"},
		&fakeSplitter{err: fmt.Errorf("%w: bad container", ErrDecode)}, nil)

	svc.processSource(1)

	src, _ := store.GetSource(1)
	assert.Equal(t, db.StatusFailed, src.StatusCode)
	assert.Contains(t, src.StatusMsg, "decode")
}

func TestProcessSourceAbsorbsDuplicateChunks(t *testing.T) {
	// Crash recovery: the first two chunks were indexed before the worker
	// died at splitting. The replay must converge on ready.
	store := newFakeStore(&db.Source{ID: 1, URL: "http://cam.example/feed.mp4", StatusCode: db.StatusSplitting})
	chunks := testChunks()
	store.chunks[chunks[0].FilePath] = chunks[0]
	store.chunks[chunks[1].FilePath] = chunks[1]

	svc := serviceForTest(t, store, newFakeLeases(), &fakeFetcher{path: "/tmp/feed.mp4"},
		&fakeSplitter{chunks: chunks}, nil)

	svc.processSource(1)

	src, _ := store.GetSource(1)
	assert.Equal(t, db.StatusReady, src.StatusCode)
	assert.Len(t, store.chunks, 3, "no duplicate rows for replayed chunks")
	// Resumed at splitting: the status never moves backwards to fetching.
	assert.Equal(t, []db.SourceStatus{db.StatusIndexing, db.StatusReady}, store.statusLog[1])
}

func TestProcessSourceSkipsWhenLeaseHeld(t *testing.T) {
	store := newFakeStore(&db.Source{ID: 1, URL: "http://cam.example/feed.mp4", StatusCode: db.StatusPending})
	leases := newFakeLeases()
	leases.held[1] = true
	fetcher := &fakeFetcher{path: "/tmp/feed.mp4"}
	svc := serviceForTest(t, store, leases, fetcher, &fakeSplitter{chunks: testChunks()}, nil)

	svc.processSource(1)

	src, _ := store.GetSource(1)
	assert.Equal(t, db.StatusPending, src.StatusCode, "lease held is a skip, not a failure")
	assert.Empty(t, store.statusLog[1])
	assert.Empty(t, fetcher.credentials, "no fetch attempted")
}

func TestProcessSourceIgnoresTerminalSources(t *testing.T) {
	store := newFakeStore(&db.Source{ID: 1, URL: "http://cam.example/feed.mp4", StatusCode: db.StatusReady})
	splitter := &fakeSplitter{chunks: testChunks()}
	svc := serviceForTest(t, store, newFakeLeases(), &fakeFetcher{path: "/tmp/feed.mp4"}, splitter, nil)

	svc.processSource(1)

	assert.Zero(t, splitter.calls)
	assert.Empty(t, store.statusLog[1])
}

func TestProcessSourceResolvesEncryptedCredential(t *testing.T) {
	box, err := secretbox.New("test key")
	require.NoError(t, err)
	sealed, err := box.Seal("camera:hunter2")
	require.NoError(t, err)

	store := newFakeStore(&db.Source{ID: 1, URL: "http://cam.example/feed.mp4", StatusCode: db.StatusPending})
	store.secrets["cam.example"] = db.Secret{Name: "cam.example", Value: sealed, Encrypted: true}

	fetcher := &fakeFetcher{path: "/tmp/feed.mp4"}
	svc := serviceForTest(t, store, newFakeLeases(), fetcher, &fakeSplitter{chunks: testChunks()}, box)

	svc.processSource(1)

	require.Len(t, fetcher.credentials, 1)
	assert.Equal(t, "camera:hunter2", fetcher.credentials[0],
		"sealed secret must be unsealed before reaching the fetcher")
	src, _ := store.GetSource(1)
	assert.Equal(t, db.StatusReady, src.StatusCode)
}

func TestProcessSourceMissingSecretMeansPublic(t *testing.T) {
	store := newFakeStore(&db.Source{ID: 1, URL: "http://public.example/feed.mp4", StatusCode: db.StatusPending})
	fetcher := &fakeFetcher{path: "/tmp/feed.mp4"}
	svc := serviceForTest(t, store, newFakeLeases(), fetcher, &fakeSplitter{chunks: testChunks()}, nil)

	svc.processSource(1)

	require.Len(t, fetcher.credentials, 1)
	assert.Empty(t, fetcher.credentials[0])
}

func TestServiceStartStopAndNotify(t *testing.T) {
	store := newFakeStore(&db.Source{ID: 1, URL: "http://cam.example/feed.mp4", StatusCode: db.StatusPending})
	svc := serviceForTest(t, store, newFakeLeases(), &fakeFetcher{path: "/tmp/feed.mp4"},
		&fakeSplitter{chunks: testChunks()}, nil)

	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start(), "double start must fail")
	require.NoError(t, svc.NotifySource(1))

	assert.Eventually(t, func() bool {
		src, _ := store.GetSource(1)
		return src.StatusCode == db.StatusReady
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Stop())
	assert.Error(t, svc.NotifySource(1), "notify after stop must fail")
}

func TestPollDuringStopDoesNotPanic(t *testing.T) {
	store := newFakeStore(&db.Source{ID: 1, URL: "http://cam.example/feed.mp4", StatusCode: db.StatusPending})
	svc := serviceForTest(t, store, newFakeLeases(), &fakeFetcher{path: "/tmp/feed.mp4"},
		&fakeSplitter{chunks: testChunks()}, nil)

	require.NoError(t, svc.Start())
	require.NoError(t, svc.Stop())

	// A poll tick racing shutdown still sends runnable sources into the
	// queue; that must never crash the process.
	assert.NotPanics(t, func() { svc.pollOnce() })
}

func TestHostSecretName(t *testing.T) {
	assert.Equal(t, "cam.example", HostSecretName("http://cam.example:8080/stream.mp4"))
	assert.Equal(t, "", HostSecretName("://bad"))
}
