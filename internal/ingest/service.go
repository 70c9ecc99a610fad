package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/svrlab/video-archiver/internal/db"
	"github.com/svrlab/video-archiver/internal/secretbox"
	"github.com/svrlab/video-archiver/internal/service"
)

// MediaFetcher downloads a source asset to local storage.
type MediaFetcher interface {
	Fetch(ctx context.Context, url, credential string) (string, error)
}

// ChunkSplitter partitions a local media file into ordered chunks.
type ChunkSplitter interface {
	Split(ctx context.Context, sourceID uint, path string) ([]service.Chunk, error)
}

// SecretNamer maps a source URL to the name of the secret guarding it. The
// schema has no explicit link between secrets and sources, so the association
// is an injectable policy rather than a hidden convention.
type SecretNamer func(sourceURL string) string

// HostSecretName is the default policy: the secret named after the URL host.
func HostSecretName(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Service is the ingestion orchestrator. It drives each source through
// fetch, split and index, owns all status_code transitions, and serializes
// per-source work through leases. Multiple workers run in parallel across
// distinct sources.
type Service struct {
	store      Store
	fetcher    MediaFetcher
	splitter   ChunkSplitter
	leases     Leases
	box        *secretbox.Box
	secretName SecretNamer
	logger     *zap.Logger

	splitPool    *ants.Pool
	queue        chan uint
	workers      int
	pollInterval time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
}

// NewService creates the orchestrator on top of a database connection.
// box may be nil when no encrypted secrets are in use.
func NewService(dbConn *gorm.DB, fetcher MediaFetcher, splitter ChunkSplitter,
	box *secretbox.Box, cfg *Config, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return newService(
		&gormStore{db: dbConn},
		fetcher,
		splitter,
		NewLeaseManager(dbConn, cfg.LeaseTTL),
		box,
		HostSecretName,
		cfg,
		logger,
	)
}

// newService wires the orchestrator from its parts.
func newService(store Store, fetcher MediaFetcher, splitter ChunkSplitter,
	leases Leases, box *secretbox.Box, secretName SecretNamer,
	cfg *Config, logger *zap.Logger) (*Service, error) {

	// Splitting is CPU-bound; a bounded pool keeps concurrent ingestions
	// from starving each other.
	splitPool, err := ants.NewPool(cfg.SplitPoolSize)
	if err != nil {
		return nil, fmt.Errorf("create split pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:        store,
		fetcher:      fetcher,
		splitter:     splitter,
		leases:       leases,
		box:          box,
		secretName:   secretName,
		logger:       logger,
		splitPool:    splitPool,
		queue:        make(chan uint, cfg.QueueSize),
		workers:      cfg.Workers,
		pollInterval: cfg.PollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start starts the ingestion workers and the source poller.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("ingest service is already running")
	}
	s.isRunning = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.wg.Add(1)
	go s.poller()

	s.logger.Info("ingest service started", zap.Int("workers", s.workers))
	return nil
}

// Stop stops the service gracefully. In-flight sources keep their recorded
// status and their leases are released, so another worker can resume them.
// The queue is never closed: the poller sends into it concurrently, so
// workers and the poller exit on context cancellation instead.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	s.isRunning = false
	s.cancel()
	s.wg.Wait()
	s.splitPool.Release()

	s.logger.Info("ingest service stopped")
	return nil
}

// NotifySource enqueues a source for processing, typically right after
// registration. The poller will pick it up later anyway if the queue is full.
func (s *Service) NotifySource(id uint) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return fmt.Errorf("ingest service is not running")
	}
	select {
	case s.queue <- id:
		return nil
	default:
		return fmt.Errorf("ingest queue is full")
	}
}

// poller periodically reclaims expired leases and enqueues runnable sources.
func (s *Service) poller() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.pollOnce()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) pollOnce() {
	reclaimed, err := s.leases.ReclaimExpired()
	if err != nil {
		s.logger.Error("failed to reclaim expired leases", zap.Error(err))
	} else if reclaimed > 0 {
		s.logger.Warn("reclaimed expired leases", zap.Int64("count", reclaimed))
	}

	sources, err := s.store.ListRunnable()
	if err != nil {
		s.logger.Error("failed to list runnable sources", zap.Error(err))
		return
	}
	for _, src := range sources {
		select {
		case s.queue <- src.ID:
		case <-s.ctx.Done():
			return
		default:
			return // queue full, next poll will retry
		}
	}
}

// worker processes sources from the queue.
func (s *Service) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case sourceID := <-s.queue:
			s.processSource(sourceID)
		case <-s.ctx.Done():
			return
		}
	}
}

// processSource drives one source end-to-end under an exclusive lease.
// Recovery after a crash re-enters here with whatever status was last
// persisted; every step is idempotent, so re-running from the top converges
// on the same chunk set.
func (s *Service) processSource(id uint) {
	if err := s.leases.Acquire(id); err != nil {
		if errors.Is(err, ErrLeaseHeld) {
			s.logger.Debug("source lease held elsewhere, skipping", zap.Uint("source_id", id))
			return
		}
		s.logger.Error("failed to acquire lease", zap.Uint("source_id", id), zap.Error(err))
		return
	}
	defer func() {
		if err := s.leases.Release(id); err != nil {
			s.logger.Error("failed to release lease", zap.Uint("source_id", id), zap.Error(err))
		}
	}()

	src, err := s.store.GetSource(id)
	if err != nil {
		s.logger.Error("failed to load source", zap.Uint("source_id", id), zap.Error(err))
		return
	}
	if src.StatusCode.Terminal() {
		return
	}

	logger := s.logger.With(zap.Uint("source_id", src.ID), zap.String("url", src.URL))
	current := src.StatusCode

	// advance moves the persisted status forward, never backwards: a source
	// resumed at indexing must not be reported as fetching again.
	advance := func(status db.SourceStatus) bool {
		if current >= status {
			return true
		}
		if err := s.store.UpdateStatus(src.ID, status, ""); err != nil {
			logger.Error("failed to update status", zap.Stringer("status", status), zap.Error(err))
			return false
		}
		current = status
		return true
	}

	credential, err := s.resolveCredential(src.URL)
	if err != nil {
		s.fail(src.ID, logger, err)
		return
	}

	if !advance(db.StatusFetching) {
		return
	}
	localPath, err := s.fetcher.Fetch(s.ctx, src.URL, credential)
	if err != nil {
		s.fail(src.ID, logger, err)
		return
	}
	defer os.Remove(localPath)

	if !advance(db.StatusSplitting) {
		return
	}
	if err := s.leases.Renew(src.ID); err != nil {
		logger.Warn("lease lost before splitting, abandoning", zap.Error(err))
		return
	}
	chunks, err := s.split(src.ID, localPath)
	if err != nil {
		s.fail(src.ID, logger, err)
		return
	}

	if !advance(db.StatusIndexing) {
		return
	}
	if err := s.leases.Renew(src.ID); err != nil {
		logger.Warn("lease lost before indexing, abandoning", zap.Error(err))
		return
	}
	indexed, replayed := 0, 0
	for _, chunk := range chunks {
		if _, err := s.store.RecordChunk(src.ID, chunk); err != nil {
			if errors.Is(err, service.ErrDuplicateChunk) {
				// Already indexed by a previous partial run.
				replayed++
				continue
			}
			s.fail(src.ID, logger, err)
			return
		}
		indexed++
	}

	if err := s.store.UpdateStatus(src.ID, db.StatusReady, ""); err != nil {
		logger.Error("failed to mark source ready", zap.Error(err))
		return
	}
	logger.Info("source ingested",
		zap.Int("chunks_indexed", indexed),
		zap.Int("chunks_replayed", replayed))
}

// split runs the CPU-bound splitter on the bounded pool and waits for it.
func (s *Service) split(sourceID uint, localPath string) ([]service.Chunk, error) {
	var (
		chunks   []service.Chunk
		splitErr error
	)
	done := make(chan struct{})
	err := s.splitPool.Submit(func() {
		defer close(done)
		chunks, splitErr = s.splitter.Split(s.ctx, sourceID, localPath)
	})
	if err != nil {
		return nil, fmt.Errorf("submit split job: %w", err)
	}
	<-done
	return chunks, splitErr
}

// resolveCredential looks up the secret guarding the source URL, unsealing it
// when stored encrypted. A missing secret simply means the source is public.
func (s *Service) resolveCredential(sourceURL string) (string, error) {
	name := s.secretName(sourceURL)
	if name == "" {
		return "", nil
	}

	value, encrypted, err := s.store.GetSecret(name)
	if errors.Is(err, service.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve credential: %w", err)
	}

	if encrypted {
		if s.box == nil {
			return "", fmt.Errorf("secret %q is encrypted but no secretbox key is configured", name)
		}
		plain, err := s.box.Open(value)
		if err != nil {
			return "", fmt.Errorf("unseal secret %q: %w", name, err)
		}
		return plain, nil
	}
	return value, nil
}

// fail transitions the source to failed with the error detail. Cancellation
// is not a failure: shutdown leaves the status untouched so another worker
// can resume.
func (s *Service) fail(sourceID uint, logger *zap.Logger, cause error) {
	if s.ctx.Err() != nil {
		logger.Info("ingestion interrupted by shutdown")
		return
	}
	if err := s.store.UpdateStatus(sourceID, db.StatusFailed, cause.Error()); err != nil {
		logger.Error("failed to record failure status", zap.Error(err))
		return
	}
	logger.Warn("source ingestion failed", zap.Error(cause))
}
