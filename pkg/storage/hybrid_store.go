package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/z-wentao/tubenotes/pkg/models"
)

const (
	syncBatchSize = 50
	syncInterval  = 5 * time.Second
	syncQueueSize = 100
)

// HybridJobStore serves reads from a fast cache store and writes finished
// jobs through to a durable store in the background.
type HybridJobStore struct {
	cache  Store
	db     Store
	logger *slog.Logger

	syncQueue chan *models.AnalysisJob
	stopCh    chan struct{}

	// durableMu orders durable writes against Delete so a queued sync
	// cannot resurrect a deleted job.
	durableMu sync.Mutex
	deleted   map[string]struct{}

	done      sync.WaitGroup
	closeOnce sync.Once
}

func NewHybridJobStore(cache, db Store, logger *slog.Logger) *HybridJobStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HybridJobStore{
		cache:     cache,
		db:        db,
		logger:    logger.With(slog.String("component", "hybrid-store")),
		syncQueue: make(chan *models.AnalysisJob, syncQueueSize),
		stopCh:    make(chan struct{}),
		deleted:   make(map[string]struct{}),
	}
	s.done.Add(1)
	go s.syncWorker()
	return s
}

// Save writes the cache immediately. Terminal jobs are also queued for the
// durable store.
func (s *HybridJobStore) Save(ctx context.Context, job *models.AnalysisJob) error {
	s.durableMu.Lock()
	delete(s.deleted, job.JobID)
	s.durableMu.Unlock()

	if err := s.cache.Save(ctx, job); err != nil {
		s.logger.Warn("cache write failed, writing through", slog.String("job_id", job.JobID), slog.Any("error", err))
		return s.db.Save(ctx, job)
	}
	if job.Done() {
		s.enqueueSync(ctx, job)
	}
	return nil
}

// Get tries the cache first and refills it from the durable store on a miss.
func (s *HybridJobStore) Get(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	job, err := s.cache.Get(ctx, jobID)
	if err == nil {
		return job, nil
	}

	job, err = s.db.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Save(ctx, job); err != nil {
		s.logger.Warn("cache refill failed", slog.String("job_id", jobID), slog.Any("error", err))
	}
	return job, nil
}

func (s *HybridJobStore) Update(ctx context.Context, jobID string, fn func(*models.AnalysisJob)) error {
	var updated *models.AnalysisJob
	err := s.cache.Update(ctx, jobID, func(j *models.AnalysisJob) {
		fn(j)
		cp := *j
		updated = &cp
	})
	if err != nil {
		s.logger.Warn("cache update failed, updating durable store", slog.String("job_id", jobID), slog.Any("error", err))
		return s.db.Update(ctx, jobID, fn)
	}
	if updated.Done() {
		s.enqueueSync(ctx, updated)
	}
	return nil
}

// List serves recent jobs from the cache, falling back to the durable store.
func (s *HybridJobStore) List(ctx context.Context) ([]*models.AnalysisJob, error) {
	jobs, err := s.cache.List(ctx)
	if err != nil || len(jobs) == 0 {
		if err != nil {
			s.logger.Warn("cache list failed, using durable store", slog.Any("error", err))
		}
		return s.db.List(ctx)
	}
	return jobs, nil
}

// Delete removes the job from both stores and drops any pending sync of it.
func (s *HybridJobStore) Delete(ctx context.Context, jobID string) error {
	cacheErr := s.cache.Delete(ctx, jobID)

	s.durableMu.Lock()
	s.deleted[jobID] = struct{}{}
	dbErr := s.db.Delete(ctx, jobID)
	s.durableMu.Unlock()

	if cacheErr == nil || dbErr == nil {
		return nil
	}
	return dbErr
}

// Close flushes pending writes and closes both stores.
func (s *HybridJobStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.done.Wait()
	})
	cacheErr := s.cache.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return cacheErr
}

func (s *HybridJobStore) enqueueSync(ctx context.Context, job *models.AnalysisJob) {
	select {
	case s.syncQueue <- job:
	default:
		s.logger.Warn("sync queue full, writing synchronously", slog.String("job_id", job.JobID))
		if _, err := s.saveDurable(ctx, job); err != nil {
			s.logger.Error("durable write failed", slog.String("job_id", job.JobID), slog.Any("error", err))
		}
	}
}

func (s *HybridJobStore) syncWorker() {
	defer s.done.Done()

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	batch := make([]*models.AnalysisJob, 0, syncBatchSize)
	flush := func() {
		s.batchSave(batch)
		batch = batch[:0]
	}

	for {
		select {
		case job := <-s.syncQueue:
			batch = append(batch, job)
			if len(batch) >= syncBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stopCh:
			for {
				select {
				case job := <-s.syncQueue:
					batch = append(batch, job)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *HybridJobStore) batchSave(jobs []*models.AnalysisJob) {
	if len(jobs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	saved := 0
	for _, job := range jobs {
		ok, err := s.saveDurable(ctx, job)
		if err != nil {
			s.logger.Error("durable write failed", slog.String("job_id", job.JobID), slog.Any("error", err))
			continue
		}
		if ok {
			saved++
		}
	}
	s.logger.Info("synced jobs to durable store", slog.Int("saved", saved), slog.Int("total", len(jobs)))
}

// saveDurable writes job unless it was deleted after being queued.
func (s *HybridJobStore) saveDurable(ctx context.Context, job *models.AnalysisJob) (bool, error) {
	s.durableMu.Lock()
	defer s.durableMu.Unlock()
	if _, gone := s.deleted[job.JobID]; gone {
		return false, nil
	}
	return true, s.db.Save(ctx, job)
}
