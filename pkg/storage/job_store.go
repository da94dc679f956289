package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/z-wentao/tubenotes/pkg/models"
)

// JobStore keeps jobs in memory.
type JobStore struct {
	jobs map[string]*models.AnalysisJob
	mu   sync.RWMutex
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*models.AnalysisJob),
	}
}

func (js *JobStore) Save(_ context.Context, job *models.AnalysisJob) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	cp := *job
	js.jobs[job.JobID] = &cp
	return nil
}

func (js *JobStore) Get(_ context.Context, jobID string) (*models.AnalysisJob, error) {
	js.mu.RLock()
	defer js.mu.RUnlock()

	job, ok := js.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	cp := *job
	return &cp, nil
}

func (js *JobStore) Update(_ context.Context, jobID string, fn func(*models.AnalysisJob)) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, ok := js.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	fn(job)
	return nil
}

func (js *JobStore) List(_ context.Context) ([]*models.AnalysisJob, error) {
	js.mu.RLock()
	defer js.mu.RUnlock()

	jobs := make([]*models.AnalysisJob, 0, len(js.jobs))
	for _, job := range js.jobs {
		cp := *job
		jobs = append(jobs, &cp)
	}
	sortNewestFirst(jobs)
	return jobs, nil
}

func (js *JobStore) Delete(_ context.Context, jobID string) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if _, ok := js.jobs[jobID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	delete(js.jobs, jobID)
	return nil
}

func (js *JobStore) Close() error {
	return nil
}

func sortNewestFirst(jobs []*models.AnalysisJob) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
