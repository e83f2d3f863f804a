package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
)

// jobTTL bounds how long finished job records are kept in the redis mirror.
const jobTTL = 24 * time.Hour

// JobTracker records analysis jobs and their per-source outcomes. The source
// of truth is an in-process map; when a redis client is present, snapshots
// are mirrored there so status queries work behind a load balancer.
type JobTracker interface {
	// CreateJob registers a new running job for the tenant and returns it.
	CreateJob(tenant string, sourceIDs []string) *models.AnalysisJob

	// UpdateSource merges a per-source outcome into the job.
	UpdateSource(jobID string, outcome models.SourceOutcome)

	// CompleteJob marks the job terminal: failed if any source failed,
	// done otherwise.
	CompleteJob(jobID string)

	// GetJob returns a copy of the job. Falls back to the redis mirror for
	// jobs created by another instance.
	GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error)
}

type jobTracker struct {
	mu     sync.RWMutex
	jobs   map[string]*models.AnalysisJob
	rdb    *redis.Client
	logger *zap.Logger
}

// NewJobTracker creates a job tracker. rdb may be nil; tracking then stays
// in memory only.
func NewJobTracker(rdb *redis.Client, logger *zap.Logger) JobTracker {
	return &jobTracker{
		jobs:   make(map[string]*models.AnalysisJob),
		rdb:    rdb,
		logger: logger,
	}
}

func (t *jobTracker) CreateJob(tenant string, sourceIDs []string) *models.AnalysisJob {
	now := time.Now()
	job := &models.AnalysisJob{
		JobID:     uuid.New().String(),
		Tenant:    tenant,
		Status:    models.JobRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, sourceID := range sourceIDs {
		job.Sources = append(job.Sources, models.SourceOutcome{
			SourceID: sourceID,
			Status:   models.OutcomeRunning,
			Stage:    models.StagePending,
		})
	}

	t.mu.Lock()
	t.jobs[job.JobID] = job
	snapshot := cloneJob(job)
	t.mu.Unlock()

	t.mirror(snapshot)
	return snapshot
}

func (t *jobTracker) UpdateSource(jobID string, outcome models.SourceOutcome) {
	t.mu.Lock()
	job, ok := t.jobs[jobID]
	if !ok {
		t.mu.Unlock()
		t.logger.Warn("update for unknown job", zap.String("job_id", jobID))
		return
	}

	found := false
	for i := range job.Sources {
		if job.Sources[i].SourceID == outcome.SourceID {
			job.Sources[i] = outcome
			found = true
			break
		}
	}
	if !found {
		job.Sources = append(job.Sources, outcome)
	}
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	t.mu.Unlock()

	t.mirror(snapshot)
}

func (t *jobTracker) CompleteJob(jobID string) {
	t.mu.Lock()
	job, ok := t.jobs[jobID]
	if !ok {
		t.mu.Unlock()
		return
	}

	job.Status = models.JobDone
	for _, src := range job.Sources {
		if src.Status == models.OutcomeFailed {
			job.Status = models.JobFailed
			break
		}
	}
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	t.mu.Unlock()

	t.mirror(snapshot)
}

func (t *jobTracker) GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	t.mu.RLock()
	job, ok := t.jobs[jobID]
	if ok {
		snapshot := cloneJob(job)
		t.mu.RUnlock()
		return snapshot, nil
	}
	t.mu.RUnlock()

	if t.rdb == nil {
		return nil, apperrors.ErrNotFound
	}

	data, err := t.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}

	var mirrored models.AnalysisJob
	if err := json.Unmarshal(data, &mirrored); err != nil {
		return nil, err
	}
	return &mirrored, nil
}

// mirror writes the job snapshot to redis, best effort.
func (t *jobTracker) mirror(job *models.AnalysisJob) {
	if t.rdb == nil {
		return
	}

	data, err := json.Marshal(job)
	if err != nil {
		t.logger.Warn("failed to marshal job for mirror", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := t.rdb.Set(ctx, jobKey(job.JobID), data, jobTTL).Err(); err != nil {
		t.logger.Warn("failed to mirror job status",
			zap.String("job_id", job.JobID),
			zap.Error(err))
	}
}

func jobKey(jobID string) string {
	return "analysis:job:" + jobID
}

func cloneJob(job *models.AnalysisJob) *models.AnalysisJob {
	copied := *job
	copied.Sources = make([]models.SourceOutcome, len(job.Sources))
	copy(copied.Sources, job.Sources)
	return &copied
}

var _ JobTracker = (*jobTracker)(nil)
