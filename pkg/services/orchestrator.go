package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/adapters/source"
	"github.com/tracelight-ai/codegraph-engine/pkg/analysis"
	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/artifacts"
	"github.com/tracelight-ai/codegraph-engine/pkg/config"
	"github.com/tracelight-ai/codegraph-engine/pkg/graph"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
	"github.com/tracelight-ai/codegraph-engine/pkg/repositories"
	"github.com/tracelight-ai/codegraph-engine/pkg/services/workqueue"
)

// Orchestrator drives analysis runs: it fans a tenant trigger out into one
// pipeline per source and tracks per-source outcomes on a job.
type Orchestrator interface {
	// TriggerTenant starts an analysis run for the tenant. When sourceID is
	// non-empty only that source is analyzed. Returns
	// apperrors.ErrTenantNotEnabled when the tenant is not configured for
	// static analysis, apperrors.ErrNotFound when sourceID does not resolve
	// to a source owned by the tenant.
	TriggerTenant(ctx context.Context, tenant, sourceID string) (*models.AnalysisJob, error)
}

type orchestrator struct {
	cfg       *config.Config
	sources   repositories.SourceRepository
	adapters  source.AdapterFactory
	builder   analysis.Builder
	executor  analysis.Executor
	publisher graph.Publisher
	store     artifacts.Store
	jobs      JobTracker
	queue     *workqueue.Queue
	logger    *zap.Logger

	// sourceLocks serializes pipelines per source_id so two concurrent
	// triggers never build or publish the same source at the same time.
	// Entries are created lazily and never removed.
	lockMu      sync.Mutex
	sourceLocks map[string]*sync.Mutex
}

// NewOrchestrator creates an orchestrator. Pipelines run on the given work
// queue, so build concurrency is whatever the queue's strategy allows.
func NewOrchestrator(
	cfg *config.Config,
	sources repositories.SourceRepository,
	adapters source.AdapterFactory,
	builder analysis.Builder,
	executor analysis.Executor,
	publisher graph.Publisher,
	store artifacts.Store,
	jobs JobTracker,
	queue *workqueue.Queue,
	logger *zap.Logger,
) Orchestrator {
	return &orchestrator{
		cfg:         cfg,
		sources:     sources,
		adapters:    adapters,
		builder:     builder,
		executor:    executor,
		publisher:   publisher,
		store:       store,
		jobs:        jobs,
		queue:       queue,
		logger:      logger,
		sourceLocks: make(map[string]*sync.Mutex),
	}
}

func (o *orchestrator) TriggerTenant(ctx context.Context, tenant, sourceID string) (*models.AnalysisJob, error) {
	if !o.cfg.TenantEnabled(tenant) {
		return nil, apperrors.ErrTenantNotEnabled
	}

	var targets []*models.CodeSource
	if sourceID != "" {
		src, err := o.sources.Get(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		if src.Tenant != tenant {
			return nil, apperrors.ErrNotFound
		}
		targets = []*models.CodeSource{src}
	} else {
		listed, err := o.sources.List(ctx, repositories.SourceFilter{Tenant: tenant})
		if err != nil {
			return nil, fmt.Errorf("failed to list sources for tenant %s: %w", tenant, err)
		}
		targets = listed
	}

	sourceIDs := make([]string, len(targets))
	for i, src := range targets {
		sourceIDs[i] = src.SourceID
	}
	job := o.jobs.CreateJob(tenant, sourceIDs)

	if len(targets) == 0 {
		o.jobs.CompleteJob(job.JobID)
		return o.jobs.GetJob(ctx, job.JobID)
	}

	// The last pipeline to finish marks the job terminal.
	var remaining atomic.Int32
	remaining.Store(int32(len(targets)))

	for _, src := range targets {
		src := src
		task := &analysisTask{
			BaseTask: workqueue.NewBaseTask("analyze:"+src.SourceID, true),
			run: func(taskCtx context.Context) error {
				defer func() {
					if remaining.Add(-1) == 0 {
						o.jobs.CompleteJob(job.JobID)
					}
				}()
				return o.runSource(taskCtx, job.JobID, src)
			},
		}
		o.queue.Enqueue(task)
	}

	o.logger.Info("analysis job started",
		zap.String("tenant", tenant),
		zap.String("job_id", job.JobID),
		zap.Int("sources", len(targets)))
	return job, nil
}

// runSource executes the full pipeline for one source. Failures are reported
// on the job; the returned error only marks the queue task failed.
func (o *orchestrator) runSource(ctx context.Context, jobID string, src *models.CodeSource) error {
	started := time.Now()
	outcome := models.SourceOutcome{
		SourceID:  src.SourceID,
		Status:    models.OutcomeRunning,
		Stage:     models.StagePending,
		StartedAt: &started,
	}
	report := func() { o.jobs.UpdateSource(jobID, outcome) }

	fail := func(stage models.Stage, err error) error {
		if ctx.Err() != nil {
			stage = models.StageCancelled
		}
		now := time.Now()
		outcome.Status = models.OutcomeFailed
		outcome.Stage = stage
		outcome.Reason = err.Error()
		outcome.CompletedAt = &now
		report()
		o.logger.Warn("source pipeline failed",
			zap.String("source_id", src.SourceID),
			zap.String("stage", string(stage)),
			zap.Error(err))
		return err
	}

	skip := func(reason string) {
		now := time.Now()
		outcome.Status = models.OutcomeSkipped
		outcome.Reason = reason
		outcome.CompletedAt = &now
		report()
	}

	if !src.Enabled {
		skip("source disabled")
		return nil
	}

	outcome.Stage = models.StageResolve
	report()

	adapter, err := o.adapters.ForSource(src)
	if err != nil {
		return fail(models.StageResolve, err)
	}
	revision, err := adapter.CurrentRevision(ctx, src)
	if err != nil {
		return fail(models.StageResolve, err)
	}
	outcome.Revision = revision

	if revision == src.LastAnalyzedRevision && o.artifactsPresent(ctx, src, revision) {
		skip("revision unchanged")
		return nil
	}

	// Serialize building through publishing per source so concurrent
	// triggers never race on the same artifact or subgraph.
	lock := o.sourceLock(src.SourceID)
	lock.Lock()
	defer lock.Unlock()

	outcome.Stage = models.StageBuild
	report()

	builds, err := o.builder.Build(ctx, src, src.Languages, revision)
	if err != nil {
		return fail(models.StageBuild, err)
	}

	outcome.Stage = models.StageExtract
	report()

	var triples []models.RelationTriple
	for i, build := range builds {
		language := build.Ref.Language
		extracted, err := o.executor.Extract(ctx, build.DBDir, language)
		build.Cleanup()
		if err != nil {
			for _, rest := range builds[i+1:] {
				rest.Cleanup()
			}
			return fail(models.StageExtract, err)
		}
		triples = append(triples, extracted.Triples...)
		for _, qf := range extracted.Failures {
			outcome.QueryFailures = append(outcome.QueryFailures,
				fmt.Sprintf("%s/%s: %v", language, qf.Relation, qf.Err))
		}
	}

	outcome.Stage = models.StagePublish
	report()

	published, err := o.publisher.Publish(ctx, src.Tenant, src.SourceID, triples)
	if err != nil {
		return fail(models.StagePublish, err)
	}
	outcome.NodesPublished = published.NodesPublished
	outcome.EdgesPublished = published.EdgesPublished

	outcome.Stage = models.StageRegistry
	report()

	if err := o.sources.UpdateRevision(ctx, src.SourceID, revision, time.Now()); err != nil {
		return fail(models.StageRegistry, err)
	}

	now := time.Now()
	outcome.Status = models.OutcomeDone
	outcome.Stage = models.StageDone
	outcome.CompletedAt = &now
	report()

	o.logger.Info("source analyzed",
		zap.String("source_id", src.SourceID),
		zap.String("revision", revision),
		zap.Int("nodes", published.NodesPublished),
		zap.Int("edges", published.EdgesPublished),
		zap.Int("query_failures", len(outcome.QueryFailures)))
	return nil
}

// artifactsPresent reports whether a stored archive exists for every language
// the source analyzes at the given revision. Store errors count as absent.
func (o *orchestrator) artifactsPresent(ctx context.Context, src *models.CodeSource, revision string) bool {
	for _, language := range src.Languages {
		ref := artifacts.Ref{
			Tenant:   src.Tenant,
			SourceID: src.SourceID,
			Language: language,
			Revision: revision,
		}
		exists, err := o.store.Exists(ctx, ref)
		if err != nil || !exists {
			return false
		}
	}
	return len(src.Languages) > 0
}

func (o *orchestrator) sourceLock(sourceID string) *sync.Mutex {
	o.lockMu.Lock()
	defer o.lockMu.Unlock()
	lock, ok := o.sourceLocks[sourceID]
	if !ok {
		lock = &sync.Mutex{}
		o.sourceLocks[sourceID] = lock
	}
	return lock
}

// analysisTask adapts one source pipeline onto the work queue.
type analysisTask struct {
	workqueue.BaseTask
	run func(ctx context.Context) error
}

func (t *analysisTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	return t.run(ctx)
}

var _ Orchestrator = (*orchestrator)(nil)
var _ workqueue.Task = (*analysisTask)(nil)
