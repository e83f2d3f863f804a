package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sourceadapters "github.com/tracelight-ai/codegraph-engine/pkg/adapters/source"
	"github.com/tracelight-ai/codegraph-engine/pkg/analysis"
	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/artifacts"
	"github.com/tracelight-ai/codegraph-engine/pkg/config"
	"github.com/tracelight-ai/codegraph-engine/pkg/graph"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
	"github.com/tracelight-ai/codegraph-engine/pkg/repositories"
	"github.com/tracelight-ai/codegraph-engine/pkg/services/workqueue"
)

type fakeSourceRepo struct {
	mu        sync.Mutex
	sources   map[string]*models.CodeSource
	revisions map[string]string
}

func newFakeSourceRepo(sources ...*models.CodeSource) *fakeSourceRepo {
	repo := &fakeSourceRepo{
		sources:   make(map[string]*models.CodeSource),
		revisions: make(map[string]string),
	}
	for _, src := range sources {
		repo.sources[src.SourceID] = src
	}
	return repo
}

func (r *fakeSourceRepo) Register(_ context.Context, src *models.CodeSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if src.SourceID == "" {
		src.SourceID = models.DeriveSourceID(src.Tenant, src.SourceType, src.Path)
	}
	r.sources[src.SourceID] = src
	return nil
}

func (r *fakeSourceRepo) Get(_ context.Context, sourceID string) (*models.CodeSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[sourceID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *src
	return &copied, nil
}

func (r *fakeSourceRepo) List(_ context.Context, filter repositories.SourceFilter) ([]*models.CodeSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CodeSource
	for _, src := range r.sources {
		if filter.Tenant != "" && src.Tenant != filter.Tenant {
			continue
		}
		copied := *src
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeSourceRepo) UpdateRevision(_ context.Context, sourceID, revision string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[sourceID]; !ok {
		return apperrors.ErrNotFound
	}
	r.revisions[sourceID] = revision
	return nil
}

func (r *fakeSourceRepo) SetEnabled(_ context.Context, sourceID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[sourceID]
	if !ok {
		return apperrors.ErrNotFound
	}
	src.Enabled = enabled
	return nil
}

func (r *fakeSourceRepo) Delete(_ context.Context, sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, sourceID)
	return nil
}

func (r *fakeSourceRepo) recordedRevision(sourceID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revisions[sourceID]
}

type fakeRevisionAdapter struct {
	revision string
	err      error
}

func (a *fakeRevisionAdapter) CurrentRevision(context.Context, *models.CodeSource) (string, error) {
	return a.revision, a.err
}

func (a *fakeRevisionAdapter) Materialize(context.Context, *models.CodeSource) (string, string, func(), error) {
	return "/tmp/checkout", a.revision, func() {}, a.err
}

type fakeOrchAdapterFactory struct {
	adapter sourceadapters.Adapter
}

func (f *fakeOrchAdapterFactory) ForSource(*models.CodeSource) (sourceadapters.Adapter, error) {
	return f.adapter, nil
}

type fakeBuilder struct {
	mu     sync.Mutex
	calls  []string
	errFor map[string]error
}

func (b *fakeBuilder) Build(_ context.Context, src *models.CodeSource, languages []string, revision string) ([]*analysis.BuildResult, error) {
	b.mu.Lock()
	b.calls = append(b.calls, src.SourceID)
	b.mu.Unlock()
	if err := b.errFor[src.SourceID]; err != nil {
		return nil, err
	}
	results := make([]*analysis.BuildResult, 0, len(languages))
	for _, language := range languages {
		results = append(results, &analysis.BuildResult{
			Ref: artifacts.Ref{
				Tenant:   src.Tenant,
				SourceID: src.SourceID,
				Language: language,
				Revision: revision,
			},
			DBDir:   "/tmp/db",
			Cleanup: func() {},
		})
	}
	return results, nil
}

func (b *fakeBuilder) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type fakeExecutor struct {
	result *analysis.ExtractResult
}

func (e *fakeExecutor) Extract(context.Context, string, string) (*analysis.ExtractResult, error) {
	return e.result, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]models.RelationTriple
	errFor    map[string]error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		published: make(map[string][]models.RelationTriple),
		errFor:    make(map[string]error),
	}
}

func (p *fakePublisher) Publish(_ context.Context, tenant, sourceID string, triples []models.RelationTriple) (*graph.PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errFor[sourceID]; err != nil {
		return nil, err
	}
	p.published[sourceID] = triples
	return &graph.PublishResult{NodesPublished: len(triples) * 2, EdgesPublished: len(triples)}, nil
}

func (p *fakePublisher) publishedTriples(sourceID string) ([]models.RelationTriple, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	triples, ok := p.published[sourceID]
	return triples, ok
}

type fakeArtifactStore struct {
	mu       sync.Mutex
	existing map[string]bool
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{existing: make(map[string]bool)}
}

func (s *fakeArtifactStore) Put(_ context.Context, ref artifacts.Ref, _ io.Reader, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existing[ref.Key()] = true
	return nil
}

func (s *fakeArtifactStore) Get(context.Context, artifacts.Ref) (io.ReadCloser, error) {
	return nil, apperrors.ErrNotFound
}

func (s *fakeArtifactStore) Exists(_ context.Context, ref artifacts.Ref) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing[ref.Key()], nil
}

func (s *fakeArtifactStore) List(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (s *fakeArtifactStore) Delete(context.Context, string, string) error {
	return nil
}

type orchFixture struct {
	repo      *fakeSourceRepo
	builder   *fakeBuilder
	publisher *fakePublisher
	store     *fakeArtifactStore
	tracker   JobTracker
	queue     *workqueue.Queue
	orch      Orchestrator
}

func newOrchFixture(t *testing.T, revision string, extract *analysis.ExtractResult, sources ...*models.CodeSource) *orchFixture {
	t.Helper()

	cfg := &config.Config{
		AnalysisTenants: map[string][]string{"acme": nil},
	}
	repo := newFakeSourceRepo(sources...)
	builder := &fakeBuilder{errFor: make(map[string]error)}
	publisher := newFakePublisher()
	store := newFakeArtifactStore()
	tracker := NewJobTracker(nil, zap.NewNop())
	queue := workqueue.New(zap.NewNop())

	if extract == nil {
		extract = &analysis.ExtractResult{
			Triples: []models.RelationTriple{callTriple("main", "helper")},
		}
	}

	orch := NewOrchestrator(
		cfg, repo,
		&fakeOrchAdapterFactory{adapter: &fakeRevisionAdapter{revision: revision}},
		builder, &fakeExecutor{result: extract}, publisher, store,
		tracker, queue, zap.NewNop(),
	)
	return &orchFixture{
		repo:      repo,
		builder:   builder,
		publisher: publisher,
		store:     store,
		tracker:   tracker,
		queue:     queue,
		orch:      orch,
	}
}

func callTriple(subject, object string) models.RelationTriple {
	return models.RelationTriple{
		Subject:  models.NodeRef{Kind: "Function", QualifiedName: subject, FilePath: "app.py"},
		Relation: "CALLS",
		Object:   models.NodeRef{Kind: "Function", QualifiedName: object, FilePath: "app.py"},
	}
}

func testOrchSource(id string, enabled bool) *models.CodeSource {
	return &models.CodeSource{
		SourceID:   id,
		Tenant:     "acme",
		SourceType: models.SourceTypeLocalFilesystem,
		Path:       "/srv/" + id,
		Name:       id,
		Languages:  []string{"python"},
		Enabled:    enabled,
	}
}

// await drains the queue. Individual task errors are expected in failure
// scenarios and recorded on the job; only a stalled queue fails the test.
func (f *orchFixture) await(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = f.queue.Wait(ctx)
	require.NoError(t, ctx.Err(), "queue did not drain in time")
}

func (f *orchFixture) sourceOutcome(t *testing.T, jobID, sourceID string) models.SourceOutcome {
	t.Helper()
	job, err := f.tracker.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	for _, outcome := range job.Sources {
		if outcome.SourceID == sourceID {
			return outcome
		}
	}
	t.Fatalf("no outcome for source %s", sourceID)
	return models.SourceOutcome{}
}

func TestOrchestrator_RejectsUnknownTenant(t *testing.T) {
	f := newOrchFixture(t, "rev1", nil)

	_, err := f.orch.TriggerTenant(context.Background(), "unknown", "")
	assert.ErrorIs(t, err, apperrors.ErrTenantNotEnabled)
}

func TestOrchestrator_SuccessfulPipeline(t *testing.T) {
	src := testOrchSource("src-a", true)
	f := newOrchFixture(t, "rev1", nil, src)

	job, err := f.orch.TriggerTenant(context.Background(), "acme", "")
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, job.Status)
	f.await(t)

	outcome := f.sourceOutcome(t, job.JobID, "src-a")
	assert.Equal(t, models.OutcomeDone, outcome.Status)
	assert.Equal(t, models.StageDone, outcome.Stage)
	assert.Equal(t, "rev1", outcome.Revision)
	assert.Equal(t, 2, outcome.NodesPublished)
	assert.Equal(t, 1, outcome.EdgesPublished)

	assert.Equal(t, "rev1", f.repo.recordedRevision("src-a"))

	final, err := f.tracker.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, final.Status)
}

func TestOrchestrator_SkipsDisabledSource(t *testing.T) {
	src := testOrchSource("src-a", false)
	f := newOrchFixture(t, "rev1", nil, src)

	job, err := f.orch.TriggerTenant(context.Background(), "acme", "")
	require.NoError(t, err)
	f.await(t)

	outcome := f.sourceOutcome(t, job.JobID, "src-a")
	assert.Equal(t, models.OutcomeSkipped, outcome.Status)
	assert.Equal(t, "source disabled", outcome.Reason)
	assert.Zero(t, f.builder.callCount())
}

func TestOrchestrator_SkipsUnchangedRevisionWithArtifact(t *testing.T) {
	src := testOrchSource("src-a", true)
	src.LastAnalyzedRevision = "rev1"
	f := newOrchFixture(t, "rev1", nil, src)
	f.store.existing[artifacts.Ref{
		Tenant: "acme", SourceID: "src-a", Language: "python", Revision: "rev1",
	}.Key()] = true

	job, err := f.orch.TriggerTenant(context.Background(), "acme", "")
	require.NoError(t, err)
	f.await(t)

	outcome := f.sourceOutcome(t, job.JobID, "src-a")
	assert.Equal(t, models.OutcomeSkipped, outcome.Status)
	assert.Equal(t, "revision unchanged", outcome.Reason)
	assert.Zero(t, f.builder.callCount())
}

func TestOrchestrator_UnchangedRevisionWithoutArtifactRebuilds(t *testing.T) {
	src := testOrchSource("src-a", true)
	src.LastAnalyzedRevision = "rev1"
	f := newOrchFixture(t, "rev1", nil, src)

	job, err := f.orch.TriggerTenant(context.Background(), "acme", "")
	require.NoError(t, err)
	f.await(t)

	outcome := f.sourceOutcome(t, job.JobID, "src-a")
	assert.Equal(t, models.OutcomeDone, outcome.Status)
	assert.Equal(t, 1, f.builder.callCount())
}

func TestOrchestrator_BuildFailureIsIsolated(t *testing.T) {
	broken := testOrchSource("src-broken", true)
	healthy := testOrchSource("src-healthy", true)
	f := newOrchFixture(t, "rev1", nil, broken, healthy)
	f.builder.errFor["src-broken"] = &analysis.BuildError{
		Kind:     analysis.BuildErrorCrash,
		SourceID: "src-broken",
		Language: "python",
		Detail:   "compiler exploded",
	}

	job, err := f.orch.TriggerTenant(context.Background(), "acme", "")
	require.NoError(t, err)
	f.await(t)
	assert.True(t, f.queue.HasFailures(), "failed source surfaces as a failed task")

	brokenOutcome := f.sourceOutcome(t, job.JobID, "src-broken")
	assert.Equal(t, models.OutcomeFailed, brokenOutcome.Status)
	assert.Equal(t, models.StageBuild, brokenOutcome.Stage)
	assert.Contains(t, brokenOutcome.Reason, "compiler exploded")
	assert.Empty(t, f.repo.recordedRevision("src-broken"))

	healthyOutcome := f.sourceOutcome(t, job.JobID, "src-healthy")
	assert.Equal(t, models.OutcomeDone, healthyOutcome.Status)
	assert.Equal(t, "rev1", f.repo.recordedRevision("src-healthy"))
	_, published := f.publisher.publishedTriples("src-healthy")
	assert.True(t, published)

	final, err := f.tracker.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, final.Status)
}

func TestOrchestrator_PartialExtractionStillPublishes(t *testing.T) {
	src := testOrchSource("src-a", true)
	f := newOrchFixture(t, "rev1", &analysis.ExtractResult{
		Triples: []models.RelationTriple{callTriple("main", "helper")},
		Failures: []analysis.QueryError{
			{Query: "imports.ql", Relation: "IMPORTS", Err: errors.New("query timed out")},
		},
	}, src)

	job, err := f.orch.TriggerTenant(context.Background(), "acme", "")
	require.NoError(t, err)
	f.await(t)

	outcome := f.sourceOutcome(t, job.JobID, "src-a")
	assert.Equal(t, models.OutcomeDone, outcome.Status)
	require.Len(t, outcome.QueryFailures, 1)
	assert.Contains(t, outcome.QueryFailures[0], "IMPORTS")

	triples, ok := f.publisher.publishedTriples("src-a")
	require.True(t, ok)
	assert.Len(t, triples, 1)
	assert.Equal(t, "rev1", f.repo.recordedRevision("src-a"))
}

func TestOrchestrator_PublishFailureDoesNotAdvanceRevision(t *testing.T) {
	src := testOrchSource("src-a", true)
	f := newOrchFixture(t, "rev1", nil, src)
	f.publisher.errFor["src-a"] = &graph.PublishError{
		Tenant: "acme", SourceID: "src-a", Err: errors.New("neo4j unreachable"),
	}

	job, err := f.orch.TriggerTenant(context.Background(), "acme", "")
	require.NoError(t, err)
	f.await(t)

	outcome := f.sourceOutcome(t, job.JobID, "src-a")
	assert.Equal(t, models.OutcomeFailed, outcome.Status)
	assert.Equal(t, models.StagePublish, outcome.Stage)
	assert.Empty(t, f.repo.recordedRevision("src-a"))
}

func TestOrchestrator_SingleSourceTrigger(t *testing.T) {
	a := testOrchSource("src-a", true)
	b := testOrchSource("src-b", true)
	f := newOrchFixture(t, "rev1", nil, a, b)

	job, err := f.orch.TriggerTenant(context.Background(), "acme", "src-b")
	require.NoError(t, err)
	f.await(t)

	final, err := f.tracker.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	require.Len(t, final.Sources, 1)
	assert.Equal(t, "src-b", final.Sources[0].SourceID)
	assert.Empty(t, f.repo.recordedRevision("src-a"))
}

func TestOrchestrator_SingleSourceTrigger_WrongTenant(t *testing.T) {
	src := testOrchSource("src-a", true)
	src.Tenant = "other"
	f := newOrchFixture(t, "rev1", nil, src)

	_, err := f.orch.TriggerTenant(context.Background(), "acme", "src-a")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOrchestrator_EmptyTenantCompletesImmediately(t *testing.T) {
	f := newOrchFixture(t, "rev1", nil)

	job, err := f.orch.TriggerTenant(context.Background(), "acme", "")
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, job.Status)
	assert.Empty(t, job.Sources)
}
