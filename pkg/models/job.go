package models

import "time"

// Stage names the pipeline stage a source analysis is in, or failed at.
type Stage string

const (
	StagePending    Stage = "pending"
	StageResolve    Stage = "resolving_revision"
	StageBuild      Stage = "building"
	StageExtract    Stage = "extracting"
	StagePublish    Stage = "publishing"
	StageRegistry   Stage = "updating_registry"
	StageDone       Stage = "done"
	StageCancelled  Stage = "cancelled"
)

// OutcomeStatus is the terminal-or-running status of one source within a job.
type OutcomeStatus string

const (
	OutcomeRunning OutcomeStatus = "running"
	OutcomeDone    OutcomeStatus = "done"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// SourceOutcome is the per-source result reported by job status queries.
type SourceOutcome struct {
	SourceID string        `json:"source_id"`
	Status   OutcomeStatus `json:"status"`
	Stage    Stage         `json:"stage"`

	// Reason is a human-readable failure or skip reason. Empty on success.
	Reason string `json:"reason,omitempty"`

	// Revision is the resolved revision for this run, once known.
	Revision string `json:"revision,omitempty"`

	// NodesPublished / EdgesPublished are set after a successful publish.
	NodesPublished int `json:"nodes_published,omitempty"`
	EdgesPublished int `json:"edges_published,omitempty"`

	// QueryFailures lists extraction queries that failed without aborting
	// the pipeline (best-effort extraction).
	QueryFailures []string `json:"query_failures,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobStatus is the aggregate status of one analysis job.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// AnalysisJob tracks one triggered analysis run across its sources.
type AnalysisJob struct {
	JobID     string          `json:"job_id"`
	Tenant    string          `json:"tenant"`
	Status    JobStatus       `json:"status"`
	Sources   []SourceOutcome `json:"sources"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
