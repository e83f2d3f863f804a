package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/models"
	"github.com/tracelight-ai/codegraph-engine/pkg/retry"
)

// PublishError reports a failed graph publish. The source's subgraph may be
// empty or stale afterwards, never duplicated; the next successful run
// repairs it via full rebuild.
type PublishError struct {
	Tenant   string
	SourceID string
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed for tenant %s source %s: %v", e.Tenant, e.SourceID, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// PublishResult reports what one publish call wrote.
type PublishResult struct {
	NodesPublished int
	EdgesPublished int
}

// Publisher replaces one source's subgraph with freshly extracted triples.
type Publisher interface {
	// Publish deletes every node and edge tagged (tenant, source_id), then
	// inserts the given triples, all inside one transaction. Nodes are
	// de-duplicated by (kind, qualified name, file); duplicate edges between
	// the same pair are merged into one edge per relation kind.
	Publish(ctx context.Context, tenant, sourceID string, triples []models.RelationTriple) (*PublishResult, error)
}

type graphPublisher struct {
	runner   cypherRunner
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewPublisher creates a publisher over the store. Transient failures are
// retried with backoff while permanent ones (bad cypher, auth) fail
// immediately; each attempt is a full delete-then-insert, so a retry can
// never double-insert. A nil store yields a publisher whose every publish
// fails with graph unavailability.
func NewPublisher(store *Store, logger *zap.Logger) Publisher {
	return &graphPublisher{
		runner:   runnerFor(store),
		retryCfg: retry.DefaultConfig(),
		logger:   logger,
	}
}

func (p *graphPublisher) Publish(ctx context.Context, tenant, sourceID string, triples []models.RelationTriple) (*PublishResult, error) {
	statements, result := buildPublishStatements(tenant, sourceID, triples)

	err := retry.DoIfRetryable(ctx, p.retryCfg, func() error {
		return p.runner.Write(ctx, statements)
	})
	if err != nil {
		return nil, &PublishError{Tenant: tenant, SourceID: sourceID, Err: err}
	}

	p.logger.Info("published source subgraph",
		zap.String("tenant", tenant),
		zap.String("source_id", sourceID),
		zap.Int("nodes", result.NodesPublished),
		zap.Int("edges", result.EdgesPublished))

	return result, nil
}

// buildPublishStatements renders the full-rebuild sequence: one scoped
// DETACH DELETE, then MERGE per distinct node and per distinct edge.
func buildPublishStatements(tenant, sourceID string, triples []models.RelationTriple) ([]statement, *PublishResult) {
	statements := []statement{{
		cypher: `MATCH (n) WHERE n.tenant = $tenant AND n.source_id = $source_id DETACH DELETE n`,
		params: map[string]any{"tenant": tenant, "source_id": sourceID},
	}}

	seenNodes := make(map[string]bool)
	seenEdges := make(map[string]bool)
	result := &PublishResult{}

	for _, triple := range triples {
		for _, node := range []models.NodeRef{triple.Subject, triple.Object} {
			key := node.Key()
			if seenNodes[key] {
				continue
			}
			seenNodes[key] = true
			statements = append(statements, nodeMergeStatement(tenant, sourceID, node))
			result.NodesPublished++
		}

		edgeKey := triple.Subject.Key() + "|" + string(triple.Relation) + "|" + triple.Object.Key()
		if seenEdges[edgeKey] {
			continue
		}
		seenEdges[edgeKey] = true
		statements = append(statements, edgeMergeStatement(tenant, sourceID, triple))
		result.EdgesPublished++
	}

	return statements, result
}

func nodeMergeStatement(tenant, sourceID string, node models.NodeRef) statement {
	params := map[string]any{
		"id":             node.GraphID(tenant, sourceID),
		"qualified_name": node.QualifiedName,
		"file_path":      node.FilePath,
		"tenant":         tenant,
		"source_id":      sourceID,
	}
	if node.LineStart > 0 {
		params["line_start"] = node.LineStart
	}
	if node.LineEnd > 0 {
		params["line_end"] = node.LineEnd
	}

	// Node kinds are a closed set, so interpolating the label is safe.
	cypher := fmt.Sprintf(`MERGE (n:%s {id: $id}) SET n += $props`, node.Kind)
	return statement{
		cypher: cypher,
		params: map[string]any{"id": params["id"], "props": params},
	}
}

func edgeMergeStatement(tenant, sourceID string, triple models.RelationTriple) statement {
	cypher := fmt.Sprintf(
		`MATCH (a {id: $subject_id}), (b {id: $object_id})
		 MERGE (a)-[r:%s]->(b)
		 SET r.tenant = $tenant, r.source_id = $source_id`,
		triple.Relation)
	return statement{
		cypher: cypher,
		params: map[string]any{
			"subject_id": triple.Subject.GraphID(tenant, sourceID),
			"object_id":  triple.Object.GraphID(tenant, sourceID),
			"tenant":     tenant,
			"source_id":  sourceID,
		},
	}
}

var _ Publisher = (*graphPublisher)(nil)
