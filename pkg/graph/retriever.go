package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
)

// ContextFragment is one piece of graph context returned to the caller:
// either a matched node or one of its direct relationships.
type ContextFragment struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	NodeID  string  `json:"node_id,omitempty"`
	Kind    string  `json:"kind,omitempty"`
}

// Retriever answers "what calls what" questions from the published graph.
type Retriever interface {
	// FindRelated matches nodes by name or path within the tenant, then
	// surfaces their one-hop neighborhoods. Returns ErrNoResults when the
	// graph holds nothing matching, and ErrGraphUnavailable when the graph
	// store cannot be queried; the two are never conflated.
	FindRelated(ctx context.Context, tenant, query string, limit int) ([]ContextFragment, error)
}

type graphRetriever struct {
	runner cypherRunner
	logger *zap.Logger
}

// NewRetriever creates a read-only retriever over the store. A nil store
// yields a retriever that always reports graph unavailability.
func NewRetriever(store *Store, logger *zap.Logger) Retriever {
	return &graphRetriever{
		runner: runnerFor(store),
		logger: logger,
	}
}

// maxSeeds bounds how many matched nodes get a neighborhood expansion.
const maxSeeds = 5

func (r *graphRetriever) FindRelated(ctx context.Context, tenant, query string, limit int) ([]ContextFragment, error) {
	if limit <= 0 {
		limit = 10
	}

	seeds, err := r.matchNodes(ctx, tenant, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrGraphUnavailable, err)
	}
	if len(seeds) == 0 {
		return nil, apperrors.ErrNoResults
	}

	fragments := make([]ContextFragment, 0, limit)
	fragments = append(fragments, seeds...)

	for i, seed := range seeds {
		if i >= maxSeeds {
			break
		}
		neighbors, err := r.neighborhood(ctx, tenant, seed)
		if err != nil {
			// A seed match already proves the graph is reachable; a failed
			// expansion degrades the result instead of discarding it.
			r.logger.Warn("neighborhood expansion failed",
				zap.String("tenant", tenant),
				zap.String("node_id", seed.NodeID),
				zap.Error(err))
			continue
		}
		fragments = append(fragments, neighbors...)
	}

	fragments = dedupeFragments(fragments)
	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].Score > fragments[j].Score
	})
	if len(fragments) > limit {
		fragments = fragments[:limit]
	}

	return fragments, nil
}

// matchNodes is phase one: substring match on name and path, tenant-scoped,
// ranked exact > prefix > substring.
func (r *graphRetriever) matchNodes(ctx context.Context, tenant, query string, limit int) ([]ContextFragment, error) {
	cypher := `
		MATCH (n)
		WHERE n.tenant = $tenant
		  AND (toLower(n.qualified_name) CONTAINS toLower($query)
		       OR toLower(n.file_path) CONTAINS toLower($query))
		RETURN n.id AS id, labels(n) AS labels, n.qualified_name AS name,
		       n.file_path AS file_path, n.line_start AS line_start, n.line_end AS line_end
		LIMIT $limit`

	rows, err := r.runner.Read(ctx, cypher, map[string]any{
		"tenant": tenant,
		"query":  query,
		"limit":  limit,
	})
	if err != nil {
		return nil, err
	}

	fragments := make([]ContextFragment, 0, len(rows))
	for _, row := range rows {
		name := stringValue(row["name"])
		filePath := stringValue(row["file_path"])
		kind := firstLabel(row["labels"])

		fragments = append(fragments, ContextFragment{
			Title:   kind + ": " + name,
			Content: formatNodeContent(kind, name, filePath, row),
			Score:   matchScore(query, name, filePath),
			NodeID:  stringValue(row["id"]),
			Kind:    kind,
		})
	}
	return fragments, nil
}

// neighborhood is phase two: one hop of incoming and outgoing edges around
// a matched node.
func (r *graphRetriever) neighborhood(ctx context.Context, tenant string, seed ContextFragment) ([]ContextFragment, error) {
	cypher := `
		MATCH (a {id: $node_id})-[e]->(b)
		WHERE b.tenant = $tenant
		RETURN type(e) AS relation, a.qualified_name AS from, b.qualified_name AS to
		LIMIT 10
		UNION
		MATCH (a)-[e]->(b {id: $node_id})
		WHERE a.tenant = $tenant
		RETURN type(e) AS relation, a.qualified_name AS from, b.qualified_name AS to
		LIMIT 10`

	rows, err := r.runner.Read(ctx, cypher, map[string]any{
		"node_id": seed.NodeID,
		"tenant":  tenant,
	})
	if err != nil {
		return nil, err
	}

	fragments := make([]ContextFragment, 0, len(rows))
	for _, row := range rows {
		relation := stringValue(row["relation"])
		from := stringValue(row["from"])
		to := stringValue(row["to"])

		fragments = append(fragments, ContextFragment{
			Title:   fmt.Sprintf("%s: %s -> %s", relation, from, to),
			Content: fmt.Sprintf("%s %s %s", from, strings.ToLower(relation), to),
			Score:   seed.Score * 0.9,
		})
	}
	return fragments, nil
}

// matchScore ranks exact name matches over prefix matches over plain
// substring hits.
func matchScore(query, name, filePath string) float64 {
	q := strings.ToLower(query)
	n := strings.ToLower(name)
	switch {
	case n == q:
		return 1.0
	case strings.HasPrefix(n, q):
		return 0.8
	case strings.Contains(n, q):
		return 0.6
	case strings.Contains(strings.ToLower(filePath), q):
		return 0.5
	default:
		return 0.4
	}
}

func formatNodeContent(kind, name, filePath string, row map[string]any) string {
	parts := []string{kind + ": " + name}
	if filePath != "" {
		parts = append(parts, "File: "+filePath)
	}
	if start, ok := intValue(row["line_start"]); ok && start > 0 {
		if end, ok := intValue(row["line_end"]); ok && end > 0 {
			parts = append(parts, fmt.Sprintf("Lines: %d-%d", start, end))
		} else {
			parts = append(parts, fmt.Sprintf("Line: %d", start))
		}
	}
	return strings.Join(parts, "\n")
}

func dedupeFragments(fragments []ContextFragment) []ContextFragment {
	seen := make(map[string]bool, len(fragments))
	out := fragments[:0]
	for _, f := range fragments {
		key := f.Title + "|" + f.Content
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

func firstLabel(v any) string {
	labels, ok := v.([]any)
	if !ok || len(labels) == 0 {
		return "Node"
	}
	return stringValue(labels[0])
}

var _ Retriever = (*graphRetriever)(nil)
