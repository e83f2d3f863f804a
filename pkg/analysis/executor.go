package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/jsonutil"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
)

// ExtractResult holds whatever extraction produced. Failures lists queries
// that failed without discarding triples from the ones that succeeded.
type ExtractResult struct {
	Triples  []models.RelationTriple
	Failures []QueryError
}

// PartialFailure reports whether some, but not all, queries failed.
func (r *ExtractResult) PartialFailure() bool {
	return len(r.Failures) > 0 && len(r.Triples) > 0
}

// Executor runs the extraction query catalog against a built database.
type Executor interface {
	// Extract runs every catalog query applicable to language against the
	// database at dbDir. One query's failure does not discard triples
	// produced by others; it returns an error only when the context is
	// cancelled.
	Extract(ctx context.Context, dbDir, language string) (*ExtractResult, error)
}

type queryExecutor struct {
	tool         Toolchain
	catalog      []QueryDefinition
	queriesDir   string
	queryTimeout time.Duration
	logger       *zap.Logger
}

// NewExecutor creates a query executor over the given catalog. Query files
// are resolved relative to queriesDir.
func NewExecutor(tool Toolchain, catalog []QueryDefinition, queriesDir string, queryTimeout time.Duration, logger *zap.Logger) Executor {
	return &queryExecutor{
		tool:         tool,
		catalog:      catalog,
		queriesDir:   queriesDir,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

func (e *queryExecutor) Extract(ctx context.Context, dbDir, language string) (*ExtractResult, error) {
	result := &ExtractResult{}

	for _, def := range e.catalog {
		if !def.AppliesTo(language) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		triples, err := e.runOne(ctx, dbDir, def)
		if err != nil {
			// The caller's deadline aborts the whole extraction; a single
			// query failing does not.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("extraction query failed",
				zap.String("query", def.QueryFile),
				zap.String("relation", string(def.Relation)),
				zap.Error(err))
			result.Failures = append(result.Failures, QueryError{
				Query:    def.QueryFile,
				Relation: string(def.Relation),
				Err:      err,
			})
			continue
		}

		e.logger.Debug("extraction query completed",
			zap.String("query", def.QueryFile),
			zap.Int("triples", len(triples)))
		result.Triples = append(result.Triples, triples...)
	}

	return result, nil
}

func (e *queryExecutor) runOne(ctx context.Context, dbDir string, def QueryDefinition) ([]models.RelationTriple, error) {
	queryCtx := ctx
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	out, err := e.tool.RunQuery(queryCtx, dbDir, filepath.Join(e.queriesDir, def.QueryFile))
	if err != nil {
		return nil, err
	}

	rows, err := decodeTuples(out)
	if err != nil {
		return nil, err
	}

	triples := make([]models.RelationTriple, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		triple, ok := mapTuple(def, row)
		if !ok {
			skipped++
			continue
		}
		triples = append(triples, triple)
	}
	if skipped > 0 {
		e.logger.Warn("skipped malformed result rows",
			zap.String("query", def.QueryFile),
			zap.Int("skipped", skipped))
	}

	return triples, nil
}

// queryOutput matches the tool's JSON result envelope.
type queryOutput struct {
	Select struct {
		Tuples [][]json.RawMessage `json:"tuples"`
	} `json:"#select"`
}

// decodeTuples accepts either the tool's "#select" envelope or a bare array
// of rows.
func decodeTuples(out []byte) ([][]json.RawMessage, error) {
	var envelope queryOutput
	if err := json.Unmarshal(out, &envelope); err == nil && envelope.Select.Tuples != nil {
		return envelope.Select.Tuples, nil
	}

	var bare [][]json.RawMessage
	if err := json.Unmarshal(out, &bare); err == nil {
		return bare, nil
	}

	return nil, fmt.Errorf("unrecognized query result format")
}

// mapTuple converts one result row into a triple. The tool sometimes emits
// numbers where strings are expected, so columns decode tolerantly.
func mapTuple(def QueryDefinition, row []json.RawMessage) (models.RelationTriple, bool) {
	want := 4
	if def.ObjectHasFile {
		want = 5
	}
	if len(row) < want {
		return models.RelationTriple{}, false
	}

	subjectName := jsonutil.FlexibleStringValue(row[0])
	objectName := jsonutil.FlexibleStringValue(row[3])
	if subjectName == "" || objectName == "" {
		return models.RelationTriple{}, false
	}

	subject := models.NodeRef{
		Kind:          def.SubjectKind,
		QualifiedName: subjectName,
		FilePath:      jsonutil.FlexibleStringValue(row[1]),
		LineStart:     jsonutil.FlexibleIntValue(row[2]),
	}
	object := models.NodeRef{
		Kind:          def.ObjectKind,
		QualifiedName: objectName,
	}
	if def.ObjectHasFile {
		object.FilePath = jsonutil.FlexibleStringValue(row[4])
	}

	return models.RelationTriple{
		Subject:  subject,
		Relation: def.Relation,
		Object:   object,
	}, true
}

var _ Executor = (*queryExecutor)(nil)
