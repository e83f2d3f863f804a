package analysis

import (
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
)

// QueryDefinition is one entry in the extraction catalog. Adding a relation
// kind means adding an entry here, not changing the executor.
type QueryDefinition struct {
	Relation  models.RelationKind
	Languages []string
	QueryFile string

	// Node kinds produced by this query's tuples. Tuples are laid out as
	// (subject_name, subject_file, subject_line, object_name[, object_file]).
	SubjectKind models.NodeKind
	ObjectKind  models.NodeKind

	// ObjectHasFile is set when the query emits a fifth column with the
	// object's containing file.
	ObjectHasFile bool
}

// AppliesTo reports whether the query runs for the given language.
func (q QueryDefinition) AppliesTo(language string) bool {
	for _, l := range q.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// DefaultCatalog returns the built-in extraction queries.
func DefaultCatalog() []QueryDefinition {
	return []QueryDefinition{
		{
			Relation:      models.RelationCalls,
			Languages:     []string{"python", "java"},
			QueryFile:     "call_graph.ql",
			SubjectKind:   models.NodeKindFunction,
			ObjectKind:    models.NodeKindFunction,
			ObjectHasFile: true,
		},
		{
			Relation:    models.RelationRunsSubprocess,
			Languages:   []string{"python"},
			QueryFile:   "subprocess_calls.ql",
			SubjectKind: models.NodeKindFunction,
			ObjectKind:  models.NodeKindScript,
		},
		{
			Relation:    models.RelationImports,
			Languages:   []string{"python"},
			QueryFile:   "imports.ql",
			SubjectKind: models.NodeKindFile,
			ObjectKind:  models.NodeKindModule,
		},
	}
}
