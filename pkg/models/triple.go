package models

import "strings"

// NodeKind labels a graph node with the kind of code entity it represents.
type NodeKind string

const (
	NodeKindFunction NodeKind = "Function"
	NodeKindScript   NodeKind = "Script"
	NodeKindFile     NodeKind = "File"
	NodeKindModule   NodeKind = "Module"
)

// RelationKind labels a graph edge. The set is extensible: a new relation
// kind needs a query catalog entry, not executor changes.
type RelationKind string

const (
	RelationCalls         RelationKind = "CALLS"
	RelationRunsSubprocess RelationKind = "RUNS_SUBPROCESS"
	RelationImports       RelationKind = "IMPORTS"
)

// NodeRef is a typed node descriptor inside a relation triple.
type NodeRef struct {
	Kind          NodeKind `json:"kind"`
	QualifiedName string   `json:"qualified_name"`
	FilePath      string   `json:"file_path,omitempty"`
	LineStart     int      `json:"line_start,omitempty"`
	LineEnd       int      `json:"line_end,omitempty"`
}

// Key returns the node's identity within one publish call: nodes with equal
// keys are the same node and are de-duplicated before insertion.
func (n NodeRef) Key() string {
	return string(n.Kind) + "|" + n.QualifiedName + "|" + n.FilePath
}

// GraphID returns the node's globally unique identifier in the graph store,
// scoped by provenance so distinct sources never collide.
func (n NodeRef) GraphID(tenant, sourceID string) string {
	parts := []string{tenant, sourceID, strings.ToLower(string(n.Kind)), n.QualifiedName}
	if n.FilePath != "" {
		parts = append(parts, n.FilePath)
	}
	return strings.Join(parts, ":")
}

// RelationTriple is one extracted (subject, relation, object) fact. Triples
// are the sole output of extraction and the sole input to publishing.
type RelationTriple struct {
	Subject  NodeRef      `json:"subject"`
	Relation RelationKind `json:"relation"`
	Object   NodeRef      `json:"object"`
}
