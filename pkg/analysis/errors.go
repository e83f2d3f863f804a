package analysis

import "fmt"

// BuildErrorKind classifies why a database build failed.
type BuildErrorKind string

const (
	BuildErrorToolMissing         BuildErrorKind = "tool_missing"
	BuildErrorUnsupportedLanguage BuildErrorKind = "unsupported_language"
	BuildErrorTimeout             BuildErrorKind = "build_timeout"
	BuildErrorCrash               BuildErrorKind = "build_crash"
)

// BuildError reports a failed database build for one source and language.
// Builds fail as values the orchestrator inspects, never as panics.
type BuildError struct {
	Kind     BuildErrorKind
	SourceID string
	Language string
	Detail   string
	Err      error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("build failed (%s) for source %s language %s", e.Kind, e.SourceID, e.Language)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// QueryError reports one extraction query that failed. Other queries'
// results are unaffected.
type QueryError struct {
	Query    string
	Relation string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s (%s) failed: %v", e.Query, e.Relation, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
