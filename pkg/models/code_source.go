package models

import (
	"strings"
	"time"
)

// SourceType identifies how a code source's path is interpreted.
type SourceType string

const (
	// SourceTypeHostedRepository is a repository on the configured git host,
	// addressed by project path (e.g. "org/service").
	SourceTypeHostedRepository SourceType = "hosted_repository"

	// SourceTypeLocalFilesystem is a checkout already present on local disk,
	// addressed by absolute directory path.
	SourceTypeLocalFilesystem SourceType = "local_filesystem"
)

// Valid reports whether the source type is one of the known variants.
func (t SourceType) Valid() bool {
	switch t {
	case SourceTypeHostedRepository, SourceTypeLocalFilesystem:
		return true
	}
	return false
}

// CodeSource is one registered, analyzable body of code.
type CodeSource struct {
	SourceID   string     `json:"source_id"`
	Tenant     string     `json:"tenant"`
	SourceType SourceType `json:"source_type"`
	Path       string     `json:"path"`
	Name       string     `json:"name"`
	Languages  []string   `json:"languages"`

	// LastAnalyzedRevision is empty until the first successful analysis run.
	LastAnalyzedRevision string     `json:"last_analyzed_revision,omitempty"`
	LastAnalyzedTime     *time.Time `json:"last_analyzed_time,omitempty"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeriveSourceID computes the stable identifier for a (tenant, type, path)
// combination. Registration is idempotent because the same inputs always
// produce the same ID.
func DeriveSourceID(tenant string, sourceType SourceType, path string) string {
	safePath := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(path)
	return tenant + "_" + string(sourceType) + "_" + safePath
}

// AppliesToLanguage reports whether the source is configured to analyze lang.
func (s *CodeSource) AppliesToLanguage(lang string) bool {
	for _, l := range s.Languages {
		if l == lang {
			return true
		}
	}
	return false
}
