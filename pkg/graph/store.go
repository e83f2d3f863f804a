package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/config"
	"github.com/tracelight-ai/codegraph-engine/pkg/logging"
)

// statement is one parameterized Cypher statement.
type statement struct {
	cypher string
	params map[string]any
}

// cypherRunner abstracts statement execution so the publisher and retriever
// can be tested without a live graph store.
type cypherRunner interface {
	// Read runs a single read query and returns its records as maps.
	Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)

	// Write runs all statements inside one explicit transaction.
	Write(ctx context.Context, statements []statement) error
}

// Store owns the graph database connection.
type Store struct {
	driver neo4j.DriverWithContext
	runner cypherRunner
	logger *zap.Logger
}

// NewStore connects to the graph database. The caller decides whether a
// store exists at all; an unconfigured deployment simply has no Store.
func NewStore(cfg *config.GraphConfig, logger *zap.Logger) (*Store, error) {
	uri := cfg.URI()
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver for %s: %w",
			logging.SanitizeConnectionString(uri), err)
	}

	return &Store{
		driver: driver,
		runner: &driverRunner{driver: driver},
		logger: logger,
	}, nil
}

// Available reports whether the graph database is reachable.
func (s *Store) Available(ctx context.Context) bool {
	if s == nil || s.driver == nil {
		return false
	}
	return s.driver.VerifyConnectivity(ctx) == nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// schemaStatements are applied once at startup. All are idempotent.
var schemaStatements = []string{
	"CREATE CONSTRAINT function_id IF NOT EXISTS FOR (f:Function) REQUIRE f.id IS UNIQUE",
	"CREATE CONSTRAINT script_id IF NOT EXISTS FOR (s:Script) REQUIRE s.id IS UNIQUE",
	"CREATE CONSTRAINT file_id IF NOT EXISTS FOR (f:File) REQUIRE f.id IS UNIQUE",
	"CREATE CONSTRAINT module_id IF NOT EXISTS FOR (m:Module) REQUIRE m.id IS UNIQUE",
	"CREATE RANGE INDEX file_path_index IF NOT EXISTS FOR (f:File) ON (f.file_path)",
}

// InitSchema applies unique-id constraints and indexes.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := s.runner.Write(ctx, []statement{{cypher: stmt}}); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	s.logger.Info("graph schema initialized")
	return nil
}

// driverRunner executes statements through the neo4j driver.
type driverRunner struct {
	driver neo4j.DriverWithContext
}

func (r *driverRunner) Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(records))
	for _, record := range records {
		rows = append(rows, record.AsMap())
	}
	return rows, nil
}

func (r *driverRunner) Write(ctx context.Context, statements []statement) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return err
	}

	for _, stmt := range statements {
		if _, err := tx.Run(ctx, stmt.cypher, stmt.params); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}

	return tx.Commit(ctx)
}

// unavailableRunner serves deployments with no graph store configured.
// Every operation reports unavailability instead of failing the process.
type unavailableRunner struct{}

func (unavailableRunner) Read(context.Context, string, map[string]any) ([]map[string]any, error) {
	return nil, apperrors.ErrGraphUnavailable
}

func (unavailableRunner) Write(context.Context, []statement) error {
	return apperrors.ErrGraphUnavailable
}

// runnerFor returns the store's runner, or an always-unavailable one when no
// store was configured.
func runnerFor(store *Store) cypherRunner {
	if store == nil {
		return unavailableRunner{}
	}
	return store.runner
}

var _ cypherRunner = (*driverRunner)(nil)
var _ cypherRunner = unavailableRunner{}
