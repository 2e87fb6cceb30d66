package externalregistry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry reads clawden_agents over a pgx connection pool.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry opens a pool against dsn.
func NewPostgresRegistry(ctx context.Context, dsn string) (*PostgresRegistry, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("externalregistry: connect postgres: %w", err)
	}
	return &PostgresRegistry{pool: pool}, nil
}

// LoadAgents runs the seed query; an undefined-table error yields zero
// seeds rather than propagating, per this component's boot-only contract.
func (r *PostgresRegistry) LoadAgents(ctx context.Context) ([]AgentSeed, error) {
	rows, err := r.pool.Query(ctx, selectAgentsQuery)
	if err != nil {
		if isMissingRelation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("externalregistry: query postgres: %w", err)
	}
	defer rows.Close()

	var seeds []AgentSeed
	for rows.Next() {
		var (
			id, name, runtimeKind, capabilities, state string
			taskCount                                  int64
		)
		if err := rows.Scan(&id, &name, &runtimeKind, &capabilities, &state, &taskCount); err != nil {
			return nil, fmt.Errorf("externalregistry: scan postgres row: %w", err)
		}
		seeds = append(seeds, AgentSeed{
			ID:           id,
			Name:         name,
			RuntimeKind:  runtimeKind,
			Capabilities: parseCapabilities(capabilities),
			State:        state,
			TaskCount:    uint64(taskCount),
		})
	}
	return seeds, rows.Err()
}

// Close releases the pool.
func (r *PostgresRegistry) Close() { r.pool.Close() }

// isMissingRelation reports whether err is Postgres' "relation does not
// exist" (SQLSTATE 42P01) — the only query failure this component treats
// as "empty fleet" rather than a real error.
func isMissingRelation(err error) bool {
	var pgErr interface{ SQLState() string }
	if ok := asPgError(err, &pgErr); ok {
		return pgErr.SQLState() == "42P01"
	}
	return false
}

func asPgError(err error, target *interface{ SQLState() string }) bool {
	for err != nil {
		if pe, ok := err.(interface{ SQLState() string }); ok {
			*target = pe
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
