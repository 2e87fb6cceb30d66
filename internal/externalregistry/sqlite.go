package externalregistry

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRegistry reads clawden_agents from a local SQLite file via sqlx.
type SQLiteRegistry struct {
	db *sqlx.DB
}

// NewSQLiteRegistry opens the SQLite file at path; the sqlite3 driver
// creates an empty database there if none exists.
func NewSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("externalregistry: open sqlite: %w", err)
	}
	return &SQLiteRegistry{db: db}, nil
}

type agentRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	RuntimeKind  string `db:"runtime_kind"`
	Capabilities string `db:"capabilities"`
	State        string `db:"state"`
	TaskCount    int64  `db:"task_count"`
}

// LoadAgents runs the seed query; a missing table or missing file both
// yield zero seeds rather than propagating.
func (r *SQLiteRegistry) LoadAgents(ctx context.Context) ([]AgentSeed, error) {
	var rows []agentRow
	err := r.db.SelectContext(ctx, &rows, selectAgentsQuery)
	if err != nil {
		if isMissingTableOrFile(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("externalregistry: query sqlite: %w", err)
	}

	seeds := make([]AgentSeed, 0, len(rows))
	for _, row := range rows {
		seeds = append(seeds, AgentSeed{
			ID:           row.ID,
			Name:         row.Name,
			RuntimeKind:  row.RuntimeKind,
			Capabilities: parseCapabilities(row.Capabilities),
			State:        row.State,
			TaskCount:    uint64(row.TaskCount),
		})
	}
	return seeds, nil
}

// Close releases the underlying *sql.DB.
func (r *SQLiteRegistry) Close() error { return r.db.Close() }

// isMissingTableOrFile reports whether err is sqlite3's "no such table"
// error, the only query failure treated as "empty fleet."
func isMissingTableOrFile(err error) bool {
	return strings.Contains(err.Error(), "no such table")
}
