// Package eventlog is an append-only journal of (venue, execution_id)
// pairs used to deduplicate fill events during replay and reconciliation
// (spec.md §9's Open Question decision: duplicate ExecutionID arrivals are
// dropped by checking this journal before folding a fill into portfolio
// state).
//
// Grounded on storage/database.go's raw database/sql + lib/pq connection,
// "enabled" no-op-when-unset guard, and CREATE TABLE IF NOT EXISTS migrate
// pattern from the teacher repo.
package eventlog

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"

	"github.com/axiom-trade/exengine/identifiers"
)

// Store is an append-only execution id journal. A Store with no DSN
// configured is a permissive no-op, matching the teacher's "enabled"
// guard — useful for backtests where deduplication against a database
// round-trip would just add latency for no benefit.
type Store struct {
	db      *sql.DB
	enabled bool
}

// Open connects to dsn and ensures the journal schema exists. An empty
// dsn returns a disabled, always-permissive Store.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		log.Warn().Msg("eventlog: no DSN configured, running without fill deduplication")
		return &Store{enabled: false}, nil
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("eventlog: ping: %w", err)
	}

	s := &Store{db: db, enabled: true}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	log.Info().Msg("eventlog connected")
	return s, nil
}

func (s *Store) migrate() error {
	if !s.enabled {
		return nil
	}
	const schema = `
	CREATE TABLE IF NOT EXISTS execution_log (
		venue        TEXT NOT NULL,
		execution_id TEXT NOT NULL,
		client_order_id TEXT NOT NULL,
		recorded_at  TIMESTAMP DEFAULT NOW(),
		PRIMARY KEY (venue, execution_id)
	);
	CREATE INDEX IF NOT EXISTS idx_execution_log_client_order ON execution_log(client_order_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Seen reports whether (venue, executionID) has already been recorded.
// A disabled Store always reports false, so callers treat every fill as
// novel.
func (s *Store) Seen(venue identifiers.Venue, executionID identifiers.ExecutionID) (bool, error) {
	if !s.enabled {
		return false, nil
	}
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM execution_log WHERE venue = $1 AND execution_id = $2`,
		string(venue), string(executionID),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("eventlog: seen: %w", err)
	}
	return count > 0, nil
}

// Record appends (venue, executionID) to the journal. It is idempotent:
// recording the same pair twice is a no-op, not an error, so callers
// racing against a concurrent reconciliation pass never fail spuriously.
func (s *Store) Record(venue identifiers.Venue, executionID identifiers.ExecutionID, clientOrderID identifiers.ClientOrderID) error {
	if !s.enabled {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO execution_log (venue, execution_id, client_order_id) VALUES ($1, $2, $3)
		 ON CONFLICT (venue, execution_id) DO NOTHING`,
		string(venue), string(executionID), string(clientOrderID),
	)
	if err != nil {
		return fmt.Errorf("eventlog: record: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if !s.enabled {
		return nil
	}
	return s.db.Close()
}
