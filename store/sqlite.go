// ABOUTME: SqliteStore is a sqlite3-backed event store for durable, queryable execution
// ABOUTME: history: a single append-only events table plus a (execution_id, ts) index.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dipeo/dipeo-engine/domain"
	"github.com/dipeo/dipeo-engine/eventbus"
)

// SqliteStore persists events to a sqlite3 database. Append-only; rows are
// never updated or deleted. Satisfies ports.MessageStore.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a sqlite3 event store at path, enabling WAL
// mode for concurrent readers during a write-heavy execution.
func OpenSqlite(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS events (
			execution_id TEXT NOT NULL,
			sequence_no  INTEGER NOT NULL,
			type         TEXT NOT NULL,
			node_id      TEXT,
			ts           TEXT NOT NULL,
			payload_json BLOB NOT NULL,
			PRIMARY KEY (execution_id, sequence_no)
		);
		CREATE INDEX IF NOT EXISTS idx_events_exec_ts ON events (execution_id, ts);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &SqliteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// Append inserts one event row. payload is the full JSON-encoded Row (see
// RowFromEvent) so that type, node_id and timestamp can be extracted for
// the secondary index even though the port interface only carries a
// sequence number and a byte payload.
func (s *SqliteStore) Append(ctx context.Context, executionID domain.ExecutionID, sequenceNo int64, payload []byte) error {
	row, err := decodeRow(payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (execution_id, sequence_no, type, node_id, ts, payload_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(executionID), sequenceNo, string(row.Type), string(row.NodeID),
		row.Timestamp.Format(timeLayout), row.PayloadJSON)
	if err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

// Range returns the raw payload bytes for every event of executionID with
// sequence_no in [fromSeq, toSeq], ordered by sequence_no ascending.
func (s *SqliteStore) Range(ctx context.Context, executionID domain.ExecutionID, fromSeq, toSeq int64) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence_no, type, node_id, ts, payload_json FROM events
		 WHERE execution_id = ? AND sequence_no BETWEEN ? AND ?
		 ORDER BY sequence_no ASC`,
		string(executionID), fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("store: range query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out [][]byte
	for rows.Next() {
		var seq int64
		var evType, nodeID, ts string
		var payload []byte
		if err := rows.Scan(&seq, &evType, &nodeID, &ts, &payload); err != nil {
			return nil, fmt.Errorf("store: scan event row: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		row := Row{
			ExecutionID: executionID,
			SequenceNo:  seq,
			Type:        eventbus.EventType(evType),
			NodeID:      domain.NodeID(nodeID),
			Timestamp:   t,
			PayloadJSON: payload,
		}
		encoded, err := encodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded)
	}
	return out, rows.Err()
}
