// ABOUTME: JsonlStore is a fallback append-only event log for setups without sqlite3:
// ABOUTME: append-with-fsync plus full-file sequential replay.
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dipeo/dipeo-engine/domain"
)

// JsonlStore is an append-only, newline-delimited-JSON event log backed by
// one file per process. Satisfies ports.MessageStore; Range is O(file
// size) since the format has no index, so SqliteStore is preferred for
// anything beyond small runs or local debugging.
type JsonlStore struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenJsonl opens (or creates) a JSONL event log at path, creating parent
// directories as needed. The file is opened in append mode.
func OpenJsonl(path string) (*JsonlStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create parent dirs: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open jsonl: %w", err)
	}
	return &JsonlStore{path: path, file: file}, nil
}

// Path returns the backing file path.
func (s *JsonlStore) Path() string { return s.path }

// Close closes the underlying file.
func (s *JsonlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Append writes one Row (already JSON-encoded via encodeRow) as a single
// line, fsyncing before returning so a crash never loses an
// already-acknowledged append.
func (s *JsonlStore) Append(ctx context.Context, executionID domain.ExecutionID, sequenceNo int64, payload []byte) error {
	row, err := decodeRow(payload)
	if err != nil {
		return err
	}
	row.ExecutionID = executionID
	row.SequenceNo = sequenceNo
	line, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("store: marshal jsonl row: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("store: write jsonl line: %w", err)
	}
	return s.file.Sync()
}

// Range scans the whole file, returning the encoded payloads of every row
// matching executionID with sequence_no in [fromSeq, toSeq].
func (s *JsonlStore) Range(ctx context.Context, executionID domain.ExecutionID, fromSeq, toSeq int64) ([][]byte, error) {
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open jsonl for read: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out [][]byte
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("store: parse jsonl line: %w", err)
		}
		if row.ExecutionID != executionID || row.SequenceNo < fromSeq || row.SequenceNo > toSeq {
			continue
		}
		encoded, err := encodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: scan jsonl: %w", err)
	}
	return out, nil
}
