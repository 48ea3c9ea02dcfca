// ABOUTME: Checkpoint snapshots enough execution state to resume a crashed or cancelled
// ABOUTME: run: node states and fire counts, shared variables, and the token epoch.
package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dipeo/dipeo-engine/domain"
)

// NodeCheckpoint is the persisted view of one node's progress.
type NodeCheckpoint struct {
	Status         domain.NodeStatus `json:"status"`
	ExecutionCount int               `json:"execution_count"`
}

// Checkpoint is a serializable snapshot of one execution, sufficient to
// resume it: every node's status and fire count, the shared variable
// snapshot, and the token manager's current epoch. Checkpointing is
// best-effort crash recovery, not transactional durability — token
// queues are not captured, so a resumed run re-drives from the start
// nodes with counts intact.
type Checkpoint struct {
	Timestamp   time.Time                        `json:"timestamp"`
	ExecutionID domain.ExecutionID               `json:"execution_id"`
	Epoch       int                              `json:"epoch"`
	Nodes       map[domain.NodeID]NodeCheckpoint `json:"nodes"`
	Variables   map[string]any                   `json:"variables"`
}

// NewCheckpoint builds a Checkpoint from the current state of one
// execution.
func NewCheckpoint(execID domain.ExecutionID, epoch int, nodeIDs []domain.NodeID, states *StateTracker, vars *domain.Variables) *Checkpoint {
	nodes := make(map[domain.NodeID]NodeCheckpoint, len(nodeIDs))
	for _, id := range nodeIDs {
		s := states.Get(id)
		nodes[id] = NodeCheckpoint{Status: s.Status, ExecutionCount: s.ExecutionCount}
	}
	return &Checkpoint{
		Timestamp:   time.Now(),
		ExecutionID: execID,
		Epoch:       epoch,
		Nodes:       nodes,
		Variables:   vars.Snapshot(),
	}
}

// Save serializes the checkpoint to indented JSON at path.
func (c *Checkpoint) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("engine: marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("engine: write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint deserializes a checkpoint previously written by Save.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read checkpoint: %w", err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("engine: parse checkpoint: %w", err)
	}
	return &c, nil
}

// CheckpointStore periodically persists checkpoints for one execution to
// a directory, one file per execution keyed by ExecutionID. A nil
// *CheckpointStore disables checkpointing entirely (Config.Checkpoint is
// optional).
type CheckpointStore struct {
	Dir string
}

// NewCheckpointStore returns a store rooted at dir, creating it if needed.
func NewCheckpointStore(dir string) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create checkpoint dir: %w", err)
	}
	return &CheckpointStore{Dir: dir}, nil
}

func (s *CheckpointStore) pathFor(execID domain.ExecutionID) string {
	return fmt.Sprintf("%s/%s.json", s.Dir, execID)
}

// Save writes c to this store's directory.
func (s *CheckpointStore) Save(c *Checkpoint) error {
	return c.Save(s.pathFor(c.ExecutionID))
}

// Load reads back the checkpoint for execID, if one exists.
func (s *CheckpointStore) Load(execID domain.ExecutionID) (*Checkpoint, error) {
	return LoadCheckpoint(s.pathFor(execID))
}
