package session

import (
	"fmt"
	"slices"
	"strings"
)

// Queue is the ordered, read-only checkpoint sequence of a session.
// It is validated once at construction and safe to share across readers.
type Queue struct {
	items []Checkpoint
}

// NewQueue validates checkpoints and copies them into a Queue.
// IDs must be unique and non-empty; indices must run 1..N in order.
func NewQueue(checkpoints []Checkpoint) (*Queue, error) {
	seen := make(map[string]struct{}, len(checkpoints))
	for pos, cp := range checkpoints {
		id := strings.TrimSpace(cp.ID)
		if id == "" {
			return nil, queueError("checkpoint at position %d has no id", pos+1)
		}
		if _, dup := seen[id]; dup {
			return nil, queueError("duplicate checkpoint id %q", id)
		}
		seen[id] = struct{}{}
		if cp.Index != pos+1 {
			return nil, queueError("checkpoint %q has index %d, want %d", id, cp.Index, pos+1)
		}
		if strings.TrimSpace(cp.Action) == "" {
			return nil, queueError("checkpoint %q has no action", id)
		}
	}
	return &Queue{items: slices.Clone(checkpoints)}, nil
}

func queueError(format string, args ...any) error {
	return NewSessionError(CodeValidation, "load queue", "", fmt.Sprintf(format, args...), ErrInvalidQueue)
}

// Len returns the number of checkpoints.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.items)
}

// At returns the checkpoint under cursor (0-based).
func (q *Queue) At(cursor int) (Checkpoint, bool) {
	if q == nil || cursor < 0 || cursor >= len(q.items) {
		return Checkpoint{}, false
	}
	return q.items[cursor], true
}

// Checkpoints returns a copy of the queue contents.
func (q *Queue) Checkpoints() []Checkpoint {
	if q == nil {
		return []Checkpoint{}
	}
	out := make([]Checkpoint, len(q.items))
	copy(out, q.items)
	return out
}
