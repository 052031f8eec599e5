package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCheckpointNotFound is returned when a thread has no committed state.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrVersionConflict is returned when the stored version advanced since load.
	ErrVersionConflict = errors.New("checkpoint version conflict")
)

// Well-known extra_state keys.
const (
	StateEmergencyType  = "emergency_type"
	StateSubmissionSeq  = "submission_seq"
	StateLastSubmission = "last_submission"
	// StateConversationID is assigned when a thread is reset and scopes
	// submission keys to the conversation that follows.
	StateConversationID = "conversation_id"
)

// Checkpoint is the durable snapshot of a thread.
type Checkpoint struct {
	ThreadID   string         `json:"threadId"`
	Domain     Domain         `json:"domain"`
	Messages   []Message      `json:"messages"`
	ExtraState map[string]any `json:"extraState,omitempty"`
	Version    int64          `json:"version"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// NewCheckpoint returns the empty, uncommitted state of a thread.
func NewCheckpoint(threadID string, d Domain) *Checkpoint {
	return &Checkpoint{
		ThreadID:   threadID,
		Domain:     d,
		ExtraState: map[string]any{},
	}
}

// Validate checks the checkpoint before it is written.
func (c *Checkpoint) Validate() error {
	if c.ThreadID == "" {
		return errors.New("checkpoint: empty thread id")
	}
	if c.Version < 1 {
		return fmt.Errorf("checkpoint %s: invalid version %d", c.ThreadID, c.Version)
	}
	if err := ValidateLog(c.Messages); err != nil {
		return fmt.Errorf("checkpoint %s: %w", c.ThreadID, err)
	}
	return nil
}

// Clone returns a deep enough copy that appending to the clone's log or
// mutating its extra state leaves the original untouched.
func (c *Checkpoint) Clone() *Checkpoint {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		if len(m.ToolCalls) > 0 {
			m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
		out.Messages[i] = m
	}
	out.ExtraState = make(map[string]any, len(c.ExtraState))
	for k, v := range c.ExtraState {
		out.ExtraState[k] = v
	}
	return &out
}

// String reads a string value from extra state.
func (c *Checkpoint) String(key string) string {
	s, _ := c.ExtraState[key].(string)
	return s
}

// Int reads an integer value from extra state, tolerating JSON numbers.
func (c *Checkpoint) Int(key string) int64 {
	switch v := c.ExtraState[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// Decode converts an extra state value into out via its JSON form.
func (c *Checkpoint) Decode(key string, out any) (bool, error) {
	v, ok := c.ExtraState[key]
	if !ok || v == nil {
		return false, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, out)
}

// KeepLast merges two values of a thread-scoped key: the later value wins
// when both are present, otherwise whichever side holds one is kept.
func KeepLast(left, right any) any {
	if right == nil {
		return left
	}
	if s, ok := right.(string); ok && s == "" {
		return left
	}
	return right
}

// MergeState folds updates into state with KeepLast and returns state.
func MergeState(state, updates map[string]any) map[string]any {
	if state == nil {
		state = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		merged := KeepLast(state[k], v)
		if merged == nil {
			continue
		}
		state[k] = merged
	}
	return state
}

// CheckpointStore persists checkpoints with optimistic concurrency.
type CheckpointStore interface {
	// Load returns the latest committed checkpoint or ErrCheckpointNotFound.
	Load(ctx context.Context, threadID string) (*Checkpoint, error)

	// Save commits cp. The stored version must equal cp.Version-1 (or be
	// absent when cp.Version is 1), otherwise ErrVersionConflict is returned
	// and nothing is written.
	Save(ctx context.Context, cp *Checkpoint) error

	// Delete archives and removes a thread's checkpoint.
	Delete(ctx context.Context, threadID string) error
}
