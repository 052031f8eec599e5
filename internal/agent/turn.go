package agent

import (
	"sync"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/logging"
)

// turn is the scratch state of one in-flight turn. Tools running
// concurrently read and write extra state through it; nothing in it is
// visible outside the engine until the checkpoint commits.
type turn struct {
	threadID  string
	userID    string
	userTurns int
	messages  []domain.Message // log as of the current dispatch, read-only
	caseRef   *CaseRef
	log       *logging.Logger

	// submitMu serializes submit calls within the turn.
	submitMu sync.Mutex

	mu     sync.Mutex
	cp     *domain.Checkpoint
	events []turnEvent
	called []string
}

// turnEvent is a hook event deferred until the checkpoint commits.
type turnEvent struct {
	name string
	data map[string]any
}

func (t *turn) decode(key string, out any) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cp.Decode(key, out)
}

func (t *turn) str(key string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cp.String(key)
}

func (t *turn) int(key string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cp.Int(key)
}

// set overwrites extra state keys.
func (t *turn) set(updates map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range updates {
		t.cp.ExtraState[k] = v
	}
}

// merge folds updates into extra state with KeepLast.
func (t *turn) merge(updates map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cp.ExtraState = domain.MergeState(t.cp.ExtraState, updates)
}

func (t *turn) emit(name string, data map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, turnEvent{name: name, data: data})
}

func (t *turn) record(tool string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.called = append(t.called, tool)
}
