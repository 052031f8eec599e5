package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/hotline/internal/domain"
)

// MemoryCheckpointStore keeps checkpoints in process. Values are stored in
// their JSON form so a load sees exactly what a durable backend would return.
type MemoryCheckpointStore struct {
	mu       sync.Mutex
	live     map[string][]byte
	archived map[string][][]byte
}

// NewMemoryCheckpointStore creates an empty store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		live:     make(map[string][]byte),
		archived: make(map[string][][]byte),
	}
}

func (s *MemoryCheckpointStore) Load(_ context.Context, threadID string) (*domain.Checkpoint, error) {
	s.mu.Lock()
	raw, ok := s.live[threadID]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	return decodeCheckpoint(raw)
}

func (s *MemoryCheckpointStore) Save(_ context.Context, cp *domain.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if raw, ok := s.live[cp.ThreadID]; ok {
		prev, err := decodeCheckpoint(raw)
		if err != nil {
			return err
		}
		stored = prev.Version
	}
	if stored != cp.Version-1 {
		return fmt.Errorf("%w: thread %s stored %d, saving %d", domain.ErrVersionConflict, cp.ThreadID, stored, cp.Version)
	}
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	s.live[cp.ThreadID] = raw
	return nil
}

func (s *MemoryCheckpointStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.live[threadID]
	if !ok {
		return domain.ErrCheckpointNotFound
	}
	s.archived[threadID] = append(s.archived[threadID], raw)
	delete(s.live, threadID)
	return nil
}

// Archived returns the archived snapshots of a thread, oldest first.
func (s *MemoryCheckpointStore) Archived(_ context.Context, threadID string) ([]domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Checkpoint
	for _, raw := range s.archived[threadID] {
		cp, err := decodeCheckpoint(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	return out, nil
}

// Threads lists live threads, most recently saved first.
func (s *MemoryCheckpointStore) Threads(_ context.Context, d domain.Domain) ([]domain.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cps := make([]*domain.Checkpoint, 0, len(s.live))
	for _, raw := range s.live {
		cp, err := decodeCheckpoint(raw)
		if err != nil {
			return nil, err
		}
		if d == "" || cp.Domain == d {
			cps = append(cps, cp)
		}
	}
	slices.SortFunc(cps, func(a, b *domain.Checkpoint) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ThreadID, b.ThreadID)
	})
	out := make([]domain.Thread, 0, len(cps))
	for _, cp := range cps {
		out = append(out, domain.NewThread(cp.ThreadID, cp.Domain, cp.CreatedAt))
	}
	return out, nil
}

func decodeCheckpoint(raw []byte) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint: %w", err)
	}
	if cp.ExtraState == nil {
		cp.ExtraState = map[string]any{}
	}
	return &cp, nil
}

// MemoryCaseStore keeps cases in process.
type MemoryCaseStore struct {
	mu    sync.Mutex
	cases map[string]*domain.Case
	keys  map[string]string
	order []string
}

// NewMemoryCaseStore creates an empty store.
func NewMemoryCaseStore() *MemoryCaseStore {
	return &MemoryCaseStore{
		cases: make(map[string]*domain.Case),
		keys:  make(map[string]string),
	}
}

func (s *MemoryCaseStore) Create(_ context.Context, in domain.CaseInput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.IdempotencyKey != "" {
		if id, ok := s.keys[in.IdempotencyKey]; ok {
			return id, nil
		}
	}
	id := uuid.New().String()
	now := time.Now()
	fields := make(domain.CaseDraft, len(in.Draft))
	for k, v := range in.Draft {
		fields[k] = v
	}
	s.cases[id] = &domain.Case{
		ID:             id,
		Domain:         in.Domain,
		UserID:         in.UserID,
		Fields:         fields,
		Status:         domain.StatusNotAssigned,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.IdempotencyKey != "" {
		s.keys[in.IdempotencyKey] = id
	}
	s.order = append(s.order, id)
	return id, nil
}

func (s *MemoryCaseStore) Get(_ context.Context, id string, d domain.Domain) (*domain.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok || c.Domain != d {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrCaseNotFound, d, id)
	}
	out := *c
	return &out, nil
}

func (s *MemoryCaseStore) SetStatus(_ context.Context, id string, d domain.Domain, status domain.CaseStatus) error {
	if _, err := domain.ParseStatus(string(status)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok || c.Domain != d {
		return fmt.Errorf("%w: %s %s", domain.ErrCaseNotFound, d, id)
	}
	if c.Status == status {
		return nil
	}
	if !domain.CanTransition(c.Status, status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, c.Status, status)
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryCaseStore) List(_ context.Context, d domain.Domain, status domain.CaseStatus) ([]domain.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Case
	for _, id := range slices.Backward(s.order) {
		c := s.cases[id]
		if c.Domain != d || (status != "" && c.Status != status) {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

// Len returns the number of stored cases.
func (s *MemoryCaseStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cases)
}
