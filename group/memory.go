package group

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/split-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory group store (for testing/dev)
// =============================================================================

type MemoryStore struct {
	mu     sync.RWMutex
	groups map[ledger.GroupID]*Group
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[ledger.GroupID]*Group)}
}

func (m *MemoryStore) CreateGroup(_ context.Context, g *Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g.ID == "" {
		g.ID = ledger.GroupID(uuid.New().String())
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	stored := *g
	stored.MemberIDs = append([]ledger.UserID(nil), g.MemberIDs...)
	m.groups[g.ID] = &stored
	return nil
}

func (m *MemoryStore) GetGroup(_ context.Context, id ledger.GroupID) (*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "group", ID: string(id)}
	}
	cp := *g
	cp.MemberIDs = append([]ledger.UserID(nil), g.MemberIDs...)
	return &cp, nil
}

func (m *MemoryStore) ListGroupsByMember(_ context.Context, userID ledger.UserID) ([]*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Group
	for _, g := range m.groups {
		if g.IsMember(userID) {
			cp := *g
			cp.MemberIDs = append([]ledger.UserID(nil), g.MemberIDs...)
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) UpdateMembers(_ context.Context, id ledger.GroupID, expectedVersion int, memberIDs []ledger.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "group", ID: string(id)}
	}
	if g.Version != expectedVersion {
		return ledger.ErrConcurrentModification
	}
	g.MemberIDs = append([]ledger.UserID(nil), memberIDs...)
	g.Version++
	return nil
}

func (m *MemoryStore) DeleteGroup(_ context.Context, id ledger.GroupID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.groups, id)
	return nil
}
