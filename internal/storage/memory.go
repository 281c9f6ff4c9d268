package storage

import (
	"context"
	"sync"

	"tally/internal/core"
)

// MemoryRepository is an in-process repository with the same surface as the
// SQLite one. It backs DATA_BACKEND=memory and the package tests.
type MemoryRepository struct {
	mu         sync.Mutex
	users      map[string]core.User // keyed by username
	txs        []core.Transaction
	rules      []core.RecurrenceRule
	categories []string
	nextTxID   int64
	nextRuleID int64
	exported   map[int64]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]core.User),
		categories: []string{
			"Entertainment", "Food", "Health", "Other", "Rent",
			"Salary", "Subscription", "Transport", "Utilities",
		},
		exported: make(map[int64]bool),
	}
}

func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) CreateUser(_ context.Context, u core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return ErrUserExists
	}
	m.users[u.Username] = u
	return nil
}

func (m *MemoryRepository) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return core.User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryRepository) AppendTransaction(_ context.Context, t core.Transaction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxID++
	t.ID = m.nextTxID
	m.txs = append(m.txs, t)
	return t.ID, nil
}

func (m *MemoryRepository) ListTransactions(_ context.Context, owner, category string) ([]core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Transaction
	for _, t := range m.txs {
		if t.Owner != owner {
			continue
		}
		if category != "" && t.Category != category {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryRepository) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txs {
		if t.ID == id {
			return t, nil
		}
	}
	return core.Transaction{}, ErrNotFound
}

func (m *MemoryRepository) ClearTransactions(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.txs[:0]
	for _, t := range m.txs {
		if t.Owner != owner {
			kept = append(kept, t)
		}
	}
	m.txs = kept
	return nil
}

func (m *MemoryRepository) CreateRule(_ context.Context, rule core.RecurrenceRule) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRuleID++
	rule.ID = m.nextRuleID
	m.rules = append(m.rules, rule)
	return rule.ID, nil
}

func (m *MemoryRepository) ListRules(_ context.Context, owner string) ([]core.RecurrenceRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.RecurrenceRule
	for _, r := range m.rules {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListRuleOwners(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, r := range m.rules {
		if !seen[r.Owner] {
			seen[r.Owner] = true
			out = append(out, r.Owner)
		}
	}
	return out, nil
}

// MaterializeOccurrence appends one materialized transaction and advances the
// rule's anchor under the same lock, so a run holding a stale anchor writes
// nothing at all.
func (m *MemoryRepository) MaterializeOccurrence(_ context.Context, ruleID int64, from, to core.Date, t core.Transaction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID != ruleID {
			continue
		}
		if !m.rules[i].LastMaterialized.Equal(from) {
			return 0, ErrStaleAnchor
		}
		m.rules[i].LastMaterialized = to
		m.nextTxID++
		t.ID = m.nextTxID
		m.txs = append(m.txs, t)
		return t.ID, nil
	}
	return 0, ErrNotFound
}

func (m *MemoryRepository) GetPendingExports(_ context.Context, limit int) ([]PendingExport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PendingExport
	for _, t := range m.txs {
		if m.exported[t.ID] {
			continue
		}
		out = append(out, PendingExport{ID: t.ID, Version: 1})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryRepository) MarkExported(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exported[id] = true
	return nil
}

func (m *MemoryRepository) MarkExportError(_ context.Context, id int64) error {
	return nil
}

func (m *MemoryRepository) ListCategories(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.categories...), nil
}
