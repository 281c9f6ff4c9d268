// Package services orchestrates ledger, recurrence, and export operations
// over the storage and messaging layers.
package services

import (
	"context"

	"tally/internal/core"
	"tally/internal/storage"
)

// LedgerStore persists transactions. Implemented by both repositories.
type LedgerStore interface {
	AppendTransaction(ctx context.Context, t core.Transaction) (int64, error)
	ListTransactions(ctx context.Context, owner, category string) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	ClearTransactions(ctx context.Context, owner string) error
	ListCategories(ctx context.Context) ([]string, error)
}

// RuleStore persists recurrence rules. MaterializeOccurrence must append the
// transaction and advance the anchor atomically, returning
// storage.ErrStaleAnchor (and writing nothing) when the anchor no longer
// matches from.
type RuleStore interface {
	CreateRule(ctx context.Context, rule core.RecurrenceRule) (int64, error)
	ListRules(ctx context.Context, owner string) ([]core.RecurrenceRule, error)
	ListRuleOwners(ctx context.Context) ([]string, error)
	MaterializeOccurrence(ctx context.Context, ruleID int64, from, to core.Date, t core.Transaction) (int64, error)
}

// TransactionPublisher emits export events for newly appended transactions.
type TransactionPublisher interface {
	PublishTransactionSync(ctx context.Context, id, version int64) error
}

var _ LedgerStore = (*storage.SQLiteRepository)(nil)
var _ LedgerStore = (*storage.MemoryRepository)(nil)
var _ RuleStore = (*storage.SQLiteRepository)(nil)
var _ RuleStore = (*storage.MemoryRepository)(nil)
