package services

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/auth"
	"tally/internal/core"
)

// LedgerService owns all transaction operations for authenticated users.
// Writes go to the local store first; export events are published
// best-effort afterwards and never fail the request.
type LedgerService struct {
	store     LedgerStore
	publisher TransactionPublisher
}

func NewLedgerService(store LedgerStore, publisher TransactionPublisher) *LedgerService {
	return &LedgerService{store: store, publisher: publisher}
}

// Append validates and persists one transaction for the identity. The
// transaction's owner is always taken from the identity, never the caller.
func (s *LedgerService) Append(ctx context.Context, id auth.Identity, t core.Transaction) (int64, error) {
	if id.UserID == "" {
		return 0, auth.ErrUnauthenticated
	}
	t.Owner = id.UserID
	if err := t.Validate(); err != nil {
		return 0, err
	}

	txID, err := s.store.AppendTransaction(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("save transaction: %w", err)
	}

	// Publish async export message (non-blocking, version 1 for new rows)
	if err := s.publishSyncMessage(ctx, txID, 1); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export message",
			"id", txID, "error", err)
		// Don't fail the request - the transaction is saved locally
	}

	return txID, nil
}

// List returns the identity's transactions in append order, optionally
// restricted to one category. No matches is an empty slice, not an error.
func (s *LedgerService) List(ctx context.Context, id auth.Identity, category string) ([]core.Transaction, error) {
	if id.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}
	txs, err := s.store.ListTransactions(ctx, id.UserID, category)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Clear bulk-deletes the identity's ledger. Idempotent.
func (s *LedgerService) Clear(ctx context.Context, id auth.Identity) error {
	if id.UserID == "" {
		return auth.ErrUnauthenticated
	}
	if err := s.store.ClearTransactions(ctx, id.UserID); err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	return nil
}

// Balance reduces the identity's full ledger to a signed total.
func (s *LedgerService) Balance(ctx context.Context, id auth.Identity) (core.Money, error) {
	txs, err := s.List(ctx, id, "")
	if err != nil {
		return core.Money{}, err
	}
	return core.Balance(txs), nil
}

// Summary aggregates the identity's expenses by category.
func (s *LedgerService) Summary(ctx context.Context, id auth.Identity) ([]core.CategoryAmount, error) {
	txs, err := s.List(ctx, id, "")
	if err != nil {
		return nil, err
	}
	return core.SummarizeExpenses(txs), nil
}

// Categories returns the seeded taxonomy used by the entry form.
func (s *LedgerService) Categories(ctx context.Context) ([]string, error) {
	return s.store.ListCategories(ctx)
}

func (s *LedgerService) publishSyncMessage(ctx context.Context, id, version int64) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No publisher configured, skipping export message")
		return nil
	}
	return s.publisher.PublishTransactionSync(ctx, id, version)
}
