package services

import (
	"context"
	"errors"
	"testing"

	"tally/internal/auth"
	"tally/internal/core"
	"tally/internal/storage"
)

// flakyStore wraps the memory repository and fails materializations once armed.
type flakyStore struct {
	*storage.MemoryRepository
	failAfter    int // fail every write once this many have succeeded
	materialized int
}

var errDiskFull = errors.New("disk full")

func (f *flakyStore) MaterializeOccurrence(ctx context.Context, ruleID int64, from, to core.Date, t core.Transaction) (int64, error) {
	if f.failAfter >= 0 && f.materialized >= f.failAfter {
		return 0, errDiskFull
	}
	f.materialized++
	return f.MemoryRepository.MaterializeOccurrence(ctx, ruleID, from, to, t)
}

// staleRuleStore serves rules with an outdated anchor, like a catch-up run
// that listed its rules just before a concurrent run advanced them.
type staleRuleStore struct {
	RuleStore
	anchor core.Date
}

func (s *staleRuleStore) ListRules(ctx context.Context, owner string) ([]core.RecurrenceRule, error) {
	rules, err := s.RuleStore.ListRules(ctx, owner)
	for i := range rules {
		rules[i].LastMaterialized = s.anchor
	}
	return rules, err
}

func newFixture(t *testing.T) (*storage.MemoryRepository, *LedgerService, *CatchupProcessor, auth.Identity) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	ledger := NewLedgerService(repo, nil)
	processor := NewCatchupProcessor(repo, ledger)
	return repo, ledger, processor, auth.Identity{UserID: "u1", Username: "alice"}
}

func TestCatchUpWeekly(t *testing.T) {
	repo, ledger, processor, id := newFixture(t)
	ctx := context.Background()

	_, err := processor.CreateRule(ctx, id, core.RecurrenceRule{
		Kind:             core.Expense,
		Frequency:        core.Weekly,
		Amount:           core.Money{Cents: 2000},
		Category:         "Subscription",
		LastMaterialized: core.NewDate(2024, 1, 1),
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	n, err := processor.CatchUp(ctx, id, core.NewDate(2024, 1, 22))
	if err != nil {
		t.Fatalf("catch up: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 materialized, got %d", n)
	}

	txs, err := ledger.List(ctx, id, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	wantDates := []core.Date{
		core.NewDate(2024, 1, 8),
		core.NewDate(2024, 1, 15),
		core.NewDate(2024, 1, 22),
	}
	if len(txs) != len(wantDates) {
		t.Fatalf("expected %d transactions, got %d", len(wantDates), len(txs))
	}
	for i, want := range wantDates {
		if !txs[i].Date.Equal(want) {
			t.Fatalf("transaction %d dated %v, want %v", i, txs[i].Date.Time, want.Time)
		}
		if txs[i].Amount.Cents != 2000 || txs[i].Kind != core.Expense || txs[i].Category != "Subscription" {
			t.Fatalf("transaction %d fields wrong: %+v", i, txs[i])
		}
	}

	rules, _ := repo.ListRules(ctx, id.UserID)
	if !rules[0].LastMaterialized.Equal(core.NewDate(2024, 1, 22)) {
		t.Fatalf("anchor ended at %v, want 2024-01-22", rules[0].LastMaterialized.Time)
	}
}

func TestCatchUpIdempotent(t *testing.T) {
	_, ledger, processor, id := newFixture(t)
	ctx := context.Background()

	if _, err := processor.CreateRule(ctx, id, core.RecurrenceRule{
		Kind:             core.Income,
		Frequency:        core.Weekly,
		Amount:           core.Money{Cents: 500},
		Category:         "Salary",
		LastMaterialized: core.NewDate(2024, 1, 1),
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	today := core.NewDate(2024, 1, 15)
	if n, err := processor.CatchUp(ctx, id, today); err != nil || n != 2 {
		t.Fatalf("first run: n=%d err=%v", n, err)
	}
	// No time passed: the second run must materialize nothing.
	if n, err := processor.CatchUp(ctx, id, today); err != nil || n != 0 {
		t.Fatalf("second run: n=%d err=%v", n, err)
	}
	txs, _ := ledger.List(ctx, id, "")
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions total, got %d", len(txs))
	}
}

func TestCatchUpMonthlyClampsToEndOfMonth(t *testing.T) {
	cases := []struct {
		name   string
		anchor core.Date
		today  core.Date
		want   core.Date
	}{
		{"leap year", core.NewDate(2024, 1, 31), core.NewDate(2024, 3, 1), core.NewDate(2024, 2, 29)},
		{"non-leap year", core.NewDate(2023, 1, 31), core.NewDate(2023, 3, 1), core.NewDate(2023, 2, 28)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ledger, processor, id := newFixture(t)
			ctx := context.Background()

			if _, err := processor.CreateRule(ctx, id, core.RecurrenceRule{
				Kind:             core.Expense,
				Frequency:        core.Monthly,
				Amount:           core.Money{Cents: 70000},
				Category:         "Rent",
				LastMaterialized: tc.anchor,
			}); err != nil {
				t.Fatalf("create rule: %v", err)
			}

			if n, err := processor.CatchUp(ctx, id, tc.today); err != nil || n != 1 {
				t.Fatalf("catch up: n=%d err=%v", n, err)
			}
			txs, _ := ledger.List(ctx, id, "")
			if len(txs) != 1 || !txs[0].Date.Equal(tc.want) {
				t.Fatalf("materialized on %v, want %v", txs[0].Date.Time, tc.want.Time)
			}
		})
	}
}

func TestCatchUpResumesAfterPersistenceFailure(t *testing.T) {
	repo := storage.NewMemoryRepository()
	flaky := &flakyStore{MemoryRepository: repo, failAfter: 1}
	ledger := NewLedgerService(repo, nil)
	processor := NewCatchupProcessor(flaky, ledger)
	id := auth.Identity{UserID: "u1"}
	ctx := context.Background()

	if _, err := processor.CreateRule(ctx, id, core.RecurrenceRule{
		Kind:             core.Expense,
		Frequency:        core.Weekly,
		Amount:           core.Money{Cents: 2000},
		Category:         "Subscription",
		LastMaterialized: core.NewDate(2024, 1, 1),
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	today := core.NewDate(2024, 1, 22)

	// First run persists one occurrence, then the store starts failing.
	n, err := processor.CatchUp(ctx, id, today)
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected disk full error, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 materialized before failure, got %d", n)
	}
	rules, _ := repo.ListRules(ctx, id.UserID)
	if !rules[0].LastMaterialized.Equal(core.NewDate(2024, 1, 8)) {
		t.Fatalf("anchor advanced past last persisted occurrence: %v", rules[0].LastMaterialized.Time)
	}

	// Storage recovers: the retry materializes exactly the remaining two.
	flaky.failAfter = -1
	n, err = processor.CatchUp(ctx, id, today)
	if err != nil || n != 2 {
		t.Fatalf("resume run: n=%d err=%v", n, err)
	}

	txs, _ := repo.ListTransactions(ctx, id.UserID, "")
	if len(txs) != 3 {
		t.Fatalf("expected exactly 3 transactions after resume, got %d", len(txs))
	}
	seen := map[string]bool{}
	for _, tx := range txs {
		key := tx.Date.Format("2006-01-02")
		if seen[key] {
			t.Fatalf("duplicate occurrence on %s", key)
		}
		seen[key] = true
	}
}

func TestCatchUpStaleSnapshotDoesNotDuplicate(t *testing.T) {
	repo := storage.NewMemoryRepository()
	ledger := NewLedgerService(repo, nil)
	processor := NewCatchupProcessor(repo, ledger)
	id := auth.Identity{UserID: "u1"}
	ctx := context.Background()

	if _, err := processor.CreateRule(ctx, id, core.RecurrenceRule{
		Kind:             core.Expense,
		Frequency:        core.Weekly,
		Amount:           core.Money{Cents: 2000},
		Category:         "Subscription",
		LastMaterialized: core.NewDate(2024, 1, 1),
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	today := core.NewDate(2024, 1, 22)
	if n, err := processor.CatchUp(ctx, id, today); err != nil || n != 3 {
		t.Fatalf("first run: n=%d err=%v", n, err)
	}

	// A second run whose view of the rule predates the first run, as when a
	// login-triggered catch-up and a worker tick race over the same store.
	// It must refuse without writing anything.
	racer := NewCatchupProcessor(
		&staleRuleStore{RuleStore: repo, anchor: core.NewDate(2024, 1, 1)}, ledger)
	n, err := racer.CatchUp(ctx, id, today)
	if !errors.Is(err, storage.ErrStaleAnchor) {
		t.Fatalf("expected ErrStaleAnchor, got %v", err)
	}
	if n != 0 {
		t.Fatalf("stale run materialized %d, want 0", n)
	}

	txs, _ := repo.ListTransactions(ctx, id.UserID, "")
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions after racing runs, got %d", len(txs))
	}
	perDate := map[string]int{}
	for _, tx := range txs {
		perDate[tx.Date.Format("2006-01-02")]++
	}
	for date, count := range perDate {
		if count != 1 {
			t.Fatalf("occurrence %s materialized %d times", date, count)
		}
	}
}

func TestCatchUpAllCoversEveryOwner(t *testing.T) {
	repo := storage.NewMemoryRepository()
	ledger := NewLedgerService(repo, nil)
	processor := NewCatchupProcessor(repo, ledger)
	ctx := context.Background()

	for _, owner := range []string{"u1", "u2"} {
		if _, err := processor.CreateRule(ctx, auth.Identity{UserID: owner}, core.RecurrenceRule{
			Kind:             core.Expense,
			Frequency:        core.Weekly,
			Amount:           core.Money{Cents: 100},
			Category:         "Subscription",
			LastMaterialized: core.NewDate(2024, 1, 1),
		}); err != nil {
			t.Fatalf("create rule for %s: %v", owner, err)
		}
	}

	n, err := processor.CatchUpAll(ctx, core.NewDate(2024, 1, 15))
	if err != nil {
		t.Fatalf("catch up all: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 materialized across owners, got %d", n)
	}
	for _, owner := range []string{"u1", "u2"} {
		txs, _ := repo.ListTransactions(ctx, owner, "")
		if len(txs) != 2 {
			t.Fatalf("owner %s: expected 2 transactions, got %d", owner, len(txs))
		}
	}
}

func TestCatchUpRequiresIdentity(t *testing.T) {
	_, _, processor, _ := newFixture(t)
	_, err := processor.CatchUp(context.Background(), auth.Identity{}, core.NewDate(2024, 1, 1))
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
