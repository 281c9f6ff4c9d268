package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tally/internal/core"
)

// repo is the surface shared by the SQLite and memory repositories.
type repo interface {
	CreateUser(ctx context.Context, u core.User) error
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
	AppendTransaction(ctx context.Context, t core.Transaction) (int64, error)
	ListTransactions(ctx context.Context, owner, category string) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	ClearTransactions(ctx context.Context, owner string) error
	CreateRule(ctx context.Context, rule core.RecurrenceRule) (int64, error)
	ListRules(ctx context.Context, owner string) ([]core.RecurrenceRule, error)
	MaterializeOccurrence(ctx context.Context, ruleID int64, from, to core.Date, t core.Transaction) (int64, error)
	ListCategories(ctx context.Context) ([]string, error)
}

func repos(t *testing.T) map[string]repo {
	t.Helper()
	sqliteRepo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatalf("open sqlite repo: %v", err)
	}
	t.Cleanup(func() { sqliteRepo.Close() })
	return map[string]repo{
		"sqlite": sqliteRepo,
		"memory": NewMemoryRepository(),
	}
}

func TestUserUniqueness(t *testing.T) {
	for name, r := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u := core.User{ID: "u1", Username: "alice", PasswordHash: []byte("hash")}
			if err := r.CreateUser(ctx, u); err != nil {
				t.Fatalf("first create: %v", err)
			}
			err := r.CreateUser(ctx, core.User{ID: "u2", Username: "alice", PasswordHash: []byte("other")})
			if !errors.Is(err, ErrUserExists) {
				t.Fatalf("expected ErrUserExists, got %v", err)
			}
			got, err := r.GetUserByUsername(ctx, "alice")
			if err != nil || got.ID != "u1" {
				t.Fatalf("get user: %v %+v", err, got)
			}
			if _, err := r.GetUserByUsername(ctx, "bob"); !errors.Is(err, ErrUserNotFound) {
				t.Fatalf("expected ErrUserNotFound, got %v", err)
			}
		})
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	for name, r := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := r.CreateUser(ctx, core.User{ID: "u1", Username: "alice", PasswordHash: []byte("h")}); err != nil {
				t.Fatalf("create user: %v", err)
			}

			want := []core.Transaction{
				{Owner: "u1", Kind: core.Expense, Category: "Food", Date: core.NewDate(2024, 1, 1), Amount: core.Money{Cents: 5000}, Note: "lunch"},
				{Owner: "u1", Kind: core.Income, Category: "Salary", Date: core.NewDate(2024, 1, 2), Amount: core.Money{Cents: 100000}},
				{Owner: "u1", Kind: core.Expense, Category: "Rent", Date: core.NewDate(2024, 1, 3), Amount: core.Money{Cents: 70000}},
			}
			for i := range want {
				if _, err := r.AppendTransaction(ctx, want[i]); err != nil {
					t.Fatalf("append %d: %v", i, err)
				}
			}

			got, err := r.ListTransactions(ctx, "u1", "")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("expected %d transactions, got %d", len(want), len(got))
			}
			for i := range want {
				g, w := got[i], want[i]
				if g.Kind != w.Kind || g.Category != w.Category || g.Amount != w.Amount ||
					g.Note != w.Note || !g.Date.Equal(w.Date) {
					t.Fatalf("row %d mismatch: got %+v want %+v", i, g, w)
				}
			}

			// Category filter
			food, err := r.ListTransactions(ctx, "u1", "Food")
			if err != nil || len(food) != 1 || food[0].Note != "lunch" {
				t.Fatalf("category filter: %v %+v", err, food)
			}

			// Other owners see nothing
			other, err := r.ListTransactions(ctx, "u2", "")
			if err != nil || len(other) != 0 {
				t.Fatalf("owner scoping: %v %+v", err, other)
			}

			// Clear is idempotent
			for i := 0; i < 2; i++ {
				if err := r.ClearTransactions(ctx, "u1"); err != nil {
					t.Fatalf("clear %d: %v", i, err)
				}
			}
			got, err = r.ListTransactions(ctx, "u1", "")
			if err != nil || len(got) != 0 {
				t.Fatalf("after clear: %v %+v", err, got)
			}
		})
	}
}

func TestMaterializeOccurrenceAtomicity(t *testing.T) {
	for name, r := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := r.CreateUser(ctx, core.User{ID: "u1", Username: "alice", PasswordHash: []byte("h")}); err != nil {
				t.Fatalf("create user: %v", err)
			}
			id, err := r.CreateRule(ctx, core.RecurrenceRule{
				Owner:            "u1",
				Kind:             core.Expense,
				Frequency:        core.Weekly,
				Amount:           core.Money{Cents: 2000},
				Category:         "Subscription",
				LastMaterialized: core.NewDate(2024, 1, 1),
			})
			if err != nil {
				t.Fatalf("create rule: %v", err)
			}

			tx := core.Transaction{
				Owner:    "u1",
				Kind:     core.Expense,
				Category: "Subscription",
				Date:     core.NewDate(2024, 1, 8),
				Amount:   core.Money{Cents: 2000},
				Note:     "recurring",
			}
			txID, err := r.MaterializeOccurrence(ctx, id, core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 8), tx)
			if err != nil || txID == 0 {
				t.Fatalf("materialize: id=%d err=%v", txID, err)
			}

			// The same occurrence from the old anchor must refuse AND leave
			// no second transaction behind.
			_, err = r.MaterializeOccurrence(ctx, id, core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 8), tx)
			if !errors.Is(err, ErrStaleAnchor) {
				t.Fatalf("expected ErrStaleAnchor, got %v", err)
			}

			txs, err := r.ListTransactions(ctx, "u1", "")
			if err != nil {
				t.Fatalf("list transactions: %v", err)
			}
			if len(txs) != 1 {
				t.Fatalf("stale materialize left %d transactions, want 1", len(txs))
			}
			if !txs[0].Date.Equal(core.NewDate(2024, 1, 8)) {
				t.Fatalf("materialized on %v, want 2024-01-08", txs[0].Date.Time)
			}

			rules, err := r.ListRules(ctx, "u1")
			if err != nil || len(rules) != 1 {
				t.Fatalf("list rules: %v %+v", err, rules)
			}
			if !rules[0].LastMaterialized.Equal(core.NewDate(2024, 1, 8)) {
				t.Fatalf("anchor not advanced: %v", rules[0].LastMaterialized.Time)
			}
		})
	}
}

func TestListCategoriesSeeded(t *testing.T) {
	for name, r := range repos(t) {
		t.Run(name, func(t *testing.T) {
			cats, err := r.ListCategories(context.Background())
			if err != nil {
				t.Fatalf("list categories: %v", err)
			}
			if len(cats) == 0 {
				t.Fatalf("expected seeded categories")
			}
			found := false
			for _, c := range cats {
				if c == "Food" {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected Food in %v", cats)
			}
		})
	}
}
