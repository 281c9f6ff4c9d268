package core

import "testing"

func tx(kind Kind, category string, cents int64) Transaction {
	return Transaction{
		Owner:    "u1",
		Kind:     kind,
		Category: category,
		Date:     NewDate(2024, 1, 1),
		Amount:   Money{Cents: cents},
	}
}

func TestBalanceEmpty(t *testing.T) {
	if got := Balance(nil); got.Cents != 0 {
		t.Fatalf("expected 0 for empty ledger, got %d", got.Cents)
	}
}

func TestBalanceSigns(t *testing.T) {
	txs := []Transaction{
		tx(Expense, "Food", 5000),
		tx(Income, "Salary", 100000),
	}
	if got := Balance(txs[:1]); got.Cents != -5000 {
		t.Fatalf("expected -5000 after expense, got %d", got.Cents)
	}
	if got := Balance(txs); got.Cents != 95000 {
		t.Fatalf("expected 95000 after income, got %d", got.Cents)
	}
}

func TestBalanceOrderIndependent(t *testing.T) {
	txs := []Transaction{
		tx(Income, "Salary", 300),
		tx(Expense, "Food", 100),
		tx(Expense, "Rent", 50),
		tx(Income, "Gift", 25),
	}
	want := Balance(txs).Cents
	reversed := make([]Transaction, len(txs))
	for i, v := range txs {
		reversed[len(txs)-1-i] = v
	}
	if got := Balance(reversed).Cents; got != want {
		t.Fatalf("balance depends on order: %d vs %d", got, want)
	}
}

func TestSummarizeExpenses(t *testing.T) {
	txs := []Transaction{
		tx(Expense, "Food", 100),
		tx(Income, "Salary", 9999), // income excluded
		tx(Expense, "Rent", 500),
		tx(Expense, "Food", 50),
	}
	got := SummarizeExpenses(txs)
	if len(got) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(got))
	}
	if got[0].Name != "Food" || got[0].Amount.Cents != 150 {
		t.Fatalf("unexpected first category: %+v", got[0])
	}
	if got[1].Name != "Rent" || got[1].Amount.Cents != 500 {
		t.Fatalf("unexpected second category: %+v", got[1])
	}
}
