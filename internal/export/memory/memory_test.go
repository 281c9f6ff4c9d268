package memory

import (
	"context"
	"testing"

	"tally/internal/core"
)

func TestAppendAndItems(t *testing.T) {
	s := New()
	ctx := context.Background()

	ref, err := s.Append(ctx, core.Transaction{
		Owner:    "u1",
		Kind:     core.Expense,
		Category: "Food",
		Date:     core.NewDate(2024, 6, 1),
		Amount:   core.Money{Cents: 100},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "mem:1" {
		t.Fatalf("row ref: got %q", ref)
	}
	if items := s.Items(); len(items) != 1 || items[0].Category != "Food" {
		t.Fatalf("items: %+v", items)
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	s := New()
	if _, err := s.Append(context.Background(), core.Transaction{}); err == nil {
		t.Fatal("expected validation error")
	}
	if len(s.Items()) != 0 {
		t.Fatal("invalid transaction must not be stored")
	}
}
