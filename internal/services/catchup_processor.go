package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"tally/internal/auth"
	"tally/internal/core"
)

// materializedNote marks transactions created by recurrence catch-up.
const materializedNote = "recurring"

// catchupConcurrency bounds the per-owner fan-out of CatchUpAll.
const catchupConcurrency = 4

// CatchupProcessor materializes the transactions implied by recurrence rules
// between each rule's last materialized date and today.
//
// Each missed occurrence is written through the store's atomic
// materialize-and-advance operation, so an interrupted run resumes from the
// last occurrence actually committed: never lossy, never duplicating on
// retry. In-process runs for the same owner are serialized by a keyed mutex;
// cross-process runs by the store's guarded anchor update, which refuses the
// whole write when the anchor is stale.
type CatchupProcessor struct {
	rules  RuleStore
	ledger *LedgerService

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

func NewCatchupProcessor(rules RuleStore, ledger *LedgerService) *CatchupProcessor {
	return &CatchupProcessor{
		rules:  rules,
		ledger: ledger,
		owners: make(map[string]*sync.Mutex),
	}
}

// CatchUp materializes all missed occurrences for the identity's rules up to
// today and returns the number of transactions created. Running it again
// immediately materializes nothing.
func (p *CatchupProcessor) CatchUp(ctx context.Context, id auth.Identity, today core.Date) (int, error) {
	if id.UserID == "" {
		return 0, auth.ErrUnauthenticated
	}
	return p.catchUpOwner(ctx, id, today)
}

// CatchUpAll runs catch-up for every owner that has at least one rule.
// Used by the periodic worker; owners are processed concurrently but each
// owner's rules strictly in sequence.
func (p *CatchupProcessor) CatchUpAll(ctx context.Context, today core.Date) (int, error) {
	owners, err := p.rules.ListRuleOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rule owners: %w", err)
	}

	var (
		g, gctx = errgroup.WithContext(ctx)
		mu      sync.Mutex
		total   int
	)
	g.SetLimit(catchupConcurrency)
	for _, owner := range owners {
		g.Go(func() error {
			n, err := p.catchUpOwner(gctx, auth.Identity{UserID: owner}, today)
			if err != nil {
				return fmt.Errorf("catch up owner %s: %w", owner, err)
			}
			mu.Lock()
			total += n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

func (p *CatchupProcessor) catchUpOwner(ctx context.Context, id auth.Identity, today core.Date) (int, error) {
	unlock := p.lockOwner(id.UserID)
	defer unlock()

	rules, err := p.rules.ListRules(ctx, id.UserID)
	if err != nil {
		return 0, fmt.Errorf("list rules: %w", err)
	}

	materialized := 0
	for _, rule := range rules {
		n, err := p.catchUpRule(ctx, id, rule, today)
		materialized += n
		if err != nil {
			// State is consistent up to the last persisted occurrence;
			// the next run resumes from there.
			return materialized, err
		}
	}

	if materialized > 0 {
		slog.InfoContext(ctx, "Recurrence catch-up complete",
			"owner", id.UserID,
			"materialized", materialized,
			"rules", len(rules))
	}
	return materialized, nil
}

// catchUpRule walks one rule forward to today, one occurrence at a time.
// Bounded by the number of elapsed periods; each missed occurrence becomes
// its own dated transaction.
func (p *CatchupProcessor) catchUpRule(ctx context.Context, id auth.Identity, rule core.RecurrenceRule, today core.Date) (int, error) {
	count := 0
	anchor := rule.LastMaterialized
	for {
		next := core.NextOccurrence(anchor, rule.Frequency)
		if next.After(today.Time) {
			return count, nil
		}

		tx := core.Transaction{
			Owner:    id.UserID,
			Kind:     rule.Kind,
			Category: rule.Category,
			Date:     next,
			Amount:   rule.Amount,
			Note:     materializedNote,
		}
		// Append and anchor advance commit together: a stale anchor means
		// another process materialized this occurrence after our snapshot,
		// nothing is written, and we stop instead of duplicating it.
		txID, err := p.rules.MaterializeOccurrence(ctx, rule.ID, anchor, next, tx)
		if err != nil {
			return count, fmt.Errorf("materialize occurrence %s for rule %d: %w",
				next.Format("2006-01-02"), rule.ID, err)
		}

		if err := p.ledger.publishSyncMessage(ctx, txID, 1); err != nil {
			slog.ErrorContext(ctx, "Failed to publish export message",
				"id", txID, "error", err)
		}

		slog.InfoContext(ctx, "Materialized recurring transaction",
			"rule_id", rule.ID,
			"owner", id.UserID,
			"date", next.Format("2006-01-02"),
			"amount_cents", rule.Amount.Cents,
			"frequency", rule.Frequency)

		anchor = next
		count++
	}
}

// CreateRule validates and persists a recurrence rule for the identity.
func (p *CatchupProcessor) CreateRule(ctx context.Context, id auth.Identity, rule core.RecurrenceRule) (int64, error) {
	if id.UserID == "" {
		return 0, auth.ErrUnauthenticated
	}
	rule.Owner = id.UserID
	if err := rule.Validate(); err != nil {
		return 0, err
	}
	ruleID, err := p.rules.CreateRule(ctx, rule)
	if err != nil {
		return 0, fmt.Errorf("create rule: %w", err)
	}
	return ruleID, nil
}

// ListRules returns the identity's recurrence rules.
func (p *CatchupProcessor) ListRules(ctx context.Context, id auth.Identity) ([]core.RecurrenceRule, error) {
	if id.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}
	rules, err := p.rules.ListRules(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

func (p *CatchupProcessor) lockOwner(owner string) func() {
	p.mu.Lock()
	m, ok := p.owners[owner]
	if !ok {
		m = &sync.Mutex{}
		p.owners[owner] = m
	}
	p.mu.Unlock()
	m.Lock()
	return m.Unlock
}
