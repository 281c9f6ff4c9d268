package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var (
	// ErrUserExists is returned when registering a username that is taken.
	ErrUserExists = errors.New("user already exists")

	// ErrUserNotFound is returned when no user has the given username.
	ErrUserNotFound = errors.New("user not found")

	// ErrNotFound is returned when a transaction or rule does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStaleAnchor is returned when a guarded anchor update matched no row:
	// a concurrent catch-up run already advanced the rule past the expected
	// date. The caller must re-read the rule instead of retrying blindly.
	ErrStaleAnchor = errors.New("rule anchor already advanced")
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- users ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash) VALUES (?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = ?`,
		username).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// --- transactions ---

// AppendTransaction inserts a ledger entry and returns its ID. Insertion
// order is the listing order; rows are never updated after this point.
func (r *SQLiteRepository) AppendTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (owner, kind, category, tx_date, amount_cents, note)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Owner, string(t.Kind), t.Category, t.Date.Format(dateLayout), t.Amount.Cents, t.Note)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transaction id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"owner", t.Owner,
		"kind", t.Kind,
		"category", t.Category,
		"amount_cents", t.Amount.Cents)

	return id, nil
}

// ListTransactions returns all transactions for owner in append order,
// optionally restricted to one category.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, owner, category string) ([]core.Transaction, error) {
	query := `SELECT id, owner, kind, category, tx_date, amount_cents, note
	          FROM transactions WHERE owner = ?`
	args := []any{owner}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// GetTransaction retrieves a single transaction by ID.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner, kind, category, tx_date, amount_cents, note
		 FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	return t, err
}

// ClearTransactions bulk-deletes all of the owner's transactions. Idempotent.
func (r *SQLiteRepository) ClearTransactions(ctx context.Context, owner string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE owner = ?`, owner)
	if err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		slog.InfoContext(ctx, "Ledger cleared", "owner", owner, "deleted", n)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t       core.Transaction
		kind    string
		dateStr string
	)
	err := row.Scan(&t.ID, &t.Owner, &kind, &t.Category, &dateStr, &t.Amount.Cents, &t.Note)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.Kind(kind)
	parsed, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date %q: %w", dateStr, err)
	}
	t.Date = core.Date{Time: parsed}
	return t, nil
}

// --- recurrence rules ---

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurrenceRule) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recurrence_rules (owner, kind, frequency, amount_cents, category, last_materialized)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rule.Owner, string(rule.Kind), string(rule.Frequency),
		rule.Amount.Cents, rule.Category, rule.LastMaterialized.Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("rule id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) ListRules(ctx context.Context, owner string) ([]core.RecurrenceRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner, kind, frequency, amount_cents, category, last_materialized
		 FROM recurrence_rules WHERE owner = ? ORDER BY id`, owner)
	if err != nil {
		return nil, fmt.Errorf("select rules: %w", err)
	}
	defer rows.Close()

	var out []core.RecurrenceRule
	for rows.Next() {
		var (
			rule      core.RecurrenceRule
			kind      string
			frequency string
			dateStr   string
		)
		if err := rows.Scan(&rule.ID, &rule.Owner, &kind, &frequency,
			&rule.Amount.Cents, &rule.Category, &dateStr); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.Kind = core.Kind(kind)
		rule.Frequency = core.Frequency(frequency)
		parsed, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse rule anchor %q: %w", dateStr, err)
		}
		rule.LastMaterialized = core.Date{Time: parsed}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

// ListRuleOwners returns the distinct owners that have at least one rule.
func (r *SQLiteRepository) ListRuleOwners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT owner FROM recurrence_rules ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("select rule owners: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("scan rule owner: %w", err)
		}
		out = append(out, owner)
	}
	return out, rows.Err()
}

// MaterializeOccurrence appends the transaction implied by one rule
// occurrence and advances the rule's anchor from its expected value, in a
// single database transaction. The guarded UPDATE serializes catch-up runs
// across processes: when two runs race from the same anchor only one commit
// can match, the other rolls back its insert and gets ErrStaleAnchor, so the
// same missed occurrence is never materialized twice.
func (r *SQLiteRepository) MaterializeOccurrence(ctx context.Context, ruleID int64, from, to core.Date, t core.Transaction) (int64, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin materialize: %w", err)
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx,
		`UPDATE recurrence_rules SET last_materialized = ?
		 WHERE id = ? AND last_materialized = ?`,
		to.Format(dateLayout), ruleID, from.Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("advance rule anchor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("advance rule anchor: %w", err)
	}
	if n == 0 {
		return 0, ErrStaleAnchor
	}

	res, err = dbTx.ExecContext(ctx,
		`INSERT INTO transactions (owner, kind, category, tx_date, amount_cents, note)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Owner, string(t.Kind), t.Category, t.Date.Format(dateLayout), t.Amount.Cents, t.Note)
	if err != nil {
		return 0, fmt.Errorf("insert materialized transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("materialized transaction id: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit materialize: %w", err)
	}
	return id, nil
}

// --- export bookkeeping ---

// PendingExport identifies a transaction not yet written to the export sink.
type PendingExport struct {
	ID      int64
	Version int64
}

// GetPendingExports returns transactions that still need exporting, oldest
// first, up to limit. Backup path for lost queue messages.
func (r *SQLiteRepository) GetPendingExports(ctx context.Context, limit int) ([]PendingExport, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, version FROM transactions WHERE exported = 0 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending exports: %w", err)
	}
	defer rows.Close()

	var out []PendingExport
	for rows.Next() {
		var p PendingExport
		if err := rows.Scan(&p.ID, &p.Version); err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkExported marks a transaction as successfully exported.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET exported = 1, export_error = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	return nil
}

// MarkExportError flags a transaction whose export attempt failed so the
// periodic sweep retries it.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET export_error = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	return nil
}

// --- categories ---

// ListCategories returns the seeded category taxonomy.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
