package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

type (
	// Kind carries the sign of a transaction. Amounts are always positive.
	Kind string

	// Frequency is the repetition period of a recurrence rule.
	Frequency string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// User is a registered account. PasswordHash is an opaque salted hash;
	// the plaintext password is never persisted.
	User struct {
		ID           string
		Username     string
		PasswordHash []byte
	}

	// Transaction is one immutable ledger entry owned by a single user.
	Transaction struct {
		ID       int64 // Database ID for operations
		Owner    string
		Kind     Kind
		Category string
		Date     Date
		Amount   Money
		Note     string
	}

	// RecurrenceRule is a template for an automatically repeating transaction.
	// LastMaterialized is the date of the most recent occurrence already
	// written to the ledger; it never moves backward.
	RecurrenceRule struct {
		ID               int64
		Owner            string
		Kind             Kind
		Frequency        Frequency
		Amount           Money
		Category         string
		LastMaterialized Date
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidKind      = errors.New("invalid kind")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyOwner       = errors.New("empty owner")
	ErrInvalidDate      = errors.New("invalid date")
)

// NewDate creates a new Date from year, month, day at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Equal compares two dates by calendar day.
func (d Date) Equal(other Date) bool {
	return d.Year() == other.Year() && d.Month() == other.Month() && d.Day() == other.Day()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (k Kind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (f Frequency) Validate() error {
	switch f {
	case Weekly, Monthly:
		return nil
	default:
		return ErrInvalidFrequency
	}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Owner) == "" {
		return ErrEmptyOwner
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Note) > 200 {
		return errors.New("note too long (max 200 characters)")
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	return t.Amount.Validate()
}

func (r RecurrenceRule) Validate() error {
	if strings.TrimSpace(r.Owner) == "" {
		return ErrEmptyOwner
	}
	if err := r.Kind.Validate(); err != nil {
		return err
	}
	if err := r.Frequency.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if err := r.LastMaterialized.Validate(); err != nil {
		return errors.New("invalid anchor date: " + err.Error())
	}
	return r.Amount.Validate()
}
