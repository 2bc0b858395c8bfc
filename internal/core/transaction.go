package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// MaxLabelLength bounds titles and categories, counted in runes.
const MaxLabelLength = 200

type (
	// TransactionType says whether a transaction adds to or draws from the balance.
	TransactionType string

	// Transaction is one recorded income or expense entry. It is immutable once
	// stored; only the ledger creates or destroys it.
	Transaction struct {
		ID        int64           `json:"id"`
		Title     string          `json:"title"`
		Amount    Money           `json:"amount"`
		Category  string          `json:"category"`
		Type      TransactionType `json:"type"`
		CreatedAt time.Time       `json:"createdAt"`
	}

	// NewTransactionInput carries raw, unvalidated fields as they arrive from a caller.
	NewTransactionInput struct {
		Title    string
		Amount   string
		Category string
		Type     string
	}

	// Draft is a validated transaction that has not been assigned an id yet.
	Draft struct {
		Title    string
		Amount   Money
		Category string
		Type     TransactionType
	}
)

var (
	ErrInvalidAmount   = errors.New("amount must be a positive number")
	ErrEmptyTitle      = errors.New("title must not be empty")
	ErrTitleTooLong    = errors.New("title too long (max 200 characters)")
	ErrEmptyCategory   = errors.New("category must not be empty")
	ErrCategoryTooLong = errors.New("category too long (max 200 characters)")
	ErrInvalidType     = errors.New("type must be income or expense")
	ErrTotalOverflow   = errors.New("amount too large: the running total would overflow")
)

// ParseTransactionType accepts "income" or "expense" in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidType
	}
	return t, nil
}

// Valid reports whether t is one of the two known types.
func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense:
		return true
	default:
		return false
	}
}

func (t TransactionType) String() string {
	return string(t)
}

// Validate checks every field and returns a Draft, or a *ValidationError
// listing all fields that failed.
func (in NewTransactionInput) Validate() (Draft, error) {
	var (
		d    Draft
		verr ValidationError
	)

	d.Title = strings.TrimSpace(in.Title)
	switch {
	case d.Title == "":
		verr.add("title", ErrEmptyTitle)
	case utf8.RuneCountInString(d.Title) > MaxLabelLength:
		verr.add("title", ErrTitleTooLong)
	}

	cents, err := ParseDecimalToCents(in.Amount)
	if err != nil {
		verr.add("amount", ErrInvalidAmount)
	}
	d.Amount = Money{Cents: cents}

	d.Category = strings.TrimSpace(in.Category)
	switch {
	case d.Category == "":
		verr.add("category", ErrEmptyCategory)
	case utf8.RuneCountInString(d.Category) > MaxLabelLength:
		verr.add("category", ErrCategoryTooLong)
	}

	d.Type, err = ParseTransactionType(in.Type)
	if err != nil {
		verr.add("type", ErrInvalidType)
	}

	if len(verr.Fields) > 0 {
		return Draft{}, &verr
	}
	return d, nil
}

// Validate checks the invariants every stored transaction must satisfy.
func (t Transaction) Validate() error {
	_, err := NewTransactionInput{
		Title:    t.Title,
		Amount:   t.Amount.String(),
		Category: t.Category,
		Type:     string(t.Type),
	}.Validate()
	if err != nil {
		return err
	}
	if t.ID <= 0 {
		return errors.New("transaction id must be positive")
	}
	return nil
}
