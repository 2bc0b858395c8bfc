package core

import (
	"errors"
	"strings"
	"testing"
)

func TestNewTransactionInputValidate(t *testing.T) {
	d, err := NewTransactionInput{Title: "  Salary ", Amount: "1000", Category: "Job", Type: "Income"}.Validate()
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.Title != "Salary" || d.Amount.Cents != 100000 || d.Category != "Job" || d.Type != Income {
		t.Fatalf("unexpected draft: %+v", d)
	}

	cases := []struct {
		name   string
		in     NewTransactionInput
		fields []string
		is     error
	}{
		{"empty title", NewTransactionInput{Title: " ", Amount: "1", Category: "c", Type: "income"}, []string{"title"}, ErrEmptyTitle},
		{"zero amount", NewTransactionInput{Title: "t", Amount: "0", Category: "c", Type: "income"}, []string{"amount"}, ErrInvalidAmount},
		{"negative amount", NewTransactionInput{Title: "t", Amount: "-3", Category: "c", Type: "expense"}, []string{"amount"}, ErrInvalidAmount},
		{"garbage amount", NewTransactionInput{Title: "t", Amount: "NaN", Category: "c", Type: "expense"}, []string{"amount"}, ErrInvalidAmount},
		{"empty category", NewTransactionInput{Title: "t", Amount: "1", Category: "", Type: "income"}, []string{"category"}, ErrEmptyCategory},
		{"bad type", NewTransactionInput{Title: "t", Amount: "1", Category: "c", Type: "transfer"}, []string{"type"}, ErrInvalidType},
		{"long title", NewTransactionInput{Title: strings.Repeat("x", 201), Amount: "1", Category: "c", Type: "income"}, []string{"title"}, ErrTitleTooLong},
		{"everything", NewTransactionInput{}, []string{"title", "amount", "category", "type"}, ErrInvalidType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.in.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if len(verr.Fields) != len(tc.fields) {
				t.Fatalf("expected fields %v, got %+v", tc.fields, verr.Fields)
			}
			for _, f := range tc.fields {
				if !verr.Has(f) {
					t.Fatalf("expected %q to be reported, got %+v", f, verr.Fields)
				}
			}
			if !errors.Is(err, tc.is) {
				t.Fatalf("expected errors.Is(%v), got %v", tc.is, err)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	_, err := NewTransactionInput{Title: "t", Amount: "0", Category: "", Type: "income"}.Validate()
	want := "invalid transaction: amount: amount must be a positive number; category: category must not be empty"
	if err == nil || err.Error() != want {
		t.Fatalf("got %v, want %q", err, want)
	}
}

func TestParseTransactionType(t *testing.T) {
	for in, want := range map[string]TransactionType{"income": Income, " EXPENSE ": Expense} {
		got, err := ParseTransactionType(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q err=%v", in, got, err)
		}
	}
	if _, err := ParseTransactionType("refund"); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{ID: 1, Title: "Rent", Amount: Money{Cents: 40000}, Category: "Housing", Type: Expense}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Transaction{
		{ID: 0, Title: "a", Amount: Money{Cents: 1}, Category: "c", Type: Income},
		{ID: 1, Title: "", Amount: Money{Cents: 1}, Category: "c", Type: Income},
		{ID: 1, Title: "a", Amount: Money{Cents: 0}, Category: "c", Type: Income},
		{ID: 1, Title: "a", Amount: Money{Cents: 1}, Category: "c", Type: "other"},
	}
	for i, b := range bads {
		if err := b.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}
