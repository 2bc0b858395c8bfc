package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionMirror keeps a read-only copy of the ledger somewhere else.
	// Both operations are idempotent: appending an id that is already mirrored
	// returns the existing reference, deleting an absent id reports false.
	// IDs lists the ledger ids currently mirrored.
	TransactionMirror interface {
		Append(ctx context.Context, t core.Transaction) (rowRef string, err error)
		Delete(ctx context.Context, id int64) (bool, error)
		IDs(ctx context.Context) ([]int64, error)
	}
)
