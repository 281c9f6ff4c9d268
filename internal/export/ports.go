// Package export defines the outbound port for mirroring ledger rows to an
// external spreadsheet.
package export

import (
	"context"

	"tally/internal/core"
)

// TransactionWriter appends one ledger row to the external sheet and returns
// an opaque row reference for logging.
type TransactionWriter interface {
	Append(ctx context.Context, t core.Transaction) (rowRef string, err error)
}
