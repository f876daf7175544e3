package ports

import (
	"context"
	"math/big"
)

// BalanceOraclePort exposes the trusted reporter's published view of the
// pool's deployed stake slots.
type BalanceOraclePort interface {
	// ReportedValidatorCount is the number of funded slots confirmed live on
	// the staking layer.
	ReportedValidatorCount(ctx context.Context) (uint64, error)

	// ReportedBalanceSum is the aggregate balance of those slots, in wei.
	ReportedBalanceSum(ctx context.Context) (*big.Int, error)

	// ReportedStoppedCounts maps operator name to the number of its funded
	// slots observed to have exited.
	ReportedStoppedCounts(ctx context.Context) (map[string]uint64, error)
}
