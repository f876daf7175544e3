package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerPort is the external ownership ledger keeping share balances.
type LedgerPort interface {
	// MintShares credits an account for a deposited asset amount (wei); the
	// ledger converts at its current share price.
	MintShares(ctx context.Context, account common.Address, amount *big.Int) error

	// MintRawShares credits raw ownership units directly, no conversion.
	MintRawShares(ctx context.Context, account common.Address, rawAmount *big.Int) error

	// TotalShares returns the total supply of ownership units.
	TotalShares(ctx context.Context) (*big.Int, error)
}
