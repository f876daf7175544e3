package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// FeeBase is the fixed-point denominator for fee fractions: 100000 = 100%.
const FeeBase uint64 = 100000

// SlotDepositSize is the fixed amount of wei consumed by funding one stake
// slot (one 32 ETH validator deposit).
var SlotDepositSize = new(big.Int).Mul(big.NewInt(32), big.NewInt(params.Ether))

// PoolState is the pool-level accounting persisted between runs.
type PoolState struct {
	// BufferedBalance is the liquid on-chain balance held by the pool,
	// deposits not yet converted into stake slots.
	BufferedBalance *big.Int
	// DepositedValidators counts the slots the pool has funded, tracked
	// independently of the oracle's view.
	DepositedValidators uint64
	// LastReportedBalance is the asset balance at the previous accounting
	// point. Earnings are the growth beyond this value. Nil until the first
	// oracle report has been processed.
	LastReportedBalance *big.Int
	// GlobalFee is the fraction of balance growth converted into newly
	// minted shares, in parts of FeeBase.
	GlobalFee uint64
	// OperatorRewardsShare is the fraction of minted fee shares paid to
	// operators collectively, in parts of FeeBase. The remainder goes to
	// the treasury.
	OperatorRewardsShare uint64
}
