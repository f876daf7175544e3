package domain

import "math/big"

// Audit events published through the notifier port.

// OperatorFundedEvent records that an operator's funded slot count changed.
type OperatorFundedEvent struct {
	Name      string
	NewFunded uint64
}

// EarningsDistributedEvent records one reward distribution round.
type EarningsDistributedEvent struct {
	Amount          *big.Int // reported balance increase, wei
	SharesToMint    *big.Int // total new shares minted for the fee
	OperatorRewards *big.Int // operator portion before per-validator proration
	TreasuryShares  *big.Int // shares minted to the treasury
}
