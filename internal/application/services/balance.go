package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/dappnode/staking-pool-manager/internal/application/domain"
	"github.com/dappnode/staking-pool-manager/internal/application/ports"
)

// BalanceAggregator computes the pool's total managed value from the oracle's
// reported staked balance, the liquid buffered balance, and a correction for
// slots funded but not yet visible to the oracle.
type BalanceAggregator struct {
	Oracle ports.BalanceOraclePort
}

// ComputeAssetBalance returns the total managed value in wei. buffered is the
// pool's liquid on-chain balance and deposited its independently tracked
// funded-slot count. Slots the oracle has not seen yet are valued at the
// fixed slot deposit size, since their funds are in transit to the staking
// layer rather than gone.
func (b *BalanceAggregator) ComputeAssetBalance(ctx context.Context, buffered *big.Int, deposited uint64) (*big.Int, error) {
	reported, err := b.Oracle.ReportedBalanceSum(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading reported balance sum: %w", err)
	}
	beaconCount, err := b.Oracle.ReportedValidatorCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading reported validator count: %w", err)
	}

	total := new(big.Int).Add(reported, buffered)
	if beaconCount < deposited {
		transit := new(big.Int).SetUint64(deposited - beaconCount)
		transit.Mul(transit, domain.SlotDepositSize)
		total.Add(total, transit)
	}
	return total, nil
}
