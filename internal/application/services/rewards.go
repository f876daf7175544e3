package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dappnode/staking-pool-manager/internal/application/domain"
	"github.com/dappnode/staking-pool-manager/internal/application/ports"
	"github.com/dappnode/staking-pool-manager/internal/logger"
)

// RewardDistributor converts a reported balance increase into newly minted
// ownership shares and splits them between the active operators and the
// treasury. Minting new shares for the fee dilutes every existing holder by
// the same ratio, so holder-to-holder proportions are preserved.
type RewardDistributor struct {
	Ledger   ports.LedgerPort
	Registry *OperatorRegistry
	Notifier ports.NotifierPort // optional
	Treasury common.Address
}

var feeBase = new(big.Int).SetUint64(domain.FeeBase)

// DistributeEarnings mints the fee shares for a balance increase of amount
// wei over balanceBefore, the asset balance at the previous accounting point.
// globalFee and operatorShare are fractions in parts of domain.FeeBase.
//
// The operator portion is prorated by each active operator's running
// validator count; the per-validator division truncates and the remainder is
// never minted. With no active validators the treasury receives the full
// mint.
func (d *RewardDistributor) DistributeEarnings(ctx context.Context, amount, balanceBefore *big.Int, globalFee, operatorShare uint64) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("negative earnings amount: %w", domain.ErrInvalidArgument)
	}
	if globalFee > domain.FeeBase || operatorShare > domain.FeeBase {
		return fmt.Errorf("fee fraction above %d: %w", domain.FeeBase, domain.ErrInvalidArgument)
	}
	if amount.Sign() == 0 {
		return nil
	}

	totalShares, err := d.Ledger.TotalShares(ctx)
	if err != nil {
		return fmt.Errorf("reading total shares: %w", err)
	}

	sharesToMint := feeShares(amount, balanceBefore, totalShares, globalFee)
	if sharesToMint.Sign() <= 0 {
		logger.Debug("Earnings of %s wei produce no fee shares, skipping distribution", amount)
		return nil
	}

	operatorRewards := new(big.Int).Mul(sharesToMint, new(big.Int).SetUint64(operatorShare))
	operatorRewards.Quo(operatorRewards, feeBase)

	active := d.Registry.AllActive()
	var totalValidators uint64
	for _, op := range active {
		totalValidators += op.ActiveValidators()
	}

	// With no running validators there is nobody to prorate over; the whole
	// mint goes to the treasury.
	treasuryShares := new(big.Int).Set(sharesToMint)
	if totalValidators > 0 {
		perValidator := new(big.Int).Quo(operatorRewards, new(big.Int).SetUint64(totalValidators))
		for _, op := range active {
			n := op.ActiveValidators()
			if n == 0 {
				continue
			}
			reward := new(big.Int).Mul(perValidator, new(big.Int).SetUint64(n))
			if reward.Sign() == 0 {
				continue
			}
			if err := d.Ledger.MintRawShares(ctx, op.PayoutAddress, reward); err != nil {
				return fmt.Errorf("minting %s shares to operator %q: %w", reward, op.Name, err)
			}
		}
		treasuryShares.Sub(treasuryShares, operatorRewards)
	}

	if treasuryShares.Sign() > 0 {
		if err := d.Ledger.MintRawShares(ctx, d.Treasury, treasuryShares); err != nil {
			return fmt.Errorf("minting %s shares to treasury: %w", treasuryShares, err)
		}
	}

	logger.Info("Distributed earnings of %s wei: minted %s shares (%s to operators over %d validators, %s to treasury)",
		amount, sharesToMint, operatorRewards, totalValidators, treasuryShares)

	if d.Notifier != nil {
		ev := domain.EarningsDistributedEvent{
			Amount:          amount,
			SharesToMint:    sharesToMint,
			OperatorRewards: operatorRewards,
			TreasuryShares:  treasuryShares,
		}
		if err := d.Notifier.SendEarningsDistributedNot(ev); err != nil {
			logger.Warn("Error sending earnings distributed notification: %v", err)
		}
	}
	return nil
}

// feeShares computes the share-dilution fee mint:
//
//	amount * totalShares * fee / (balanceBefore * FeeBase - amount * fee)
//
// which mints exactly the number of shares whose post-mint value equals the
// fee's cut of the balance increase.
func feeShares(amount, balanceBefore, totalShares *big.Int, fee uint64) *big.Int {
	feeBig := new(big.Int).SetUint64(fee)
	num := new(big.Int).Mul(amount, totalShares)
	num.Mul(num, feeBig)

	den := new(big.Int).Mul(balanceBefore, feeBase)
	den.Sub(den, new(big.Int).Mul(amount, feeBig))
	if den.Sign() <= 0 {
		return new(big.Int)
	}
	return num.Quo(num, den)
}
