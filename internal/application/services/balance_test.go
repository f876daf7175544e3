package services

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dappnode/staking-pool-manager/internal/application/domain"
)

func TestComputeAssetBalanceAllSlotsVisible(t *testing.T) {
	oracle := &fakeOracle{count: 3, balance: big.NewInt(900)}
	b := &BalanceAggregator{Oracle: oracle}

	total, err := b.ComputeAssetBalance(context.Background(), big.NewInt(100), 3)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), total)
}

func TestComputeAssetBalanceCountsSlotsInTransit(t *testing.T) {
	// Two funded slots the oracle has not seen yet are still part of the
	// managed value, at the fixed slot deposit size each.
	oracle := &fakeOracle{count: 1, balance: big.NewInt(900)}
	b := &BalanceAggregator{Oracle: oracle}

	total, err := b.ComputeAssetBalance(context.Background(), big.NewInt(100), 3)
	require.NoError(t, err)

	want := big.NewInt(1000)
	want.Add(want, new(big.Int).Mul(big.NewInt(2), domain.SlotDepositSize))
	assert.Equal(t, want, total)
}

func TestComputeAssetBalanceOracleAhead(t *testing.T) {
	// An oracle seeing more validators than we funded (should not happen,
	// but reports are external input) gets no negative correction.
	oracle := &fakeOracle{count: 5, balance: big.NewInt(900)}
	b := &BalanceAggregator{Oracle: oracle}

	total, err := b.ComputeAssetBalance(context.Background(), big.NewInt(100), 3)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), total)
}
