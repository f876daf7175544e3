package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dappnode/staking-pool-manager/internal/application/domain"
	"github.com/dappnode/staking-pool-manager/internal/application/ports"
	"github.com/dappnode/staking-pool-manager/internal/logger"
)

// Pool is the coordinator tying the registry, allocation engine, reward
// distributor and balance aggregator together. Operations touching the pool
// accounting run under one mutex, so they never observe each other's
// intermediate state; registry-only operations rely on the registry's own
// lock.
type Pool struct {
	Registry  *OperatorRegistry
	Allocator *Allocator
	Rewards   *RewardDistributor
	Balance   *BalanceAggregator
	Ledger    ports.LedgerPort
	AdminGate ports.AdminGatePort
	Storage   ports.RegistryStoragePort // optional

	mu    sync.Mutex
	state domain.PoolState
}

// NewPool builds a pool with the given initial fee configuration. Restore
// replaces it with persisted state when present.
func NewPool(registry *OperatorRegistry, allocator *Allocator, rewards *RewardDistributor, balance *BalanceAggregator,
	ledger ports.LedgerPort, adminGate ports.AdminGatePort, storage ports.RegistryStoragePort,
	globalFee, operatorShare uint64) (*Pool, error) {

	if globalFee > domain.FeeBase || operatorShare > domain.FeeBase {
		return nil, fmt.Errorf("fee fraction above %d: %w", domain.FeeBase, domain.ErrInvalidArgument)
	}
	return &Pool{
		Registry:  registry,
		Allocator: allocator,
		Rewards:   rewards,
		Balance:   balance,
		Ledger:    ledger,
		AdminGate: adminGate,
		Storage:   storage,
		state: domain.PoolState{
			BufferedBalance:      new(big.Int),
			GlobalFee:            globalFee,
			OperatorRewardsShare: operatorShare,
		},
	}, nil
}

// Restore loads the persisted registry and pool state.
func (p *Pool) Restore(ctx context.Context) error {
	if err := p.Registry.Restore(ctx); err != nil {
		return err
	}
	if p.Storage == nil {
		return nil
	}
	st, ok, err := p.Storage.LoadPoolState(ctx)
	if err != nil {
		return fmt.Errorf("loading pool state: %w", err)
	}
	if !ok {
		return nil
	}
	p.mu.Lock()
	p.state = st
	p.mu.Unlock()
	return nil
}

// State returns a copy of the current pool accounting.
func (p *Pool) State() domain.PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyState(p.state)
}

// OnDeposit is the deposit funnel hook: it credits the sender with shares for
// the deposited wei and grows the buffered balance. The deposit also moves
// the accounting point, so fresh deposits are never mistaken for earnings at
// the next oracle report.
func (p *Pool) OnDeposit(ctx context.Context, sender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("deposit amount must be positive: %w", domain.ErrInvalidArgument)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.Ledger.MintShares(ctx, sender, amount); err != nil {
		return fmt.Errorf("minting deposit shares: %w", err)
	}
	st := copyState(p.state)
	st.BufferedBalance.Add(st.BufferedBalance, amount)
	if st.LastReportedBalance != nil {
		st.LastReportedBalance.Add(st.LastReportedBalance, amount)
	}
	if err := p.saveState(ctx, st); err != nil {
		return err
	}
	logger.Info("Deposit of %s wei from %s, buffered balance now %s", amount, sender.Hex(), st.BufferedBalance)
	return nil
}

// DepositBuffered converts whole slot-sized chunks of the buffered balance
// into funded stake slots and returns the key material of the slots actually
// filled. Filling fewer slots than the buffer covers is fine; the unspent
// remainder stays buffered.
func (p *Pool) DepositBuffered(ctx context.Context) ([][]byte, [][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slots := new(big.Int).Quo(p.state.BufferedBalance, domain.SlotDepositSize).Uint64()
	if slots == 0 {
		return nil, nil, nil
	}

	pubkeys, signatures, err := p.Allocator.Allocate(ctx, slots)
	if err != nil {
		return nil, nil, err
	}
	filled := uint64(len(pubkeys))
	if filled == 0 {
		logger.Debug("No fundable operators for %d buffered slots", slots)
		return nil, nil, nil
	}

	spent := new(big.Int).Mul(new(big.Int).SetUint64(filled), domain.SlotDepositSize)
	st := copyState(p.state)
	st.BufferedBalance.Sub(st.BufferedBalance, spent)
	st.DepositedValidators += filled
	if err := p.saveState(ctx, st); err != nil {
		return nil, nil, err
	}
	logger.Info("Funded %d stake slots, %s wei left buffered", filled, st.BufferedBalance)
	return pubkeys, signatures, nil
}

// ProcessOracleReport recomputes the asset balance and distributes the growth
// beyond the previous accounting point as earnings. The first report only
// establishes the accounting point. A balance below the previous point is
// recorded without any minting; slashing losses dilute all holders equally.
func (p *Pool) ProcessOracleReport(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	balance, err := p.Balance.ComputeAssetBalance(ctx, p.state.BufferedBalance, p.state.DepositedValidators)
	if err != nil {
		return err
	}

	st := copyState(p.state)
	prev := st.LastReportedBalance
	st.LastReportedBalance = balance

	if prev == nil {
		logger.Info("First oracle report, accounting point set to %s wei", balance)
		return p.saveState(ctx, st)
	}
	if balance.Cmp(prev) < 0 {
		logger.Warn("Asset balance decreased from %s to %s wei, no earnings to distribute", prev, balance)
	}
	// The advanced accounting point is persisted before any minting, so a
	// distribution that fails partway is never replayed at the next report.
	if err := p.saveState(ctx, st); err != nil {
		return err
	}
	if balance.Cmp(prev) > 0 {
		earnings := new(big.Int).Sub(balance, prev)
		return p.Rewards.DistributeEarnings(ctx, earnings, prev, st.GlobalFee, st.OperatorRewardsShare)
	}
	return nil
}

// ReportStopped forwards an oracle-reported stopped count to the registry.
func (p *Pool) ReportStopped(ctx context.Context, name string, stopped uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Registry.ReportStopped(ctx, name, stopped)
}

// Administrative surface. Every operation checks the caller against the
// access control service first.

func (p *Pool) SetGlobalFee(ctx context.Context, caller common.Address, fee uint64) error {
	if err := p.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if fee > domain.FeeBase {
		return fmt.Errorf("global fee %d above %d: %w", fee, domain.FeeBase, domain.ErrInvalidArgument)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	st := copyState(p.state)
	st.GlobalFee = fee
	return p.saveState(ctx, st)
}

func (p *Pool) SetOperatorRewardsShare(ctx context.Context, caller common.Address, share uint64) error {
	if err := p.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if share > domain.FeeBase {
		return fmt.Errorf("operator rewards share %d above %d: %w", share, domain.FeeBase, domain.ErrInvalidArgument)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	st := copyState(p.state)
	st.OperatorRewardsShare = share
	return p.saveState(ctx, st)
}

// AddOperator registers a new operator. Registering an existing name is
// rejected; use the dedicated setters to change a record.
func (p *Pool) AddOperator(ctx context.Context, caller common.Address, name string, payout common.Address) (int, error) {
	if err := p.requireAdmin(ctx, caller); err != nil {
		return 0, err
	}
	if _, err := p.Registry.Get(name); err == nil {
		return 0, fmt.Errorf("operator %q already registered: %w", name, domain.ErrInvalidArgument)
	}
	return p.Registry.Set(ctx, name, domain.Operator{
		Name:          name,
		PayoutAddress: payout,
		Active:        true,
	})
}

func (p *Pool) SetOperatorActive(ctx context.Context, caller common.Address, name string, active bool) error {
	return p.updateOperator(ctx, caller, name, func(op *domain.Operator) {
		op.Active = active
	})
}

func (p *Pool) SetOperatorLimit(ctx context.Context, caller common.Address, name string, limit uint64) error {
	return p.updateOperator(ctx, caller, name, func(op *domain.Operator) {
		op.Limit = limit
	})
}

// AddOperatorKeys records that the operator supplied count more key pairs to
// the key store.
func (p *Pool) AddOperatorKeys(ctx context.Context, caller common.Address, name string, count uint64) error {
	return p.updateOperator(ctx, caller, name, func(op *domain.Operator) {
		op.Keys += count
	})
}

func (p *Pool) updateOperator(ctx context.Context, caller common.Address, name string, mutate func(*domain.Operator)) error {
	if err := p.requireAdmin(ctx, caller); err != nil {
		return err
	}
	op, err := p.Registry.Get(name)
	if err != nil {
		return err
	}
	mutate(&op)
	_, err = p.Registry.Set(ctx, name, op)
	return err
}

func (p *Pool) requireAdmin(ctx context.Context, caller common.Address) error {
	ok, err := p.AdminGate.IsAdmin(ctx, caller)
	if err != nil {
		return fmt.Errorf("checking admin status of %s: %w", caller.Hex(), err)
	}
	if !ok {
		return fmt.Errorf("caller %s: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

func (p *Pool) saveState(ctx context.Context, st domain.PoolState) error {
	if p.Storage != nil {
		if err := p.Storage.SavePoolState(ctx, st); err != nil {
			return fmt.Errorf("persisting pool state: %w", err)
		}
	}
	p.state = st
	return nil
}

func copyState(st domain.PoolState) domain.PoolState {
	out := st
	out.BufferedBalance = new(big.Int)
	if st.BufferedBalance != nil {
		out.BufferedBalance.Set(st.BufferedBalance)
	}
	if st.LastReportedBalance != nil {
		out.LastReportedBalance = new(big.Int).Set(st.LastReportedBalance)
	}
	return out
}
