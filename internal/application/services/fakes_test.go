package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dappnode/staking-pool-manager/internal/application/domain"
	"github.com/dappnode/staking-pool-manager/internal/application/ports"
)

// In-memory fakes for the collaborator ports.

type fakeKeyStore struct {
	calls []string
}

func (f *fakeKeyStore) FetchKeys(_ context.Context, name string, offset, count uint64) ([][]byte, [][]byte, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s/%d/%d", name, offset, count))
	var pubkeys, sigs [][]byte
	for i := uint64(0); i < count; i++ {
		pubkeys = append(pubkeys, []byte(fmt.Sprintf("%s-key-%d", name, offset+i)))
		sigs = append(sigs, []byte(fmt.Sprintf("%s-sig-%d", name, offset+i)))
	}
	return pubkeys, sigs, nil
}

type mint struct {
	account common.Address
	amount  *big.Int
	raw     bool
}

type fakeLedger struct {
	total       *big.Int
	mints       []mint
	rawMintErrs map[common.Address]error // consumed on the first matching raw mint
}

func newFakeLedger(total int64) *fakeLedger {
	return &fakeLedger{total: big.NewInt(total)}
}

func (f *fakeLedger) MintShares(_ context.Context, account common.Address, amount *big.Int) error {
	f.mints = append(f.mints, mint{account: account, amount: new(big.Int).Set(amount)})
	return nil
}

func (f *fakeLedger) MintRawShares(_ context.Context, account common.Address, rawAmount *big.Int) error {
	if err, ok := f.rawMintErrs[account]; ok {
		delete(f.rawMintErrs, account)
		return err
	}
	f.mints = append(f.mints, mint{account: account, amount: new(big.Int).Set(rawAmount), raw: true})
	return nil
}

func (f *fakeLedger) TotalShares(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.total), nil
}

func (f *fakeLedger) mintedTo(account common.Address) *big.Int {
	sum := new(big.Int)
	for _, m := range f.mints {
		if m.account == account {
			sum.Add(sum, m.amount)
		}
	}
	return sum
}

func (f *fakeLedger) totalMinted() *big.Int {
	sum := new(big.Int)
	for _, m := range f.mints {
		sum.Add(sum, m.amount)
	}
	return sum
}

type fakeOracle struct {
	count   uint64
	balance *big.Int
	stopped map[string]uint64
}

func (f *fakeOracle) ReportedValidatorCount(context.Context) (uint64, error) {
	return f.count, nil
}

func (f *fakeOracle) ReportedBalanceSum(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeOracle) ReportedStoppedCounts(context.Context) (map[string]uint64, error) {
	return f.stopped, nil
}

type fakeAdminGate struct {
	admins map[common.Address]bool
}

func (f *fakeAdminGate) IsAdmin(_ context.Context, caller common.Address) (bool, error) {
	return f.admins[caller], nil
}

type fakeNotifier struct {
	funded   []domain.OperatorFundedEvent
	earnings []domain.EarningsDistributedEvent
}

func (f *fakeNotifier) SendOperatorFundedNot(ev domain.OperatorFundedEvent) error {
	f.funded = append(f.funded, ev)
	return nil
}

func (f *fakeNotifier) SendEarningsDistributedNot(ev domain.EarningsDistributedEvent) error {
	f.earnings = append(f.earnings, ev)
	return nil
}

type memStorage struct {
	ops      map[int]domain.Operator
	state    *domain.PoolState
	batchErr error // fails UpsertOperators before any record is written
}

func newMemStorage() *memStorage {
	return &memStorage{ops: make(map[int]domain.Operator)}
}

func (m *memStorage) UpsertOperator(_ context.Context, index int, op domain.Operator) error {
	m.ops[index] = op
	return nil
}

func (m *memStorage) UpsertOperators(_ context.Context, records []ports.OperatorRecord) error {
	if m.batchErr != nil {
		return m.batchErr
	}
	for _, rec := range records {
		m.ops[rec.Index] = rec.Operator
	}
	return nil
}

func (m *memStorage) LoadOperators(context.Context) ([]domain.Operator, error) {
	ops := make([]domain.Operator, len(m.ops))
	for i, op := range m.ops {
		ops[i] = op
	}
	return ops, nil
}

func (m *memStorage) SavePoolState(_ context.Context, st domain.PoolState) error {
	m.state = &st
	return nil
}

func (m *memStorage) LoadPoolState(context.Context) (domain.PoolState, bool, error) {
	if m.state == nil {
		return domain.PoolState{}, false, nil
	}
	return *m.state, true, nil
}
