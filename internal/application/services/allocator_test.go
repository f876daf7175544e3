package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dappnode/staking-pool-manager/internal/application/domain"
)

func newTestAllocator(t *testing.T, ops ...domain.Operator) (*Allocator, *OperatorRegistry, *fakeNotifier) {
	t.Helper()
	r := NewOperatorRegistry(nil)
	for _, op := range ops {
		_, err := r.Set(context.Background(), op.Name, op)
		require.NoError(t, err)
	}
	n := &fakeNotifier{}
	return &Allocator{Registry: r, KeyStore: &fakeKeyStore{}, Notifier: n}, r, n
}

func fundedOf(t *testing.T, r *OperatorRegistry, name string) uint64 {
	t.Helper()
	op, err := r.Get(name)
	require.NoError(t, err)
	return op.Funded
}

func TestAllocateZeroRequest(t *testing.T) {
	a, _, _ := newTestAllocator(t, domain.Operator{Name: "a", Active: true, Limit: 5, Keys: 5})
	pub, sig, err := a.Allocate(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pub)
	assert.Empty(t, sig)
}

func TestAllocateNoFundableOperators(t *testing.T) {
	a, _, _ := newTestAllocator(t,
		domain.Operator{Name: "off", Active: false, Limit: 5, Keys: 5},
		domain.Operator{Name: "full", Active: true, Limit: 3, Keys: 3, Funded: 3},
	)
	pub, sig, err := a.Allocate(context.Background(), 4)
	require.NoError(t, err)
	assert.Empty(t, pub)
	assert.Empty(t, sig)
	assert.Equal(t, uint64(3), fundedOf(t, a.Registry, "full"))
}

// Three operators: A can take 10, B can take 5, C is inactive. A request of
// 12 alternates between A and B until B saturates, leaving A=7 and B=5.
func TestAllocateBalancesAcrossOperators(t *testing.T) {
	a, r, n := newTestAllocator(t,
		domain.Operator{Name: "A", Active: true, Limit: 10, Keys: 10},
		domain.Operator{Name: "B", Active: true, Limit: 5, Keys: 5},
		domain.Operator{Name: "C", Active: false, Limit: 10, Keys: 10},
	)

	pub, sig, err := a.Allocate(context.Background(), 12)
	require.NoError(t, err)
	assert.Len(t, pub, 12)
	assert.Len(t, sig, 12)

	assert.Equal(t, uint64(7), fundedOf(t, r, "A"))
	assert.Equal(t, uint64(5), fundedOf(t, r, "B"))
	assert.Equal(t, uint64(0), fundedOf(t, r, "C"))

	// Key material is fetched per contiguous run at the operator's funded
	// offset, so the batch is auditable against the key store.
	assert.Equal(t, []byte("A-key-0"), pub[0])
	assert.Equal(t, []byte("A-sig-0"), sig[0])

	// One funded event per assignment run, carrying the new funded count.
	require.NotEmpty(t, n.funded)
	last := n.funded[len(n.funded)-1]
	assert.Equal(t, uint64(7), last.NewFunded)
}

func TestAllocatePartialFulfillment(t *testing.T) {
	a, r, _ := newTestAllocator(t,
		domain.Operator{Name: "A", Active: true, Limit: 4, Keys: 10},
		domain.Operator{Name: "B", Active: true, Limit: 10, Keys: 3},
	)

	// Total capacity is 4+3=7, request 20: every operator saturates.
	pub, _, err := a.Allocate(context.Background(), 20)
	require.NoError(t, err)
	assert.Len(t, pub, 7)
	assert.Equal(t, uint64(4), fundedOf(t, r, "A"))
	assert.Equal(t, uint64(3), fundedOf(t, r, "B"))
}

func TestAllocateCompleteness(t *testing.T) {
	a, r, _ := newTestAllocator(t,
		domain.Operator{Name: "A", Active: true, Limit: 6, Keys: 6},
		domain.Operator{Name: "B", Active: true, Limit: 6, Keys: 6},
		domain.Operator{Name: "C", Active: true, Limit: 6, Keys: 6},
	)

	before := r.TotalFunded()
	pub, sig, err := a.Allocate(context.Background(), 11)
	require.NoError(t, err)
	assert.Len(t, pub, 11)
	assert.Len(t, sig, 11)
	assert.Equal(t, before+11, r.TotalFunded())
}

// Operators starting equal must never drift apart by more than one slot.
func TestAllocateFairness(t *testing.T) {
	a, r, _ := newTestAllocator(t,
		domain.Operator{Name: "A", Active: true, Limit: 20, Keys: 20},
		domain.Operator{Name: "B", Active: true, Limit: 20, Keys: 20},
		domain.Operator{Name: "C", Active: true, Limit: 20, Keys: 20},
	)

	for _, req := range []uint64{1, 2, 5, 7} {
		_, _, err := a.Allocate(context.Background(), req)
		require.NoError(t, err)

		min, max := fundedOf(t, r, "A"), fundedOf(t, r, "A")
		for _, name := range []string{"B", "C"} {
			f := fundedOf(t, r, name)
			if f < min {
				min = f
			}
			if f > max {
				max = f
			}
		}
		assert.LessOrEqual(t, max-min, uint64(1), "spread after request of %d", req)
	}
}

func TestAllocateTieBreaksByRegistrationOrder(t *testing.T) {
	a, r, _ := newTestAllocator(t,
		domain.Operator{Name: "first", Active: true, Limit: 5, Keys: 5},
		domain.Operator{Name: "second", Active: true, Limit: 5, Keys: 5},
	)

	pub, _, err := a.Allocate(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, pub, 1)
	assert.Equal(t, uint64(1), fundedOf(t, r, "first"))
	assert.Equal(t, uint64(0), fundedOf(t, r, "second"))
}

func TestAllocateSkipsExhaustedKeyMaterial(t *testing.T) {
	// Exited slots keep the operator fundable by the view's definition, but
	// its key material is spent: it must not receive new assignments.
	a, r, _ := newTestAllocator(t,
		domain.Operator{Name: "spent", Active: true, Limit: 10, Keys: 5, Funded: 5, Stopped: 3},
		domain.Operator{Name: "fresh", Active: true, Limit: 10, Keys: 10},
	)

	pub, _, err := a.Allocate(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, pub, 3)
	assert.Equal(t, uint64(5), fundedOf(t, r, "spent"))
	assert.Equal(t, uint64(3), fundedOf(t, r, "fresh"))
}

func TestAllocateResumesAtFundedOffset(t *testing.T) {
	ks := &fakeKeyStore{}
	r := NewOperatorRegistry(nil)
	_, err := r.Set(context.Background(), "A", domain.Operator{Name: "A", Active: true, Limit: 10, Keys: 10, Funded: 4})
	require.NoError(t, err)
	a := &Allocator{Registry: r, KeyStore: ks}

	pub, _, err := a.Allocate(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, pub, 2)
	assert.Equal(t, []byte("A-key-4"), pub[0])
	assert.Equal(t, []byte("A-key-5"), pub[1])
	assert.Equal(t, []string{"A/4/2"}, ks.calls)
}

func TestAllocateFailedPersistLeavesRegistryUntouched(t *testing.T) {
	storage := newMemStorage()
	r := NewOperatorRegistry(storage)
	ctx := context.Background()
	_, err := r.Set(ctx, "A", domain.Operator{Active: true, Limit: 5, Keys: 5})
	require.NoError(t, err)
	_, err = r.Set(ctx, "B", domain.Operator{Active: true, Limit: 5, Keys: 5})
	require.NoError(t, err)
	a := &Allocator{Registry: r, KeyStore: &fakeKeyStore{}}

	// A storage failure must discard the whole round: no funded increments
	// may survive, or the matching key-store offsets would be lost for good.
	storage.batchErr = errors.New("disk I/O error")
	pub, sig, err := a.Allocate(ctx, 2)
	require.Error(t, err)
	assert.Empty(t, pub)
	assert.Empty(t, sig)

	for _, name := range []string{"A", "B"} {
		assert.Equal(t, uint64(0), fundedOf(t, r, name))
	}
	for _, op := range storage.ops {
		assert.Equal(t, uint64(0), op.Funded)
	}

	// The same round succeeds once storage recovers.
	storage.batchErr = nil
	pub, _, err = a.Allocate(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, pub, 2)
	assert.Equal(t, []byte("A-key-0"), pub[0])
}

func TestPlanAssignmentsCoalescesRuns(t *testing.T) {
	ops := []domain.Operator{
		{Name: "A", Active: true, Limit: 10, Keys: 10, Funded: 2},
		{Name: "B", Active: true, Limit: 10, Keys: 10, Funded: 0},
	}

	// B catches up to A first (2 slots), then they alternate.
	plan := planAssignments(ops, 4)
	require.Len(t, plan, 3)
	assert.Equal(t, Assignment{Index: 1, Name: "B", Offset: 0, Count: 2}, plan[0])
	assert.Equal(t, Assignment{Index: 0, Name: "A", Offset: 2, Count: 1}, plan[1])
	assert.Equal(t, Assignment{Index: 1, Name: "B", Offset: 2, Count: 1}, plan[2])
}
