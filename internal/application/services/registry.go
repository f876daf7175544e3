package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/dappnode/staking-pool-manager/internal/application/domain"
	"github.com/dappnode/staking-pool-manager/internal/application/ports"
)

// OperatorRegistry keeps the node operator records. Lookups by name go
// through a name-to-index table; all hot-path iteration is positional over
// the backing slice. An operator's index is assigned on first Set and never
// changes, and records are never removed: Active=false is the only
// terminal-like state and it is reversible.
//
// Mutations are written through to the storage port when one is configured;
// a failed write aborts the mutation.
type OperatorRegistry struct {
	mu      sync.RWMutex
	ops     []domain.Operator
	byName  map[string]int
	storage ports.RegistryStoragePort
}

// FundableOperator pairs a fundable operator snapshot with its registry
// index so updates can be written back unambiguously.
type FundableOperator struct {
	domain.Operator
	Index int
}

func NewOperatorRegistry(storage ports.RegistryStoragePort) *OperatorRegistry {
	return &OperatorRegistry{
		byName:  make(map[string]int),
		storage: storage,
	}
}

// Restore loads the persisted operator set, preserving registry indices.
func (r *OperatorRegistry) Restore(ctx context.Context) error {
	if r.storage == nil {
		return nil
	}
	ops, err := r.storage.LoadOperators(ctx)
	if err != nil {
		return fmt.Errorf("loading operators: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = ops
	r.byName = make(map[string]int, len(ops))
	for i, op := range ops {
		r.byName[op.Name] = i
	}
	return nil
}

// Get returns the operator registered under name. Inactive operators are
// still returned; only the view methods filter on the active flag.
func (r *OperatorRegistry) Get(name string) (domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[name]
	if !ok {
		return domain.Operator{}, fmt.Errorf("%q: %w", name, domain.ErrOperatorNotFound)
	}
	return r.ops[i], nil
}

// GetByIndex returns the operator at a registry index, active or not.
func (r *OperatorRegistry) GetByIndex(index int) (domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.ops) {
		return domain.Operator{}, fmt.Errorf("index %d: %w", index, domain.ErrOperatorNotFoundAtIndex)
	}
	return r.ops[index], nil
}

// Count returns the number of ever-registered operators, active or not.
func (r *OperatorRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}

// AllActive returns a snapshot of all active operators in registration order.
func (r *OperatorRegistry) AllActive() []domain.Operator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Operator
	for _, op := range r.ops {
		if op.Active {
			out = append(out, op)
		}
	}
	return out
}

// AllFundable returns a snapshot of operators eligible for new slot
// assignments, paired with their registry indices.
func (r *OperatorRegistry) AllFundable() []FundableOperator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []FundableOperator
	for i, op := range r.ops {
		if op.Fundable() {
			out = append(out, FundableOperator{Operator: op, Index: i})
		}
	}
	return out
}

// Snapshot returns a copy of the full operator list in index order.
func (r *OperatorRegistry) Snapshot() []domain.Operator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Operator, len(r.ops))
	copy(out, r.ops)
	return out
}

// TotalFunded returns the sum of funded slot counts across all operators.
func (r *OperatorRegistry) TotalFunded() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total uint64
	for _, op := range r.ops {
		total += op.Funded
	}
	return total
}

// Set inserts or updates the record registered under name and returns its
// registry index. The first call for a name appends; later calls overwrite
// the record in place without moving it.
func (r *OperatorRegistry) Set(ctx context.Context, name string, op domain.Operator) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("empty operator name: %w", domain.ErrInvalidArgument)
	}
	op.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byName[name]
	if !ok {
		i = len(r.ops)
	}
	if err := r.persist(ctx, i, op); err != nil {
		return 0, err
	}
	if !ok {
		r.ops = append(r.ops, op)
		r.byName[name] = i
	} else {
		r.ops[i] = op
	}
	return i, nil
}

// ReportStopped applies an oracle-reported stopped count. Stopped counts are
// monotonic, so reports below the current value are ignored, and a report can
// never exceed the funded count.
func (r *OperatorRegistry) ReportStopped(ctx context.Context, name string, stopped uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, domain.ErrOperatorNotFound)
	}
	op := r.ops[i]
	if stopped <= op.Stopped {
		return nil
	}
	if stopped > op.Funded {
		stopped = op.Funded
	}
	op.Stopped = stopped
	if err := r.persist(ctx, i, op); err != nil {
		return err
	}
	r.ops[i] = op
	return nil
}

// ApplyAssignments commits the funded increments produced by an allocation
// round and returns the updated records in assignment order. The whole batch
// is validated against the live state and persisted in one atomic write
// before any record changes, so a bad plan or a storage failure leaves the
// registry untouched in memory and on disk.
func (r *OperatorRegistry) ApplyAssignments(ctx context.Context, assignments []Assignment) ([]domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := make(map[int]uint64)
	for _, a := range assignments {
		if a.Index < 0 || a.Index >= len(r.ops) {
			return nil, fmt.Errorf("index %d: %w", a.Index, domain.ErrOperatorNotFoundAtIndex)
		}
		added[a.Index] += a.Count
	}
	updated := make(map[int]domain.Operator, len(added))
	for i, count := range added {
		op := r.ops[i]
		if !op.Active {
			return nil, fmt.Errorf("assigning %d slots to deactivated operator %q: %w", count, op.Name, domain.ErrInvalidArgument)
		}
		if count > op.Capacity() {
			return nil, fmt.Errorf("assigning %d slots to %q exceeds capacity %d: %w", count, op.Name, op.Capacity(), domain.ErrInvalidArgument)
		}
		op.Funded += count
		updated[i] = op
	}

	if r.storage != nil {
		records := make([]ports.OperatorRecord, 0, len(updated))
		seen := make(map[int]bool, len(updated))
		for _, a := range assignments {
			if seen[a.Index] {
				continue
			}
			seen[a.Index] = true
			records = append(records, ports.OperatorRecord{Index: a.Index, Operator: updated[a.Index]})
		}
		if err := r.storage.UpsertOperators(ctx, records); err != nil {
			return nil, fmt.Errorf("persisting allocation batch: %w", err)
		}
	}

	out := make([]domain.Operator, 0, len(assignments))
	for _, a := range assignments {
		op := r.ops[a.Index]
		op.Funded += a.Count
		r.ops[a.Index] = op
		out = append(out, op)
	}
	return out, nil
}

func (r *OperatorRegistry) persist(ctx context.Context, index int, op domain.Operator) error {
	if r.storage == nil {
		return nil
	}
	if err := r.storage.UpsertOperator(ctx, index, op); err != nil {
		return fmt.Errorf("persisting operator %q: %w", op.Name, err)
	}
	return nil
}
