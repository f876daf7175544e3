package ports

import (
	"context"

	"github.com/dappnode/staking-pool-manager/internal/application/domain"
)

// OperatorRecord pairs an operator with its registry index for batch writes.
type OperatorRecord struct {
	Index    int
	Operator domain.Operator
}

// RegistryStoragePort persists operator records and pool-level accounting so
// the engine can restore its state across restarts.
type RegistryStoragePort interface {
	// UpsertOperator writes the record held at the given registry index.
	UpsertOperator(ctx context.Context, index int, op domain.Operator) error

	// UpsertOperators writes a batch of records atomically: either every
	// record lands or none does.
	UpsertOperators(ctx context.Context, records []OperatorRecord) error

	// LoadOperators returns all persisted operators ordered by registry
	// index, with no gaps.
	LoadOperators(ctx context.Context) ([]domain.Operator, error)

	// SavePoolState overwrites the single persisted pool state row.
	SavePoolState(ctx context.Context, st domain.PoolState) error

	// LoadPoolState returns the persisted pool state. The second return is
	// false when no state has been saved yet.
	LoadPoolState(ctx context.Context) (domain.PoolState, bool, error)
}
