package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// AdminGatePort is the external access-control service guarding
// administrative operations.
type AdminGatePort interface {
	IsAdmin(ctx context.Context, caller common.Address) (bool, error)
}
