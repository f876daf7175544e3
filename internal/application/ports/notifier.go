package ports

import "github.com/dappnode/staking-pool-manager/internal/application/domain"

// NotifierPort publishes audit events. Delivery failures are not fatal to the
// operation that produced the event.
type NotifierPort interface {
	SendOperatorFundedNot(ev domain.OperatorFundedEvent) error
	SendEarningsDistributedNot(ev domain.EarningsDistributedEvent) error
}
