package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

// Operator is a registered node operator that supplies validator key material
// and runs the stake slots funded against it. Records are never deleted:
// deactivation is a reversible flag and the registry index assigned on first
// registration is stable for the lifetime of the record.
type Operator struct {
	Name          string         // unique identifier, primary key
	PayoutAddress common.Address // destination for this operator's reward shares
	Active        bool
	Limit         uint64 // admin-configured ceiling on slots this operator may run
	Keys          uint64 // validator key/signature pairs supplied to the key store
	Funded        uint64 // cumulative slots ever assigned, never decreases
	Stopped       uint64 // previously funded slots that have since exited, never decreases
}

// ActiveValidators returns the number of this operator's slots currently
// running on the staking layer.
func (o Operator) ActiveValidators() uint64 {
	if o.Stopped > o.Funded {
		return 0
	}
	return o.Funded - o.Stopped
}

// Capacity returns how many more slots the operator can absorb before hitting
// its supplied key material or its administrative limit.
func (o Operator) Capacity() uint64 {
	max := o.Keys
	if o.Limit < max {
		max = o.Limit
	}
	if o.Funded >= max {
		return 0
	}
	return max - o.Funded
}

// Fundable reports whether the operator qualifies for new slot assignments:
// active, with unused supplied keys and room under its administrative limit.
func (o Operator) Fundable() bool {
	active := o.ActiveValidators()
	return o.Active && o.Keys > active && o.Limit > active
}
