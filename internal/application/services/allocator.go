package services

import (
	"context"
	"fmt"

	"github.com/dappnode/staking-pool-manager/internal/application/domain"
	"github.com/dappnode/staking-pool-manager/internal/application/ports"
	"github.com/dappnode/staking-pool-manager/internal/logger"
)

// Allocator assigns newly funded stake slots to node operators, always
// favouring the least-funded fundable operator so funding skew stays minimal
// over time. Key material for each assignment comes from the key store.
type Allocator struct {
	Registry *OperatorRegistry
	KeyStore ports.KeyStorePort
	Notifier ports.NotifierPort // optional
}

// Assignment is one contiguous run of slots given to a single operator.
// Offset is the operator's funded count before the run, which is also the
// key-store offset of the first key consumed by it.
type Assignment struct {
	Index  int
	Name   string
	Offset uint64
	Count  uint64
}

// Allocate funds up to requested stake slots and returns the validator
// public key and signature for each funded slot, in funding order. Fewer
// pairs than requested (including none) is a valid outcome: the caller gets
// whatever the fundable operators could absorb. A zero request returns two
// empty lists.
func (a *Allocator) Allocate(ctx context.Context, requested uint64) ([][]byte, [][]byte, error) {
	plan := planAssignments(a.Registry.Snapshot(), requested)
	if len(plan) == 0 {
		return nil, nil, nil
	}

	var pubkeys, signatures [][]byte
	for _, asg := range plan {
		pk, sig, err := a.KeyStore.FetchKeys(ctx, asg.Name, asg.Offset, asg.Count)
		if err != nil {
			return nil, nil, fmt.Errorf("fetching %d keys for %q at offset %d: %w", asg.Count, asg.Name, asg.Offset, err)
		}
		if uint64(len(pk)) != asg.Count || uint64(len(sig)) != asg.Count {
			return nil, nil, fmt.Errorf("key store returned %d keys and %d signatures for %q, want %d", len(pk), len(sig), asg.Name, asg.Count)
		}
		pubkeys = append(pubkeys, pk...)
		signatures = append(signatures, sig...)
	}

	updated, err := a.Registry.ApplyAssignments(ctx, plan)
	if err != nil {
		return nil, nil, err
	}

	for _, op := range updated {
		logger.Info("Funded %q up to %d slots", op.Name, op.Funded)
		if a.Notifier == nil {
			continue
		}
		ev := domain.OperatorFundedEvent{Name: op.Name, NewFunded: op.Funded}
		if err := a.Notifier.SendOperatorFundedNot(ev); err != nil {
			logger.Warn("Error sending operator funded notification for %q: %v", op.Name, err)
		}
	}
	return pubkeys, signatures, nil
}

// planAssignments walks the allocation one slot at a time over a working copy
// of the operator set: each step re-derives the fundable set from the updated
// copy and gives the next slot to the least-funded operator, ties broken by
// lowest registry index. One slot per step keeps the funded spread across
// equally-situated operators within one. Consecutive picks of the same
// operator coalesce into a single assignment run.
func planAssignments(ops []domain.Operator, requested uint64) []Assignment {
	var plan []Assignment
	for remaining := requested; remaining > 0; remaining-- {
		best := -1
		for i, op := range ops {
			// A fundable operator with exited slots can still be out of
			// fresh key material; it must never be picked.
			if !op.Fundable() || op.Capacity() == 0 {
				continue
			}
			if best < 0 || op.Funded < ops[best].Funded {
				best = i
			}
		}
		if best < 0 {
			break
		}
		if n := len(plan); n > 0 && plan[n-1].Index == best {
			plan[n-1].Count++
		} else {
			plan = append(plan, Assignment{
				Index:  best,
				Name:   ops[best].Name,
				Offset: ops[best].Funded,
				Count:  1,
			})
		}
		ops[best].Funded++
	}
	return plan
}

// FundedKeys returns the hex-encoded pubkeys of every funded slot, grouped by
// operator name. It implements ports.FundedKeySource for the beacon oracle.
func (a *Allocator) FundedKeys(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, op := range a.Registry.Snapshot() {
		if op.Funded == 0 {
			continue
		}
		pks, _, err := a.KeyStore.FetchKeys(ctx, op.Name, 0, op.Funded)
		if err != nil {
			return nil, fmt.Errorf("fetching funded keys for %q: %w", op.Name, err)
		}
		keys := make([]string, 0, len(pks))
		for _, pk := range pks {
			keys = append(keys, fmt.Sprintf("0x%x", pk))
		}
		out[op.Name] = keys
	}
	return out, nil
}
