package genesis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"runclub/core"
	"runclub/native/runclub"
	"runclub/native/token"
)

func sortAllocations(alloc []allocation) {
	sort.Slice(alloc, func(i, j int) bool {
		return bytes.Compare(alloc[i].addr[:], alloc[j].addr[:]) < 0
	})
}

// Apply bootstraps an empty store: seeds the club counter, registers the
// stable asset, mints the allocations and creates the seed clubs in one call.
// It returns false without writing anything when the store was already
// initialised.
func Apply(ctx context.Context, rt *core.Runtime, spec *Spec, meta token.Metadata) (bool, error) {
	if rt == nil || spec == nil {
		return false, fmt.Errorf("genesis: runtime and spec must not be nil")
	}
	meta.Symbol = rt.Symbol()
	meta.Admin = spec.admin

	signers := core.NewSignerSet(spec.admin)
	for _, club := range spec.Clubs {
		signers[club.organizer] = struct{}{}
		for _, member := range club.members {
			signers[member] = struct{}{}
		}
	}

	err := rt.Execute(ctx, core.OpInitialize, signers, func(call *core.Call) error {
		if err := call.Clubs.Initialize(); err != nil {
			return err
		}
		if err := call.Tokens.Register(meta); err != nil {
			return fmt.Errorf("register %s: %w", meta.Symbol, err)
		}
		for _, alloc := range spec.alloc {
			if alloc.amount.Sign() == 0 {
				continue
			}
			if err := call.Tokens.Mint(spec.admin, alloc.addr, alloc.amount); err != nil {
				return fmt.Errorf("mint to 0x%x: %w", alloc.addr, err)
			}
		}
		for i, club := range spec.Clubs {
			if err := seedClub(call, &club); err != nil {
				return fmt.Errorf("club[%d] %q: %w", i, club.Name, err)
			}
		}
		return nil
	})
	if errors.Is(err, runclub.ErrAlreadyInitialized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func seedClub(call *core.Call, club *ClubSpec) error {
	id, err := call.Clubs.CreateClub(club.organizer, club.Name, club.rate, club.rule, club.DurationDays)
	if err != nil {
		return err
	}
	for _, member := range club.members {
		if err := call.Clubs.AddMember(id, member); err != nil {
			return err
		}
	}
	if club.deposit.Sign() == 0 {
		return nil
	}
	if err := call.Tokens.Transfer(club.organizer, runclub.VaultAddress(id), club.deposit); err != nil {
		return err
	}
	return call.Clubs.DepositFunds(id, club.organizer, club.deposit)
}
