package core

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"runclub/native/runclub"
	"runclub/native/token"
)

// Bootstrap seeds the club counter and registers the stable asset on an empty
// store. Running it again is a no-op.
func (r *Runtime) Bootstrap(ctx context.Context, meta token.Metadata) error {
	meta.Symbol = r.symbol
	err := r.Execute(ctx, OpInitialize, nil, func(call *Call) error {
		if err := call.Clubs.Initialize(); err != nil {
			return err
		}
		return call.Tokens.Register(meta)
	})
	if errors.Is(err, runclub.ErrAlreadyInitialized) {
		return nil
	}
	return err
}

// FundClub moves amount from the organizer into the club vault and credits
// the club pool in the same call.
func (r *Runtime) FundClub(ctx context.Context, signers SignerSet, clubID uint64, organizer [20]byte, amount *big.Int) error {
	return r.Execute(ctx, OpFundClub, signers, func(call *Call) error {
		if err := call.Tokens.Transfer(organizer, runclub.VaultAddress(clubID), amount); err != nil {
			return fmt.Errorf("fund vault: %w", err)
		}
		return call.Clubs.DepositFunds(clubID, organizer, amount)
	})
}

// RedeemAndPay redeems the user's KM tokens and pays the reward from the club
// vault to destination.
func (r *Runtime) RedeemAndPay(ctx context.Context, signers SignerSet, clubID uint64, user, destination [20]byte) (*big.Int, error) {
	var reward *big.Int
	err := r.Execute(ctx, OpRedeem, signers, func(call *Call) error {
		amount, err := call.Clubs.Redeem(clubID, user, destination)
		if err != nil {
			return err
		}
		if err := call.Tokens.Move(runclub.VaultAddress(clubID), destination, amount); err != nil {
			return fmt.Errorf("pay reward: %w", err)
		}
		reward = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.metrics.RecordRedeemed(r.symbol, reward)
	return reward, nil
}
