package core

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"runclub/core/events"
	"runclub/native/common"
	"runclub/native/runclub"
	"runclub/native/token"
	"runclub/storage"
)

var (
	admin     = [20]byte{0xAD}
	organizer = [20]byte{0x0A}
	alice     = [20]byte{0x01}
	bob       = [20]byte{0x02}
	wallet    = [20]byte{0xEE}
)

type pauses map[string]bool

func (p pauses) IsPaused(module string) bool { return p[module] }

type harness struct {
	rt    *Runtime
	db    *storage.MemDB
	clock uint64
	sink  *events.Buffer
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{db: storage.NewMemDB(), clock: 1_000, sink: &events.Buffer{}}
	t.Cleanup(h.db.Close)
	base := []Option{WithClock(func() uint64 { return h.clock }), WithEmitter(h.sink)}
	rt, err := NewRuntime(h.db, "usdc", append(base, opts...)...)
	require.NoError(t, err)
	h.rt = rt
	ctx := context.Background()
	require.NoError(t, rt.Bootstrap(ctx, token.Metadata{Name: "USD Coin", Decimals: 6, Admin: admin}))
	require.NoError(t, rt.Execute(ctx, OpMint, NewSignerSet(admin), func(call *Call) error {
		return call.Tokens.Mint(admin, organizer, big.NewInt(1_000))
	}))
	h.sink.Reset()
	return h
}

func (h *harness) createClub(t *testing.T, rule runclub.WithdrawalRule, members ...[20]byte) uint64 {
	t.Helper()
	var id uint64
	signers := NewSignerSet(append([][20]byte{organizer}, members...)...)
	require.NoError(t, h.rt.Execute(context.Background(), OpCreateClub, signers, func(call *Call) error {
		var err error
		id, err = call.Clubs.CreateClub(organizer, "Harbour Runners", big.NewInt(1), rule, 1)
		if err != nil {
			return err
		}
		for _, member := range members {
			if err := call.Clubs.AddMember(id, member); err != nil {
				return err
			}
		}
		return nil
	}))
	return id
}

func (h *harness) balance(t *testing.T, addr [20]byte) int64 {
	t.Helper()
	var out int64
	require.NoError(t, h.rt.View(context.Background(), func(call *Call) error {
		b, err := call.Tokens.Balance(addr)
		out = b.Int64()
		return err
	}))
	return out
}

func (h *harness) pool(t *testing.T, id uint64) int64 {
	t.Helper()
	var out int64
	require.NoError(t, h.rt.View(context.Background(), func(call *Call) error {
		club, err := call.Clubs.Club(id)
		if err != nil {
			return err
		}
		out = club.USDCDeposited.Int64()
		return nil
	}))
	return out
}

func TestBootstrapIsIdempotent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.rt.Bootstrap(context.Background(), token.Metadata{Name: "USD Coin", Admin: admin}))
	require.Equal(t, int64(1_000), h.balance(t, organizer))
}

func TestFailedCallWritesNothing(t *testing.T) {
	h := newHarness(t)
	id := h.createClub(t, runclub.WithdrawalRuleEqual)
	h.sink.Reset()
	keys := h.db.Len()

	boom := errors.New("boom")
	err := h.rt.Execute(context.Background(), OpAddMember, NewSignerSet(alice), func(call *Call) error {
		require.NoError(t, call.Clubs.AddMember(id, alice))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, keys, h.db.Len())
	require.Empty(t, h.sink.Events(), "events of a rolled back call must not be delivered")

	var members [][20]byte
	require.NoError(t, h.rt.View(context.Background(), func(call *Call) error {
		var err error
		members, err = call.Clubs.Members(id)
		return err
	}))
	require.Empty(t, members)
}

func TestFundClubIsAtomic(t *testing.T) {
	h := newHarness(t)
	id := h.createClub(t, runclub.WithdrawalRuleEqual, alice)

	// bob signs but is not the organizer: the transfer half must roll back.
	require.NoError(t, h.rt.Execute(context.Background(), OpMint, NewSignerSet(admin), func(call *Call) error {
		return call.Tokens.Mint(admin, bob, big.NewInt(50))
	}))
	err := h.rt.Execute(context.Background(), OpFundClub, NewSignerSet(bob), func(call *Call) error {
		if err := call.Tokens.Transfer(bob, runclub.VaultAddress(id), big.NewInt(50)); err != nil {
			return err
		}
		return call.Clubs.DepositFunds(id, bob, big.NewInt(50))
	})
	require.ErrorIs(t, err, runclub.ErrNotAuthorized)
	require.Equal(t, int64(50), h.balance(t, bob))
	require.Zero(t, h.balance(t, runclub.VaultAddress(id)))

	err = h.rt.FundClub(context.Background(), NewSignerSet(organizer), id, organizer, big.NewInt(5_000))
	require.ErrorIs(t, err, token.ErrInsufficientBalance)
	require.Zero(t, h.pool(t, id))

	require.NoError(t, h.rt.FundClub(context.Background(), NewSignerSet(organizer), id, organizer, big.NewInt(300)))
	require.Equal(t, int64(300), h.pool(t, id))
	require.Equal(t, int64(300), h.balance(t, runclub.VaultAddress(id)))
	require.Equal(t, int64(700), h.balance(t, organizer))
}

func TestRedeemAndPayConservesVault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createClub(t, runclub.WithdrawalRuleUnlimited, alice, bob)
	require.NoError(t, h.rt.FundClub(ctx, NewSignerSet(organizer), id, organizer, big.NewInt(100)))
	require.NoError(t, h.rt.Execute(ctx, OpAddKm, nil, func(call *Call) error {
		if err := call.Clubs.AddKmTokens(id, alice, big.NewInt(3)); err != nil {
			return err
		}
		return call.Clubs.AddKmTokens(id, bob, big.NewInt(1))
	}))

	_, err := h.rt.RedeemAndPay(ctx, NewSignerSet(alice), id, alice, wallet)
	require.ErrorIs(t, err, runclub.ErrPeriodNotEnded)

	h.clock += 86_400
	h.sink.Reset()
	reward, err := h.rt.RedeemAndPay(ctx, NewSignerSet(alice), id, alice, wallet)
	require.NoError(t, err)
	require.Equal(t, int64(75), reward.Int64())
	require.Equal(t, int64(75), h.balance(t, wallet))
	require.Equal(t, h.pool(t, id), h.balance(t, runclub.VaultAddress(id)))

	kinds := make([]string, 0)
	for _, evt := range h.sink.Events() {
		kinds = append(kinds, evt.EventType())
	}
	require.Equal(t, []string{runclub.EventTypeClubRedeemed, token.EventTypeTransferred}, kinds)

	_, err = h.rt.RedeemAndPay(ctx, NewSignerSet(bob), id, bob, alice)
	require.NoError(t, err)
	require.Zero(t, h.pool(t, id))
	require.Zero(t, h.balance(t, runclub.VaultAddress(id)))
}

func TestViewRejectsWrites(t *testing.T) {
	h := newHarness(t)
	id := h.createClub(t, runclub.WithdrawalRuleEqual, alice)
	require.NoError(t, h.rt.FundClub(context.Background(), NewSignerSet(organizer), id, organizer, big.NewInt(10)))

	err := h.rt.View(context.Background(), func(call *Call) error {
		return call.Clubs.AddKmTokens(id, alice, big.NewInt(5))
	})
	require.ErrorIs(t, err, errReadOnly)

	err = h.rt.View(context.Background(), func(call *Call) error {
		_, err := call.Clubs.CreateClub(organizer, "x", big.NewInt(1), runclub.WithdrawalRuleEqual, 1)
		return err
	})
	require.ErrorIs(t, err, runclub.ErrAuthorizationRequired, "views carry no signatures")
}

func TestPausedModuleRejectsCalls(t *testing.T) {
	h := newHarness(t, WithPauses(pauses{runclub.ModuleName: true}))
	err := h.rt.Execute(context.Background(), OpCreateClub, NewSignerSet(organizer), func(*Call) error {
		t.Fatal("paused call must not run")
		return nil
	})
	require.ErrorIs(t, err, common.ErrModulePaused)

	require.NoError(t, h.rt.Execute(context.Background(), OpTransfer, NewSignerSet(organizer), func(call *Call) error {
		return call.Tokens.Transfer(organizer, alice, big.NewInt(1))
	}))
}

func TestCanceledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, h.rt.Execute(ctx, OpAddKm, nil, func(*Call) error { return nil }), context.Canceled)
	require.ErrorIs(t, h.rt.View(ctx, func(*Call) error { return nil }), context.Canceled)
}

func TestSignerSet(t *testing.T) {
	set := NewSignerSet(alice)
	require.NoError(t, set.RequireAuth(alice))
	require.ErrorIs(t, set.RequireAuth(bob), runclub.ErrAuthorizationRequired)
}
