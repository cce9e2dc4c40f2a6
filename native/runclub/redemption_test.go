package runclub

import (
	"errors"
	"math/big"
	"testing"
)

func TestRedeemGuards(t *testing.T) {
	f := newFixture(t)
	inactive := f.club(t, WithdrawalRuleEqual, 0, alice)
	if _, err := f.engine.Redeem(99, alice, alice); !errors.Is(err, ErrClubNotFound) {
		t.Fatalf("expected ErrClubNotFound, got %v", err)
	}
	if _, err := f.engine.Redeem(inactive, alice, alice); !errors.Is(err, ErrClubInactive) {
		t.Fatalf("expected ErrClubInactive, got %v", err)
	}

	id := f.club(t, WithdrawalRuleEqual, 100, alice, bob)
	f.credit(t, id, alice, 5)
	club, _ := f.engine.Club(id)

	f.clock = club.MonthEndTimestamp - 1
	if _, err := f.engine.Redeem(id, alice, alice); !errors.Is(err, ErrPeriodNotEnded) {
		t.Fatalf("expected ErrPeriodNotEnded, got %v", err)
	}
	f.clock = club.MonthEndTimestamp
	if _, err := f.engine.Redeem(id, carol, carol); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if _, err := f.engine.Redeem(id, bob, bob); !errors.Is(err, ErrNoTokensToRedeem) {
		t.Fatalf("expected ErrNoTokensToRedeem, got %v", err)
	}
	if _, err := f.engine.Redeem(id, addr(0x99), alice); !errors.Is(err, ErrAuthorizationRequired) {
		t.Fatalf("expected authorization failure, got %v", err)
	}
}

func TestRedeemAtDeadlineZeroesBalance(t *testing.T) {
	f := newFixture(t)
	id := f.club(t, WithdrawalRuleEqual, 100, alice)
	f.credit(t, id, alice, 5)
	f.endPeriod(t, id)
	f.events.Reset()

	reward, err := f.engine.Redeem(id, alice, sink)
	if err != nil {
		t.Fatalf("redeem at deadline: %v", err)
	}
	if reward.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100, got %s", reward)
	}
	if bal, _ := f.engine.KmBalance(id, alice); bal.Sign() != 0 {
		t.Fatalf("balance should be zero after redemption, got %s", bal)
	}
	club, _ := f.engine.Club(id)
	if club.USDCDeposited.Sign() != 0 {
		t.Fatalf("pool should be drained, got %s", club.USDCDeposited)
	}
	if _, err := f.engine.Redeem(id, alice, sink); !errors.Is(err, ErrNoTokensToRedeem) {
		t.Fatalf("second redeem must fail with ErrNoTokensToRedeem, got %v", err)
	}
	got := f.events.Events()
	if len(got) != 1 || got[0].EventType() != EventTypeClubRedeemed {
		t.Fatalf("expected one redemption event, got %+v", got)
	}
}

// A removed member's orphaned balance can inflate the unlimited-rule quote
// beyond the pool; redemption is still blocked by the membership check and
// the pool guard.
func TestRedeemRejectsRewardAbovePool(t *testing.T) {
	f := newFixture(t)
	id := f.club(t, WithdrawalRuleUnlimited, 100, alice, bob)
	f.credit(t, id, alice, 10)
	f.credit(t, id, bob, 2)
	if err := f.engine.RemoveMember(id, organizer, alice); err != nil {
		t.Fatalf("remove: %v", err)
	}
	f.endPeriod(t, id)

	quote, err := f.engine.CalculateReward(id, alice)
	if err != nil || quote.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected inflated quote 500, got %v (%v)", quote, err)
	}
	if _, err := f.engine.Redeem(id, alice, alice); !errors.Is(err, ErrNotMember) {
		t.Fatalf("removed member cannot redeem, got %v", err)
	}

	// Re-enrolling brings alice back into the denominator.
	if err := f.engine.AddMember(id, alice); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	reward, err := f.engine.Redeem(id, alice, alice)
	if err != nil || reward.Cmp(big.NewInt(83)) != 0 {
		t.Fatalf("expected floor(100*10/12)=83, got %v (%v)", reward, err)
	}
}

func TestConservationAcrossDepositsAndRedemptions(t *testing.T) {
	f := newFixture(t)
	id := f.club(t, WithdrawalRuleUnlimited, 0, alice, bob, carol)
	deposits := []int64{70, 25, 11}
	var deposited int64
	for _, d := range deposits {
		if err := f.engine.DepositFunds(id, organizer, big.NewInt(d)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
		deposited += d
	}
	f.credit(t, id, alice, 13)
	f.credit(t, id, bob, 7)
	f.credit(t, id, carol, 3)
	f.endPeriod(t, id)

	redeemed := big.NewInt(0)
	for _, user := range [][20]byte{bob, carol, alice} {
		reward, err := f.engine.Redeem(id, user, user)
		if err != nil {
			t.Fatalf("redeem: %v", err)
		}
		redeemed.Add(redeemed, reward)
		club, _ := f.engine.Club(id)
		if club.USDCDeposited.Sign() < 0 {
			t.Fatalf("pool went negative: %s", club.USDCDeposited)
		}
	}
	club, _ := f.engine.Club(id)
	want := new(big.Int).Sub(big.NewInt(deposited), redeemed)
	if club.USDCDeposited.Cmp(want) != 0 {
		t.Fatalf("pool %s != deposits - redemptions %s", club.USDCDeposited, want)
	}
}

func TestRedeemStoreFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	id := f.club(t, WithdrawalRuleEqual, 10, alice)
	f.credit(t, id, alice, 1)
	f.endPeriod(t, id)
	boom := errors.New("disk full")
	f.state.failPut = boom
	if _, err := f.engine.Redeem(id, alice, alice); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}
