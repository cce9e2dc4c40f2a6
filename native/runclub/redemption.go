package runclub

import (
	"fmt"
	"math/big"
)

// Redeem converts the user's KM tokens into a share of the pool. The reward
// is returned for disbursement to destination by the token service; the
// member's KM balance is zeroed and the pool debited in the same call.
func (e *Engine) Redeem(clubID uint64, user [20]byte, destination [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireAuth(user); err != nil {
		return nil, err
	}
	club, err := e.loadClub(clubID)
	if err != nil {
		return nil, err
	}
	if !club.IsActive {
		return nil, ErrClubInactive
	}
	if !club.PeriodEnded(e.now()) {
		return nil, ErrPeriodNotEnded
	}
	if !club.HasMember(user) {
		return nil, ErrNotMember
	}
	balance, err := e.kmBalance(clubID, user)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, ErrNoTokensToRedeem
	}
	reward, err := e.reward(club, user)
	if err != nil {
		return nil, err
	}
	if reward.Sign() < 0 || reward.Cmp(club.USDCDeposited) > 0 {
		return nil, ErrInsufficientPoolFunds
	}
	if err := e.state.RunClubSetKmBalance(clubID, user, big.NewInt(0)); err != nil {
		return nil, fmt.Errorf("zero km balance: %w", err)
	}
	club.USDCDeposited = new(big.Int).Sub(club.USDCDeposited, reward)
	if err := e.storeClub(club); err != nil {
		return nil, err
	}
	e.emit(ClubRedeemedEvent(clubID, user, destination, reward, club.USDCDeposited))
	return reward, nil
}

// RedemptionInfo previews the user's KM balance and the reward they would
// receive if they redeemed now.
func (e *Engine) RedemptionInfo(clubID uint64, user [20]byte) (*RedemptionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	club, err := e.loadClub(clubID)
	if err != nil {
		return nil, err
	}
	balance, err := e.kmBalance(clubID, user)
	if err != nil {
		return nil, err
	}
	info := &RedemptionInfo{
		KmBalance:       balance,
		ProjectedReward: big.NewInt(0),
		PeriodEnded:     club.PeriodEnded(e.now()),
	}
	if info.PeriodEnded {
		reward, err := e.reward(club, user)
		if err != nil {
			return nil, err
		}
		info.ProjectedReward = reward
	}
	return info, nil
}
