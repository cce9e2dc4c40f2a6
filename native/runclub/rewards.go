package runclub

import (
	"math/big"
)

// IsPeriodEnded reports whether the club deadline has been reached.
func (e *Engine) IsPeriodEnded(clubID uint64) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	club, err := e.loadClub(clubID)
	if err != nil {
		return false, err
	}
	return club.PeriodEnded(e.now()), nil
}

// CalculateReward returns the pool share user could redeem right now. Totals
// are recomputed on every call, so earlier redemptions change later quotes.
func (e *Engine) CalculateReward(clubID uint64, user [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	club, err := e.loadClub(clubID)
	if err != nil {
		return nil, err
	}
	return e.reward(club, user)
}

func (e *Engine) reward(club *Club, user [20]byte) (*big.Int, error) {
	if !club.PeriodEnded(e.now()) {
		return nil, ErrPeriodNotEnded
	}
	userKm, err := e.kmBalance(club.ID, user)
	if err != nil {
		return nil, err
	}
	if userKm.Sign() == 0 {
		return big.NewInt(0), nil
	}
	totalKm, eligible, err := e.memberTotals(club)
	if err != nil {
		return nil, err
	}
	switch club.WithdrawalRule {
	case WithdrawalRuleEqual:
		if totalKm.Sign() == 0 {
			return big.NewInt(0), nil
		}
		return EqualShare(club.USDCDeposited, eligible), nil
	case WithdrawalRuleUnlimited:
		return ProportionalShare(club.USDCDeposited, userKm, totalKm), nil
	default:
		return nil, ErrInvalidWithdrawalRule
	}
}

// EqualShare splits pool evenly across eligible members, truncating. The
// remainder stays in the pool.
func EqualShare(pool *big.Int, eligible int64) *big.Int {
	if pool == nil || eligible <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(pool, big.NewInt(eligible))
}

// ProportionalShare returns floor(pool * userKm / totalKm). The product is
// computed at arbitrary precision.
func ProportionalShare(pool, userKm, totalKm *big.Int) *big.Int {
	if pool == nil || userKm == nil || totalKm == nil || totalKm.Sign() == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(pool, userKm)
	return share.Quo(share, totalKm)
}
