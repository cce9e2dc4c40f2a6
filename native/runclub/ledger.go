package runclub

import (
	"fmt"
	"math/big"
)

// AddKmTokens credits amount KM tokens to user. Distance is verified upstream
// so no principal authorization is required here.
func (e *Engine) AddKmTokens(clubID uint64, user [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	club, err := e.loadClub(clubID)
	if err != nil {
		return err
	}
	if !club.IsActive {
		return ErrClubInactive
	}
	if !club.HasMember(user) {
		return ErrNotMember
	}
	current, err := e.kmBalance(clubID, user)
	if err != nil {
		return err
	}
	updated := new(big.Int).Add(current, amount)
	if !fitsInt128(updated) {
		return ErrAmountOverflow
	}
	if err := e.state.RunClubSetKmBalance(clubID, user, updated); err != nil {
		return fmt.Errorf("store km balance: %w", err)
	}
	e.emit(KmAddedEvent(clubID, user, amount, updated))
	return nil
}

// KmBalance returns the user's KM tokens in the club, zero when none were credited.
func (e *Engine) KmBalance(clubID uint64, user [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.kmBalance(clubID, user)
}

// TotalKmBalance sums the KM balances of the club's current members.
func (e *Engine) TotalKmBalance(clubID uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	club, err := e.loadClub(clubID)
	if err != nil {
		return nil, err
	}
	total, _, err := e.memberTotals(club)
	return total, err
}

// memberTotals returns the KM sum over current members and the number of
// members holding a positive balance.
func (e *Engine) memberTotals(club *Club) (*big.Int, int64, error) {
	total := big.NewInt(0)
	var eligible int64
	for _, member := range club.Members {
		balance, err := e.kmBalance(club.ID, member)
		if err != nil {
			return nil, 0, err
		}
		total.Add(total, balance)
		if balance.Sign() > 0 {
			eligible++
		}
	}
	return total, eligible, nil
}
