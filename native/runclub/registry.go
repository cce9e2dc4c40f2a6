package runclub

import (
	"fmt"
	"math"
	"math/big"
)

// Initialize seeds the club counter. It fails when the counter already exists
// so ids are never re-issued.
func (e *Engine) Initialize() error {
	if err := e.ready(); err != nil {
		return err
	}
	_, ok, err := e.state.RunClubCounter()
	if err != nil {
		return fmt.Errorf("load club counter: %w", err)
	}
	if ok {
		return ErrAlreadyInitialized
	}
	return e.state.RunClubSetCounter(0)
}

// CreateClub registers a new inactive club owned by organizer and returns its id.
func (e *Engine) CreateClub(organizer [20]byte, name string, usdcPerKm *big.Int, rule WithdrawalRule, durationDays uint32) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := e.requireAuth(organizer); err != nil {
		return 0, err
	}
	if usdcPerKm == nil || usdcPerKm.Sign() <= 0 {
		return 0, ErrInvalidRate
	}
	if !fitsInt128(usdcPerKm) {
		return 0, ErrAmountOverflow
	}
	if durationDays == 0 {
		return 0, ErrInvalidDuration
	}
	if !rule.Valid() {
		return 0, ErrInvalidWithdrawalRule
	}
	counter, _, err := e.state.RunClubCounter()
	if err != nil {
		return 0, fmt.Errorf("load club counter: %w", err)
	}
	if counter == math.MaxUint64 {
		return 0, fmt.Errorf("runclub: club id space exhausted")
	}
	now := e.now()
	period := uint64(durationDays) * secondsPerDay
	if now > math.MaxUint64-period {
		return 0, ErrInvalidDuration
	}
	club := &Club{
		ID:                counter + 1,
		Name:              name,
		Organizer:         organizer,
		Members:           [][20]byte{},
		USDCDeposited:     big.NewInt(0),
		USDCPerKm:         newBigInt(usdcPerKm),
		WithdrawalRule:    rule,
		MonthEndTimestamp: now + period,
		IsActive:          false,
	}
	if err := e.storeClub(club); err != nil {
		return 0, err
	}
	if err := e.state.RunClubSetCounter(club.ID); err != nil {
		return 0, fmt.Errorf("store club counter: %w", err)
	}
	e.emit(ClubCreatedEvent(club))
	return club.ID, nil
}

// Activate marks the club active. Only the organizer may activate.
func (e *Engine) Activate(clubID uint64, organizer [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAuth(organizer); err != nil {
		return err
	}
	club, err := e.loadClub(clubID)
	if err != nil {
		return err
	}
	if club.Organizer != organizer {
		return ErrNotAuthorized
	}
	if club.IsActive {
		return ErrAlreadyActive
	}
	club.IsActive = true
	if err := e.storeClub(club); err != nil {
		return err
	}
	e.emit(ClubActivatedEvent(clubID, organizer))
	return nil
}

// DepositFunds adds amount to the club pool. A deposit also activates the club.
func (e *Engine) DepositFunds(clubID uint64, organizer [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAuth(organizer); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	club, err := e.loadClub(clubID)
	if err != nil {
		return err
	}
	if club.Organizer != organizer {
		return ErrNotAuthorized
	}
	pool := new(big.Int).Add(club.USDCDeposited, amount)
	if !fitsInt128(pool) {
		return ErrAmountOverflow
	}
	club.USDCDeposited = pool
	club.IsActive = true
	if err := e.storeClub(club); err != nil {
		return err
	}
	e.emit(ClubDepositedEvent(clubID, organizer, amount, pool))
	return nil
}

// RemoveClub deletes an empty club. Members and KM balances are left in place.
func (e *Engine) RemoveClub(clubID uint64, organizer [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAuth(organizer); err != nil {
		return err
	}
	club, err := e.loadClub(clubID)
	if err != nil {
		return err
	}
	if club.Organizer != organizer {
		return ErrNotAuthorized
	}
	if club.USDCDeposited.Sign() > 0 {
		return ErrFundsRemaining
	}
	if err := e.state.RunClubDelete(clubID); err != nil {
		return fmt.Errorf("delete club %d: %w", clubID, err)
	}
	e.emit(ClubRemovedEvent(clubID, organizer))
	return nil
}
