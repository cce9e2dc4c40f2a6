package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"runclub/native/runclub"
)

// storedAmount keeps the sign apart from the magnitude since RLP only
// encodes non-negative integers.
type storedAmount struct {
	Negative  bool
	Magnitude *big.Int
}

func newStoredAmount(v *big.Int) storedAmount {
	if v == nil {
		return storedAmount{Magnitude: big.NewInt(0)}
	}
	return storedAmount{Negative: v.Sign() < 0, Magnitude: new(big.Int).Abs(v)}
}

func (a storedAmount) value() *big.Int {
	if a.Magnitude == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Set(a.Magnitude)
	if a.Negative {
		out.Neg(out)
	}
	return out
}

type storedClub struct {
	ID                uint64
	Name              string
	Organizer         [20]byte
	Members           [][20]byte
	USDCDeposited     storedAmount
	USDCPerKm         storedAmount
	WithdrawalRule    uint8
	MonthEndTimestamp uint64
	IsActive          bool
}

func newStoredClub(c *runclub.Club) *storedClub {
	members := make([][20]byte, len(c.Members))
	copy(members, c.Members)
	return &storedClub{
		ID:                c.ID,
		Name:              c.Name,
		Organizer:         c.Organizer,
		Members:           members,
		USDCDeposited:     newStoredAmount(c.USDCDeposited),
		USDCPerKm:         newStoredAmount(c.USDCPerKm),
		WithdrawalRule:    uint8(c.WithdrawalRule),
		MonthEndTimestamp: c.MonthEndTimestamp,
		IsActive:          c.IsActive,
	}
}

func (s *storedClub) toClub() (*runclub.Club, error) {
	rule := runclub.WithdrawalRule(s.WithdrawalRule)
	if !rule.Valid() {
		return nil, fmt.Errorf("%w: stored tag %d", runclub.ErrInvalidWithdrawalRule, s.WithdrawalRule)
	}
	members := make([][20]byte, len(s.Members))
	copy(members, s.Members)
	return &runclub.Club{
		ID:                s.ID,
		Name:              s.Name,
		Organizer:         s.Organizer,
		Members:           members,
		USDCDeposited:     s.USDCDeposited.value(),
		USDCPerKm:         s.USDCPerKm.value(),
		WithdrawalRule:    rule,
		MonthEndTimestamp: s.MonthEndTimestamp,
		IsActive:          s.IsActive,
	}, nil
}

func runClubRecordKey(id uint64) []byte {
	buf := make([]byte, len(runClubRecordPrefix)+8)
	copy(buf, runClubRecordPrefix)
	binary.BigEndian.PutUint64(buf[len(runClubRecordPrefix):], id)
	return buf
}

func runClubKmKey(id uint64, user [20]byte) []byte {
	buf := make([]byte, len(runClubKmPrefix)+len(user)+8)
	copy(buf, runClubKmPrefix)
	copy(buf[len(runClubKmPrefix):], user[:])
	binary.BigEndian.PutUint64(buf[len(runClubKmPrefix)+len(user):], id)
	return buf
}

// RunClubCounter returns the last issued club identifier. The boolean reports
// whether the counter has been seeded.
func (m *Manager) RunClubCounter() (uint64, bool, error) {
	var counter uint64
	ok, err := m.KVGet(runClubCounterKeyBytes, &counter)
	if err != nil {
		return 0, false, err
	}
	return counter, ok, nil
}

// RunClubSetCounter persists the club counter.
func (m *Manager) RunClubSetCounter(counter uint64) error {
	return m.KVPut(runClubCounterKeyBytes, counter)
}

// RunClubGet loads the club record for id.
func (m *Manager) RunClubGet(id uint64) (*runclub.Club, bool, error) {
	var stored storedClub
	ok, err := m.KVGet(runClubRecordKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	club, err := stored.toClub()
	if err != nil {
		return nil, false, err
	}
	return club, true, nil
}

// RunClubPut writes the club record.
func (m *Manager) RunClubPut(club *runclub.Club) error {
	if club == nil {
		return fmt.Errorf("runclub: nil club")
	}
	return m.KVPut(runClubRecordKey(club.ID), newStoredClub(club))
}

// RunClubDelete removes the club record. KM balances are left in place.
func (m *Manager) RunClubDelete(id uint64) error {
	return m.KVDelete(runClubRecordKey(id))
}

// RunClubKmBalance returns the KM balance of user in club id, zero when unset.
func (m *Manager) RunClubKmBalance(id uint64, user [20]byte) (*big.Int, error) {
	var stored storedAmount
	ok, err := m.KVGet(runClubKmKey(id, user), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return stored.value(), nil
}

// RunClubSetKmBalance stores the KM balance of user in club id.
func (m *Manager) RunClubSetKmBalance(id uint64, user [20]byte, amount *big.Int) error {
	return m.KVPut(runClubKmKey(id, user), newStoredAmount(amount))
}
