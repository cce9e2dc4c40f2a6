package runclub

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"runclub/core/events"
	"runclub/core/types"
)

const (
	// EventTypeClubCreated is emitted when an organizer registers a new club.
	EventTypeClubCreated = "runclub.club.created"
	// EventTypeClubActivated is emitted on explicit activation.
	EventTypeClubActivated = "runclub.club.activated"
	// EventTypeClubDeposited is emitted when the organizer adds to the pool.
	EventTypeClubDeposited = "runclub.club.deposited"
	// EventTypeClubRemoved is emitted when an empty club is deleted.
	EventTypeClubRemoved = "runclub.club.removed"
	// EventTypeClubRedeemed is emitted when a member converts KM tokens into a payout.
	EventTypeClubRedeemed = "runclub.club.redeemed"
	// EventTypeClubPeriodEnded is published by the period watcher once a
	// club's deadline passes. The engine never emits it.
	EventTypeClubPeriodEnded = "runclub.club.period_ended"
	// EventTypeMemberAdded is emitted on self-enrolment.
	EventTypeMemberAdded = "runclub.member.added"
	// EventTypeMemberRemoved is emitted when the organizer removes a member.
	EventTypeMemberRemoved = "runclub.member.removed"
	// EventTypeKmAdded is emitted when distance credits accrue.
	EventTypeKmAdded = "runclub.km.added"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

// ClubCreatedEvent describes a freshly created club.
func ClubCreatedEvent(club *Club) *types.Event {
	return &types.Event{
		Type: EventTypeClubCreated,
		Attributes: map[string]string{
			"clubId":            formatID(club.ID),
			"organizer":         hexAddr(club.Organizer),
			"name":              club.Name,
			"withdrawalRule":    club.WithdrawalRule.String(),
			"usdcPerKm":         newBigInt(club.USDCPerKm).String(),
			"monthEndTimestamp": strconv.FormatUint(club.MonthEndTimestamp, 10),
		},
	}
}

// ClubActivatedEvent records an explicit activation.
func ClubActivatedEvent(clubID uint64, organizer [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeClubActivated,
		Attributes: map[string]string{
			"clubId":    formatID(clubID),
			"organizer": hexAddr(organizer),
		},
	}
}

// ClubDepositedEvent records a deposit and the resulting pool balance.
func ClubDepositedEvent(clubID uint64, organizer [20]byte, amount, pool *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeClubDeposited,
		Attributes: map[string]string{
			"clubId":    formatID(clubID),
			"organizer": hexAddr(organizer),
			"amount":    newBigInt(amount).String(),
			"pool":      newBigInt(pool).String(),
		},
	}
}

// ClubRemovedEvent records the deletion of a club.
func ClubRemovedEvent(clubID uint64, organizer [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeClubRemoved,
		Attributes: map[string]string{
			"clubId":    formatID(clubID),
			"organizer": hexAddr(organizer),
		},
	}
}

// ClubRedeemedEvent records a redemption payout.
func ClubRedeemedEvent(clubID uint64, user, destination [20]byte, reward, pool *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeClubRedeemed,
		Attributes: map[string]string{
			"clubId":      formatID(clubID),
			"user":        hexAddr(user),
			"destination": hexAddr(destination),
			"reward":      newBigInt(reward).String(),
			"pool":        newBigInt(pool).String(),
		},
	}
}

// ClubPeriodEndedEvent announces that a club became redemption-eligible.
func ClubPeriodEndedEvent(clubID uint64, monthEnd uint64, pool *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeClubPeriodEnded,
		Attributes: map[string]string{
			"clubId":            formatID(clubID),
			"monthEndTimestamp": strconv.FormatUint(monthEnd, 10),
			"pool":              newBigInt(pool).String(),
		},
	}
}

// MemberAddedEvent records a self-enrolment.
func MemberAddedEvent(clubID uint64, member [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeMemberAdded,
		Attributes: map[string]string{
			"clubId": formatID(clubID),
			"member": hexAddr(member),
		},
	}
}

// MemberRemovedEvent records an organizer removing a member.
func MemberRemovedEvent(clubID uint64, organizer, member [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeMemberRemoved,
		Attributes: map[string]string{
			"clubId":    formatID(clubID),
			"organizer": hexAddr(organizer),
			"member":    hexAddr(member),
		},
	}
}

// KmAddedEvent records a KM accrual and the member's new balance.
func KmAddedEvent(clubID uint64, user [20]byte, amount, balance *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeKmAdded,
		Attributes: map[string]string{
			"clubId":  formatID(clubID),
			"user":    hexAddr(user),
			"amount":  newBigInt(amount).String(),
			"balance": newBigInt(balance).String(),
		},
	}
}
