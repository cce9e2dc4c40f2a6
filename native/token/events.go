package token

import (
	"encoding/hex"
	"math/big"

	"runclub/core/events"
	"runclub/core/types"
)

const (
	EventTypeMinted      = "token.minted"
	EventTypeBurned      = "token.burned"
	EventTypeTransferred = "token.transferred"
)

type tokenEvent struct {
	evt *types.Event
}

func (e tokenEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e tokenEvent) Event() *types.Event { return e.evt }

// WrapEvent converts a raw payload into an emitter event.
func WrapEvent(evt *types.Event) events.Event { return tokenEvent{evt: evt} }

func hexAddr(addr [20]byte) string { return "0x" + hex.EncodeToString(addr[:]) }

// MintedEvent records new supply credited to an account.
func MintedEvent(symbol string, to [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeMinted,
		Attributes: map[string]string{
			"token":  symbol,
			"to":     hexAddr(to),
			"amount": amount.String(),
		},
	}
}

// BurnedEvent records supply destroyed from an account.
func BurnedEvent(symbol string, from [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBurned,
		Attributes: map[string]string{
			"token":  symbol,
			"from":   hexAddr(from),
			"amount": amount.String(),
		},
	}
}

// TransferredEvent records a balance movement.
func TransferredEvent(symbol string, from, to [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeTransferred,
		Attributes: map[string]string{
			"token":  symbol,
			"from":   hexAddr(from),
			"to":     hexAddr(to),
			"amount": amount.String(),
		},
	}
}
