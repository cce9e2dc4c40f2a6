package runclub

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"runclub/core/events"
	"runclub/core/types"
)

type engineState interface {
	RunClubCounter() (uint64, bool, error)
	RunClubSetCounter(id uint64) error
	RunClubGet(id uint64) (*Club, bool, error)
	RunClubPut(club *Club) error
	RunClubDelete(id uint64) error
	RunClubKmBalance(id uint64, user [20]byte) (*big.Int, error)
	RunClubSetKmBalance(id uint64, user [20]byte, amount *big.Int) error
}

// Authorizer is the host capability that aborts a call when the named
// principal did not sign it.
type Authorizer interface {
	RequireAuth(addr [20]byte) error
}

// Engine wires the run club lifecycle, KM ledger and redemption logic with
// persistence and event emission. An engine is bound to the state, signer set
// and clock of a single call.
type Engine struct {
	state   engineState
	emitter events.Emitter
	auth    Authorizer
	nowFn   func() uint64
}

// NewEngine constructs an engine with a no-op emitter and the wall clock.
// Until SetAuthorizer is called every authorization check fails.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   wallClock,
	}
}

func wallClock() uint64 { return uint64(time.Now().Unix()) }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetAuthorizer configures the capability used for require-auth checks.
func (e *Engine) SetAuthorizer(auth Authorizer) { e.auth = auth }

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = wallClock
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return wallClock()
	}
	return e.nowFn()
}

func (e *Engine) requireAuth(addr [20]byte) error {
	if e.auth == nil {
		return ErrAuthorizationRequired
	}
	return e.auth.RequireAuth(addr)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) loadClub(id uint64) (*Club, error) {
	club, ok, err := e.state.RunClubGet(id)
	if err != nil {
		return nil, fmt.Errorf("load club %d: %w", id, err)
	}
	if !ok || club == nil {
		return nil, ErrClubNotFound
	}
	if club.USDCDeposited == nil {
		club.USDCDeposited = big.NewInt(0)
	}
	if club.USDCPerKm == nil {
		club.USDCPerKm = big.NewInt(0)
	}
	return club, nil
}

func (e *Engine) storeClub(club *Club) error {
	if err := e.state.RunClubPut(club); err != nil {
		return fmt.Errorf("store club %d: %w", club.ID, err)
	}
	return nil
}

func (e *Engine) kmBalance(id uint64, user [20]byte) (*big.Int, error) {
	balance, err := e.state.RunClubKmBalance(id, user)
	if err != nil {
		return nil, fmt.Errorf("load km balance: %w", err)
	}
	return newBigInt(balance), nil
}

// VaultAddress derives the account that custodies a club's pooled asset.
func VaultAddress(clubID uint64) [20]byte {
	buf := make([]byte, 0, len(vaultSeed)+8)
	buf = append(buf, vaultSeed...)
	buf = binary.BigEndian.AppendUint64(buf, clubID)
	hash := ethcrypto.Keccak256(buf)
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

var vaultSeed = []byte("runclub/vault/")
