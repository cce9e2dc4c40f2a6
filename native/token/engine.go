package token

import (
	"fmt"
	"math/big"

	"runclub/core/events"
	"runclub/core/types"
)

type engineState interface {
	TokenMetadataGet(symbol string) (*Metadata, bool, error)
	TokenMetadataPut(meta *Metadata) error
	TokenBalance(symbol string, addr [20]byte) (*big.Int, error)
	TokenSetBalance(symbol string, addr [20]byte, amount *big.Int) error
	TokenSupply(symbol string) (*big.Int, error)
	TokenSetSupply(symbol string, amount *big.Int) error
}

// Authorizer aborts a call when the principal did not sign it.
type Authorizer interface {
	RequireAuth(addr [20]byte) error
}

// Engine maintains balances and supply for a single asset symbol.
type Engine struct {
	state   engineState
	emitter events.Emitter
	auth    Authorizer
	symbol  string
}

// NewEngine creates an engine for symbol with a no-op emitter.
func NewEngine(symbol string) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		symbol:  NormalizeSymbol(symbol),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAuthorizer configures the capability used for require-auth checks.
func (e *Engine) SetAuthorizer(auth Authorizer) { e.auth = auth }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Symbol returns the asset handled by this engine.
func (e *Engine) Symbol() string { return e.symbol }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) requireAuth(addr [20]byte) error {
	if e.auth == nil {
		return fmt.Errorf("token: authorization capability not configured")
	}
	return e.auth.RequireAuth(addr)
}

func (e *Engine) metadata() (*Metadata, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	meta, ok, err := e.state.TokenMetadataGet(e.symbol)
	if err != nil {
		return nil, err
	}
	if !ok || meta == nil {
		return nil, ErrTokenNotRegistered
	}
	return meta, nil
}

// Register stores the asset metadata. The symbol must match the engine's.
func (e *Engine) Register(meta Metadata) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	meta.Symbol = NormalizeSymbol(meta.Symbol)
	if meta.Symbol == "" || meta.Symbol != e.symbol || meta.Name == "" {
		return ErrInvalidToken
	}
	if _, ok, err := e.state.TokenMetadataGet(meta.Symbol); err != nil {
		return err
	} else if ok {
		return ErrTokenExists
	}
	return e.state.TokenMetadataPut(&meta)
}

// Metadata returns the registered asset metadata.
func (e *Engine) Metadata() (*Metadata, error) { return e.metadata() }

// Mint credits new supply to to. Only the token admin may mint.
func (e *Engine) Mint(admin, to [20]byte, amount *big.Int) error {
	meta, err := e.metadata()
	if err != nil {
		return err
	}
	if err := e.requireAuth(admin); err != nil {
		return err
	}
	if meta.Admin != admin {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.adjust(to, amount); err != nil {
		return err
	}
	if err := e.adjustSupply(amount); err != nil {
		return err
	}
	e.emit(MintedEvent(e.symbol, to, amount))
	return nil
}

// Burn destroys amount from the signer's balance.
func (e *Engine) Burn(from [20]byte, amount *big.Int) error {
	if _, err := e.metadata(); err != nil {
		return err
	}
	if err := e.requireAuth(from); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.adjust(from, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	if err := e.adjustSupply(new(big.Int).Neg(amount)); err != nil {
		return err
	}
	e.emit(BurnedEvent(e.symbol, from, amount))
	return nil
}

// Transfer moves amount from the signer to to.
func (e *Engine) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := e.requireAuth(from); err != nil {
		return err
	}
	return e.Move(from, to, amount)
}

// Move transfers without a signature check. It is reserved for module
// accounts such as club vaults whose movements are authorized by the module
// logic that calls it.
func (e *Engine) Move(from, to [20]byte, amount *big.Int) error {
	if _, err := e.metadata(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := e.adjust(from, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	if err := e.adjust(to, amount); err != nil {
		return err
	}
	e.emit(TransferredEvent(e.symbol, from, to, amount))
	return nil
}

// Balance returns the balance of addr.
func (e *Engine) Balance(addr [20]byte) (*big.Int, error) {
	if _, err := e.metadata(); err != nil {
		return nil, err
	}
	return e.state.TokenBalance(e.symbol, addr)
}

// TotalSupply returns the outstanding supply.
func (e *Engine) TotalSupply() (*big.Int, error) {
	if _, err := e.metadata(); err != nil {
		return nil, err
	}
	return e.state.TokenSupply(e.symbol)
}

func (e *Engine) adjust(addr [20]byte, delta *big.Int) error {
	balance, err := e.state.TokenBalance(e.symbol, addr)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = big.NewInt(0)
	}
	updated := new(big.Int).Add(balance, delta)
	if updated.Sign() < 0 {
		return ErrInsufficientBalance
	}
	return e.state.TokenSetBalance(e.symbol, addr, updated)
}

func (e *Engine) adjustSupply(delta *big.Int) error {
	supply, err := e.state.TokenSupply(e.symbol)
	if err != nil {
		return err
	}
	if supply == nil {
		supply = big.NewInt(0)
	}
	updated := new(big.Int).Add(supply, delta)
	if updated.Sign() < 0 {
		return ErrInsufficientBalance
	}
	return e.state.TokenSetSupply(e.symbol, updated)
}
