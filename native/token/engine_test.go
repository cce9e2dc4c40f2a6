package token

import (
	"errors"
	"math/big"
	"testing"

	"runclub/core/events"
)

type mockState struct {
	meta     map[string]*Metadata
	balances map[string]*big.Int
	supply   map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		meta:     make(map[string]*Metadata),
		balances: make(map[string]*big.Int),
		supply:   make(map[string]*big.Int),
	}
}

func (m *mockState) TokenMetadataGet(symbol string) (*Metadata, bool, error) {
	meta, ok := m.meta[symbol]
	if !ok {
		return nil, false, nil
	}
	clone := *meta
	return &clone, true, nil
}

func (m *mockState) TokenMetadataPut(meta *Metadata) error {
	clone := *meta
	m.meta[meta.Symbol] = &clone
	return nil
}

func (m *mockState) TokenBalance(symbol string, addr [20]byte) (*big.Int, error) {
	if v, ok := m.balances[symbol+string(addr[:])]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) TokenSetBalance(symbol string, addr [20]byte, amount *big.Int) error {
	m.balances[symbol+string(addr[:])] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) TokenSupply(symbol string) (*big.Int, error) {
	if v, ok := m.supply[symbol]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) TokenSetSupply(symbol string, amount *big.Int) error {
	m.supply[symbol] = new(big.Int).Set(amount)
	return nil
}

type signers map[[20]byte]bool

var errUnsigned = errors.New("unsigned")

func (s signers) RequireAuth(addr [20]byte) error {
	if s[addr] {
		return nil
	}
	return errUnsigned
}

var (
	admin = [20]byte{0xAD}
	alice = [20]byte{0x01}
	bob   = [20]byte{0x02}
)

func newTestEngine(t *testing.T, signed ...[20]byte) (*Engine, *events.Buffer) {
	t.Helper()
	engine := NewEngine("usdc")
	engine.SetState(newMockState())
	buf := &events.Buffer{}
	engine.SetEmitter(buf)
	set := signers{}
	for _, addr := range signed {
		set[addr] = true
	}
	engine.SetAuthorizer(set)
	if err := engine.Register(Metadata{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Admin: admin}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return engine, buf
}

func mustBalance(t *testing.T, engine *Engine, addr [20]byte) int64 {
	t.Helper()
	balance, err := engine.Balance(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance.Int64()
}

func TestRegister(t *testing.T) {
	engine, _ := newTestEngine(t)
	if err := engine.Register(Metadata{Symbol: "USDC", Name: "again"}); !errors.Is(err, ErrTokenExists) {
		t.Fatalf("expected ErrTokenExists, got %v", err)
	}
	if err := NewEngine("usdc").Register(Metadata{Symbol: "USDC", Name: "x"}); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
	other := NewEngine("EURC")
	other.SetState(newMockState())
	if err := other.Register(Metadata{Symbol: "USDC", Name: "x"}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := other.Balance(alice); !errors.Is(err, ErrTokenNotRegistered) {
		t.Fatalf("expected ErrTokenNotRegistered, got %v", err)
	}
}

func TestMintRequiresAdmin(t *testing.T) {
	engine, buf := newTestEngine(t, admin, alice)

	if err := engine.Mint(alice, alice, big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.Mint(admin, alice, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := engine.Mint(admin, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := mustBalance(t, engine, alice); got != 100 {
		t.Fatalf("expected balance 100, got %d", got)
	}
	supply, err := engine.TotalSupply()
	if err != nil || supply.Int64() != 100 {
		t.Fatalf("expected supply 100, got %v (%v)", supply, err)
	}
	evts := buf.Events()
	if len(evts) != 1 || evts[0].EventType() != EventTypeMinted {
		t.Fatalf("expected one mint event, got %d", len(evts))
	}
}

func TestTransferAndBurn(t *testing.T) {
	engine, _ := newTestEngine(t, admin, alice)
	if err := engine.Mint(admin, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := engine.Transfer(bob, alice, big.NewInt(1)); !errors.Is(err, errUnsigned) {
		t.Fatalf("expected signature failure, got %v", err)
	}
	if err := engine.Transfer(alice, bob, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := engine.Transfer(alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := mustBalance(t, engine, bob); got != 40 {
		t.Fatalf("expected bob 40, got %d", got)
	}
	if err := engine.Burn(alice, big.NewInt(60)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := mustBalance(t, engine, alice); got != 0 {
		t.Fatalf("expected alice 0, got %d", got)
	}
	supply, _ := engine.TotalSupply()
	if supply.Int64() != 40 {
		t.Fatalf("expected supply 40, got %s", supply)
	}
}

func TestMoveSkipsSignature(t *testing.T) {
	engine, buf := newTestEngine(t, admin)
	if err := engine.Mint(admin, bob, big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	buf.Reset()
	if err := engine.Move(bob, alice, big.NewInt(0)); err != nil {
		t.Fatalf("zero move: %v", err)
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("zero move must not emit")
	}
	if err := engine.Move(bob, alice, big.NewInt(5)); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := mustBalance(t, engine, alice); got != 5 {
		t.Fatalf("expected alice 5, got %d", got)
	}
	if err := engine.Move(bob, alice, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
