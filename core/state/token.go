package state

import (
	"fmt"
	"math/big"

	"runclub/native/token"
)

type storedTokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
	Admin    [20]byte
}

func tokenMetadataKey(symbol string) []byte {
	return append(append([]byte(nil), tokenMetadataPrefix...), symbol...)
}

func tokenBalanceKey(symbol string, addr [20]byte) []byte {
	buf := append(append([]byte(nil), tokenBalancePrefix...), symbol...)
	buf = append(buf, '/')
	return append(buf, addr[:]...)
}

func tokenSupplyKey(symbol string) []byte {
	return append(append([]byte(nil), tokenSupplyPrefix...), symbol...)
}

// TokenMetadataGet loads the metadata registered for symbol.
func (m *Manager) TokenMetadataGet(symbol string) (*token.Metadata, bool, error) {
	symbol = token.NormalizeSymbol(symbol)
	var stored storedTokenMetadata
	ok, err := m.KVGet(tokenMetadataKey(symbol), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &token.Metadata{
		Symbol:   stored.Symbol,
		Name:     stored.Name,
		Decimals: stored.Decimals,
		Admin:    stored.Admin,
	}, true, nil
}

// TokenMetadataPut stores asset metadata.
func (m *Manager) TokenMetadataPut(meta *token.Metadata) error {
	if meta == nil {
		return fmt.Errorf("token: nil metadata")
	}
	symbol := token.NormalizeSymbol(meta.Symbol)
	if symbol == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	return m.KVPut(tokenMetadataKey(symbol), &storedTokenMetadata{
		Symbol:   symbol,
		Name:     meta.Name,
		Decimals: meta.Decimals,
		Admin:    meta.Admin,
	})
}

// TokenBalance returns the balance of addr, zero when unset.
func (m *Manager) TokenBalance(symbol string, addr [20]byte) (*big.Int, error) {
	return m.loadUint(tokenBalanceKey(token.NormalizeSymbol(symbol), addr))
}

// TokenSetBalance stores the balance of addr.
func (m *Manager) TokenSetBalance(symbol string, addr [20]byte, amount *big.Int) error {
	return m.storeUint(tokenBalanceKey(token.NormalizeSymbol(symbol), addr), amount)
}

// TokenSupply returns the outstanding supply for symbol.
func (m *Manager) TokenSupply(symbol string) (*big.Int, error) {
	return m.loadUint(tokenSupplyKey(token.NormalizeSymbol(symbol)))
}

// TokenSetSupply stores the outstanding supply for symbol.
func (m *Manager) TokenSetSupply(symbol string, amount *big.Int) error {
	return m.storeUint(tokenSupplyKey(token.NormalizeSymbol(symbol)), amount)
}

func (m *Manager) loadUint(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (m *Manager) storeUint(key []byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative balance not allowed")
	}
	return m.KVPut(key, amount)
}
