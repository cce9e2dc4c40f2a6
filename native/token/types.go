package token

import (
	"errors"
	"strings"
)

// ModuleName identifies the module for pause guards and metrics.
const ModuleName = "token"

var (
	ErrInvalidAmount       = errors.New("token: amount must be positive")
	ErrInvalidToken        = errors.New("token: invalid token metadata")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrUnauthorized        = errors.New("token: caller is not the token admin")
	ErrTokenNotRegistered  = errors.New("token: token not registered")
	ErrTokenExists         = errors.New("token: token already registered")
	ErrNilState            = errors.New("token: state not configured")
)

// Metadata describes a fungible asset managed by the ledger.
type Metadata struct {
	Symbol   string
	Name     string
	Decimals uint8
	Admin    [20]byte
}

// NormalizeSymbol upper-cases and trims a token symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
