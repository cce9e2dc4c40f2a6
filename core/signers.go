package core

import (
	"fmt"

	"runclub/native/runclub"
)

// SignerSet is the set of principals whose signatures accompany a call.
type SignerSet map[[20]byte]struct{}

// NewSignerSet builds a set from addrs.
func NewSignerSet(addrs ...[20]byte) SignerSet {
	set := make(SignerSet, len(addrs))
	for _, addr := range addrs {
		set[addr] = struct{}{}
	}
	return set
}

// Has reports whether addr signed the call.
func (s SignerSet) Has(addr [20]byte) bool {
	_, ok := s[addr]
	return ok
}

// RequireAuth implements the engines' Authorizer interface.
func (s SignerSet) RequireAuth(addr [20]byte) error {
	if s.Has(addr) {
		return nil
	}
	return fmt.Errorf("%w: 0x%x", runclub.ErrAuthorizationRequired, addr)
}
