package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 address.
type AddressPrefix string

// RunPrefix tags member, organizer and vault addresses.
const RunPrefix AddressPrefix = "run"

var ErrInvalidAddress = errors.New("crypto: invalid address")

// Address is a 20-byte account identifier rendered as bech32.
type Address struct {
	prefix AddressPrefix
	raw    [20]byte
}

// NewAddress wraps raw bytes with the given prefix.
func NewAddress(prefix AddressPrefix, b [20]byte) Address {
	return Address{prefix: prefix, raw: b}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		return ""
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		return ""
	}
	return encoded
}

// Bytes returns the raw 20-byte form.
func (a Address) Bytes() [20]byte { return a.raw }

// Hex returns the 0x-prefixed hex form.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a.raw[:]) }

func (a Address) Prefix() AddressPrefix { return a.prefix }

// DecodeAddress parses a bech32 address with the run prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if AddressPrefix(prefix) != RunPrefix {
		return Address{}, fmt.Errorf("%w: unsupported prefix %q", ErrInvalidAddress, prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("%w: length %d", ErrInvalidAddress, len(conv))
	}
	var raw [20]byte
	copy(raw[:], conv)
	return NewAddress(RunPrefix, raw), nil
}

// ParseAddress accepts either a bech32 run address or 0x-prefixed hex.
func ParseAddress(s string) ([20]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		raw, err := hex.DecodeString(s[2:])
		if err != nil || len(raw) != 20 {
			return [20]byte{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		var out [20]byte
		copy(out[:], raw)
		return out, nil
	}
	addr, err := DecodeAddress(s)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Bytes(), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	var raw [20]byte
	copy(raw[:], crypto.PubkeyToAddress(*k.PublicKey).Bytes())
	return NewAddress(RunPrefix, raw)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromHex decodes a hex-encoded secp256k1 key.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
