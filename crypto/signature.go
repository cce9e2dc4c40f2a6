package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidSignature = errors.New("crypto: invalid signature")

// RequestDigest hashes the parts of a signed gateway request.
func RequestDigest(method, path, timestamp string, body []byte) []byte {
	payload := make([]byte, 0, len(method)+len(path)+len(timestamp)+len(body)+3)
	payload = append(payload, strings.ToUpper(method)...)
	payload = append(payload, '\n')
	payload = append(payload, path...)
	payload = append(payload, '\n')
	payload = append(payload, timestamp...)
	payload = append(payload, '\n')
	payload = append(payload, body...)
	return crypto.Keccak256(payload)
}

// Sign produces a 65-byte recoverable signature over digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if k == nil || k.PrivateKey == nil {
		return nil, errors.New("crypto: nil private key")
	}
	return crypto.Sign(digest, k.PrivateKey)
}

// SignHex is Sign with a 0x-prefixed hex result.
func (k *PrivateKey) SignHex(digest []byte) (string, error) {
	sig, err := k.Sign(digest)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverSigner returns the address that produced sig over digest. Only
// canonical low-s signatures with v in {0, 1} are accepted.
func RecoverSigner(digest, sig []byte) ([20]byte, error) {
	var out [20]byte
	if len(sig) != crypto.SignatureLength {
		return out, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(sig[64], r, s, true) {
		return out, fmt.Errorf("%w: non-canonical", ErrInvalidSignature)
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	copy(out[:], crypto.PubkeyToAddress(*pub).Bytes())
	return out, nil
}

// RecoverSignerHex decodes a hex signature and recovers its signer.
func RecoverSignerHex(digest []byte, sigHex string) ([20]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sigHex), "0x"))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return RecoverSigner(digest, sig)
}
