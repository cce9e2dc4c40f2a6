package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"runclub/crypto"
)

const (
	// HeaderSigner carries the claimed signer address (bech32 or 0x hex).
	HeaderSigner = "X-Runclub-Signer"
	// HeaderTimestamp is the unix timestamp (seconds) used when signing the request.
	HeaderTimestamp = "X-Runclub-Timestamp"
	// HeaderSignature carries the hex-encoded recoverable secp256k1 signature.
	HeaderSignature = "X-Runclub-Signature"
	// MaxBodyForSignature is the maximum body size we will hash when authenticating.
	MaxBodyForSignature int = 1 << 20 // 1 MiB

	maxAllowedTimestampSkew  = 10 * time.Minute
	defaultTimestampSkew     = 5 * time.Minute
	defaultNonceCapacity     = 4096
	maxNonceCapacity         = 65536
	persistencePruneInterval = time.Minute
)

var (
	ErrMissingHeaders = errors.New("auth: missing signature headers")
	ErrStaleRequest   = errors.New("auth: timestamp outside allowed skew")
	ErrSignerMismatch = errors.New("auth: signature does not match signer")
	ErrReplayed       = errors.New("auth: signature already used")
)

// Principal is the verified signer of a request.
type Principal struct {
	Signer [20]byte
}

// NonceRecord captures a persisted signature use.
type NonceRecord struct {
	Signer     string
	Timestamp  string
	Signature  string
	ObservedAt time.Time
}

// NoncePersistence provides durable storage for observed signatures so replays
// are rejected across restarts.
type NoncePersistence interface {
	EnsureNonce(ctx context.Context, record NonceRecord) (bool, error)
	RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error)
	PruneNonces(ctx context.Context, cutoff time.Time) error
}

// Verifier checks secp256k1 request signatures. A signature is accepted once
// within the skew window.
type Verifier struct {
	allowedTimestampSkew time.Duration
	nowFn                func() time.Time
	seen                 *replayCache

	persistence NoncePersistence
	pruneMu     sync.Mutex
	lastPruned  time.Time
}

// NewVerifier builds a Verifier. The replay window equals twice the skew so a
// signature cannot be reused while its timestamp is still acceptable.
func NewVerifier(skew time.Duration, nonceCapacity int, nowFn func() time.Time, persistence NoncePersistence) *Verifier {
	if nowFn == nil {
		nowFn = time.Now
	}
	if skew <= 0 {
		skew = defaultTimestampSkew
	}
	if skew > maxAllowedTimestampSkew {
		skew = maxAllowedTimestampSkew
	}
	return &Verifier{
		allowedTimestampSkew: skew,
		nowFn:                nowFn,
		seen:                 newReplayCache(2*skew, nonceCapacity),
		persistence:          persistence,
	}
}

// Authenticate validates the signature headers against the request and body.
func (v *Verifier) Authenticate(r *http.Request, body []byte) (*Principal, error) {
	if len(body) > MaxBodyForSignature {
		return nil, fmt.Errorf("request body exceeds %d bytes", MaxBodyForSignature)
	}
	signerHeader := strings.TrimSpace(r.Header.Get(HeaderSigner))
	timestampHeader := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	signatureHeader := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if signerHeader == "" || timestampHeader == "" || signatureHeader == "" {
		return nil, ErrMissingHeaders
	}
	claimed, err := crypto.ParseAddress(signerHeader)
	if err != nil {
		return nil, err
	}
	ts, err := parseUnixTimestamp(timestampHeader)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	now := v.nowFn().UTC()
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.allowedTimestampSkew {
		return nil, fmt.Errorf("%w of %s", ErrStaleRequest, v.allowedTimestampSkew)
	}
	digest := crypto.RequestDigest(r.Method, CanonicalRequestPath(r), timestampHeader, body)
	recovered, err := crypto.RecoverSignerHex(digest, signatureHeader)
	if err != nil {
		return nil, err
	}
	if recovered != claimed {
		return nil, ErrSignerMismatch
	}
	record := NonceRecord{
		Signer:     fmt.Sprintf("%x", claimed),
		Timestamp:  timestampHeader,
		Signature:  strings.ToLower(strings.TrimPrefix(signatureHeader, "0x")),
		ObservedAt: now,
	}
	duplicate, err := v.registerNonce(r.Context(), record)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, ErrReplayed
	}
	return &Principal{Signer: claimed}, nil
}

// HydrateNonces warms the in-memory cache with persisted signature records.
func (v *Verifier) HydrateNonces(ctx context.Context, cutoff time.Time) error {
	if v == nil || v.persistence == nil {
		return nil
	}
	records, err := v.persistence.RecentNonces(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load persistent nonces: %w", err)
	}
	for _, rec := range records {
		if rec.Signer == "" || rec.Timestamp == "" || rec.Signature == "" {
			continue
		}
		observed := rec.ObservedAt
		if observed.IsZero() {
			observed = cutoff
		}
		v.seen.Add(rec.Signature, observed)
	}
	return nil
}

func (v *Verifier) registerNonce(ctx context.Context, record NonceRecord) (bool, error) {
	sig := record.Signature
	if v.seen.Contains(sig, record.ObservedAt) {
		return true, nil
	}
	if v.persistence != nil {
		if err := v.prunePersistent(ctx, record.ObservedAt); err != nil {
			return false, err
		}
		existed, err := v.persistence.EnsureNonce(ctx, record)
		if err != nil {
			return false, fmt.Errorf("persist nonce: %w", err)
		}
		if existed {
			v.seen.Add(sig, record.ObservedAt)
			return true, nil
		}
	}
	v.seen.Add(sig, record.ObservedAt)
	return false, nil
}

func (v *Verifier) prunePersistent(ctx context.Context, now time.Time) error {
	v.pruneMu.Lock()
	defer v.pruneMu.Unlock()
	if !v.lastPruned.IsZero() && now.Sub(v.lastPruned) < persistencePruneInterval {
		return nil
	}
	if err := v.persistence.PruneNonces(ctx, now.Add(-v.seen.ttl)); err != nil {
		return fmt.Errorf("prune persistent nonces: %w", err)
	}
	v.lastPruned = now
	return nil
}

// CanonicalRequestPath normalises URL paths and query ordering for signing.
func CanonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if r.URL.RawQuery != "" {
		path += "?" + CanonicalQuery(r.URL.RawQuery)
	}
	return path
}

// CanonicalQuery normalises raw query strings for stable signing.
func CanonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// SignRequest sets the signature headers on r for body using key.
func SignRequest(r *http.Request, body []byte, key *crypto.PrivateKey, now time.Time) error {
	timestamp := strconv.FormatInt(now.Unix(), 10)
	digest := crypto.RequestDigest(r.Method, CanonicalRequestPath(r), timestamp, body)
	sig, err := key.SignHex(digest)
	if err != nil {
		return err
	}
	r.Header.Set(HeaderSigner, key.PubKey().Address().String())
	r.Header.Set(HeaderTimestamp, timestamp)
	r.Header.Set(HeaderSignature, sig)
	return nil
}

func parseUnixTimestamp(v string) (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}

// replayCache remembers signatures for ttl, dropping the oldest entries once
// capacity is reached.
type replayCache struct {
	ttl      time.Duration
	capacity int

	mu    sync.Mutex
	seen  map[string]time.Time
	queue []string
}

func newReplayCache(ttl time.Duration, capacity int) *replayCache {
	if capacity <= 0 {
		capacity = defaultNonceCapacity
	}
	if capacity > maxNonceCapacity {
		capacity = maxNonceCapacity
	}
	return &replayCache{ttl: ttl, capacity: capacity, seen: make(map[string]time.Time, capacity)}
}

// Contains reports whether sig was recorded within ttl of now.
func (c *replayCache) Contains(sig string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expire(now)
	_, ok := c.seen[sig]
	return ok
}

// Add records sig as observed at now.
func (c *replayCache) Add(sig string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expire(now)
	if _, ok := c.seen[sig]; !ok {
		for len(c.queue) >= c.capacity {
			c.dropOldest()
		}
		c.queue = append(c.queue, sig)
	}
	c.seen[sig] = now
}

func (c *replayCache) expire(now time.Time) {
	cutoff := now.Add(-c.ttl)
	for len(c.queue) > 0 {
		if at, ok := c.seen[c.queue[0]]; ok && !at.Before(cutoff) {
			return
		}
		c.dropOldest()
	}
}

func (c *replayCache) dropOldest() {
	delete(c.seen, c.queue[0])
	c.queue[0] = ""
	c.queue = c.queue[1:]
}
