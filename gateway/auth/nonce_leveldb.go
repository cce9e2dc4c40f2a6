package auth

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout:
//
//	sig/<signature>          -> rlp(storedNonce)
//	at/<be64 nanos><signature> -> empty, ordered by observation time
var (
	sigPrefix = []byte("sig/")
	atPrefix  = []byte("at/")
)

var errNoncesClosed = errors.New("auth: nonce store not open")

type storedNonce struct {
	Signer     string
	Timestamp  string
	ObservedAt uint64
}

// LevelDBNoncePersistence keeps accepted request signatures on disk so a
// restarted gateway still rejects replays.
type LevelDBNoncePersistence struct {
	db *leveldb.DB
}

// NewLevelDBNoncePersistence opens or creates the store at path.
func NewLevelDBNoncePersistence(path string) (*LevelDBNoncePersistence, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("auth: nonce store path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("auth: resolve nonce path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: open nonce store: %w", err)
	}
	return &LevelDBNoncePersistence{db: db}, nil
}

// Close releases the database.
func (p *LevelDBNoncePersistence) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// EnsureNonce stores record and reports whether its signature was already present.
func (p *LevelDBNoncePersistence) EnsureNonce(_ context.Context, record NonceRecord) (bool, error) {
	if p == nil || p.db == nil {
		return false, errNoncesClosed
	}
	sig := strings.TrimSpace(record.Signature)
	if sig == "" || strings.TrimSpace(record.Signer) == "" || strings.TrimSpace(record.Timestamp) == "" {
		return false, errors.New("auth: nonce record incomplete")
	}
	key := sigKey(sig)
	switch _, err := p.db.Get(key, nil); {
	case err == nil:
		return true, nil
	case !errors.Is(err, leveldb.ErrNotFound):
		return false, fmt.Errorf("auth: load nonce: %w", err)
	}

	observed := record.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	nanos := uint64(observed.UnixNano())
	value, err := rlp.EncodeToBytes(storedNonce{
		Signer:     record.Signer,
		Timestamp:  record.Timestamp,
		ObservedAt: nanos,
	})
	if err != nil {
		return false, fmt.Errorf("auth: encode nonce: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Put(key, value)
	batch.Put(atKey(nanos, sig), nil)
	if err := p.db.Write(batch, nil); err != nil {
		return false, fmt.Errorf("auth: record nonce: %w", err)
	}
	return false, nil
}

// RecentNonces lists signatures observed at or after cutoff, oldest first.
func (p *LevelDBNoncePersistence) RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error) {
	if p == nil || p.db == nil {
		return nil, errNoncesClosed
	}
	iter := p.db.NewIterator(&util.Range{Start: atKey(unixNanos(cutoff), ""), Limit: util.BytesPrefix(atPrefix).Limit}, nil)
	defer iter.Release()

	var records []NonceRecord
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sig, ok := sigFromAtKey(iter.Key())
		if !ok {
			continue
		}
		raw, err := p.db.Get(sigKey(sig), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("auth: load nonce: %w", err)
		}
		var stored storedNonce
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return nil, fmt.Errorf("auth: decode nonce: %w", err)
		}
		records = append(records, NonceRecord{
			Signer:     stored.Signer,
			Timestamp:  stored.Timestamp,
			Signature:  sig,
			ObservedAt: time.Unix(0, int64(stored.ObservedAt)).UTC(),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("auth: scan nonces: %w", err)
	}
	return records, nil
}

// PruneNonces drops signatures observed before cutoff.
func (p *LevelDBNoncePersistence) PruneNonces(ctx context.Context, cutoff time.Time) error {
	if p == nil || p.db == nil {
		return errNoncesClosed
	}
	iter := p.db.NewIterator(&util.Range{Start: atPrefix, Limit: atKey(unixNanos(cutoff), "")}, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sig, ok := sigFromAtKey(iter.Key()); ok {
			batch.Delete(sigKey(sig))
		}
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("auth: scan nonces: %w", err)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := p.db.Write(batch, nil); err != nil {
		return fmt.Errorf("auth: prune nonces: %w", err)
	}
	return nil
}

func sigKey(sig string) []byte {
	return append(append([]byte(nil), sigPrefix...), sig...)
}

func atKey(nanos uint64, sig string) []byte {
	key := make([]byte, 0, len(atPrefix)+8+len(sig))
	key = append(key, atPrefix...)
	key = binary.BigEndian.AppendUint64(key, nanos)
	return append(key, sig...)
}

func sigFromAtKey(key []byte) (string, bool) {
	if len(key) <= len(atPrefix)+8 {
		return "", false
	}
	return string(key[len(atPrefix)+8:]), true
}

func unixNanos(t time.Time) uint64 {
	if t.Before(time.Unix(0, 0)) {
		return 0
	}
	return uint64(t.UnixNano())
}
