package state

import (
	"errors"
	"sort"
	"sync"

	"runclub/storage"
)

type journalEntry struct {
	value   []byte
	deleted bool
}

// Journal buffers writes on top of a database so a call can be committed as
// one batch or thrown away. Reads fall through to the backing store for keys
// the journal has not touched.
type Journal struct {
	mu      sync.RWMutex
	db      storage.Database
	pending map[string]journalEntry
}

// NewJournal returns an empty overlay on db.
func NewJournal(db storage.Database) *Journal {
	return &Journal{db: db, pending: make(map[string]journalEntry)}
}

// Get returns the value for key or nil when the key has no value.
func (j *Journal) Get(key []byte) ([]byte, error) {
	j.mu.RLock()
	entry, ok := j.pending[string(key)]
	j.mu.RUnlock()
	if ok {
		if entry.deleted {
			return nil, nil
		}
		return append([]byte(nil), entry.value...), nil
	}
	if j.db == nil {
		return nil, nil
	}
	value, err := j.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Update stages a write.
func (j *Journal) Update(key, value []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending[string(key)] = journalEntry{value: append([]byte(nil), value...)}
	return nil
}

// Delete stages a removal.
func (j *Journal) Delete(key []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending[string(key)] = journalEntry{deleted: true}
	return nil
}

// Dirty reports the number of staged keys.
func (j *Journal) Dirty() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.pending)
}

// Batch converts the staged writes into a storage batch in key order.
func (j *Journal) Batch() *storage.Batch {
	j.mu.RLock()
	defer j.mu.RUnlock()
	keys := make([]string, 0, len(j.pending))
	for key := range j.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, key := range keys {
		entry := j.pending[key]
		if entry.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), entry.value)
	}
	return batch
}

// Commit writes every staged change to the backing store and clears the
// journal. On failure nothing is cleared so the caller may discard.
func (j *Journal) Commit() error {
	if j.db == nil {
		return errors.New("state: journal has no backing store")
	}
	if err := j.db.Write(j.Batch()); err != nil {
		return err
	}
	j.Discard()
	return nil
}

// Discard drops every staged change.
func (j *Journal) Discard() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = make(map[string]journalEntry)
}
