package vault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// tokenPrefix keys token records in the store.
var tokenPrefix = []byte("t:")

// Record is what the wallet remembers about a token file it has touched.
// Advisory only: the TXF file on disk stays the source of truth.
type Record struct {
	TokenID   string    `json:"tokenId"`   // TokenID is the token identifier imprint
	Path      string    `json:"path"`      // Path is the TXF file location at last touch
	Status    string    `json:"status"`    // Status is the envelope status at last touch
	Scenario  string    `json:"scenario"`  // Scenario is the last resolved ownership scenario, if any
	UpdatedAt time.Time `json:"updatedAt"` // UpdatedAt is the last touch time
}

// Vault is a Pebble-backed index of known tokens. Writes are synced
// immediately; the wallet writes once per command, durability beats latency.
type Vault struct {
	db *pebble.DB
}

// Open opens (or creates) a vault at the given path.
func Open(path string) (*Vault, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(4 << 20), // 4 MB cache
		MemTableSize: 4 << 20,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open vault %s:\n%w", path, err)
	}

	return &Vault{db: db}, nil
}

// Put stores or replaces a token record.
func (v *Vault) Put(rec Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal vault record:\n%w", err)
	}

	return v.db.Set(tokenKey(rec.TokenID), value, pebble.Sync)
}

// Get retrieves a token record by ID. Returns nil if unknown.
func (v *Vault) Get(tokenID string) (*Record, error) {
	value, closer, err := v.db.Get(tokenKey(tokenID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var rec Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("parse vault record:\n%w", err)
	}

	return &rec, nil
}

// List returns all token records in key order.
func (v *Vault) List() ([]Record, error) {
	iter, err := v.db.NewIter(&pebble.IterOptions{
		LowerBound: tokenPrefix,
		UpperBound: prefixUpperBound(tokenPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []Record

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}

		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil, fmt.Errorf("parse vault record %q:\n%w", iter.Key(), err)
		}

		records = append(records, rec)
	}

	return records, iter.Error()
}

// Close closes the underlying store.
func (v *Vault) Close() error {
	return v.db.Close()
}

// tokenKey builds the store key for a token ID.
func tokenKey(tokenID string) []byte {
	return append(append([]byte{}, tokenPrefix...), tokenID...)
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Increments the last byte; returns nil if prefix is all 0xFF (full range).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper
		}
	}

	return nil
}
