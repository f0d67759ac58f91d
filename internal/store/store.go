package store

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/chidi150c/polyguard/internal/alerts"
	"github.com/chidi150c/polyguard/internal/orders"
)

const (
	prefixOrder = "o:"
	prefixAlert = "a:"
)

// Store persists orders and alerts in Pebble so a restart can rehydrate
// the tracker and the alert registry. Values are JSON.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the database in dir. A nil fs uses the OS filesystem.
func Open(dir string, fs vfs.FS) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(16 << 20),
		MemTableSize: 8 << 20,
		MaxOpenFiles: 256,
		BytesPerSync: 512 << 10,
	}
	defer opts.Cache.Unref()
	if fs != nil {
		opts.FS = fs
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func orderKey(id string) []byte { return []byte(prefixOrder + id) }
func alertKey(id string) []byte { return []byte(prefixAlert + id) }

func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

func (s *Store) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Store) SaveOrder(o orders.Order) error { return s.put(orderKey(o.ID), o) }

func (s *Store) SaveAlert(a alerts.Alert) error { return s.put(alertKey(a.ID), a) }

// DeleteAlert removes an alert. Deleting a missing key is not an error.
func (s *Store) DeleteAlert(id string) error {
	if err := s.db.Delete(alertKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("delete alert %s: %w", id, err)
	}
	return nil
}

func (s *Store) LoadOrders() ([]orders.Order, error) {
	var out []orders.Order
	err := s.scan([]byte(prefixOrder), func(v []byte) error {
		var o orders.Order
		if err := json.Unmarshal(v, &o); err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, err
}

func (s *Store) LoadAlerts() ([]alerts.Alert, error) {
	var out []alerts.Alert
	err := s.scan([]byte(prefixAlert), func(v []byte) error {
		var a alerts.Alert
		if err := json.Unmarshal(v, &a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

func (s *Store) scan(prefix []byte, fn func(v []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("iterate %s: %w", prefix, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
	}
	return iter.Error()
}
