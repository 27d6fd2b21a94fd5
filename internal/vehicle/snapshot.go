// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package vehicle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/models"
)

const snapshotPrefix = "state:"

var ErrSnapshotStoreClosed = errors.New("snapshot store closed")

// SnapshotStore persists the latest state per vehicle across restarts.
type SnapshotStore interface {
	Save(ctx context.Context, s models.VehicleState) error
	Delete(ctx context.Context, vehicleID string) error
	LoadAll(ctx context.Context) ([]models.VehicleState, error)
	Close() error
}

// BadgerSnapshotStore keeps one JSON value per vehicle under state:<id>.
type BadgerSnapshotStore struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// OpenBadgerSnapshotStore opens (or creates) the store at path. An empty
// path opens an in-memory store.
func OpenBadgerSnapshotStore(path string) (*BadgerSnapshotStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state snapshot store: %w", err)
	}
	logging.Info().Str("path", path).Bool("in_memory", path == "").Msg("State snapshot store opened")
	return &BadgerSnapshotStore{db: db}, nil
}

func snapshotKey(vehicleID string) []byte {
	return []byte(snapshotPrefix + vehicleID)
}

func (b *BadgerSnapshotStore) Save(_ context.Context, s models.VehicleState) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrSnapshotStoreClosed
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(s.VehicleID), data)
	})
}

func (b *BadgerSnapshotStore) Delete(_ context.Context, vehicleID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrSnapshotStoreClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(vehicleID))
	})
}

// Get returns the stored state for one vehicle.
func (b *BadgerSnapshotStore) Get(_ context.Context, vehicleID string) (*models.VehicleState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrSnapshotStoreClosed
	}

	var s models.VehicleState
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(vehicleID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadAll reads every snapshot. Undecodable entries are logged and skipped.
func (b *BadgerSnapshotStore) LoadAll(ctx context.Context) ([]models.VehicleState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrSnapshotStoreClosed
	}

	var out []models.VehicleState
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(snapshotPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var s models.VehicleState
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &s) }); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable state snapshot")
				continue
			}
			out = append(out, s)
		}
		return nil
	})
	return out, err
}

func (b *BadgerSnapshotStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

var _ SnapshotStore = (*BadgerSnapshotStore)(nil)

// RunGC reclaims value log space until badger reports nothing left to
// rewrite. In-memory stores have no value log and return nil.
func (b *BadgerSnapshotStore) RunGC(discardRatio float64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrSnapshotStoreClosed
	}
	if b.db.Opts().InMemory {
		return nil
	}
	for {
		err := b.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("state snapshot gc: %w", err)
		}
	}
}
