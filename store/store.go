// Package store is a write-only match-state snapshot store backed by
// bbolt, for operator inspection only — the runtime's Non-goal of "no
// persistence across restart" stays intact because nothing here is
// ever read back into a live match; the runtime itself never reads
// this file.
package store

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"
)

var snapshotsBucket = []byte("snapshots")

// Store wraps a bbolt database file holding one JSON-encoded snapshot
// per match identifier, overwritten on every write.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the bbolt file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt file.
func (s *Store) Close() error { return s.db.Close() }

// Put mirrors value as the latest snapshot for matchID. Called by the
// match reactor after every completed turn; never read back by it.
func (s *Store) Put(matchID uint64, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(snapshotsBucket)
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], matchID)
		return b.Put(key[:], payload)
	})
}

// Get reads back the latest snapshot for matchID, for operator
// inspection; no runtime path and no cmd/reactorium subcommand calls it.
func (s *Store) Get(matchID uint64) (json.RawMessage, bool, error) {
	var payload []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(snapshotsBucket)
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], matchID)
		if v := b.Get(key[:]); v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if payload == nil {
		return nil, false, nil
	}
	return json.RawMessage(payload), true, nil
}
