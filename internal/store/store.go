// SPDX-License-Identifier: MIT

// Package store persists daemon state in an embedded badger database:
// device leases guarding single-host attachment and session records for
// the status API.
//
// Keys:
//   - sessions: "sess:<id>" (JSON)
//   - leases:   "lease:<deviceID>" (JSON, badger TTL)
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var (
	// ErrLeaseHeld reports the device lease belongs to another owner.
	ErrLeaseHeld = errors.New("store: lease held by another owner")
	// ErrSessionNotFound reports a lookup for an unknown session.
	ErrSessionNotFound = errors.New("store: session not found")
)

// SessionRecord tracks one device session for the status API.
type SessionRecord struct {
	SessionID string    `json:"sessionId"`
	DeviceID  string    `json:"deviceId"`
	State     string    `json:"state"`
	Streams   []string  `json:"streams,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitzero"`
	LastError string    `json:"lastError,omitempty"`
}

// Store is a badger-backed state store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store, used by tests and the simulator.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func sessionKey(id string) []byte { return []byte("sess:" + id) }
func leaseKey(device string) []byte { return []byte("lease:" + device) }

// PutSession writes (or overwrites) a session record.
func (s *Store) PutSession(ctx context.Context, rec *SessionRecord) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(rec.SessionID), buf)
	})
}

// GetSession loads one session record.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var out SessionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &out, nil
}

// UpdateSession applies fn to a session record inside one transaction.
func (s *Store) UpdateSession(ctx context.Context, id string, fn func(*SessionRecord) error) (*SessionRecord, error) {
	var out SessionRecord
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		}); err != nil {
			return err
		}
		if err := fn(&out); err != nil {
			return err
		}
		buf, err := json.Marshal(out)
		if err != nil {
			return err
		}
		return txn.Set(sessionKey(id), buf)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &out, nil
}

// DeleteSession removes a session record. Deleting an unknown session is
// not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
}

// ListSessions returns all session records in key order.
func (s *Store) ListSessions(ctx context.Context) ([]*SessionRecord, error) {
	prefix := []byte("sess:")
	var list []*SessionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var rec SessionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			list = append(list, &rec)
		}
		return nil
	})
	return list, err
}

// Lease is a held device lease.
type Lease struct {
	DeviceID  string    `json:"deviceId"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AcquireLease takes the single-writer lease for a device. It fails with
// ErrLeaseHeld while another live owner holds it; badger's TTL reclaims
// leases of crashed owners.
func (s *Store) AcquireLease(ctx context.Context, deviceID, owner string, ttl time.Duration) (*Lease, error) {
	lease := &Lease{DeviceID: deviceID, Owner: owner, ExpiresAt: time.Now().Add(ttl)}
	buf, err := json.Marshal(lease)
	if err != nil {
		return nil, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(leaseKey(deviceID))
		switch {
		case err == nil:
			var current Lease
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}
			if current.Owner != owner {
				return ErrLeaseHeld
			}
			// Re-acquire by the same owner refreshes the TTL.
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.SetEntry(badger.NewEntry(leaseKey(deviceID), buf).WithTTL(ttl))
	})
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// RenewLease extends a lease the owner already holds. A missing or
// foreign-owned lease fails with ErrLeaseHeld.
func (s *Store) RenewLease(ctx context.Context, deviceID, owner string, ttl time.Duration) (*Lease, error) {
	lease := &Lease{DeviceID: deviceID, Owner: owner, ExpiresAt: time.Now().Add(ttl)}
	buf, err := json.Marshal(lease)
	if err != nil {
		return nil, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(leaseKey(deviceID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrLeaseHeld
			}
			return err
		}
		var current Lease
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &current)
		}); err != nil {
			return err
		}
		if current.Owner != owner {
			return ErrLeaseHeld
		}
		return txn.SetEntry(badger.NewEntry(leaseKey(deviceID), buf).WithTTL(ttl))
	})
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// ReleaseLease drops the lease if the owner still holds it. Releasing a
// lost or foreign lease is a no-op.
func (s *Store) ReleaseLease(ctx context.Context, deviceID, owner string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(leaseKey(deviceID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var current Lease
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &current)
		}); err != nil {
			return err
		}
		if current.Owner == owner {
			return txn.Delete(leaseKey(deviceID))
		}
		return nil
	})
}
