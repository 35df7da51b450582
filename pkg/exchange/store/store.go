/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package store provides typed, invitation-correlated exchange data stores.
//
// A Store correlates one payload value per invitation ID with create-once,
// read-many, delete-on-demand semantics: writes are idempotent upserts (last
// write wins), reads report absence as a normal outcome, and deletes are
// no-ops for unknown IDs. Operations on the same ID are serialized; operations
// on different IDs do not block one another.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/bluele/gcache"
	spistorage "github.com/hyperledger/aries-framework-go/spi/storage"
)

const (
	// payloadTag marks every entry so stores can be enumerated via tag query.
	payloadTag = "exchangePayload"

	readCacheSize = 512
)

// Provider supplies the backing storage, in the manner of an agent context.
type Provider interface {
	StorageProvider() spistorage.Provider
}

// Store is an exchange data store holding one payload of type P per
// invitation ID. Stored payloads survive reads: reusable invitations are read
// repeatedly across holder connections, so reads go through a small LRU.
type Store[P any] struct {
	name  string
	store spistorage.Store
	cache gcache.Cache
	locks *keyLocks
}

// Open opens the named exchange data store on the provider's storage.
func Open[P any](ctx Provider, name string) (*Store[P], error) {
	s, err := ctx.StorageProvider().OpenStore(name)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", name, err)
	}

	err = ctx.StorageProvider().SetStoreConfig(name, spistorage.StoreConfiguration{TagNames: []string{payloadTag}})
	if err != nil {
		return nil, fmt.Errorf("set store config %q: %w", name, err)
	}

	return &Store[P]{
		name:  name,
		store: s,
		cache: gcache.New(readCacheSize).LRU().Build(),
		locks: newKeyLocks(),
	}, nil
}

// Put associates payload with the invitation ID, replacing any previous value.
// Overwrites are accepted so invitation retries resolve to the latest payload.
func (s *Store[P]) Put(invitationID string, payload P) error {
	if invitationID == "" {
		return errors.New("invitation ID is required")
	}

	unlock := s.locks.lock(invitationID)
	defer unlock()

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %q: %w", invitationID, err)
	}

	if err := s.store.Put(invitationID, payloadBytes, spistorage.Tag{Name: payloadTag}); err != nil {
		return fmt.Errorf("put payload for %q: %w", invitationID, err)
	}

	s.cache.Remove(invitationID)

	return nil
}

// Get returns the payload for the invitation ID. A missing entry is reported
// via the bool result, not an error: absence is an expected, common outcome.
//
// The cache holds the marshalled bytes, not the decoded value, so every call
// decodes a fresh payload: callers own the returned maps and may mutate them
// without poisoning later reads.
func (s *Store[P]) Get(invitationID string) (P, bool, error) {
	var zero P

	unlock := s.locks.lock(invitationID)
	defer unlock()

	if cached, err := s.cache.Get(invitationID); err == nil {
		if raw, ok := cached.([]byte); ok {
			var payload P
			if err := json.Unmarshal(raw, &payload); err == nil {
				return payload, true, nil
			}
		}
	}

	payloadBytes, err := s.store.Get(invitationID)
	if errors.Is(err, spistorage.ErrDataNotFound) {
		return zero, false, nil
	}

	if err != nil {
		return zero, false, fmt.Errorf("get payload for %q: %w", invitationID, err)
	}

	var payload P
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return zero, false, fmt.Errorf("unmarshal payload for %q: %w", invitationID, err)
	}

	_ = s.cache.Set(invitationID, payloadBytes)

	return payload, true, nil
}

// Delete removes the payload for the invitation ID, if any.
func (s *Store[P]) Delete(invitationID string) error {
	unlock := s.locks.lock(invitationID)
	defer unlock()

	s.cache.Remove(invitationID)

	if err := s.store.Delete(invitationID); err != nil {
		return fmt.Errorf("delete payload for %q: %w", invitationID, err)
	}

	return nil
}

// Entry pairs a stored payload with its invitation ID.
type Entry[P any] struct {
	InvitationID string `json:"invitation_id"`
	Payload      P      `json:"payload"`
}

// List enumerates all stored payloads.
func (s *Store[P]) List() ([]Entry[P], error) {
	iter, err := s.store.Query(payloadTag)
	if err != nil {
		return nil, fmt.Errorf("query store %q: %w", s.name, err)
	}

	defer func() {
		_ = iter.Close()
	}()

	var entries []Entry[P]

	for {
		more, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate store %q: %w", s.name, err)
		}

		if !more {
			break
		}

		key, err := iter.Key()
		if err != nil {
			return nil, fmt.Errorf("iterate store %q: %w", s.name, err)
		}

		value, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("iterate store %q: %w", s.name, err)
		}

		var payload P
		if err := json.Unmarshal(value, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload for %q: %w", key, err)
		}

		entries = append(entries, Entry[P]{InvitationID: key, Payload: payload})
	}

	return entries, nil
}

// keyLocks serializes operations per key without a store-wide lock, so
// unrelated invitations never contend.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (l *keyLocks) lock(key string) (unlock func()) {
	l.mu.Lock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}

	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()

	return func() {
		kl.mu.Unlock()

		l.mu.Lock()
		kl.refs--

		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
