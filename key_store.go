// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package idmask

import (
	"fmt"
)

// KeyStore is an immutable catalog of secret keys indexed by their 4-bit id,
// with exactly one key marked active. The active key is used for masking;
// any resident key can serve unmasking, which is what allows key rotation
// with backward-readable tokens.
//
// A KeyStore is read-only after construction and safe for concurrent use.
// Clear is a lifecycle action for shutdown paths, not for use while engines
// still reference the store.
type KeyStore struct {
	keys     [MaxKeyID + 1]*SecretKey
	activeID int
	size     int
}

// NewKeyStore returns a KeyStore holding the active key plus any number of
// additional keys. Construction fails with ErrInvalidArgument if the active
// key is nil, any additional key is nil, or two keys share an id.
func NewKeyStore(active *SecretKey, others ...*SecretKey) (*KeyStore, error) {
	if active == nil {
		return nil, fmt.Errorf("%w: nil active key", ErrInvalidArgument)
	}

	s := &KeyStore{activeID: active.ID()}
	s.keys[active.ID()] = active
	s.size = 1

	for _, key := range others {
		if key == nil {
			return nil, fmt.Errorf("%w: nil key", ErrInvalidArgument)
		}
		if s.keys[key.ID()] != nil {
			return nil, fmt.Errorf("%w: duplicate key id %d", ErrInvalidArgument, key.ID())
		}
		s.keys[key.ID()] = key
		s.size++
	}

	return s, nil
}

// ActiveKey returns the key used for masking.
func (s *KeyStore) ActiveKey() *SecretKey {
	return s.keys[s.activeID]
}

// Key returns the key with the given id, or false if no such key is
// resident. Ids outside [0, MaxKeyID] resolve to false.
func (s *KeyStore) Key(id int) (*SecretKey, bool) {
	if id < 0 || id > MaxKeyID {
		return nil, false
	}
	key := s.keys[id]
	return key, key != nil
}

// Size returns the number of resident keys.
func (s *KeyStore) Size() int {
	return s.size
}

// Clear zeroizes the material of every resident key. Engines still bound to
// the store will fail with ErrDestroyedKey afterwards.
func (s *KeyStore) Clear() {
	for _, key := range s.keys {
		if key != nil {
			key.Destroy()
		}
	}
}
