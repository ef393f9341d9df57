// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package idmask

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math"

	ctrdrbg "github.com/sixafter/aes-ctr-drbg"
)

const (
	// MaxKeyID is the largest key id a store can hold; ids are encoded in
	// 4 bits of the token's version byte.
	MaxKeyID = 15

	// MinKeyLength is the minimum secret key length in bytes.
	MinKeyLength = 12

	// MaxKeyLength is the maximum secret key length in bytes.
	MaxKeyLength = 64

	// MinKeyEntropy is the minimum Shannon entropy, in bits per byte, a
	// secret key's byte distribution must reach. This rejects degenerate
	// keys such as repeating patterns; it is a sanity check, not a strength
	// proof.
	MinKeyEntropy = 2.5

	// GeneratedKeyLength is the length of keys produced by
	// GenerateSecretKey: the midpoint of the allowed range.
	GeneratedKeyLength = (MinKeyLength + MaxKeyLength) / 2
)

// SecretKey is validated key material: a 4-bit id plus opaque bytes.
// It is immutable after construction, except for Destroy.
type SecretKey struct {
	bytes []byte
	id    int
}

// NewSecretKey returns a SecretKey for the given id and raw key bytes.
// The bytes are copied. Construction fails with ErrInvalidArgument unless
// the id is within [0, MaxKeyID], the length is within
// [MinKeyLength, MaxKeyLength], the bytes are not all zero, and the Shannon
// entropy of the byte distribution is at least MinKeyEntropy bits per byte.
func NewSecretKey(id int, raw []byte) (*SecretKey, error) {
	if id < 0 || id > MaxKeyID {
		return nil, fmt.Errorf("%w: key id %d outside [0, %d]", ErrInvalidArgument, id, MaxKeyID)
	}
	if len(raw) < MinKeyLength || len(raw) > MaxKeyLength {
		return nil, fmt.Errorf("%w: key length %d outside [%d, %d]", ErrInvalidArgument, len(raw), MinKeyLength, MaxKeyLength)
	}
	if allZero(raw) {
		return nil, fmt.Errorf("%w: key bytes are all zero", ErrInvalidArgument)
	}
	if e := shannonEntropy(raw); e < MinKeyEntropy {
		return nil, fmt.Errorf("%w: key entropy %.2f bits/byte below minimum %.1f", ErrInvalidArgument, e, MinKeyEntropy)
	}

	b := make([]byte, len(raw))
	copy(b, raw)

	return &SecretKey{id: id, bytes: b}, nil
}

// NewSecretKeyFromHex returns a SecretKey for the given id and
// hex-encoded key material. The decoded bytes are validated as in
// NewSecretKey.
func NewSecretKeyFromHex(id int, s string) (*SecretKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed hex key material: %v", ErrInvalidArgument, err)
	}
	return NewSecretKey(id, raw)
}

// GenerateSecretKey returns a SecretKey for the given id with
// GeneratedKeyLength fresh random bytes drawn from a pooled AES-CTR-DRBG.
func GenerateSecretKey(id int) (*SecretKey, error) {
	raw, err := readEntropy(ctrdrbg.Reader, GeneratedKeyLength)
	if err != nil {
		return nil, err
	}
	return NewSecretKey(id, raw)
}

// MustGenerateSecretKey returns a generated SecretKey for the given id and
// panics on failure. It simplifies safe initialization of global variables
// holding keys in tests and examples.
func MustGenerateSecretKey(id int) *SecretKey {
	key, err := GenerateSecretKey(id)
	if err != nil {
		panic(err)
	}
	return key
}

// ID returns the key id.
func (k *SecretKey) ID() int {
	return k.id
}

// Bytes returns the key material. The returned slice is the key's internal
// buffer and must be treated as read-only.
func (k *SecretKey) Bytes() []byte {
	return k.bytes
}

// Equal reports whether both keys hold the same id and the same material.
// The byte comparison is constant time.
func (k *SecretKey) Equal(other *SecretKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.id == other.id && subtle.ConstantTimeCompare(k.bytes, other.bytes) == 1
}

// Destroy zeroizes the key material. Subsequent masking or unmasking with
// this key fails with ErrDestroyedKey.
func (k *SecretKey) Destroy() {
	for i := range k.bytes {
		k.bytes[i] = 0
	}
}

// destroyed reports whether the key material has been zeroized. A valid key
// can never be all zero by construction.
func (k *SecretKey) destroyed() bool {
	return allZero(k.bytes)
}

// allZero reports whether every byte of b is zero.
func allZero(b []byte) bool {
	var acc byte
	for _, c := range b {
		acc |= c
	}
	return acc == 0
}

// shannonEntropy computes the Shannon entropy of b's byte histogram in bits
// per byte: H = -sum(p(b) * log2(p(b))).
func shannonEntropy(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}

	var counts [256]int
	for _, c := range b {
		counts[c]++
	}

	var h float64
	total := float64(len(b))
	for _, n := range counts {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		h -= p * math.Log2(p)
	}
	return h
}
