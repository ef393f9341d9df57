// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package idmask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrNilRandReader ensures that engine construction returns
// ErrNilRandReader when the random reader is set to nil.
func TestErrNilRandReader(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	_, err := NewEightByteEngine(goldenStore(t), WithRandReader(nil))
	is.Equal(ErrNilRandReader, err)

	_, err = NewSixteenByteEngine(goldenStore(t), WithRandReader(nil))
	is.Equal(ErrNilRandReader, err)
}

// TestErrInvalidArgumentNilStore ensures that engine construction rejects a
// nil key store.
func TestErrInvalidArgumentNilStore(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	_, err := NewEightByteEngine(nil)
	is.ErrorIs(err, ErrInvalidArgument)

	_, err = NewSixteenByteEngine(nil)
	is.ErrorIs(err, ErrInvalidArgument)
}

// TestErrNotEnoughEntropy ensures that a failing random source surfaces as
// ErrNotEnoughEntropy through randomized masking on both engines.
func TestErrNotEnoughEntropy(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	eight, err := NewEightByteEngine(goldenStore(t),
		WithRandomizedTokens(true),
		WithRandReader(failingEntropyReader{}),
	)
	is.NoError(err, "construction should succeed; the reader fails only on use")

	_, err = eight.Mask([]byte("foo"))
	is.ErrorIs(err, ErrNotEnoughEntropy)

	sixteen, err := NewSixteenByteEngine(goldenStore(t),
		WithRandomizedTokens(true),
		WithRandReader(failingEntropyReader{}),
	)
	is.NoError(err)

	_, err = sixteen.Mask([]byte("foo"))
	is.ErrorIs(err, ErrNotEnoughEntropy)
}

// TestErrNotEnoughEntropyDeterministic ensures that deterministic engines
// never touch the random source and therefore succeed with a failing one.
func TestErrNotEnoughEntropyDeterministic(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	engine, err := NewSixteenByteEngine(goldenStore(t), WithRandReader(failingEntropyReader{}))
	is.NoError(err)

	_, err = engine.Mask([]byte("foo"))
	is.NoError(err, "deterministic masking should not draw randomness")
}

// TestErrStateMismatchUnknownKey ensures that unmasking under a store
// missing the minting key id fails with ErrStateMismatch.
func TestErrStateMismatchUnknownKey(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	mintStore, err := NewKeyStore(goldenKey(t, 12))
	is.NoError(err)
	mint, err := NewSixteenByteEngine(mintStore)
	is.NoError(err)
	token, err := mint.Mask([]byte("foo"))
	is.NoError(err)

	verify, err := NewSixteenByteEngine(goldenStore(t))
	is.NoError(err)
	_, err = verify.Unmask(token)
	is.ErrorIs(err, ErrStateMismatch)
}

// TestErrorsAreDistinct ensures the sentinel errors do not alias each
// other; callers branch on them with errors.Is.
func TestErrorsAreDistinct(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	sentinels := []error{
		ErrInvalidInput,
		ErrInvalidKeyID,
		ErrInvalidEngineID,
		ErrNotEnoughEntropy,
		ErrEncryption,
		ErrDecryption,
		ErrStateMismatch,
		ErrInvalidArgument,
		ErrNilRandReader,
		ErrDestroyedKey,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			is.NotErrorIs(a, b, "sentinels %d and %d must be distinct", i, j)
		}
	}
}
