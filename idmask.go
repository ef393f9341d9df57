// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package idmask reversibly transforms internal identifiers (small integers,
// UUIDs, short binary strings, up to 16 bytes) into opaque, unforgeable,
// URL-safe text tokens.
//
// Unlike hashing, the transformation is bijective: every masked token decodes
// back to the exact original identifier bytes. Masking is authenticated, so
// tokens produced under one secret cannot be decoded, truncated, bit-flipped,
// or forged from scratch. An optional randomization mode produces uncorrelated
// tokens for the same underlying identifier, suitable for one-time links.
//
// Two engines are provided. The eight-byte engine masks identifiers of 1-8
// bytes using a single AES data block, plus an encrypted PKCS#7 padding block,
// with an embedded reference value as a lightweight integrity check. The sixteen-byte engine masks identifiers of
// 1-16 bytes with authenticated encryption: HKDF-derived per-token subkeys,
// AES-CBC, and a truncated HMAC-SHA-256.
//
// Example usage:
//
//	key := idmask.MustGenerateSecretKey(0)
//	store, err := idmask.NewKeyStore(key)
//	if err != nil {
//	    // handle error
//	}
//
//	engine, err := idmask.NewSixteenByteEngine(store)
//	if err != nil {
//	    // handle error
//	}
//
//	token, err := engine.MaskInt64(348)
//	if err != nil {
//	    // handle error
//	}
//
//	id, err := engine.Unmask(token)
//	if err != nil {
//	    // handle error
//	}
package idmask

import (
	"errors"
	"fmt"
	"io"

	prng "github.com/sixafter/prng-chacha"
)

var (
	// ErrInvalidInput is returned when the identifier handed to Mask is empty
	// or longer than the engine's supported width.
	ErrInvalidInput = errors.New("invalid identifier length")

	// ErrInvalidKeyID is returned when a key id falls outside the 4-bit
	// range [0, 15] at masking time.
	ErrInvalidKeyID = errors.New("key id outside the 4-bit range")

	// ErrInvalidEngineID is returned when an engine id falls outside the
	// 4-bit range [0, 15]. It indicates internal misconfiguration.
	ErrInvalidEngineID = errors.New("engine id outside the 4-bit range")

	// ErrNotEnoughEntropy is returned when the configured random source
	// cannot supply the requested number of bytes.
	ErrNotEnoughEntropy = errors.New("not enough entropy")

	// ErrEncryption is returned for primitive-level failures on the masking
	// path. It carries the underlying cause.
	ErrEncryption = errors.New("encryption failed")

	// ErrDecryption is returned for primitive-level failures on the
	// unmasking path, including invalid ciphertext padding.
	ErrDecryption = errors.New("decryption failed")

	// ErrStateMismatch is returned when a token fails authentication: wrong
	// engine id in the version byte, unknown key id, invalid padding or
	// reference mismatch (eight-byte engine), MAC mismatch (sixteen-byte
	// engine), or a structurally invalid token. An eight-byte padding
	// failure also matches ErrDecryption.
	ErrStateMismatch = errors.New("token state mismatch")

	// ErrInvalidArgument is returned for construction-time violations such
	// as secret key constraint failures or duplicate key ids in a store.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNilRandReader is returned when the random reader is set to nil.
	ErrNilRandReader = errors.New("nil random reader")

	// ErrDestroyedKey is returned when a masking or unmasking operation
	// resolves a key whose material has been zeroized via Destroy or Clear.
	ErrDestroyedKey = errors.New("secret key has been destroyed")
)

// Engine defines the interface for masking and unmasking identifiers.
//
// An Engine is bound to its key store, mode, and random source at
// construction and holds no mutable state; all methods are safe for
// concurrent use on a shared instance.
type Engine interface {
	// Mask transforms the identifier bytes into an opaque URL-safe token.
	// The identifier must be between 1 byte and the engine's width (8 or 16
	// bytes) long.
	Mask(id []byte) (string, error)

	// MaskInt64 masks the decimal string representation of id, byte for
	// byte. This mirrors the raw engine contract for integer inputs; callers
	// wanting compact binary encodings should convert the integer themselves
	// and use Mask.
	MaskInt64(id int64) (string, error)

	// Unmask decodes and authenticates a token produced by Mask and returns
	// the original identifier bytes. Identifiers are stored right-padded
	// with zero bytes, so an identifier that legitimately ends in zero bytes
	// is returned trimmed; fixed-width callers must re-pad out-of-band.
	Unmask(token string) ([]byte, error)
}

// Option defines a function type for configuring an Engine.
type Option func(*ConfigOptions)

// WithRandReader sets a custom random source for the engine. Randomized
// tokens draw their per-token entropy from this reader.
func WithRandReader(reader io.Reader) Option {
	return func(c *ConfigOptions) {
		c.RandReader = reader
	}
}

// WithRandomizedTokens toggles randomized masking. When enabled, masking the
// same identifier twice yields unrelated tokens; when disabled (the
// default), masking is deterministic.
func WithRandomizedTokens(randomize bool) Option {
	return func(c *ConfigOptions) {
		c.Randomize = randomize
	}
}

// WithHighSecurity toggles high-security mode on the sixteen-byte engine,
// doubling the authentication tag from 8 to 16 bytes. Tokens minted in one
// mode cannot be verified in the other, so this must be a stable
// per-deployment decision. The eight-byte engine ignores this option.
func WithHighSecurity(enabled bool) Option {
	return func(c *ConfigOptions) {
		c.HighSecurity = enabled
	}
}

// ConfigOptions holds the configurable options for an Engine.
// It is used with the Function Options pattern.
type ConfigOptions struct {
	// RandReader is the source of randomness for randomized tokens.
	// By default, it uses prng.Reader, a cryptographically secure
	// ChaCha20-based source that is safe for concurrent use.
	RandReader io.Reader

	// Randomize selects randomized masking; deterministic when false.
	Randomize bool

	// HighSecurity selects the 16-byte authentication tag on the
	// sixteen-byte engine.
	HighSecurity bool
}

// Config holds the runtime configuration of an engine.
// It is immutable after initialization.
type Config interface {
	// RandReader returns the source of randomness used for randomized tokens.
	RandReader() io.Reader

	// RandomizedTokens returns true if the engine mints randomized tokens.
	RandomizedTokens() bool

	// HighSecurity returns true if the engine uses the extended
	// authentication tag.
	HighSecurity() bool

	// KeyStore returns the key store the engine is bound to.
	KeyStore() *KeyStore
}

// Configuration defines the interface for retrieving engine configuration.
type Configuration interface {
	// Config returns the runtime configuration of the engine.
	Config() Config
}

// runtimeConfig holds the runtime configuration shared by both engines.
// It is immutable after initialization.
type runtimeConfig struct {
	randReader   io.Reader
	store        *KeyStore
	randomize    bool
	highSecurity bool
}

// newRuntimeConfig validates the store and options and builds the immutable
// engine configuration.
func newRuntimeConfig(store *KeyStore, options ...Option) (*runtimeConfig, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil key store", ErrInvalidArgument)
	}

	configOpts := &ConfigOptions{
		RandReader: prng.Reader,
	}

	for _, opt := range options {
		opt(configOpts)
	}

	if configOpts.RandReader == nil {
		return nil, ErrNilRandReader
	}

	return &runtimeConfig{
		randReader:   configOpts.RandReader,
		store:        store,
		randomize:    configOpts.Randomize,
		highSecurity: configOpts.HighSecurity,
	}, nil
}

// RandReader returns the source of randomness used for randomized tokens.
func (c *runtimeConfig) RandReader() io.Reader {
	return c.randReader
}

// RandomizedTokens returns true if the engine mints randomized tokens.
func (c *runtimeConfig) RandomizedTokens() bool {
	return c.randomize
}

// HighSecurity returns true if the engine uses the extended authentication tag.
func (c *runtimeConfig) HighSecurity() bool {
	return c.highSecurity
}

// KeyStore returns the key store the engine is bound to.
func (c *runtimeConfig) KeyStore() *KeyStore {
	return c.store
}

// readEntropy reads exactly n bytes from r, mapping any shortfall to
// ErrNotEnoughEntropy with the underlying cause attached.
func readEntropy(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEnoughEntropy, err)
	}
	return buf, nil
}
