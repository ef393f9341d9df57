// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package idmask

import (
	"crypto/aes"
	"crypto/subtle"
	"fmt"
	"strconv"
)

const (
	// MaxEightByteIDLength is the widest identifier the eight-byte engine
	// accepts.
	MaxEightByteIDLength = 8

	// referenceLength is the width of the reference value occupying the
	// first half of the AES block.
	referenceLength = 8

	// eightByteCiphertextLength is the ciphertext width: the 16-byte
	// reference-plus-payload block followed by the encrypted PKCS#7 padding
	// block.
	eightByteCiphertextLength = 2 * aesBlockLength
)

// eightByteEngine masks identifiers of 1-8 bytes using AES-256 in ECB
// arrangement over two blocks: a data block carrying an 8-byte reference
// value next to the zero-padded payload, followed by a PKCS#7 padding block.
// On unmasking, the padding must be valid and the reference must
// decrypt back to its expected value. The padding block is identical in
// every token under a key, so the reference is this engine's only
// authenticator. It gives a 2^-64 forgery probability, adequate for
// short-lived opaque ids but weaker than the sixteen-byte engine.
type eightByteEngine struct {
	config *runtimeConfig
}

// NewEightByteEngine returns an Engine masking identifiers of up to 8 bytes.
// It accepts variadic Option parameters to configure the engine; the
// WithHighSecurity option has no effect on this engine.
//
// Deterministic tokens (the default) embed an all-zero reference value, so
// masking the same identifier twice yields the same token. With
// WithRandomizedTokens, each token embeds 8 fresh random bytes instead and
// carries them alongside the ciphertext, growing the token and making
// repeated maskings of one identifier uncorrelated.
func NewEightByteEngine(store *KeyStore, options ...Option) (Engine, error) {
	config, err := newRuntimeConfig(store, options...)
	if err != nil {
		return nil, err
	}
	return &eightByteEngine{config: config}, nil
}

// Config returns the runtime configuration for the engine.
// It implements the Configuration interface.
func (e *eightByteEngine) Config() Config {
	return e.config
}

// Mask transforms the identifier into an opaque URL-safe token.
func (e *eightByteEngine) Mask(id []byte) (string, error) {
	if len(id) < 1 || len(id) > MaxEightByteIDLength {
		return "", fmt.Errorf("%w: got %d bytes, want 1 to %d", ErrInvalidInput, len(id), MaxEightByteIDLength)
	}

	key := e.config.store.ActiveKey()
	if key.destroyed() {
		return "", ErrDestroyedKey
	}

	reference := make([]byte, referenceLength)
	if e.config.randomize {
		var err error
		if reference, err = readEntropy(e.config.randReader, referenceLength); err != nil {
			return "", err
		}
	}

	block, err := aes.NewCipher(cipherKey(key.Bytes()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	// reference || zero-padded payload, then a full PKCS#7 padding block.
	plain := make([]byte, eightByteCiphertextLength)
	copy(plain, reference)
	copy(plain[referenceLength:], id)
	for i := aesBlockLength; i < eightByteCiphertextLength; i++ {
		plain[i] = aesBlockLength
	}

	ciphertext := make([]byte, eightByteCiphertextLength)
	block.Encrypt(ciphertext[:aesBlockLength], plain[:aesBlockLength])
	block.Encrypt(ciphertext[aesBlockLength:], plain[aesBlockLength:])

	version, err := packVersion(key.ID(), EightByteEngineID, ciphertext[0])
	if err != nil {
		return "", err
	}

	raw := make([]byte, 0, 1+referenceLength+eightByteCiphertextLength)
	raw = append(raw, version)
	if e.config.randomize {
		raw = append(raw, reference...)
	}
	raw = append(raw, ciphertext...)

	return encodeToken(raw), nil
}

// MaskInt64 masks the decimal string representation of id.
func (e *eightByteEngine) MaskInt64(id int64) (string, error) {
	return e.Mask(strconv.AppendInt(nil, id, 10))
}

// Unmask decodes and authenticates a token and returns the original
// identifier bytes.
func (e *eightByteEngine) Unmask(token string) ([]byte, error) {
	raw, err := decodeToken(token)
	if err != nil {
		return nil, err
	}

	want := 1 + eightByteCiphertextLength
	if e.config.randomize {
		want += referenceLength
	}
	if len(raw) != want {
		return nil, fmt.Errorf("%w: token length %d, want %d", ErrStateMismatch, len(raw), want)
	}

	version := raw[0]
	expectedReference := make([]byte, referenceLength)
	ciphertext := raw[1:]
	if e.config.randomize {
		copy(expectedReference, raw[1:1+referenceLength])
		ciphertext = raw[1+referenceLength:]
	}

	keyID, engineID := unpackVersion(version, ciphertext[0])
	if engineID != EightByteEngineID {
		return nil, fmt.Errorf("%w: token was not produced by this engine", ErrStateMismatch)
	}
	key, ok := e.config.store.Key(keyID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown key id", ErrStateMismatch)
	}
	if key.destroyed() {
		return nil, ErrDestroyedKey
	}

	block, err := aes.NewCipher(cipherKey(key.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	plain := make([]byte, eightByteCiphertextLength)
	block.Decrypt(plain[:aesBlockLength], ciphertext[:aesBlockLength])
	block.Decrypt(plain[aesBlockLength:], ciphertext[aesBlockLength:])

	// Under a foreign key or a tampered ciphertext the padding block
	// decrypts to noise, so a padding failure is an authentication failure.
	plain, err = pkcs7Unpad(plain)
	if err == nil && len(plain) != aesBlockLength {
		err = fmt.Errorf("%w: invalid padding", ErrDecryption)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStateMismatch, err)
	}

	if subtle.ConstantTimeCompare(plain[:referenceLength], expectedReference) != 1 {
		return nil, fmt.Errorf("%w: reference mismatch", ErrStateMismatch)
	}

	return trimZeroPadding(plain[referenceLength:]), nil
}
