// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package idmask

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

const (
	// MaxSixteenByteIDLength is the widest identifier the sixteen-byte
	// engine accepts.
	MaxSixteenByteIDLength = 16

	// entropyLength is the width of the per-token entropy value: all zero
	// in deterministic mode, fresh random bytes in randomized mode.
	entropyLength = 16

	// subkeyLength is the HKDF output width. The first 16 bytes are
	// reserved and must not be used as an encryption key; AES runs on the
	// master key bytes directly. The reserved slice keeps the layout open
	// for a future migration to a derived encryption key.
	subkeyLength = 64

	// macLength is the default authentication tag width.
	macLength = 8

	// macLengthHighSecurity is the tag width in high-security mode.
	macLengthHighSecurity = 16
)

// sixteenByteEngine masks identifiers of 1-16 bytes with authenticated
// encryption: per-token subkeys derived via HKDF over HMAC-SHA-256, a single
// AES-256-CBC block, and an HMAC-SHA-256 tag truncated to 8 bytes (16 in
// high-security mode) covering the IV, the ciphertext, and the version byte.
type sixteenByteEngine struct {
	config *runtimeConfig
}

// NewSixteenByteEngine returns an Engine masking identifiers of up to 16
// bytes. It accepts variadic Option parameters to configure the engine.
//
// With WithHighSecurity, the authentication tag doubles from 8 to 16 bytes.
// Both modes produce the same ciphertext, but tokens minted in one mode
// cannot be verified in the other; the mode is a stable per-deployment
// decision, not a per-call toggle.
func NewSixteenByteEngine(store *KeyStore, options ...Option) (Engine, error) {
	config, err := newRuntimeConfig(store, options...)
	if err != nil {
		return nil, err
	}
	return &sixteenByteEngine{config: config}, nil
}

// Config returns the runtime configuration for the engine.
// It implements the Configuration interface.
func (e *sixteenByteEngine) Config() Config {
	return e.config
}

// macLen returns the authentication tag width for the configured mode.
func (e *sixteenByteEngine) macLen() int {
	if e.config.highSecurity {
		return macLengthHighSecurity
	}
	return macLength
}

// deriveSubkeys derives the per-token IV and MAC key from the master key and
// the token's entropy value: okm = HKDF-SHA-256(ikm=key, salt=nil,
// info=entropy, length=64), iv = okm[16:32], macKey = okm[32:64].
func deriveSubkeys(key *SecretKey, entropy []byte) (iv, macKey []byte, err error) {
	okm := make([]byte, subkeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key.Bytes(), nil, entropy), okm); err != nil {
		return nil, nil, err
	}
	return okm[16:32], okm[32:64], nil
}

// Mask transforms the identifier into an opaque URL-safe token.
func (e *sixteenByteEngine) Mask(id []byte) (string, error) {
	if len(id) < 1 || len(id) > MaxSixteenByteIDLength {
		return "", fmt.Errorf("%w: got %d bytes, want 1 to %d", ErrInvalidInput, len(id), MaxSixteenByteIDLength)
	}

	key := e.config.store.ActiveKey()
	if key.destroyed() {
		return "", ErrDestroyedKey
	}

	entropy := make([]byte, entropyLength)
	if e.config.randomize {
		var err error
		if entropy, err = readEntropy(e.config.randReader, entropyLength); err != nil {
			return "", err
		}
	}

	iv, macKey, err := deriveSubkeys(key, entropy)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	block, err := aes.NewCipher(cipherKey(key.Bytes()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	// The padded plaintext is XOR-masked with the entropy before
	// encryption. In deterministic mode the entropy is all zero and the
	// mask is a no-op.
	masked := zeroPad(id, aesBlockLength)
	for i := range masked {
		masked[i] ^= entropy[i]
	}

	ciphertext := make([]byte, aesBlockLength)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, masked)

	version, err := packVersion(key.ID(), SixteenByteEngineID, ciphertext[0])
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	mac.Write([]byte{version})
	tag := mac.Sum(nil)[:e.macLen()]

	raw := make([]byte, 0, 1+entropyLength+aesBlockLength+macLengthHighSecurity)
	raw = append(raw, version)
	if e.config.randomize {
		raw = append(raw, entropy...)
	}
	raw = append(raw, ciphertext...)
	raw = append(raw, tag...)

	return encodeToken(raw), nil
}

// MaskInt64 masks the decimal string representation of id.
func (e *sixteenByteEngine) MaskInt64(id int64) (string, error) {
	return e.Mask(strconv.AppendInt(nil, id, 10))
}

// Unmask decodes and authenticates a token and returns the original
// identifier bytes.
func (e *sixteenByteEngine) Unmask(token string) ([]byte, error) {
	raw, err := decodeToken(token)
	if err != nil {
		return nil, err
	}

	want := 1 + aesBlockLength + e.macLen()
	if e.config.randomize {
		want += entropyLength
	}
	if len(raw) != want {
		return nil, fmt.Errorf("%w: token length %d, want %d", ErrStateMismatch, len(raw), want)
	}

	version := raw[0]
	offset := 1
	entropy := make([]byte, entropyLength)
	if e.config.randomize {
		copy(entropy, raw[offset:offset+entropyLength])
		offset += entropyLength
	}
	ciphertext := raw[offset : offset+aesBlockLength]
	offset += aesBlockLength
	receivedTag := raw[offset : offset+e.macLen()]

	keyID, engineID := unpackVersion(version, ciphertext[0])
	if engineID != SixteenByteEngineID {
		return nil, fmt.Errorf("%w: token was not produced by this engine", ErrStateMismatch)
	}
	key, ok := e.config.store.Key(keyID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown key id", ErrStateMismatch)
	}
	if key.destroyed() {
		return nil, ErrDestroyedKey
	}

	iv, macKey, err := deriveSubkeys(key, entropy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	mac := hmac.New(sha256.New, macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	mac.Write([]byte{version})
	expectedTag := mac.Sum(nil)[:e.macLen()]

	if !hmac.Equal(receivedTag, expectedTag) {
		return nil, fmt.Errorf("%w: authentication tag mismatch", ErrStateMismatch)
	}

	block, err := aes.NewCipher(cipherKey(key.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	plain := make([]byte, aesBlockLength)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	for i := range plain {
		plain[i] ^= entropy[i]
	}

	return trimZeroPadding(plain), nil
}
