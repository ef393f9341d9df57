// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package idmask

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// EightByteEngineID identifies the eight-byte engine inside the
	// token's version byte.
	EightByteEngineID = 0

	// SixteenByteEngineID identifies the sixteen-byte engine inside the
	// token's version byte.
	SixteenByteEngineID = 1

	// maxEngineID bounds the 4-bit engine id range reserved in the version
	// byte.
	maxEngineID = 15

	// aesKeyLength is the AES-256 key width both engines encrypt with.
	aesKeyLength = 32

	// aesBlockLength is the AES block width.
	aesBlockLength = 16
)

// packVersion packs (keyID, engineID) into a single version byte,
// obfuscated by XOR with the first ciphertext byte. The obfuscation hides
// the ids from casual inspection only; forgery protection comes from the
// ciphertext byte being pseudo-random and, on the sixteen-byte engine, from
// the MAC covering the version byte.
func packVersion(keyID, engineID int, ct0 byte) (byte, error) {
	if keyID < 0 || keyID > MaxKeyID {
		return 0, fmt.Errorf("%w: %d", ErrInvalidKeyID, keyID)
	}
	if engineID < 0 || engineID > maxEngineID {
		return 0, fmt.Errorf("%w: %d", ErrInvalidEngineID, engineID)
	}
	return byte(keyID<<4|engineID) ^ ct0, nil
}

// unpackVersion recovers (keyID, engineID) from a version byte by repeating
// the XOR with the first ciphertext byte.
func unpackVersion(v, ct0 byte) (keyID, engineID int) {
	raw := v ^ ct0
	return int(raw >> 4 & 0x0F), int(raw & 0x0F)
}

// Token encoding is standard Base64 with a character substitution making the
// result safe in URLs: '+' becomes '~', '/' becomes '_', and the '='
// padding becomes '-'. This is not the RFC 4648 URL alphabet; the
// substitution is part of the external token format and must stay byte-exact
// for tokens to be portable across implementations.
var (
	tokenEncodeReplacer = strings.NewReplacer("+", "~", "/", "_", "=", "-")
	tokenDecodeReplacer = strings.NewReplacer("~", "+", "_", "/", "-", "=")
)

// encodeToken encodes raw token bytes into the URL-safe text form.
func encodeToken(raw []byte) string {
	return tokenEncodeReplacer.Replace(base64.StdEncoding.EncodeToString(raw))
}

// decodeToken decodes the URL-safe text form back into raw token bytes.
// Malformed encodings fail with ErrStateMismatch; a token that does not even
// decode was not produced by any engine.
func decodeToken(token string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(tokenDecodeReplacer.Replace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed token encoding", ErrStateMismatch)
	}
	return raw, nil
}

// cipherKey widens the secret key material to the AES-256 key width: keys
// shorter than 32 bytes are right-padded with zero bytes, longer keys are
// truncated. Every valid key length maps onto the same cipher variant, and
// the mapping is part of the token format.
func cipherKey(key []byte) []byte {
	out := make([]byte, aesKeyLength)
	copy(out, key)
	return out
}

// zeroPad returns b right-padded with zero bytes to length n.
func zeroPad(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

// trimZeroPadding returns a copy of b with trailing zero bytes removed.
// Identifiers whose own trailing bytes are zero are indistinguishable from
// padding; fixed-width callers must agree on a length out-of-band.
func trimZeroPadding(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	out := make([]byte, end)
	copy(out, b[:end])
	return out
}

// pkcs7Unpad strips and validates PKCS#7 padding from a decrypted buffer.
// The whole final block is examined regardless of the claimed padding
// length, so the check's cost does not depend on where validation fails.
func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%aesBlockLength != 0 {
		return nil, fmt.Errorf("%w: invalid padded length %d", ErrDecryption, len(b))
	}

	n := int(b[len(b)-1])
	bad := 0
	if n < 1 || n > aesBlockLength {
		bad = 1
		n = 1
	}
	for i := len(b) - aesBlockLength; i < len(b); i++ {
		if len(b)-i <= n && b[i] != byte(n) {
			bad = 1
		}
	}
	if bad != 0 {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
	}
	return b[:len(b)-n], nil
}
