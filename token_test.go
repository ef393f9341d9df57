// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package idmask

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPackVersionRoundTrip verifies that every (keyID, engineID) pair
// survives packing and unpacking against arbitrary ciphertext bytes.
func TestPackVersionRoundTrip(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	for keyID := 0; keyID <= MaxKeyID; keyID++ {
		for engineID := 0; engineID <= maxEngineID; engineID++ {
			for _, ct0 := range []byte{0x00, 0x01, 0x7f, 0x80, 0xff} {
				v, err := packVersion(keyID, engineID, ct0)
				is.NoError(err)

				gotKey, gotEngine := unpackVersion(v, ct0)
				is.Equal(keyID, gotKey)
				is.Equal(engineID, gotEngine)
			}
		}
	}
}

// TestPackVersionRange verifies rejection of out-of-range ids.
func TestPackVersionRange(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	_, err := packVersion(-1, 0, 0x42)
	is.ErrorIs(err, ErrInvalidKeyID)

	_, err = packVersion(16, 0, 0x42)
	is.ErrorIs(err, ErrInvalidKeyID)

	_, err = packVersion(0, -1, 0x42)
	is.ErrorIs(err, ErrInvalidEngineID)

	_, err = packVersion(0, 16, 0x42)
	is.ErrorIs(err, ErrInvalidEngineID)
}

// TestTokenEncoding verifies the URL-safe substitution: no '+', '/', or '='
// survives encoding, and decoding inverts it byte-exactly.
func TestTokenEncoding(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	// 0xfb 0xef 0xbe encodes to "++++" in standard Base64; 0xff 0xff
	// encodes with both '/' and padding.
	inputs := [][]byte{
		{0xfb, 0xef, 0xbe},
		{0xff, 0xff},
		{0x00},
		{0xfa, 0xde, 0xd0, 0x0d},
	}

	for _, raw := range inputs {
		token := encodeToken(raw)
		is.NotContains(token, "+", "encoded tokens must not contain '+'")
		is.NotContains(token, "/", "encoded tokens must not contain '/'")
		is.NotContains(token, "=", "encoded tokens must not contain '='")

		got, err := decodeToken(token)
		is.NoError(err)
		is.Equal(raw, got, "decoding should invert encoding byte-exactly")
	}

	is.Equal("~~~~", encodeToken([]byte{0xfb, 0xef, 0xbe}))
	is.Equal("__8-", encodeToken([]byte{0xff, 0xff}))
}

// TestDecodeTokenMalformed verifies that undecodable text fails with a
// state mismatch.
func TestDecodeTokenMalformed(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	for _, token := range []string{"!", "A", "====", "A-BC", strings.Repeat("*", 8)} {
		_, err := decodeToken(token)
		is.ErrorIs(err, ErrStateMismatch, "decodeToken(%q) should fail", token)
	}
}

// TestCipherKey verifies the AES-256 key widening: short keys are
// zero-padded, long keys truncated.
func TestCipherKey(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	short := cipherKey([]byte{1, 2, 3})
	is.Len(short, aesKeyLength)
	is.Equal([]byte{1, 2, 3}, short[:3])
	is.True(allZero(short[3:]))

	long := make([]byte, 40)
	for i := range long {
		long[i] = byte(i + 1)
	}
	wide := cipherKey(long)
	is.Len(wide, aesKeyLength)
	is.Equal(long[:aesKeyLength], wide)
}

// TestTrimZeroPadding verifies trailing-zero stripping, including the
// all-zero ambiguity case.
func TestTrimZeroPadding(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	is.Equal([]byte("abc"), trimZeroPadding([]byte{'a', 'b', 'c', 0, 0}))
	is.Equal([]byte("a\x00b"), trimZeroPadding([]byte{'a', 0, 'b', 0}))
	is.Empty(trimZeroPadding([]byte{0, 0, 0}))
	is.Empty(trimZeroPadding(nil))
}

// TestPKCS7Unpad verifies padding validation on well-formed and corrupted
// buffers.
func TestPKCS7Unpad(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	padded := make([]byte, 32)
	copy(padded, "0123456789abcdef")
	for i := 16; i < 32; i++ {
		padded[i] = 16
	}
	got, err := pkcs7Unpad(padded)
	is.NoError(err)
	is.Equal([]byte("0123456789abcdef"), got)

	// Padding length zero is invalid.
	bad := make([]byte, 16)
	_, err = pkcs7Unpad(bad)
	is.ErrorIs(err, ErrDecryption)

	// Padding length beyond the block width is invalid.
	bad = make([]byte, 16)
	bad[15] = 17
	_, err = pkcs7Unpad(bad)
	is.ErrorIs(err, ErrDecryption)

	// A padding byte that disagrees with the claimed length is invalid.
	bad = make([]byte, 16)
	for i := range bad {
		bad[i] = 4
	}
	bad[13] = 5
	_, err = pkcs7Unpad(bad)
	is.ErrorIs(err, ErrDecryption)

	// Non-block-aligned input is invalid.
	_, err = pkcs7Unpad(make([]byte, 15))
	is.ErrorIs(err, ErrDecryption)
}
