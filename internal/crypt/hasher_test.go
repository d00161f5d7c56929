/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package crypt

import (
	"bytes"
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"hash"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/pforte-idm/pforte/internal/test"
)

func TestSaltedHashers(t *testing.T) {
	checks := []struct {
		scheme   string
		prefix   string
		makeHash func() hash.Hash
	}{
		{"ssha", "{SSHA}", sha1.New},
		{"ssha256", "{SSHA256}", sha256.New},
		{"ssha512", "{SSHA512}", sha512.New},
	}
	for _, check := range checks {
		hasher, err := NewPasswordHasher(check.scheme)
		test.ExpectNoError(t, err)

		value, err := hasher.HashPassword("swordfish")
		test.ExpectNoError(t, err)
		if !strings.HasPrefix(value, check.prefix) {
			t.Errorf("%s: expected prefix %q on %q", check.scheme, check.prefix, value)
			continue
		}

		//verify by recomputing: payload is hash(password + salt) + salt
		payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, check.prefix))
		test.ExpectNoError(t, err)
		digestSize := check.makeHash().Size()
		if len(payload) != digestSize+8 {
			t.Errorf("%s: unexpected payload length %d", check.scheme, len(payload))
			continue
		}
		digest, salt := payload[:digestSize], payload[digestSize:]
		h := check.makeHash()
		h.Write([]byte("swordfish"))
		h.Write(salt)
		if !bytes.Equal(h.Sum(nil), digest) {
			t.Errorf("%s: recomputed digest does not match", check.scheme)
		}

		//salts are fresh on every call
		value2, err := hasher.HashPassword("swordfish")
		test.ExpectNoError(t, err)
		if value == value2 {
			t.Errorf("%s: two hashes of the same password compare equal", check.scheme)
		}
	}
}

func TestBcryptHasher(t *testing.T) {
	hasher, err := NewPasswordHasher("bcrypt")
	test.ExpectNoError(t, err)

	value, err := hasher.HashPassword("swordfish")
	test.ExpectNoError(t, err)
	if !strings.HasPrefix(value, "{CRYPT}") {
		t.Fatalf("expected {CRYPT} prefix on %q", value)
	}
	err = bcrypt.CompareHashAndPassword([]byte(strings.TrimPrefix(value, "{CRYPT}")), []byte("swordfish"))
	test.ExpectNoError(t, err)
}

func TestUnknownScheme(t *testing.T) {
	_, err := NewPasswordHasher("md5")
	test.ExpectError(t, err, `unknown password hashing scheme: "md5"`)
}

func TestGenerateSecret(t *testing.T) {
	secret := GenerateSecret()
	if len(secret) != 24 {
		t.Errorf("expected 24 characters, got %d", len(secret))
	}
	for _, r := range secret {
		if !strings.ContainsRune(secretAlphabet, r) {
			t.Errorf("unexpected character %q in generated secret", r)
		}
	}
	if secret == GenerateSecret() {
		t.Error("two generated secrets compare equal")
	}
}
