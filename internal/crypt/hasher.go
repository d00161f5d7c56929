/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package crypt

import (
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // {SSHA} is part of the LDAP userPassword contract
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"io"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes plaintext passwords into LDAP userPassword values.
// All implementations produce salted hashes, so hashing the same plaintext
// twice yields distinct values; callers must never compare hashes for
// equality to detect unchanged passwords.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// NewPasswordHasher returns the PasswordHasher for the given scheme name.
// The scheme names mirror the common LDAP userPassword prefixes.
func NewPasswordHasher(scheme string) (PasswordHasher, error) {
	switch scheme {
	case "ssha":
		return saltedHasher{prefix: "{SSHA}", makeHash: sha1.New}, nil
	case "ssha256":
		return saltedHasher{prefix: "{SSHA256}", makeHash: sha256.New}, nil
	case "ssha512":
		return saltedHasher{prefix: "{SSHA512}", makeHash: sha512.New}, nil
	case "bcrypt":
		return bcryptHasher{}, nil
	default:
		return nil, fmt.Errorf("unknown password hashing scheme: %q", scheme)
	}
}

// saltedHasher implements the {SSHA*} family: base64(hash(password + salt) + salt).
type saltedHasher struct {
	prefix   string
	makeHash func() hash.Hash
}

// HashPassword implements the PasswordHasher interface.
func (h saltedHasher) HashPassword(password string) (string, error) {
	salt := make([]byte, 8)
	_, err := io.ReadFull(rand.Reader, salt)
	if err != nil {
		return "", fmt.Errorf("cannot generate salt: %w", err)
	}

	digest := h.makeHash()
	digest.Write([]byte(password))
	digest.Write(salt)
	payload := append(digest.Sum(nil), salt...)
	return h.prefix + base64.StdEncoding.EncodeToString(payload), nil
}

type bcryptHasher struct{}

// HashPassword implements the PasswordHasher interface.
func (bcryptHasher) HashPassword(password string) (string, error) {
	buf, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	//OpenLDAP understands bcrypt hashes behind the {CRYPT} prefix
	return "{CRYPT}" + string(buf), nil
}

// NoopHasher is a PasswordHasher that does not do any hashing. It is used in
// unit tests where the hashed value needs to be predictable.
type NoopHasher struct{}

// HashPassword implements the PasswordHasher interface.
func (NoopHasher) HashPassword(password string) (string, error) {
	return "{PLAINTEXT}" + password, nil
}

// alphabet for generated secrets: unambiguous letters and digits
const secretAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateSecret creates a cryptographically strong random secret, e.g. for
// password fields with autoGenerate enabled.
func GenerateSecret() string {
	buf := make([]byte, 24)
	for idx := range buf {
		pos, err := rand.Int(rand.Reader, big.NewInt(int64(len(secretAlphabet))))
		if err != nil {
			panic(fmt.Sprintf("could not generate randomness: %s", err.Error()))
		}
		buf[idx] = secretAlphabet[pos.Int64()]
	}
	return string(buf)
}
