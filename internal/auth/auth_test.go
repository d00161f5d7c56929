/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"
	"gopkg.in/yaml.v3"

	"github.com/pforte-idm/pforte/internal/test"
	"github.com/pforte-idm/pforte/internal/view"
)

const dnSuffix = "dc=example,dc=org"

const aliceDN = "uid=alice,ou=users,dc=example,dc=org"

const testViewYAML = `
users:
  dn: ou=users
  primaryKey: uid
  classes: [inetOrgPerson]
  list:
    uid: {type: text}
  auth:
    primaryKey: {type: text, field: uid}
    displayName: {type: text, field: cn}
    mail: {type: text}
    timestamp: {type: text, field: pwdChangedTime}
  details:
    user:
      type: fields
      fields:
        uid: {type: text}
`

func setupAuthTest(t *testing.T) (*test.DirectoryDouble, *Authenticator) {
	t.Helper()
	var specs view.ViewSpecs
	err := yaml.Unmarshal([]byte(testViewYAML), &specs)
	test.ExpectNoError(t, err)

	conn := test.NewDirectoryDouble()
	registry, err := view.NewRegistry(conn, &view.Env{}, dnSuffix, specs)
	test.ExpectNoError(t, err)

	conn.SetEntry(aliceDN, map[string][]string{
		"objectClass":    {"inetOrgPerson"},
		"uid":            {"alice"},
		"cn":             {"Alice Adams"},
		"mail":           {"alice@example.org"},
		"pwdChangedTime": {"20240101000000Z"},
	})
	conn.Passwords[aliceDN] = "correct-password"

	authView, _ := registry.View("users")
	a, err := New(conn, authView, Options{
		SecretKey:           "unit-test-secret",
		Expiration:          1 * time.Hour,
		AutoLoginExpiration: 10 * time.Minute,
	})
	test.ExpectNoError(t, err)
	return conn, a
}

func TestLoginAndVerify(t *testing.T) {
	_, a := setupAuthTest(t)

	record, token, err := a.Login("alice", "correct-password")
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "login record", record, view.Record{
		"primaryKey":  "alice",
		"displayName": "Alice Adams",
		"mail":        "alice@example.org",
		"timestamp":   "20240101000000Z",
	})

	verified, err := a.VerifyToken(token)
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "verified record", verified, record)
}

func TestLoginRejections(t *testing.T) {
	_, a := setupAuthTest(t)

	for _, check := range []struct {
		username, password string
	}{
		{"alice", "wrong-password"},
		{"alice", ""},
		{"nobody", "correct-password"},
		{"", "correct-password"},
	} {
		_, _, err := a.Login(check.username, check.password)
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("login %q/%q: expected ErrUnauthorized, got %v", check.username, check.password, err)
		}
	}
}

func TestTokenInvalidation(t *testing.T) {
	conn, a := setupAuthTest(t)

	_, token, err := a.Login("alice", "correct-password")
	test.ExpectNoError(t, err)

	//a write to the timestamp attribute (e.g. a password rotation)
	//invalidates all previously issued tokens
	conn.Entries[aliceDN]["pwdChangedTime"] = []string{"20240201000000Z"}
	_, err = a.VerifyToken(token)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	//a fresh token carries the new timestamp
	_, token, err = a.Relogin("alice")
	test.ExpectNoError(t, err)
	_, err = a.VerifyToken(token)
	test.ExpectNoError(t, err)

	//tokens of deleted subjects fail verification
	delete(conn.Entries, aliceDN)
	_, err = a.VerifyToken(token)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	_, a := setupAuthTest(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a.Now = func() time.Time { return now }

	_, token, err := a.Login("alice", "correct-password")
	test.ExpectNoError(t, err)

	now = now.Add(30 * time.Minute)
	_, err = a.VerifyToken(token)
	test.ExpectNoError(t, err)

	now = now.Add(1 * time.Hour)
	_, err = a.VerifyToken(token)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	//auto-login tokens expire on their shorter schedule
	now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	_, token, err = a.AutoLogin("alice")
	test.ExpectNoError(t, err)
	now = now.Add(5 * time.Minute)
	_, err = a.VerifyToken(token)
	test.ExpectNoError(t, err)
	now = now.Add(10 * time.Minute)
	_, err = a.VerifyToken(token)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTokenTampering(t *testing.T) {
	_, a := setupAuthTest(t)

	_, err := a.VerifyToken("not-a-token")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	//a token signed with a different key is rejected
	_, other := setupAuthTest(t)
	other.secretKey = []byte("a-different-secret")
	_, token, err := other.Login("alice", "correct-password")
	test.ExpectNoError(t, err)
	_, err = a.VerifyToken(token)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}
