/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package directory

import (
	"errors"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/sapcc/go-bits/assert"
)

func TestErrorClassification(t *testing.T) {
	checks := map[uint16]Kind{
		goldap.LDAPResultNoSuchObject:             KindNotFound,
		goldap.LDAPResultEntryAlreadyExists:       KindConflict,
		goldap.LDAPResultObjectClassViolation:     KindSchema,
		goldap.LDAPResultConstraintViolation:      KindSchema,
		goldap.LDAPResultInvalidCredentials:       KindInvalidCredentials,
		goldap.LDAPResultUnwillingToPerform:       KindTransport,
	}
	for code, expected := range checks {
		err := wrapError("uid=alice,ou=users,dc=example,dc=org", goldap.NewError(code, errors.New("server says no")))
		if !HasKind(err, expected) {
			t.Errorf("result code %d: expected kind %s", code, expected)
		}
	}
}

func TestErrorRendering(t *testing.T) {
	err := NewError(KindNotFound, "uid=alice,ou=users,dc=example,dc=org", nil)
	assert.DeepEqual(t, "error message", err.Error(),
		"directory error (NotFound) on uid=alice,ou=users,dc=example,dc=org")

	err = NewError(KindConflict, "", errors.New("boom"))
	assert.DeepEqual(t, "error message", err.Error(), "directory error (Conflict): boom")

	if !IsNotFound(NewError(KindNotFound, "", nil)) {
		t.Error("expected IsNotFound to hold")
	}
	if IsNotFound(errors.New("unrelated")) {
		t.Error("expected IsNotFound to reject foreign error types")
	}
}
