/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package directory

import (
	"fmt"

	goldap "github.com/go-ldap/ldap/v3"
)

// Kind classifies gateway failures into a bounded taxonomy. Callers switch on
// the kind instead of inspecting LDAP result codes.
type Kind int

const (
	// KindTransport covers network failures and all server responses that do
	// not fit a more specific kind.
	KindTransport Kind = iota
	// KindNotFound means the targeted DN does not exist.
	KindNotFound
	// KindConflict means an Add targeted a DN that already exists.
	KindConflict
	// KindSchema means the server rejected a write for violating its schema.
	KindSchema
	// KindInvalidCredentials means a Bind was rejected.
	KindInvalidCredentials
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindSchema:
		return "Schema"
	case KindInvalidCredentials:
		return "InvalidCredentials"
	default:
		return "Transport"
	}
}

// Error is the error type returned by all Connection operations.
type Error struct {
	Kind  Kind
	DN    string
	cause error
}

// NewError builds a directory error outside of the gateway, e.g. when a
// search legitimately returns no entries but the caller requires one.
func NewError(kind Kind, dn string, cause error) *Error {
	return &Error{Kind: kind, DN: dn, cause: cause}
}

// Error implements the builtin error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("directory error (%s)", e.Kind)
	if e.DN != "" {
		msg += " on " + e.DN
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap implements the interface used by errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// IsNotFound reports whether the error is a directory error of kind NotFound.
func IsNotFound(err error) bool {
	return HasKind(err, KindNotFound)
}

// HasKind reports whether the error is a directory error of the given kind.
func HasKind(err error, kind Kind) bool {
	dirErr, ok := err.(*Error)
	return ok && dirErr.Kind == kind
}

// Translates a go-ldap error into our taxonomy.
func wrapError(dn string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: classify(err), DN: dn, cause: err}
}

func classify(err error) Kind {
	switch {
	case goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject):
		return KindNotFound
	case goldap.IsErrorWithCode(err, goldap.LDAPResultEntryAlreadyExists):
		return KindConflict
	case goldap.IsErrorWithCode(err, goldap.LDAPResultObjectClassViolation),
		goldap.IsErrorWithCode(err, goldap.LDAPResultConstraintViolation),
		goldap.IsErrorWithCode(err, goldap.LDAPResultInvalidAttributeSyntax),
		goldap.IsErrorWithCode(err, goldap.LDAPResultUndefinedAttributeType),
		goldap.IsErrorWithCode(err, goldap.LDAPResultNotAllowedOnRDN),
		goldap.IsErrorWithCode(err, goldap.LDAPResultObjectClassModsProhibited):
		return KindSchema
	case goldap.IsErrorWithCode(err, goldap.LDAPResultInvalidCredentials):
		return KindInvalidCredentials
	default:
		return KindTransport
	}
}
