/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pforte-idm/pforte/internal/directory"
	"github.com/pforte-idm/pforte/internal/view"
)

// ErrUnauthorized is returned for bad credentials and for tokens that fail
// verification. It deliberately carries no detail: authentication failures
// must not leak whether the subject exists.
var ErrUnauthorized = errors.New("unauthorized")

// TokenUser is the subject half of the token payload. The timestamp mirrors
// the auth projection's timestamp field, if the view has one; any write to
// that field (e.g. a password rotation) invalidates all older tokens.
type TokenUser struct {
	PrimaryKey string `json:"primaryKey"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// Claims is the full token payload.
type Claims struct {
	User TokenUser `json:"user"`
	jwt.RegisteredClaims
}

// Options configures an Authenticator.
type Options struct {
	SecretKey           string
	HeaderPrefix        string
	Expiration          time.Duration
	AutoLoginExpiration time.Duration
}

// Authenticator issues and verifies bearer tokens and resolves their subjects
// to records of the configured auth view.
type Authenticator struct {
	secretKey           []byte
	headerPrefix        string
	expiration          time.Duration
	autoLoginExpiration time.Duration
	view                *view.View
	conn                directory.Connection

	// Now can be overridden in tests. Defaults to time.Now.
	Now func() time.Time
}

// New builds an Authenticator on top of the given auth view.
func New(conn directory.Connection, authView *view.View, opts Options) (*Authenticator, error) {
	if opts.SecretKey == "" {
		return nil, errors.New("auth: secretKey is required")
	}
	if !authView.HasAuth() {
		return nil, fmt.Errorf("auth: view %q has no auth projection", authView.Key())
	}
	return &Authenticator{
		secretKey:           []byte(opts.SecretKey),
		headerPrefix:        opts.HeaderPrefix,
		expiration:          opts.Expiration,
		autoLoginExpiration: opts.AutoLoginExpiration,
		view:                authView,
		conn:                conn,
		Now:                 time.Now,
	}, nil
}

// HeaderPrefix returns the token prefix expected in Authorization headers.
func (a *Authenticator) HeaderPrefix() string {
	return a.headerPrefix
}

// View returns the view whose auth projection backs token subjects.
func (a *Authenticator) View() *view.View {
	return a.view
}

// AutoLoginValidity returns the lifetime of tokens issued by AutoLogin.
func (a *Authenticator) AutoLoginValidity() time.Duration {
	return a.autoLoginExpiration
}

// Login verifies the credentials against the directory and issues a token.
func (a *Authenticator) Login(username, password string) (view.Record, string, error) {
	dn, ok := a.view.TryDN(username)
	if !ok {
		return nil, "", ErrUnauthorized
	}
	err := a.conn.Bind(dn, password)
	if err != nil {
		if directory.HasKind(err, directory.KindInvalidCredentials) {
			return nil, "", ErrUnauthorized
		}
		return nil, "", err
	}
	return a.issue(username, a.expiration)
}

// Relogin reissues a token from the current auth record, so that permission
// changes take effect without a fresh login.
func (a *Authenticator) Relogin(primaryKey string) (view.Record, string, error) {
	return a.issue(primaryKey, a.expiration)
}

// AutoLogin issues a short-lived token for the e-mail recovery flow.
func (a *Authenticator) AutoLogin(primaryKey string) (view.Record, string, error) {
	return a.issue(primaryKey, a.autoLoginExpiration)
}

func (a *Authenticator) issue(primaryKey string, expiration time.Duration) (view.Record, string, error) {
	record, err := a.loadRecord(primaryKey)
	if err != nil {
		return nil, "", err
	}

	now := a.Now()
	claims := Claims{
		User: TokenUser{
			PrimaryKey: primaryKey,
			Timestamp:  recordTimestamp(record),
		},
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
	if err != nil {
		return nil, "", err
	}
	return record, token, nil
}

// VerifyToken checks the signature and expiry of a bearer token, re-reads the
// subject's auth record, and rejects tokens whose timestamp no longer matches
// the stored one.
func (a *Authenticator) VerifyToken(token string) (view.Record, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return a.Now()
	}))
	if err != nil || claims.User.PrimaryKey == "" {
		return nil, ErrUnauthorized
	}

	record, err := a.loadRecord(claims.User.PrimaryKey)
	if err != nil {
		if directory.IsNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if ts := recordTimestamp(record); ts != claims.User.Timestamp {
		return nil, ErrUnauthorized
	}
	return record, nil
}

func (a *Authenticator) loadRecord(primaryKey string) (view.Record, error) {
	entry, err := a.view.GetAuthEntry(primaryKey)
	if err != nil {
		return nil, err
	}
	record := view.Record(entry)
	if _, ok := record["primaryKey"]; !ok {
		record["primaryKey"] = primaryKey
	}
	return record, nil
}

func recordTimestamp(record view.Record) string {
	value, _ := record["timestamp"].(string)
	return value
}
