/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package crypt

import (
	"crypto/sha1" //nolint:gosec
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sapcc/go-bits/assert"

	"github.com/pforte-idm/pforte/internal/test"
)

func TestPwnedPasswords(t *testing.T) {
	digest := fmt.Sprintf("%X", sha1.Sum([]byte("password"))) //nolint:gosec
	prefix, suffix := digest[:5], digest[5:]

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		//only the five-digit prefix may go over the wire
		assert.DeepEqual(t, "request path", r.URL.Path, "/"+prefix)
		fmt.Fprintf(w, "0000000000000000000000000000000000A:3\r\n%s:4711\r\nFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF:1\r\n", suffix)
	}))
	defer server.Close()

	checker := PwnedPasswords{BaseURL: server.URL, Client: server.Client()}
	count, err := checker.CountLeaks("password")
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "leak count", count, 4711)
}

func TestPwnedPasswordsClean(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "0000000000000000000000000000000000A:3\r\n")
	}))
	defer server.Close()

	checker := PwnedPasswords{BaseURL: server.URL, Client: server.Client()}
	count, err := checker.CountLeaks("certainly-not-in-the-fixture")
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "leak count", count, 0)
}

func TestPwnedPasswordsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	checker := PwnedPasswords{BaseURL: server.URL, Client: server.Client()}
	_, err := checker.CountLeaks("password")
	if err == nil {
		t.Error("expected an error for a non-200 response")
	}
}
