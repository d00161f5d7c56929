/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package test

import (
	"testing"
)

// ExpectNoError fails the test if err is not nil.
func ExpectNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Error(err.Error())
	}
}

// ExpectError fails the test if err does not render the expected message.
func ExpectError(t *testing.T, err error, expected string) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error %q, but got no error", expected)
	} else if err.Error() != expected {
		t.Errorf("expected error %q, but got %q", expected, err.Error())
	}
}
