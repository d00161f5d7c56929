/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package directory

import (
	"testing"

	"github.com/sapcc/go-bits/assert"
)

func TestEscapeRDNValue(t *testing.T) {
	checks := map[string]string{
		"alice":        "alice",
		"a,b":          `a\,b`,
		"a+b=c":        `a\+b\=c`,
		`back\slash`:   `back\\slash`,
		"<angles>":     `\<angles\>`,
		" leading":     `\ leading`,
		"trailing ":    `trailing\ `,
		"#leadinghash": `\#leadinghash`,
		"mid#hash":     "mid#hash",
		"mid space":    "mid space",
	}
	for input, expected := range checks {
		assert.DeepEqual(t, "escaped RDN value", EscapeRDNValue(input), expected)
	}
}

func TestTryEscapeRDNValue(t *testing.T) {
	for _, input := range []string{"", "line\nbreak", "tab\there", "del\x7f"} {
		if _, ok := TryEscapeRDNValue(input); ok {
			t.Errorf("expected %q to be rejected", input)
		}
	}
	escaped, ok := TryEscapeRDNValue("john doe")
	if !ok {
		t.Fatal("expected the value to be accepted")
	}
	assert.DeepEqual(t, "escaped value", escaped, "john doe")
}

func TestEscapeFilterValue(t *testing.T) {
	assert.DeepEqual(t, "escaped filter value", EscapeFilterValue("a*(b)c"), `a\2a\28b\29c`)
}
