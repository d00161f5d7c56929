/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package mailer

import (
	"strings"
	"testing"

	"github.com/sapcc/go-bits/assert"

	"github.com/pforte-idm/pforte/internal/test"
)

var testRenderData = map[string]any{
	"SiteName":    "Example IDM",
	"SiteBaseURL": "https://idm.example.org",
	"DisplayName": "Alice Adams",
	"Mail":        "alice@example.org",
	"LoginLink":   "auth/token-login?token=abc123",
	"ValidUntil":  "Sat, 01 Jun 2024 12:00:00 UTC",
}

func TestRenderAutoLoginTemplate(t *testing.T) {
	subject, body, err := renderTemplate("en", "auto_login", "txt", testRenderData)
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "subject", subject, "Example IDM: your login link")
	for _, expected := range []string{
		"Alice Adams",
		"alice@example.org",
		"https://idm.example.org/auth/token-login?token=abc123",
		"Sat, 01 Jun 2024 12:00:00 UTC",
	} {
		if !strings.Contains(body, expected) {
			t.Errorf("expected body to contain %q:\n%s", expected, body)
		}
	}

	//both renderings must agree on the subject line
	htmlSubject, _, err := renderTemplate("en", "auto_login", "html", testRenderData)
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "html subject", htmlSubject, subject)

	//unknown languages fall back to English
	subject, _, err = renderTemplate("tlh", "auto_login", "txt", testRenderData)
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "fallback subject", subject, "Example IDM: your login link")

	_, _, err = renderTemplate("en", "no_such_template", "txt", testRenderData)
	if err == nil {
		t.Error("expected an error for an unknown template")
	}
}

func TestOptionsValidation(t *testing.T) {
	_, err := New(Options{Host: "mail.example.org", Sender: "idm@example.org", SSL: true, StartTLS: true})
	test.ExpectError(t, err, "mailer: ssl and starttls are mutually exclusive")

	_, err = New(Options{Sender: "idm@example.org"})
	test.ExpectError(t, err, "mailer: host and sender are required")

	_, err = New(Options{Host: "mail.example.org", Sender: "idm@example.org"})
	test.ExpectNoError(t, err)
}
