/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"
	"gopkg.in/yaml.v3"

	"github.com/pforte-idm/pforte/internal/auth"
	"github.com/pforte-idm/pforte/internal/crypt"
	"github.com/pforte-idm/pforte/internal/test"
	"github.com/pforte-idm/pforte/internal/view"
)

const dnSuffix = "dc=example,dc=org"

const (
	aliceDN  = "uid=alice,ou=users,dc=example,dc=org"
	bobDN    = "uid=bob,ou=users,dc=example,dc=org"
	adminsDN = "cn=admins,ou=groups,dc=example,dc=org"
)

const testViewsYAML = `
users:
  title: Users
  dn: ou=users
  primaryKey: uid
  classes: [inetOrgPerson]
  permissions: [isAdmin]
  list:
    uid: {type: text}
    displayName: {type: text, field: cn}
  auth:
    primaryKey: {type: text, field: uid}
    displayName: {type: text, field: cn}
    mail: {type: text}
    isAdmin: {type: isMemberOf, foreignView: groups, memberOf: admins}
  details:
    user:
      type: fields
      fields:
        uid: {type: text, required: true, writable: false}
        displayName: {type: text, field: cn, required: true}
        mail: {type: text, format: '[^@]+@[^@]+', formatMessage: a mail address}
    groups:
      type: memberOf
      foreignView: groups
  self:
    user:
      type: fields
      fields:
        displayName: {type: text, field: cn, required: true}
        password: {type: password, field: userPassword, hashing: ssha}
  register:
    user:
      type: fields
      fields:
        uid: {type: text, required: true}
        mail: {type: text, required: true, format: '[^@]+@[^@]+', formatMessage: a mail address}
        password: {type: password, field: userPassword, hashing: ssha, autoGenerate: true}
groups:
  title: Groups
  dn: ou=groups
  primaryKey: cn
  classes: [groupOfNames]
  permissions: [isAdmin]
  list:
    cn: {type: text}
  details:
    group:
      type: fields
      fields:
        cn: {type: text, required: true, writable: false}
    members:
      type: member
      foreignView: users
`

type recordedMail struct {
	Language string
	Template string
	To       string
	Data     map[string]any
}

// mailRecorder is a Mailer that captures instead of delivering.
type mailRecorder struct {
	calls []recordedMail
}

func (m *mailRecorder) Send(language, template, to string, data map[string]any) error {
	m.calls = append(m.calls, recordedMail{Language: language, Template: template, To: to, Data: data})
	return nil
}

func setupAPITest(t *testing.T) (*test.DirectoryDouble, *Server, http.Handler) {
	t.Helper()
	var specs view.ViewSpecs
	err := yaml.Unmarshal([]byte(testViewsYAML), &specs)
	test.ExpectNoError(t, err)

	env := &view.Env{
		NewHasher:      func(string) (crypt.PasswordHasher, error) { return crypt.NoopHasher{}, nil },
		LeakChecker:    crypt.NoopLeakChecker{},
		GenerateSecret: func() string { return "generated-secret" },
	}
	conn := test.NewDirectoryDouble()
	registry, err := view.NewRegistry(conn, env, dnSuffix, specs)
	test.ExpectNoError(t, err)

	conn.SetEntry(aliceDN, map[string][]string{
		"objectClass": {"inetOrgPerson"},
		"uid":         {"alice"},
		"cn":          {"Alice Adams"},
		"mail":        {"alice@example.org"},
		"memberOf":    {adminsDN},
	})
	conn.SetEntry(bobDN, map[string][]string{
		"objectClass": {"inetOrgPerson"},
		"uid":         {"bob"},
		"cn":          {"Bob Brown"},
		"mail":        {"bob@example.org"},
	})
	conn.SetEntry(adminsDN, map[string][]string{
		"objectClass": {"groupOfNames"},
		"cn":          {"admins"},
		"member":      {aliceDN},
	})
	conn.Passwords[aliceDN] = "alice-password"
	conn.Passwords[bobDN] = "bob-password"

	authView, _ := registry.View("users")
	authenticator, err := auth.New(conn, authView, auth.Options{
		SecretKey:           "unit-test-secret",
		HeaderPrefix:        "Bearer",
		Expiration:          1 * time.Hour,
		AutoLoginExpiration: 10 * time.Minute,
	})
	test.ExpectNoError(t, err)
	antiSpam, err := auth.NewAntiSpam([]auth.QuestionSpec{
		{Question: "What is 2 + 2?", Answer: `4|four`},
	})
	test.ExpectNoError(t, err)

	server := &Server{
		Registry:     registry,
		Auth:         authenticator,
		AntiSpam:     antiSpam,
		Mailer:       &mailRecorder{},
		AllowOrigins: []string{"https://idm.example.org"},
	}
	return conn, server, server.Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		test.ExpectNoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	err := json.Unmarshal(rec.Body.Bytes(), &result)
	if err != nil {
		t.Fatalf("cannot parse response body %q: %s", rec.Body.String(), err.Error())
	}
	return result
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	rec := doRequest(t, handler, "POST", "/jwt-auth", "", map[string]any{
		"username": username, "password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["token"].(string)
	if token == "" {
		t.Fatal("login response carries no token")
	}
	return token
}

func TestLoginEndpoint(t *testing.T) {
	_, _, handler := setupAPITest(t)

	rec := doRequest(t, handler, "POST", "/jwt-auth", "", map[string]any{
		"username": "alice", "password": "alice-password",
	})
	assert.DeepEqual(t, "status", rec.Code, http.StatusOK)
	body := decodeBody(t, rec)
	user, _ := body["user"].(map[string]any)
	assert.DeepEqual(t, "user record", user, map[string]any{
		"primaryKey":  "alice",
		"displayName": "Alice Adams",
		"mail":        "alice@example.org",
		"isAdmin":     true,
	})

	rec = doRequest(t, handler, "POST", "/jwt-auth", "", map[string]any{
		"username": "alice", "password": "wrong",
	})
	assert.DeepEqual(t, "status", rec.Code, http.StatusUnauthorized)
	//the error payload does not say whether the subject exists
	assert.DeepEqual(t, "description", decodeBody(t, rec)["description"], "invalid credentials or token")
}

func TestAuthMiddleware(t *testing.T) {
	_, _, handler := setupAPITest(t)

	rec := doRequest(t, handler, "GET", "/users", "", nil)
	assert.DeepEqual(t, "status without token", rec.Code, http.StatusUnauthorized)

	rec = doRequest(t, handler, "GET", "/users", "garbage", nil)
	assert.DeepEqual(t, "status with garbage token", rec.Code, http.StatusUnauthorized)

	req := httptest.NewRequest("GET", "/users", nil)
	req.Header.Set("Authorization", "Token something")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.DeepEqual(t, "status with wrong scheme", resp.Code, http.StatusUnauthorized)
}

func TestListAndDetailEndpoints(t *testing.T) {
	_, _, handler := setupAPITest(t)
	token := login(t, handler, "alice", "alice-password")

	rec := doRequest(t, handler, "GET", "/users", token, nil)
	assert.DeepEqual(t, "status", rec.Code, http.StatusOK)
	var list []map[string]any
	test.ExpectNoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.DeepEqual(t, "user list", list, []map[string]any{
		{"uid": "alice", "displayName": "Alice Adams"},
		{"uid": "bob", "displayName": "Bob Brown"},
	})

	rec = doRequest(t, handler, "GET", "/users/alice", token, nil)
	assert.DeepEqual(t, "status", rec.Code, http.StatusOK)
	body := decodeBody(t, rec)
	assert.DeepEqual(t, "group memberships", body["groups"], []any{"admins"})

	rec = doRequest(t, handler, "GET", "/users/nobody", token, nil)
	assert.DeepEqual(t, "status for unknown entry", rec.Code, http.StatusNotFound)

	rec = doRequest(t, handler, "GET", "/nonsense", token, nil)
	assert.DeepEqual(t, "status for unknown view", rec.Code, http.StatusNotFound)
}

func TestUpdateValidationError(t *testing.T) {
	_, _, handler := setupAPITest(t)
	token := login(t, handler, "alice", "alice-password")

	rec := doRequest(t, handler, "PATCH", "/users/bob", token, map[string]any{
		"user": map[string]any{"mail": "nope"},
	})
	assert.DeepEqual(t, "status", rec.Code, http.StatusBadRequest)
	body := decodeBody(t, rec)
	assert.DeepEqual(t, "title", body["title"], "Bad Request")
	assert.DeepEqual(t, "field tree", body["field"], map[string]any{
		"user": map[string]any{"mail": `invalid value "nope" for mail, expecting a mail address`},
	})
}

func TestPermissionClosure(t *testing.T) {
	conn, _, handler := setupAPITest(t)
	token := login(t, handler, "bob", "bob-password")

	rec := doRequest(t, handler, "PATCH", "/users/alice", token, map[string]any{
		"user": map[string]any{"displayName": "Hacked"},
	})
	assert.DeepEqual(t, "status", rec.Code, http.StatusForbidden)
	assert.DeepEqual(t, "unchanged entry", conn.Entries[aliceDN]["cn"], []string{"Alice Adams"})

	rec = doRequest(t, handler, "DELETE", "/users/alice", token, nil)
	assert.DeepEqual(t, "status", rec.Code, http.StatusForbidden)
}

func TestSelfEndpoints(t *testing.T) {
	conn, server, handler := setupAPITest(t)
	token := login(t, handler, "bob", "bob-password")

	rec := doRequest(t, handler, "GET", "/users/self", token, nil)
	assert.DeepEqual(t, "status", rec.Code, http.StatusOK)
	body := decodeBody(t, rec)
	user, _ := body["user"].(map[string]any)
	assert.DeepEqual(t, "own display name", user["displayName"], "Bob Brown")

	rec = doRequest(t, handler, "PATCH", "/users/self", token, map[string]any{
		"user": map[string]any{"displayName": "Robert Brown"},
	})
	assert.DeepEqual(t, "status", rec.Code, http.StatusOK)
	assert.DeepEqual(t, "updated entry", conn.Entries[bobDN]["cn"], []string{"Robert Brown"})

	//writes to the own entry return a reissued token
	fresh, _ := decodeBody(t, rec)["token"].(string)
	if fresh == "" {
		t.Fatal("expected a refreshed token in the response")
	}
	record, err := server.Auth.VerifyToken(fresh)
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "refreshed subject", record.PrimaryKey(), "bob")
}

func TestPatchOtherEntryReturnsNoToken(t *testing.T) {
	_, _, handler := setupAPITest(t)
	token := login(t, handler, "alice", "alice-password")

	rec := doRequest(t, handler, "PATCH", "/users/bob", token, map[string]any{
		"user": map[string]any{"displayName": "Bobby Brown"},
	})
	assert.DeepEqual(t, "status", rec.Code, http.StatusOK)
	if _, exists := decodeBody(t, rec)["token"]; exists {
		t.Error("expected no token when patching a foreign entry")
	}
}

func TestRegisterFlow(t *testing.T) {
	conn, _, handler := setupAPITest(t)

	//the whole flow runs unauthenticated
	rec := doRequest(t, handler, "GET", "/register-config", "", nil)
	assert.DeepEqual(t, "config status", rec.Code, http.StatusOK)

	rec = doRequest(t, handler, "GET", "/anti-spam/", "", nil)
	assert.DeepEqual(t, "challenge status", rec.Code, http.StatusOK)
	challenge := decodeBody(t, rec)
	antiSpamToken, _ := challenge["token"].(string)
	if antiSpamToken == "" {
		t.Fatal("challenge carries no token")
	}

	rec = doRequest(t, handler, "POST", "/register", "", map[string]any{
		"antiSpamToken":  antiSpamToken,
		"antiSpamAnswer": "wrong",
		"user":           map[string]any{"uid": "carol", "mail": "carol@example.org"},
	})
	assert.DeepEqual(t, "status for wrong answer", rec.Code, http.StatusForbidden)

	rec = doRequest(t, handler, "POST", "/register", "", map[string]any{
		"antiSpamToken":  antiSpamToken,
		"antiSpamAnswer": "4",
		"user":           map[string]any{"uid": "carol", "mail": "carol@example.org"},
	})
	assert.DeepEqual(t, "status", rec.Code, http.StatusOK)
	carolDN := "uid=carol,ou=users," + dnSuffix
	assert.DeepEqual(t, "created entry mail", conn.Entries[carolDN]["mail"], []string{"carol@example.org"})
}

func TestMailLogin(t *testing.T) {
	_, server, handler := setupAPITest(t)
	recorder := server.Mailer.(*mailRecorder)

	rec := doRequest(t, handler, "POST", "/mail-login", "", map[string]any{
		"email": "alice@example.org",
	})
	assert.DeepEqual(t, "status", rec.Code, http.StatusOK)
	assert.DeepEqual(t, "sent mails", len(recorder.calls), 1)

	sent := recorder.calls[0]
	assert.DeepEqual(t, "recipient", sent.To, "alice@example.org")
	assert.DeepEqual(t, "template", sent.Template, "auto_login")
	link, _ := sent.Data["LoginLink"].(string)
	if !strings.HasPrefix(link, "auth/token-login?token=") {
		t.Fatalf("unexpected login link %q", link)
	}

	//the token in the link signs in as the resolved subject
	record, err := server.Auth.VerifyToken(strings.TrimPrefix(link, "auth/token-login?token="))
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "subject", record.PrimaryKey(), "alice")

	//unknown addresses report success without sending anything
	rec = doRequest(t, handler, "POST", "/mail-login", "", map[string]any{
		"email": "nobody@example.org",
	})
	assert.DeepEqual(t, "status for unknown address", rec.Code, http.StatusOK)
	assert.DeepEqual(t, "sent mails", len(recorder.calls), 1)
}

func TestJWTRefresh(t *testing.T) {
	_, server, handler := setupAPITest(t)
	token := login(t, handler, "alice", "alice-password")

	rec := doRequest(t, handler, "POST", "/jwt-refresh", token, map[string]any{})
	assert.DeepEqual(t, "status", rec.Code, http.StatusOK)
	fresh, _ := decodeBody(t, rec)["token"].(string)
	record, err := server.Auth.VerifyToken(fresh)
	test.ExpectNoError(t, err)
	assert.DeepEqual(t, "subject", record.PrimaryKey(), "alice")
}

func TestConfigEndpoint(t *testing.T) {
	_, _, handler := setupAPITest(t)
	token := login(t, handler, "bob", "bob-password")

	rec := doRequest(t, handler, "GET", "/config", token, nil)
	assert.DeepEqual(t, "status", rec.Code, http.StatusOK)
	var configs []map[string]any
	test.ExpectNoError(t, json.Unmarshal(rec.Body.Bytes(), &configs))
	assert.DeepEqual(t, "view count", len(configs), 2)
	assert.DeepEqual(t, "first view key", configs[0]["key"], "users")
}

func TestContentNegotiation(t *testing.T) {
	_, _, handler := setupAPITest(t)
	token := login(t, handler, "alice", "alice-password")

	//payload requests must declare a JSON body
	req := httptest.NewRequest("POST", "/jwt-auth", strings.NewReader("username=alice"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.DeepEqual(t, "status for wrong content type", rec.Code, http.StatusUnsupportedMediaType)

	//clients must accept JSON responses
	req = httptest.NewRequest("GET", "/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/html")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.DeepEqual(t, "status for wrong accept header", rec.Code, http.StatusNotAcceptable)

	//oversized bodies are rejected
	huge := `{"filler": "` + strings.Repeat("a", maxRequestBodyBytes+1) + `"}`
	req = httptest.NewRequest("PATCH", "/users/bob", strings.NewReader(huge))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.DeepEqual(t, "status for oversized body", rec.Code, http.StatusRequestEntityTooLarge)
}

func TestDeleteEndpoint(t *testing.T) {
	conn, _, handler := setupAPITest(t)
	token := login(t, handler, "alice", "alice-password")

	rec := doRequest(t, handler, "DELETE", "/users/bob", token, nil)
	assert.DeepEqual(t, "status", rec.Code, http.StatusOK)
	if _, exists := conn.Entries[bobDN]; exists {
		t.Error("expected the entry to be deleted")
	}
}
