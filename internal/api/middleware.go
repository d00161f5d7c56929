/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package api

import (
	"context"
	"mime"
	"net/http"
	"strings"

	"github.com/pforte-idm/pforte/internal/view"
)

type contextKey int

const userContextKey contextKey = iota

// userFromRequest returns the authenticated user stored by requireAuth, or nil
// on exempt routes.
func userFromRequest(r *http.Request) view.Record {
	record, _ := r.Context().Value(userContextKey).(view.Record)
	return record
}

// maxRequestBodyBytes bounds request payloads. Assignments are small JSON
// documents; anything larger is not a legitimate request.
const maxRequestBodyBytes = 1 << 20

func maxBodySize(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		}
		inner.ServeHTTP(w, r)
	})
}

// requireJSON enforces the content negotiation contract: clients must accept
// JSON responses, and payload-carrying requests must declare a JSON body.
func (s *Server) requireJSON(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(r) {
			respondError(w, http.StatusNotAcceptable, "Not Acceptable", "this API only serves application/json")
			return
		}
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				respondError(w, http.StatusUnsupportedMediaType, "Unsupported Media Type", "request bodies must be application/json")
				return
			}
		}
		inner.ServeHTTP(w, r)
	})
}

func acceptsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mediaRange, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		switch strings.TrimSpace(mediaRange) {
		case "application/json", "application/*", "*/*":
			return true
		}
	}
	return false
}

// requireAuth verifies the bearer token on all routes except the exempt set,
// and stores the verified auth record in the request context.
func (s *Server) requireAuth(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || exemptPaths[r.URL.Path] {
			inner.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r.Header.Get("Authorization"), s.Auth.HeaderPrefix())
		if !ok {
			respondError(w, http.StatusUnauthorized, "Unauthorized", "missing or malformed Authorization header")
			return
		}
		record, err := s.Auth.VerifyToken(token)
		if err != nil {
			respondErr(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, record)
		inner.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header, prefix string) (string, bool) {
	if prefix == "" {
		prefix = "Bearer"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, prefix) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
