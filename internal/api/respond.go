/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sapcc/go-bits/logg"

	"github.com/pforte-idm/pforte/internal/auth"
	"github.com/pforte-idm/pforte/internal/directory"
	"github.com/pforte-idm/pforte/internal/view"
)

// errorPayload is the uniform JSON error document. Validation failures carry
// the field tree mirroring the request structure.
type errorPayload struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Field       *view.ValidationError `json:"field,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		logg.Error("cannot encode API response: %s", err.Error())
	}
}

func respondError(w http.ResponseWriter, status int, title, description string) {
	respondJSON(w, status, errorPayload{Title: title, Description: description})
}

// respondErr maps domain errors onto HTTP status codes.
func respondErr(w http.ResponseWriter, err error) {
	var (
		verr    *view.ValidationError
		dirErr  *directory.Error
		sizeErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, errorPayload{
			Title:       "Bad Request",
			Description: verr.Error(),
			Field:       verr,
		})
	case errors.As(err, &sizeErr):
		respondError(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "request body exceeds the size limit")
	case errors.Is(err, auth.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials or token")
	case errors.Is(err, view.ErrForbidden):
		respondError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, auth.ErrChallengeFailed):
		respondError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, view.ErrNoProjection):
		respondError(w, http.StatusNotFound, "Not Found", "no such resource")
	case errors.As(err, &dirErr):
		respondDirectoryErr(w, dirErr)
	default:
		logg.Error("internal error in API handler: %s", err.Error())
		respondError(w, http.StatusInternalServerError, "Internal Server Error", "see server log for details")
	}
}

func respondDirectoryErr(w http.ResponseWriter, dirErr *directory.Error) {
	switch dirErr.Kind {
	case directory.KindNotFound:
		respondError(w, http.StatusNotFound, "Not Found", "no such entry")
	case directory.KindConflict:
		respondError(w, http.StatusConflict, "Conflict", "entry already exists")
	case directory.KindSchema:
		respondError(w, http.StatusBadRequest, "Bad Request", dirErr.Error())
	case directory.KindInvalidCredentials:
		respondError(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials or token")
	default:
		logg.Error("directory unavailable: %s", dirErr.Error())
		respondError(w, http.StatusBadGateway, "Bad Gateway", "directory unavailable")
	}
}

// decodeRequest parses the JSON request body into dst. On failure it writes
// the error response itself and reports false.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil {
		var sizeErr *http.MaxBytesError
		if errors.As(err, &sizeErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "request body exceeds the size limit")
		} else {
			respondError(w, http.StatusBadRequest, "Bad Request", "cannot parse request body: "+err.Error())
		}
		return false
	}
	return true
}
