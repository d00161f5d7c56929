/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package view

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrForbidden is returned when an operation is blocked by a permission or
// writability check. The HTTP layer maps it to 403 without a field payload.
var ErrForbidden = errors.New("insufficient permissions")

// ErrNoProjection is returned when an operation targets a projection that the
// view does not define (e.g. a self update on a view without a self
// projection).
var ErrNoProjection = errors.New("no such projection")

// ValidationError describes why a request payload was rejected. It is either
// a leaf carrying a message, or an inner node mapping field/group keys to
// nested errors. As it bubbles up through groups and projections, each layer
// wraps it with its own key, so the final JSON payload mirrors the request
// structure: {"user": {"mail": "invalid value ..."}}.
type ValidationError struct {
	Message string
	Fields  map[string]*ValidationError
}

// Invalid builds a leaf ValidationError.
func Invalid(msg string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(msg, args...)}
}

// At wraps this error under the given key, adding one level of nesting.
func (e *ValidationError) At(key string) *ValidationError {
	return &ValidationError{Fields: map[string]*ValidationError{key: e}}
}

// Error implements the builtin error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	var paths []string
	for _, key := range sortedErrorKeys(e.Fields) {
		sub := e.Fields[key]
		for _, msg := range sub.flatten() {
			paths = append(paths, key+msg)
		}
	}
	return strings.Join(paths, "; ")
}

func (e *ValidationError) flatten() []string {
	if len(e.Fields) == 0 {
		return []string{": " + e.Message}
	}
	var result []string
	for _, key := range sortedErrorKeys(e.Fields) {
		for _, msg := range e.Fields[key].flatten() {
			result = append(result, "."+key+msg)
		}
	}
	return result
}

// MarshalJSON implements the json.Marshaler interface. Leaves render as their
// message string, inner nodes as objects.
func (e *ValidationError) MarshalJSON() ([]byte, error) {
	if len(e.Fields) == 0 {
		return json.Marshal(e.Message)
	}
	return json.Marshal(e.Fields)
}

// wrapFieldError nests validation errors under the given key. Other error
// types (forbidden, gateway errors) pass through unchanged.
func wrapFieldError(key string, err error) error {
	if err == nil {
		return nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.At(key)
	}
	return err
}

func sortedErrorKeys(m map[string]*ValidationError) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
