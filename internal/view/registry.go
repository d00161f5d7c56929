/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package view

import (
	"fmt"

	"github.com/pforte-idm/pforte/internal/directory"
)

// Registry holds all views and performs the cross-view wiring. Views may
// reference each other in both directions, so construction runs in two
// passes: build every view first, then resolve foreignView references by key.
type Registry struct {
	views map[string]*View
	order []string
}

// NewRegistry constructs all views in declaration order and resolves their
// cross-references.
func NewRegistry(conn directory.Connection, env *Env, suffix string, specs ViewSpecs) (*Registry, error) {
	r := &Registry{
		views: make(map[string]*View, len(specs)),
		order: make([]string, 0, len(specs)),
	}
	for _, spec := range specs {
		if _, exists := r.views[spec.Key]; exists {
			return nil, fmt.Errorf("duplicate view key %q", spec.Key)
		}
		v, err := NewView(conn, env, suffix, spec)
		if err != nil {
			return nil, err
		}
		r.views[spec.Key] = v
		r.order = append(r.order, spec.Key)
	}
	for _, key := range r.order {
		err := r.views[key].init(r.views)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// View returns the view with the given key.
func (r *Registry) View(key string) (*View, bool) {
	v, ok := r.views[key]
	return v, ok
}

// Views returns all views in declaration order.
func (r *Registry) Views() []*View {
	result := make([]*View, len(r.order))
	for idx, key := range r.order {
		result[idx] = r.views[key]
	}
	return result
}

// UserConfigs returns the schema documents for authenticated clients, in
// declaration order.
func (r *Registry) UserConfigs() []UserConfig {
	result := make([]UserConfig, 0, len(r.order))
	for _, v := range r.Views() {
		result = append(result, v.UserConfig())
	}
	return result
}

// PublicConfigs returns the schema documents of all registerable views, in
// declaration order.
func (r *Registry) PublicConfigs() []PublicConfig {
	result := []PublicConfig{}
	for _, v := range r.Views() {
		if cfg, ok := v.PublicConfig(); ok {
			result = append(result, cfg)
		}
	}
	return result
}

// EnsureBaseDNs verifies (or auto-creates) the base DN of every view. It runs
// once at startup.
func (r *Registry) EnsureBaseDNs() error {
	for _, v := range r.Views() {
		err := v.EnsureBaseDN()
		if err != nil {
			return err
		}
	}
	return nil
}
