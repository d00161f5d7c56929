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

// initialField seeds a nested target field with a fixed literal at creation
// time. It never reads anything, never applies to updates, and rejects direct
// assignments.
type initialField struct {
	fieldBase
	value  string
	target Field
}

func newInitialField(spec FieldSpec, env *Env) (Field, error) {
	if spec.Target == nil {
		return nil, fmt.Errorf("field %q: missing required property %q", spec.Key, "target")
	}
	base := newFieldBase(spec)
	if !base.creatable {
		return nil, fmt.Errorf("field %q: initial fields must be creatable", spec.Key)
	}
	target, err := newField(*spec.Target, env)
	if err != nil {
		return nil, fmt.Errorf("field %q: invalid target: %w", spec.Key, err)
	}
	return &initialField{
		fieldBase: base,
		value:     spec.Value,
		target:    target,
	}, nil
}

// Config implements the Field interface.
func (f *initialField) Config() FieldConfig {
	cfg := f.baseConfig()
	cfg.Value = f.value
	targetCfg := f.target.Config()
	cfg.Target = &targetCfg
	return cfg
}

// Init implements the Field interface.
func (f *initialField) Init(views map[string]*View, siblings map[string]Field) error {
	return f.target.Init(views, siblings)
}

// GetFetch implements the Field interface.
func (f *initialField) GetFetch(attrs directory.AttributeSet) {
}

// Get implements the Field interface.
func (f *initialField) Get(fetch *directory.Fetch, out map[string]any, ctx Context) {
}

// SetFetch implements the Field interface.
func (f *initialField) SetFetch(attrs directory.AttributeSet, assign Assignment, ctx Context) error {
	return nil
}

// Set implements the Field interface.
func (f *initialField) Set(fetch *directory.Fetch, ml directory.Modlist, assign Assignment, ctx Context) error {
	return nil
}

func (f *initialField) checkUnassigned(assign Assignment) error {
	if value, ok := assign[f.key]; ok && !isZeroValue(value) {
		return Invalid("cannot assign %s", f.key)
	}
	return nil
}

// Create implements the Field interface.
func (f *initialField) Create(fetch *directory.Fetch, al directory.Addlist, assign Assignment, ctx Context) error {
	err := f.checkUnassigned(assign)
	if err != nil {
		return err
	}
	if !f.enabled(ctx) {
		return nil
	}
	assign[f.target.Key()] = f.value
	return f.target.Create(fetch, al, assign, ctx)
}

// SetPost implements the Field interface.
func (f *initialField) SetPost(fetch *directory.Fetch, assign Assignment, ctx Context, isNew bool) error {
	if !isNew {
		return nil
	}
	err := f.checkUnassigned(assign)
	if err != nil {
		return err
	}
	if !f.enabled(ctx) {
		return nil
	}
	assign[f.target.Key()] = f.value
	return f.target.SetPost(fetch, assign, ctx, isNew)
}

func isZeroValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		return v == ""
	default:
		return false
	}
}
