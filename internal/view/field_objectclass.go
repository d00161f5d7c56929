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

// objectClassField projects a boolean: does this entry carry one specific
// objectClass? Writes toggle the class value on the objectClass attribute.
//
// With the key "_enabled", the class presence additionally gates the sibling
// fields of the same group.
type objectClassField struct {
	fieldBase
	field       string
	objectClass string
}

func newObjectClassField(spec FieldSpec, env *Env) (Field, error) {
	if spec.ObjectClass == "" {
		return nil, fmt.Errorf("field %q: missing required property %q", spec.Key, "objectClass")
	}
	return &objectClassField{
		fieldBase:   newFieldBase(spec),
		field:       stringOr(spec.Field, "objectClass"),
		objectClass: spec.ObjectClass,
	}, nil
}

// Config implements the Field interface.
func (f *objectClassField) Config() FieldConfig {
	cfg := f.baseConfig()
	cfg.Field = f.field
	cfg.ObjectClass = f.objectClass
	return cfg
}

// Init implements the Field interface.
func (f *objectClassField) Init(views map[string]*View, siblings map[string]Field) error {
	return nil
}

// GetFetch implements the Field interface.
func (f *objectClassField) GetFetch(attrs directory.AttributeSet) {
	if !f.readable {
		return
	}
	attrs.Add(f.field)
}

// Get implements the Field interface.
func (f *objectClassField) Get(fetch *directory.Fetch, out map[string]any, ctx Context) {
	if !f.readable || !f.enabled(ctx) {
		return
	}
	present := fetch.Contains(f.field, f.objectClass)
	out[f.key] = present
	if f.key == enabledKey {
		ctx[enabledKey] = present
	}
}

// SetFetch implements the Field interface.
func (f *objectClassField) SetFetch(attrs directory.AttributeSet, assign Assignment, ctx Context) error {
	if f.key == enabledKey {
		//the current state is needed in Set even without an assignment
		attrs.Add(f.field)
		if assign.Mentions(f.key) {
			ctx[enabledKey] = assign.Bool(f.key)
		}
	}
	if !assign.Mentions(f.key) || !f.enabled(ctx) {
		return nil
	}
	if f.required && !assign.Bool(f.key) {
		return Invalid("%s is required", f.key)
	}
	if !f.writable {
		return fmt.Errorf("cannot write %s: %w", f.key, ErrForbidden)
	}
	attrs.Add(f.field)
	return nil
}

// Set implements the Field interface.
func (f *objectClassField) Set(fetch *directory.Fetch, ml directory.Modlist, assign Assignment, ctx Context) error {
	if f.key == enabledKey && !assign.Mentions(f.key) {
		ctx[enabledKey] = fetch.Contains(f.field, f.objectClass)
		return nil
	}
	if !assign.Mentions(f.key) || !f.enabled(ctx) {
		return nil
	}
	if f.key == enabledKey {
		ctx[enabledKey] = assign.Bool(f.key)
	}
	if !f.writable {
		return fmt.Errorf("cannot write %s: %w", f.key, ErrForbidden)
	}

	desired := assign.Bool(f.key)
	present := fetch.Contains(f.field, f.objectClass)
	switch {
	case desired && !present:
		ml[f.field] = append(ml[f.field], directory.Mod{Op: directory.ModAdd, Values: []string{f.objectClass}})
		fetch.AddValue(f.field, f.objectClass)
	case !desired && present:
		ml[f.field] = append(ml[f.field], directory.Mod{Op: directory.ModDelete, Values: []string{f.objectClass}})
		fetch.RemoveValue(f.field, f.objectClass)
	}
	return nil
}

// Create implements the Field interface.
func (f *objectClassField) Create(fetch *directory.Fetch, al directory.Addlist, assign Assignment, ctx Context) error {
	if !assign.Mentions(f.key) {
		if f.required && f.enabled(ctx) {
			return Invalid("%s is required", f.key)
		}
		if f.key == enabledKey {
			//a fresh entry does not carry optional classes
			ctx[enabledKey] = false
		}
		return nil
	}
	if f.key == enabledKey {
		ctx[enabledKey] = assign.Bool(f.key)
	}
	if !f.creatable {
		return fmt.Errorf("cannot create %s: %w", f.key, ErrForbidden)
	}

	if assign.Bool(f.key) {
		al[f.field] = append(al[f.field], f.objectClass)
		fetch.AddValue(f.field, f.objectClass)
	}
	return nil
}

// SetPost implements the Field interface.
func (f *objectClassField) SetPost(fetch *directory.Fetch, assign Assignment, ctx Context, isNew bool) error {
	return nil
}
