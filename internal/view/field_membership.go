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

// isMemberOfField projects a boolean: is this entry a member of one specific
// foreign entry? Reads consult the local back-reference attribute; writes run
// in SetPost and flip the member attribute on the foreign entry instead.
//
// With the key "_enabled", the projected boolean additionally gates the
// sibling fields of the same group.
type isMemberOfField struct {
	fieldBase
	field           string
	memberOfName    string
	memberOfDN      string
	foreignViewName string
	foreignView     *View
	foreignField    string
}

func newIsMemberOfField(spec FieldSpec, env *Env) (Field, error) {
	if spec.MemberOf == "" {
		return nil, fmt.Errorf("field %q: missing required property %q", spec.Key, "memberOf")
	}
	if spec.ForeignView == "" {
		return nil, fmt.Errorf("field %q: missing required property %q", spec.Key, "foreignView")
	}
	return &isMemberOfField{
		fieldBase:       newFieldBase(spec),
		field:           stringOr(spec.Field, "memberOf"),
		memberOfName:    spec.MemberOf,
		foreignViewName: spec.ForeignView,
		foreignField:    stringOr(spec.ForeignField, "member"),
	}, nil
}

// Config implements the Field interface.
func (f *isMemberOfField) Config() FieldConfig {
	cfg := f.baseConfig()
	cfg.Field = f.field
	cfg.MemberOf = f.memberOfName
	cfg.ForeignView = f.foreignViewName
	cfg.ForeignField = f.foreignField
	return cfg
}

// Init implements the Field interface.
func (f *isMemberOfField) Init(views map[string]*View, siblings map[string]Field) error {
	foreign, ok := views[f.foreignViewName]
	if !ok {
		return fmt.Errorf("field %q: unknown foreign view %q", f.key, f.foreignViewName)
	}
	f.foreignView = foreign
	f.memberOfDN = foreign.DN(f.memberOfName)
	return nil
}

// GetFetch implements the Field interface.
func (f *isMemberOfField) GetFetch(attrs directory.AttributeSet) {
	if !f.readable {
		return
	}
	attrs.Add(f.field)
}

// Get implements the Field interface.
func (f *isMemberOfField) Get(fetch *directory.Fetch, out map[string]any, ctx Context) {
	if !f.readable || !f.enabled(ctx) {
		return
	}
	isMember := fetch.Contains(f.field, f.memberOfDN)
	out[f.key] = isMember
	if f.key == enabledKey {
		ctx[enabledKey] = isMember
	}
}

// SetFetch implements the Field interface.
func (f *isMemberOfField) SetFetch(attrs directory.AttributeSet, assign Assignment, ctx Context) error {
	if f.key == enabledKey {
		//the current state is needed in SetPost even without an assignment
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
func (f *isMemberOfField) Set(fetch *directory.Fetch, ml directory.Modlist, assign Assignment, ctx Context) error {
	return nil
}

// Create implements the Field interface.
func (f *isMemberOfField) Create(fetch *directory.Fetch, al directory.Addlist, assign Assignment, ctx Context) error {
	return nil
}

// SetPost implements the Field interface.
func (f *isMemberOfField) SetPost(fetch *directory.Fetch, assign Assignment, ctx Context, isNew bool) error {
	if !assign.Mentions(f.key) {
		if isNew && f.required && f.enabled(ctx) {
			return Invalid("%s is required", f.key)
		}
		if f.key == enabledKey {
			ctx[enabledKey] = fetch.Contains(f.field, f.memberOfDN)
		}
		return nil
	}
	if f.key == enabledKey {
		ctx[enabledKey] = assign.Bool(f.key)
	}
	if !f.enabled(ctx) {
		return nil
	}
	if !f.writable && !(isNew && f.creatable) {
		return fmt.Errorf("cannot write %s: %w", f.key, ErrForbidden)
	}

	desired := assign.Bool(f.key)
	if fetch.Contains(f.field, f.memberOfDN) == desired {
		return nil
	}

	op := directory.ModDelete
	if desired {
		op = directory.ModAdd
	}
	err := f.foreignView.SaveForeignField(f.memberOfName, directory.Modlist{
		f.foreignField: {{Op: op, Values: []string{fetch.DN}}},
	})
	if err != nil {
		return err
	}
	if desired {
		fetch.AddValue(f.field, f.memberOfDN)
	} else {
		fetch.RemoveValue(f.field, f.memberOfDN)
	}
	return nil
}
