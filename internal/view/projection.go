/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package view

import (
	"github.com/pforte-idm/pforte/internal/directory"
)

// Assignments is the decoded JSON payload of a whole write request, keyed by
// group key.
type Assignments map[string]any

func (a Assignments) group(key string) (Assignment, bool, error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, false, Invalid("must be an object").At(key)
	}
	return Assignment(obj), true, nil
}

// ListProjection is a flat, read-only projection: an ordered list of fields
// rendered into a single JSON object. It backs the list and auth projections.
type ListProjection struct {
	fields []Field
}

func newListProjection(specs FieldSpecs, env *Env) (*ListProjection, error) {
	fields := make([]Field, 0, len(specs))
	for _, spec := range specs {
		//list projections never write
		writable := false
		spec.Writable = &writable
		field, err := newField(spec, env)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return &ListProjection{fields: fields}, nil
}

func (p *ListProjection) init(views map[string]*View) error {
	siblings := make(map[string]Field, len(p.fields))
	for _, field := range p.fields {
		siblings[field.Key()] = field
	}
	for _, field := range p.fields {
		err := field.Init(views, siblings)
		if err != nil {
			return err
		}
	}
	return nil
}

// Config returns the field config documents in declaration order.
func (p *ListProjection) Config() []FieldConfig {
	result := make([]FieldConfig, len(p.fields))
	for idx, field := range p.fields {
		result[idx] = field.Config()
	}
	return result
}

// GetFetch declares the attributes needed to render an entry.
func (p *ListProjection) GetFetch(attrs directory.AttributeSet) {
	for _, field := range p.fields {
		field.GetFetch(attrs)
	}
}

// Get renders one entry as a flat JSON object.
func (p *ListProjection) Get(fetch *directory.Fetch) map[string]any {
	out := make(map[string]any, len(p.fields))
	ctx := Context{}
	for _, field := range p.fields {
		field.Get(fetch, out, ctx)
	}
	return out
}

// FieldAttribute returns the directory attribute that the field with the
// given key is bound to, if there is such a field and it has a single
// attribute binding.
func (p *ListProjection) FieldAttribute(key string) (string, bool) {
	for _, field := range p.fields {
		if field.Key() != key {
			continue
		}
		if af, ok := field.(attributeField); ok {
			return af.Attribute(), true
		}
	}
	return "", false
}

// Projection is a read-write projection: an ordered list of groups rendered
// into a JSON object of group values. It backs the details, self and register
// projections.
type Projection struct {
	groups []Group
}

func newProjection(specs GroupSpecs, env *Env) (*Projection, error) {
	groups := make([]Group, 0, len(specs))
	for _, spec := range specs {
		group, err := newGroup(spec, env)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return &Projection{groups: groups}, nil
}

func (p *Projection) init(views map[string]*View) error {
	for _, group := range p.groups {
		err := group.Init(views)
		if err != nil {
			return err
		}
	}
	return nil
}

// Config returns the group config documents in declaration order.
func (p *Projection) Config() []GroupConfig {
	result := make([]GroupConfig, len(p.groups))
	for idx, group := range p.groups {
		result[idx] = group.Config()
	}
	return result
}

// Contexts allocates the per-request gating state, one context per group. The
// same slice must thread through all phases of a request so that gating
// decisions made early (e.g. in SetFetch) remain visible later (e.g. in
// SetPost).
func (p *Projection) Contexts() []Context {
	result := make([]Context, len(p.groups))
	for idx := range result {
		result[idx] = Context{}
	}
	return result
}

// GetFetch declares the attributes needed to render an entry.
func (p *Projection) GetFetch(attrs directory.AttributeSet) {
	for _, group := range p.groups {
		group.GetFetch(attrs)
	}
}

// Get renders one entry as a JSON object keyed by group.
func (p *Projection) Get(fetch *directory.Fetch) map[string]any {
	out := make(map[string]any, len(p.groups))
	for _, group := range p.groups {
		out[group.Key()] = group.Get(fetch)
	}
	return out
}

// SetFetch declares the attributes needed to apply the assignments. Groups
// that the assignment does not mention are skipped.
func (p *Projection) SetFetch(attrs directory.AttributeSet, assigns Assignments, ctxs []Context) error {
	for idx, group := range p.groups {
		assign, ok, err := assigns.group(group.Key())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		err = group.SetFetch(attrs, assign, ctxs[idx])
		if err != nil {
			return wrapFieldError(group.Key(), err)
		}
	}
	return nil
}

// Set translates the assignments into a modlist for the primary entry.
func (p *Projection) Set(fetch *directory.Fetch, ml directory.Modlist, assigns Assignments, ctxs []Context) error {
	for idx, group := range p.groups {
		assign, ok, err := assigns.group(group.Key())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		err = group.Set(fetch, ml, assign, ctxs[idx])
		if err != nil {
			return wrapFieldError(group.Key(), err)
		}
	}
	return nil
}

// Create translates the assignments into an addlist for a new entry.
func (p *Projection) Create(fetch *directory.Fetch, al directory.Addlist, assigns Assignments, ctxs []Context) error {
	for idx, group := range p.groups {
		assign, ok, err := assigns.group(group.Key())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		err = group.Create(fetch, al, assign, ctxs[idx])
		if err != nil {
			return wrapFieldError(group.Key(), err)
		}
	}
	return nil
}

// SetPost performs the follow-up writes on foreign entries.
func (p *Projection) SetPost(fetch *directory.Fetch, assigns Assignments, ctxs []Context, isNew bool) error {
	for idx, group := range p.groups {
		assign, ok, err := assigns.group(group.Key())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		err = group.SetPost(fetch, assign, ctxs[idx], isNew)
		if err != nil {
			return wrapFieldError(group.Key(), err)
		}
	}
	return nil
}
