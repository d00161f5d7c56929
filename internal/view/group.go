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

// Group composes fields or exposes relationship semantics within a
// projection. Groups run through the same lifecycle phases as fields; the
// projection dispatches each phase to its groups in declaration order.
type Group interface {
	Key() string
	Config() GroupConfig
	Init(views map[string]*View) error
	GetFetch(attrs directory.AttributeSet)
	// Get returns the JSON value of the whole group: a field-keyed object for
	// fields groups, a list of foreign primary keys for relationship groups.
	Get(fetch *directory.Fetch) any
	SetFetch(attrs directory.AttributeSet, assign Assignment, ctx Context) error
	Set(fetch *directory.Fetch, ml directory.Modlist, assign Assignment, ctx Context) error
	Create(fetch *directory.Fetch, al directory.Addlist, assign Assignment, ctx Context) error
	SetPost(fetch *directory.Fetch, assign Assignment, ctx Context, isNew bool) error
}

// GroupConfig is the JSON document describing one group to API clients.
type GroupConfig struct {
	Key          string        `json:"key"`
	Type         string        `json:"type"`
	Title        string        `json:"title"`
	Fields       []FieldConfig `json:"fields,omitempty"`
	Field        string        `json:"field,omitempty"`
	ForeignView  string        `json:"foreignView,omitempty"`
	ForeignField string        `json:"foreignField,omitempty"`
}

func newGroup(spec GroupSpec, env *Env) (Group, error) {
	switch spec.Type {
	case "fields":
		return newFieldsGroup(spec, env)
	case "member":
		return newMemberGroup(spec, relationDefaults{field: "member", foreignField: "memberOf", outgoing: true})
	case "memberOf":
		return newMemberGroup(spec, relationDefaults{field: "memberOf", foreignField: "member", outgoing: false})
	default:
		return nil, fmt.Errorf("group %q: unknown group type %q", spec.Key, spec.Type)
	}
}

////////////////////////////////////////////////////////////////////////////////
// fields group

// fieldsGroup is a set of fields living on the same entry. It delegates every
// phase to its fields in declaration order and annotates field errors with
// the field key.
type fieldsGroup struct {
	key    string
	title  string
	fields []Field
}

func newFieldsGroup(spec GroupSpec, env *Env) (Group, error) {
	fields := make([]Field, 0, len(spec.Fields))
	for _, fieldSpec := range spec.Fields {
		field, err := newField(fieldSpec, env)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", spec.Key, err)
		}
		fields = append(fields, field)
	}
	return &fieldsGroup{key: spec.Key, title: spec.Title, fields: fields}, nil
}

// Key implements the Group interface.
func (g *fieldsGroup) Key() string {
	return g.key
}

// Config implements the Group interface.
func (g *fieldsGroup) Config() GroupConfig {
	cfg := GroupConfig{Key: g.key, Type: "fields", Title: g.title}
	for _, field := range g.fields {
		cfg.Fields = append(cfg.Fields, field.Config())
	}
	return cfg
}

// Init implements the Group interface.
func (g *fieldsGroup) Init(views map[string]*View) error {
	siblings := make(map[string]Field, len(g.fields))
	for _, field := range g.fields {
		siblings[field.Key()] = field
	}
	for _, field := range g.fields {
		err := field.Init(views, siblings)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetFetch implements the Group interface.
func (g *fieldsGroup) GetFetch(attrs directory.AttributeSet) {
	for _, field := range g.fields {
		field.GetFetch(attrs)
	}
}

// Get implements the Group interface.
func (g *fieldsGroup) Get(fetch *directory.Fetch) any {
	out := make(map[string]any, len(g.fields))
	ctx := Context{}
	for _, field := range g.fields {
		field.Get(fetch, out, ctx)
	}
	return out
}

// SetFetch implements the Group interface.
func (g *fieldsGroup) SetFetch(attrs directory.AttributeSet, assign Assignment, ctx Context) error {
	for _, field := range g.fields {
		err := field.SetFetch(attrs, assign, ctx)
		if err != nil {
			return wrapFieldError(field.Key(), err)
		}
	}
	return nil
}

// Set implements the Group interface.
func (g *fieldsGroup) Set(fetch *directory.Fetch, ml directory.Modlist, assign Assignment, ctx Context) error {
	for _, field := range g.fields {
		err := field.Set(fetch, ml, assign, ctx)
		if err != nil {
			return wrapFieldError(field.Key(), err)
		}
	}
	return nil
}

// Create implements the Group interface.
func (g *fieldsGroup) Create(fetch *directory.Fetch, al directory.Addlist, assign Assignment, ctx Context) error {
	for _, field := range g.fields {
		err := field.Create(fetch, al, assign, ctx)
		if err != nil {
			return wrapFieldError(field.Key(), err)
		}
	}
	return nil
}

// SetPost implements the Group interface.
func (g *fieldsGroup) SetPost(fetch *directory.Fetch, assign Assignment, ctx Context, isNew bool) error {
	for _, field := range g.fields {
		err := field.SetPost(fetch, assign, ctx, isNew)
		if err != nil {
			return wrapFieldError(field.Key(), err)
		}
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// relationship groups

type relationDefaults struct {
	field        string
	foreignField string
	// outgoing groups write the local attribute through the primary modify;
	// incoming groups write the foreign entries in SetPost instead.
	outgoing bool
}

// memberGroup covers both directions of a DN-valued relationship. The value
// is a list of foreign primary keys; assignments carry {"add": [...],
// "delete": [...]} deltas.
type memberGroup struct {
	key             string
	title           string
	field           string
	foreignViewName string
	foreignView     *View
	foreignField    string
	writable        bool
	outgoing        bool
}

func newMemberGroup(spec GroupSpec, defaults relationDefaults) (Group, error) {
	if spec.ForeignView == "" {
		return nil, fmt.Errorf("group %q: missing required property %q", spec.Key, "foreignView")
	}
	return &memberGroup{
		key:             spec.Key,
		title:           spec.Title,
		field:           stringOr(spec.Field, defaults.field),
		foreignViewName: spec.ForeignView,
		foreignField:    stringOr(spec.ForeignField, defaults.foreignField),
		writable:        boolOr(spec.Writable, true),
		outgoing:        defaults.outgoing,
	}, nil
}

// Key implements the Group interface.
func (g *memberGroup) Key() string {
	return g.key
}

// Config implements the Group interface.
func (g *memberGroup) Config() GroupConfig {
	typ := "memberOf"
	if g.outgoing {
		typ = "member"
	}
	return GroupConfig{
		Key:          g.key,
		Type:         typ,
		Title:        g.title,
		Field:        g.field,
		ForeignView:  g.foreignViewName,
		ForeignField: g.foreignField,
	}
}

// Init implements the Group interface.
func (g *memberGroup) Init(views map[string]*View) error {
	foreign, ok := views[g.foreignViewName]
	if !ok {
		return fmt.Errorf("group %q: unknown foreign view %q", g.key, g.foreignViewName)
	}
	g.foreignView = foreign
	return nil
}

// GetFetch implements the Group interface.
func (g *memberGroup) GetFetch(attrs directory.AttributeSet) {
	attrs.Add(g.field)
}

// Get implements the Group interface.
func (g *memberGroup) Get(fetch *directory.Fetch) any {
	//DNs that do not match the foreign view's pattern are skipped
	result := []string{}
	for _, dn := range fetch.Values[g.field] {
		if pk, ok := g.foreignView.TryPrimaryKeyFromDN(dn); ok {
			result = append(result, pk)
		}
	}
	return result
}

// reference is one resolved relationship target.
type reference struct {
	pk string
	dn string
}

// delta parses the {"add": [...], "delete": [...]} assignment shape and
// resolves the referenced primary keys into DNs.
func (g *memberGroup) delta(assign Assignment) (adds, deletes []reference, err error) {
	resolve := func(key string) ([]reference, error) {
		pks, ok := assign.StringList(key)
		if !ok {
			return nil, Invalid("%s must be a list of primary keys", key)
		}
		refs := make([]reference, 0, len(pks))
		for _, pk := range pks {
			dn, ok := g.foreignView.TryDN(pk)
			if !ok {
				return nil, Invalid("invalid reference %q", pk)
			}
			refs = append(refs, reference{pk: pk, dn: dn})
		}
		return refs, nil
	}
	adds, err = resolve("add")
	if err != nil {
		return nil, nil, err
	}
	deletes, err = resolve("delete")
	if err != nil {
		return nil, nil, err
	}
	return adds, deletes, nil
}

// SetFetch implements the Group interface.
func (g *memberGroup) SetFetch(attrs directory.AttributeSet, assign Assignment, ctx Context) error {
	adds, deletes, err := g.delta(assign)
	if err != nil {
		return err
	}
	if len(adds) == 0 && len(deletes) == 0 {
		return nil
	}
	if !g.writable {
		return fmt.Errorf("cannot write %s: %w", g.key, ErrForbidden)
	}
	//the current state is needed to keep the writes idempotent
	attrs.Add(g.field)
	return nil
}

// Set implements the Group interface.
func (g *memberGroup) Set(fetch *directory.Fetch, ml directory.Modlist, assign Assignment, ctx Context) error {
	if !g.outgoing {
		return nil
	}
	adds, deletes, err := g.delta(assign)
	if err != nil {
		return err
	}

	//DELETE goes first so that a delete+add of the same reference settles on
	//the added state
	deleteDNs := filterContained(fetch, g.field, deletes, true)
	if len(deleteDNs) > 0 {
		ml[g.field] = append(ml[g.field], directory.Mod{Op: directory.ModDelete, Values: deleteDNs})
		for _, dn := range deleteDNs {
			fetch.RemoveValue(g.field, dn)
		}
	}
	addDNs := filterContained(fetch, g.field, adds, false)
	if len(addDNs) > 0 {
		ml[g.field] = append(ml[g.field], directory.Mod{Op: directory.ModAdd, Values: addDNs})
		for _, dn := range addDNs {
			fetch.AddValue(g.field, dn)
		}
	}
	return nil
}

// Create implements the Group interface.
func (g *memberGroup) Create(fetch *directory.Fetch, al directory.Addlist, assign Assignment, ctx Context) error {
	if !g.outgoing {
		return nil
	}
	adds, deletes, err := g.delta(assign)
	if err != nil {
		return err
	}
	if len(deletes) > 0 {
		return Invalid("cannot remove references on creation")
	}
	if len(adds) == 0 {
		return nil
	}
	for _, ref := range adds {
		al[g.field] = append(al[g.field], ref.dn)
		fetch.AddValue(g.field, ref.dn)
	}
	return nil
}

// SetPost implements the Group interface.
func (g *memberGroup) SetPost(fetch *directory.Fetch, assign Assignment, ctx Context, isNew bool) error {
	if g.outgoing {
		return nil
	}
	adds, deletes, err := g.delta(assign)
	if err != nil {
		return err
	}
	if len(adds) == 0 && len(deletes) == 0 {
		return nil
	}
	if !g.writable {
		return fmt.Errorf("cannot write %s: %w", g.key, ErrForbidden)
	}

	//each reference is one modify on the respective foreign entry; writes
	//that would not change anything are skipped
	for _, ref := range adds {
		if fetch.Contains(g.field, ref.dn) {
			continue
		}
		err := g.foreignView.SaveForeignField(ref.pk, directory.Modlist{
			g.foreignField: {{Op: directory.ModAdd, Values: []string{fetch.DN}}},
		})
		if err != nil {
			return err
		}
		fetch.AddValue(g.field, ref.dn)
	}
	for _, ref := range deletes {
		if !fetch.Contains(g.field, ref.dn) {
			continue
		}
		err := g.foreignView.SaveForeignField(ref.pk, directory.Modlist{
			g.foreignField: {{Op: directory.ModDelete, Values: []string{fetch.DN}}},
		})
		if err != nil {
			return err
		}
		fetch.RemoveValue(g.field, ref.dn)
	}
	return nil
}

// filterContained keeps only those references whose presence in the fetch
// record matches the wanted state, so that redundant modifications are
// dropped.
func filterContained(fetch *directory.Fetch, attr string, refs []reference, wantPresent bool) []string {
	result := make([]string, 0, len(refs))
	for _, ref := range refs {
		if fetch.Contains(attr, ref.dn) == wantPresent {
			result = append(result, ref.dn)
		}
	}
	return result
}
