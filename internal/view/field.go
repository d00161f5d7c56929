/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package view

import (
	"fmt"

	"github.com/pforte-idm/pforte/internal/crypt"
	"github.com/pforte-idm/pforte/internal/directory"
)

// Assignment is the decoded JSON payload for one group of a write request.
// Field keys map to the requested values (strings for text-like fields,
// booleans for membership toggles, string lists under "add"/"delete" for
// relationship groups).
type Assignment map[string]any

// Mentions reports whether the assignment contains the given key at all.
// An explicit null still counts as mentioned.
func (a Assignment) Mentions(key string) bool {
	_, ok := a[key]
	return ok
}

// String returns the assignment value for the given key coerced to a string.
// Absent keys and explicit nulls yield the empty string.
func (a Assignment) String(key string) string {
	switch value := a[key].(type) {
	case string:
		return value
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}

// Bool returns the assignment value for the given key coerced to a boolean.
func (a Assignment) Bool(key string) bool {
	value, _ := a[key].(bool)
	return value
}

// StringList returns the assignment value for the given key as a string list.
// The second return value is false when the value is present but not a list
// of strings.
func (a Assignment) StringList(key string) ([]string, bool) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return nil, true
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	result := make([]string, len(list))
	for idx, entry := range list {
		str, ok := entry.(string)
		if !ok {
			return nil, false
		}
		result[idx] = str
	}
	return result, true
}

// Context is the per-request gating state shared by the fields of one group.
// Only fields with the key "_enabled" write to it; all other fields consult
// it to decide whether they are disabled for the current record.
type Context map[string]bool

// Env carries the shared collaborators that fields need. It is created once
// at startup and shared by all views. The zero value uses the real
// implementations; tests override individual members.
type Env struct {
	// NewHasher resolves a hashing scheme name to a hasher. Defaults to
	// crypt.NewPasswordHasher.
	NewHasher func(scheme string) (crypt.PasswordHasher, error)
	// LeakChecker defaults to the public pwnedpasswords.com range API.
	LeakChecker crypt.LeakChecker
	// GenerateSecret can be overridden in tests to make generated passwords
	// predictable. Defaults to crypt.GenerateSecret.
	GenerateSecret func() string
}

func (e *Env) newHasher(scheme string) (crypt.PasswordHasher, error) {
	if e.NewHasher == nil {
		return crypt.NewPasswordHasher(scheme)
	}
	return e.NewHasher(scheme)
}

func (e *Env) countLeaks(password string) (int, error) {
	if e.LeakChecker == nil {
		return crypt.PwnedPasswords{}.CountLeaks(password)
	}
	return e.LeakChecker.CountLeaks(password)
}

func (e *Env) generateSecret() string {
	if e.GenerateSecret == nil {
		return crypt.GenerateSecret()
	}
	return e.GenerateSecret()
}

// Field is a leaf lifecycle participant bound to one or more directory
// attributes. The View invokes the phases in a fixed order: the fetch phases
// declare which attributes the request needs, the value phases translate
// between JSON values and directory write plans, and SetPost performs
// follow-up writes on foreign entries after the primary write committed.
//
// Every phase must only touch attributes that the field declared in the
// corresponding fetch phase.
type Field interface {
	Key() string
	Config() FieldConfig
	// Init resolves cross-view and cross-field references. It runs once after
	// all views have been constructed.
	Init(views map[string]*View, siblings map[string]Field) error
	GetFetch(attrs directory.AttributeSet)
	Get(fetch *directory.Fetch, out map[string]any, ctx Context)
	SetFetch(attrs directory.AttributeSet, assign Assignment, ctx Context) error
	Set(fetch *directory.Fetch, ml directory.Modlist, assign Assignment, ctx Context) error
	Create(fetch *directory.Fetch, al directory.Addlist, assign Assignment, ctx Context) error
	SetPost(fetch *directory.Fetch, assign Assignment, ctx Context, isNew bool) error
}

// attributeField is implemented by fields that are bound to exactly one
// directory attribute. The view uses it to locate attribute bindings by field
// key (e.g. the mail attribute of the auth projection).
type attributeField interface {
	Attribute() string
}

// FieldConfig is the JSON document describing one field to API clients, as
// served by the config endpoints.
type FieldConfig struct {
	Key           string       `json:"key"`
	Type          string       `json:"type"`
	Title         string       `json:"title"`
	Required      bool         `json:"required"`
	Creatable     bool         `json:"creatable"`
	Readable      bool         `json:"readable"`
	Writable      bool         `json:"writable"`
	Hidden        bool         `json:"hidden"`
	Field         string       `json:"field,omitempty"`
	Format        string       `json:"format,omitempty"`
	FormatMessage string       `json:"formatMessage,omitempty"`
	Enum          []EnumValue  `json:"enum,omitempty"`
	AutoGenerate  bool         `json:"autoGenerate,omitempty"`
	Hashing       string       `json:"hashing,omitempty"`
	MemberOf      string       `json:"memberOf,omitempty"`
	ForeignView   string       `json:"foreignView,omitempty"`
	ForeignField  string       `json:"foreignField,omitempty"`
	ObjectClass   string       `json:"objectClass,omitempty"`
	Value         string       `json:"value,omitempty"`
	Target        *FieldConfig `json:"target,omitempty"`
}

// newField constructs a field from its spec. Unknown types are rejected at
// config load instead of at request time.
func newField(spec FieldSpec, env *Env) (Field, error) {
	ctor, ok := fieldTypes[spec.Type]
	if !ok {
		return nil, fmt.Errorf("field %q: unknown field type %q", spec.Key, spec.Type)
	}
	return ctor(spec, env)
}

var fieldTypes map[string]func(FieldSpec, *Env) (Field, error)

func init() {
	fieldTypes = map[string]func(FieldSpec, *Env) (Field, error){
		"text":        newTextField,
		"datetime":    newDateTimeField,
		"password":    newPasswordField,
		"generate":    newGenerateField,
		"isMemberOf":  newIsMemberOfField,
		"objectClass": newObjectClassField,
		"initial":     newInitialField,
	}
}

// fieldBase carries the flags common to all field types.
type fieldBase struct {
	key       string
	typ       string
	title     string
	required  bool
	creatable bool
	readable  bool
	writable  bool
	hidden    bool
}

func newFieldBase(spec FieldSpec) fieldBase {
	return fieldBase{
		key:       spec.Key,
		typ:       spec.Type,
		title:     spec.Title,
		required:  spec.Required,
		creatable: boolOr(spec.Creatable, true),
		readable:  boolOr(spec.Readable, true),
		writable:  boolOr(spec.Writable, true),
		hidden:    spec.Hidden,
	}
}

// Key implements part of the Field interface.
func (f *fieldBase) Key() string {
	return f.key
}

// enabled reports whether the field participates in the current record. The
// "_enabled" producer itself always participates; everyone else is gated on
// the context value it produced.
func (f *fieldBase) enabled(ctx Context) bool {
	if f.key == enabledKey {
		return true
	}
	value, ok := ctx[enabledKey]
	return !ok || value
}

func (f *fieldBase) baseConfig() FieldConfig {
	return FieldConfig{
		Key:       f.key,
		Type:      f.typ,
		Title:     f.title,
		Required:  f.required,
		Creatable: f.creatable,
		Readable:  f.readable,
		Writable:  f.writable,
		Hidden:    f.hidden,
	}
}

// enabledKey is the reserved field key whose value gates its sibling fields.
const enabledKey = "_enabled"

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func stringOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
