/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package view

import (
	"fmt"
	"regexp"

	"github.com/pforte-idm/pforte/internal/directory"
)

// textField exposes a single-valued string attribute. Values are validated
// against a full-match regex and an optional enum whitelist.
type textField struct {
	fieldBase
	field         string
	format        *regexp.Regexp
	formatDoc     string
	formatMessage string
	enum          []EnumValue
}

func newTextField(spec FieldSpec, env *Env) (Field, error) {
	if spec.Key == enabledKey {
		return nil, fmt.Errorf("field type %q cannot be used as %s", spec.Type, enabledKey)
	}
	format, err := compileFullMatch(spec.Format)
	if err != nil {
		return nil, fmt.Errorf("field %q: invalid format: %w", spec.Key, err)
	}
	return &textField{
		fieldBase:     newFieldBase(spec),
		field:         stringOr(spec.Field, spec.Key),
		format:        format,
		formatDoc:     stringOr(spec.FormatJS, spec.Format),
		formatMessage: stringOr(spec.FormatMessage, spec.Format),
		enum:          spec.Enum,
	}, nil
}

// compileFullMatch anchors the pattern so that only entire values match. An
// empty pattern means no format constraint.
func compileFullMatch(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile("^(?:" + pattern + ")$")
}

// Attribute implements the attributeField interface.
func (f *textField) Attribute() string {
	return f.field
}

// Config implements the Field interface.
func (f *textField) Config() FieldConfig {
	cfg := f.baseConfig()
	cfg.Field = f.field
	cfg.Format = f.formatDoc
	cfg.FormatMessage = f.formatMessage
	cfg.Enum = f.enum
	return cfg
}

// Init implements the Field interface.
func (f *textField) Init(views map[string]*View, siblings map[string]Field) error {
	return nil
}

// GetFetch implements the Field interface.
func (f *textField) GetFetch(attrs directory.AttributeSet) {
	if !f.readable {
		return
	}
	attrs.Add(f.field)
}

// Get implements the Field interface.
func (f *textField) Get(fetch *directory.Fetch, out map[string]any, ctx Context) {
	if !f.readable || !f.enabled(ctx) {
		return
	}
	if value, ok := fetch.First(f.field); ok {
		out[f.key] = value
	}
}

// SetFetch implements the Field interface.
func (f *textField) SetFetch(attrs directory.AttributeSet, assign Assignment, ctx Context) error {
	if !assign.Mentions(f.key) || !f.enabled(ctx) {
		return nil
	}
	if f.required && assign.String(f.key) == "" {
		return Invalid("%s is required", f.key)
	}
	if !f.writable {
		return fmt.Errorf("cannot write %s: %w", f.key, ErrForbidden)
	}
	attrs.Add(f.field)
	return nil
}

func (f *textField) validate(value string) error {
	if f.format != nil && !f.format.MatchString(value) {
		return Invalid("invalid value %q for %s, expecting %s", value, f.key, f.formatMessage)
	}
	if len(f.enum) > 0 && !enumContains(f.enum, value) {
		return Invalid("value for %s must be one of: %s", f.key, enumValueList(f.enum))
	}
	return nil
}

// Set implements the Field interface.
func (f *textField) Set(fetch *directory.Fetch, ml directory.Modlist, assign Assignment, ctx Context) error {
	if !assign.Mentions(f.key) || !f.enabled(ctx) {
		return nil
	}
	if !f.writable {
		return fmt.Errorf("cannot write %s: %w", f.key, ErrForbidden)
	}

	value := assign.String(f.key)
	if value != "" {
		err := f.validate(value)
		if err != nil {
			return err
		}
	}

	applyTextWrite(fetch, ml, f.field, value, f.required, f.key)
	return nil
}

// applyTextWrite emits the shared write strategy of string-valued fields:
// ADD if the attribute is absent, REPLACE if present with a different value,
// DELETE if the new value is empty. The fetch record is rolled forward so
// later phases observe the post-write state.
func applyTextWrite(fetch *directory.Fetch, ml directory.Modlist, attr, value string, required bool, key string) {
	if value == "" {
		if fetch.Has(attr) {
			ml[attr] = append(ml[attr], directory.Mod{Op: directory.ModDelete})
			delete(fetch.Values, attr)
		}
		return
	}
	if fetch.Has(attr) {
		current := fetch.Values[attr]
		if len(current) != 1 || current[0] != value {
			ml[attr] = append(ml[attr], directory.Mod{Op: directory.ModReplace, Values: []string{value}})
		}
	} else {
		ml[attr] = append(ml[attr], directory.Mod{Op: directory.ModAdd, Values: []string{value}})
	}
	fetch.Values[attr] = []string{value}
}

// Create implements the Field interface.
func (f *textField) Create(fetch *directory.Fetch, al directory.Addlist, assign Assignment, ctx Context) error {
	if !assign.Mentions(f.key) {
		if f.required && f.enabled(ctx) {
			return Invalid("%s is required", f.key)
		}
		return nil
	}
	if !f.creatable {
		return fmt.Errorf("cannot create %s: %w", f.key, ErrForbidden)
	}

	value := assign.String(f.key)
	if value != "" {
		err := f.validate(value)
		if err != nil {
			return err
		}
	}
	if fetch.Has(f.field) {
		return Invalid("conflicting value for %s", f.key)
	}
	if value == "" {
		if f.required {
			return Invalid("%s is required", f.key)
		}
		return nil
	}
	al[f.field] = []string{value}
	fetch.Values[f.field] = []string{value}
	return nil
}

// SetPost implements the Field interface.
func (f *textField) SetPost(fetch *directory.Fetch, assign Assignment, ctx Context, isNew bool) error {
	return nil
}

func enumContains(enum []EnumValue, value string) bool {
	for _, entry := range enum {
		if entry.Value == value {
			return true
		}
	}
	return false
}

func enumValueList(enum []EnumValue) string {
	result := ""
	for idx, entry := range enum {
		if idx > 0 {
			result += ", "
		}
		result += entry.Value
	}
	return result
}
