/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package view

import (
	"fmt"
	"regexp"
	"time"

	"github.com/pforte-idm/pforte/internal/directory"
)

// Directory servers store timestamps as LDAP GeneralizedTime in UTC.
const generalizedTimeFormat = "20060102150405Z"

var iso8601Format = regexp.MustCompile(
	`^(-?(?:[1-9][0-9]*)?[0-9]{4})-(1[0-2]|0[1-9])-(3[01]|0[1-9]|[12][0-9])` +
		`T(2[0-3]|[01][0-9]):([0-5][0-9]):([0-5][0-9])(\.[0-9]+)?` +
		`(Z|[+-](?:2[0-3]|[01][0-9]):[0-5][0-9])?$`)

const iso8601Message = "ISO 8601"

// dateTimeField is like textField, but accepts ISO 8601 strings from the
// client and stores them as directory timestamps.
type dateTimeField struct {
	fieldBase
	field string
}

func newDateTimeField(spec FieldSpec, env *Env) (Field, error) {
	if spec.Key == enabledKey {
		return nil, fmt.Errorf("field type %q cannot be used as %s", spec.Type, enabledKey)
	}
	return &dateTimeField{
		fieldBase: newFieldBase(spec),
		field:     stringOr(spec.Field, spec.Key),
	}, nil
}

// Attribute implements the attributeField interface.
func (f *dateTimeField) Attribute() string {
	return f.field
}

// Config implements the Field interface.
func (f *dateTimeField) Config() FieldConfig {
	cfg := f.baseConfig()
	cfg.Field = f.field
	cfg.Format = iso8601Format.String()
	cfg.FormatMessage = iso8601Message
	return cfg
}

// Init implements the Field interface.
func (f *dateTimeField) Init(views map[string]*View, siblings map[string]Field) error {
	return nil
}

// GetFetch implements the Field interface.
func (f *dateTimeField) GetFetch(attrs directory.AttributeSet) {
	if !f.readable {
		return
	}
	attrs.Add(f.field)
}

// Get implements the Field interface.
func (f *dateTimeField) Get(fetch *directory.Fetch, out map[string]any, ctx Context) {
	if !f.readable || !f.enabled(ctx) {
		return
	}
	value, ok := fetch.First(f.field)
	if !ok {
		return
	}
	t, err := time.Parse(generalizedTimeFormat, value)
	if err != nil {
		//value written outside our control; pass it through unrendered
		out[f.key] = value
		return
	}
	out[f.key] = t.Format(time.RFC3339)
}

// SetFetch implements the Field interface.
func (f *dateTimeField) SetFetch(attrs directory.AttributeSet, assign Assignment, ctx Context) error {
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

func (f *dateTimeField) parse(value string) (string, error) {
	if !iso8601Format.MatchString(value) {
		return "", Invalid("invalid value %q for %s, expecting %s", value, f.key, iso8601Message)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		//no zone designator means UTC
		t, err = time.Parse("2006-01-02T15:04:05.999999999", value)
	}
	if err != nil {
		return "", Invalid("invalid value %q for %s, expecting %s", value, f.key, iso8601Message)
	}
	return t.UTC().Format(generalizedTimeFormat), nil
}

// Set implements the Field interface.
func (f *dateTimeField) Set(fetch *directory.Fetch, ml directory.Modlist, assign Assignment, ctx Context) error {
	if !assign.Mentions(f.key) || !f.enabled(ctx) {
		return nil
	}
	if !f.writable {
		return fmt.Errorf("cannot write %s: %w", f.key, ErrForbidden)
	}

	value := assign.String(f.key)
	stored := ""
	if value != "" {
		var err error
		stored, err = f.parse(value)
		if err != nil {
			return err
		}
	}
	if stored == "" && f.required {
		return Invalid("%s is required", f.key)
	}
	applyTextWrite(fetch, ml, f.field, stored, f.required, f.key)
	return nil
}

// Create implements the Field interface.
func (f *dateTimeField) Create(fetch *directory.Fetch, al directory.Addlist, assign Assignment, ctx Context) error {
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
	if value == "" {
		if f.required {
			return Invalid("%s is required", f.key)
		}
		return nil
	}
	stored, err := f.parse(value)
	if err != nil {
		return err
	}
	if fetch.Has(f.field) {
		return Invalid("conflicting value for %s", f.key)
	}
	al[f.field] = []string{stored}
	fetch.Values[f.field] = []string{stored}
	return nil
}

// SetPost implements the Field interface.
func (f *dateTimeField) SetPost(fetch *directory.Fetch, assign Assignment, ctx Context, isNew bool) error {
	return nil
}
