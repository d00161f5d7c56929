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

var templatePlaceholder = regexp.MustCompile(`\{([^{}]+)\}`)

// generateField derives its value from sibling fields through a template like
// "{givenName} {sn}". Clients can never assign it directly; it recomputes
// whenever one of its input fields appears in the assignment.
type generateField struct {
	fieldBase
	field      string
	format     string
	formatDoc  string
	inputNames []string
	inputs     []Field
}

func newGenerateField(spec FieldSpec, env *Env) (Field, error) {
	if spec.Key == enabledKey {
		return nil, fmt.Errorf("field type %q cannot be used as %s", spec.Type, enabledKey)
	}
	if spec.Format == "" {
		return nil, fmt.Errorf("field %q: missing required property %q", spec.Key, "format")
	}

	var inputNames []string
	seen := make(map[string]bool)
	for _, match := range templatePlaceholder.FindAllStringSubmatch(spec.Format, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			inputNames = append(inputNames, match[1])
		}
	}

	return &generateField{
		fieldBase:  newFieldBase(spec),
		field:      stringOr(spec.Field, spec.Key),
		format:     spec.Format,
		formatDoc:  stringOr(spec.FormatJS, spec.Format),
		inputNames: inputNames,
	}, nil
}

// Attribute implements the attributeField interface.
func (f *generateField) Attribute() string {
	return f.field
}

// Config implements the Field interface.
func (f *generateField) Config() FieldConfig {
	cfg := f.baseConfig()
	cfg.Field = f.field
	cfg.Format = f.formatDoc
	return cfg
}

// Init implements the Field interface.
func (f *generateField) Init(views map[string]*View, siblings map[string]Field) error {
	f.inputs = make([]Field, len(f.inputNames))
	for idx, name := range f.inputNames {
		input, ok := siblings[name]
		if !ok {
			return fmt.Errorf("field %q: template references unknown sibling field %q", f.key, name)
		}
		f.inputs[idx] = input
	}
	return nil
}

// GetFetch implements the Field interface.
func (f *generateField) GetFetch(attrs directory.AttributeSet) {
	if !f.readable {
		return
	}
	attrs.Add(f.field)
}

// Get implements the Field interface.
func (f *generateField) Get(fetch *directory.Fetch, out map[string]any, ctx Context) {
	if !f.readable || !f.enabled(ctx) {
		return
	}
	if value, ok := fetch.First(f.field); ok {
		out[f.key] = value
	}
}

func (f *generateField) anyInputMentioned(assign Assignment) bool {
	for _, name := range f.inputNames {
		if assign.Mentions(name) {
			return true
		}
	}
	return false
}

// render assembles the template inputs, preferring assigned values and
// falling back to what the input fields project from the fetch record.
func (f *generateField) render(fetch *directory.Fetch, assign Assignment, ctx Context) string {
	args := make(map[string]any, len(f.inputs))
	for _, input := range f.inputs {
		if assign.Mentions(input.Key()) {
			args[input.Key()] = assign[input.Key()]
		} else {
			input.Get(fetch, args, ctx)
		}
	}
	return templatePlaceholder.ReplaceAllStringFunc(f.format, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := args[name]
		if !ok || value == nil {
			return ""
		}
		return fmt.Sprintf("%v", value)
	})
}

// SetFetch implements the Field interface.
func (f *generateField) SetFetch(attrs directory.AttributeSet, assign Assignment, ctx Context) error {
	if assign.Mentions(f.key) {
		return Invalid("cannot assign value to generated field %s", f.key)
	}
	if !f.writable || !f.enabled(ctx) {
		return nil
	}
	if f.anyInputMentioned(assign) {
		for _, input := range f.inputs {
			input.GetFetch(attrs)
		}
		attrs.Add(f.field)
	}
	return nil
}

// Set implements the Field interface.
func (f *generateField) Set(fetch *directory.Fetch, ml directory.Modlist, assign Assignment, ctx Context) error {
	if assign.Mentions(f.key) {
		return Invalid("cannot assign value to generated field %s", f.key)
	}
	if !f.writable || !f.enabled(ctx) {
		return nil
	}
	if !f.anyInputMentioned(assign) {
		return nil
	}

	value := f.render(fetch, assign, ctx)
	applyTextWrite(fetch, ml, f.field, value, f.required, f.key)
	return nil
}

// Create implements the Field interface.
func (f *generateField) Create(fetch *directory.Fetch, al directory.Addlist, assign Assignment, ctx Context) error {
	if assign.Mentions(f.key) {
		return Invalid("cannot assign value to generated field %s", f.key)
	}
	if !f.creatable || !f.enabled(ctx) {
		return nil
	}

	value := f.render(fetch, assign, ctx)
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
func (f *generateField) SetPost(fetch *directory.Fetch, assign Assignment, ctx Context, isNew bool) error {
	return nil
}
