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

// passwordField writes salted hashes into a userPassword-style attribute.
// Because the salt differs on every call, two hashes of the same plaintext
// never compare equal; any non-empty assignment therefore emits a REPLACE
// regardless of the stored value.
type passwordField struct {
	fieldBase
	field        string
	autoGenerate bool
	hashing      string
	hasher       crypt.PasswordHasher
	pwnedCheck   bool
	env          *Env
}

func newPasswordField(spec FieldSpec, env *Env) (Field, error) {
	if spec.Key == enabledKey {
		return nil, fmt.Errorf("field type %q cannot be used as %s", spec.Type, enabledKey)
	}
	if spec.Hashing == "" {
		return nil, fmt.Errorf("field %q: missing required property %q", spec.Key, "hashing")
	}
	hasher, err := env.newHasher(spec.Hashing)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", spec.Key, err)
	}
	return &passwordField{
		fieldBase:    newFieldBase(spec),
		field:        stringOr(spec.Field, spec.Key),
		autoGenerate: spec.AutoGenerate,
		hashing:      spec.Hashing,
		hasher:       hasher,
		pwnedCheck:   spec.PwnedPasswordCheck,
		env:          env,
	}, nil
}

// Attribute implements the attributeField interface.
func (f *passwordField) Attribute() string {
	return f.field
}

// Config implements the Field interface.
func (f *passwordField) Config() FieldConfig {
	cfg := f.baseConfig()
	cfg.Field = f.field
	cfg.AutoGenerate = f.autoGenerate
	cfg.Hashing = f.hashing
	return cfg
}

// Init implements the Field interface.
func (f *passwordField) Init(views map[string]*View, siblings map[string]Field) error {
	return nil
}

// GetFetch implements the Field interface.
func (f *passwordField) GetFetch(attrs directory.AttributeSet) {
	if !f.readable {
		return
	}
	attrs.Add(f.field)
}

// Get implements the Field interface.
func (f *passwordField) Get(fetch *directory.Fetch, out map[string]any, ctx Context) {
	if !f.readable || !f.enabled(ctx) {
		return
	}
	if value, ok := fetch.First(f.field); ok {
		out[f.key] = value
	}
}

// SetFetch implements the Field interface.
func (f *passwordField) SetFetch(attrs directory.AttributeSet, assign Assignment, ctx Context) error {
	if !assign.Mentions(f.key) || !f.enabled(ctx) {
		return nil
	}
	if f.required && !f.autoGenerate && assign.String(f.key) == "" {
		return Invalid("%s is required", f.key)
	}
	if !f.writable {
		return fmt.Errorf("cannot write %s: %w", f.key, ErrForbidden)
	}
	attrs.Add(f.field)
	return nil
}

// resolve applies autoGenerate, the leak check and the hashing scheme to the
// assigned plaintext. An empty result means the attribute shall be removed.
func (f *passwordField) resolve(assign Assignment) (string, error) {
	plaintext := assign.String(f.key)
	if plaintext == "" && f.autoGenerate {
		plaintext = f.env.generateSecret()
	}
	if plaintext == "" {
		return "", nil
	}

	if f.pwnedCheck {
		count, err := f.env.countLeaks(plaintext)
		if err != nil {
			return "", fmt.Errorf("cannot check %s against leaked passwords: %w", f.key, err)
		}
		if count > 0 {
			return "", Invalid("password is in list of leaked passwords, not accepted")
		}
	}

	hashed, err := f.hasher.HashPassword(plaintext)
	if err != nil {
		return "", fmt.Errorf("cannot hash %s: %w", f.key, err)
	}
	return hashed, nil
}

// Set implements the Field interface.
func (f *passwordField) Set(fetch *directory.Fetch, ml directory.Modlist, assign Assignment, ctx Context) error {
	if !assign.Mentions(f.key) || !f.enabled(ctx) {
		return nil
	}
	if !f.writable {
		return fmt.Errorf("cannot write %s: %w", f.key, ErrForbidden)
	}

	hashed, err := f.resolve(assign)
	if err != nil {
		return err
	}
	if hashed == "" {
		if f.required {
			return Invalid("%s is required", f.key)
		}
		if fetch.Has(f.field) {
			ml[f.field] = append(ml[f.field], directory.Mod{Op: directory.ModDelete})
			delete(fetch.Values, f.field)
		}
		return nil
	}

	//always write: fresh salts make stored-value comparison meaningless
	if fetch.Has(f.field) {
		ml[f.field] = append(ml[f.field], directory.Mod{Op: directory.ModReplace, Values: []string{hashed}})
	} else {
		ml[f.field] = append(ml[f.field], directory.Mod{Op: directory.ModAdd, Values: []string{hashed}})
	}
	fetch.Values[f.field] = []string{hashed}
	return nil
}

// Create implements the Field interface.
func (f *passwordField) Create(fetch *directory.Fetch, al directory.Addlist, assign Assignment, ctx Context) error {
	if !assign.Mentions(f.key) {
		if f.required && !f.autoGenerate && f.enabled(ctx) {
			return Invalid("%s is required", f.key)
		}
		return nil
	}
	if !f.creatable {
		return fmt.Errorf("cannot create %s: %w", f.key, ErrForbidden)
	}

	hashed, err := f.resolve(assign)
	if err != nil {
		return err
	}
	if hashed == "" {
		if f.required {
			return Invalid("%s is required", f.key)
		}
		return nil
	}
	if fetch.Has(f.field) {
		return Invalid("conflicting value for %s", f.key)
	}
	al[f.field] = []string{hashed}
	fetch.Values[f.field] = []string{hashed}
	return nil
}

// SetPost implements the Field interface.
func (f *passwordField) SetPost(fetch *directory.Fetch, assign Assignment, ctx Context, isNew bool) error {
	return nil
}
