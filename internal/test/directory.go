/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package test

import (
	"errors"
	"sort"
	"strings"

	"github.com/pforte-idm/pforte/internal/directory"
)

// RecordedModify is one Modify call as observed by the double.
type RecordedModify struct {
	DN      string
	Modlist directory.Modlist
}

// DirectoryDouble is a stateful in-memory test double for the
// directory.Connection interface. Write operations mutate the entry map, so
// read-after-write sequences behave like a real server. Its filter matcher
// only understands the filters that the view engine emits: equality terms,
// presence terms, and a single level of conjunction.
type DirectoryDouble struct {
	// Entries maps DNs to their attribute values.
	Entries map[string]map[string][]string
	// Passwords maps DNs to the plaintext that Bind accepts for them.
	Passwords map[string]string
	// ModifyCalls records all Modify invocations in order.
	ModifyCalls []RecordedModify
}

// NewDirectoryDouble builds an empty DirectoryDouble.
func NewDirectoryDouble() *DirectoryDouble {
	return &DirectoryDouble{
		Entries:   make(map[string]map[string][]string),
		Passwords: make(map[string]string),
	}
}

// SetEntry places an entry into the directory, replacing any previous one.
func (d *DirectoryDouble) SetEntry(dn string, values map[string][]string) {
	d.Entries[dn] = copyValues(values)
}

// Add implements the directory.Connection interface.
func (d *DirectoryDouble) Add(dn string, al directory.Addlist) error {
	if _, exists := d.Entries[dn]; exists {
		return directory.NewError(directory.KindConflict, dn, errors.New("entry already exists"))
	}
	values := make(map[string][]string, len(al))
	for attr, attrValues := range al {
		values[attr] = append([]string(nil), attrValues...)
	}
	d.Entries[dn] = values
	return nil
}

// Search implements the directory.Connection interface.
func (d *DirectoryDouble) Search(baseDN string, scope directory.Scope, filter string, attrs []string) ([]directory.Fetch, error) {
	switch scope {
	case directory.ScopeBase:
		values, exists := d.Entries[baseDN]
		if !exists {
			return nil, directory.NewError(directory.KindNotFound, baseDN, errors.New("no such entry"))
		}
		if !matchFilter(values, filter) {
			return nil, nil
		}
		return []directory.Fetch{makeFetch(baseDN, values, attrs)}, nil
	default:
		var dns []string
		for dn := range d.Entries {
			if isDirectChildOf(dn, baseDN) && matchFilter(d.Entries[dn], filter) {
				dns = append(dns, dn)
			}
		}
		sort.Strings(dns)
		result := make([]directory.Fetch, len(dns))
		for idx, dn := range dns {
			result[idx] = makeFetch(dn, d.Entries[dn], attrs)
		}
		return result, nil
	}
}

// Modify implements the directory.Connection interface.
func (d *DirectoryDouble) Modify(dn string, ml directory.Modlist) error {
	values, exists := d.Entries[dn]
	if !exists {
		return directory.NewError(directory.KindNotFound, dn, errors.New("no such entry"))
	}
	d.ModifyCalls = append(d.ModifyCalls, RecordedModify{DN: dn, Modlist: copyModlist(ml)})

	for attr, mods := range ml {
		for _, mod := range mods {
			switch mod.Op {
			case directory.ModAdd:
				values[attr] = append(values[attr], mod.Values...)
			case directory.ModReplace:
				values[attr] = append([]string(nil), mod.Values...)
			case directory.ModDelete:
				if len(mod.Values) == 0 {
					delete(values, attr)
					continue
				}
				var remaining []string
				for _, value := range values[attr] {
					if !containsString(mod.Values, value) {
						remaining = append(remaining, value)
					}
				}
				if len(remaining) == 0 {
					delete(values, attr)
				} else {
					values[attr] = remaining
				}
			}
		}
	}
	return nil
}

// Delete implements the directory.Connection interface.
func (d *DirectoryDouble) Delete(dn string) error {
	if _, exists := d.Entries[dn]; !exists {
		return directory.NewError(directory.KindNotFound, dn, errors.New("no such entry"))
	}
	delete(d.Entries, dn)
	return nil
}

// Bind implements the directory.Connection interface.
func (d *DirectoryDouble) Bind(dn, password string) error {
	if password != "" && d.Passwords[dn] == password {
		return nil
	}
	return directory.NewError(directory.KindInvalidCredentials, dn, errors.New("invalid credentials"))
}

// Close implements the directory.Connection interface.
func (d *DirectoryDouble) Close() error {
	return nil
}

func makeFetch(dn string, values map[string][]string, attrs []string) directory.Fetch {
	fetch := directory.Fetch{DN: dn, Values: make(map[string][]string)}
	for _, attr := range attrs {
		if attr == "1.1" {
			continue
		}
		if attrValues, exists := values[attr]; exists {
			fetch.Values[attr] = append([]string(nil), attrValues...)
		}
	}
	return fetch
}

// isDirectChildOf reports whether dn sits exactly one RDN below baseDN.
func isDirectChildOf(dn, baseDN string) bool {
	if !strings.HasSuffix(dn, ","+baseDN) {
		return false
	}
	rdn := strings.TrimSuffix(dn, ","+baseDN)
	return rdn != "" && !strings.Contains(rdn, ",")
}

func matchFilter(values map[string][]string, filter string) bool {
	if filter == "" {
		return true
	}
	if strings.HasPrefix(filter, "(&") && strings.HasSuffix(filter, ")") {
		for _, term := range splitTerms(filter[2 : len(filter)-1]) {
			if !matchFilter(values, term) {
				return false
			}
		}
		return true
	}

	inner := strings.TrimSuffix(strings.TrimPrefix(filter, "("), ")")
	attr, want, ok := strings.Cut(inner, "=")
	if !ok {
		return false
	}
	if want == "*" {
		return len(values[attr]) > 0
	}
	return containsString(values[attr], want)
}

// splitTerms splits "(a=1)(b=2)" into its parenthesized terms.
func splitTerms(filter string) []string {
	var terms []string
	depth := 0
	start := 0
	for idx, r := range filter {
		switch r {
		case '(':
			if depth == 0 {
				start = idx
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				terms = append(terms, filter[start:idx+1])
			}
		}
	}
	return terms
}

func containsString(haystack []string, needle string) bool {
	for _, value := range haystack {
		if value == needle {
			return true
		}
	}
	return false
}

func copyValues(values map[string][]string) map[string][]string {
	result := make(map[string][]string, len(values))
	for attr, attrValues := range values {
		result[attr] = append([]string(nil), attrValues...)
	}
	return result
}

func copyModlist(ml directory.Modlist) directory.Modlist {
	result := make(directory.Modlist, len(ml))
	for attr, mods := range ml {
		copied := make([]directory.Mod, len(mods))
		for idx, mod := range mods {
			copied[idx] = directory.Mod{Op: mod.Op, Values: append([]string(nil), mod.Values...)}
		}
		result[attr] = copied
	}
	return result
}
