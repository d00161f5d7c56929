/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package directory

import "sort"

// Scope restricts how deep a search descends below its base DN.
type Scope int

const (
	// ScopeBase matches only the entry at the base DN itself.
	ScopeBase Scope = iota
	// ScopeOne matches the immediate children of the base DN.
	ScopeOne
	// ScopeSub matches the whole subtree below (and including) the base DN.
	ScopeSub
)

// ModOp enumerates the operation types that can appear in a Modlist.
type ModOp int

const (
	// ModAdd adds values to an attribute.
	ModAdd ModOp = iota
	// ModDelete removes values from an attribute. An empty value list removes
	// the attribute entirely.
	ModDelete
	// ModReplace replaces all values of an attribute. An empty value list
	// removes the attribute entirely.
	ModReplace
	// ModIncrement increments an integer-valued attribute.
	ModIncrement
)

// Mod is a single modification of one attribute.
type Mod struct {
	Op     ModOp
	Values []string
}

// Modlist is a structured write plan for a Modify operation. The entries for
// each attribute are applied left to right; their order is significant
// (e.g. a DELETE must precede an ADD when flipping a relationship value).
type Modlist map[string][]Mod

// IsEmpty reports whether this Modlist contains no modifications at all.
// Empty modlists are skipped instead of being sent to the server.
func (ml Modlist) IsEmpty() bool {
	for _, mods := range ml {
		if len(mods) > 0 {
			return false
		}
	}
	return true
}

// Addlist is a structured write plan for an Add operation.
type Addlist map[string][]string

// Fetch is the request-local view of a single directory entry. The view
// engine reads attribute values from it during a request, and rolls it
// forward after each flushed write so that later lifecycle phases observe
// post-write state.
type Fetch struct {
	DN     string
	Values map[string][]string
}

// First returns the first value of the given attribute, or false if the
// attribute is absent or empty.
func (f *Fetch) First(attr string) (string, bool) {
	values := f.Values[attr]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Has reports whether the given attribute is present on this entry.
func (f *Fetch) Has(attr string) bool {
	_, exists := f.Values[attr]
	return exists
}

// Contains reports whether the given attribute carries the given value.
func (f *Fetch) Contains(attr, value string) bool {
	for _, v := range f.Values[attr] {
		if v == value {
			return true
		}
	}
	return false
}

// AddValue appends a value to the given attribute.
func (f *Fetch) AddValue(attr, value string) {
	if f.Values == nil {
		f.Values = make(map[string][]string)
	}
	f.Values[attr] = append(f.Values[attr], value)
}

// RemoveValue removes all occurrences of a value from the given attribute.
func (f *Fetch) RemoveValue(attr, value string) {
	old := f.Values[attr]
	result := make([]string, 0, len(old))
	for _, v := range old {
		if v != value {
			result = append(result, v)
		}
	}
	f.Values[attr] = result
}

// AttributeSet collects the attribute names that the participating fields of
// a request declare in their fetch phases. The search request sent to the
// server carries exactly this set, nothing more.
type AttributeSet map[string]bool

// Add inserts an attribute name into the set.
func (s AttributeSet) Add(name string) {
	s[name] = true
}

// Sorted returns the attribute names in deterministic order.
func (s AttributeSet) Sorted() []string {
	result := make([]string, 0, len(s))
	for name := range s {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
