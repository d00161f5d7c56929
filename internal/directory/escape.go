/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package directory

import (
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
)

// EscapeRDNValue escapes an attribute value for use inside an RDN, following
// RFC 4514 section 2.4.
func EscapeRDNValue(value string) string {
	var sb strings.Builder
	for idx, r := range value {
		switch {
		case r == ' ' && (idx == 0 || idx == len(value)-1):
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '#' && idx == 0:
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case strings.ContainsRune(`,+"\<>;=`, r):
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\x00':
			sb.WriteString(`\00`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// TryEscapeRDNValue is like EscapeRDNValue, but rejects values that cannot
// form a sound RDN at all (empty values and values containing control
// characters).
func TryEscapeRDNValue(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	for _, r := range value {
		if r < 0x20 || r == 0x7F {
			return "", false
		}
	}
	return EscapeRDNValue(value), true
}

// EscapeFilterValue escapes an attribute value for use inside a search
// filter, following RFC 4515.
func EscapeFilterValue(value string) string {
	return goldap.EscapeFilter(value)
}
