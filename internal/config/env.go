/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// applyEnvOverrides replaces configuration leaves with values from the
// environment. A variable api_config_<path> addresses a leaf by its dotted
// path with underscores; path segments are matched case-insensitively
// against the camelCase mapping keys by converting the keys to their
// underscored form (bindDn -> bind_dn). The variable's value is parsed as
// YAML, so scalars, lists and mappings all work.
//
// The overrides run on the raw node tree before the typed decode, which
// keeps them independent of the Go struct layout.
func applyEnvOverrides(root *yaml.Node, environ []string) error {
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		path := strings.ToLower(name)
		if !strings.HasPrefix(path, EnvPrefix) {
			continue
		}
		path = strings.TrimPrefix(path, EnvPrefix)

		err := assignPath(root, path, value)
		if err != nil {
			return fmt.Errorf("cannot apply environment override %s: %w", name, err)
		}
	}
	return nil
}

func assignPath(node *yaml.Node, path, value string) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("cannot descend into non-mapping node for path segment %q", path)
	}

	//pick the last mapping key whose underscored form matches the front of
	//the remaining path
	matchIdx := -1
	exact := false
	for idx := 0; idx+1 < len(node.Content); idx += 2 {
		key := underscore(node.Content[idx].Value)
		switch {
		case path == key:
			matchIdx = idx
			exact = true
		case strings.HasPrefix(path, key+"_"):
			matchIdx = idx
			exact = false
		}
	}
	if matchIdx < 0 {
		return fmt.Errorf("no configuration key matches %q", path)
	}

	valueNode := node.Content[matchIdx+1]
	if exact {
		var parsed yaml.Node
		err := yaml.Unmarshal([]byte(value), &parsed)
		if err != nil {
			return fmt.Errorf("cannot parse override value: %w", err)
		}
		if parsed.Kind != yaml.DocumentNode || len(parsed.Content) == 0 {
			return fmt.Errorf("empty override value")
		}
		*valueNode = *parsed.Content[0]
		return nil
	}
	rest := strings.TrimPrefix(path, underscore(node.Content[matchIdx].Value)+"_")
	return assignPath(valueNode, rest, value)
}

// underscore converts a camelCase mapping key into its lowercase underscored
// form, e.g. "bindDn" -> "bind_dn" and "siteBaseUrl" -> "site_base_url".
func underscore(key string) string {
	var sb strings.Builder
	for idx, r := range key {
		if r >= 'A' && r <= 'Z' {
			if idx > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r + ('a' - 'A'))
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
