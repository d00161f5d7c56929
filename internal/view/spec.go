/*******************************************************************************
* Copyright 2024 the Pforte authors
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package view

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// The view configuration is declared as YAML mappings whose entry order is
// significant: fields and groups render in declaration order, and "_enabled"
// producers must run before the fields they gate. The *Specs types therefore
// decode mappings into ordered slices instead of Go maps.

// EnumValue is one entry of a text field's value whitelist.
type EnumValue struct {
	Title string `yaml:"title" json:"title"`
	Value string `yaml:"value" json:"value"`
}

// FieldSpec is the configuration of a single field.
type FieldSpec struct {
	Key      string `yaml:"key"`
	Type     string `yaml:"type"`
	Title    string `yaml:"title"`
	Required bool   `yaml:"required"`
	//nil means true
	Creatable *bool `yaml:"creatable"`
	Readable  *bool `yaml:"readable"`
	Writable  *bool `yaml:"writable"`
	Hidden    bool  `yaml:"hidden"`

	Field         string      `yaml:"field"`
	Format        string      `yaml:"format"`
	FormatJS      string      `yaml:"formatJs"`
	FormatMessage string      `yaml:"formatMessage"`
	Enum          []EnumValue `yaml:"enum"`

	AutoGenerate       bool   `yaml:"autoGenerate"`
	Hashing            string `yaml:"hashing"`
	PwnedPasswordCheck bool   `yaml:"pwnedPasswordCheck"`

	MemberOf     string `yaml:"memberOf"`
	ForeignView  string `yaml:"foreignView"`
	ForeignField string `yaml:"foreignField"`

	ObjectClass string `yaml:"objectClass"`

	Value  string     `yaml:"value"`
	Target *FieldSpec `yaml:"target"`
}

// FieldSpecs is an ordered field-key-to-spec mapping.
type FieldSpecs []FieldSpec

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (s *FieldSpecs) UnmarshalYAML(node *yaml.Node) error {
	return decodeOrderedMapping(node, func(key string, value *yaml.Node) error {
		var spec FieldSpec
		err := value.Decode(&spec)
		if err != nil {
			return err
		}
		spec.Key = key
		*s = append(*s, spec)
		return nil
	})
}

// GroupSpec is the configuration of a single group.
type GroupSpec struct {
	Key   string `yaml:"key"`
	Type  string `yaml:"type"`
	Title string `yaml:"title"`

	Fields FieldSpecs `yaml:"fields"`

	Field        string `yaml:"field"`
	ForeignView  string `yaml:"foreignView"`
	ForeignField string `yaml:"foreignField"`
	//nil means true
	Writable *bool `yaml:"writable"`
}

// GroupSpecs is an ordered group-key-to-spec mapping.
type GroupSpecs []GroupSpec

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (s *GroupSpecs) UnmarshalYAML(node *yaml.Node) error {
	return decodeOrderedMapping(node, func(key string, value *yaml.Node) error {
		var spec GroupSpec
		err := value.Decode(&spec)
		if err != nil {
			return err
		}
		spec.Key = key
		*s = append(*s, spec)
		return nil
	})
}

// ViewSpec is the configuration of a single view.
type ViewSpec struct {
	Key         string `yaml:"key"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	IconClasses string `yaml:"iconClasses"`

	DN              string                  `yaml:"dn"`
	PrimaryKey      string                  `yaml:"primaryKey"`
	Classes         []string                `yaml:"classes"`
	Permissions     []string                `yaml:"permissions"`
	ReadPermissions []string                `yaml:"readPermissions"`
	AutoCreate      map[string]StringOrList `yaml:"autoCreate"`

	List     FieldSpecs `yaml:"list"`
	Auth     FieldSpecs `yaml:"auth"`
	Details  GroupSpecs `yaml:"details"`
	Self     GroupSpecs `yaml:"self"`
	Register GroupSpecs `yaml:"register"`
}

// ViewSpecs is an ordered view-key-to-spec mapping.
type ViewSpecs []ViewSpec

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (s *ViewSpecs) UnmarshalYAML(node *yaml.Node) error {
	return decodeOrderedMapping(node, func(key string, value *yaml.Node) error {
		var spec ViewSpec
		err := value.Decode(&spec)
		if err != nil {
			return err
		}
		spec.Key = key
		*s = append(*s, spec)
		return nil
	})
}

// StringOrList accepts both a bare scalar and a list of scalars.
type StringOrList []string

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (s *StringOrList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var value string
		err := node.Decode(&value)
		if err != nil {
			return err
		}
		*s = StringOrList{value}
		return nil
	case yaml.SequenceNode:
		var values []string
		err := node.Decode(&values)
		if err != nil {
			return err
		}
		*s = StringOrList(values)
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

func decodeOrderedMapping(node *yaml.Node, each func(key string, value *yaml.Node) error) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for idx := 0; idx < len(node.Content); idx += 2 {
		keyNode := node.Content[idx]
		valueNode := node.Content[idx+1]
		var key string
		err := keyNode.Decode(&key)
		if err != nil {
			return err
		}
		err = each(key, valueNode)
		if err != nil {
			return err
		}
	}
	return nil
}
