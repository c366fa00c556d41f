/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package resource

import (
	"slices"
	"sort"

	"github.com/sapcc/go-bits/errext"
	"github.com/sapcc/go-bits/logg"
)

// PropertySet is a set of top-level resource properties.
type PropertySet map[string]bool

// Sorted returns the members of this set in sorted order.
func (s PropertySet) Sorted() []string {
	result := make([]string, 0, len(s))
	for prop := range s {
		result = append(result, prop)
	}
	sort.Strings(result)
	return result
}

// PropertyMap maps each LDAP attribute to the resource properties whose
// templates reference it. The relation is many-to-many.
type PropertyMap map[string][]string

// AffectedProperties returns the set of properties that need to be
// re-rendered when the given attributes change. Attributes without mapping
// are ignored.
func (m PropertyMap) AffectedProperties(changedAttributes []string) PropertySet {
	result := make(PropertySet)
	for _, attr := range changedAttributes {
		props, exists := m[attr]
		if !exists {
			logg.Debug("no property mapping found for changed attribute %s", attr)
			continue
		}
		for _, prop := range props {
			result[prop] = true
		}
	}
	return result
}

// Attributes returns all mapped attributes in sorted order.
func (m PropertyMap) Attributes() []string {
	result := make([]string, 0, len(m))
	for attr := range m {
		result = append(result, attr)
	}
	sort.Strings(result)
	return result
}

func (m PropertyMap) add(attr, prop string) {
	if !slices.Contains(m[attr], prop) {
		m[attr] = append(m[attr], prop)
	}
}

// MappingConfig is the configuration from which a Template and its
// PropertyMap are compiled.
type MappingConfig struct {
	Schema Schema
	//Properties that are always rendered. These are exempt from the blacklist,
	//so that e.g. the primary email of users can be filled from LDAP.
	Base map[string]string
	//Properties configured by the operator. Each spec becomes one list entry
	//for list-typed properties. For other properties, only the last spec is
	//used.
	Properties map[string][]string
	//Attributes that are never sent to the remote directory, and attributes
	//whose values are replaced by random tokens.
	Never     []string
	Anonymize []string
}

// Compile builds the Template and PropertyMap for this configuration.
// Properties that are blacklisted or unknown to the schema are skipped with
// a log message. Malformed specs are reported as errors.
func (c MappingConfig) Compile() (*Template, PropertyMap, errext.ErrorSet) {
	var errs errext.ErrorSet
	properties := make(MappingNode)
	mapping := make(PropertyMap)

	for _, prop := range sortedKeys(c.Base) {
		node, err := ParseSpec(c.Base[prop])
		if err != nil {
			errs.Addf("invalid base mapping for %s: %s", prop, err.Error())
			continue
		}
		properties[prop] = node
	}

	for _, prop := range sortedKeys(c.Properties) {
		specs := c.Properties[prop]
		if c.Schema.Blacklist[prop] {
			logg.Info("ignoring mapping for property %s: this property cannot be mapped", prop)
			continue
		}
		propType, known := c.Schema.Types[prop]
		if !known {
			logg.Info("ignoring mapping for property %s: unknown property", prop)
			continue
		}
		if len(specs) == 0 {
			continue
		}

		nodes := make(SequenceNode, 0, len(specs))
		for _, spec := range specs {
			node, err := ParseSpec(spec)
			if err == nil && propType == BooleanProperty {
				node, err = convertLiteralsToBool(node)
			}
			if err != nil {
				errs.Addf("invalid mapping for %s: %s", prop, err.Error())
				continue
			}
			nodes = append(nodes, node)
		}
		if len(nodes) == 0 {
			continue
		}

		if propType == SequenceProperty {
			properties[prop] = nodes
		} else {
			if len(nodes) > 1 {
				logg.Info("property %s is not a list, so only the last of %d mappings is used", prop, len(nodes))
			}
			properties[prop] = nodes[len(nodes)-1]
		}
	}

	never := toSet(c.Never)
	var anonymize []string
	for _, attr := range c.Anonymize {
		if !never[attr] && !c.Schema.Blacklist[attr] {
			anonymize = append(anonymize, attr)
		}
	}

	for prop, node := range properties {
		for _, attr := range Attributes(node) {
			if !never[attr] {
				mapping.add(attr, prop)
			}
		}
	}
	for _, props := range mapping {
		sort.Strings(props)
	}

	return NewTemplate(properties, c.Never, anonymize), mapping, errs
}

func sortedKeys[V any](m map[string]V) []string {
	result := make([]string, 0, len(m))
	for key := range m {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}
