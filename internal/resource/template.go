/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

// Package resource contains everything that is needed to turn an LDAP entry
// into a resource document for the remote directory: the template engine, the
// attribute-to-property mapping and the validator.
package resource

import (
	"strings"

	"github.com/google/uuid"

	"github.com/majewsky/dirsync/internal/core"
)

// Node is a node in a resource template. It is one of the types Literal,
// Placeholder, SequenceNode or MappingNode.
type Node interface {
	isNode()
}

type (
	// Literal is a leaf that is rendered as-is.
	Literal struct {
		Value core.Value
	}
	// Placeholder is a leaf that is substituted by the values of the named
	// attribute.
	Placeholder struct {
		Attribute string
	}
	// SequenceNode renders into a core.Sequence.
	SequenceNode []Node
	// MappingNode renders into a core.Mapping.
	MappingNode map[string]Node
)

func (Literal) isNode()      {}
func (Placeholder) isNode()  {}
func (SequenceNode) isNode() {}
func (MappingNode) isNode()  {}

// Template renders resource documents from snapshots. It is immutable after
// construction and can be shared freely.
type Template struct {
	Properties MappingNode
	never      map[string]bool
	anonymize  map[string]bool
	newToken   func() string
}

// NewTemplate builds a Template. Attributes on the `never` list are never
// rendered, attributes on the `anonymize` list are rendered as random
// tokens.
func NewTemplate(properties MappingNode, never, anonymize []string) *Template {
	return &Template{
		Properties: properties,
		never:      toSet(never),
		anonymize:  toSet(anonymize),
		newToken:   newAnonymousToken,
	}
}

func newAnonymousToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsNeverSynced returns whether the attribute may never be sent to the
// remote directory.
func (t *Template) IsNeverSynced(attr string) bool {
	return t.never[attr]
}

// Materialize renders the whole template.
func (t *Template) Materialize(s core.Snapshot) core.Document {
	v, _ := t.MaterializeNode(t.Properties, s)
	return v.(core.Mapping)
}

// MaterializeProperties renders only the given top-level properties.
// Properties that the template does not know are ignored.
func (t *Template) MaterializeProperties(s core.Snapshot, props PropertySet) core.Document {
	result := make(core.Document, len(props))
	for prop := range props {
		node, exists := t.Properties[prop]
		if !exists {
			continue
		}
		v, ok := t.MaterializeNode(node, s)
		if ok {
			result[prop] = v
		}
	}
	return result
}

// MaterializeNode renders a single node. The second return value is false if
// the node renders to nothing. Mapping nodes always render, possibly into
// an empty mapping.
func (t *Template) MaterializeNode(node Node, s core.Snapshot) (core.Value, bool) {
	switch node := node.(type) {
	case Literal:
		return node.Value, true
	case Placeholder:
		return t.resolve(node.Attribute, s)
	case SequenceNode:
		result := make(core.Sequence, 0, len(node))
		for _, child := range node {
			v, ok := t.MaterializeNode(child, s)
			if ok {
				result = append(result, v)
			}
		}
		return result, true
	case MappingNode:
		result := make(core.Mapping, len(node))
		for key, child := range node {
			v, ok := t.MaterializeNode(child, s)
			if ok {
				result[key] = v
			}
		}
		return result, true
	default:
		return nil, false
	}
}

func (t *Template) resolve(attr string, s core.Snapshot) (core.Value, bool) {
	if t.never[attr] {
		return nil, false
	}
	values := s[attr]
	if len(values) == 0 {
		return nil, false
	}

	render := func(value string) core.Value {
		if t.anonymize[attr] {
			return core.String(t.newToken())
		}
		return core.String(value)
	}
	if len(values) == 1 {
		return render(values[0]), true
	}
	result := make(core.Sequence, len(values))
	for idx, value := range values {
		result[idx] = render(value)
	}
	return result, true
}

// Attributes returns all attributes referenced by placeholders in the given
// node, in no particular order.
func Attributes(node Node) []string {
	var result []string
	var walk func(Node)
	walk = func(node Node) {
		switch node := node.(type) {
		case Placeholder:
			result = append(result, node.Attribute)
		case SequenceNode:
			for _, child := range node {
				walk(child)
			}
		case MappingNode:
			for _, child := range node {
				walk(child)
			}
		}
	}
	walk(node)
	return result
}

func toSet(values []string) map[string]bool {
	result := make(map[string]bool, len(values))
	for _, value := range values {
		result[value] = true
	}
	return result
}
