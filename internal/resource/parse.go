/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package resource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/majewsky/dirsync/internal/core"
)

// ParseSpec parses a property specification from the mapping configuration.
// The grammar is:
//
//	spec  = leaf | pair ("," pair)*
//	pair  = key "=" leaf
//	leaf  = "%" attribute | literal
//
// A spec containing "=" renders into a mapping, otherwise into a single leaf.
// Whitespace around keys and leaves is ignored.
func ParseSpec(spec string) (Node, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("empty property specification")
	}
	if !strings.Contains(spec, "=") {
		return parseLeaf(spec)
	}

	result := make(MappingNode)
	for _, pair := range strings.Split(spec, ",") {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("malformed pair %q in property specification %q", pair, spec)
		}
		if _, exists := result[key]; exists {
			return nil, fmt.Errorf("duplicate key %q in property specification %q", key, spec)
		}
		leaf, err := parseLeaf(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("in property specification %q: %w", spec, err)
		}
		result[key] = leaf
	}
	return result, nil
}

func parseLeaf(value string) (Node, error) {
	attr, isPlaceholder := strings.CutPrefix(value, "%")
	if !isPlaceholder {
		return Literal{core.String(value)}, nil
	}
	if attr == "" || strings.ContainsAny(attr, " %") {
		return nil, fmt.Errorf("malformed placeholder %q", value)
	}
	return Placeholder{Attribute: attr}, nil
}

// convertLiteralsToBool turns a literal leaf into a core.Bool if possible.
// Boolean properties need this because the grammar only knows strings.
func convertLiteralsToBool(node Node) (Node, error) {
	lit, ok := node.(Literal)
	if !ok {
		return node, nil
	}
	s, ok := lit.Value.(core.String)
	if !ok {
		return node, nil
	}
	b, err := strconv.ParseBool(string(s))
	if err != nil {
		return nil, fmt.Errorf("expected a boolean literal, got %q", string(s))
	}
	return Literal{core.Bool(b)}, nil
}
