/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package resource

import (
	"sort"

	"github.com/majewsky/dirsync/internal/core"
)

// Validator normalizes rendered documents into a shape that the remote
// directory accepts. Each stage is also available as a standalone function.
type Validator struct {
	//Required subfields per property, see Schema.Required.
	Required map[string][]string
	//Top-level keys that are removed from every document.
	Forbidden map[string]bool
}

// NewValidator builds a Validator for the given schema. The forbidden keys are
// usually the attributes that are never synced.
func NewValidator(schema Schema, forbidden []string) Validator {
	return Validator{Required: schema.Required, Forbidden: toSet(forbidden)}
}

// Normalize runs all validation stages in order. The input is not modified.
// Normalize is idempotent.
func (v Validator) Normalize(doc core.Document) (core.Document, error) {
	doc, err := PruneIncompleteSubstructures(doc.Clone(), v.Required)
	if err != nil {
		return nil, err
	}
	doc = ExpandMultiValued(doc)
	doc = PruneEmpty(doc)
	doc = StripForbidden(doc, v.Forbidden)
	return doc, nil
}

// PruneIncompleteSubstructures removes substructures that lack any of their
// required fields. A property holding a single substructure is removed
// entirely; from a property holding a list of substructures, only the
// incomplete entries are removed. A field counts as missing if it is absent
// or vacant (see IsVacant). The document is modified in place.
func PruneIncompleteSubstructures(doc core.Document, required map[string][]string) (core.Document, error) {
	for _, prop := range sortedKeys(required) {
		fields := required[prop]
		value, exists := doc[prop]
		if !exists {
			continue
		}

		switch value := value.(type) {
		case core.Mapping:
			if !hasFields(value, fields) {
				delete(doc, prop)
			}
		case core.Sequence:
			kept := make(core.Sequence, 0, len(value))
			for _, elem := range value {
				m, ok := elem.(core.Mapping)
				if !ok {
					return nil, core.Errorf(core.ErrConfiguration,
						"property %s must contain a list of objects with the fields %v, but found %T", prop, fields, elem)
				}
				if hasFields(m, fields) {
					kept = append(kept, m)
				}
			}
			doc[prop] = kept
		case core.Null:
			continue
		default:
			return nil, core.Errorf(core.ErrConfiguration,
				"property %s must contain objects with the fields %v, but found %T", prop, fields, value)
		}
	}
	return doc, nil
}

func hasFields(m core.Mapping, fields []string) bool {
	for _, field := range fields {
		value, exists := m[field]
		if !exists || IsVacant(value) {
			return false
		}
	}
	return true
}

// ExpandMultiValued unfolds list-valued fields in substructures of
// list-typed properties. A substructure with several list-valued fields is
// replaced by one entry per element of the Cartesian product of these lists,
// in order. Nested lists of scalars are spliced into the enclosing list. The
// document is modified in place.
func ExpandMultiValued(doc core.Document) core.Document {
	for prop, value := range doc {
		seq, ok := value.(core.Sequence)
		if !ok {
			continue
		}
		doc[prop] = expandSequence(seq)
	}
	return doc
}

func expandSequence(seq core.Sequence) core.Sequence {
	result := make(core.Sequence, 0, len(seq))
	for _, elem := range seq {
		switch elem := elem.(type) {
		case core.Sequence:
			result = append(result, expandSequence(elem)...)
		case core.Mapping:
			result = append(result, expandMapping(elem)...)
		default:
			result = append(result, elem)
		}
	}
	return result
}

func expandMapping(m core.Mapping) []core.Value {
	var listKeys []string
	for key, value := range m {
		if _, ok := value.(core.Sequence); ok {
			listKeys = append(listKeys, key)
		}
	}
	if len(listKeys) == 0 {
		return []core.Value{m}
	}
	sort.Strings(listKeys)

	//start with a copy of all scalar fields, then multiply by each list
	base := make(core.Mapping, len(m))
	for key, value := range m {
		if _, ok := value.(core.Sequence); !ok {
			base[key] = value
		}
	}
	product := []core.Mapping{base}
	for _, key := range listKeys {
		values := m[key].(core.Sequence)
		if len(values) == 0 {
			continue
		}
		next := make([]core.Mapping, 0, len(product)*len(values))
		for _, partial := range product {
			for _, value := range values {
				entry := partial.Clone()
				entry[key] = value
				next = append(next, entry)
			}
		}
		product = next
	}

	result := make([]core.Value, len(product))
	for idx, entry := range product {
		result[idx] = entry
	}
	return result
}

// IsVacant returns whether a value is null, or a list or mapping that only
// contains vacant values. Empty strings and zeroes are not vacant.
func IsVacant(value core.Value) bool {
	switch value := value.(type) {
	case nil, core.Null:
		return true
	case core.Sequence:
		for _, elem := range value {
			if !IsVacant(elem) {
				return false
			}
		}
		return true
	case core.Mapping:
		for _, elem := range value {
			if !IsVacant(elem) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// PruneEmpty removes all vacant values (see IsVacant) from the document,
// recursively. The document is modified in place.
func PruneEmpty(doc core.Document) core.Document {
	for key, value := range doc {
		if IsVacant(value) {
			delete(doc, key)
		} else {
			doc[key] = pruneValue(value)
		}
	}
	return doc
}

func pruneValue(value core.Value) core.Value {
	switch value := value.(type) {
	case core.Sequence:
		result := make(core.Sequence, 0, len(value))
		for _, elem := range value {
			if !IsVacant(elem) {
				result = append(result, pruneValue(elem))
			}
		}
		return result
	case core.Mapping:
		return PruneEmpty(value)
	default:
		return value
	}
}

// StripForbidden removes the given top-level keys from the document. The
// document is modified in place.
func StripForbidden(doc core.Document, forbidden map[string]bool) core.Document {
	for key := range forbidden {
		delete(doc, key)
	}
	return doc
}
