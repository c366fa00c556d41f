/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package core

import (
	"strconv"
	"strings"
)

// Snapshot is the set of attributes of one LDAP entry at a point in time.
// Attribute values are ordered. A nil Snapshot denotes an absent entry.
type Snapshot map[string][]string

// Has returns whether the attribute is set to at least one value.
func (s Snapshot) Has(attr string) bool {
	return len(s[attr]) > 0
}

// First returns the first value of the given attribute, or "" if the
// attribute is not set.
func (s Snapshot) First(attr string) string {
	values := s[attr]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// IsEnabled interprets the given attribute as an integer flag. An absent or
// unparseable flag counts as disabled.
func (s Snapshot) IsEnabled(attr string) bool {
	value, err := strconv.Atoi(strings.TrimSpace(s.First(attr)))
	return err == nil && value != 0
}

// HasObjectClass checks objectClass values case-insensitively.
func (s Snapshot) HasObjectClass(class string) bool {
	for _, value := range s["objectClass"] {
		if strings.EqualFold(value, class) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	result := make(Snapshot, len(s))
	for key, values := range s {
		result[key] = append([]string(nil), values...)
	}
	return result
}

// DiffAttributes returns the subset of `watched` whose values differ between
// the two snapshots. Attributes that were added or removed count as changed,
// and so does any change in value order. The result is in the order of
// `watched`.
func DiffAttributes(watched []string, old, new Snapshot) []string {
	var result []string
	for _, attr := range watched {
		if !stringListsAreEqual(old[attr], new[attr]) {
			result = append(result, attr)
		}
	}
	return result
}

func stringListsAreEqual(lhs, rhs []string) bool {
	if len(lhs) != len(rhs) {
		return false
	}
	for idx, left := range lhs {
		right := rhs[idx]
		if left != right {
			return false
		}
	}
	return true
}
