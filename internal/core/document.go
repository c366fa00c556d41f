/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Value is a node in a resource document. It is one of the types Null,
// Bool, Number, String, Sequence or Mapping.
type Value interface {
	isValue()
}

type (
	// Null is the Value for an explicit null.
	Null struct{}
	// Bool is a boolean Value.
	Bool bool
	// Number is a numeric Value.
	Number float64
	// String is a string Value.
	String string
	// Sequence is an ordered list of Values.
	Sequence []Value
	// Mapping is a set of Values indexed by key.
	Mapping map[string]Value
)

func (Null) isValue()     {}
func (Bool) isValue()     {}
func (Number) isValue()   {}
func (String) isValue()   {}
func (Sequence) isValue() {}
func (Mapping) isValue()  {}

// Document is a complete resource as sent to or received from the remote
// directory. Its top-level keys are the resource's properties.
type Document = Mapping

// Keys returns the keys of this mapping in sorted order.
func (m Mapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of this mapping.
func (m Mapping) Clone() Mapping {
	if m == nil {
		return nil
	}
	return CloneValue(m).(Mapping)
}

// GetString returns the value at the given key if it is a String.
func (m Mapping) GetString(key string) (string, bool) {
	s, ok := m[key].(String)
	return string(s), ok
}

// CloneValue returns a deep copy of the given Value.
func CloneValue(v Value) Value {
	switch v := v.(type) {
	case Sequence:
		result := make(Sequence, len(v))
		for idx, elem := range v {
			result[idx] = CloneValue(elem)
		}
		return result
	case Mapping:
		result := make(Mapping, len(v))
		for key, elem := range v {
			result[key] = CloneValue(elem)
		}
		return result
	default:
		return v
	}
}

// ValuesAreEqual compares two Values structurally.
func ValuesAreEqual(lhs, rhs Value) bool {
	switch lhs := lhs.(type) {
	case Sequence:
		rhs, ok := rhs.(Sequence)
		if !ok || len(lhs) != len(rhs) {
			return false
		}
		for idx := range lhs {
			if !ValuesAreEqual(lhs[idx], rhs[idx]) {
				return false
			}
		}
		return true
	case Mapping:
		rhs, ok := rhs.(Mapping)
		if !ok || len(lhs) != len(rhs) {
			return false
		}
		for key, left := range lhs {
			right, exists := rhs[key]
			if !exists || !ValuesAreEqual(left, right) {
				return false
			}
		}
		return true
	default:
		return lhs == rhs
	}
}

// ToNative converts a Value into the representation used by encoding/json.
func ToNative(v Value) any {
	switch v := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(v)
	case Number:
		return float64(v)
	case String:
		return string(v)
	case Sequence:
		result := make([]any, len(v))
		for idx, elem := range v {
			result[idx] = ToNative(elem)
		}
		return result
	case Mapping:
		result := make(map[string]any, len(v))
		for key, elem := range v {
			result[key] = ToNative(elem)
		}
		return result
	default:
		panic(fmt.Sprintf("unknown Value type: %T", v))
	}
}

// FromNative converts a decoded JSON (or YAML, or CBOR) structure into a
// Value. Unknown types are rendered with fmt into a String.
func FromNative(v any) Value {
	switch v := v.(type) {
	case nil:
		return Null{}
	case bool:
		return Bool(v)
	case float64:
		return Number(v)
	case float32:
		return Number(v)
	case int:
		return Number(v)
	case int64:
		return Number(v)
	case uint64:
		return Number(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return String(v.String())
		}
		return Number(f)
	case string:
		return String(v)
	case []any:
		result := make(Sequence, len(v))
		for idx, elem := range v {
			result[idx] = FromNative(elem)
		}
		return result
	case []string:
		result := make(Sequence, len(v))
		for idx, elem := range v {
			result[idx] = String(elem)
		}
		return result
	case map[string]any:
		result := make(Mapping, len(v))
		for key, elem := range v {
			result[key] = FromNative(elem)
		}
		return result
	case map[any]any:
		result := make(Mapping, len(v))
		for key, elem := range v {
			result[fmt.Sprint(key)] = FromNative(elem)
		}
		return result
	default:
		return String(fmt.Sprint(v))
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (m Mapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToNative(m))
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (m *Mapping) UnmarshalJSON(buf []byte) error {
	if bytes.Equal(bytes.TrimSpace(buf), []byte("null")) {
		*m = nil
		return nil
	}
	var data map[string]any
	err := json.Unmarshal(buf, &data)
	if err != nil {
		return err
	}
	*m = FromNative(data).(Mapping)
	return nil
}

// MarshalJSON implements the json.Marshaler interface.
func (s Sequence) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToNative(s))
}

// MarshalJSON implements the json.Marshaler interface.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// DocumentFromJSON decodes a JSON object into a Document.
func DocumentFromJSON(buf []byte) (Document, error) {
	var doc Document
	err := json.Unmarshal(buf, &doc)
	return doc, err
}
