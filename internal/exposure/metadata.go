// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package exposure

import (
	"fmt"
	"strconv"
)

// Type of a metadata value
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindBool
)

var kindNames = []string{"int", "float", "string", "bool"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Parses a kind name as written in exposure documents
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown metadata type %q", s)
}

// A typed metadata value. Only the field matching Kind is meaningful
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

func Int(v int64) Value { return Value{Kind: KindInt, Int: v} }
func Float64(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func String(v string) Value { return Value{Kind: KindString, Str: v} }
func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// Values are equal if kind and payload match. An int never equals a float
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindString:
		return v.Str == o.Str
	case KindBool:
		return v.Bool == o.Bool
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.Str)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	}
	return "?"
}

// Ordered key-value store attached to an exposure. Keys are unique
type Metadata struct {
	keys   []string
	values map[string]Value
}

func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]Value)}
}

// Returns the value for key and whether it was present
func (m *Metadata) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

func (m *Metadata) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Sets key to value. New keys are appended, existing keys keep their position
func (m *Metadata) Set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Keys in insertion order
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *Metadata) Clone() *Metadata {
	c := NewMetadata()
	if m == nil {
		return c
	}
	c.keys = append(c.keys, m.keys...)
	for k, v := range m.values {
		c.values[k] = v
	}
	return c
}
