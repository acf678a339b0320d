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
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// On-disk and on-wire form of an exposure. Non-finite pixels are written as null
type document struct {
	Rows     int         `json:"rows"`
	Cols     int         `json:"cols"`
	Image    []*float64  `json:"image"`
	Variance []*float64  `json:"variance,omitempty"`
	Mask     []MaskPixel `json:"mask,omitempty"`
	Metadata []entry     `json:"metadata"`
}

type entry struct {
	Key   string          `json:"key"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (e *Exposure[T]) MarshalJSON() ([]byte, error) {
	d := document{
		Rows:     e.Rows,
		Cols:     e.Cols,
		Image:    encodePlane(e.Image),
		Variance: encodePlane(e.Variance),
		Metadata: make([]entry, 0, e.Metadata.Len()),
	}
	for _, m := range e.Mask {
		if m != 0 {
			d.Mask = e.Mask
			break
		}
	}
	for _, k := range e.Metadata.Keys() {
		v, _ := e.Metadata.Get(k)
		var raw []byte
		var err error
		switch v.Kind {
		case KindInt:
			raw, err = json.Marshal(v.Int)
		case KindFloat:
			raw, err = json.Marshal(v.Float)
		case KindString:
			raw, err = json.Marshal(v.Str)
		case KindBool:
			raw, err = json.Marshal(v.Bool)
		}
		if err != nil {
			return nil, fmt.Errorf("metadata %s: %w", k, err)
		}
		d.Metadata = append(d.Metadata, entry{Key: k, Type: v.Kind.String(), Value: raw})
	}
	return json.Marshal(d)
}

func (e *Exposure[T]) UnmarshalJSON(data []byte) error {
	var d document
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	img, err := FromImage(d.Rows, d.Cols, decodePlane[T](d.Image))
	if err != nil {
		return err
	}
	if d.Variance != nil {
		if err := img.SetVariance(decodePlane[T](d.Variance)); err != nil {
			return err
		}
	}
	if d.Mask != nil {
		if len(d.Mask) != img.Pixels() {
			return fmt.Errorf("mask has %d pixels, expected %d", len(d.Mask), img.Pixels())
		}
		img.Mask = d.Mask
	}
	for _, en := range d.Metadata {
		kind, err := ParseKind(en.Type)
		if err != nil {
			return fmt.Errorf("metadata %s: %w", en.Key, err)
		}
		if img.Metadata.Has(en.Key) {
			return fmt.Errorf("metadata %s: duplicate key", en.Key)
		}
		v := Value{Kind: kind}
		switch kind {
		case KindInt:
			err = json.Unmarshal(en.Value, &v.Int)
		case KindFloat:
			err = json.Unmarshal(en.Value, &v.Float)
		case KindString:
			err = json.Unmarshal(en.Value, &v.Str)
		case KindBool:
			err = json.Unmarshal(en.Value, &v.Bool)
		}
		if err != nil {
			return fmt.Errorf("metadata %s: %w", en.Key, err)
		}
		img.Metadata.Set(en.Key, v)
	}
	*e = *img
	return nil
}

func encodePlane[T Float](p []T) []*float64 {
	if p == nil {
		return nil
	}
	out := make([]*float64, len(p))
	vals := make([]float64, len(p))
	for i, v := range p {
		if IsFinite(v) {
			vals[i] = float64(v)
			out[i] = &vals[i]
		}
	}
	return out
}

func decodePlane[T Float](p []*float64) []T {
	out := make([]T, len(p))
	for i, v := range p {
		if v == nil {
			out[i] = T(math.NaN())
		} else {
			out[i] = T(*v)
		}
	}
	return out
}

// Reads an exposure document from file
func ReadFile[T Float](fileName string) (*Exposure[T], error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	e := &Exposure[T]{}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return e, nil
}

// Writes an exposure document to file
func (e *Exposure[T]) WriteFile(fileName string) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return os.WriteFile(fileName, data, 0644)
}
