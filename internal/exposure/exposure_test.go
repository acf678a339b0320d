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
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromImageRejectsWrongLength(t *testing.T) {
	_, err := FromImage(2, 3, []float32{1, 2, 3})
	require.Error(t, err)

	e, err := FromImage(2, 2, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 4, e.Pixels())
	assert.Equal(t, float32(3), e.At(1, 0))
	assert.Len(t, e.Mask, 4)
}

func TestCloneSharesNothing(t *testing.T) {
	e, err := FromImage(1, 2, []float64{1, 2})
	require.NoError(t, err)
	require.NoError(t, e.SetVariance([]float64{0.1, 0.2}))
	e.Metadata.Set("CCDID", Int(1))

	c := e.Clone()
	c.Image[0] = 9
	c.Variance[0] = 9
	c.Mask[0] = MaskBad
	c.Metadata.Set("CCDID", Int(2))
	c.Metadata.Set("EXTRA", Bool(true))

	assert.Equal(t, 1.0, e.Image[0])
	assert.Equal(t, 0.1, e.Variance[0])
	assert.Equal(t, MaskPixel(0), e.Mask[0])
	v, _ := e.Metadata.Get("CCDID")
	assert.Equal(t, int64(1), v.Int)
	assert.False(t, e.Metadata.Has("EXTRA"))
}

func TestMetadataOrderAndUniqueness(t *testing.T) {
	m := NewMetadata()
	m.Set("FILTER", String("r"))
	m.Set("CCDID", Int(3))
	m.Set("FILTER", String("g"))

	assert.Equal(t, []string{"FILTER", "CCDID"}, m.Keys())
	v, ok := m.Get("FILTER")
	require.True(t, ok)
	assert.Equal(t, "g", v.Str)

	_, ok = m.Get("AMPID")
	assert.False(t, ok)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Int(5).Equal(Int(5)))
	assert.False(t, Int(5).Equal(Int(7)))
	assert.False(t, Int(1).Equal(Float64(1)))
	assert.True(t, String("r").Equal(String("r")))
	assert.False(t, Bool(true).Equal(Bool(false)))
}

func TestJSONRoundTripKeepsNaNAndMetadata(t *testing.T) {
	e, err := FromImage(2, 2, []float32{1, float32(math.NaN()), 3, 4})
	require.NoError(t, err)
	e.Mask[1] = MaskFlatInvalid
	e.Metadata.Set("CCDID", Int(1))
	e.Metadata.Set("FILTER", String("r"))
	e.Metadata.Set("GAIN", Float64(1.5))
	e.Metadata.Set("IMRED_NF", Bool(true))

	fileName := filepath.Join(t.TempDir(), "e.json")
	require.NoError(t, e.WriteFile(fileName))

	back, err := ReadFile[float32](fileName)
	require.NoError(t, err)
	assert.Equal(t, 2, back.Rows)
	assert.True(t, math.IsNaN(float64(back.Image[1])))
	assert.Equal(t, float32(4), back.Image[3])
	assert.Equal(t, MaskFlatInvalid, back.Mask[1])
	assert.Nil(t, back.Variance)
	assert.Equal(t, []string{"CCDID", "FILTER", "GAIN", "IMRED_NF"}, back.Metadata.Keys())
	v, _ := back.Metadata.Get("GAIN")
	assert.True(t, v.Equal(Float64(1.5)))
}

func TestUnmarshalRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"size":      `{"rows":2,"cols":2,"image":[1,2,3],"metadata":[]}`,
		"kind":      `{"rows":1,"cols":1,"image":[1],"metadata":[{"key":"A","type":"date","value":"x"}]}`,
		"duplicate": `{"rows":1,"cols":1,"image":[1],"metadata":[{"key":"A","type":"int","value":1},{"key":"A","type":"int","value":2}]}`,
		"payload":   `{"rows":1,"cols":1,"image":[1],"metadata":[{"key":"A","type":"int","value":"one"}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			var e Exposure[float64]
			assert.Error(t, json.Unmarshal([]byte(doc), &e))
		})
	}
}
