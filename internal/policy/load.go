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


package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Algorithm policy as found in YAML files and API requests. Absent keys are nil
type AlgorithmConfig struct {
	ChunkType      *string  `yaml:"chunk_type" json:"chunk_type"`
	FlatFieldScale *float64 `yaml:"flat_field_scale" json:"flat_field_scale"`
	StretchFactor  *float64 `yaml:"stretch_factor" json:"stretch_factor"`
	SigClip        *bool    `yaml:"sig_clip" json:"sig_clip"`
	SigClipVal     *float64 `yaml:"sig_clip_val" json:"sig_clip_val"`
	ZeroDivisor    *string  `yaml:"zero_divisor" json:"zero_divisor"`
}

// Dataset policy as found in YAML files and API requests
type DatasetConfig struct {
	Name         *string `yaml:"name" json:"name"`
	NormalizeKey *string `yaml:"normalize_key" json:"normalize_key"`
}

// Resolves the configuration into an algorithm policy. chunk_type and
// stretch_factor are required, flat_field_scale is optional and a value
// of 0 means no scale
func (c *AlgorithmConfig) Resolve() (Algorithm, error) {
	a := DefaultAlgorithm()
	if c.ChunkType == nil {
		return Algorithm{}, fmt.Errorf("policy key flat.chunk_type not found")
	}
	a.ChunkTypeName = strings.TrimSpace(*c.ChunkType)
	a.ChunkType = ParseChunkType(a.ChunkTypeName)
	if c.StretchFactor == nil {
		return Algorithm{}, fmt.Errorf("policy key flat.stretch_factor not found")
	}
	a.StretchFactor = *c.StretchFactor
	if c.FlatFieldScale != nil && *c.FlatFieldScale != 0 {
		a.FlatFieldScale = Some(*c.FlatFieldScale)
	}
	if c.SigClip != nil {
		a.SigClip = *c.SigClip
	}
	if c.SigClipVal != nil {
		a.SigClipVal = *c.SigClipVal
	}
	if c.ZeroDivisor != nil {
		mode, err := ParseZeroDivisorMode(*c.ZeroDivisor)
		if err != nil {
			return Algorithm{}, err
		}
		a.ZeroDivisor = mode
	}
	if err := a.Validate(); err != nil {
		return Algorithm{}, err
	}
	return a, nil
}

func (c *DatasetConfig) Resolve() (Dataset, error) {
	var d Dataset
	if c.NormalizeKey == nil {
		return Dataset{}, fmt.Errorf("policy key dataset.normalize_key not found")
	}
	d.NormalizeKey = strings.TrimSpace(*c.NormalizeKey)
	if c.Name != nil {
		d.Name = strings.TrimSpace(*c.Name)
	}
	if err := d.Validate(); err != nil {
		return Dataset{}, err
	}
	return d, nil
}

// TOML form, with presence tracked through the decoder metadata
type tomlFile struct {
	Flat struct {
		ChunkType      string  `toml:"chunk_type"`
		FlatFieldScale float64 `toml:"flat_field_scale"`
		StretchFactor  float64 `toml:"stretch_factor"`
		SigClip        bool    `toml:"sig_clip"`
		SigClipVal     float64 `toml:"sig_clip_val"`
		ZeroDivisor    string  `toml:"zero_divisor"`
	} `toml:"flat"`
	Dataset struct {
		Name         string `toml:"name"`
		NormalizeKey string `toml:"normalize_key"`
	} `toml:"dataset"`
}

type yamlFile struct {
	Flat    AlgorithmConfig `yaml:"flat"`
	Dataset DatasetConfig   `yaml:"dataset"`
}

// Loads the [flat] table of a TOML or YAML policy file
func LoadAlgorithm(fileName string) (Algorithm, error) {
	var c AlgorithmConfig
	if isYAML(fileName) {
		var f yamlFile
		if err := loadYAML(fileName, &f); err != nil {
			return Algorithm{}, err
		}
		c = f.Flat
	} else {
		var f tomlFile
		meta, err := toml.DecodeFile(fileName, &f)
		if err != nil {
			return Algorithm{}, fmt.Errorf("policy load failed (%s): %w", fileName, err)
		}
		if meta.IsDefined("flat", "chunk_type") {
			c.ChunkType = &f.Flat.ChunkType
		}
		if meta.IsDefined("flat", "flat_field_scale") {
			c.FlatFieldScale = &f.Flat.FlatFieldScale
		}
		if meta.IsDefined("flat", "stretch_factor") {
			c.StretchFactor = &f.Flat.StretchFactor
		}
		if meta.IsDefined("flat", "sig_clip") {
			c.SigClip = &f.Flat.SigClip
		}
		if meta.IsDefined("flat", "sig_clip_val") {
			c.SigClipVal = &f.Flat.SigClipVal
		}
		if meta.IsDefined("flat", "zero_divisor") {
			c.ZeroDivisor = &f.Flat.ZeroDivisor
		}
	}
	a, err := c.Resolve()
	if err != nil {
		return Algorithm{}, fmt.Errorf("policy %s: %w", fileName, err)
	}
	return a, nil
}

// Loads the [dataset] table of a TOML or YAML policy file
func LoadDataset(fileName string) (Dataset, error) {
	var c DatasetConfig
	if isYAML(fileName) {
		var f yamlFile
		if err := loadYAML(fileName, &f); err != nil {
			return Dataset{}, err
		}
		c = f.Dataset
	} else {
		var f tomlFile
		meta, err := toml.DecodeFile(fileName, &f)
		if err != nil {
			return Dataset{}, fmt.Errorf("policy load failed (%s): %w", fileName, err)
		}
		if meta.IsDefined("dataset", "name") {
			c.Name = &f.Dataset.Name
		}
		if meta.IsDefined("dataset", "normalize_key") {
			c.NormalizeKey = &f.Dataset.NormalizeKey
		}
	}
	d, err := c.Resolve()
	if err != nil {
		return Dataset{}, fmt.Errorf("policy %s: %w", fileName, err)
	}
	return d, nil
}

func isYAML(fileName string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	return ext == ".yaml" || ext == ".yml"
}

func loadYAML(fileName string, out any) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("policy load failed (%s): %w", fileName, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("policy parse failed (%s): %w", fileName, err)
	}
	return nil
}
