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


// Package provenance records which processing stages have been applied to an
// exposure, as marker keys in its metadata.
package provenance

import (
	"github.com/mlnoga/flatfield/internal/exposure"
)

const (
	FlatCorrected = "ISR_FLATCOR" // Set once flat field correction has completed
	Complete      = "Complete"    // Marker value for a completed stage
)

// True if the metadata carries the given marker key, regardless of its value
func HasMarker(md *exposure.Metadata, key string) bool {
	return md.Has(key)
}

// Records a marker with a string value
func SetMarker(md *exposure.Metadata, key, value string) {
	md.Set(key, exposure.String(value))
}
