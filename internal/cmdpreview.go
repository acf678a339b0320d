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


package internal

import (
	"fmt"

	"github.com/mlnoga/flatfield/internal/exposure"
	"github.com/mlnoga/flatfield/internal/preview"
)

// Parameters for the preview command
type PreviewParams struct {
	Out string  // Output PNG file
	Lo  float64 // Value mapped to the low end of the gradient
	Hi  float64 // Value mapped to the high end. If not above Lo, the range is chosen automatically
}

// Render a false-color heat map of an exposure into a PNG file
func CmdPreview(fileName string, p *PreviewParams) error {
	if p.Out == "" {
		return fmt.Errorf("no output file given")
	}
	e, err := exposure.ReadFile[float32](fileName)
	if err != nil {
		return err
	}
	img, err := preview.Render(e, p.Lo, p.Hi)
	if err != nil {
		return fmt.Errorf("%s: %w", fileName, err)
	}
	if err := preview.WritePNG(p.Out, img); err != nil {
		return err
	}
	LogPrintf("Wrote %dx%d preview of %s to %s\n", e.Cols, e.Rows, fileName, p.Out)
	return nil
}
