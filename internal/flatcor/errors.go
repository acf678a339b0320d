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


package flatcor

import (
	"errors"
	"fmt"
	"strings"
)

// Category of a stage failure. All failures are final, the stage never retries
type Code string

const (
	CodeAlreadyCorrected     Code = "ALREADY_CORRECTED"
	CodeSizeMismatch         Code = "SIZE_MISMATCH"
	CodeUnsupportedChunkType Code = "UNSUPPORTED_CHUNK_TYPE"
	CodeMetadataNotFound     Code = "METADATA_NOT_FOUND"
	CodeIdentityMismatch     Code = "IDENTITY_MISMATCH"
	CodeFilterMismatch       Code = "FILTER_MISMATCH"
	CodeEmptyImage           Code = "EMPTY_IMAGE"
	CodeDegenerateFlat       Code = "DEGENERATE_FLAT"
	CodeDivisionByZero       Code = "DIVISION_BY_ZERO"
)

// Sentinels for errors.Is. Matching is by code only
var (
	ErrAlreadyCorrected     = &Error{Code: CodeAlreadyCorrected}
	ErrSizeMismatch         = &Error{Code: CodeSizeMismatch}
	ErrUnsupportedChunkType = &Error{Code: CodeUnsupportedChunkType}
	ErrMetadataNotFound     = &Error{Code: CodeMetadataNotFound}
	ErrIdentityMismatch     = &Error{Code: CodeIdentityMismatch}
	ErrFilterMismatch       = &Error{Code: CodeFilterMismatch}
	ErrEmptyImage           = &Error{Code: CodeEmptyImage}
	ErrDegenerateFlat       = &Error{Code: CodeDegenerateFlat}
	ErrDivisionByZero       = &Error{Code: CodeDivisionByZero}
)

// Which input exposure an error refers to
type Side string

const (
	SideChunk  Side = "chunk"
	SideMaster Side = "master"
)

// A failed flat field correction
type Error struct {
	Code    Code
	Step    Step   // Stage step that failed
	Side    Side   // Exposure concerned, if any
	Key     string // Metadata key concerned, if any
	Message string
	Err     error // Underlying cause, if any
}

func (e *Error) Error() string {
	b := strings.Builder{}
	b.WriteString(string(e.Code))
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Side != "" && e.Key != "" {
		fmt.Fprintf(&b, " (%s %s)", e.Side, e.Key)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Extracts the failure code from a possibly wrapped error
func CodeOf(err error) (Code, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return "", false
}

// Steps of the stage, in execution order
type Step int

const (
	StepCheckNotYetCorrected Step = iota
	StepValidateCompatibility
	StepNormalizeMasterIfNeeded
	StepComputeScaleParameters
	StepApplyCorrection
	StepRecordProvenance
)

var stepNames = []string{
	"CheckNotYetCorrected",
	"ValidateCompatibility",
	"NormalizeMasterIfNeeded",
	"ComputeScaleParameters",
	"ApplyCorrection",
	"RecordProvenance",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}
