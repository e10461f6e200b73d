// Copyright 2016 CoreOS, Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inflate

import "errors"

var (
	// ErrDictionary is returned when a zlib stream requests a preset
	// dictionary (FDICT). Supplying dictionaries is not supported; the
	// decoder stays in this condition until Reset.
	ErrDictionary = errors.New("inflate: preset dictionary required")

	// ErrWindowBits is returned by NewDecoder for a window size outside
	// the range [8,15].
	ErrWindowBits = errors.New("inflate: window bits out of range")

	// ErrWrap is returned by NewDecoder for an unknown framing value.
	ErrWrap = errors.New("inflate: unknown framing")

	// ErrPrime is returned by Prime when the requested bits do not fit
	// in the accumulator.
	ErrPrime = errors.New("inflate: cannot prime bit accumulator")
)

// ErrorKind classifies the ways a compressed stream can be rejected.
type ErrorKind int

const (
	// MalformedHeader covers bad gzip magic, a bad zlib check byte, an
	// unknown compression method, window size or header flags.
	MalformedHeader ErrorKind = iota
	// MalformedBlock covers every defect inside a deflate block: bad
	// block types, stored length mismatches, invalid code length sets,
	// invalid codes.
	MalformedBlock
	// OutOfRange means a match distance reached back past dmax or past
	// the bytes actually produced so far.
	OutOfRange
	// TrailerMismatch means the Adler-32, CRC-32 or ISIZE trailer did
	// not match the decoded data.
	TrailerMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedHeader:
		return "malformed header"
	case MalformedBlock:
		return "malformed block"
	case OutOfRange:
		return "distance out of range"
	case TrailerMismatch:
		return "trailer mismatch"
	}
	return "unknown"
}

// A DataError reports malformed compressed input. Once raised, the
// decoder is latched and every later Decode call returns the same error
// until Reset.
type DataError struct {
	Kind ErrorKind
	msg  string
}

func (e *DataError) Error() string { return "inflate: " + e.msg }

func dataErr(kind ErrorKind, msg string) *DataError {
	return &DataError{Kind: kind, msg: msg}
}
