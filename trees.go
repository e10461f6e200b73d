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

const (
	// maxCodeBits is the longest Huffman code DEFLATE permits.
	maxCodeBits = 15

	// Worst-case table sizes for complete length sets. A dynamic block
	// that needs more entries than this is malformed.
	enoughLens  = 852
	enoughDists = 592
	enough      = enoughLens + enoughDists
)

// A code is one Huffman table entry. op tags the entry: 0 for a literal,
// 16..29 for a base value with (op & 15) extra bits, 32+64 for end of
// block, 64 for an invalid code, and 1..15 for a link to a sub-table of
// 2^op entries. bits is how many accumulator bits the entry consumes.
// val is the literal byte, base length, base distance, or the sub-table
// offset relative to the table's own base.
type code struct {
	op   uint8
	bits uint8
	val  uint16
}

// treeKind selects the alphabet a table is built for. The kinds differ
// in how symbols map to op/val and in their capacity guards.
type treeKind int

const (
	treeCodes treeKind = iota // code-length alphabet
	treeLens                  // literal/length alphabet
	treeDists                 // distance alphabet
)

// buildTable constructs the root table and any sub-tables for the
// canonical Huffman code described by lens[0:n], writing entries into
// tbl starting at off. root is the requested root index width; the
// width actually used (possibly smaller) is returned along with the
// number of entries consumed. work must hold at least n entries of
// scratch.
//
// An over-subscribed length set is always an error. An incomplete set
// is an error too, except outside the code-length alphabet for the
// degenerate code of a single one-bit symbol (which the dynamic-block
// format can produce for distances); that code gets tables that decode
// the symbol and flag the unused code value as invalid.
func buildTable(kind treeKind, lens []uint16, n int, tbl []code, off int, root uint, work []uint16) (used int, rootOut uint, err error) {
	var count [maxCodeBits + 1]uint16
	var offs [maxCodeBits + 1]uint16

	// Count codes per length.
	for sym := 0; sym < n; sym++ {
		count[lens[sym]]++
	}

	// Bound the root width by the lengths actually present.
	max := maxCodeBits
	for max >= 1 && count[max] == 0 {
		max--
	}
	if max == 0 {
		// No symbols at all: set up a table that flags any decode
		// attempt as invalid.
		invalid := code{op: 64, bits: 1}
		tbl[off] = invalid
		tbl[off+1] = invalid
		return 2, 1, nil
	}
	if root > uint(max) {
		root = uint(max)
	}
	min := 1
	for count[min] == 0 {
		min++
	}
	if root < uint(min) {
		root = uint(min)
	}

	// Check for an over-subscribed or incomplete set of lengths.
	left := 1
	for l := 1; l <= maxCodeBits; l++ {
		left <<= 1
		left -= int(count[l])
		if left < 0 {
			return 0, 0, dataErr(MalformedBlock, "over-subscribed code length set")
		}
	}
	if left > 0 && (kind == treeCodes || max != 1) {
		return 0, 0, dataErr(MalformedBlock, "incomplete code length set")
	}

	// Sort symbols by length, stable by symbol order within a length.
	offs[1] = 0
	for l := 1; l < maxCodeBits; l++ {
		offs[l+1] = offs[l] + count[l]
	}
	for sym := 0; sym < n; sym++ {
		if lens[sym] != 0 {
			work[offs[lens[sym]]] = uint16(sym)
			offs[lens[sym]]++
		}
	}

	// Symbol-to-entry mapping per alphabet. For the code-length
	// alphabet every symbol is below match, so base/extra are unused.
	var base, extra []uint16
	var match int
	switch kind {
	case treeCodes:
		match = 20
	case treeLens:
		base, extra = lbase[:], lext[:]
		match = 257
	default:
		base, extra = dbase[:], dext[:]
		match = 0
	}

	huff := 0         // code value, bit-reversed
	sym := 0          // index into work
	length := min     // current code length
	next := off       // base of the table being filled
	curr := root      // index width of the table being filled
	drop := uint(0)   // root bits dropped when filling sub-tables
	low := -1         // root prefix of the sub-table in progress
	used = 1 << root  // entries consumed so far
	mask := used - 1  // mask of the root index

	if (kind == treeLens && used > enoughLens) ||
		(kind == treeDists && used > enoughDists) {
		return 0, 0, dataErr(MalformedBlock, "code table overflow")
	}

	for {
		// Build the entry for the current symbol.
		here := code{bits: uint8(uint(length) - drop)}
		switch {
		case int(work[sym])+1 < match:
			here.op = 0
			here.val = work[sym]
		case int(work[sym]) >= match:
			here.op = uint8(extra[int(work[sym])-match])
			here.val = base[int(work[sym])-match]
		default:
			here.op = 32 + 64
		}

		// Replicate it over every index whose low bits match the code.
		incr := 1 << (uint(length) - drop)
		fill := 1 << curr
		save := fill
		for {
			fill -= incr
			tbl[next+(huff>>drop)+fill] = here
			if fill == 0 {
				break
			}
		}

		// Backwards-increment the length-bit code.
		incr = 1 << (length - 1)
		for incr != 0 && huff&incr != 0 {
			incr >>= 1
		}
		if incr != 0 {
			huff = huff&(incr-1) + incr
		} else {
			huff = 0
		}

		// Advance to the next symbol.
		sym++
		count[length]--
		if count[length] == 0 {
			if length == max {
				break
			}
			length = int(lens[work[sym]])
		}

		// Start a new sub-table when the root prefix changes.
		if uint(length) > root && huff&mask != low {
			if drop == 0 {
				drop = root
			}
			next += save

			// Size the sub-table to fit the residual codes.
			curr = uint(length) - drop
			subLeft := 1 << curr
			for curr+drop < uint(max) {
				subLeft -= int(count[curr+drop])
				if subLeft <= 0 {
					break
				}
				curr++
				subLeft <<= 1
			}

			used += 1 << curr
			if (kind == treeLens && used > enoughLens) ||
				(kind == treeDists && used > enoughDists) {
				return 0, 0, dataErr(MalformedBlock, "code table overflow")
			}

			// Point the root entry at the new sub-table.
			low = huff & mask
			tbl[off+low] = code{
				op:   uint8(curr),
				bits: uint8(root),
				val:  uint16(next - off),
			}
		}
	}

	// An incomplete code leaves exactly one index unassigned (a 1-bit
	// code); mark it so decoding the unused value fails.
	if huff != 0 {
		tbl[next+(huff>>drop)] = code{op: 64, bits: uint8(uint(length) - drop)}
	}
	return used, root, nil
}
