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

import "sync"

// Length codes 257..285 map to base lengths 3..258; the low four bits of
// the op field hold the extra-bit count (RFC 1951 section 3.2.5). Entries
// 286 and 287 are reserved and marked invalid.
var lbase = [31]uint16{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258, 0, 0,
}

var lext = [31]uint16{
	16, 16, 16, 16, 16, 16, 16, 16, 17, 17, 17, 17, 18, 18, 18, 18,
	19, 19, 19, 19, 20, 20, 20, 20, 21, 21, 21, 21, 16, 77, 202,
}

// Distance codes 0..29 map to base distances 1..24577; codes 30 and 31
// are invalid.
var dbase = [32]uint16{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
	257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289,
	16385, 24577, 0, 0,
}

var dext = [32]uint16{
	16, 16, 16, 16, 17, 17, 18, 18, 19, 19, 20, 20, 21, 21, 22, 22,
	23, 23, 24, 24, 25, 25, 26, 26, 27, 27, 28, 28, 29, 29, 64, 64,
}

// Code length codes arrive in this fixed permutation (RFC 1951 3.2.7).
var lenOrder = [19]int{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}

// Fixed-code tables for block type 1, built once from the code lengths
// RFC 1951 section 3.2.6 prescribes.
var (
	fixedOnce sync.Once
	lenfix    [512]code
	distfix   [32]code
)

func buildFixedTables() {
	var lens [288]uint16
	var work [288]uint16

	var sym int
	for ; sym < 144; sym++ {
		lens[sym] = 8
	}
	for ; sym < 256; sym++ {
		lens[sym] = 9
	}
	for ; sym < 280; sym++ {
		lens[sym] = 7
	}
	for ; sym < 288; sym++ {
		lens[sym] = 8
	}
	if _, _, err := buildTable(treeLens, lens[:], 288, lenfix[:], 0, 9, work[:]); err != nil {
		panic("inflate: fixed literal/length table: " + err.Error())
	}

	for sym = 0; sym < 32; sym++ {
		lens[sym] = 5
	}
	if _, _, err := buildTable(treeDists, lens[:], 32, distfix[:], 0, 5, work[:]); err != nil {
		panic("inflate: fixed distance table: " + err.Error())
	}
}

func fixedTables(d *Decoder) {
	fixedOnce.Do(buildFixedTables)
	d.lencode = lenfix[:]
	d.lenbits = 9
	d.distcode = distfix[:]
	d.distbits = 5
}
