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

// Package zran provides random access into gzip files, in the manner of
// Mark Adler's zran.c. The stream is decoded once and an index of
// checkpoints is built roughly every span bytes of uncompressed output;
// each checkpoint records the compressed offset, the pending bits of
// the accumulator, and a window snapshot. Extract then restores the
// nearest checkpoint into a raw-deflate decoder and decodes forward, so
// reading a range costs on average span/2 bytes of decompression
// instead of the whole prefix.
package zran

import (
	"encoding/gob"
	"errors"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/inflate"
)

var log = capnslog.NewPackageLogger("github.com/coreos/inflate", "zran")

// ErrCorruptIndex is returned when a checkpoint's window snapshot does
// not match its recorded digest.
var ErrCorruptIndex = errors.New("zran: corrupt index checkpoint")

// DefaultSpan is the target distance between checkpoints in
// uncompressed bytes. Denser checkpoints cost memory (a window snapshot
// each) and buy faster random access.
const DefaultSpan = 1 << 20

const bufSize = 32 << 10

// A Checkpoint is a restartable position inside a gzip stream: the
// deflate block boundary nearest to UncompOff bytes of output. Sum is
// the xxhash of Window, checked when the checkpoint is used after the
// index has been persisted.
type Checkpoint struct {
	CompOff   int64  // compressed bytes consumed, including the header
	UncompOff int64  // uncompressed bytes produced
	Hold      uint32 // pending accumulator bits
	Bits      uint   // number of pending bits
	Window    []byte // trailing output, oldest byte first
	Sum       uint64
}

// Index is an ordered list of checkpoints into one gzip stream.
type Index []*Checkpoint

// Encode writes the index in gob form, the inverse of DecodeIndex.
func (idx Index) Encode(w io.Writer) error {
	return gob.NewEncoder(w).Encode(idx)
}

// DecodeIndex reads an index previously written by Encode.
func DecodeIndex(r io.Reader) (Index, error) {
	var idx Index
	if err := gob.NewDecoder(r).Decode(&idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func addPoint(idx Index, d *inflate.Decoder) Index {
	hold, bits := d.PendingBits()
	in, out := d.Total()
	window := d.HistorySnapshot()
	cp := &Checkpoint{
		CompOff:   in,
		UncompOff: out,
		Hold:      hold,
		Bits:      bits,
		Window:    window,
		Sum:       xxhash.Sum64(window),
	}
	log.Debugf("checkpoint: compressed %d, uncompressed %d, %d pending bits", in, out, bits)
	return append(idx, cp)
}

// BuildIndex decodes the entire gzip stream in r, recording a
// checkpoint at the first block boundary after every span bytes of
// output. A span of 0 means DefaultSpan. The decoded data itself is
// discarded; the stream's integrity is still verified via its trailer.
func BuildIndex(r io.Reader, span int64) (Index, error) {
	if span <= 0 {
		span = DefaultSpan
	}
	d, err := inflate.NewDecoder(inflate.Gzip, 15)
	if err != nil {
		return nil, err
	}

	in := make([]byte, bufSize)
	out := make([]byte, bufSize)
	var idx Index
	var lastOut int64
	pos, n := 0, 0
	srcEOF := false

	for {
		if pos == n && !srcEOF {
			n, err = r.Read(in)
			pos = 0
			if err == io.EOF {
				srcEOF = true
			} else if err != nil {
				return nil, err
			}
		}
		res, derr := d.Decode(in[pos:n], out, inflate.FlushBlock)
		pos += res.Consumed
		switch res.Status {
		case inflate.Eof:
			log.Debugf("indexed %d checkpoints", len(idx))
			return idx, nil
		case inflate.InvalidData, inflate.NeedDict:
			return nil, derr
		case inflate.NeedInput:
			if srcEOF {
				return nil, io.ErrUnexpectedEOF
			}
		}
		if d.BlockBoundary() && !d.FinalBlock() {
			if _, totalOut := d.Total(); totalOut-lastOut >= span {
				idx = addPoint(idx, d)
				lastOut = totalOut
			}
		}
	}
}

// restore returns a decoder positioned at the best checkpoint for
// offset off, along with the compressed offset to read from and the
// uncompressed offset the decoder stands at. With no usable checkpoint
// it falls back to the start of the stream.
func restore(idx Index, off int64) (*inflate.Decoder, int64, int64, error) {
	var cp *Checkpoint
	for i := len(idx) - 1; i >= 0; i-- {
		if idx[i].UncompOff <= off {
			cp = idx[i]
			break
		}
	}
	if cp == nil {
		d, err := inflate.NewDecoder(inflate.Gzip, 15)
		return d, 0, 0, err
	}
	if xxhash.Sum64(cp.Window) != cp.Sum {
		return nil, 0, 0, ErrCorruptIndex
	}
	d, err := inflate.NewDecoder(inflate.Raw, 15)
	if err != nil {
		return nil, 0, 0, err
	}
	d.SetHistory(cp.Window)
	if err := d.Prime(int(cp.Bits), cp.Hold); err != nil {
		return nil, 0, 0, err
	}
	return d, cp.CompOff, cp.UncompOff, nil
}

// Extract reads len(p) uncompressed bytes starting at offset off, using
// the index to avoid decoding the whole prefix. It returns io.EOF when
// the stream ends before p is full.
func Extract(ra io.ReaderAt, idx Index, off int64, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	d, pos, outOff, err := restore(idx, off)
	if err != nil {
		return 0, err
	}
	skip := off - outOff

	in := make([]byte, bufSize)
	var scratch []byte // allocated only while skipping
	inPos, inLen := 0, 0
	srcEOF := false
	filled := 0

	for filled < len(p) {
		if inPos == inLen && !srcEOF {
			n, rerr := ra.ReadAt(in, pos)
			pos += int64(n)
			inPos, inLen = 0, n
			if rerr == io.EOF {
				srcEOF = true
			} else if rerr != nil {
				return filled, rerr
			}
		}

		// decode into scratch while skipping up to the requested
		// offset, then directly into p
		var out []byte
		if skip > 0 {
			if scratch == nil {
				scratch = make([]byte, bufSize)
			}
			out = scratch
			if skip < int64(len(out)) {
				out = out[:skip]
			}
		} else {
			out = p[filled:]
		}

		res, derr := d.Decode(in[inPos:inLen], out, inflate.FlushNone)
		inPos += res.Consumed
		if skip > 0 {
			skip -= int64(res.Produced)
		} else {
			filled += res.Produced
		}

		switch res.Status {
		case inflate.Eof:
			if filled < len(p) {
				return filled, io.EOF
			}
			return filled, nil
		case inflate.InvalidData, inflate.NeedDict:
			return filled, derr
		case inflate.NeedInput:
			if srcEOF {
				// a raw-framed restore has no trailer; the underlying
				// file simply ends at the gzip trailer
				return filled, io.EOF
			}
		}
	}
	return filled, nil
}
