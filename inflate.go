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

// Package inflate decompresses DEFLATE streams (RFC 1951) with optional
// zlib (RFC 1950) or gzip (RFC 1952) framing. Unlike compress/flate the
// decoder is resumable: Decode borrows an input and an output slice for
// one call, consumes and produces as much as the buffers allow, and a
// later call continues exactly where the previous one stopped. That
// makes the decoder usable both behind an io.Reader and for random
// access schemes that snapshot and restore mid-stream state.
package inflate

import (
	"hash/crc32"
	"time"
)

// Wrap selects the framing around the raw DEFLATE data.
type Wrap int

const (
	// Raw is headerless DEFLATE data with no trailer.
	Raw Wrap = iota
	// Zlib is RFC 1950 framing: a 2-byte header and an Adler-32 trailer.
	Zlib
	// Gzip is RFC 1952 framing: a variable-length header and a CRC-32
	// plus ISIZE trailer.
	Gzip
)

func (w Wrap) String() string {
	switch w {
	case Raw:
		return "raw"
	case Zlib:
		return "zlib"
	case Gzip:
		return "gzip"
	}
	return "unknown"
}

// Flush asks Decode to pause early: FlushBlock at the next block
// boundary, FlushTrees additionally after a block's tables are built,
// FlushFinish when the caller expects this call to reach the end of the
// stream. FlushNone decodes until a buffer runs out.
type Flush int

const (
	FlushNone Flush = iota
	FlushBlock
	FlushTrees
	FlushFinish
)

// Status classifies the outcome of one Decode call.
type Status int

const (
	// Decoded means bytes were consumed and/or produced and decoding
	// can continue. Both counts may be zero when a buffer filled at an
	// awkward point; the next call with fresh buffers makes progress.
	Decoded Status = iota
	// Eof means the stream is complete, including its trailer.
	Eof
	// NeedInput means no progress is possible without more input.
	NeedInput
	// InvalidData means the stream is malformed; the decoder is
	// latched until Reset.
	InvalidData
	// NeedDict means the zlib stream requests a preset dictionary.
	NeedDict
)

func (s Status) String() string {
	switch s {
	case Decoded:
		return "decoded"
	case Eof:
		return "eof"
	case NeedInput:
		return "need input"
	case InvalidData:
		return "invalid data"
	case NeedDict:
		return "need dictionary"
	}
	return "unknown"
}

// Result reports what one Decode call did. Consumed and Produced are
// how far the input and output slices were advanced. Check is the
// verified Adler-32 or CRC-32 of the stream and is meaningful only when
// Status is Eof.
type Result struct {
	Status   Status
	Consumed int
	Produced int
	Check    uint32
}

// Header holds the metadata carried by a gzip stream header, in the
// same shape compress/gzip exposes.
type Header struct {
	Comment string
	Extra   []byte
	ModTime time.Time
	Name    string
	OS      byte
}

// mode enumerates the states of the decoder. The declaration order
// matters: trailer states compare greater than data states.
type mode int

const (
	modeHead mode = iota
	modeFlags
	modeTime
	modeOS
	modeExLen
	modeExtra
	modeName
	modeComment
	modeHCRC
	modeDictID
	modeDict
	modeType
	modeTypeDo
	modeStored
	modeCopyFirst
	modeCopy
	modeTable
	modeLenLens
	modeCodeLens
	modeLenFirst
	modeLen
	modeLenExt
	modeDist
	modeDistExt
	modeMatch
	modeLit
	modeCheck
	modeLength
	modeDone
	modeBad
)

// Decoder holds all state carried between Decode calls. A Decoder is
// not safe for concurrent use; independent Decoders are.
type Decoder struct {
	mode  mode
	wrap  Wrap
	last  bool // current block is the final one
	flags int  // gzip CM+FLG halfword, 0 until parsed
	dmax  int  // maximum legal back-distance
	check uint32

	totalIn  int64
	totalOut int64

	// sliding window
	wbits  int
	wsize  int
	whave  int
	wnext  int
	window []byte

	// bit accumulator; bits enter at position bits, drain from the low end
	hold uint32
	bits uint

	// in-flight copy parameters
	length int
	offset int
	extra  uint

	// current code tables, slices into codes or the fixed tables
	lencode  []code
	distcode []code
	lenbits  uint
	distbits uint

	// dynamic table decoding
	ncode int
	nlen  int
	ndist int
	have  int
	lens  [320]uint16
	work  [288]uint16
	codes [enough]code

	sane bool // when false, too-far-back distances read as zeros
	err  error

	head       Header
	nameBuf    []byte
	commentBuf []byte
	headerDone bool
}

// NewDecoder returns a decoder for the given framing with a window of
// 2^wbits bytes, wbits in [8,15].
func NewDecoder(wrap Wrap, wbits int) (*Decoder, error) {
	if wbits < 8 || wbits > 15 {
		return nil, ErrWindowBits
	}
	switch wrap {
	case Raw, Zlib, Gzip:
	default:
		return nil, ErrWrap
	}
	d := &Decoder{
		wrap:   wrap,
		wbits:  wbits,
		wsize:  1 << uint(wbits),
		window: make([]byte, 1<<uint(wbits)),
		sane:   true,
	}
	d.Reset(false)
	return d, nil
}

// Reset returns the decoder to its initial state so a new stream of the
// same framing can be decoded. When keepWindow is true the window
// contents survive the reset, so back-references in the next stream may
// reach into the previous one's output.
func (d *Decoder) Reset(keepWindow bool) {
	d.mode = modeHead
	d.last = false
	d.flags = 0
	d.dmax = 32768
	if d.wrap == Zlib {
		d.check = 1 // adler32 of nothing
	} else {
		d.check = 0
	}
	d.totalIn = 0
	d.totalOut = 0
	d.hold = 0
	d.bits = 0
	d.length = 0
	d.offset = 0
	d.extra = 0
	d.lencode = nil
	d.distcode = nil
	d.lenbits = 0
	d.distbits = 0
	d.have = 0
	d.err = nil
	d.head = Header{}
	d.nameBuf = nil
	d.commentBuf = nil
	d.headerDone = false
	if !keepWindow {
		d.whave = 0
		d.wnext = 0
	}
}

// AllowDistanceTooFar controls what happens when a match reaches back
// past the available history. By default that is a hard error; some
// PKZIP encoders emit such streams, and passing true makes the decoder
// synthesize zero bytes for the missing history instead.
func (d *Decoder) AllowDistanceTooFar(allow bool) {
	d.sane = !allow
}

// Prime loads n bits (the low n bits of value) into the bit accumulator
// ahead of the next input byte. n of -1 clears the accumulator. This is
// how a decoder is restarted at a checkpoint that fell inside a byte.
func (d *Decoder) Prime(n int, value uint32) error {
	if n < 0 {
		d.hold = 0
		d.bits = 0
		return nil
	}
	if n > 32 || int(d.bits)+n > 32 {
		return ErrPrime
	}
	d.hold += (value & (1<<uint(n) - 1)) << d.bits
	d.bits += uint(n)
	return nil
}

// SetHistory preloads the window with the trailing bytes of p, as if
// they had just been decoded. Together with Prime it restores a Raw
// decoder to a mid-stream checkpoint.
func (d *Decoder) SetHistory(p []byte) {
	d.updateWindow(p)
}

// BlockBoundary reports whether the decoder is paused between deflate
// blocks, which is where Decode stops under FlushBlock.
func (d *Decoder) BlockBoundary() bool {
	return d.mode == modeType
}

// FinalBlock reports whether the last block header seen was marked
// final.
func (d *Decoder) FinalBlock() bool {
	return d.last
}

// PendingBits returns the bit accumulator: bits already consumed from
// the input byte stream but not yet decoded. Feed them back through
// Prime when restoring a checkpoint.
func (d *Decoder) PendingBits() (value uint32, n uint) {
	return d.hold, d.bits
}

// HistorySnapshot copies out the window contents in logical order,
// oldest byte first. The result is what SetHistory needs to rebuild the
// same state.
func (d *Decoder) HistorySnapshot() []byte {
	if d.whave == 0 {
		return nil
	}
	buf := make([]byte, d.whave)
	if d.whave < d.wsize || d.wnext == 0 {
		copy(buf, d.window[:d.whave])
	} else {
		n := copy(buf, d.window[d.wnext:])
		copy(buf[n:], d.window[:d.wnext])
	}
	return buf
}

// Total returns the cumulative compressed bytes consumed and
// uncompressed bytes produced since the last Reset.
func (d *Decoder) Total() (in, out int64) {
	return d.totalIn, d.totalOut
}

// GzipHeader returns the parsed gzip header once the decoder has moved
// past it. The second result is false until then, and always false for
// Raw and Zlib framing.
func (d *Decoder) GzipHeader() (Header, bool) {
	if !d.headerDone {
		return Header{}, false
	}
	return d.head, true
}

// run is the per-call view of a Decode invocation: the borrowed
// buffers, their cursors, and the suspend bookkeeping.
type run struct {
	d       *Decoder
	in      []byte
	out     []byte
	inPos   int
	outPos  int
	checked int  // out bytes already folded into the running check
	starved bool // a bit fetch ran out of input
}

// pull appends one input byte to the accumulator. It reports false,
// marking the run starved, when the input slice is exhausted.
func (r *run) pull() bool {
	if r.inPos == len(r.in) {
		r.starved = true
		return false
	}
	r.d.hold |= uint32(r.in[r.inPos]) << r.d.bits
	r.inPos++
	r.d.bits += 8
	return true
}

// need ensures at least n bits are available, pulling input bytes as
// required.
func (r *run) need(n uint) bool {
	for r.d.bits < n {
		if !r.pull() {
			return false
		}
	}
	return true
}

// invalid latches the decoder with a malformed-input error.
func (r *run) invalid(kind ErrorKind, msg string) {
	r.d.err = dataErr(kind, msg)
	r.d.mode = modeBad
}

func (d *Decoder) peekBits(n uint) uint32 {
	return d.hold & (1<<n - 1)
}

func (d *Decoder) dropBits(n uint) {
	d.hold >>= n
	d.bits -= n
}

func (d *Decoder) byteAlign() {
	d.hold >>= d.bits & 7
	d.bits -= d.bits & 7
}

func (d *Decoder) initBits() {
	d.hold = 0
	d.bits = 0
}

// crc2 and crc4 fold accumulator bytes into the running header CRC.
func (d *Decoder) crc2(h uint32) {
	b := [2]byte{byte(h), byte(h >> 8)}
	d.check = crc32.Update(d.check, crc32.IEEETable, b[:])
}

func (d *Decoder) crc4(h uint32) {
	b := [4]byte{byte(h), byte(h >> 8), byte(h >> 16), byte(h >> 24)}
	d.check = crc32.Update(d.check, crc32.IEEETable, b[:])
}

// foldCheck folds output produced since the last fold into the running
// stream checksum.
func (r *run) foldCheck() {
	d := r.d
	if d.wrap == Raw {
		r.checked = r.outPos
		return
	}
	p := r.out[r.checked:r.outPos]
	if len(p) > 0 {
		if d.wrap == Gzip {
			d.check = crc32.Update(d.check, crc32.IEEETable, p)
		} else {
			d.check = adler32Update(d.check, p)
		}
	}
	r.checked = r.outPos
}

// updateWindow appends produced output to the sliding window,
// saturating whave at the window size and wrapping wnext.
func (d *Decoder) updateWindow(p []byte) {
	if len(p) >= d.wsize {
		copy(d.window, p[len(p)-d.wsize:])
		d.wnext = 0
		d.whave = d.wsize
		return
	}
	n := d.wsize - d.wnext
	if n > len(p) {
		n = len(p)
	}
	copy(d.window[d.wnext:], p[:n])
	if rest := len(p) - n; rest > 0 {
		copy(d.window, p[n:])
		d.wnext = rest
		d.whave = d.wsize
	} else {
		d.wnext += n
		if d.wnext == d.wsize {
			d.wnext = 0
		}
		if d.whave < d.wsize {
			d.whave += n
		}
	}
}

func swap32(x uint32) uint32 {
	return x>>24 | x>>8&0xff00 | x<<8&0xff0000 | x<<24
}

// Decode consumes compressed bytes from in and writes uncompressed
// bytes to out, resuming wherever the previous call stopped. Either
// buffer may be exhausted mid-stream; the returned Result says how far
// each cursor moved and why the call returned. The in and out slices
// must not alias and are not retained.
func (d *Decoder) Decode(in, out []byte, flush Flush) (Result, error) {
	if d.mode == modeBad {
		return Result{Status: InvalidData}, d.err
	}
	if d.mode == modeType {
		d.mode = modeTypeDo // skip the flush pause on re-entry
	}

	r := &run{d: d, in: in, out: out}

decode:
	for {
		switch d.mode {
		case modeHead:
			if d.wrap == Raw {
				d.mode = modeTypeDo
				continue
			}
			if !r.need(16) {
				break decode
			}
			if d.wrap == Gzip {
				if d.hold != 0x8b1f {
					r.invalid(MalformedHeader, "incorrect header check")
					continue
				}
				d.check = 0
				d.crc2(d.hold)
				d.initBits()
				d.mode = modeFlags
				continue
			}
			// zlib CMF/FLG
			if ((d.peekBits(8)<<8)+d.hold>>8)%31 != 0 {
				r.invalid(MalformedHeader, "incorrect header check")
				continue
			}
			if d.peekBits(4) != 8 {
				r.invalid(MalformedHeader, "unknown compression method")
				continue
			}
			d.dropBits(4)
			wlen := int(d.peekBits(4)) + 8
			if wlen > d.wbits {
				r.invalid(MalformedHeader, "invalid window size")
				continue
			}
			d.dmax = 1 << uint(wlen)
			d.check = 1 // adler32 of nothing
			if d.hold&0x200 != 0 {
				d.mode = modeDictID
			} else {
				d.mode = modeType
			}
			d.initBits()

		case modeFlags:
			if !r.need(16) {
				break decode
			}
			d.flags = int(d.hold)
			if d.flags&0xff != 8 {
				r.invalid(MalformedHeader, "unknown compression method")
				continue
			}
			if d.flags&0xe000 != 0 {
				r.invalid(MalformedHeader, "unknown header flags set")
				continue
			}
			if d.flags&0x0200 != 0 {
				d.crc2(d.hold)
			}
			d.initBits()
			d.mode = modeTime

		case modeTime:
			if !r.need(32) {
				break decode
			}
			d.head.ModTime = time.Unix(int64(d.hold), 0)
			if d.flags&0x0200 != 0 {
				d.crc4(d.hold)
			}
			d.initBits()
			d.mode = modeOS

		case modeOS:
			if !r.need(16) {
				break decode
			}
			d.head.OS = byte(d.hold >> 8)
			if d.flags&0x0200 != 0 {
				d.crc2(d.hold)
			}
			d.initBits()
			d.mode = modeExLen

		case modeExLen:
			if d.flags&0x0400 != 0 {
				if !r.need(16) {
					break decode
				}
				d.length = int(d.hold & 0xffff)
				if d.flags&0x0200 != 0 {
					d.crc2(d.hold)
				}
				d.initBits()
			}
			d.mode = modeExtra

		case modeExtra:
			if d.flags&0x0400 != 0 {
				n := d.length
				if avail := len(r.in) - r.inPos; n > avail {
					n = avail
				}
				if n > 0 {
					chunk := r.in[r.inPos : r.inPos+n]
					d.head.Extra = append(d.head.Extra, chunk...)
					if d.flags&0x0200 != 0 {
						d.check = crc32.Update(d.check, crc32.IEEETable, chunk)
					}
					r.inPos += n
					d.length -= n
				}
				if d.length != 0 {
					r.starved = true
					break decode
				}
			}
			d.length = 0
			d.mode = modeName

		case modeName:
			if d.flags&0x0800 != 0 {
				if r.inPos == len(r.in) {
					r.starved = true
					break decode
				}
				avail := r.in[r.inPos:]
				var b byte
				n := 0
				for n < len(avail) {
					b = avail[n]
					n++
					if b == 0 {
						break
					}
					d.nameBuf = append(d.nameBuf, b)
				}
				if d.flags&0x0200 != 0 {
					d.check = crc32.Update(d.check, crc32.IEEETable, avail[:n])
				}
				r.inPos += n
				if b != 0 {
					r.starved = true
					break decode
				}
			}
			d.mode = modeComment

		case modeComment:
			if d.flags&0x1000 != 0 {
				if r.inPos == len(r.in) {
					r.starved = true
					break decode
				}
				avail := r.in[r.inPos:]
				var b byte
				n := 0
				for n < len(avail) {
					b = avail[n]
					n++
					if b == 0 {
						break
					}
					d.commentBuf = append(d.commentBuf, b)
				}
				if d.flags&0x0200 != 0 {
					d.check = crc32.Update(d.check, crc32.IEEETable, avail[:n])
				}
				r.inPos += n
				if b != 0 {
					r.starved = true
					break decode
				}
			}
			d.mode = modeHCRC

		case modeHCRC:
			if d.flags&0x0200 != 0 {
				if !r.need(16) {
					break decode
				}
				// The header CRC is consumed but not verified; the
				// trailer CRC covers the data itself.
				d.initBits()
			}
			d.head.Name = string(d.nameBuf)
			d.head.Comment = string(d.commentBuf)
			d.headerDone = true
			d.check = 0 // crc32 of nothing, restarted for the data
			d.mode = modeType

		case modeDictID:
			if !r.need(32) {
				break decode
			}
			d.check = swap32(d.hold)
			d.initBits()
			d.mode = modeDict

		case modeDict:
			// Preset dictionaries are not supported; surface the
			// condition until the caller resets.
			break decode

		case modeType:
			if flush == FlushBlock || flush == FlushTrees {
				break decode
			}
			d.mode = modeTypeDo

		case modeTypeDo:
			if d.last {
				d.byteAlign()
				d.mode = modeCheck
				continue
			}
			if !r.need(3) {
				break decode
			}
			d.last = d.peekBits(1) == 1
			d.dropBits(1)
			blockType := d.peekBits(2)
			d.dropBits(2)
			switch blockType {
			case 0: // stored
				d.mode = modeStored
			case 1: // fixed codes
				fixedTables(d)
				d.mode = modeLenFirst
				if flush == FlushTrees {
					break decode
				}
			case 2: // dynamic codes
				d.mode = modeTable
			default:
				r.invalid(MalformedBlock, "invalid block type")
			}

		case modeStored:
			d.byteAlign()
			if !r.need(32) {
				break decode
			}
			if d.hold&0xffff != d.hold>>16^0xffff {
				r.invalid(MalformedBlock, "invalid stored block lengths")
				continue
			}
			d.length = int(d.hold & 0xffff)
			d.initBits()
			d.mode = modeCopyFirst
			if flush == FlushTrees {
				break decode
			}

		case modeCopyFirst:
			d.mode = modeCopy

		case modeCopy:
			if d.length > 0 {
				n := d.length
				if avail := len(r.in) - r.inPos; n > avail {
					n = avail
				}
				if left := len(r.out) - r.outPos; n > left {
					n = left
				}
				if n == 0 {
					if r.inPos == len(r.in) {
						r.starved = true
					}
					break decode
				}
				copy(r.out[r.outPos:], r.in[r.inPos:r.inPos+n])
				r.inPos += n
				r.outPos += n
				d.length -= n
				continue
			}
			d.mode = modeType

		case modeTable:
			if !r.need(14) {
				break decode
			}
			d.nlen = int(d.peekBits(5)) + 257
			d.dropBits(5)
			d.ndist = int(d.peekBits(5)) + 1
			d.dropBits(5)
			d.ncode = int(d.peekBits(4)) + 4
			d.dropBits(4)
			if d.nlen > 286 || d.ndist > 30 {
				r.invalid(MalformedBlock, "too many length or distance symbols")
				continue
			}
			d.have = 0
			d.mode = modeLenLens

		case modeLenLens:
			for d.have < d.ncode {
				if !r.need(3) {
					break decode
				}
				d.lens[lenOrder[d.have]] = uint16(d.peekBits(3))
				d.dropBits(3)
				d.have++
			}
			for d.have < 19 {
				d.lens[lenOrder[d.have]] = 0
				d.have++
			}
			used, root, err := buildTable(treeCodes, d.lens[:], 19, d.codes[:], 0, 7, d.work[:])
			if err != nil {
				r.invalid(MalformedBlock, "invalid code lengths set")
				continue
			}
			d.lencode = d.codes[:used]
			d.lenbits = root
			d.have = 0
			d.mode = modeCodeLens

		case modeCodeLens:
			for d.have < d.nlen+d.ndist {
				var here code
				for {
					here = d.lencode[d.peekBits(d.lenbits)]
					if uint(here.bits) <= d.bits {
						break
					}
					if !r.pull() {
						break decode
					}
				}
				if here.val < 16 {
					d.dropBits(uint(here.bits))
					d.lens[d.have] = here.val
					d.have++
					continue
				}
				var repeat, lenVal int
				switch here.val {
				case 16:
					if !r.need(uint(here.bits) + 2) {
						break decode
					}
					d.dropBits(uint(here.bits))
					if d.have == 0 {
						r.invalid(MalformedBlock, "invalid bit length repeat")
						continue decode
					}
					lenVal = int(d.lens[d.have-1])
					repeat = 3 + int(d.peekBits(2))
					d.dropBits(2)
				case 17:
					if !r.need(uint(here.bits) + 3) {
						break decode
					}
					d.dropBits(uint(here.bits))
					repeat = 3 + int(d.peekBits(3))
					d.dropBits(3)
				default:
					if !r.need(uint(here.bits) + 7) {
						break decode
					}
					d.dropBits(uint(here.bits))
					repeat = 11 + int(d.peekBits(7))
					d.dropBits(7)
				}
				if d.have+repeat > d.nlen+d.ndist {
					r.invalid(MalformedBlock, "invalid bit length repeat")
					continue decode
				}
				for ; repeat > 0; repeat-- {
					d.lens[d.have] = uint16(lenVal)
					d.have++
				}
			}

			if d.lens[256] == 0 {
				r.invalid(MalformedBlock, "invalid code -- missing end-of-block")
				continue
			}

			usedL, rootL, err := buildTable(treeLens, d.lens[:], d.nlen, d.codes[:], 0, 9, d.work[:])
			if err != nil {
				r.invalid(MalformedBlock, "invalid literal/lengths set")
				continue
			}
			d.lencode = d.codes[:usedL]
			d.lenbits = rootL
			usedD, rootD, err := buildTable(treeDists, d.lens[d.nlen:], d.ndist, d.codes[:], usedL, 6, d.work[:])
			if err != nil {
				r.invalid(MalformedBlock, "invalid distances set")
				continue
			}
			d.distcode = d.codes[usedL : usedL+usedD]
			d.distbits = rootD
			d.mode = modeLenFirst
			if flush == FlushTrees {
				break decode
			}

		case modeLenFirst:
			d.mode = modeLen

		case modeLen:
			if len(r.in)-r.inPos >= 6 && len(r.out)-r.outPos >= 258 && d.bits < 8 {
				inflateFast(r)
				continue
			}
			var here code
			for {
				here = d.lencode[d.peekBits(d.lenbits)]
				if uint(here.bits) <= d.bits {
					break
				}
				if !r.pull() {
					break decode
				}
			}
			if here.op != 0 && here.op&0xf0 == 0 {
				prev := here
				for {
					here = d.lencode[int(prev.val)+int(d.peekBits(uint(prev.bits)+uint(prev.op))>>prev.bits)]
					if uint(prev.bits)+uint(here.bits) <= d.bits {
						break
					}
					if !r.pull() {
						break decode
					}
				}
				d.dropBits(uint(prev.bits))
			}
			d.dropBits(uint(here.bits))
			d.length = int(here.val)
			switch {
			case here.op == 0:
				d.mode = modeLit
			case here.op&32 != 0:
				d.mode = modeType
			case here.op&64 != 0:
				r.invalid(MalformedBlock, "invalid literal/length code")
			default:
				d.extra = uint(here.op) & 15
				d.mode = modeLenExt
			}

		case modeLenExt:
			if d.extra > 0 {
				if !r.need(d.extra) {
					break decode
				}
				d.length += int(d.peekBits(d.extra))
				d.dropBits(d.extra)
			}
			d.mode = modeDist

		case modeDist:
			var here code
			for {
				here = d.distcode[d.peekBits(d.distbits)]
				if uint(here.bits) <= d.bits {
					break
				}
				if !r.pull() {
					break decode
				}
			}
			if here.op&0xf0 == 0 {
				prev := here
				for {
					here = d.distcode[int(prev.val)+int(d.peekBits(uint(prev.bits)+uint(prev.op))>>prev.bits)]
					if uint(prev.bits)+uint(here.bits) <= d.bits {
						break
					}
					if !r.pull() {
						break decode
					}
				}
				d.dropBits(uint(prev.bits))
			}
			d.dropBits(uint(here.bits))
			if here.op&64 != 0 {
				r.invalid(MalformedBlock, "invalid distance code")
				continue
			}
			d.offset = int(here.val)
			d.extra = uint(here.op) & 15
			d.mode = modeDistExt

		case modeDistExt:
			if d.extra > 0 {
				if !r.need(d.extra) {
					break decode
				}
				d.offset += int(d.peekBits(d.extra))
				d.dropBits(d.extra)
			}
			if d.offset > d.dmax {
				r.invalid(OutOfRange, "invalid distance too far back")
				continue
			}
			d.mode = modeMatch

		case modeMatch:
			if r.outPos == len(r.out) {
				break decode
			}
			written := r.outPos
			var src []byte
			var from, n int
			if d.offset > written {
				// part or all of the match comes from the window
				n = d.offset - written
				if n > d.whave {
					if d.sane {
						r.invalid(OutOfRange, "invalid distance too far back")
						continue
					}
					// relaxed mode: missing history reads as zeros
					n -= d.whave
					if n > d.length {
						n = d.length
					}
					if left := len(r.out) - r.outPos; n > left {
						n = left
					}
					d.length -= n
					for ; n > 0; n-- {
						r.out[r.outPos] = 0
						r.outPos++
					}
					if d.length == 0 {
						d.mode = modeLen
					}
					continue
				}
				src = d.window
				if n > d.wnext {
					// the run straddles the window wrap; take the tail
					// span now, the rest on the next pass
					n -= d.wnext
					from = d.wsize - n
				} else {
					from = d.wnext - n
				}
				if n > d.length {
					n = d.length
				}
			} else {
				src = r.out
				from = r.outPos - d.offset
				n = d.length
			}
			if left := len(r.out) - r.outPos; n > left {
				n = left
			}
			d.length -= n
			// byte-at-a-time so an overlapping source replicates its
			// pattern, as the format requires
			for ; n > 0; n-- {
				r.out[r.outPos] = src[from]
				r.outPos++
				from++
			}
			if d.length == 0 {
				d.mode = modeLen
			}

		case modeLit:
			if r.outPos == len(r.out) {
				break decode
			}
			r.out[r.outPos] = byte(d.length)
			r.outPos++
			d.mode = modeLen

		case modeCheck:
			if d.wrap != Raw {
				if !r.need(32) {
					break decode
				}
				r.foldCheck()
				expect := d.hold
				if d.wrap == Zlib {
					expect = swap32(d.hold)
				}
				if expect != d.check {
					r.invalid(TrailerMismatch, "incorrect data check")
					continue
				}
				d.initBits()
			}
			d.mode = modeLength

		case modeLength:
			if d.wrap == Gzip {
				if !r.need(32) {
					break decode
				}
				if d.hold != uint32(d.totalOut+int64(r.outPos)) {
					r.invalid(TrailerMismatch, "incorrect length check")
					continue
				}
				d.initBits()
			}
			d.mode = modeDone

		case modeDone, modeBad:
			break decode

		default:
			panic("inflate: corrupt decoder state")
		}
	}

	consumed := r.inPos
	produced := r.outPos
	if produced > 0 && (d.mode < modeCheck || flush != FlushFinish) {
		d.updateWindow(r.out[:produced])
	}
	r.foldCheck()
	d.totalIn += int64(consumed)
	d.totalOut += int64(produced)

	res := Result{Consumed: consumed, Produced: produced}
	switch {
	case d.mode == modeDone:
		res.Status = Eof
		res.Check = d.check
		return res, nil
	case d.mode == modeBad:
		res.Status = InvalidData
		return res, d.err
	case d.mode == modeDict:
		res.Status = NeedDict
		return res, ErrDictionary
	case r.starved && consumed == 0 && produced == 0:
		res.Status = NeedInput
	default:
		res.Status = Decoded
	}
	return res, nil
}
