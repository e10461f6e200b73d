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

// inflateFast is the bulk inner loop for decoding literal and match
// symbols. It requires at least 6 unread input bytes, at least 258
// bytes of output room, and fewer than 8 pending accumulator bits: one
// length/distance pair consumes at most 48 bits and emits at most 258
// bytes, so inside those margins no per-bit or per-byte checks are
// needed. It returns with the decoder in LEN (headroom gone), TYPE (end
// of block) or BAD (malformed code), leaving fewer than 8 bits pending.
func inflateFast(r *run) {
	d := r.d
	in, out := r.in, r.out
	p := r.inPos
	q := r.outPos
	last := len(in) - 5   // enough input while p < last
	end := len(out) - 257 // enough output while q < end

	hold, bits := d.hold, d.bits
	lcode, dcode := d.lencode, d.distcode
	lmask := uint32(1)<<d.lenbits - 1
	dmask := uint32(1)<<d.distbits - 1

	wsize, whave, wnext := d.wsize, d.whave, d.wnext
	window := d.window
	dmax := d.dmax

loop:
	for {
		if bits < 15 {
			hold += uint32(in[p]) << bits
			p++
			bits += 8
			hold += uint32(in[p]) << bits
			p++
			bits += 8
		}
		here := lcode[hold&lmask]

	dolen:
		for {
			hold >>= uint(here.bits)
			bits -= uint(here.bits)
			op := here.op
			switch {
			case op == 0: // literal
				out[q] = byte(here.val)
				q++

			case op&16 != 0: // length base
				length := int(here.val)
				if eb := uint(op & 15); eb != 0 {
					if bits < eb {
						hold += uint32(in[p]) << bits
						p++
						bits += 8
					}
					length += int(hold & (1<<eb - 1))
					hold >>= eb
					bits -= eb
				}
				if bits < 15 {
					hold += uint32(in[p]) << bits
					p++
					bits += 8
					hold += uint32(in[p]) << bits
					p++
					bits += 8
				}
				here = dcode[hold&dmask]

			dodist:
				for {
					hold >>= uint(here.bits)
					bits -= uint(here.bits)
					op = here.op
					switch {
					case op&16 != 0: // distance base
						dist := int(here.val)
						eb := uint(op & 15)
						if bits < eb {
							hold += uint32(in[p]) << bits
							p++
							bits += 8
							if bits < eb {
								hold += uint32(in[p]) << bits
								p++
								bits += 8
							}
						}
						dist += int(hold & (1<<eb - 1))
						if dist > dmax {
							r.invalid(OutOfRange, "invalid distance too far back")
							break loop
						}
						hold >>= eb
						bits -= eb

						var src []byte
						var from int
						if dist > q {
							// some of the match lives in the window
							wop := dist - q
							if wop > whave {
								if d.sane {
									r.invalid(OutOfRange, "invalid distance too far back")
									break loop
								}
								// relaxed mode: missing history is zeros
								if length <= wop-whave {
									for ; length > 0; length-- {
										out[q] = 0
										q++
									}
									break
								}
								length -= wop - whave
								for wop > whave {
									out[q] = 0
									q++
									wop--
								}
								if wop == 0 {
									from = q - dist
									for ; length > 0; length-- {
										out[q] = out[from]
										q++
										from++
									}
									break
								}
							}
							src = window
							if wnext == 0 {
								// window has never wrapped
								from = wsize - wop
								if wop < length {
									length -= wop
									for ; wop > 0; wop-- {
										out[q] = src[from]
										q++
										from++
									}
									src = out
									from = q - dist
								}
							} else if wnext < wop {
								// source straddles the physical wrap
								from = wsize + wnext - wop
								wop -= wnext
								if wop < length {
									length -= wop
									for ; wop > 0; wop-- {
										out[q] = src[from]
										q++
										from++
									}
									from = 0
									if wnext < length {
										wop = wnext
										length -= wop
										for ; wop > 0; wop-- {
											out[q] = src[from]
											q++
											from++
										}
										src = out
										from = q - dist
									}
								}
							} else {
								// contiguous run inside the window
								from = wnext - wop
								if wop < length {
									length -= wop
									for ; wop > 0; wop-- {
										out[q] = src[from]
										q++
										from++
									}
									src = out
									from = q - dist
								}
							}
							for length > 2 {
								out[q] = src[from]
								out[q+1] = src[from+1]
								out[q+2] = src[from+2]
								q += 3
								from += 3
								length -= 3
							}
							if length > 0 {
								out[q] = src[from]
								q++
								from++
								if length > 1 {
									out[q] = src[from]
									q++
								}
							}
						} else {
							// whole match is in the output already
							// written; forward copy replicates when the
							// ranges overlap
							from = q - dist
							for {
								out[q] = out[from]
								out[q+1] = out[from+1]
								out[q+2] = out[from+2]
								q += 3
								from += 3
								length -= 3
								if length <= 2 {
									break
								}
							}
							if length > 0 {
								out[q] = out[from]
								q++
								from++
								if length > 1 {
									out[q] = out[from]
									q++
								}
							}
						}

					case op&64 == 0: // second-level distance code
						here = dcode[int(here.val)+int(hold&(uint32(1)<<op-1))]
						continue dodist

					default:
						r.invalid(MalformedBlock, "invalid distance code")
						break loop
					}
					break dolen
				}

			case op&64 == 0: // second-level length code
				here = lcode[int(here.val)+int(hold&(uint32(1)<<op-1))]
				continue dolen

			case op&32 != 0: // end of block
				d.mode = modeType
				break loop

			default:
				r.invalid(MalformedBlock, "invalid literal/length code")
				break loop
			}
			break
		}

		if p >= last || q >= end {
			break
		}
	}

	// hand back whole unconsumed bytes so the slow path resumes with
	// fewer than 8 pending bits
	rew := bits >> 3
	p -= int(rew)
	bits -= rew << 3
	hold &= 1<<bits - 1

	r.inPos = p
	r.outPos = q
	d.hold = hold
	d.bits = bits
}
