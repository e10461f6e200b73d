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

import "io"

const readerBufSize = 1 << 15

// A Reader wraps a Decoder behind the usual pull API: it owns an input
// buffer, refills it from the source whenever the decoder reports
// NeedInput, and hands decompressed bytes to Read. Errors from the
// decoder are sticky until Reset.
type Reader struct {
	d     *Decoder
	src   io.Reader
	buf   []byte
	pos   int
	n     int
	eof   bool // source reported io.EOF
	check uint32
	err   error
}

// NewReader returns a Reader decompressing the stream in src with the
// given framing and a full 32 KiB window.
func NewReader(src io.Reader, wrap Wrap) *Reader {
	d, err := NewDecoder(wrap, 15)
	if err != nil {
		panic("inflate: " + err.Error()) // fixed arguments cannot fail
	}
	return &Reader{
		d:   d,
		src: src,
		buf: make([]byte, readerBufSize),
	}
}

// Reset discards the Reader's state and restarts it on a new source,
// keeping the allocated buffers.
func (z *Reader) Reset(src io.Reader) {
	z.d.Reset(false)
	z.src = src
	z.pos = 0
	z.n = 0
	z.eof = false
	z.check = 0
	z.err = nil
}

func (z *Reader) Read(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	total := 0
	for {
		res, err := z.d.Decode(z.buf[z.pos:z.n], p[total:], FlushNone)
		z.pos += res.Consumed
		total += res.Produced

		switch res.Status {
		case Eof:
			z.check = res.Check
			z.err = io.EOF
			return total, io.EOF
		case InvalidData, NeedDict:
			z.err = err
			return total, err
		case NeedInput:
			n, rerr := z.src.Read(z.buf)
			z.pos = 0
			z.n = n
			if n == 0 {
				switch rerr {
				case nil:
					continue // try again; empty reads are legal
				case io.EOF:
					z.err = io.ErrUnexpectedEOF
				default:
					z.err = rerr
				}
				return total, z.err
			}
		default:
			if total > 0 {
				return total, nil
			}
		}
	}
}

// Close surfaces any error the stream ended with. It does not close the
// underlying source.
func (z *Reader) Close() error {
	if z.err == nil || z.err == io.EOF {
		return nil
	}
	return z.err
}

// Check returns the verified trailer checksum once the stream has been
// fully read.
func (z *Reader) Check() uint32 {
	return z.check
}

// GzipHeader exposes the gzip header once it has been parsed, which is
// guaranteed after the first successful Read.
func (z *Reader) GzipHeader() (Header, bool) {
	return z.d.GzipHeader()
}
