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

// ztrace decodes a compressed file and logs one line per deflate block
// boundary: where the block ended in the compressed stream, down to the
// bit, and how much output had been produced. Useful for inspecting how
// an encoder chopped up a stream, and for picking checkpoint spans.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/inflate"
)

var log = capnslog.NewPackageLogger("github.com/coreos/inflate", "ztrace")

var (
	rawWrap  = flag.Bool("raw", false, "input is headerless deflate data")
	zlibWrap = flag.Bool("zlib", false, "input is zlib framed")
	trees    = flag.Bool("trees", false, "also pause after each block's code tables")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ztrace [flags] file")
		flag.PrintDefaults()
		os.Exit(2)
	}

	capnslog.SetFormatter(capnslog.NewStringFormatter(os.Stderr))
	capnslog.MustRepoLogger("github.com/coreos/inflate").SetRepoLogLevel(capnslog.INFO)

	if err := trace(flag.Arg(0)); err != nil {
		log.Fatalf("%v", err)
	}
}

func trace(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	w := inflate.Gzip
	switch {
	case *rawWrap:
		w = inflate.Raw
	case *zlibWrap:
		w = inflate.Zlib
	}
	d, err := inflate.NewDecoder(w, 15)
	if err != nil {
		return err
	}
	flush := inflate.FlushBlock
	if *trees {
		flush = inflate.FlushTrees
	}

	in := make([]byte, 32<<10)
	out := make([]byte, 32<<10)
	pos, n := 0, 0
	srcEOF := false
	block := 0
	// gzip and zlib streams pause once at the end of the header,
	// before any block has been read
	headerPause := w != inflate.Raw

	for {
		if pos == n && !srcEOF {
			n, err = f.Read(in)
			pos = 0
			if err == io.EOF {
				srcEOF = true
			} else if err != nil {
				return err
			}
		}
		res, derr := d.Decode(in[pos:n], out, flush)
		pos += res.Consumed
		switch res.Status {
		case inflate.Eof:
			totalIn, totalOut := d.Total()
			log.Infof("end of stream: %d compressed -> %d uncompressed, check %08x", totalIn, totalOut, res.Check)
			return nil
		case inflate.InvalidData, inflate.NeedDict:
			return derr
		case inflate.NeedInput:
			if srcEOF {
				return io.ErrUnexpectedEOF
			}
		}
		if d.BlockBoundary() {
			if headerPause {
				headerPause = false
				continue
			}
			block++
			totalIn, totalOut := d.Total()
			_, bits := d.PendingBits()
			final := ""
			if d.FinalBlock() {
				final = " (final)"
			}
			log.Infof("block %d%s ends at byte %d minus %d bits, output %d", block, final, totalIn, bits, totalOut)
		}
	}
}
