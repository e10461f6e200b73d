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

// gunzip decompresses gzip, zlib or raw deflate files. Multiple files
// are decompressed concurrently; with -progress a bar per file tracks
// the expected size read from each gzip trailer.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/coreos/pkg/capnslog"
	"github.com/coreos/pkg/progressutil"
	"golang.org/x/sync/errgroup"

	"github.com/coreos/inflate"
)

var log = capnslog.NewPackageLogger("github.com/coreos/inflate", "gunzip")

var (
	outDir   = flag.String("o", "", "write output files into this directory")
	toStdout = flag.Bool("c", false, "write output to stdout")
	rawWrap  = flag.Bool("raw", false, "input is headerless deflate data")
	zlibWrap = flag.Bool("zlib", false, "input is zlib framed")
	progress = flag.Bool("progress", false, "show per-file progress bars")
	parallel = flag.Int("p", runtime.GOMAXPROCS(0), "number of files to decompress concurrently")
	verbose  = flag.Bool("v", false, "enable debug logging")
)

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: gunzip [flags] file...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	capnslog.SetFormatter(capnslog.NewStringFormatter(os.Stderr))
	level := capnslog.INFO
	if *verbose {
		level = capnslog.DEBUG
	}
	capnslog.MustRepoLogger("github.com/coreos/inflate").SetRepoLogLevel(level)

	if err := run(flag.Args()); err != nil {
		log.Fatalf("%v", err)
	}
}

func wrap() inflate.Wrap {
	switch {
	case *rawWrap:
		return inflate.Raw
	case *zlibWrap:
		return inflate.Zlib
	default:
		return inflate.Gzip
	}
}

// outputName strips a .gz, .z or .zz suffix, whichever framing was
// selected, or appends .out when there is nothing to strip.
func outputName(name string) string {
	base := filepath.Base(name)
	for _, suffix := range []string{".gz", ".z", ".zz"} {
		if strings.HasSuffix(base, suffix) && len(base) > len(suffix) {
			base = base[:len(base)-len(suffix)]
			return base
		}
	}
	return base + ".out"
}

// expectedSize reads the ISIZE field from a gzip trailer, which is the
// uncompressed size mod 2^32 and good enough for a progress bar.
func expectedSize(f *os.File) int64 {
	if wrap() != inflate.Gzip {
		return 0
	}
	info, err := f.Stat()
	if err != nil || info.Size() < 8 {
		return 0
	}
	var tail [4]byte
	if _, err := f.ReadAt(tail[:], info.Size()-4); err != nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint32(tail[:]))
}

func run(files []string) error {
	if *progress && !*toStdout {
		return runWithProgress(files)
	}

	var g errgroup.Group
	g.SetLimit(*parallel)
	for _, name := range files {
		name := name
		g.Go(func() error {
			return decompressFile(name)
		})
	}
	return g.Wait()
}

func decompressFile(name string) error {
	in, err := os.Open(name)
	if err != nil {
		return err
	}
	defer in.Close()

	var out io.Writer = os.Stdout
	if !*toStdout {
		dst := filepath.Join(*outDir, outputName(name))
		f, err := os.Create(dst)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
		log.Debugf("%s -> %s", name, dst)
	}

	start := time.Now()
	zr := inflate.NewReader(in, wrap())
	n, err := io.Copy(out, zr)
	if err != nil {
		return fmt.Errorf("%s: %v", name, err)
	}
	if err := zr.Close(); err != nil {
		return fmt.Errorf("%s: %v", name, err)
	}
	log.Infof("%s: %d bytes in %v (check %08x)", name, n, time.Since(start), zr.Check())
	return nil
}

// runWithProgress hands every file to one progress printer, which
// drives the copies itself and redraws the bars until all are done.
func runWithProgress(files []string) error {
	cpp := progressutil.NewCopyProgressPrinter()
	var outs []io.Closer

	for _, name := range files {
		in, err := os.Open(name)
		if err != nil {
			return err
		}
		outs = append(outs, in)

		dst := filepath.Join(*outDir, outputName(name))
		f, err := os.Create(dst)
		if err != nil {
			return err
		}
		outs = append(outs, f)

		zr := inflate.NewReader(in, wrap())
		if err := cpp.AddCopy(zr, filepath.Base(name), expectedSize(in), f); err != nil {
			return err
		}
	}

	err := cpp.PrintAndWait(os.Stderr, 200*time.Millisecond, nil)
	for _, c := range outs {
		c.Close()
	}
	return err
}
