package zran

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"golang.org/x/sync/errgroup"
)

// corpus builds ~n bytes of compressible text whose content varies with
// position, so any misaligned extraction is caught.
func corpus(n int) []byte {
	rng := rand.New(rand.NewSource(7))
	var buf bytes.Buffer
	for i := 0; buf.Len() < n; i++ {
		fmt.Fprintf(&buf, "line %d of the corpus: ", i)
		for j := 0; j < 4; j++ {
			buf.WriteByte(byte('a' + rng.Intn(26)))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()[:n]
}

func gzipCorpus(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func buildTestIndex(t *testing.T, size int, span int64) ([]byte, []byte, Index) {
	t.Helper()
	data := corpus(size)
	stream := gzipCorpus(t, data)
	idx, err := BuildIndex(bytes.NewReader(stream), span)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	return data, stream, idx
}

func TestBuildIndex(t *testing.T) {
	data, _, idx := buildTestIndex(t, 800<<10, 64<<10)
	if len(idx) == 0 {
		t.Fatal("no checkpoints recorded")
	}
	var prev int64 = -1
	for i, cp := range idx {
		if cp.UncompOff <= prev {
			t.Fatalf("checkpoint %d out of order: %d after %d", i, cp.UncompOff, prev)
		}
		prev = cp.UncompOff
		if cp.UncompOff > int64(len(data)) {
			t.Fatalf("checkpoint %d beyond stream end", i)
		}
		if len(cp.Window) == 0 {
			t.Fatalf("checkpoint %d has no window", i)
		}
	}
}

func TestExtract(t *testing.T) {
	data, stream, idx := buildTestIndex(t, 800<<10, 64<<10)
	ra := bytes.NewReader(stream)

	offsets := []int64{0, 1, 100, 65535, 65536, 300000, int64(len(data)) - 10}
	for _, off := range offsets {
		p := make([]byte, 1000)
		want := data[off:]
		if len(want) > len(p) {
			want = want[:len(p)]
		}
		n, err := Extract(ra, idx, off, p)
		if err != nil && err != io.EOF {
			t.Fatalf("Extract(%d): %v", off, err)
		}
		if !bytes.Equal(p[:n], want) {
			t.Fatalf("Extract(%d): wrong data", off)
		}
		if n < len(p) && err != io.EOF {
			t.Fatalf("Extract(%d): short read %d without EOF", off, n)
		}
	}
}

func TestExtractRandom(t *testing.T) {
	data, stream, idx := buildTestIndex(t, 500<<10, 32<<10)
	ra := bytes.NewReader(stream)
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 50; i++ {
		off := rng.Int63n(int64(len(data)))
		size := rng.Intn(5000) + 1
		p := make([]byte, size)
		n, err := Extract(ra, idx, off, p)
		if err != nil && err != io.EOF {
			t.Fatalf("Extract(%d,%d): %v", off, size, err)
		}
		want := data[off:]
		if len(want) > size {
			want = want[:size]
		}
		if !bytes.Equal(p[:n], want) {
			t.Fatalf("Extract(%d,%d): wrong data", off, size)
		}
	}
}

func TestExtractPastEnd(t *testing.T) {
	data, stream, idx := buildTestIndex(t, 100<<10, 32<<10)
	ra := bytes.NewReader(stream)

	p := make([]byte, 10)
	n, err := Extract(ra, idx, int64(len(data)), p)
	if n != 0 || err != io.EOF {
		t.Fatalf("Extract past end: n=%d err=%v, want 0 and io.EOF", n, err)
	}
}

func TestIndexRoundTrip(t *testing.T) {
	data, stream, idx := buildTestIndex(t, 400<<10, 64<<10)

	var buf bytes.Buffer
	if err := idx.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	loaded, err := DecodeIndex(&buf)
	if err != nil {
		t.Fatalf("DecodeIndex: %v", err)
	}
	if len(loaded) != len(idx) {
		t.Fatalf("round trip lost checkpoints: %d != %d", len(loaded), len(idx))
	}

	ra := bytes.NewReader(stream)
	p := make([]byte, 500)
	off := int64(200000)
	n, err := Extract(ra, loaded, off, p)
	if err != nil && err != io.EOF {
		t.Fatalf("Extract: %v", err)
	}
	if !bytes.Equal(p[:n], data[off:off+int64(n)]) {
		t.Fatal("extract through decoded index differs")
	}
}

func TestCorruptIndex(t *testing.T) {
	_, stream, idx := buildTestIndex(t, 400<<10, 64<<10)
	if len(idx) == 0 {
		t.Skip("no checkpoints to corrupt")
	}
	idx[0].Window[0] ^= 0xff

	ra := bytes.NewReader(stream)
	p := make([]byte, 10)
	if _, err := Extract(ra, idx, idx[0].UncompOff+1, p); err != ErrCorruptIndex {
		t.Fatalf("err = %v, want ErrCorruptIndex", err)
	}
}

func TestReaderAt(t *testing.T) {
	data, stream, idx := buildTestIndex(t, 500<<10, 64<<10)
	r := NewReaderAt(bytes.NewReader(stream), idx, 32)

	// twice over the same ranges, so the second pass hits the cache
	for pass := 0; pass < 2; pass++ {
		for _, off := range []int64{0, 1234, 70000, 250000} {
			p := make([]byte, 4096)
			n, err := r.ReadAt(p, off)
			if err != nil && err != io.EOF {
				t.Fatalf("pass %d ReadAt(%d): %v", pass, off, err)
			}
			if !bytes.Equal(p[:n], data[off:off+int64(n)]) {
				t.Fatalf("pass %d ReadAt(%d): wrong data", pass, off)
			}
		}
	}

	if _, err := r.ReadAt(make([]byte, 10), int64(len(data))+5); err != io.EOF {
		t.Fatalf("read past end: err = %v, want io.EOF", err)
	}
}

func TestReaderAtConcurrent(t *testing.T) {
	data, stream, idx := buildTestIndex(t, 500<<10, 64<<10)
	r := NewReaderAt(bytes.NewReader(stream), idx, 32)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		off := int64(i * 60000)
		g.Go(func() error {
			p := make([]byte, 2048)
			n, err := r.ReadAt(p, off)
			if err != nil && err != io.EOF {
				return err
			}
			if !bytes.Equal(p[:n], data[off:off+int64(n)]) {
				return fmt.Errorf("offset %d: wrong data", off)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
