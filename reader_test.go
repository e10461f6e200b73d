package inflate

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"hash/adler32"
	"hash/crc32"
	"io"
	"math/rand"
	"testing"
	"testing/iotest"
)

// testData returns compressible but non-trivial data of size n,
// deterministic across runs.
func testData(n int) []byte {
	rng := rand.New(rand.NewSource(42))
	words := []string{"alpha ", "beta ", "gamma ", "delta ", "epsilon "}
	var buf bytes.Buffer
	for buf.Len() < n {
		buf.WriteString(words[rng.Intn(len(words))])
		if rng.Intn(8) == 0 {
			buf.WriteByte(byte(rng.Intn(256)))
		}
	}
	return buf.Bytes()[:n]
}

func compress(t *testing.T, wrap Wrap, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch wrap {
	case Gzip:
		w = gzip.NewWriter(&buf)
	case Zlib:
		w = zlib.NewWriter(&buf)
	default:
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			t.Fatalf("flate writer: %v", err)
		}
		w = fw
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("compress close: %v", err)
	}
	return buf.Bytes()
}

func TestReaderRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 17, 1000, 100000}
	for _, wrap := range []Wrap{Raw, Zlib, Gzip} {
		for _, size := range sizes {
			data := testData(size)
			stream := compress(t, wrap, data)

			zr := NewReader(bytes.NewReader(stream), wrap)
			got, err := io.ReadAll(zr)
			if err != nil {
				t.Errorf("%v/%d: read: %v", wrap, size, err)
				continue
			}
			if !bytes.Equal(got, data) {
				t.Errorf("%v/%d: output differs", wrap, size)
				continue
			}
			if err := zr.Close(); err != nil {
				t.Errorf("%v/%d: close: %v", wrap, size, err)
			}
			switch wrap {
			case Gzip:
				if want := crc32.ChecksumIEEE(data); zr.Check() != want {
					t.Errorf("%v/%d: check %08x, want %08x", wrap, size, zr.Check(), want)
				}
			case Zlib:
				if want := adler32.Checksum(data); zr.Check() != want {
					t.Errorf("%v/%d: check %08x, want %08x", wrap, size, zr.Check(), want)
				}
			}
		}
	}
}

func TestReaderOneByteSource(t *testing.T) {
	data := testData(5000)
	stream := compress(t, Gzip, data)

	zr := NewReader(iotest.OneByteReader(bytes.NewReader(stream)), Gzip)
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("output differs")
	}
}

func TestReaderSmallDestination(t *testing.T) {
	data := testData(5000)
	stream := compress(t, Zlib, data)

	zr := NewReader(bytes.NewReader(stream), Zlib)
	var got []byte
	buf := make([]byte, 1)
	for {
		n, err := zr.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if !bytes.Equal(got, data) {
		t.Fatal("output differs")
	}
}

func TestReaderTruncated(t *testing.T) {
	stream := compress(t, Gzip, testData(1000))
	zr := NewReader(bytes.NewReader(stream[:len(stream)-5]), Gzip)
	_, err := io.ReadAll(zr)
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
	// the error is sticky
	if _, err := zr.Read(make([]byte, 1)); err != io.ErrUnexpectedEOF {
		t.Fatalf("second read err = %v", err)
	}
}

func TestReaderCorrupt(t *testing.T) {
	stream := compress(t, Gzip, testData(1000))
	stream[len(stream)-6] ^= 0xff // damage the CRC trailer
	zr := NewReader(bytes.NewReader(stream), Gzip)
	_, err := io.ReadAll(zr)
	var de *DataError
	if !errors.As(err, &de) || de.Kind != TrailerMismatch {
		t.Fatalf("err = %v, want trailer mismatch", err)
	}
	if zr.Close() == nil {
		t.Fatal("Close() = nil after corrupt stream")
	}
}

func TestReaderReset(t *testing.T) {
	first := testData(300)
	second := testData(700)

	zr := NewReader(bytes.NewReader(compress(t, Gzip, first)), Gzip)
	got, err := io.ReadAll(zr)
	if err != nil || !bytes.Equal(got, first) {
		t.Fatalf("first stream: err %v", err)
	}

	zr.Reset(bytes.NewReader(compress(t, Gzip, second)))
	got, err = io.ReadAll(zr)
	if err != nil || !bytes.Equal(got, second) {
		t.Fatalf("second stream: err %v", err)
	}
}

func TestReaderGzipHeader(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Name = "data.bin"
	zw.Write([]byte("payload"))
	zw.Close()

	zr := NewReader(&buf, Gzip)
	if _, err := io.ReadAll(zr); err != nil {
		t.Fatalf("read: %v", err)
	}
	hdr, ok := zr.GzipHeader()
	if !ok || hdr.Name != "data.bin" {
		t.Fatalf("header = %+v, ok = %v", hdr, ok)
	}
}
