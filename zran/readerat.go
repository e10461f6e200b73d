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

package zran

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
)

const (
	chunkShift = 16
	chunkSize  = 1 << chunkShift
)

// A ReaderAt presents the uncompressed contents of an indexed gzip file
// as an io.ReaderAt. Decoded chunks are kept in a TinyLFU cache so
// clustered reads do not pay for repeated checkpoint restores. It is
// safe for concurrent use.
type ReaderAt struct {
	ra  io.ReaderAt
	idx Index

	mu    sync.Mutex
	cache *tinylfu.T[int64, []byte]
}

// NewReaderAt wraps the compressed file ra, addressed through idx,
// caching up to chunks decoded 64 KiB chunks. A chunks value below 16
// is raised to 16.
func NewReaderAt(ra io.ReaderAt, idx Index, chunks int) *ReaderAt {
	if chunks < 16 {
		chunks = 16
	}
	return &ReaderAt{
		ra:    ra,
		idx:   idx,
		cache: tinylfu.New[int64, []byte](chunks, chunks*10, chunkHash),
	}
}

func chunkHash(k int64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(k))
	return xxhash.Sum64(b[:])
}

func (r *ReaderAt) chunk(base int64) ([]byte, error) {
	r.mu.Lock()
	blk, ok := r.cache.Get(base)
	r.mu.Unlock()
	if ok {
		return blk, nil
	}

	buf := make([]byte, chunkSize)
	n, err := Extract(r.ra, r.idx, base, buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	blk = buf[:n]
	r.mu.Lock()
	r.cache.Add(base, blk)
	r.mu.Unlock()
	return blk, nil
}

func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.EOF
	}
	total := 0
	for total < len(p) {
		pos := off + int64(total)
		base := pos &^ (chunkSize - 1)
		blk, err := r.chunk(base)
		if err != nil {
			return total, err
		}
		rel := int(pos - base)
		if rel >= len(blk) {
			return total, io.EOF
		}
		total += copy(p[total:], blk[rel:])
	}
	return total, nil
}
