// Package verifier confirms that two same-sized files have identical content.
//
// # Overview
//
// The verifier is the only component that reads file content. It is called by
// the matcher after the screener has accepted a pair, so both files are known to
// have the same size.
//
//	pathA, pathB
//	    │
//	    ├──► open both (error → ErrRead, never "equal")
//	    │
//	    ├──► loop: read chunkSize from each
//	    │        ├──► lengths or bytes differ → not equal (stop)
//	    │        └──► both at EOF            → equal
//	    │
//	    └──► read error mid-stream → ErrRead
//
// # Why This Design?
//
//   - Byte comparison, not hashing: each pair is read exactly once and the loop
//     stops at the first differing chunk
//   - Buffers are allocated once per Verifier and reused across comparisons
//   - I/O failures surface as errors so the caller never merges unverified files
package verifier

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultChunkSize is the read size per file per iteration (1MiB).
const DefaultChunkSize = 1 << 20

// ErrRead wraps any open or read failure during comparison.
var ErrRead = errors.New("comparison read failed")

// Observer receives a notification for every comparison performed.
type Observer interface {
	ComparisonPerformed()
}

// Verifier compares file contents chunk by chunk.
// Not safe for concurrent use: buffers are shared between calls.
type Verifier struct {
	chunkSize int
	bufA      []byte
	bufB      []byte
	observer  Observer
}

// New creates a Verifier. chunkSize <= 0 selects DefaultChunkSize.
// observer may be nil.
func New(chunkSize int, observer Observer) *Verifier {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Verifier{
		chunkSize: chunkSize,
		bufA:      make([]byte, chunkSize),
		bufB:      make([]byte, chunkSize),
		observer:  observer,
	}
}

// Compare reports whether the files at pathA and pathB have identical content.
//
// The caller must have verified that both files have the same size; without
// that, a file that is a prefix of the other may be reported as equal when the
// shorter read ends exactly on a chunk boundary. A non-nil error wraps ErrRead
// and the boolean is always false.
func (v *Verifier) Compare(pathA, pathB string) (bool, error) {
	if v.observer != nil {
		v.observer.ComparisonPerformed()
	}

	fa, err := os.Open(pathA)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer func() { _ = fa.Close() }()

	fb, err := os.Open(pathB)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer func() { _ = fb.Close() }()

	return v.compareReaders(fa, fb)
}

// compareReaders compares two streams chunk by chunk.
func (v *Verifier) compareReaders(a, b io.Reader) (bool, error) {
	for {
		na, errA := readChunk(a, v.bufA)
		if errA != nil {
			return false, fmt.Errorf("%w: %w", ErrRead, errA)
		}
		nb, errB := readChunk(b, v.bufB)
		if errB != nil {
			return false, fmt.Errorf("%w: %w", ErrRead, errB)
		}

		if na != nb || !bytes.Equal(v.bufA[:na], v.bufB[:nb]) {
			return false, nil
		}
		if na == 0 {
			return true, nil // Both streams ended together
		}
	}
}

// readChunk fills buf as far as possible. A short count means end of stream;
// io.EOF and io.ErrUnexpectedEOF are not errors here.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}
