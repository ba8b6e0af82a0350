package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Binary blob format, little endian: dimensions (uint32), count (uint32), then
// count*dimensions float32 values in append order. Positions are implicit: the i-th
// vector in the blob lives at position i, which is what keeps persisted metadata
// positions valid across restarts.

// Encode writes the snapshot to w.
func (s *Snapshot) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(s.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	buf := make([]byte, s.dimensions*4)
	for i, vec := range s.vectors {
		for j, v := range vec {
			binary.LittleEndian.PutUint32(buf[j*4:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write vector %d: %w", i, err)
		}
	}
	return nil
}

// Decode reads a blob written by Encode and returns the reconstructed index.
// The blob's dimension must equal dimensions. Truncated or malformed input is an
// error; callers treat any decode error as a corrupt artifact and start empty.
func Decode(r io.Reader, dimensions int) (*Index, error) {
	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != dimensions {
		return nil, fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, dim, dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	ix, err := New(dimensions)
	if err != nil {
		return nil, err
	}
	// The count comes from an untrusted header; cap the preallocation so a
	// corrupt blob cannot demand an enormous slice before reads start failing.
	capHint := int(count)
	if capHint > 4096 {
		capHint = 4096
	}
	ix.vectors = make([][]float32, 0, capHint)
	buf := make([]byte, dimensions*4)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vec := make([]float32, dimensions)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		ix.vectors = append(ix.vectors, vec)
	}
	return ix, nil
}
