// Package settings persists the controller configuration as one
// versioned byte region. Each behavioral sub-component owns a
// contiguous sub-range and serializes its own layout through the cursor
// primitives; the store only gates the all-or-nothing version check.
// Save and load must walk the components in the same repository-wide
// order or the cursor misaligns silently.
package settings

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// DataVersion is bumped whenever any sub-component changes its layout.
// A stored region with a different version byte is rewritten wholesale
// from compiled-in defaults before anything reads it.
const DataVersion = 1

var magic = [4]byte{'C', 'O', 'O', 'P'}

const headerSize = 5

// Store is a cursor-based reader/writer over the persisted region.
type Store struct {
	path string
	buf  []byte
	pos  int
}

func NewStore(path string) *Store {
	s := &Store{path: path}
	s.Reset()
	return s
}

// Load reads the persisted region from disk. It fails when the file is
// missing, truncated or the magic tag does not match; the caller
// responds by writing defaults.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if len(data) < headerSize || !bytes.Equal(data[:4], magic[:]) {
		return fmt.Errorf("settings: bad magic tag")
	}
	s.buf = data
	s.pos = headerSize
	return nil
}

// StoredVersion returns the version byte of the loaded region, or -1
// when no region is loaded.
func (s *Store) StoredVersion() int {
	if len(s.buf) < headerSize {
		return -1
	}
	return int(s.buf[4])
}

// Rewind moves the cursor to the first byte after the header.
func (s *Store) Rewind() {
	s.pos = headerSize
}

// Reset truncates the region to a fresh header carrying DataVersion so
// a full write pass can rebuild it.
func (s *Store) Reset() {
	s.buf = append(s.buf[:0], magic[:]...)
	s.buf = append(s.buf, byte(DataVersion))
	s.pos = headerSize
}

// Flush writes the region to disk, replacing the previous file only
// after the new one is complete.
func (s *Store) Flush() error {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, s.buf, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) put(p []byte) {
	need := s.pos + len(p)
	for len(s.buf) < need {
		s.buf = append(s.buf, 0)
	}
	copy(s.buf[s.pos:], p)
	s.pos = need
}

func (s *Store) take(n int) ([]byte, error) {
	if s.pos+n > len(s.buf) {
		return nil, fmt.Errorf("settings: read past end of region")
	}
	p := s.buf[s.pos : s.pos+n]
	s.pos += n
	return p, nil
}

func (s *Store) PutUint8(v uint8) {
	s.put([]byte{v})
}

func (s *Store) PutUint16(v uint16) {
	p := make([]byte, 2)
	binary.BigEndian.PutUint16(p, v)
	s.put(p)
}

func (s *Store) PutBool(v bool) {
	if v {
		s.PutUint8(1)
		return
	}
	s.PutUint8(0)
}

func (s *Store) PutFloat64(v float64) {
	p := make([]byte, 8)
	binary.BigEndian.PutUint64(p, math.Float64bits(v))
	s.put(p)
}

func (s *Store) Uint8() (uint8, error) {
	p, err := s.take(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (s *Store) Uint16() (uint16, error) {
	p, err := s.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (s *Store) Bool() (bool, error) {
	v, err := s.Uint8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (s *Store) Float64() (float64, error) {
	p, err := s.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(p)), nil
}
