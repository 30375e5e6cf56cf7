package memory

import (
	"encoding/binary"
	"fmt"
)

const pageSize = 65536

// Slice is a heap backed by a Go byte slice. It grows by whole pages.
type Slice struct {
	data     []byte
	maxPages uint32
}

// NewSlice creates a slice heap with initial pages and a page limit (0 = 65536).
func NewSlice(initialPages, maxPages uint32) *Slice {
	if maxPages == 0 {
		maxPages = 65536
	}
	return &Slice{
		data:     make([]byte, int(initialPages)*pageSize),
		maxPages: maxPages,
	}
}

func (s *Slice) Size() uint32 {
	return uint32(len(s.data))
}

// Grow adds delta pages and returns the previous page count.
func (s *Slice) Grow(deltaPages uint32) (uint32, bool) {
	prev := uint32(len(s.data) / pageSize)
	if uint64(prev)+uint64(deltaPages) > uint64(s.maxPages) {
		return prev, false
	}
	grown := make([]byte, int(prev+deltaPages)*pageSize)
	copy(grown, s.data)
	s.data = grown
	return prev, true
}

func (s *Slice) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(s.data)) {
		return fmt.Errorf("memory access out of bounds: offset=%d, length=%d", offset, length)
	}
	return nil
}

// Read returns a view into the heap. The view is invalidated by Grow.
func (s *Slice) Read(offset uint32, length uint32) ([]byte, error) {
	if err := s.check(offset, length); err != nil {
		return nil, err
	}
	return s.data[offset : offset+length], nil
}

func (s *Slice) Write(offset uint32, data []byte) error {
	if err := s.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(s.data[offset:], data)
	return nil
}

func (s *Slice) ReadU8(offset uint32) (uint8, error) {
	if err := s.check(offset, 1); err != nil {
		return 0, err
	}
	return s.data[offset], nil
}

func (s *Slice) ReadU16(offset uint32) (uint16, error) {
	if err := s.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(s.data[offset:]), nil
}

func (s *Slice) ReadU32(offset uint32) (uint32, error) {
	if err := s.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(s.data[offset:]), nil
}

func (s *Slice) ReadU64(offset uint32) (uint64, error) {
	if err := s.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(s.data[offset:]), nil
}

func (s *Slice) WriteU8(offset uint32, value uint8) error {
	if err := s.check(offset, 1); err != nil {
		return err
	}
	s.data[offset] = value
	return nil
}

func (s *Slice) WriteU16(offset uint32, value uint16) error {
	if err := s.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(s.data[offset:], value)
	return nil
}

func (s *Slice) WriteU32(offset uint32, value uint32) error {
	if err := s.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(s.data[offset:], value)
	return nil
}

func (s *Slice) WriteU64(offset uint32, value uint64) error {
	if err := s.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(s.data[offset:], value)
	return nil
}
