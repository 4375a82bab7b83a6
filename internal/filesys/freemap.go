// Package filesys implements the hierarchical on-disk file system: a
// persistent bitmap of free sectors, single-sector file headers chained
// for large files, fixed-table directories stored as regular files, and
// positioned open-file handles over the raw sector disk.
package filesys

import (
	"fmt"
	"io"

	"github.com/pelicanproject/go-pelican/internal/machine"
)

// FreeMap is the in-memory mirror of the free-sector bitmap. Bit i is set
// iff sector i is allocated, LSB-first within each byte. The bitmap itself
// persists as a regular file whose header lives at FreeMapSector.
type FreeMap struct {
	bits    []byte
	numBits int
}

// NewFreeMap creates a bitmap with every sector free.
func NewFreeMap() *FreeMap {
	return &FreeMap{
		bits:    make([]byte, FreeMapFileSize),
		numBits: machine.NumSectors,
	}
}

// Mark sets the bit for sector n.
func (m *FreeMap) Mark(n int) {
	m.checkBit(n)
	m.bits[n/8] |= 1 << (n % 8)
}

// Clear frees the bit for sector n.
func (m *FreeMap) Clear(n int) {
	m.checkBit(n)
	m.bits[n/8] &^= 1 << (n % 8)
}

// Test reports whether sector n is allocated.
func (m *FreeMap) Test(n int) bool {
	m.checkBit(n)
	return m.bits[n/8]&(1<<(n%8)) != 0
}

// FindAndSet allocates the lowest free sector and returns its number, or
// -1 if the disk is full.
func (m *FreeMap) FindAndSet() int {
	for n := 0; n < m.numBits; n++ {
		if !m.Test(n) {
			m.Mark(n)
			return n
		}
	}
	return -1
}

// NumClear returns the number of free sectors.
func (m *FreeMap) NumClear() int {
	free := 0
	for n := 0; n < m.numBits; n++ {
		if !m.Test(n) {
			free++
		}
	}
	return free
}

// Snapshot returns a copy of the raw bitmap bytes.
func (m *FreeMap) Snapshot() []byte {
	out := make([]byte, len(m.bits))
	copy(out, m.bits)
	return out
}

// FetchFrom reads the bitmap contents from its backing file.
func (m *FreeMap) FetchFrom(file *OpenFile) {
	file.ReadAt(m.bits, 0)
}

// WriteBack flushes the bitmap contents to its backing file.
func (m *FreeMap) WriteBack(file *OpenFile) {
	file.WriteAt(m.bits, 0)
}

// Dump writes the allocated sector numbers, for debugging.
func (m *FreeMap) Dump(w io.Writer) {
	fmt.Fprintf(w, "Free map (%d free):", m.NumClear())
	for n := 0; n < m.numBits; n++ {
		if m.Test(n) {
			fmt.Fprintf(w, " %d", n)
		}
	}
	fmt.Fprintln(w)
}

func (m *FreeMap) checkBit(n int) {
	if n < 0 || n >= m.numBits {
		panic(fmt.Sprintf("free map: sector %d out of range [0, %d)", n, m.numBits))
	}
}
