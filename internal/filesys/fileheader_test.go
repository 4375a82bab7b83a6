package filesys

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelicanproject/go-pelican/internal/machine"
)

func newTestDisk(t *testing.T) *machine.Disk {
	t.Helper()
	d, err := machine.CreateDisk(filepath.Join(t.TempDir(), "fs.img"), &machine.Stats{})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestAllocateSmallFile(t *testing.T) {
	m := NewFreeMap()
	h := NewFileHeader()

	require.True(t, h.Allocate(m, 300), "300 bytes should fit easily")
	assert.Equal(t, 300, h.FileLength())
	assert.Equal(t, 3, h.NumSectors(), "300 bytes need 3 sectors of 128")
	assert.Equal(t, -1, h.NextSector(), "no chain for a small file")
	assert.Equal(t, machine.NumSectors-3, m.NumClear())
}

func TestAllocateZeroByteFile(t *testing.T) {
	m := NewFreeMap()
	h := NewFileHeader()

	require.True(t, h.Allocate(m, 0))
	assert.Equal(t, 0, h.NumSectors())
	assert.Equal(t, machine.NumSectors, m.NumClear(), "an empty file grabs nothing")
}

func TestAllocateChainsPastDirectCapacity(t *testing.T) {
	m := NewFreeMap()
	h := NewFileHeader()

	// One byte beyond the direct capacity forces a second header.
	size := MaxHeaderBytes + 1
	require.True(t, h.Allocate(m, size))

	assert.Equal(t, size, h.FileLength())
	assert.Equal(t, NumDirect+1, h.NumSectors(), "total data sectors across the chain")
	require.NotNil(t, h.Next(), "a successor header should be linked")
	assert.NotEqual(t, -1, h.NextSector())
	assert.Equal(t, 1, h.Next().NumSectors())

	// NumDirect+1 data sectors plus one chained header sector.
	assert.Equal(t, machine.NumSectors-(NumDirect+2), m.NumClear())
}

func TestAllocateFailureLeavesFreeMapUntouched(t *testing.T) {
	m := NewFreeMap()
	// Leave only 5 sectors free.
	for i := 0; i < machine.NumSectors-5; i++ {
		m.Mark(i)
	}
	before := m.Snapshot()

	h := NewFileHeader()
	require.False(t, h.Allocate(m, 10*machine.SectorSize), "10 sectors cannot fit in 5")
	assert.Equal(t, before, m.Snapshot(), "a failed allocation must not leak sectors")
}

func TestAllocateAccountsForChainedHeaderSectors(t *testing.T) {
	m := NewFreeMap()
	// Exactly NumDirect+1 data sectors free: the chained header itself
	// has nowhere to go, so the allocation must fail cleanly.
	for i := 0; i < machine.NumSectors-(NumDirect+1); i++ {
		m.Mark(i)
	}
	before := m.Snapshot()

	h := NewFileHeader()
	require.False(t, h.Allocate(m, MaxHeaderBytes+1))
	assert.Equal(t, before, m.Snapshot())
}

func TestDeallocateFreesDataBlocks(t *testing.T) {
	m := NewFreeMap()
	h := NewFileHeader()
	require.True(t, h.Allocate(m, MaxHeaderBytes+machine.SectorSize))

	h.Deallocate(m)

	// Only the chained header sector remains allocated; the caller owns
	// header sectors.
	assert.Equal(t, machine.NumSectors-1, m.NumClear())
}

func TestByteToSectorWalksTheChain(t *testing.T) {
	m := NewFreeMap()
	h := NewFileHeader()
	require.True(t, h.Allocate(m, MaxHeaderBytes+2*machine.SectorSize))

	first := h.ByteToSector(0)
	assert.True(t, m.Test(first))

	// The byte just past the direct capacity lives in the successor's
	// first block.
	over := h.ByteToSector(MaxHeaderBytes)
	assert.True(t, m.Test(over))
	assert.NotEqual(t, first, over)

	assert.Panics(t, func() { h.ByteToSector(h.FileLength()) })
}

func TestHeaderChainPersistsAcrossDisk(t *testing.T) {
	disk := newTestDisk(t)

	m := NewFreeMap()
	m.Mark(0) // keep sector 0 for the header itself
	h := NewFileHeader()
	require.True(t, h.Allocate(m, MaxHeaderBytes+5))
	h.WriteBack(disk, 0)

	got := NewFileHeader()
	got.FetchFrom(disk, 0)

	assert.Equal(t, h.FileLength(), got.FileLength())
	assert.Equal(t, h.NumSectors(), got.NumSectors())
	assert.Equal(t, h.NextSector(), got.NextSector())
	require.NotNil(t, got.Next())
	assert.Equal(t, h.Next().NumSectors(), got.Next().NumSectors())
	assert.Equal(t, h.ByteToSector(MaxHeaderBytes), got.ByteToSector(MaxHeaderBytes))
}
