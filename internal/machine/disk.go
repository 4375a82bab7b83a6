package machine

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// diskMagic marks an image file as a formatted pelican disk. It is stored
// little-endian in the first four bytes of the image, followed by the
// 16-byte identity UUID; sector data starts immediately after.
const diskMagic = 0x456789ab

const diskHeaderSize = 4 + 16

// Disk simulates a synchronous sector-addressed disk device on top of a
// host image file. ReadSector and WriteSector never fail from the kernel's
// point of view: a bad sector number or a broken image file is a fatal
// condition, not an error the kernel can handle.
type Disk struct {
	file     *os.File
	identity uuid.UUID
	stats    *Stats
}

// CreateDisk creates (or re-creates) an image file at path, stamps a fresh
// identity into its header and zeroes every sector.
func CreateDisk(path string, stats *Stats) (*Disk, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk image: %w", err)
	}

	identity := uuid.New()

	header := make([]byte, diskHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], diskMagic)
	copy(header[4:20], identity[:])
	if _, err := file.WriteAt(header, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write disk header: %w", err)
	}

	// Zero the sector area so a fresh disk reads back deterministically.
	zeros := make([]byte, DiskSize)
	if _, err := file.WriteAt(zeros, diskHeaderSize); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to zero disk image: %w", err)
	}

	return &Disk{file: file, identity: identity, stats: stats}, nil
}

// OpenDisk opens an existing image file and validates its header.
func OpenDisk(path string, stats *Stats) (*Disk, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk image: %w", err)
	}

	header := make([]byte, diskHeaderSize)
	if _, err := file.ReadAt(header, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read disk header: %w", err)
	}

	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != diskMagic {
		file.Close()
		return nil, fmt.Errorf("not a pelican disk image: magic %#x", magic)
	}

	d := &Disk{file: file, stats: stats}
	copy(d.identity[:], header[4:20])
	return d, nil
}

// Identity returns the UUID stamped into the image at creation time.
func (d *Disk) Identity() uuid.UUID {
	return d.identity
}

// ReadSector reads sector n into buf. buf must hold at least SectorSize
// bytes.
func (d *Disk) ReadSector(n int, buf []byte) {
	d.checkRequest(n, buf)
	if _, err := d.file.ReadAt(buf[:SectorSize], sectorOffset(n)); err != nil {
		panic(fmt.Sprintf("disk: read of sector %d failed: %v", n, err))
	}
	if d.stats != nil {
		d.stats.DiskReads++
	}
}

// WriteSector writes the first SectorSize bytes of buf to sector n.
func (d *Disk) WriteSector(n int, buf []byte) {
	d.checkRequest(n, buf)
	if _, err := d.file.WriteAt(buf[:SectorSize], sectorOffset(n)); err != nil {
		panic(fmt.Sprintf("disk: write of sector %d failed: %v", n, err))
	}
	if d.stats != nil {
		d.stats.DiskWrites++
	}
}

// Close releases the underlying image file.
func (d *Disk) Close() error {
	return d.file.Close()
}

func (d *Disk) checkRequest(n int, buf []byte) {
	if n < 0 || n >= NumSectors {
		panic(fmt.Sprintf("disk: sector %d out of range [0, %d)", n, NumSectors))
	}
	if len(buf) < SectorSize {
		panic(fmt.Sprintf("disk: buffer of %d bytes is smaller than a sector", len(buf)))
	}
}

func sectorOffset(n int) int64 {
	return diskHeaderSize + int64(n)*SectorSize
}
