package filesys

import (
	"github.com/pelicanproject/go-pelican/internal/machine"
)

// OpenFile is a positioned handle over one file's data blocks. Each open
// produces a fresh handle with its own header copy and seek position;
// handles are never shared.
type OpenFile struct {
	disk    *machine.Disk
	hdr     *FileHeader
	sector  int
	seekPos int
}

// NewOpenFile opens the file whose header sits at sector, reading the
// header chain into memory and placing the seek position at 0.
func NewOpenFile(disk *machine.Disk, sector int) *OpenFile {
	hdr := NewFileHeader()
	hdr.FetchFrom(disk, sector)
	return &OpenFile{disk: disk, hdr: hdr, sector: sector}
}

// Sector returns the sector of the file's first header.
func (f *OpenFile) Sector() int {
	return f.sector
}

// Header returns the in-memory header copy.
func (f *OpenFile) Header() *FileHeader {
	return f.hdr
}

// Length returns the file size in bytes.
func (f *OpenFile) Length() int {
	return f.hdr.FileLength()
}

// Seek moves the file position.
func (f *OpenFile) Seek(position int) {
	f.seekPos = position
}

// Read reads up to len(buf) bytes from the current position, advancing it
// by the number of bytes actually read.
func (f *OpenFile) Read(buf []byte) int {
	n := f.ReadAt(buf, f.seekPos)
	f.seekPos += n
	return n
}

// Write writes up to len(buf) bytes at the current position, advancing it
// by the number of bytes actually written.
func (f *OpenFile) Write(buf []byte) int {
	n := f.WriteAt(buf, f.seekPos)
	f.seekPos += n
	return n
}

// ReadAt reads up to len(buf) bytes starting at position without touching
// the seek position. Reads clamp at end of file; the return value is the
// byte count actually copied. The transfer goes a sector at a time through
// a scratch buffer.
func (f *OpenFile) ReadAt(buf []byte, position int) int {
	fileLength := f.hdr.FileLength()
	numBytes := len(buf)
	if numBytes <= 0 || position < 0 || position >= fileLength {
		return 0
	}
	if position+numBytes > fileLength {
		numBytes = fileLength - position
	}

	scratch := make([]byte, machine.SectorSize)
	copied := 0
	for copied < numBytes {
		offset := position + copied
		inSector := offset % machine.SectorSize

		span := machine.SectorSize - inSector
		if span > numBytes-copied {
			span = numBytes - copied
		}

		f.disk.ReadSector(f.hdr.ByteToSector(offset), scratch)
		copy(buf[copied:copied+span], scratch[inSector:inSector+span])
		copied += span
	}
	return numBytes
}

// WriteAt writes up to len(buf) bytes starting at position without
// touching the seek position. The file size is fixed at creation, so
// writes clamp at end of file; partially covered sectors are read first so
// their untouched bytes survive.
func (f *OpenFile) WriteAt(buf []byte, position int) int {
	fileLength := f.hdr.FileLength()
	numBytes := len(buf)
	if numBytes <= 0 || position < 0 || position >= fileLength {
		return 0
	}
	if position+numBytes > fileLength {
		numBytes = fileLength - position
	}

	scratch := make([]byte, machine.SectorSize)
	written := 0
	for written < numBytes {
		offset := position + written
		inSector := offset % machine.SectorSize

		span := machine.SectorSize - inSector
		if span > numBytes-written {
			span = numBytes - written
		}

		sector := f.hdr.ByteToSector(offset)
		if span < machine.SectorSize {
			f.disk.ReadSector(sector, scratch)
		}
		copy(scratch[inSector:inSector+span], buf[written:written+span])
		f.disk.WriteSector(sector, scratch)
		written += span
	}
	return numBytes
}
