package filesys

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pelicanproject/go-pelican/internal/machine"
)

const (
	// NumDirect is the number of direct data-block slots per header: a
	// header record is exactly one sector, and three int32 fields come
	// before the block array.
	NumDirect = (machine.SectorSize - 3*4) / 4

	// MaxHeaderBytes is the file capacity of a single header's direct
	// blocks; longer files chain additional headers.
	MaxHeaderBytes = NumDirect * machine.SectorSize

	// noSector marks an absent next-header link.
	noSector = -1
)

// FileHeader is the in-memory mirror of an inode: the file size, its data
// block locations, and a link to a successor header when the file exceeds
// the direct capacity. numBytes and numSectors in each header count the
// remainder of the file from that header on, so the first header describes
// the whole file.
type FileHeader struct {
	numBytes   int32
	numSectors int32
	nextSector int32
	blocks     [NumDirect]int32

	next *FileHeader
}

// NewFileHeader creates an empty header with no successor.
func NewFileHeader() *FileHeader {
	return &FileHeader{nextSector: noSector}
}

// FileLength returns the file size in bytes.
func (h *FileHeader) FileLength() int {
	return int(h.numBytes)
}

// NumSectors returns the number of data sectors the chain holds from this
// header on.
func (h *FileHeader) NumSectors() int {
	return int(h.numSectors)
}

// NextSector returns the sector of the successor header, or -1.
func (h *FileHeader) NextSector() int {
	return int(h.nextSector)
}

// Next returns the in-memory successor header, or nil.
func (h *FileHeader) Next() *FileHeader {
	return h.next
}

// Allocate grabs data blocks (and any chained header sectors) for a file
// of fileSize bytes. On failure the free map is left exactly as it was:
// the full requirement is computed up front, so nothing is grabbed unless
// everything fits.
func (h *FileHeader) Allocate(freeMap *FreeMap, fileSize int) bool {
	if fileSize < 0 {
		return false
	}

	dataSectors := divRoundUp(fileSize, machine.SectorSize)
	chainedHeaders := 0
	if dataSectors > NumDirect {
		chainedHeaders = (dataSectors - 1) / NumDirect
	}
	if freeMap.NumClear() < dataSectors+chainedHeaders {
		return false
	}

	h.grab(freeMap, fileSize)
	return true
}

// grab records the sectors for the remaining fileSize bytes into this
// header, chaining a successor for the overflow. The caller has verified
// that the free map holds enough sectors.
func (h *FileHeader) grab(freeMap *FreeMap, fileSize int) {
	h.numBytes = int32(fileSize)
	h.numSectors = int32(divRoundUp(fileSize, machine.SectorSize))

	direct := int(h.numSectors)
	if direct > NumDirect {
		direct = NumDirect
	}
	for i := 0; i < direct; i++ {
		h.blocks[i] = int32(freeMap.FindAndSet())
	}

	if int(h.numSectors) > NumDirect {
		h.nextSector = int32(freeMap.FindAndSet())
		h.next = NewFileHeader()
		h.next.grab(freeMap, fileSize-MaxHeaderBytes)
	} else {
		h.nextSector = noSector
		h.next = nil
	}
}

// Deallocate frees every data block reachable through the header chain.
// The header sectors themselves stay allocated; the caller walks the chain
// and clears them, since it also owns the first header's sector.
func (h *FileHeader) Deallocate(freeMap *FreeMap) {
	direct := int(h.numSectors)
	if direct > NumDirect {
		direct = NumDirect
	}
	for i := 0; i < direct; i++ {
		freeMap.Clear(int(h.blocks[i]))
	}
	if h.next != nil {
		h.next.Deallocate(freeMap)
	}
}

// ByteToSector returns the disk sector holding the byte at offset,
// walking the chain until the offset falls within a header's direct
// blocks.
func (h *FileHeader) ByteToSector(offset int) int {
	if offset < 0 || offset >= int(h.numBytes) {
		panic(fmt.Sprintf("file header: offset %d outside file of %d bytes", offset, h.numBytes))
	}
	if offset < MaxHeaderBytes {
		return int(h.blocks[offset/machine.SectorSize])
	}
	return h.next.ByteToSector(offset - MaxHeaderBytes)
}

// FetchFrom reads the header chain from disk starting at sector.
func (h *FileHeader) FetchFrom(disk *machine.Disk, sector int) {
	buf := make([]byte, machine.SectorSize)
	disk.ReadSector(sector, buf)
	h.unmarshal(buf)

	if h.nextSector != noSector {
		h.next = NewFileHeader()
		h.next.FetchFrom(disk, int(h.nextSector))
	} else {
		h.next = nil
	}
}

// WriteBack writes the header chain to disk starting at sector.
func (h *FileHeader) WriteBack(disk *machine.Disk, sector int) {
	buf := make([]byte, machine.SectorSize)
	h.marshal(buf)
	disk.WriteSector(sector, buf)

	if h.next != nil {
		h.next.WriteBack(disk, int(h.nextSector))
	}
}

// Dump writes the header chain layout and the file contents, for
// debugging.
func (h *FileHeader) Dump(w io.Writer, disk *machine.Disk) {
	fmt.Fprintf(w, "File header: %d bytes in %d sectors\n", h.numBytes, h.numSectors)
	for cur := h; cur != nil; cur = cur.next {
		direct := int(cur.numSectors)
		if direct > NumDirect {
			direct = NumDirect
		}
		fmt.Fprint(w, "Blocks:")
		for i := 0; i < direct; i++ {
			fmt.Fprintf(w, " %d", cur.blocks[i])
		}
		fmt.Fprintln(w)
	}
}

// The on-disk record is exactly one sector: int32 numBytes, int32
// numSectors, int32 nextHeaderSector, then the direct block array.
func (h *FileHeader) marshal(buf []byte) {
	endian := binary.LittleEndian
	endian.PutUint32(buf[0:4], uint32(h.numBytes))
	endian.PutUint32(buf[4:8], uint32(h.numSectors))
	endian.PutUint32(buf[8:12], uint32(h.nextSector))
	for i := 0; i < NumDirect; i++ {
		endian.PutUint32(buf[12+i*4:16+i*4], uint32(h.blocks[i]))
	}
}

func (h *FileHeader) unmarshal(buf []byte) {
	endian := binary.LittleEndian
	h.numBytes = int32(endian.Uint32(buf[0:4]))
	h.numSectors = int32(endian.Uint32(buf[4:8]))
	h.nextSector = int32(endian.Uint32(buf[8:12]))
	for i := 0; i < NumDirect; i++ {
		h.blocks[i] = int32(endian.Uint32(buf[12+i*4 : 16+i*4]))
	}
}

func divRoundUp(n, d int) int {
	return (n + d - 1) / d
}
