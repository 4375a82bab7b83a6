package filesys

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/pelicanproject/go-pelican/internal/machine"
)

const (
	// FileNameMaxLen is the longest stored entry name. Leaf tokens carry
	// their leading slash, so a file called "x" occupies two bytes.
	FileNameMaxLen = 9

	// DirectoryEntrySize is the fixed on-disk record size: int32 inUse,
	// int32 isDirectory, the name with its terminator, two pad bytes, and
	// the int32 header sector.
	DirectoryEntrySize = 4 + 4 + (FileNameMaxLen + 1) + 2 + 4
)

// DirectoryEntry locates one file or subdirectory: its name and the
// sector of its first file header.
type DirectoryEntry struct {
	InUse       bool
	IsDirectory bool
	Sector      int
	name        [FileNameMaxLen + 1]byte
}

// Name returns the stored entry name, leading slash included.
func (e *DirectoryEntry) Name() string {
	if i := bytes.IndexByte(e.name[:], 0); i >= 0 {
		return string(e.name[:i])
	}
	return string(e.name[:])
}

func (e *DirectoryEntry) setName(name string) {
	clear(e.name[:])
	copy(e.name[:FileNameMaxLen], name)
}

// nameEquals compares byte-wise up to the fixed maximum name length.
func (e *DirectoryEntry) nameEquals(name string) bool {
	if len(name) > FileNameMaxLen {
		name = name[:FileNameMaxLen]
	}
	return e.Name() == name
}

// Directory is the in-memory mirror of a directory file: a fixed-length
// table of entries. The root's file header lives at RootDirectorySector;
// subdirectories are regular files of identical layout.
type Directory struct {
	table []DirectoryEntry
}

// NewDirectory creates an empty directory with size entry slots.
func NewDirectory(size int) *Directory {
	return &Directory{table: make([]DirectoryEntry, size)}
}

// Size returns the number of entry slots.
func (d *Directory) Size() int {
	return len(d.table)
}

// Entry returns a copy of slot i.
func (d *Directory) Entry(i int) DirectoryEntry {
	return d.table[i]
}

// FetchFrom reads the directory contents from its backing file.
func (d *Directory) FetchFrom(file *OpenFile) {
	buf := make([]byte, len(d.table)*DirectoryEntrySize)
	file.ReadAt(buf, 0)
	for i := range d.table {
		d.table[i].unmarshal(buf[i*DirectoryEntrySize:])
	}
}

// WriteBack flushes the directory contents to its backing file.
func (d *Directory) WriteBack(file *OpenFile) {
	buf := make([]byte, len(d.table)*DirectoryEntrySize)
	for i := range d.table {
		d.table[i].marshal(buf[i*DirectoryEntrySize:])
	}
	file.WriteAt(buf, 0)
}

func (d *Directory) findIndex(name string) int {
	for i := range d.table {
		if d.table[i].InUse && d.table[i].nameEquals(name) {
			return i
		}
	}
	return -1
}

// Find looks up name and returns the sector of its file header and
// whether the entry is a subdirectory. The sector is -1 if the name is
// not present.
func (d *Directory) Find(name string) (sector int, isDirectory bool) {
	i := d.findIndex(name)
	if i == -1 {
		return -1, false
	}
	return d.table[i].Sector, d.table[i].IsDirectory
}

// FindPath resolves an absolute path against this directory, recursing
// through subdirectories, and returns the sector of the final component's
// file header, or -1. The path "/" resolves to rootSector.
func (d *Directory) FindPath(disk *machine.Disk, name string, rootSector int) int {
	if name == "" || name[0] != '/' {
		panic(fmt.Sprintf("directory: path %q is not absolute", name))
	}
	if len(name) == 1 {
		return rootSector
	}

	component := name
	rest := ""
	if i := strings.IndexByte(name[1:], '/'); i >= 0 {
		component = name[:i+1]
		rest = name[i+1:]
	}

	for i := range d.table {
		e := &d.table[i]
		if !e.InUse || !e.nameEquals(component) {
			continue
		}
		if rest == "" {
			return e.Sector
		}
		sub := NewDirectory(len(d.table))
		sub.FetchFrom(NewOpenFile(disk, e.Sector))
		return sub.FindPath(disk, rest, rootSector)
	}
	return -1
}

// Add records a new entry. It fails if the name is already present or
// every slot is in use.
func (d *Directory) Add(name string, sector int, isDirectory bool) bool {
	if d.findIndex(name) != -1 {
		return false
	}
	for i := range d.table {
		if d.table[i].InUse {
			continue
		}
		d.table[i].InUse = true
		d.table[i].IsDirectory = isDirectory
		d.table[i].Sector = sector
		d.table[i].setName(name)
		return true
	}
	return false
}

// Remove deletes the entry for name, reporting whether it was present.
func (d *Directory) Remove(name string) bool {
	i := d.findIndex(name)
	if i == -1 {
		return false
	}
	d.table[i].InUse = false
	return true
}

// List prints the in-use entry names, one per line.
func (d *Directory) List(w io.Writer) {
	for i := range d.table {
		if d.table[i].InUse {
			fmt.Fprintln(w, d.table[i].Name())
		}
	}
}

// ListRecursive prints the in-use entry names indented by depth,
// descending into subdirectories.
func (d *Directory) ListRecursive(w io.Writer, disk *machine.Disk, depth int) {
	indent := strings.Repeat("    ", depth)
	for i := range d.table {
		e := &d.table[i]
		if !e.InUse {
			continue
		}
		fmt.Fprintf(w, "%s%s\n", indent, e.Name())
		if e.IsDirectory {
			sub := NewDirectory(len(d.table))
			sub.FetchFrom(NewOpenFile(disk, e.Sector))
			sub.ListRecursive(w, disk, depth+1)
		}
	}
}

// Dump prints every in-use entry with its header location, for debugging.
func (d *Directory) Dump(w io.Writer, disk *machine.Disk) {
	fmt.Fprintln(w, "Directory contents:")
	for i := range d.table {
		e := &d.table[i]
		if !e.InUse {
			continue
		}
		fmt.Fprintf(w, "Name: %s, Sector: %d\n", e.Name(), e.Sector)
		hdr := NewFileHeader()
		hdr.FetchFrom(disk, e.Sector)
		hdr.Dump(w, disk)
	}
}

func (e *DirectoryEntry) marshal(buf []byte) {
	endian := binary.LittleEndian
	endian.PutUint32(buf[0:4], boolToUint32(e.InUse))
	endian.PutUint32(buf[4:8], boolToUint32(e.IsDirectory))
	copy(buf[8:8+FileNameMaxLen+1], e.name[:])
	buf[18] = 0
	buf[19] = 0
	endian.PutUint32(buf[20:24], uint32(e.Sector))
}

func (e *DirectoryEntry) unmarshal(buf []byte) {
	endian := binary.LittleEndian
	e.InUse = endian.Uint32(buf[0:4]) != 0
	e.IsDirectory = endian.Uint32(buf[4:8]) != 0
	copy(e.name[:], buf[8:8+FileNameMaxLen+1])
	e.Sector = int(int32(endian.Uint32(buf[20:24])))
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
