package filesys

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pelicanproject/go-pelican/internal/machine"
)

const (
	// FreeMapSector holds the header of the free-map file; its well-known
	// position is what makes the disk self-describing on boot.
	FreeMapSector = 0

	// RootDirectorySector holds the header of the root directory file.
	RootDirectorySector = 1

	// FreeMapFileSize is one bit per sector, packed.
	FreeMapFileSize = machine.NumSectors / 8

	// NumDirEntries is the fixed slot count of every directory.
	NumDirEntries = 64

	// DirectoryFileSize is the byte size of every directory file.
	DirectoryFileSize = NumDirEntries * DirectoryEntrySize

	// MaxOpenFiles bounds the descriptor table; valid ids are
	// 1..MaxOpenFiles.
	MaxOpenFiles = 20
)

// RootDirectoryName is the path of the root directory.
const RootDirectoryName = "/"

// FileSystem maps textual paths to files on the sector disk. The free-map
// and root-directory files stay open for the file system's lifetime; any
// operation that succeeds writes its changes straight back to disk, and
// any operation that fails simply discards its in-memory copies, so the
// disk never sees a partial commit.
type FileSystem struct {
	disk *machine.Disk

	freeMapFile   *OpenFile
	directoryFile *OpenFile

	descriptors [MaxOpenFiles + 1]*OpenFile
	fdCursor    int
}

// New attaches a file system to disk. With format set, the disk is laid
// out from scratch: the free map with sectors 0 and 1 marked, headers for
// the free-map and root-directory files, and an empty root directory.
func New(disk *machine.Disk, format bool) (*FileSystem, error) {
	fs := &FileSystem{disk: disk}

	if format {
		slog.Debug("formatting file system", "sectors", machine.NumSectors)

		freeMap := NewFreeMap()
		directory := NewDirectory(NumDirEntries)
		mapHdr := NewFileHeader()
		dirHdr := NewFileHeader()

		// The two header sectors go first so nothing else grabs them.
		freeMap.Mark(FreeMapSector)
		freeMap.Mark(RootDirectorySector)

		if !mapHdr.Allocate(freeMap, FreeMapFileSize) {
			return nil, fmt.Errorf("format: no space for the free-map file")
		}
		if !dirHdr.Allocate(freeMap, DirectoryFileSize) {
			return nil, fmt.Errorf("format: no space for the root directory")
		}

		// Headers must land on disk before the files can be opened: the
		// sectors still hold garbage until then.
		mapHdr.WriteBack(disk, FreeMapSector)
		dirHdr.WriteBack(disk, RootDirectorySector)

		fs.freeMapFile = NewOpenFile(disk, FreeMapSector)
		fs.directoryFile = NewOpenFile(disk, RootDirectorySector)

		freeMap.WriteBack(fs.freeMapFile)
		directory.WriteBack(fs.directoryFile)
	} else {
		fs.freeMapFile = NewOpenFile(disk, FreeMapSector)
		fs.directoryFile = NewOpenFile(disk, RootDirectorySector)
	}

	return fs, nil
}

// Create makes a new file (or directory) at the given absolute path with
// room for initialSize bytes. Directories are forced to the canonical
// directory file size. It fails when the parent cannot be resolved, the
// name already exists, no header sector or parent slot is free, or the
// disk lacks space for the data blocks; a failed create leaves the disk
// untouched.
func (fs *FileSystem) Create(path string, initialSize int, isDirectory bool) bool {
	if isDirectory {
		initialSize = DirectoryFileSize
	}
	slog.Debug("creating file", "path", path, "size", initialSize, "directory", isDirectory)

	parentSector := fs.resolveParent(path)
	if parentSector < 0 {
		return false
	}

	parentFile := NewOpenFile(fs.disk, parentSector)
	parent := NewDirectory(NumDirEntries)
	parent.FetchFrom(parentFile)

	leaf := LeafName(path)
	if sector, _ := parent.Find(leaf); sector != -1 {
		return false // already present
	}

	freeMap := NewFreeMap()
	freeMap.FetchFrom(fs.freeMapFile)

	sector := freeMap.FindAndSet() // the new file's header sector
	if sector == -1 {
		return false
	}
	if !parent.Add(leaf, sector, isDirectory) {
		return false
	}

	hdr := NewFileHeader()
	if !hdr.Allocate(freeMap, initialSize) {
		return false
	}

	// Everything fit; flush the new header, the parent and the free map.
	hdr.WriteBack(fs.disk, sector)
	parent.WriteBack(parentFile)
	freeMap.WriteBack(fs.freeMapFile)

	if isDirectory {
		// A fresh subdirectory starts as an empty table on disk.
		newDir := NewDirectory(NumDirEntries)
		newDir.WriteBack(NewOpenFile(fs.disk, sector))
	}
	return true
}

// Open returns a fresh handle on the file at path, or nil if the path
// does not resolve. Directories open like any other file, but the root
// has no entry in any directory, so Open("/") returns nil.
func (fs *FileSystem) Open(path string) *OpenFile {
	slog.Debug("opening file", "path", path)

	parentSector := fs.resolveParent(path)
	if parentSector < 0 {
		return nil
	}

	parent := NewDirectory(NumDirEntries)
	parent.FetchFrom(NewOpenFile(fs.disk, parentSector))

	sector, _ := parent.Find(LeafName(path))
	if sector < 0 {
		return nil
	}
	return NewOpenFile(fs.disk, sector)
}

// Remove deletes the file at path: every data block reachable through its
// header chain is freed, then each header sector in the chain, then the
// parent's entry; the free map and parent flush on success. Removing a
// directory requires recursive, which first removes everything inside it.
func (fs *FileSystem) Remove(path string, recursive bool) bool {
	parentSector := fs.resolveParent(path)
	if parentSector < 0 {
		return false
	}

	parentFile := NewOpenFile(fs.disk, parentSector)
	parent := NewDirectory(NumDirEntries)
	parent.FetchFrom(parentFile)

	leaf := LeafName(path)
	sector, isDirectory := parent.Find(leaf)
	if sector == -1 || (isDirectory && !recursive) {
		return false
	}

	if isDirectory && recursive {
		dir := NewDirectory(NumDirEntries)
		dir.FetchFrom(NewOpenFile(fs.disk, sector))
		for i := 0; i < dir.Size(); i++ {
			if ent := dir.Entry(i); ent.InUse {
				fs.Remove(path+ent.Name(), recursive)
			}
		}
	}

	hdr := NewFileHeader()
	hdr.FetchFrom(fs.disk, sector)

	freeMap := NewFreeMap()
	freeMap.FetchFrom(fs.freeMapFile)

	hdr.Deallocate(freeMap)

	// The chain's own header sectors are freed here.
	hdrSector := sector
	for cur := hdr; cur != nil; cur = cur.Next() {
		freeMap.Clear(hdrSector)
		hdrSector = cur.NextSector()
	}

	if !parent.Remove(leaf) {
		panic(fmt.Sprintf("remove: entry %q vanished from its directory", leaf))
	}

	freeMap.WriteBack(fs.freeMapFile)
	parent.WriteBack(parentFile)
	return true
}

// List prints the names in the directory at dirPath; the recursive form
// descends into subdirectories, indenting by depth.
func (fs *FileSystem) List(w io.Writer, dirPath string, recursive bool) {
	root := NewDirectory(NumDirEntries)
	root.FetchFrom(fs.directoryFile)

	if dirPath == RootDirectoryName || dirPath == "" {
		if recursive {
			root.ListRecursive(w, fs.disk, 0)
		} else {
			root.List(w)
		}
		return
	}

	sector := root.FindPath(fs.disk, dirPath, RootDirectorySector)
	if sector < 0 {
		return
	}
	dir := NewDirectory(NumDirEntries)
	dir.FetchFrom(NewOpenFile(fs.disk, sector))
	if recursive {
		dir.ListRecursive(w, fs.disk, 0)
	} else {
		dir.List(w)
	}
}

// Dump prints the free map, the root directory and every reachable file
// header, for debugging.
func (fs *FileSystem) Dump(w io.Writer) {
	hdr := NewFileHeader()

	fmt.Fprintln(w, "Free map file header:")
	hdr.FetchFrom(fs.disk, FreeMapSector)
	hdr.Dump(w, fs.disk)

	fmt.Fprintln(w, "Root directory file header:")
	hdr.FetchFrom(fs.disk, RootDirectorySector)
	hdr.Dump(w, fs.disk)

	freeMap := NewFreeMap()
	freeMap.FetchFrom(fs.freeMapFile)
	freeMap.Dump(w)

	directory := NewDirectory(NumDirEntries)
	directory.FetchFrom(fs.directoryFile)
	directory.Dump(w, fs.disk)
}

// PutFileDescriptor places the handle at the next free descriptor slot,
// scanning from a rotating cursor, and returns its id. It returns 0 only
// when every slot is occupied.
func (fs *FileSystem) PutFileDescriptor(of *OpenFile) int {
	for attempts := 0; attempts < MaxOpenFiles; attempts++ {
		fs.fdCursor = fs.fdCursor%MaxOpenFiles + 1
		if fs.descriptors[fs.fdCursor] == nil {
			fs.descriptors[fs.fdCursor] = of
			return fs.fdCursor
		}
	}
	return 0
}

// Read reads up to len(buf) bytes from descriptor id, returning the count
// or -1 on a bad descriptor.
func (fs *FileSystem) Read(buf []byte, id int) int {
	of := fs.descriptor(id)
	if of == nil {
		return -1
	}
	return of.Read(buf)
}

// Write writes up to len(buf) bytes to descriptor id, returning the count
// or -1 on a bad descriptor.
func (fs *FileSystem) Write(buf []byte, id int) int {
	of := fs.descriptor(id)
	if of == nil {
		return -1
	}
	return of.Write(buf)
}

// Close releases descriptor id, returning 1, or -1 on a bad descriptor.
func (fs *FileSystem) Close(id int) int {
	if fs.descriptor(id) == nil {
		return -1
	}
	fs.descriptors[id] = nil
	return 1
}

func (fs *FileSystem) descriptor(id int) *OpenFile {
	if id <= 0 || id > MaxOpenFiles {
		return nil
	}
	return fs.descriptors[id]
}

// resolveParent resolves the directory containing path's final component
// and returns its header sector, or -1.
func (fs *FileSystem) resolveParent(path string) int {
	if path == "" || path[0] != '/' {
		return -1
	}
	root := NewDirectory(NumDirEntries)
	root.FetchFrom(fs.directoryFile)
	return root.FindPath(fs.disk, BaseName(path), RootDirectorySector)
}

// BaseName returns everything before the final slash, or "/" when the
// final slash is the leading one.
func BaseName(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return RootDirectoryName
	}
	return path[:i]
}

// LeafName returns the final component including its leading slash, the
// token form the directory table stores.
func LeafName(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path
	}
	return path[i:]
}
