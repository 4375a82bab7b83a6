package filesys

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelicanproject/go-pelican/internal/machine"
)

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	fs, err := New(newTestDisk(t), true)
	require.NoError(t, err, "failed to format the file system")
	return fs
}

// currentFreeMap returns the bitmap as it stands on disk right now.
func currentFreeMap(fs *FileSystem) *FreeMap {
	m := NewFreeMap()
	m.FetchFrom(fs.freeMapFile)
	return m
}

func TestFormatLaysOutWellKnownSectors(t *testing.T) {
	fs := newTestFS(t)

	m := currentFreeMap(fs)
	assert.True(t, m.Test(FreeMapSector), "sector 0 holds the free-map header")
	assert.True(t, m.Test(RootDirectorySector), "sector 1 holds the root header")

	// Free map (1 sector) + root directory (12 sectors) + the two
	// header sectors.
	wantUsed := 2 + divRoundUp(FreeMapFileSize, machine.SectorSize) +
		divRoundUp(DirectoryFileSize, machine.SectorSize)
	assert.Equal(t, machine.NumSectors-wantUsed, m.NumClear())

	// The root directory starts empty.
	var out bytes.Buffer
	fs.List(&out, "/", false)
	assert.Empty(t, out.String())
}

func TestCreateOpenRoundTrip(t *testing.T) {
	fs := newTestFS(t)

	require.True(t, fs.Create("/hello", 100, false))

	of := fs.Open("/hello")
	require.NotNil(t, of, "a created file must open")
	assert.Equal(t, 100, of.Length())

	// The handle's header matches the inode Create wrote.
	hdr := NewFileHeader()
	hdr.FetchFrom(fs.disk, of.Sector())
	assert.Equal(t, of.Header().FileLength(), hdr.FileLength())
	assert.Equal(t, of.Header().NumSectors(), hdr.NumSectors())
}

func TestCreateRejectsDuplicatesAndBadParents(t *testing.T) {
	fs := newTestFS(t)

	require.True(t, fs.Create("/f", 10, false))
	assert.False(t, fs.Create("/f", 10, false), "duplicate path")
	assert.False(t, fs.Create("/missing/f", 10, false), "parent does not exist")
	assert.False(t, fs.Create("relative", 10, false), "paths must be absolute")
}

func TestOpenMissingReturnsNil(t *testing.T) {
	fs := newTestFS(t)
	assert.Nil(t, fs.Open("/ghost"))
	assert.Nil(t, fs.Open("/"))
}

func TestDirectoryTreeRoundTrip(t *testing.T) {
	fs := newTestFS(t)

	require.True(t, fs.Create("/a", 0, true))
	require.True(t, fs.Create("/a/f", 100, false))
	require.NotNil(t, fs.Open("/a/f"))
	require.NotNil(t, fs.Open("/a"), "directories open like regular files")

	require.True(t, fs.Remove("/a", true))

	assert.Nil(t, fs.Open("/a/f"), "removed subtree must not resolve")
	assert.Nil(t, fs.Open("/a"))
}

func TestRemoveRestoresFreeMapExactly(t *testing.T) {
	fs := newTestFS(t)
	before := currentFreeMap(fs).Snapshot()

	require.True(t, fs.Create("/a", 0, true))
	require.True(t, fs.Create("/a/f", 100, false))
	require.True(t, fs.Create("/big", MaxHeaderBytes+50, false))

	require.True(t, fs.Remove("/a", true))
	require.True(t, fs.Remove("/big", false))

	assert.Equal(t, before, currentFreeMap(fs).Snapshot(),
		"create + remove must restore the free map bit for bit")
}

func TestRemoveDirectoryNeedsRecursive(t *testing.T) {
	fs := newTestFS(t)

	require.True(t, fs.Create("/d", 0, true))
	assert.False(t, fs.Remove("/d", false), "a directory needs recursive removal")
	assert.True(t, fs.Remove("/d", true))
	assert.False(t, fs.Remove("/d", true), "already gone")
}

func TestCreateFailsWhenDirectoryFull(t *testing.T) {
	fs := newTestFS(t)

	require.True(t, fs.Create("/d", 0, true))
	for i := 0; i < NumDirEntries; i++ {
		name := string(rune('a' + i/26)) + string(rune('a'+i%26))
		require.True(t, fs.Create("/d/"+name, 0, false), "create %d should fit", i)
	}

	before := currentFreeMap(fs).Snapshot()
	assert.False(t, fs.Create("/d/zz", 0, false), "the 65th entry must fail")
	assert.Equal(t, before, currentFreeMap(fs).Snapshot(),
		"the failed create must not leak sectors")
}

func TestCreateFailsWithoutSpace(t *testing.T) {
	fs := newTestFS(t)
	before := currentFreeMap(fs).Snapshot()

	assert.False(t, fs.Create("/huge", machine.DiskSize, false),
		"a disk-sized file cannot fit beside the metadata")
	assert.Equal(t, before, currentFreeMap(fs).Snapshot())
}

func TestListRecursive(t *testing.T) {
	fs := newTestFS(t)

	require.True(t, fs.Create("/top", 10, false))
	require.True(t, fs.Create("/dir", 0, true))
	require.True(t, fs.Create("/dir/leaf", 10, false))

	var out bytes.Buffer
	fs.List(&out, "/", true)

	want := "/top\n/dir\n    /leaf\n"
	assert.Equal(t, want, out.String())

	out.Reset()
	fs.List(&out, "/dir", false)
	assert.Equal(t, "/leaf\n", out.String())
}

func TestFileContentsSurviveReopen(t *testing.T) {
	disk := newTestDisk(t)
	fs, err := New(disk, true)
	require.NoError(t, err)

	require.True(t, fs.Create("/data", 64, false))
	of := fs.Open("/data")
	require.Equal(t, 10, of.WriteAt([]byte("persisted!"), 0))

	// Attach a second file system to the same disk without formatting.
	fs2, err := New(disk, false)
	require.NoError(t, err)

	got := make([]byte, 10)
	of2 := fs2.Open("/data")
	require.NotNil(t, of2)
	require.Equal(t, 10, of2.ReadAt(got, 0))
	assert.Equal(t, "persisted!", string(got))
}

func TestDescriptorTableRoundTrip(t *testing.T) {
	fs := newTestFS(t)
	require.True(t, fs.Create("/f", 32, false))

	id := fs.PutFileDescriptor(fs.Open("/f"))
	require.NotZero(t, id)

	require.Equal(t, 5, fs.Write([]byte("hello"), id))

	// Reads continue from the write position; reopen to read back.
	require.Equal(t, 1, fs.Close(id))
	id = fs.PutFileDescriptor(fs.Open("/f"))
	buf := make([]byte, 5)
	require.Equal(t, 5, fs.Read(buf, id))
	assert.Equal(t, "hello", string(buf))

	assert.Equal(t, -1, fs.Read(buf, 0))
	assert.Equal(t, -1, fs.Read(buf, MaxOpenFiles+1))
	assert.Equal(t, -1, fs.Close(99))
}

func TestDescriptorTableFillsEverySlot(t *testing.T) {
	fs := newTestFS(t)
	require.True(t, fs.Create("/f", 8, false))

	ids := map[int]bool{}
	for i := 0; i < MaxOpenFiles; i++ {
		id := fs.PutFileDescriptor(fs.Open("/f"))
		require.NotZero(t, id, "slot %d of %d should be granted", i+1, MaxOpenFiles)
		require.False(t, ids[id], "descriptor %d handed out twice", id)
		ids[id] = true
	}

	assert.Zero(t, fs.PutFileDescriptor(fs.Open("/f")),
		"a full table returns 0")

	// Freeing any one slot makes the very next request succeed.
	require.Equal(t, 1, fs.Close(7))
	assert.Equal(t, 7, fs.PutFileDescriptor(fs.Open("/f")))
}

func TestPathHelpers(t *testing.T) {
	cases := []struct {
		path string
		base string
		leaf string
	}{
		{"/f", "/", "/f"},
		{"/a/b", "/a", "/b"},
		{"/a/b/c", "/a/b", "/c"},
		{"/", "/", "/"},
	}
	for _, tc := range cases {
		if got := BaseName(tc.path); got != tc.base {
			t.Errorf("BaseName(%q) = %q, want %q", tc.path, got, tc.base)
		}
		if got := LeafName(tc.path); got != tc.leaf {
			t.Errorf("LeafName(%q) = %q, want %q", tc.path, got, tc.leaf)
		}
	}
}
