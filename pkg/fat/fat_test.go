// Copyright 2026 The Kernex Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"
)

// imageSpec describes a volume built by buildImage.
type imageSpec struct {
	totalSectors      uint32
	sectorsPerCluster uint8
	sectorsPerFAT     uint16
	rootEntries       uint16
	fat16             bool
}

var fat12Spec = imageSpec{
	totalSectors:      64,
	sectorsPerCluster: 1,
	sectorsPerFAT:     1,
	rootEntries:       16,
}

type image struct {
	spec    imageSpec
	data    []byte
	nextDir int
}

func newImage(spec imageSpec) *image {
	im := &image{spec: spec, data: make([]byte, spec.totalSectors*SectorSize)}
	b := im.data
	le := binary.LittleEndian
	copy(b[3:11], "KERNEX  ")
	le.PutUint16(b[11:], SectorSize)
	b[13] = spec.sectorsPerCluster
	le.PutUint16(b[14:], 1)
	b[16] = 2
	le.PutUint16(b[17:], spec.rootEntries)
	if spec.totalSectors < 1<<16 {
		le.PutUint16(b[19:], uint16(spec.totalSectors))
	} else {
		le.PutUint32(b[32:], spec.totalSectors)
	}
	le.PutUint16(b[22:], spec.sectorsPerFAT)
	b[38] = 0x29
	copy(b[43:54], "TESTVOL    ")
	le.PutUint16(b[510:], bootSignature)
	return im
}

func (im *image) rootStart() int {
	return (1 + 2*int(im.spec.sectorsPerFAT)) * SectorSize
}

func (im *image) dataStart() int {
	return im.rootStart() + int(im.spec.rootEntries)*dirEntrySize
}

// setFAT writes v as the entry for cluster in both FATs.
func (im *image) setFAT(cluster, v uint32) {
	for n := 0; n < 2; n++ {
		fat := im.data[(1+n*int(im.spec.sectorsPerFAT))*SectorSize:]
		if im.spec.fat16 {
			binary.LittleEndian.PutUint16(fat[cluster*2:], uint16(v))
			continue
		}
		off := cluster * 3 / 2
		if cluster&1 == 0 {
			fat[off] = byte(v)
			fat[off+1] = fat[off+1]&0xF0 | byte(v>>8)&0x0F
		} else {
			fat[off] = fat[off]&0x0F | byte(v<<4)
			fat[off+1] = byte(v >> 4)
		}
	}
}

func (im *image) eoc() uint32 {
	if im.spec.fat16 {
		return 0xFFFF
	}
	return 0xFFF
}

// addRaw appends a directory entry with the given 11-byte name.
func (im *image) addRaw(name string, attr uint8, cluster uint16, size uint32) {
	e := im.data[im.rootStart()+im.nextDir*dirEntrySize:]
	copy(e[:11], name)
	e[11] = attr
	binary.LittleEndian.PutUint16(e[22:], 0x6000)  // 12:00:00
	binary.LittleEndian.PutUint16(e[24:], 0x5A21)  // 2025-01-01
	binary.LittleEndian.PutUint16(e[26:], cluster)
	binary.LittleEndian.PutUint32(e[28:], size)
	im.nextDir++
}

// addFile stores contents in the given clusters, chains them and adds a
// directory entry.
func (im *image) addFile(name string, contents []byte, clusters ...uint32) {
	cb := int(im.spec.sectorsPerCluster) * SectorSize
	rest := contents
	for i, c := range clusters {
		off := im.dataStart() + int(c-2)*cb
		n := copy(im.data[off:off+cb], rest)
		rest = rest[n:]
		if i+1 < len(clusters) {
			im.setFAT(c, clusters[i+1])
		} else {
			im.setFAT(c, im.eoc())
		}
	}
	sn := ShortName(name)
	im.addRaw(string(sn[:]), 0x20, uint16(clusters[0]), uint32(len(contents)))
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func standardImage() *image {
	im := newImage(fat12Spec)
	im.addRaw("TESTVOL    ", attrVolumeLabel, 0, 0)
	im.addFile("hello.txt", []byte("Hello, world\n"), 2)
	im.addRaw("\xE5OLD    TXT", 0x20, 5, 10)
	// Non-contiguous chain with an odd cluster in the middle.
	im.addFile("big.bin", pattern(1300), 3, 4, 6)
	im.addFile("empty", nil, 7)
	return im
}

func open(t *testing.T, im *image) *FS {
	t.Helper()
	fs, err := Open(MemDevice(im.data))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return fs
}

func TestOpenLayout(t *testing.T) {
	fs := open(t, standardImage())
	if fs.Type() != FAT12 {
		t.Errorf("Type() = %v, want FAT12", fs.Type())
	}
	if got := fs.ClusterCount(); got != 60 {
		t.Errorf("ClusterCount() = %d, want 60", got)
	}
	bs := fs.BootSector()
	if bs.OEMName != "KERNEX" || bs.VolumeLabel != "TESTVOL" {
		t.Errorf("BootSector() = %+v", bs)
	}
}

func TestEntries(t *testing.T) {
	fs := open(t, standardImage())
	var names []string
	for _, e := range fs.Entries() {
		names = append(names, e.Name())
	}
	if diff := cmp.Diff([]string{"HELLO.TXT", "BIG.BIN", "EMPTY"}, names); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}

	names = nil
	fs.Ascend(func(e DirEntry) bool {
		names = append(names, e.Name())
		return true
	})
	if diff := cmp.Diff([]string{"BIG.BIN", "EMPTY", "HELLO.TXT"}, names); diff != "" {
		t.Errorf("Ascend mismatch (-want +got):\n%s", diff)
	}

	e, err := fs.Lookup("Hello.Txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e.Size != 13 || e.Cluster != 2 {
		t.Errorf("Lookup(Hello.Txt) = %+v", e)
	}
	if got := e.Modified.Format("2006-01-02 15:04:05"); got != "2025-01-01 12:00:00" {
		t.Errorf("Modified = %s", got)
	}
}

func TestEndMarkerStopsScan(t *testing.T) {
	im := newImage(fat12Spec)
	im.addFile("a.txt", []byte("a"), 2)
	im.nextDir++ // Leave a zeroed entry.
	im.addFile("b.txt", []byte("b"), 3)
	fs := open(t, im)
	if _, err := fs.Lookup("b.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup past the end marker = %v, want ErrNotFound", err)
	}
	if len(fs.Entries()) != 1 {
		t.Errorf("Entries() = %d entries, want 1", len(fs.Entries()))
	}
}

func TestLookupMissing(t *testing.T) {
	fs := open(t, standardImage())
	for _, name := range []string{"nothere.txt", "old.txt", "testvol"} {
		if _, err := fs.Open(name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q) = %v, want ErrNotFound", name, err)
		}
	}
}

func TestReadWholeFiles(t *testing.T) {
	fs := open(t, standardImage())
	for _, tc := range []struct {
		name string
		want []byte
	}{
		{"hello.txt", []byte("Hello, world\n")},
		{"big.bin", pattern(1300)},
		{"empty", []byte{}},
	} {
		f, err := fs.Open(tc.name)
		if err != nil {
			t.Fatalf("Open(%q): %v", tc.name, err)
		}
		got, err := io.ReadAll(f.Reader())
		if err != nil {
			t.Fatalf("reading %q: %v", tc.name, err)
		}
		if !bytes.Equal(got, tc.want) {
			t.Errorf("%q: got %d bytes, want %d", tc.name, len(got), len(tc.want))
		}
	}
}

func TestReadAtOffsets(t *testing.T) {
	fs := open(t, standardImage())
	f, err := fs.Open("big.bin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := pattern(1300)
	for _, tc := range []struct {
		off, n  int
		wantN   int
		wantEOF bool
	}{
		{0, 10, 10, false},
		{500, 30, 30, false},   // Crosses clusters 3 and 4.
		{1020, 100, 100, false}, // Crosses clusters 4 and 6.
		{1290, 20, 10, true},
		{1300, 1, 0, true},
	} {
		p := make([]byte, tc.n)
		n, err := f.ReadAt(p, int64(tc.off))
		if n != tc.wantN || (err == io.EOF) != tc.wantEOF || (err != nil && err != io.EOF) {
			t.Errorf("ReadAt(%d, %d) = %d, %v; want %d, EOF %t", tc.n, tc.off, n, err, tc.wantN, tc.wantEOF)
			continue
		}
		if !bytes.Equal(p[:n], want[tc.off:tc.off+n]) {
			t.Errorf("ReadAt(%d, %d) returned wrong data", tc.n, tc.off)
		}
	}
}

func TestTruncatedChain(t *testing.T) {
	im := standardImage()
	im.setFAT(4, im.eoc()) // big.bin now ends after two clusters.
	fs := open(t, im)
	f, err := fs.Open("big.bin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	n, err := f.ReadAt(make([]byte, 1300), 0)
	if !errors.Is(err, ErrBadCluster) || n != 1024 {
		t.Errorf("ReadAt = %d, %v; want 1024, ErrBadCluster", n, err)
	}
}

func TestChainOutOfRange(t *testing.T) {
	im := standardImage()
	im.setFAT(2, 0x0F00)
	im.addRaw("LONG    TXT", 0x20, 2, 1000)
	fs := open(t, im)
	f, err := fs.Open("long.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.ReadAt(make([]byte, 1000), 0); !errors.Is(err, ErrBadCluster) {
		t.Errorf("ReadAt = %v, want ErrBadCluster", err)
	}
}

func TestFAT12EntryAcrossSectorBoundary(t *testing.T) {
	spec := fat12Spec
	spec.totalSectors = 400
	spec.sectorsPerFAT = 2
	im := newImage(spec)
	// Cluster 341 is stored in bytes 511 and 512 of the FAT.
	im.addFile("edge.bin", pattern(600), 340, 341, 342)
	fs := open(t, im)
	f, err := fs.Open("edge.bin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(f.Reader())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, pattern(600)) {
		t.Errorf("edge.bin contents mismatch")
	}
}

func TestFAT16(t *testing.T) {
	im := newImage(imageSpec{
		totalSectors:      4200,
		sectorsPerCluster: 1,
		sectorsPerFAT:     17,
		rootEntries:       16,
		fat16:             true,
	})
	im.addFile("data.bin", pattern(2000), 2, 4000, 3, 300)
	fs := open(t, im)
	if fs.Type() != FAT16 {
		t.Fatalf("Type() = %v, want FAT16", fs.Type())
	}
	f, err := fs.Open("DATA.BIN")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(f.Reader())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, pattern(2000)) {
		t.Errorf("data.bin contents mismatch")
	}
}

func TestBadBootSectors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		corrupt func(b []byte)
		want    error
	}{
		{"signature", func(b []byte) { b[510] = 0 }, ErrBadBootSector},
		{"sector size", func(b []byte) { binary.LittleEndian.PutUint16(b[11:], 1024) }, ErrBadBootSector},
		{"cluster size", func(b []byte) { b[13] = 3 }, ErrBadBootSector},
		{"no fats", func(b []byte) { b[16] = 0 }, ErrBadBootSector},
		{"too small", func(b []byte) { binary.LittleEndian.PutUint16(b[19:], 2) }, ErrBadBootSector},
		{"fat32 sized", func(b []byte) {
			binary.LittleEndian.PutUint16(b[19:], 0)
			binary.LittleEndian.PutUint32(b[32:], 70000)
		}, ErrUnsupportedFAT},
	} {
		t.Run(tc.name, func(t *testing.T) {
			im := standardImage()
			tc.corrupt(im.data)
			if _, err := Open(MemDevice(im.data)); !errors.Is(err, tc.want) {
				t.Errorf("Open = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestShortName(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"hello.txt", "HELLO   TXT"},
		{"README", "README     "},
		{"averylongname.text", "AVERYLONTEX"},
		{"a.b.c", "A       B.C"},
	} {
		got := ShortName(tc.in)
		if string(got[:]) != tc.want {
			t.Errorf("ShortName(%q) = %q, want %q", tc.in, got[:], tc.want)
		}
	}
}

func TestMemDeviceBounds(t *testing.T) {
	d := MemDevice(make([]byte, 2*SectorSize))
	if err := d.ReadSectors(2, make([]byte, SectorSize)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ReadSectors past end = %v, want ErrOutOfRange", err)
	}
	if err := d.ReadSectors(0, make([]byte, 100)); err == nil {
		t.Errorf("ReadSectors of a partial sector succeeded")
	}
}

type flakyReader struct {
	failures int
	err      error
	calls    int
}

func (r *flakyReader) ReadAt(p []byte, off int64) (int, error) {
	r.calls++
	if r.calls <= r.failures {
		return 0, r.err
	}
	for i := range p {
		p[i] = byte(off) + byte(i)
	}
	return len(p), nil
}

func TestReadRetriesTransientErrors(t *testing.T) {
	for _, errno := range []error{unix.EINTR, unix.EAGAIN} {
		r := &flakyReader{failures: 2, err: &os.PathError{Op: "read", Path: "img", Err: errno}}
		buf := make([]byte, SectorSize)
		if err := readAtRetry(r, buf, 0); err != nil {
			t.Errorf("readAtRetry with %v: %v", errno, err)
		}
		if r.calls != 3 {
			t.Errorf("%v: %d calls, want 3", errno, r.calls)
		}
	}
}

func TestReadDoesNotRetryOtherErrors(t *testing.T) {
	r := &flakyReader{failures: 10, err: unix.EIO}
	if err := readAtRetry(r, make([]byte, SectorSize), 0); !errors.Is(err, unix.EIO) {
		t.Errorf("readAtRetry = %v, want EIO", err)
	}
	if r.calls != 1 {
		t.Errorf("%d calls, want 1", r.calls)
	}
}

func TestFileDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, standardImage().data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	dev, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer dev.Close()

	fs, err := Open(dev)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f, err := fs.Open("hello.txt")
	if err != nil {
		t.Fatalf("Open(hello.txt): %v", err)
	}
	got, err := io.ReadAll(f.Reader())
	if err != nil || string(got) != "Hello, world\n" {
		t.Errorf("hello.txt = %q, %v", got, err)
	}
	if err := dev.ReadSectors(64, make([]byte, SectorSize)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ReadSectors past end = %v, want ErrOutOfRange", err)
	}
}
