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

// Package fat reads files from the root directory of a FAT12 or FAT16
// volume.
//
// Only 512-byte sectors are supported. Subdirectories and long file names
// are not interpreted; entries are looked up by their 8.3 short name.
package fat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/btree"
	"kernex.dev/kernex/pkg/log"
)

var (
	// ErrBadBootSector indicates a boot sector with a missing signature or
	// an inconsistent layout.
	ErrBadBootSector = errors.New("invalid FAT boot sector")

	// ErrUnsupportedFAT indicates a volume with too many clusters for FAT16.
	ErrUnsupportedFAT = errors.New("unsupported FAT type")

	// ErrNotFound indicates that no root directory entry has the name.
	ErrNotFound = errors.New("file not found")

	// ErrBadCluster indicates a cluster chain that points outside the data
	// area or ends before the file does.
	ErrBadCluster = errors.New("bad cluster chain")

	// ErrOutOfRange indicates a read past the end of the device.
	ErrOutOfRange = errors.New("read past end of device")
)

// Type is the FAT variant.
type Type int

// Supported FAT variants.
const (
	FAT12 Type = 12
	FAT16 Type = 16
)

// String implements fmt.Stringer.String.
func (t Type) String() string {
	return fmt.Sprintf("FAT%d", int(t))
}

// eof returns the smallest end-of-chain marker.
func (t Type) eof() uint32 {
	if t == FAT12 {
		return 0xFF8
	}
	return 0xFFF8
}

const (
	bootSignature = 0xAA55
	dirEntrySize  = 32

	attrVolumeLabel = 0x08
	attrDirectory   = 0x10

	entryEnd     = 0x00
	entryDeleted = 0xE5
)

// BootSector holds the BIOS parameter block fields the reader uses.
type BootSector struct {
	OEMName           string
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntries       uint16
	TotalSectors      uint32
	SectorsPerFAT     uint16
	VolumeLabel       string
}

func parseBootSector(b []byte) (BootSector, error) {
	le := binary.LittleEndian
	if sig := le.Uint16(b[510:]); sig != bootSignature {
		return BootSector{}, fmt.Errorf("%w: signature %#04x", ErrBadBootSector, sig)
	}
	bs := BootSector{
		OEMName:           strings.TrimRight(string(b[3:11]), " \x00"),
		BytesPerSector:    le.Uint16(b[11:]),
		SectorsPerCluster: b[13],
		ReservedSectors:   le.Uint16(b[14:]),
		NumFATs:           b[16],
		RootEntries:       le.Uint16(b[17:]),
		TotalSectors:      uint32(le.Uint16(b[19:])),
		SectorsPerFAT:     le.Uint16(b[22:]),
	}
	if bs.TotalSectors == 0 {
		bs.TotalSectors = le.Uint32(b[32:])
	}
	// Extended boot signature.
	if b[38] == 0x29 {
		bs.VolumeLabel = strings.TrimRight(string(b[43:54]), " ")
	}

	switch {
	case bs.BytesPerSector != SectorSize:
		return bs, fmt.Errorf("%w: %d bytes per sector", ErrBadBootSector, bs.BytesPerSector)
	case bs.SectorsPerCluster == 0 || bs.SectorsPerCluster&(bs.SectorsPerCluster-1) != 0:
		return bs, fmt.Errorf("%w: %d sectors per cluster", ErrBadBootSector, bs.SectorsPerCluster)
	case bs.ReservedSectors == 0:
		return bs, fmt.Errorf("%w: no reserved sectors", ErrBadBootSector)
	case bs.NumFATs == 0 || bs.SectorsPerFAT == 0:
		return bs, fmt.Errorf("%w: no FAT", ErrBadBootSector)
	}
	return bs, nil
}

// DirEntry is a root directory entry.
type DirEntry struct {
	// ShortName is the space-padded 8.3 name as stored on disk.
	ShortName [11]byte

	Attr     uint8
	Cluster  uint16
	Size     uint32
	Modified time.Time
}

// Name returns the entry name in NAME.EXT form.
func (e *DirEntry) Name() string {
	base := strings.TrimRight(string(e.ShortName[:8]), " ")
	ext := strings.TrimRight(string(e.ShortName[8:]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// IsDir returns true if the entry is a subdirectory.
func (e *DirEntry) IsDir() bool {
	return e.Attr&attrDirectory != 0
}

func parseDirEntry(b []byte) *DirEntry {
	le := binary.LittleEndian
	e := &DirEntry{
		Attr:     b[11],
		Cluster:  le.Uint16(b[26:]),
		Size:     le.Uint32(b[28:]),
		Modified: fatTime(le.Uint16(b[24:]), le.Uint16(b[22:])),
	}
	copy(e.ShortName[:], b[:11])
	// 0x05 stands for a leading 0xE5 byte.
	if e.ShortName[0] == 0x05 {
		e.ShortName[0] = entryDeleted
	}
	return e
}

func fatTime(date, clock uint16) time.Time {
	if date == 0 {
		return time.Time{}
	}
	return time.Date(
		1980+int(date>>9), time.Month(date>>5&0x0F), int(date&0x1F),
		int(clock>>11), int(clock>>5&0x3F), int(clock&0x1F)*2,
		0, time.UTC)
}

// ShortName converts name to the space-padded, upper-case 8.3 form. The base
// name is cut to eight characters and the extension, taken after the first
// dot, to three.
func ShortName(name string) [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	base, ext, _ := strings.Cut(name, ".")
	for i := 0; i < len(base) && i < 8; i++ {
		out[i] = upper(base[i])
	}
	for i := 0; i < len(ext) && i < 3; i++ {
		out[8+i] = upper(ext[i])
	}
	return out
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// FS is an open FAT volume. It must not be used from more than one
// goroutine at a time.
type FS struct {
	dev  BlockDevice
	boot BootSector
	typ  Type

	rootStart       uint32
	rootSectors     uint32
	firstDataSector uint32
	clusters        uint32

	// entries holds the live root directory entries in directory order and
	// index holds the same entries ordered by short name.
	entries []*DirEntry
	index   *btree.BTreeG[*DirEntry]

	// fatCache holds two consecutive FAT sectors starting at cacheBase,
	// relative to the start of the first FAT. cacheValid is false until the
	// first fill.
	fatCache   [2 * SectorSize]byte
	cacheBase  uint32
	cacheValid bool
}

func byShortName(a, b *DirEntry) bool {
	return string(a.ShortName[:]) < string(b.ShortName[:])
}

// Open reads the boot sector and root directory of the volume on dev.
func Open(dev BlockDevice) (*FS, error) {
	sector := make([]byte, SectorSize)
	if err := dev.ReadSectors(0, sector); err != nil {
		return nil, fmt.Errorf("reading boot sector: %w", err)
	}
	boot, err := parseBootSector(sector)
	if err != nil {
		return nil, err
	}

	fs := &FS{dev: dev, boot: boot}
	fs.rootStart = uint32(boot.ReservedSectors) + uint32(boot.NumFATs)*uint32(boot.SectorsPerFAT)
	fs.rootSectors = (uint32(boot.RootEntries)*dirEntrySize + SectorSize - 1) / SectorSize
	fs.firstDataSector = fs.rootStart + fs.rootSectors
	if boot.TotalSectors <= fs.firstDataSector {
		return nil, fmt.Errorf("%w: %d total sectors, data starts at %d", ErrBadBootSector, boot.TotalSectors, fs.firstDataSector)
	}
	fs.clusters = (boot.TotalSectors - fs.firstDataSector) / uint32(boot.SectorsPerCluster)
	switch {
	case fs.clusters < 4085:
		fs.typ = FAT12
	case fs.clusters < 65525:
		fs.typ = FAT16
	default:
		return nil, fmt.Errorf("%w: %d clusters", ErrUnsupportedFAT, fs.clusters)
	}

	if err := fs.readRoot(); err != nil {
		return nil, err
	}
	log.Debugf("Opened %v volume %q: %d clusters, %d root entries", fs.typ, boot.VolumeLabel, fs.clusters, len(fs.entries))
	return fs, nil
}

func (fs *FS) readRoot() error {
	fs.index = btree.NewG(8, byShortName)
	if fs.rootSectors == 0 {
		return nil
	}
	buf := make([]byte, fs.rootSectors*SectorSize)
	if err := fs.dev.ReadSectors(fs.rootStart, buf); err != nil {
		return fmt.Errorf("reading root directory: %w", err)
	}
	for i := 0; i < int(fs.boot.RootEntries); i++ {
		raw := buf[i*dirEntrySize : (i+1)*dirEntrySize]
		if raw[0] == entryEnd {
			break
		}
		if raw[0] == entryDeleted || raw[11]&attrVolumeLabel != 0 {
			continue
		}
		e := parseDirEntry(raw)
		fs.entries = append(fs.entries, e)
		// The first of several entries with the same name wins.
		if _, ok := fs.index.Get(e); !ok {
			fs.index.ReplaceOrInsert(e)
		}
	}
	return nil
}

// Type returns the FAT variant.
func (fs *FS) Type() Type {
	return fs.typ
}

// BootSector returns the parsed boot sector.
func (fs *FS) BootSector() BootSector {
	return fs.boot
}

// ClusterCount returns the number of clusters in the data area.
func (fs *FS) ClusterCount() uint32 {
	return fs.clusters
}

// Entries returns the root directory entries in directory order.
func (fs *FS) Entries() []DirEntry {
	out := make([]DirEntry, len(fs.entries))
	for i, e := range fs.entries {
		out[i] = *e
	}
	return out
}

// Ascend calls fn for each root directory entry in short-name order until fn
// returns false.
func (fs *FS) Ascend(fn func(DirEntry) bool) {
	fs.index.Ascend(func(e *DirEntry) bool {
		return fn(*e)
	})
}

// Lookup returns the root directory entry for name.
func (fs *FS) Lookup(name string) (DirEntry, error) {
	e, ok := fs.index.Get(&DirEntry{ShortName: ShortName(name)})
	if !ok {
		return DirEntry{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return *e, nil
}

// Open returns the file called name in the root directory.
func (fs *FS) Open(name string) (*File, error) {
	e, err := fs.Lookup(name)
	if err != nil {
		return nil, err
	}
	return &File{fs: fs, entry: e}, nil
}

// fatEntry returns the FAT entry for cluster.
func (fs *FS) fatEntry(cluster uint32) (uint32, error) {
	var off uint32
	if fs.typ == FAT16 {
		off = cluster * 2
	} else {
		off = cluster * 3 / 2
	}
	sector, in := off/SectorSize, off%SectorSize
	if !fs.cacheValid || sector != fs.cacheBase {
		if err := fs.fillCache(sector); err != nil {
			return 0, err
		}
	}
	// Entries may straddle a sector boundary; the cache holds the next
	// sector too.
	w := uint32(binary.LittleEndian.Uint16(fs.fatCache[in:]))
	if fs.typ == FAT16 {
		return w, nil
	}
	if cluster&1 != 0 {
		return w >> 4, nil
	}
	return w & 0x0FFF, nil
}

func (fs *FS) fillCache(sector uint32) error {
	lba := uint32(fs.boot.ReservedSectors) + sector
	fs.cacheValid = false
	if err := fs.dev.ReadSectors(lba, fs.fatCache[:SectorSize]); err != nil {
		return fmt.Errorf("reading FAT sector %d: %w", sector, err)
	}
	if sector+1 < uint32(fs.boot.SectorsPerFAT) {
		if err := fs.dev.ReadSectors(lba+1, fs.fatCache[SectorSize:]); err != nil {
			return fmt.Errorf("reading FAT sector %d: %w", sector+1, err)
		}
	} else {
		clear(fs.fatCache[SectorSize:])
	}
	fs.cacheBase = sector
	fs.cacheValid = true
	return nil
}

// next returns the cluster following c, and false at the end of the chain.
func (fs *FS) next(c uint32) (uint32, bool, error) {
	n, err := fs.fatEntry(c)
	if err != nil {
		return 0, false, err
	}
	if n >= fs.typ.eof() {
		return 0, false, nil
	}
	if err := fs.checkCluster(n); err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (fs *FS) checkCluster(c uint32) error {
	if c < 2 || c >= fs.clusters+2 {
		return fmt.Errorf("%w: cluster %#x", ErrBadCluster, c)
	}
	return nil
}

func (fs *FS) clusterBytes() uint32 {
	return uint32(fs.boot.SectorsPerCluster) * SectorSize
}

func (fs *FS) readCluster(c uint32, buf []byte) error {
	lba := fs.firstDataSector + (c-2)*uint32(fs.boot.SectorsPerCluster)
	return fs.dev.ReadSectors(lba, buf)
}

// File is a file in the root directory.
type File struct {
	fs    *FS
	entry DirEntry
}

// Entry returns the directory entry of the file.
func (f *File) Entry() DirEntry {
	return f.entry
}

// Size returns the file size in bytes.
func (f *File) Size() int64 {
	return int64(f.entry.Size)
}

// Reader returns a reader over the whole file.
func (f *File) Reader() *io.SectionReader {
	return io.NewSectionReader(f, 0, f.Size())
}

// ReadAt implements io.ReaderAt.ReadAt by walking the file's cluster chain.
// A chain that ends before the recorded file size is reported as
// ErrBadCluster.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	size := f.Size()
	if off >= size {
		return 0, io.EOF
	}
	want := len(p)
	if rest := size - off; int64(want) > rest {
		want = int(rest)
	}

	fs := f.fs
	cb := fs.clusterBytes()
	cluster := uint32(f.entry.Cluster)
	if err := fs.checkCluster(cluster); err != nil {
		return 0, err
	}

	// Skip the clusters before off. A chain can be no longer than the
	// data area, which bounds both loops.
	steps := uint32(0)
	for i := uint32(off / int64(cb)); i > 0; i-- {
		n, ok, err := fs.next(cluster)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w: chain of %q ends before offset %d", ErrBadCluster, f.entry.Name(), off)
		}
		cluster = n
		steps++
	}

	buf := make([]byte, cb)
	inCluster := uint32(off % int64(cb))
	read := 0
	for read < want {
		if steps > fs.clusters {
			return read, fmt.Errorf("%w: chain of %q loops", ErrBadCluster, f.entry.Name())
		}
		if err := fs.readCluster(cluster, buf); err != nil {
			return read, err
		}
		read += copy(p[read:want], buf[inCluster:])
		inCluster = 0
		if read == want {
			break
		}
		n, ok, err := fs.next(cluster)
		if err != nil {
			return read, err
		}
		if !ok {
			return read, fmt.Errorf("%w: chain of %q ends after %d bytes, size is %d", ErrBadCluster, f.entry.Name(), off+int64(read), size)
		}
		cluster = n
		steps++
	}
	if read < len(p) {
		return read, io.EOF
	}
	return read, nil
}
