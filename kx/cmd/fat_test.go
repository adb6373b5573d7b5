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

package cmd

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"kernex.dev/kernex/pkg/fat"
)

// tinyVolume returns a FAT12 image with HELLO.TXT followed by A.BIN in its
// root directory.
func tinyVolume() []byte {
	const sectors = 64
	img := make([]byte, sectors*fat.SectorSize)
	le := binary.LittleEndian

	// Boot sector: 1 reserved sector, 1 FAT of 1 sector, 16 root entries.
	copy(img[3:], "KERNEX  ")
	le.PutUint16(img[11:], fat.SectorSize)
	img[13] = 1
	le.PutUint16(img[14:], 1)
	img[16] = 1
	le.PutUint16(img[17:], 16)
	le.PutUint16(img[19:], sectors)
	le.PutUint16(img[22:], 1)
	img[38] = 0x29
	copy(img[43:], "KXTEST     ")
	le.PutUint16(img[510:], 0xAA55)

	// FAT: media entries, then cluster 2 ends its chain.
	copy(img[fat.SectorSize:], []byte{0xF8, 0xFF, 0xFF, 0xFF, 0x0F})

	root := img[2*fat.SectorSize:]
	copy(root[0:], "HELLO   TXT")
	root[11] = 0x20
	le.PutUint16(root[26:], 2)
	le.PutUint32(root[28:], 5)
	copy(root[32:], "A       BIN")
	root[32+11] = 0x20

	copy(img[3*fat.SectorSize:], "hello")
	return img
}

func TestListVolume(t *testing.T) {
	fs, err := fat.Open(fat.MemDevice(tinyVolume()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, tc := range []struct {
		sorted      bool
		first, last string
	}{
		{false, "HELLO.TXT", "A.BIN"},
		{true, "A.BIN", "HELLO.TXT"},
	} {
		var out bytes.Buffer
		if err := listVolume(&out, fs, tc.sorted); err != nil {
			t.Fatalf("listVolume: %v", err)
		}
		lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
		if len(lines) != 4 {
			t.Fatalf("listVolume(sorted=%v) printed %d lines:\n%s", tc.sorted, len(lines), out.String())
		}
		if want := `Volume "KXTEST" (FAT12, 61 clusters of 512 bytes)`; lines[0] != want {
			t.Errorf("header = %q, want %q", lines[0], want)
		}
		if !strings.HasPrefix(lines[1], "NAME") {
			t.Errorf("column header = %q", lines[1])
		}
		if fields := strings.Fields(lines[2]); fields[0] != tc.first {
			t.Errorf("sorted=%v: first entry %q, want %q", tc.sorted, fields[0], tc.first)
		}
		if fields := strings.Fields(lines[3]); fields[0] != tc.last {
			t.Errorf("sorted=%v: last entry %q, want %q", tc.sorted, fields[0], tc.last)
		}
	}
}
