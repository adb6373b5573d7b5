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
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
	"kernex.dev/kernex/pkg/log"
)

// SectorSize is the only sector size supported.
const SectorSize = 512

// BlockDevice reads whole sectors.
type BlockDevice interface {
	// ReadSectors fills buf, whose length is a multiple of SectorSize,
	// starting at sector lba.
	ReadSectors(lba uint32, buf []byte) error
}

// MemDevice is a disk image held in memory.
type MemDevice []byte

// ReadSectors implements BlockDevice.ReadSectors.
func (m MemDevice) ReadSectors(lba uint32, buf []byte) error {
	if len(buf)%SectorSize != 0 {
		return fmt.Errorf("read of %d bytes is not a whole number of sectors", len(buf))
	}
	off := uint64(lba) * SectorSize
	if off+uint64(len(buf)) > uint64(len(m)) {
		return fmt.Errorf("%w: %d sectors at %d", ErrOutOfRange, len(buf)/SectorSize, lba)
	}
	copy(buf, m[off:])
	return nil
}

// Retry parameters for transient read errors.
var (
	retryInterval = 10 * time.Millisecond
	maxRetries    = uint64(5)
)

// FileDevice reads a disk image file. The file holds a shared lock for as
// long as the device is open so that writers using the same locking do not
// change the image underneath the reader.
type FileDevice struct {
	f    *os.File
	lock *flock.Flock
}

// OpenFile opens the image at path.
func OpenFile(path string) (*FileDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	lock := flock.New(path)
	if err := lock.RLock(); err != nil {
		f.Close()
		return nil, fmt.Errorf("error acquiring shared lock on image %q: %v", path, err)
	}
	return &FileDevice{f: f, lock: lock}, nil
}

// Close releases the lock and closes the file.
func (d *FileDevice) Close() error {
	uerr := d.lock.Unlock()
	if err := d.f.Close(); err != nil {
		return err
	}
	return uerr
}

// ReadSectors implements BlockDevice.ReadSectors. Reads interrupted by
// EINTR or EAGAIN are retried.
func (d *FileDevice) ReadSectors(lba uint32, buf []byte) error {
	if len(buf)%SectorSize != 0 {
		return fmt.Errorf("read of %d bytes is not a whole number of sectors", len(buf))
	}
	return readAtRetry(d.f, buf, int64(lba)*SectorSize)
}

func transient(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}

func readAtRetry(r io.ReaderAt, buf []byte, off int64) error {
	attempt := 0
	op := func() error {
		attempt++
		n, err := r.ReadAt(buf, off)
		switch {
		case n == len(buf):
			return nil
		case err == io.EOF:
			return backoff.Permanent(fmt.Errorf("%w: image ends %d bytes into a %d byte read at %d", ErrOutOfRange, n, len(buf), off))
		case transient(err):
			log.Debugf("Transient error reading %d bytes at %d (attempt %d): %v", len(buf), off, attempt, err)
			return err
		case err == nil:
			return backoff.Permanent(io.ErrUnexpectedEOF)
		default:
			return backoff.Permanent(err)
		}
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), maxRetries)
	return backoff.Retry(op, b)
}
