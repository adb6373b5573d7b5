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

package ring0

import "fmt"

// Register identifies a control register in a Write record.
type Register int

// Control registers.
const (
	CR0 Register = 0
	CR3 Register = 3
)

// String implements fmt.Stringer.String.
func (r Register) String() string {
	return fmt.Sprintf("CR%d", int(r))
}

// Write records one privileged register write.
type Write struct {
	Reg   Register
	Value uint32
}

// Emulated is an in-memory CPU. It keeps every write so callers can observe
// exactly which privileged operations were issued.
//
// The zero value is a CPU in real mode with paging disabled.
type Emulated struct {
	cr0 uint32
	cr3 uint32

	// Writes is the ordered log of register writes.
	Writes []Write
}

// ReadCR0 implements CPU.ReadCR0.
func (e *Emulated) ReadCR0() uint32 {
	return e.cr0
}

// WriteCR0 implements CPU.WriteCR0. Setting PG without PE is rejected the way
// hardware raises #GP, by panicking.
func (e *Emulated) WriteCR0(v uint32) {
	if v&CR0_PG != 0 && v&CR0_PE == 0 {
		panic(fmt.Sprintf("general protection fault: CR0 %#x sets PG without PE", v))
	}
	e.cr0 = v
	e.Writes = append(e.Writes, Write{Reg: CR0, Value: v})
}

// ReadCR3 implements CPU.ReadCR3.
func (e *Emulated) ReadCR3() uint32 {
	return e.cr3
}

// WriteCR3 implements CPU.WriteCR3.
func (e *Emulated) WriteCR3(v uint32) {
	e.cr3 = v
	e.Writes = append(e.Writes, Write{Reg: CR3, Value: v})
}
