//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
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
//
package rfpc

import "context"

// RunState is the externally observable execution state of a core.
type RunState int

const (
	StateHalted RunState = iota
	StateRunning
)

func (s RunState) String() string {
	switch s {
	case StateHalted:
		return "halted"
	case StateRunning:
		return "running"
	}
	return "unknown"
}

// Space selects which memory path a core-relative access takes: the core's
// own load/store path through the debug module, or the island's cluster
// target memory.
type Space int

const (
	SpaceCore Space = iota
	SpaceCTM
)

// HaltCause is the hardware's reason for the most recent halt, as reported
// by dcsr.cause.
type HaltCause int

const (
	CauseUnknown    HaltCause = 0
	CauseBreakpoint HaltCause = 1 // ebreak trapped to debug mode
	CauseHaltReq    HaltCause = 3 // external halt request
	CauseStep       HaltCause = 4 // single step completed
)

// CorePort is the debug access port for one core. All calls are synchronous
// and expected to complete quickly relative to the session's polling
// cadence; any error is a transport fault, not a protocol-level condition.
// The port performs no permission or mapping checks of its own.
type CorePort interface {
	// ReadMem reads n bytes at a core-relative byte address.
	ReadMem(ctx context.Context, space Space, addr uint32, n int) ([]byte, error)
	// WriteMem writes data at a core-relative byte address.
	WriteMem(ctx context.Context, space Space, addr uint32, data []byte) error
	// ReadReg reads a GPR or CSR. The core must be halted.
	ReadReg(ctx context.Context, reg Reg) (uint64, error)
	// WriteReg writes a GPR or CSR. The core must be halted.
	WriteReg(ctx context.Context, reg Reg, value uint64) error
	// Status samples the core's run/halt indicator.
	Status(ctx context.Context) (RunState, error)
	// Halt forces the core into debug halt and waits for it to take effect.
	Halt(ctx context.Context) error
	// Resume releases a halted core and waits until it is running. Traps on
	// ebreak remain routed to debug mode so software breakpoints halt the
	// core instead of raising an exception.
	Resume(ctx context.Context) error
	// Step executes a single instruction and waits for the halt.
	Step(ctx context.Context) error
	// Cause reports the hardware's reason for the most recent halt.
	Cause(ctx context.Context) (HaltCause, error)
}
