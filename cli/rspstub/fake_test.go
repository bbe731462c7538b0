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
package rspstub

import (
	"context"

	"github.com/juju/errors"

	"github.com/cesanta/nfp-debug-tools/nfp/rfpc"
)

// fakePort is an in-memory core for tests: sparse byte-addressed memories,
// a register file keyed by debug-module register number, and a scripted run
// state.
type fakePort struct {
	mem   map[rfpc.Space]map[uint32]byte
	regs  map[uint16]uint64
	state rfpc.RunState
	cause rfpc.HaltCause

	// pollsToHalt makes Status report running for that many calls after a
	// resume, then halt with the scripted cause.
	pollsToHalt int
	polls       int

	halts, resumes, steps int

	// failing makes every port call return a transport fault.
	failing bool
}

func newFakePort() *fakePort {
	return &fakePort{
		mem: map[rfpc.Space]map[uint32]byte{
			rfpc.SpaceCore: {},
			rfpc.SpaceCTM:  {},
		},
		regs:  map[uint16]uint64{},
		state: rfpc.StateRunning,
	}
}

func (f *fakePort) fault() error {
	if f.failing {
		return errors.New("bus fault")
	}
	return nil
}

func (f *fakePort) ReadMem(ctx context.Context, space rfpc.Space, addr uint32, n int) ([]byte, error) {
	if err := f.fault(); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = f.mem[space][addr+uint32(i)]
	}
	return out, nil
}

func (f *fakePort) WriteMem(ctx context.Context, space rfpc.Space, addr uint32, data []byte) error {
	if err := f.fault(); err != nil {
		return err
	}
	for i, b := range data {
		f.mem[space][addr+uint32(i)] = b
	}
	return nil
}

func (f *fakePort) ReadReg(ctx context.Context, reg rfpc.Reg) (uint64, error) {
	if err := f.fault(); err != nil {
		return 0, err
	}
	return f.regs[reg.RegAddr()], nil
}

func (f *fakePort) WriteReg(ctx context.Context, reg rfpc.Reg, value uint64) error {
	if err := f.fault(); err != nil {
		return err
	}
	f.regs[reg.RegAddr()] = value
	return nil
}

func (f *fakePort) Status(ctx context.Context) (rfpc.RunState, error) {
	if err := f.fault(); err != nil {
		return 0, err
	}
	if f.state == rfpc.StateRunning && f.pollsToHalt > 0 {
		f.polls++
		if f.polls >= f.pollsToHalt {
			f.state = rfpc.StateHalted
		}
	}
	return f.state, nil
}

func (f *fakePort) Halt(ctx context.Context) error {
	if err := f.fault(); err != nil {
		return err
	}
	f.halts++
	f.state = rfpc.StateHalted
	f.cause = rfpc.CauseHaltReq
	return nil
}

func (f *fakePort) Resume(ctx context.Context) error {
	if err := f.fault(); err != nil {
		return err
	}
	f.resumes++
	f.state = rfpc.StateRunning
	f.polls = 0
	return nil
}

func (f *fakePort) Step(ctx context.Context) error {
	if err := f.fault(); err != nil {
		return err
	}
	f.steps++
	f.cause = rfpc.CauseStep
	f.regs[rfpc.Dpc.RegAddr()] += 4
	return nil
}

func (f *fakePort) Cause(ctx context.Context) (rfpc.HaltCause, error) {
	if err := f.fault(); err != nil {
		return 0, err
	}
	return f.cause, nil
}

// haltedTarget attaches to a fresh fake port, as a session would.
func haltedTarget(ctx context.Context) (*fakePort, *target, error) {
	f := newFakePort()
	t, err := attach(ctx, f)
	return f, t, err
}
