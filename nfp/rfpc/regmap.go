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

// RegClass distinguishes the three kinds of entries in the register map.
type RegClass int

const (
	ClassGPR RegClass = iota
	ClassPC
	ClassCSR
)

// RegDescriptor binds one debugger-visible register index to a hardware
// register.
type RegDescriptor struct {
	Index int
	Reg   Reg
	Width int // bytes
	Class RegClass
}

// RegMapVersion tags the ordering below. The target description document
// served to the debugger client must enumerate registers in exactly this
// order; bump the tag together with any change to the table.
const RegMapVersion = "nfp-rfpc-regs-1"

// Indices 0..31 are x0..x31 in architectural order, index 32 is the program
// counter (dpc while halted), and the CSRs follow in the order the
// description document enumerates them. Reordering silently breaks the
// client's register display, so the table is built once and never mutated.
var regMap = buildRegMap()

func buildRegMap() []RegDescriptor {
	var m []RegDescriptor
	for i := 0; i < 32; i++ {
		m = append(m, RegDescriptor{Index: i, Reg: GPR(i), Width: 8, Class: ClassGPR})
	}
	m = append(m, RegDescriptor{Index: 32, Reg: Dpc, Width: 8, Class: ClassPC})
	csrs := []CSR{
		Mstatus, Misa, Medeleg, Mideleg, Mie, Mtvec,
		Mscratch, Mepc, Mcause, Mtval, Mip,
		Dcsr, Dscratch0, Dscratch1,
		Mlmemprot, Mafstatus,
		Mcycle, Minstret, Cycle, Time, Instret,
		Mvendorid, Marchid, Mimpid, Mhartid,
	}
	for i, csr := range csrs {
		m = append(m, RegDescriptor{Index: 33 + i, Reg: csr, Width: 8, Class: ClassCSR})
	}
	return m
}

// RegMap returns the full ordered register table.
func RegMap() []RegDescriptor {
	return regMap
}

// NumRegs is the number of debugger-visible registers.
func NumRegs() int {
	return len(regMap)
}

// PCIndex is the register-map index of the program counter.
const PCIndex = 32

// LookupReg resolves a debugger register index. An unknown index is
// reported as such rather than mapped to a zero register: inventing a value
// would mask a client whose description document has drifted from this
// table.
func LookupReg(index int) (RegDescriptor, bool) {
	if index < 0 || index >= len(regMap) {
		return RegDescriptor{}, false
	}
	return regMap[index], true
}
