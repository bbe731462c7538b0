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

import (
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/cesanta/nfp-debug-tools/nfp/cpp"
)

// Core identifies one RFPC core by its position in the device topology.
// The identity is fixed for the lifetime of the process.
type Core struct {
	Island  cpp.Island
	Cluster uint8
	Group   uint8
	Core    uint8
}

func (c Core) String() string {
	return fmt.Sprintf("%s.%d.%d.%d", c.Island, c.Cluster, c.Group, c.Core)
}

// Hartsel returns the value for the hartsello field of dmcontrol that
// selects this core within its cluster's debug module. Each group has 4
// cores.
func (c Core) Hartsel() uint32 {
	return uint32(c.Group)<<2 | uint32(c.Core)
}

// Per-cluster XPB offsets within an RFPC island.
const (
	clusterXPBStride = 0xE0000
	dmXPBBase        = 0x200000
	memCtlXPBBase    = 0x280000
	memCtlGroupOff   = 0x100
)

// DebugModuleBase returns the XPB base address of the debug module that
// serves this core's cluster.
func (c Core) DebugModuleBase() uint32 {
	return dmXPBBase + clusterXPBStride*uint32(c.Cluster)
}

// MemCtlBase returns the XPB base address of the memory access control CSRs
// for this core's group.
func (c Core) MemCtlBase() uint32 {
	return memCtlXPBBase + clusterXPBStride*uint32(c.Cluster) + memCtlGroupOff*uint32(c.Group)
}

// Reg is an RFPC register as seen by the debug module's abstract commands:
// GPRs at regno 0x1000+n, CSRs at their architectural CSR number.
type Reg interface {
	RegAddr() uint16
	String() string
}

// GPR is a general-purpose register x0..x31.
type GPR uint8

func (g GPR) RegAddr() uint16 { return 0x1000 | uint16(g) }
func (g GPR) String() string  { return fmt.Sprintf("x%d", uint8(g)) }

// CSR is a control/status register, identified by its CSR number.
type CSR uint16

func (c CSR) RegAddr() uint16 { return uint16(c) }

const (
	Mstatus   CSR = 0x300
	Misa      CSR = 0x301
	Medeleg   CSR = 0x302
	Mideleg   CSR = 0x303
	Mie       CSR = 0x304
	Mtvec     CSR = 0x305
	Mscratch  CSR = 0x340
	Mepc      CSR = 0x341
	Mcause    CSR = 0x342
	Mtval     CSR = 0x343
	Mip       CSR = 0x344
	Dcsr      CSR = 0x7b0
	Dpc       CSR = 0x7b1
	Dscratch0 CSR = 0x7b2
	Dscratch1 CSR = 0x7b3
	// NFP-specific CSRs in the custom machine-mode space.
	Mlmemprot CSR = 0x7c0
	Mafstatus CSR = 0x7c1
	Mcycle    CSR = 0xb00
	Minstret  CSR = 0xb02
	Cycle     CSR = 0xc00
	Time      CSR = 0xc01
	Instret   CSR = 0xc02
	Mvendorid CSR = 0xf11
	Marchid   CSR = 0xf12
	Mimpid    CSR = 0xf13
	Mhartid   CSR = 0xf14
)

var csrNames = map[CSR]string{
	Mstatus:   "mstatus",
	Misa:      "misa",
	Medeleg:   "medeleg",
	Mideleg:   "mideleg",
	Mie:       "mie",
	Mtvec:     "mtvec",
	Mscratch:  "mscratch",
	Mepc:      "mepc",
	Mcause:    "mcause",
	Mtval:     "mtval",
	Mip:       "mip",
	Dcsr:      "dcsr",
	Dpc:       "dpc",
	Dscratch0: "dscratch0",
	Dscratch1: "dscratch1",
	Mlmemprot: "mlmemprot",
	Mafstatus: "mafstatus",
	Mcycle:    "mcycle",
	Minstret:  "minstret",
	Cycle:     "cycle",
	Time:      "time",
	Instret:   "instret",
	Mvendorid: "mvendorid",
	Marchid:   "marchid",
	Mimpid:    "mimpid",
	Mhartid:   "mhartid",
}

func (c CSR) String() string {
	if name, ok := csrNames[c]; ok {
		return name
	}
	return fmt.Sprintf("csr0x%03x", uint16(c))
}

// ParseReg resolves a user-supplied register name, either a GPR ("x7") or a
// CSR by name ("mhartid").
func ParseReg(s string) (Reg, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(name, "x") {
		var n uint8
		if _, err := fmt.Sscanf(name, "x%d", &n); err == nil && n < 32 {
			return GPR(n), nil
		}
	}
	for csr, csrName := range csrNames {
		if csrName == name {
			return csr, nil
		}
	}
	return nil, errors.Errorf("unknown register %q", s)
}
