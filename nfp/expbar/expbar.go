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

// Package expbar maps the expansion BARs of a Merlin NFP PCIe function and
// exposes them as the XPB and CTM access capabilities the debug tools
// consume. The PF driver configures the BAR windows at boot: BAR0 carries a
// flat XPB aperture addressed by global XPB address (island << 24 | csr),
// BAR2 carries one CTM window per RFPC island.
package expbar

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"golang.org/x/sys/unix"

	"github.com/cesanta/nfp-debug-tools/nfp/cpp"
	"github.com/cesanta/nfp-debug-tools/nfp/mu"
	"github.com/cesanta/nfp-debug-tools/nfp/xpb"
)

const ctmWindowSize = 1 << 20 // 1M of CTM per island

// Device is an open pair of mapped expansion BARs.
type Device struct {
	bdf     string
	xpbFile *os.File
	xpbMem  []byte
	ctmFile *os.File
	ctmMem  []byte
}

func mapResource(path string) (*os.File, []byte, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "failed to open %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errors.Trace(err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, errors.Annotatef(err, "failed to map %s", path)
	}
	return f, mem, nil
}

// Open maps the expansion BARs of the device identified by its PCIe BDF.
func Open(bdf string) (*Device, error) {
	xpbFile, xpbMem, err := mapResource(fmt.Sprintf("/sys/bus/pci/devices/%s/resource0", bdf))
	if err != nil {
		return nil, errors.Trace(err)
	}
	ctmFile, ctmMem, err := mapResource(fmt.Sprintf("/sys/bus/pci/devices/%s/resource2", bdf))
	if err != nil {
		unix.Munmap(xpbMem)
		xpbFile.Close()
		return nil, errors.Trace(err)
	}
	glog.V(1).Infof("%s: mapped BAR0 %d bytes, BAR2 %d bytes", bdf, len(xpbMem), len(ctmMem))
	return &Device{bdf: bdf, xpbFile: xpbFile, xpbMem: xpbMem, ctmFile: ctmFile, ctmMem: ctmMem}, nil
}

func (d *Device) Close() error {
	unix.Munmap(d.xpbMem)
	unix.Munmap(d.ctmMem)
	d.xpbFile.Close()
	return errors.Trace(d.ctmFile.Close())
}

// XPB returns the XPB bus view of the device.
func (d *Device) XPB() xpb.Bus { return (*xpbBus)(d) }

// CTM returns the memory-unit engine view of the device.
func (d *Device) CTM() mu.Engine { return (*ctmEngine)(d) }

func barRead(mem []byte, off uint64, count int) ([]uint32, error) {
	if off+4*uint64(count) > uint64(len(mem)) {
		return nil, errors.Errorf("read of %d words at 0x%x is outside the BAR (size 0x%x)", count, off, len(mem))
	}
	words := make([]uint32, count)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(mem[off+4*uint64(i):])
	}
	return words, nil
}

func barWrite(mem []byte, off uint64, words []uint32) error {
	if off+4*uint64(len(words)) > uint64(len(mem)) {
		return errors.Errorf("write of %d words at 0x%x is outside the BAR (size 0x%x)", len(words), off, len(mem))
	}
	for i, w := range words {
		binary.LittleEndian.PutUint32(mem[off+4*uint64(i):], w)
	}
	return nil
}

type xpbBus Device

func (b *xpbBus) offset(island cpp.Island, addr uint32) uint64 {
	return uint64(island.ID())<<24 | uint64(addr)
}

func (b *xpbBus) Read(ctx context.Context, island cpp.Island, addr uint32, count int) ([]uint32, error) {
	words, err := barRead(b.xpbMem, b.offset(island, addr), count)
	return words, errors.Annotatef(err, "xpb read %s:0x%06x", island, addr)
}

func (b *xpbBus) Write(ctx context.Context, island cpp.Island, addr uint32, words []uint32) error {
	return errors.Annotatef(barWrite(b.xpbMem, b.offset(island, addr), words), "xpb write %s:0x%06x", island, addr)
}

type ctmEngine Device

func (e *ctmEngine) offset(island cpp.Island, addr uint32) uint64 {
	return uint64(island.ID()-cpp.Rfpc0.ID())*ctmWindowSize + uint64(addr)
}

func (e *ctmEngine) ReadWord(ctx context.Context, island cpp.Island, addr uint32) (uint32, error) {
	words, err := e.Read(ctx, island, addr, 1)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return words[0], nil
}

func (e *ctmEngine) WriteWord(ctx context.Context, island cpp.Island, addr uint32, value uint32) error {
	return errors.Trace(e.Write(ctx, island, addr, []uint32{value}))
}

func (e *ctmEngine) Read(ctx context.Context, island cpp.Island, addr uint32, count int) ([]uint32, error) {
	words, err := barRead(e.ctmMem, e.offset(island, addr), count)
	return words, errors.Annotatef(err, "ctm read %s:0x%06x", island, addr)
}

func (e *ctmEngine) Write(ctx context.Context, island cpp.Island, addr uint32, words []uint32) error {
	return errors.Annotatef(barWrite(e.ctmMem, e.offset(island, addr), words), "ctm write %s:0x%06x", island, addr)
}
