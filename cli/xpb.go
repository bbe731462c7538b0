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
package main

import (
	"context"
	"strconv"

	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/cesanta/nfp-debug-tools/cli/devutil"
	"github.com/cesanta/nfp-debug-tools/cli/flags"
	"github.com/cesanta/nfp-debug-tools/cli/ourutil"
	"github.com/cesanta/nfp-debug-tools/nfp/cpp"
	"github.com/cesanta/nfp-debug-tools/nfp/expbar"
	"github.com/cesanta/nfp-debug-tools/nfp/xpb"
)

// xpbMain pokes a single XPB CSR. Useful for bringup when the debug module
// itself is in doubt.
func xpbMain(ctx context.Context) error {
	args := flag.Args()[1:]
	if len(args) < 2 || len(args) > 3 {
		return errors.Errorf("usage: xpb <island> <addr> [value]")
	}
	island, err := cpp.ParseIsland(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	addr, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return errors.Annotatef(err, "bad address %q", args[1])
	}

	bdf, err := devutil.CheckDevice(*flags.Device)
	if err != nil {
		return errors.Trace(err)
	}
	dev, err := expbar.Open(bdf)
	if err != nil {
		return errors.Trace(err)
	}
	defer dev.Close()
	bus := dev.XPB()

	if len(args) == 3 {
		value, err := strconv.ParseUint(args[2], 0, 32)
		if err != nil {
			return errors.Annotatef(err, "bad value %q", args[2])
		}
		if err := xpb.WriteOne(ctx, bus, island, uint32(addr), uint32(value)); err != nil {
			return errors.Trace(err)
		}
		ourutil.Reportf("%s:0x%06x = 0x%08x", island, addr, value)
		return nil
	}
	value, err := xpb.ReadOne(ctx, bus, island, uint32(addr))
	if err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("%s:0x%06x == 0x%08x", island, addr, value)
	return nil
}
