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
	"github.com/cesanta/nfp-debug-tools/nfp/expbar"
	"github.com/cesanta/nfp-debug-tools/nfp/rfpc"
)

// regMain reads or writes one register of a core. The core is halted for
// the access and put back to its previous run state afterwards.
func regMain(ctx context.Context) error {
	args := flag.Args()[1:]
	if len(args) < 1 || len(args) > 2 {
		return errors.Errorf("usage: reg <name> [value]")
	}
	reg, err := rfpc.ParseReg(args[0])
	if err != nil {
		return errors.Trace(err)
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
	core, err := flags.Core()
	if err != nil {
		return errors.Trace(err)
	}
	port := rfpc.NewDebugPort(dev.XPB(), dev.CTM(), core)
	port.Wait = *flags.Wait

	state, err := port.Status(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if state == rfpc.StateRunning {
		if err := port.Halt(ctx); err != nil {
			return errors.Trace(err)
		}
		defer func() {
			if rerr := port.Resume(ctx); rerr != nil {
				ourutil.Reportf("Warning: failed to resume %s: %v", core, rerr)
			}
		}()
	}

	if len(args) == 2 {
		value, err := strconv.ParseUint(args[1], 0, 64)
		if err != nil {
			return errors.Annotatef(err, "bad value %q", args[1])
		}
		if err := port.WriteReg(ctx, reg, value); err != nil {
			return errors.Trace(err)
		}
		ourutil.Reportf("%s: %s = 0x%016x", core, reg, value)
		return nil
	}
	value, err := port.ReadReg(ctx, reg)
	if err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("%s: %s == 0x%016x", core, reg, value)
	return nil
}
