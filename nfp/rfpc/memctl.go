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
	"context"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/cesanta/nfp-debug-tools/nfp/xpb"
)

// Memory access control CSRs, per core group.
const (
	memCtlEnable    uint32 = 0x00
	memCtlWindow    uint32 = 0x40
	memCtlPermit    uint32 = 0x44
	memCtlEnableAll uint32 = 0x7
	memCtlPermitAll uint32 = 0xFF0159
)

// InitMemCtl opens the group's memory windows so the debug module's
// load/store path reaches LMEM and the shared memories. Idempotent; run
// once before serving a core.
func InitMemCtl(ctx context.Context, bus xpb.Bus, core Core) error {
	base := core.MemCtlBase()
	glog.V(3).Infof("%s: init mem-ctl at 0x%06x", core, base)
	for _, w := range []struct {
		off, val uint32
	}{
		{memCtlEnable, memCtlEnableAll},
		{memCtlWindow, 0},
		{memCtlPermit, memCtlPermitAll},
	} {
		if err := xpb.WriteOne(ctx, bus, core.Island, base+w.off, w.val); err != nil {
			return errors.Annotatef(err, "mem-ctl write at +0x%02x failed", w.off)
		}
	}
	return nil
}
