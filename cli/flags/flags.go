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
package flags

import (
	"time"

	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/cesanta/nfp-debug-tools/nfp/cpp"
	"github.com/cesanta/nfp-debug-tools/nfp/rfpc"
)

var (
	Device = flag.StringP("device", "d", "", "PCIe address of the NFP, e.g. 0000:65:00.0")

	Island  = flag.String("island", "rfpc0", "RFPC island (rfpc0..rfpc3)")
	Cluster = flag.Int("cluster", 0, "Cluster within the island")
	Group   = flag.Int("group", 0, "Core group within the cluster")
	CoreNum = flag.Int("core", 0, "Core within the group")

	ListenAddr = flag.String("listen-addr", "127.0.0.1:12727", "Address for the GDB stub to listen on")
	ConfigFile = flag.String("config-file", "", "Optional YAML config file for the rsp command")

	PollInterval = flag.Duration("poll-interval", 20*time.Millisecond,
		"How often to sample the run state of a resumed core")
	Wait = flag.Duration("wait", 10*time.Second, "How long to wait for halt/resume to take effect")
)

// Core assembles and validates the core selection flags.
func Core() (rfpc.Core, error) {
	return MakeCore(*Island, *Cluster, *Group, *CoreNum)
}

// MakeCore validates a core position against the RFPC topology: up to 6
// clusters per island, 8 groups per cluster, 4 cores per group.
func MakeCore(island string, cluster, group, core int) (rfpc.Core, error) {
	isl, err := cpp.ParseIsland(island)
	if err != nil {
		return rfpc.Core{}, errors.Trace(err)
	}
	if cluster < 0 || cluster > 5 {
		return rfpc.Core{}, errors.Errorf("cluster %d out of range 0..5", cluster)
	}
	if group < 0 || group > 7 {
		return rfpc.Core{}, errors.Errorf("group %d out of range 0..7", group)
	}
	if core < 0 || core > 3 {
		return rfpc.Core{}, errors.Errorf("core %d out of range 0..3", core)
	}
	return rfpc.Core{Island: isl, Cluster: uint8(cluster), Group: uint8(group), Core: uint8(core)}, nil
}
