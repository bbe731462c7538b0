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
package cpp

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
)

// Island identifies a CPP island on the NFP. Only the RFPC islands are of
// interest to the debug tools; the id is the island number used in global
// CPP and XPB addressing.
type Island uint8

const (
	Rfpc0 Island = 0x30 + iota
	Rfpc1
	Rfpc2
	Rfpc3
)

var islandNames = map[Island]string{
	Rfpc0: "rfpc0",
	Rfpc1: "rfpc1",
	Rfpc2: "rfpc2",
	Rfpc3: "rfpc3",
}

func (i Island) ID() uint8 {
	return uint8(i)
}

func (i Island) String() string {
	if name, ok := islandNames[i]; ok {
		return name
	}
	return fmt.Sprintf("island%d", uint8(i))
}

// ParseIsland resolves a user-supplied island name ("rfpc0".."rfpc3").
func ParseIsland(s string) (Island, error) {
	for island, name := range islandNames {
		if name == strings.ToLower(strings.TrimSpace(s)) {
			return island, nil
		}
	}
	return 0, errors.Errorf("unknown island %q", s)
}
