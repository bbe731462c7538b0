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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesanta/nfp-debug-tools/nfp/cpp"
)

func TestMakeCore(t *testing.T) {
	core, err := MakeCore("rfpc2", 1, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, cpp.Rfpc2, core.Island)
	assert.Equal(t, "rfpc2.1.3.2", core.String())

	_, err = MakeCore("rfpc9", 0, 0, 0)
	assert.Error(t, err)
	_, err = MakeCore("rfpc0", 6, 0, 0)
	assert.Error(t, err)
	_, err = MakeCore("rfpc0", 0, 8, 0)
	assert.Error(t, err)
	_, err = MakeCore("rfpc0", 0, 0, 4)
	assert.Error(t, err)
}
