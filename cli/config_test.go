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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesanta/nfp-debug-tools/nfp/cpp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nfp.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadStubSettingsDefaults(t *testing.T) {
	s, err := loadStubSettings("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:12727", s.listenAddr)
	assert.Equal(t, 20*time.Millisecond, s.pollInterval)
	assert.Equal(t, cpp.Rfpc0, s.core.Island)
}

func TestLoadStubSettingsFromFile(t *testing.T) {
	path := writeConfig(t, `
listen_addr: 127.0.0.1:4000
poll_interval: 5ms
core:
  island: rfpc1
  cluster: 2
  group: 3
  core: 1
`)
	s, err := loadStubSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4000", s.listenAddr)
	assert.Equal(t, 5*time.Millisecond, s.pollInterval)
	assert.Equal(t, "rfpc1.2.3.1", s.core.String())
}

func TestLoadStubSettingsRejectsGarbage(t *testing.T) {
	_, err := loadStubSettings(writeConfig(t, "listen_addr: [not, a, string]"))
	assert.Error(t, err)

	_, err = loadStubSettings(writeConfig(t, "poll_interval: sometimes"))
	assert.Error(t, err)

	_, err = loadStubSettings(writeConfig(t, "core:\n  island: rfpc7"))
	assert.Error(t, err)

	_, err = loadStubSettings(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
