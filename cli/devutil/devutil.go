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

// Package devutil locates NFP devices on the PCIe bus through sysfs.
package devutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// The Merlin PF as it appears in PCI config space.
const (
	VendorNetronome = 0x1da8
	DeviceNFP       = 0x7000
)

// SysfsRoot is the PCI device tree; tests point it at a fixture.
var SysfsRoot = "/sys/bus/pci/devices"

var bdfRe = regexp.MustCompile(`^(?:([0-9a-fA-F]{4}):)?([0-9a-fA-F]{2}):([0-9a-fA-F]{2})\.([0-7])$`)

// CanonicalBDF normalizes a user-supplied PCIe address to the
// domain-qualified dddd:bb:dd.f form sysfs uses. The domain defaults
// to 0000.
func CanonicalBDF(bdf string) (string, error) {
	m := bdfRe.FindStringSubmatch(strings.TrimSpace(bdf))
	if m == nil {
		return "", errors.Errorf("%q is not a PCI address (expected [dddd:]bb:dd.f)", bdf)
	}
	domain := m[1]
	if domain == "" {
		domain = "0000"
	}
	return strings.ToLower(fmt.Sprintf("%s:%s:%s.%s", domain, m[2], m[3], m[4])), nil
}

func readHexAttr(dir, name string) (uint64, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, errors.Trace(err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 0, 32)
	return v, errors.Annotatef(err, "bad %s attribute", name)
}

// CheckDevice verifies that bdf names an NFP PF and returns the canonical
// address. It guards against pointing the debug tools at some other device's
// BAR, where the register pokes that follow would be destructive.
func CheckDevice(bdf string) (string, error) {
	canonical, err := CanonicalBDF(bdf)
	if err != nil {
		return "", errors.Trace(err)
	}
	dir := filepath.Join(SysfsRoot, canonical)
	if _, err := os.Stat(dir); err != nil {
		return "", errors.Annotatef(err, "no PCI device %s", canonical)
	}
	vendor, err := readHexAttr(dir, "vendor")
	if err != nil {
		return "", errors.Trace(err)
	}
	device, err := readHexAttr(dir, "device")
	if err != nil {
		return "", errors.Trace(err)
	}
	if vendor != VendorNetronome || device != DeviceNFP {
		return "", errors.Errorf("%s is %04x:%04x, not an NFP (%04x:%04x)",
			canonical, vendor, device, VendorNetronome, DeviceNFP)
	}
	return canonical, nil
}
