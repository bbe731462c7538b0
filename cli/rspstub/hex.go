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
package rspstub

import (
	"encoding/binary"
	"encoding/hex"
)

// Register values travel as hex in target byte order: the little-endian
// bytes of the 64-bit value, each rendered as two hex digits. 0x1122 is
// "2211000000000000" on the wire.

func encodeRegValue(v uint64) string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return hex.EncodeToString(b[:])
}

func decodeRegValue(s string) (uint64, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 8 {
		return 0, protoErrorf(codeMalformed, "bad register value %q", s)
	}
	return binary.LittleEndian.Uint64(b), nil
}

func decodeHexBytes(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, protoErrorf(codeMalformed, "bad hex data %q", s)
	}
	return b, nil
}

// parseHexUint parses GDB's plain big-endian hex numbers (addresses,
// lengths, register indices).
func parseHexUint(s string) (uint64, error) {
	if s == "" || len(s) > 16 {
		return 0, protoErrorf(codeMalformed, "bad hex number %q", s)
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		n, ok := hexDigit(s[i])
		if !ok {
			return 0, protoErrorf(codeMalformed, "bad hex number %q", s)
		}
		v = v<<4 | uint64(n)
	}
	return v, nil
}

func hexDigit(b byte) (uint8, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}
