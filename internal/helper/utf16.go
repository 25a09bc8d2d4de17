// Copyright 2025 Google LLC
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

package helper

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/lazycopy/lazycopy/internal/lzerr"
)

func encodeUTF16NulTerminated(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, (len(units)+1)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], u)
	}
	return out
}

func decodeUTF16NulTerminated(b []byte) (string, []byte, error) {
	var units []uint16
	i := 0
	for {
		if i+2 > len(b) {
			return "", nil, lzerr.ErrInvalidStubData
		}
		u := binary.LittleEndian.Uint16(b[i : i+2])
		i += 2
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), b[i:], nil
}
