// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package chttp

import (
	"bytes"
	"strconv"
	"strings"
)

// Seq is a change-feed sequence number. Servers report sequence numbers
// either as bare integers, or as strings of the form "123-<opaque>"; both
// decode to the leading integer, which is sufficient for ordering and for
// resuming a feed.
type Seq int64

// UnmarshalJSON satisfies the [encoding/json.Unmarshaler] interface.
func (s *Seq) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(data, `"`))
	if raw == "null" {
		*s = 0
		return nil
	}
	if i := strings.IndexByte(raw, '-'); i > 0 {
		raw = raw[:i]
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return err
	}
	*s = Seq(seq)
	return nil
}
