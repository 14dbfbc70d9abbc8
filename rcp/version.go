// Copyright 2015 Matthew Holt and The Caddy Authors
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

package rcp

import "fmt"

// Version is a (major, minor, patch) API triple, compared
// lexicographically (spec.md §4.1/§6).
type Version struct {
	Major, Minor, Patch uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v >= other, comparing major then minor then
// patch.
func (v Version) AtLeast(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor > other.Minor
	}
	return v.Patch >= other.Patch
}

// Feature gates named in spec.md §4.1.
var (
	minVersionModeSwitch = Version{2, 0, 1}
	minVersionEDFE       = Version{2, 2, 0}
)

// SupportsModeSwitch reports whether the negotiated RCP API version
// gates in mode-switch support.
func (v Version) SupportsModeSwitch() bool { return v.AtLeast(minVersionModeSwitch) }

// SupportsEDFE reports whether the negotiated RCP API version gates in
// enhanced directed frame exchange.
func (v Version) SupportsEDFE() bool { return v.AtLeast(minVersionEDFE) }
