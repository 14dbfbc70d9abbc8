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

package wisunbr

import "github.com/openwisun/wisun-br/wisunerr"

// Kind, Error and NewError are aliases onto wisunerr, which holds the
// actual taxonomy (spec.md §7). It lives in its own leaf package
// because every sub-package below (ieee802154, rcp, pan, neighbor,
// controlapi) returns these errors while also being imported by this
// root package; aliasing here keeps the pre-existing wisunbr.Kind /
// wisunbr.Error / wisunbr.NewError call sites in this package working
// unchanged.
type Kind = wisunerr.Kind

const (
	KindUnsupported     = wisunerr.KindUnsupported
	KindMalformed       = wisunerr.KindMalformed
	KindTruncated       = wisunerr.KindTruncated
	KindInvalidArgument = wisunerr.KindInvalidArgument
	KindNotFound        = wisunerr.KindNotFound
	KindTransient       = wisunerr.KindTransient
	KindFatal           = wisunerr.KindFatal
)

type Error = wisunerr.Error

// NewError builds an *Error of the given kind with a short reason tag,
// optionally wrapping a lower-level cause.
func NewError(kind Kind, reason string, cause error) *Error {
	return wisunerr.NewError(kind, reason, cause)
}
