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

package neighbor

import (
	"fmt"
	"math/bits"

	wisunerr "github.com/openwisun/wisun-br/wisunerr"
)

// ChannelPlanKind discriminates the three shapes a ws_generic_channel_info
// can take (spec.md §9: a closed sum type, not polymorphism).
type ChannelPlanKind uint8

const (
	// ChannelPlanRegionClass: regulatory domain + operating class.
	ChannelPlanRegionClass ChannelPlanKind = iota
	// ChannelPlanExplicit: explicit chan0 frequency/spacing/count.
	ChannelPlanExplicit
	// ChannelPlanRegionID: regulatory domain + channel-plan ID.
	ChannelPlanRegionID
)

// ChannelPlan is the parsed ws_generic_channel_info channel-plan
// variant.
type ChannelPlan struct {
	Kind ChannelPlanKind

	RegulatoryDomain uint8
	OperatingClass   uint8 // ChannelPlanRegionClass
	ChanPlanID       uint8 // ChannelPlanRegionID

	Chan0FreqHz   uint32 // ChannelPlanExplicit
	ChanSpacingHz uint32 // ChannelPlanExplicit
	ChanCount     uint16 // ChannelPlanExplicit

	ChannelFunction ChannelFunction
	FixedChannel    uint8 // valid when ChannelFunction == ChanFuncFixed
}

// ExcludedChannelKind discriminates the excluded-channel descriptor
// variant.
type ExcludedChannelKind uint8

const (
	ExcludedNone ExcludedChannelKind = iota
	ExcludedRange
	ExcludedMask
)

// ExcludedChannelRange is one [start, stop) range of excluded channel
// numbers.
type ExcludedChannelRange struct {
	Start, Stop uint16
}

// ExcludedChannels is the parsed exclusion descriptor.
type ExcludedChannels struct {
	Kind   ExcludedChannelKind
	Ranges []ExcludedChannelRange
	Mask   []byte // one bit per channel, LSB-first per byte
}

// chanParams is one row of the regulatory-domain channel-count table,
// grounded on ws_regdb_chan_params's callers in ws_neigh.c. The pack's
// original_source excerpt doesn't include ws_regdb.c itself, so this
// carries a representative subset of domains rather than the full
// table -- see DESIGN.md's Open Question decisions.
type chanParams struct {
	domain    uint8
	opClass   uint8
	planID    uint8
	chanCount uint16
}

var regDomainTable = []chanParams{
	{domain: 0, opClass: 1, chanCount: 129}, // North America, class 1
	{domain: 0, opClass: 2, chanCount: 64},  // North America, class 2
	{domain: 1, opClass: 1, chanCount: 69},  // European Union, class 1
	{domain: 2, planID: 1, chanCount: 199},  // China, plan 1
	{domain: 3, planID: 1, chanCount: 89},   // Brazil, plan 1
}

func lookupChanParams(plan ChannelPlan) (chanParams, bool) {
	for _, row := range regDomainTable {
		switch plan.Kind {
		case ChannelPlanRegionClass:
			if row.domain == plan.RegulatoryDomain && row.opClass == plan.OperatingClass {
				return row, true
			}
		case ChannelPlanRegionID:
			if row.domain == plan.RegulatoryDomain && row.planID == plan.ChanPlanID {
				return row, true
			}
		}
	}
	return chanParams{}, false
}

func bitSet(mask []byte, i uint16, v bool) {
	if int(i/8) >= len(mask) {
		return
	}
	if v {
		mask[i/8] |= 1 << (i % 8)
	} else {
		mask[i/8] &^= 1 << (i % 8)
	}
}

func bitTest(mask []byte, i uint16) bool {
	if int(i/8) >= len(mask) {
		return false
	}
	return mask[i/8]&(1<<(i%8)) != 0
}

func bitFillRange(mask []byte, v bool, start, stop uint16) {
	for i := start; i < stop; i++ {
		bitSet(mask, i, v)
	}
}

// DeriveChannelMask populates chanMask (a 32-byte bitset, one bit per
// channel) and returns the channel count, per spec.md §4.3 "Channel
// mask derivation". An explicit channel plan (kind 1) needs no
// regulatory-domain lookup; the other two kinds do, and an unknown
// (domain, class/plan) pair is a configuration error. The returned
// count is the post-exclusion popcount of chanMask, matching spec.md
// §3 invariant 3 (uc_chan_count == popcount(uc_channel_list) for any
// non-fixed channel function).
func DeriveChannelMask(plan ChannelPlan, excluded ExcludedChannels, chanMask []byte) (chanCount uint16, err error) {
	if len(chanMask) != 32 {
		panic("neighbor: channel mask must be exactly 32 bytes")
	}

	var baseCount uint16
	switch plan.Kind {
	case ChannelPlanExplicit:
		baseCount = plan.ChanCount
	case ChannelPlanRegionClass, ChannelPlanRegionID:
		params, ok := lookupChanParams(plan)
		if !ok {
			return 0, wisunerr.NewError(wisunerr.KindInvalidArgument,
				fmt.Sprintf("unknown regulatory domain/class combination: %+v", plan), nil)
		}
		baseCount = params.chanCount
	default:
		panic(fmt.Sprintf("neighbor: unsupported channel plan kind %d", plan.Kind))
	}

	if int(baseCount) > len(chanMask)*8 {
		return 0, wisunerr.NewError(wisunerr.KindInvalidArgument,
			fmt.Sprintf("channel plan's base count %d exceeds the 256-bit mask (spec.md §3's uc_channel_list)", baseCount), nil)
	}

	for i := range chanMask {
		chanMask[i] = 0
	}
	bitFillRange(chanMask, true, 0, baseCount)

	switch excluded.Kind {
	case ExcludedRange:
		for _, rng := range excluded.Ranges {
			stop := rng.Stop
			if stop > baseCount {
				stop = baseCount
			}
			bitFillRange(chanMask, false, rng.Start, stop)
		}
	case ExcludedMask:
		n := int(baseCount)
		if n > len(excluded.Mask)*8 {
			n = len(excluded.Mask) * 8
		}
		for i := 0; i < n; i++ {
			if bitTest(excluded.Mask, uint16(i)) {
				bitSet(chanMask, uint16(i), false)
			}
		}
	}

	for _, b := range chanMask {
		chanCount += uint16(bits.OnesCount8(b))
	}
	return chanCount, nil
}
