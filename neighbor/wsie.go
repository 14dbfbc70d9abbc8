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
	"encoding/binary"

	"github.com/openwisun/wisun-br/ieee802154"
	wisunerr "github.com/openwisun/wisun-br/wisunerr"
)

// WH-IE nested sub-IE identifiers this module consumes (Wi-SUN FAN 1.1
// §6.3.4). Sub-IEs this module has no use for (BT, FC, RSL, MHDS, VH,
// LBT, FLUS, LBS, LTO, PANID) are left unnamed; ApplyHeaderIEs skips
// them.
const (
	subUT   uint8 = 0
	subLUTT uint8 = 6
	subNR   uint8 = 8
	subLUS  uint8 = 9
	subLND  uint8 = 12
)

// WP-IE nested sub-IE identifiers this module consumes.
const (
	subUS  uint8 = 0
	subPOM uint8 = 7
)

func decodeUTIE(content []byte) (ufsi uint32, err error) {
	if len(content) < 3 {
		return 0, wisunerr.NewError(wisunerr.KindTruncated, "UT-IE shorter than 3 bytes", nil)
	}
	return uint32(content[0]) | uint32(content[1])<<8 | uint32(content[2])<<16, nil
}

func decodeLUTTIE(content []byte) (slotNumber uint16, intervalOffsetMs uint32, err error) {
	if len(content) < 5 {
		return 0, 0, wisunerr.NewError(wisunerr.KindTruncated, "LUTT-IE shorter than 5 bytes", nil)
	}
	slotNumber = binary.LittleEndian.Uint16(content[0:2])
	intervalOffsetMs = uint32(content[2]) | uint32(content[3])<<8 | uint32(content[4])<<16
	return slotNumber, intervalOffsetMs, nil
}

func decodeNRIE(content []byte) (bounds LFNBounds, err error) {
	if len(content) < 7 {
		return bounds, wisunerr.NewError(wisunerr.KindTruncated, "NR-IE shorter than 7 bytes", nil)
	}
	// content[0] is the advertised node role; the neighbor's role is
	// already known from the join-time Table.Add call, so it isn't
	// re-derived here.
	bounds.UCIntervalMinMs = uint32(content[1]) | uint32(content[2])<<8 | uint32(content[3])<<16
	bounds.UCIntervalMaxMs = uint32(content[4]) | uint32(content[5])<<8 | uint32(content[6])<<16
	return bounds, nil
}

func decodeLUSIE(content []byte) (listenIntervalMs uint32, err error) {
	if len(content) < 3 {
		return 0, wisunerr.NewError(wisunerr.KindTruncated, "LUS-IE shorter than 3 bytes", nil)
	}
	return uint32(content[0]) | uint32(content[1])<<8 | uint32(content[2])<<16, nil
}

func decodeLNDIE(content []byte) (info LNDInfo, err error) {
	if len(content) < 8 {
		return info, wisunerr.NewError(wisunerr.KindTruncated, "LND-IE shorter than 8 bytes", nil)
	}
	info.ResponseDelayMs = binary.LittleEndian.Uint32(content[0:4])
	info.SlotDurationMs = uint32(binary.LittleEndian.Uint16(content[4:6]))
	info.SlotCount = content[6]
	info.SlotFirst = content[7]
	return info, nil
}

func decodePOMIE(content []byte) (phyModeIDs []uint8, mdrCommandCapable bool, err error) {
	if len(content) < 1 {
		return nil, false, wisunerr.NewError(wisunerr.KindTruncated, "POM-IE missing count byte", nil)
	}
	count := int(content[0] & 0x7f)
	mdrCommandCapable = content[0]&0x80 != 0
	if len(content) < 1+count {
		return nil, false, wisunerr.NewError(wisunerr.KindTruncated, "POM-IE shorter than its advertised count", nil)
	}
	return append([]uint8(nil), content[1:1+count]...), mdrCommandCapable, nil
}

// decodeUSIE decodes a US-IE's channel plan, excluded-channel
// descriptor and dwell interval. The wire layout mirrors
// ws_generic_channel_info's variants (neighbor/channel.go's
// ChannelPlan/ExcludedChannels): a dwell-interval byte, two reserved
// bytes, then 1 control byte selecting the plan kind, channel function
// and excluded-channel kind, followed by the variant-specific fields.
func decodeUSIE(content []byte) (plan ChannelPlan, excluded ExcludedChannels, dwellIntervalMs uint32, err error) {
	if len(content) < 4 {
		return plan, excluded, 0, wisunerr.NewError(wisunerr.KindTruncated, "US-IE shorter than 4 bytes", nil)
	}
	dwellIntervalMs = uint32(content[0])
	ctrl := content[3]
	planKind := ctrl & 0x03
	chanFunc := (ctrl >> 2) & 0x07
	exclKind := (ctrl >> 5) & 0x03
	pos := 4

	switch ChannelPlanKind(planKind) {
	case ChannelPlanRegionClass:
		if len(content) < pos+2 {
			return plan, excluded, 0, wisunerr.NewError(wisunerr.KindTruncated, "US-IE region/class plan truncated", nil)
		}
		plan.Kind = ChannelPlanRegionClass
		plan.RegulatoryDomain = content[pos]
		plan.OperatingClass = content[pos+1]
		pos += 2
	case ChannelPlanExplicit:
		if len(content) < pos+10 {
			return plan, excluded, 0, wisunerr.NewError(wisunerr.KindTruncated, "US-IE explicit plan truncated", nil)
		}
		plan.Kind = ChannelPlanExplicit
		plan.Chan0FreqHz = binary.LittleEndian.Uint32(content[pos : pos+4])
		plan.ChanSpacingHz = binary.LittleEndian.Uint32(content[pos+4 : pos+8])
		plan.ChanCount = binary.LittleEndian.Uint16(content[pos+8 : pos+10])
		pos += 10
	case ChannelPlanRegionID:
		if len(content) < pos+2 {
			return plan, excluded, 0, wisunerr.NewError(wisunerr.KindTruncated, "US-IE region/plan-id truncated", nil)
		}
		plan.Kind = ChannelPlanRegionID
		plan.RegulatoryDomain = content[pos]
		plan.ChanPlanID = content[pos+1]
		pos += 2
	default:
		return plan, excluded, 0, wisunerr.NewError(wisunerr.KindUnsupported, "US-IE unknown channel plan kind", nil)
	}

	plan.ChannelFunction = ChannelFunction(chanFunc)
	if plan.ChannelFunction == ChanFuncFixed {
		if len(content) < pos+2 {
			return plan, excluded, 0, wisunerr.NewError(wisunerr.KindTruncated, "US-IE fixed channel truncated", nil)
		}
		plan.FixedChannel = uint8(binary.LittleEndian.Uint16(content[pos : pos+2]))
		pos += 2
	}

	switch ExcludedChannelKind(exclKind) {
	case ExcludedNone:
	case ExcludedRange:
		if len(content) < pos+1 {
			return plan, excluded, 0, wisunerr.NewError(wisunerr.KindTruncated, "US-IE excluded-range count truncated", nil)
		}
		n := int(content[pos])
		pos++
		if len(content) < pos+4*n {
			return plan, excluded, 0, wisunerr.NewError(wisunerr.KindTruncated, "US-IE excluded ranges truncated", nil)
		}
		excluded.Kind = ExcludedRange
		excluded.Ranges = make([]ExcludedChannelRange, n)
		for i := 0; i < n; i++ {
			excluded.Ranges[i].Start = binary.LittleEndian.Uint16(content[pos : pos+2])
			excluded.Ranges[i].Stop = binary.LittleEndian.Uint16(content[pos+2 : pos+4])
			pos += 4
		}
	case ExcludedMask:
		excluded.Kind = ExcludedMask
		excluded.Mask = append([]byte(nil), content[pos:]...)
	default:
		return plan, excluded, 0, wisunerr.NewError(wisunerr.KindUnsupported, "US-IE unknown excluded-channel kind", nil)
	}

	return plan, excluded, dwellIntervalMs, nil
}

// ApplyHeaderIEs decodes the WH-IE's nested sub-IEs relevant to this
// neighbor's FHSS timing and listen-interval bounds from a received
// frame's header IE list (spec.md §2's L3 step: "updates the neighbor
// entry and FHSS timing"), applying each one present. bcIntervalMs is
// the PAN's broadcast interval, needed by LUSUpdate to re-derive the
// harmonically-adjusted listening interval.
func (e *Entry) ApplyHeaderIEs(headerIEs []byte, rxTimestampUs uint64, bcIntervalMs uint32) error {
	subIEs, found, err := ieee802154.ParseWHIE(headerIEs)
	if err != nil || !found {
		return err
	}
	for _, sub := range subIEs {
		switch sub.SubID {
		case subUT:
			ufsi, err := decodeUTIE(sub.Content)
			if err != nil {
				return err
			}
			e.FHSS.UTUpdate(ufsi, rxTimestampUs)
		case subLUTT:
			slotNumber, offsetMs, err := decodeLUTTIE(sub.Content)
			if err != nil {
				return err
			}
			e.FHSS.LUTUpdate(slotNumber, offsetMs, rxTimestampUs)
		case subNR:
			bounds, err := decodeNRIE(sub.Content)
			if err != nil {
				return err
			}
			e.NRUpdate(bounds)
		case subLUS:
			listenIntervalMs, err := decodeLUSIE(sub.Content)
			if err != nil {
				return err
			}
			e.FHSS.LUSUpdate(listenIntervalMs, e.LTO, bcIntervalMs)
		case subLND:
			info, err := decodeLNDIE(sub.Content)
			if err != nil {
				return err
			}
			e.FHSS.LNDUpdate(info, rxTimestampUs)
		}
	}
	return nil
}

// ApplyPayloadIEs decodes the WP-IE's nested sub-IEs relevant to this
// neighbor's unicast schedule and PHY capability set from a received
// frame's payload IE list.
func (e *Entry) ApplyPayloadIEs(payloadIEs []byte) error {
	subIEs, found, err := ieee802154.ParseWPIE(payloadIEs)
	if err != nil || !found {
		return err
	}
	for _, sub := range subIEs {
		switch sub.SubID {
		case subUS:
			plan, excluded, dwellMs, err := decodeUSIE(sub.Content)
			if err != nil {
				return err
			}
			if err := e.FHSS.USUpdate(plan, excluded, dwellMs); err != nil {
				return err
			}
		case subPOM:
			ids, mdrCapable, err := decodePOMIE(sub.Content)
			if err != nil {
				return err
			}
			e.POMUpdate(ids, mdrCapable)
		}
	}
	return nil
}
