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

package controlapi

import (
	wisunerr "github.com/openwisun/wisun-br/wisunerr"
	"github.com/openwisun/wisun-br/ieee802154"
	"github.com/openwisun/wisun-br/pan"
)

// wisunBroadcastEUI64 is the all-ones EUI-64, folded to "unspecified"
// on input per spec.md §4.5's validation rules, grounded on
// dbus.c's dbus_set_mode_switch wisun_broadcast_mac_addr constant.
var wisunBroadcastEUI64 = ieee802154.Addr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// validateOptionalEUI64 accepts a 0-byte ("unspecified") or 8-byte
// EUI-64 argument, folding the all-ones broadcast address to
// unspecified as well. ok is false for the unspecified case.
func validateOptionalEUI64(b []byte) (addr ieee802154.Addr, ok bool, err error) {
	switch len(b) {
	case 0:
		return addr, false, nil
	case 8:
		copy(addr[:], b)
		if addr == wisunBroadcastEUI64 {
			return ieee802154.Addr{}, false, nil
		}
		return addr, true, nil
	default:
		return addr, false, wisunerr.NewError(wisunerr.KindInvalidArgument, "eui64 must be 0 or 8 bytes", nil)
	}
}

// validateEUI64 requires a present (8-byte, non-broadcast) EUI-64 --
// used by methods that name a specific neighbor rather than allowing
// "all neighbors" (RevokePairwiseKeys).
func validateEUI64(b []byte) (ieee802154.Addr, error) {
	addr, ok, err := validateOptionalEUI64(b)
	if err != nil {
		return addr, err
	}
	if !ok {
		return addr, wisunerr.NewError(wisunerr.KindInvalidArgument, "eui64 must not be unspecified", nil)
	}
	return addr, nil
}

// validateOptionalGTK accepts a 0-byte ("leave untouched") or 16-byte
// key argument.
func validateOptionalGTK(b []byte) (*[pan.GTKLen]byte, error) {
	switch len(b) {
	case 0:
		return nil, nil
	case pan.GTKLen:
		var k [pan.GTKLen]byte
		copy(k[:], b)
		return &k, nil
	default:
		return nil, wisunerr.NewError(wisunerr.KindInvalidArgument, "gtk must be 0 or 16 bytes", nil)
	}
}

// validateGTK requires a present 16-byte key (InstallGtk/InstallLgtk).
func validateGTK(b []byte) ([pan.GTKLen]byte, error) {
	k, err := validateOptionalGTK(b)
	if err != nil {
		return [pan.GTKLen]byte{}, err
	}
	if k == nil {
		return [pan.GTKLen]byte{}, wisunerr.NewError(wisunerr.KindInvalidArgument, "gtk must not be empty", nil)
	}
	return *k, nil
}

// ModeSwitchMode is the link-level mode-switch selector carried by
// SetLinkModeSwitch, grounded on dbus.c's WS_MODE_SWITCH_* constants
// (DEFAULT/DISABLED/MAC; PHY mode switch is configured by naming a
// nonzero phy_mode_id instead of a distinct mode value).
type ModeSwitchMode uint8

const (
	ModeSwitchDefault ModeSwitchMode = iota
	ModeSwitchDisabled
	ModeSwitchMAC
)

// validateModeSwitch ports dbus_set_link_mode_switch's three checks.
func validateModeSwitch(mode ModeSwitchMode, phyModeID uint32) error {
	if mode > ModeSwitchMAC {
		return wisunerr.NewError(wisunerr.KindInvalidArgument, "mode switch: mode out of range", nil)
	}
	if mode > ModeSwitchDisabled && phyModeID == 0 {
		return wisunerr.NewError(wisunerr.KindInvalidArgument, "mode switch: phy_mode_id required", nil)
	}
	if mode == ModeSwitchDefault && phyModeID != 0 {
		return wisunerr.NewError(wisunerr.KindInvalidArgument, "mode switch: phy_mode_id forbidden in default mode", nil)
	}
	return nil
}

// EDFEMode is the per-link EDFE selector carried by SetLinkEdfe,
// grounded on dbus.c's WS_EDFE_* constants.
type EDFEMode uint8

const (
	EDFEDefault EDFEMode = iota
	EDFEDisabled
	EDFEEnabled
	edfeModeMax
)

// edfeVersionGate reports whether the negotiated RCP API version
// supports enabling EDFE (>= 2.2.0, spec.md §4.1).
type edfeVersionGate interface {
	SupportsEDFE() bool
}

// validateLinkEdfe ports dbus_set_link_edfe's checks. hasEUI64 is
// false when the caller passed the 0-byte/broadcast EUI-64 form.
func validateLinkEdfe(mode EDFEMode, hasEUI64 bool, gate edfeVersionGate) error {
	if mode >= edfeModeMax {
		return wisunerr.NewError(wisunerr.KindInvalidArgument, "edfe: mode out of range", nil)
	}
	if mode == EDFEDefault && !hasEUI64 {
		return wisunerr.NewError(wisunerr.KindInvalidArgument, "edfe: default mode requires an explicit eui64", nil)
	}
	if mode == EDFEEnabled && !gate.SupportsEDFE() {
		return wisunerr.NewError(wisunerr.KindUnsupported, "edfe: RCP API version too old", nil)
	}
	return nil
}
