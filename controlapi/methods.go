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
	"errors"

	"github.com/godbus/dbus/v5"

	wisunerr "github.com/openwisun/wisun-br/wisunerr"
	"github.com/openwisun/wisun-br/ieee802154"
	"github.com/openwisun/wisun-br/pan"
)

// methods is the value exported onto InterfaceName; godbus resolves
// D-Bus method calls to its exported Go methods by name.
type methods struct {
	s *Service
}

func newMethods(s *Service) *methods {
	return &methods{s: s}
}

// toDBusError maps this module's Kind taxonomy onto D-Bus error names
// (spec.md §7); callers never see a bare Go error type across the bus.
func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	var e *wisunerr.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case wisunerr.KindInvalidArgument:
			return dbus.MakeFailedError(err)
		case wisunerr.KindUnsupported:
			return dbus.NewError("com.silabs.Wisun.BorderRouter.Error.NotSupported", []interface{}{err.Error()})
		case wisunerr.KindNotFound:
			return dbus.NewError("org.freedesktop.DBus.Error.UnknownObject", []interface{}{err.Error()})
		}
	}
	return dbus.MakeFailedError(err)
}

func eui64Addrs(raw [][]byte) ([]ieee802154.Addr, error) {
	addrs := make([]ieee802154.Addr, 0, len(raw))
	for _, b := range raw {
		a, err := validateEUI64(b)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

func (m *methods) JoinMulticastGroup(ipv6 []byte) *dbus.Error {
	if len(ipv6) != 16 {
		return toDBusError(wisunerr.NewError(wisunerr.KindInvalidArgument, "ipv6 must be 16 bytes", nil))
	}
	if m.s.mcast == nil {
		return nil
	}
	var addr [16]byte
	copy(addr[:], ipv6)
	return toDBusError(m.s.mcast.JoinMulticastGroup(addr))
}

func (m *methods) LeaveMulticastGroup(ipv6 []byte) *dbus.Error {
	if len(ipv6) != 16 {
		return toDBusError(wisunerr.NewError(wisunerr.KindInvalidArgument, "ipv6 must be 16 bytes", nil))
	}
	if m.s.mcast == nil {
		return nil
	}
	var addr [16]byte
	copy(addr[:], ipv6)
	return toDBusError(m.s.mcast.LeaveMulticastGroup(addr))
}

func (m *methods) SetLinkModeSwitch(eui64 []byte, phyModeID uint32, mode byte) *dbus.Error {
	addr, has, err := validateOptionalEUI64(eui64)
	if err != nil {
		return toDBusError(err)
	}
	if err := validateModeSwitch(ModeSwitchMode(mode), phyModeID); err != nil {
		return toDBusError(err)
	}
	if m.s.link == nil {
		return nil
	}
	var addrPtr *ieee802154.Addr
	if has {
		addrPtr = &addr
	}
	return toDBusError(m.s.link.SetModeSwitch(addrPtr, ModeSwitchMode(mode), phyModeID))
}

func (m *methods) SetLinkEdfe(eui64 []byte, mode byte) *dbus.Error {
	addr, has, err := validateOptionalEUI64(eui64)
	if err != nil {
		return toDBusError(err)
	}
	if err := validateLinkEdfe(EDFEMode(mode), has, m.s.rcp.APIVersion()); err != nil {
		return toDBusError(err)
	}
	if m.s.link == nil {
		return nil
	}
	var addrPtr *ieee802154.Addr
	if has {
		addrPtr = &addr
	}
	return toDBusError(m.s.link.SetEDFE(addrPtr, EDFEMode(mode)))
}

func (m *methods) RevokePairwiseKeys(eui64 []byte) *dbus.Error {
	addr, err := validateEUI64(eui64)
	if err != nil {
		return toDBusError(err)
	}
	if m.s.keyStore == nil {
		return nil
	}
	return toDBusError(m.s.pan.RevokePairwiseKeys(m.s.keyStore, addr))
}

func (m *methods) RevokeGroupKeys(gtk []byte, lgtk []byte) *dbus.Error {
	newGTK, err := validateOptionalGTK(gtk)
	if err != nil {
		return toDBusError(err)
	}
	newLGTK, err := validateOptionalGTK(lgtk)
	if err != nil {
		return toDBusError(err)
	}
	m.s.pan.RevokeGroupKeys(newGTK, newLGTK)
	return nil
}

func (m *methods) InstallGtk(key []byte) *dbus.Error {
	k, err := validateGTK(key)
	if err != nil {
		return toDBusError(err)
	}
	m.s.pan.InstallGTK(k)
	return nil
}

func (m *methods) InstallLgtk(key []byte) *dbus.Error {
	k, err := validateGTK(key)
	if err != nil {
		return toDBusError(err)
	}
	m.s.pan.InstallLGTK(k)
	return nil
}

func (m *methods) IeCustomInsert(ieType byte, ieID byte, content []byte, frameTypes []byte) *dbus.Error {
	types := make([]pan.FrameType, len(frameTypes))
	for i, ft := range frameTypes {
		types[i] = pan.FrameType(ft)
	}
	if err := m.s.pan.InsertCustomIE(ieType, ieID, content, types); err != nil {
		return toDBusError(err)
	}
	return nil
}

func (m *methods) IeCustomClear() *dbus.Error {
	m.s.pan.ClearCustomIEs()
	return nil
}

func (m *methods) IncrementRplDtsn() *dbus.Error {
	if m.s.rpl == nil {
		return nil
	}
	m.s.pan.IncRPLDTSN(m.s.rpl)
	return nil
}

func (m *methods) IncrementRplDodagVersionNumber() *dbus.Error {
	if m.s.rpl == nil {
		return nil
	}
	m.s.pan.IncRPLDodagVersion(m.s.rpl)
	return nil
}

func (m *methods) AllowMac64(addrs [][]byte) *dbus.Error {
	parsed, err := eui64Addrs(addrs)
	if err != nil {
		return toDBusError(err)
	}
	if m.s.filter == nil {
		return nil
	}
	return toDBusError(m.s.filter.AllowMac64(parsed))
}

func (m *methods) DenyMac64(addrs [][]byte) *dbus.Error {
	parsed, err := eui64Addrs(addrs)
	if err != nil {
		return toDBusError(err)
	}
	if m.s.filter == nil {
		return nil
	}
	return toDBusError(m.s.filter.DenyMac64(parsed))
}
