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
	"math"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"

	"github.com/openwisun/wisun-br/ieee802154"
	"github.com/openwisun/wisun-br/neighbor"
	"github.com/openwisun/wisun-br/pan"
)

// NodeEntry is one row of the Nodes property: "(aya{sv})" -- an EUI-64
// plus a sparse dictionary of measurements, grounded on
// dbus_message_append_node.
type NodeEntry struct {
	EUI64 []byte
	Info  map[string]dbus.Variant
}

// RoutingEntry is one row of the RoutingGraph property:
// "(aybaay)", grounded on dbus_message_append_rpl_target.
type RoutingEntry struct {
	Prefix   []byte
	External bool
	Parents  [][]byte
}

func staticProp(v interface{}) *prop.Prop {
	return &prop.Prop{Value: v, Writable: false, Emit: prop.EmitFalse}
}

func (s *Service) propertySpec() map[string]map[string]*prop.Prop {
	gtks := s.pan.Keys.Slots()
	lgtks := s.pan.LFNKeys.Slots()
	gaks := s.pan.GAKs()
	lgaks := s.pan.LGAKs()
	hwAddr := s.rcp.EUI64()

	return map[string]map[string]*prop.Prop{
		InterfaceName: {
			"Gtks":  {Value: keySliceOf(gtks), Writable: false, Emit: prop.EmitTrue},
			"Lgtks": {Value: keySliceOf(lgtks), Writable: false, Emit: prop.EmitTrue},
			"Gaks":  {Value: keySliceOf(gaks), Writable: false, Emit: prop.EmitTrue},
			"Lgaks": {Value: keySliceOf(lgaks), Writable: false, Emit: prop.EmitTrue},

			"Nodes":        {Value: s.buildNodes(), Writable: false, Emit: prop.EmitInvalidates},
			"RoutingGraph": {Value: s.buildRoutingGraph(), Writable: false, Emit: prop.EmitInvalidates},

			"HwAddress":        staticProp(hwAddr[:]),
			"WisunNetworkName": staticProp(s.static.NetworkName),
			"WisunSize":        staticProp(s.static.Size),
			"WisunDomain":      staticProp(s.static.Domain),
			"WisunMode":        staticProp(s.static.Mode),
			"WisunClass":       staticProp(s.static.Class),
			"WisunPhyModeId":   staticProp(s.static.PhyModeID),
			"WisunChanPlanId":  staticProp(s.static.ChanPlanID),
			"WisunPanId":       staticProp(s.pan.PANID),
			"WisunFanVersion":  staticProp(s.pan.FANVersion),
		},
	}
}

func keySliceOf(keys [pan.KeySlots][pan.GTKLen]byte) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = append([]byte(nil), k[:]...)
	}
	return out
}

// refreshKeyProperties recomputes the four key-derived properties and
// emits PropertiesChanged for each (spec.md §8 scenario 5).
func (s *Service) refreshKeyProperties() {
	if s.props == nil {
		return
	}
	s.props.SetMust(InterfaceName, "Gtks", keySliceOf(s.pan.Keys.Slots()))
	s.props.SetMust(InterfaceName, "Lgtks", keySliceOf(s.pan.LFNKeys.Slots()))
	s.props.SetMust(InterfaceName, "Gaks", keySliceOf(s.pan.GAKs()))
	s.props.SetMust(InterfaceName, "Lgaks", keySliceOf(s.pan.LGAKs()))
}

// RefreshNodes recomputes and invalidates the Nodes property; called
// by the orchestrator whenever neighbor/supplicant state changes.
func (s *Service) RefreshNodes() {
	if s.props == nil {
		return
	}
	s.props.SetMust(InterfaceName, "Nodes", s.buildNodes())
}

// RefreshRoutingGraph recomputes and invalidates the RoutingGraph
// property.
func (s *Service) RefreshRoutingGraph() {
	if s.props == nil {
		return
	}
	s.props.SetMust(InterfaceName, "RoutingGraph", s.buildRoutingGraph())
}

func (s *Service) buildNodes() []NodeEntry {
	self := s.rcp.EUI64()
	nodes := []NodeEntry{{
		EUI64: append([]byte(nil), self[:]...),
		Info: map[string]dbus.Variant{
			"is_border_router": dbus.MakeVariant(true),
			"node_role":        dbus.MakeVariant(uint8(neighbor.RoleBorderRouter)),
		},
	}}

	if s.neigh == nil {
		return nodes
	}
	for _, mac64 := range s.neigh.MACs() {
		e, ok := s.neigh.Get(mac64)
		if !ok {
			continue
		}
		nodes = append(nodes, s.buildNodeEntry(mac64, e))
	}
	return nodes
}

func (s *Service) buildNodeEntry(mac64 ieee802154.Addr, e *neighbor.Entry) NodeEntry {
	info := map[string]dbus.Variant{}

	if s.supplicants != nil {
		if supp, ok := s.supplicants.Lookup(mac64); ok {
			info["is_authenticated"] = dbus.MakeVariant(supp.Authenticated)
			if supp.HasNodeRole {
				info["node_role"] = dbus.MakeVariant(supp.NodeRole)
			}
		}
	}

	info["is_neighbor"] = dbus.MakeVariant(true)
	if e.RxPowerDbm != math.MaxInt32 {
		info["rssi"] = dbus.MakeVariant(uint8(e.RxPowerDbm + 174))
	} else if e.RxPowerDbmUnsecured != math.MaxInt32 {
		info["rssi"] = dbus.MakeVariant(uint8(e.RxPowerDbmUnsecured + 174))
	}
	if !math.IsNaN(e.RSLInDbm) {
		info["rsl"] = dbus.MakeVariant(int32(e.RSLInDbm))
	} else if !math.IsNaN(e.RSLInDbmUnsecured) {
		info["rsl"] = dbus.MakeVariant(int32(e.RSLInDbmUnsecured))
	}
	if !math.IsNaN(e.RSLOutDbm) {
		info["rsl_adv"] = dbus.MakeVariant(int32(e.RSLOutDbm))
	}
	if e.LQI != math.MaxInt32 {
		info["lqi"] = dbus.MakeVariant(uint8(e.LQI))
	} else if e.LQIUnsecured != math.MaxInt32 {
		info["lqi"] = dbus.MakeVariant(uint8(e.LQIUnsecured))
	}
	if len(e.PhyModeIDs) > 0 {
		info["pom"] = dbus.MakeVariant(append([]byte(nil), e.PhyModeIDs...))
		info["mdr_cmd_capable"] = dbus.MakeVariant(e.MDRCommandCapable)
	}

	return NodeEntry{EUI64: append([]byte(nil), mac64[:]...), Info: info}
}

// buildRoutingGraph assembles the RoutingGraph property: one entry per
// RPL target, plus the border router itself, plus every rank-1 LFN
// neighbor ND has a non-multicast, non-link-local global-unicast
// address for (spec.md §4.5). The border router's own entry has no
// parents, being the DODAG root; a rank-1 LFN's single parent is the
// border router's own address, since "rank-1" means directly attached
// to the root rather than reached through an RPL transit.
func (s *Service) buildRoutingGraph() []RoutingEntry {
	var out []RoutingEntry

	if s.routing != nil {
		for _, t := range s.routing.RoutingGraph() {
			parents := make([][]byte, len(t.Parents))
			for j, p := range t.Parents {
				parents[j] = append([]byte(nil), p[:]...)
			}
			out = append(out, RoutingEntry{
				Prefix:   append([]byte(nil), t.Prefix[:]...),
				External: t.External,
				Parents:  parents,
			})
		}
	}

	var brAddr [16]byte
	haveBRAddr := false
	if s.tun != nil {
		if addr, err := s.tun.AddrGetGlobalUnicast(); err == nil {
			brAddr = addr
			haveBRAddr = true
			out = append(out, RoutingEntry{Prefix: append([]byte(nil), addr[:]...)})
		}
	}

	if s.nd != nil && s.neigh != nil {
		for _, mac64 := range s.neigh.MACs() {
			e, ok := s.neigh.Get(mac64)
			if !ok || e.NodeRole != neighbor.RoleLFN {
				continue
			}
			addrs, err := s.nd.GlobalUnicastAddrs(mac64)
			if err != nil {
				continue
			}
			for _, addr := range addrs {
				if isMulticastOrLinkLocal(addr) {
					continue
				}
				entry := RoutingEntry{Prefix: append([]byte(nil), addr[:]...)}
				if haveBRAddr {
					entry.Parents = [][]byte{append([]byte(nil), brAddr[:]...)}
				}
				out = append(out, entry)
			}
		}
	}

	return out
}

// isMulticastOrLinkLocal reports whether addr falls in ff00::/8
// (multicast) or fe80::/10 (link-local), the two ranges spec.md §4.5
// excludes from the rank-1-LFN RoutingGraph entries.
func isMulticastOrLinkLocal(addr [16]byte) bool {
	if addr[0] == 0xff {
		return true
	}
	return addr[0] == 0xfe && addr[1]&0xc0 == 0x80
}
