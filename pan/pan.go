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

// Package pan implements the L4 PAN management layer: the singleton
// PAN state (network name, version counters), the GTK/LGTK key
// tables, and the custom information-element list. All mutations run
// on the orchestrator's single goroutine; the PAN type holds no lock
// of its own, same as neighbor.Table.
package pan

// GTK/LGTK tables hold exactly this many slots (spec.md §4.4).
const KeySlots = 4

// GTKLen is the fixed key length, in bytes.
const GTKLen = 16

// State is the singleton per-interface PAN state: identity, version
// counters and the GTK/LGTK/custom-IE collaborators, grounded on
// struct ws_info in original_source/.../ws_common.h (not excerpted in
// the pack, inferred from its users in dbus.c) and spec.md §3.
type State struct {
	NetworkName string
	PANID       uint16
	FANVersion  uint8

	// PANVersion increments on every IE reconfiguration: key install/
	// revoke, custom-IE insert/clear (spec.md §4.4).
	PANVersion uint32

	Keys     KeyTable
	LFNKeys  KeyTable
	CustomIE CustomIEList

	// BroadcastIntervalMs is this PAN's broadcast schedule interval,
	// advertised in this border router's own BT-IE/BS-IE and needed by
	// neighbor.FHSSState.LUSUpdate to re-derive an LFN's harmonically
	// adjusted listening interval from its LUS-IE (spec.md §4.3).
	BroadcastIntervalMs uint32

	// LastPeerAdvertisement is the most recently observed PAN identity
	// a neighbor advertised in its own PA/PC IEs, kept for diagnostic
	// comparison only (see ApplyAdvertisementIEs).
	LastPeerAdvertisement PeerAdvertisement

	// OnKeysChange/OnPANVersionChange notify a control-API layer of a
	// property-change-worthy event; nil is a valid no-op subscriber.
	OnKeysChange       func()
	OnPANVersionChange func()
}

// New returns PAN state for a network with the given name.
func New(networkName string) *State {
	return &State{NetworkName: networkName}
}

func (s *State) bumpVersion() {
	s.PANVersion++
	if s.OnPANVersionChange != nil {
		s.OnPANVersionChange()
	}
}

// IncRPLDTSN and IncRPLDodagVersion are thin passes to an RPL
// collaborator (spec.md §4.4's rpl_dtsn_inc/rpl_dodag_version_inc);
// the collaborator is injected rather than imported, since RPL itself
// is out of this module's scope (spec.md Non-goals).
type RPL interface {
	IncDTSN()
	IncDodagVersion()
}
