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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openwisun/wisun-br/ieee802154"
	"github.com/openwisun/wisun-br/neighbor"
)

type stubTUN struct {
	addr [16]byte
	err  error
}

func (s stubTUN) AddrGetGlobalUnicast() ([16]byte, error) { return s.addr, s.err }

type stubND struct {
	addrs map[ieee802154.Addr][][16]byte
}

func (s stubND) GlobalUnicastAddrs(eui64 ieee802154.Addr) ([][16]byte, error) {
	return s.addrs[eui64], nil
}

type stubRouting struct {
	targets []RoutingTarget
}

func (s stubRouting) RoutingGraph() []RoutingTarget { return s.targets }

func TestBuildRoutingGraphIncludesBorderRouterSelf(t *testing.T) {
	s := &Service{neigh: neighbor.NewTable(), tun: stubTUN{addr: [16]byte{0x20, 0x01}}}

	graph := s.buildRoutingGraph()
	require.Len(t, graph, 1)
	require.Equal(t, []byte{0x20, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, graph[0].Prefix)
	require.Empty(t, graph[0].Parents)
}

func TestBuildRoutingGraphIncludesRank1LFNViaND(t *testing.T) {
	neigh := neighbor.NewTable()
	lfn := ieee802154.Addr{1, 2, 3, 4, 5, 6, 7, 8}
	neigh.Add(lfn, neighbor.RoleLFN, 0, 0)
	router := ieee802154.Addr{8, 7, 6, 5, 4, 3, 2, 1}
	neigh.Add(router, neighbor.RoleRouter, 0, 0)

	brAddr := [16]byte{0x20, 0x01}
	lfnAddr := [16]byte{0x20, 0x02}
	linkLocal := [16]byte{0xfe, 0x80, 1}
	multicast := [16]byte{0xff, 0x02, 1}

	s := &Service{
		neigh: neigh,
		tun:   stubTUN{addr: brAddr},
		nd: stubND{addrs: map[ieee802154.Addr][][16]byte{
			lfn:    {lfnAddr, linkLocal, multicast},
			router: {{0x20, 0x03}}, // not an LFN, must be excluded
		}},
	}

	graph := s.buildRoutingGraph()
	require.Len(t, graph, 2) // border router self + one valid LFN address

	var lfnEntry *RoutingEntry
	for i := range graph {
		if graph[i].Prefix[0] == 0x20 && graph[i].Prefix[1] == 0x02 {
			lfnEntry = &graph[i]
		}
	}
	require.NotNil(t, lfnEntry)
	require.Len(t, lfnEntry.Parents, 1)
	require.Equal(t, brAddr[:], lfnEntry.Parents[0])
}

func TestBuildRoutingGraphCombinesRPLTargets(t *testing.T) {
	s := &Service{
		neigh: neighbor.NewTable(),
		routing: stubRouting{targets: []RoutingTarget{
			{Prefix: [16]byte{0x30}, External: true, Parents: [][16]byte{{0x31}}},
		}},
	}

	graph := s.buildRoutingGraph()
	require.Len(t, graph, 1)
	require.True(t, graph[0].External)
	require.Equal(t, []byte{0x31}, append([]byte(nil), graph[0].Parents[0][:1]...))
}

func TestIsMulticastOrLinkLocal(t *testing.T) {
	require.True(t, isMulticastOrLinkLocal([16]byte{0xff, 0x02}))
	require.True(t, isMulticastOrLinkLocal([16]byte{0xfe, 0x80}))
	require.False(t, isMulticastOrLinkLocal([16]byte{0x20, 0x01}))
}
