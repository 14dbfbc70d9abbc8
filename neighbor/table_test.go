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
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openwisun/wisun-br/ieee802154"
)

func mac(b byte) ieee802154.Addr {
	return ieee802154.Addr{0, 0, 0, 0, 0, 0, 0, b}
}

func TestTableAddGetDel(t *testing.T) {
	tbl := NewTable()
	a := mac(1)

	e := tbl.Add(a, RoleRouter, 10, 0)
	require.NotNil(t, e)

	got, ok := tbl.Get(a)
	require.True(t, ok)
	require.Same(t, e, got)

	tbl.Del(a)
	_, ok = tbl.Get(a)
	require.False(t, ok)
}

func TestTableAddTwiceReplaces(t *testing.T) {
	tbl := NewTable()
	a := mac(2)

	tbl.Add(a, RoleRouter, 0, 0)
	second := tbl.Add(a, RoleLFN, 0, 0)

	got, ok := tbl.Get(a)
	require.True(t, ok)
	require.Same(t, second, got)
	require.Equal(t, 1, tbl.Count())
}

func TestTableExpireInvokesCallback(t *testing.T) {
	tbl := NewTable()
	a := mac(3)
	e := tbl.Add(a, RoleRouter, 0, 0)
	e.ExpirationUnixS = time.Now().Unix() - 1

	var expired []ieee802154.Addr
	tbl.OnExpire = func(m ieee802154.Addr) { expired = append(expired, m) }

	got := tbl.Expire(time.Now())
	require.Equal(t, []ieee802154.Addr{a}, got)
	require.Equal(t, []ieee802154.Addr{a}, expired)
	_, ok := tbl.Get(a)
	require.False(t, ok)
}

func TestTableLFNCount(t *testing.T) {
	tbl := NewTable()
	tbl.Add(mac(1), RoleLFN, 0, 0)
	tbl.Add(mac(2), RoleLFN, 0, 0)
	tbl.Add(mac(3), RoleRouter, 0, 0)

	require.Equal(t, 2, tbl.LFNCount())
	require.Equal(t, 3, tbl.Count())
}

func TestTrustResetsExpiration(t *testing.T) {
	tbl := NewTable()
	e := tbl.Add(mac(1), RoleRouter, 0, 0)
	before := e.ExpirationUnixS
	e.LifetimeS = 3600
	tbl.Trust(e)
	require.True(t, e.TrustedDevice)
	require.GreaterOrEqual(t, e.ExpirationUnixS, before)
}

func TestDuplicateCheck(t *testing.T) {
	e := &Entry{}
	// first frame with dsn=5: never a duplicate, but now tracked.
	require.False(t, DuplicateCheck(e, 5, 1_000_000))
	require.Equal(t, uint8(5), e.LastDSN)
	require.True(t, e.UnicastDataRX)

	// same dsn, 2s later -> within the window, duplicate
	require.True(t, DuplicateCheck(e, 5, 3_000_000))
	// the duplicate must not have moved the reference timestamp forward
	require.Equal(t, uint64(1_000_000), e.LastUnicastRXTimestampUs)

	// same dsn, 6s after the original reference timestamp -> accepted
	require.False(t, DuplicateCheck(e, 5, 7_000_001))
	require.Equal(t, uint64(7_000_001), e.LastUnicastRXTimestampUs)

	// a new dsn right after an acceptance is never a duplicate
	require.False(t, DuplicateCheck(e, 6, 7_100_000))
}

func TestPOMUpdateCapsAtFifteenModes(t *testing.T) {
	e := &Entry{}
	ids := make([]uint8, 20)
	for i := range ids {
		ids[i] = uint8(i + 1)
	}
	e.POMUpdate(ids, true)
	require.Len(t, e.PhyModeIDs, maxPhyModeIDs)
	require.Equal(t, ids[:maxPhyModeIDs], e.PhyModeIDs)
	require.True(t, e.MDRCommandCapable)

	e.POMUpdate([]uint8{9}, false)
	require.Equal(t, []uint8{9}, e.PhyModeIDs)
	require.False(t, e.MDRCommandCapable)
}

func TestCalcLFNAdjustedIntervalScenario(t *testing.T) {
	got := CalcLFNAdjustedInterval(600000, 400000, 300000, 900000)
	require.Equal(t, uint32(300000), got)
}

func TestCalcLFNOffsetScenario(t *testing.T) {
	got := CalcLFNOffset(900, 600)
	require.Equal(t, uint32(300), got)
}

func TestCalcLFNAdjustedIntervalOutOfBoundsReturnsZero(t *testing.T) {
	require.Equal(t, uint32(0), CalcLFNAdjustedInterval(600000, 100000, 300000, 900000))
	require.Equal(t, uint32(0), CalcLFNAdjustedInterval(0, 400000, 300000, 900000))
}

func TestCalcLFNOffsetBelowGuardReturnsZero(t *testing.T) {
	require.Equal(t, uint32(0), CalcLFNOffset(500, 600))
}

func TestUTUpdateNoDriftOnFirstSample(t *testing.T) {
	var f FHSSState
	f.UCChanFunc = ChanFuncDH1CF
	f.FFN.UCDwellIntervalMs = 15

	_, ok := f.UTUpdate(0x000100, 1_000_000)
	require.False(t, ok)
	require.Equal(t, uint32(0x000100), f.FFN.UFSI)
}

func TestUTUpdateSkipsIdenticalSample(t *testing.T) {
	var f FHSSState
	f.FFN.UTTRxTimestampUs = 1000
	f.FFN.UFSI = 42
	f.UCChanFunc = ChanFuncDH1CF

	_, _ = f.UTUpdate(42, 1000)
	require.Equal(t, uint64(1000), f.FFN.UTTRxTimestampUs)
	require.Equal(t, uint32(42), f.FFN.UFSI)
}

func TestLUTUpdateDoesNotComputeDrift(t *testing.T) {
	var f FHSSState
	f.LUTUpdate(7, 1500, 9000)
	require.Equal(t, uint16(7), f.LFN.UCSlotNumber)
	require.Equal(t, uint32(1500), f.LFN.UCIntervalOffsetMs)
	require.Equal(t, uint64(9000), f.LFN.LUTTRxTimestampUs)
	// no FFN state was touched
	require.Zero(t, f.FFN.UFSI)
}

// TestUTUpdateTR51CFWithinOneScheduleDoesNotOverflow exercises a
// second UT-IE sample arriving sooner than one full TR51CF hopping
// schedule apart (the elapsed-window/full-schedule ratio truncates to
// 0), which used to underflow an unsigned schedule counter and blow
// driftPPM up to an astronomical, nonsensical value.
func TestUTUpdateTR51CFWithinOneScheduleDoesNotOverflow(t *testing.T) {
	var f FHSSState
	f.UCChanFunc = ChanFuncTR51CF
	f.UCChanCount = 100
	f.FFN.UCDwellIntervalMs = 110 // full schedule = 11s

	_, ok := f.UTUpdate(0x000100, 1)
	require.False(t, ok)

	driftPPM, ok := f.UTUpdate(0x000200, 10_500_001) // 10.5s later, within the 11s schedule
	require.True(t, ok)
	require.False(t, math.IsNaN(driftPPM))
	require.False(t, math.IsInf(driftPPM, 0))
	require.Less(t, math.Abs(driftPPM), 2_000_000.0)
}

func TestDeriveChannelMaskExplicitWithExcludedRange(t *testing.T) {
	plan := ChannelPlan{Kind: ChannelPlanExplicit, ChanCount: 16}
	excluded := ExcludedChannels{Kind: ExcludedRange, Ranges: []ExcludedChannelRange{{Start: 4, Stop: 8}}}
	mask := make([]byte, 32)

	count, err := DeriveChannelMask(plan, excluded, mask)
	require.NoError(t, err)
	require.Equal(t, uint16(12), count) // 16 channels minus the excluded [4,8) range
	for i := uint16(0); i < 16; i++ {
		want := !(i >= 4 && i < 8)
		require.Equal(t, want, bitTest(mask, i), "channel %d", i)
	}
	require.False(t, bitTest(mask, 16))
}

func TestDeriveChannelMaskUnknownDomainErrors(t *testing.T) {
	plan := ChannelPlan{Kind: ChannelPlanRegionClass, RegulatoryDomain: 99, OperatingClass: 1}
	mask := make([]byte, 32)
	_, err := DeriveChannelMask(plan, ExcludedChannels{}, mask)
	require.Error(t, err)
}

func TestDeriveChannelMaskExplicitCountBeyond256Errors(t *testing.T) {
	plan := ChannelPlan{Kind: ChannelPlanExplicit, ChanCount: 300}
	mask := make([]byte, 32)
	_, err := DeriveChannelMask(plan, ExcludedChannels{}, mask)
	require.Error(t, err)
}
