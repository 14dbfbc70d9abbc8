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

import wisunerr "github.com/openwisun/wisun-br/wisunerr"

// FrameType names the Wi-SUN frame types a custom IE can be attached
// to, grounded on dbus.c's WS_FT_* switch in dbus_ie_custom_insert.
type FrameType uint8

const (
	FrameTypePA FrameType = iota
	FrameTypePC
	FrameTypeEAPOL
	FrameTypeData
	FrameTypeLPA
	FrameTypeLPC
)

func validFrameType(ft FrameType) bool {
	switch ft {
	case FrameTypePA, FrameTypePC, FrameTypeEAPOL, FrameTypeData, FrameTypeLPA, FrameTypeLPC:
		return true
	default:
		return false
	}
}

// CustomIE is one entry of the custom information-element list,
// inserted by the control API and attached to outbound frames whose
// type matches FrameTypeMask.
type CustomIE struct {
	IEType        uint8
	IEID          uint8
	Content       []byte
	FrameTypeMask uint16
}

// CustomIEList is the PAN's custom-IE set, keyed by (IEType, IEID).
type CustomIEList struct {
	entries []CustomIE
}

// Entries returns the current list, for the frame-build path.
func (l *CustomIEList) Entries() []CustomIE {
	return l.entries
}

func frameTypeMask(frameTypes []FrameType) (uint16, error) {
	var mask uint16
	for _, ft := range frameTypes {
		if !validFrameType(ft) {
			return 0, wisunerr.NewError(wisunerr.KindInvalidArgument, "custom_ie: unsupported frame type", nil)
		}
		mask |= 1 << uint(ft)
	}
	return mask, nil
}

// Insert adds or replaces the entry for (ieType, ieID) -- a later
// insert with the same key overwrites rather than duplicating it, per
// spec.md §4.4. Frame types outside {PA, PC, EAPOL, DATA, LPA, LPC}
// are rejected without mutating the list.
func (l *CustomIEList) Insert(ieType, ieID uint8, content []byte, frameTypes []FrameType) error {
	mask, err := frameTypeMask(frameTypes)
	if err != nil {
		return err
	}

	entry := CustomIE{IEType: ieType, IEID: ieID, Content: content, FrameTypeMask: mask}
	for i, e := range l.entries {
		if e.IEType == ieType && e.IEID == ieID {
			l.entries[i] = entry
			return nil
		}
	}
	l.entries = append(l.entries, entry)
	return nil
}

// Clear empties the custom-IE list.
func (l *CustomIEList) Clear() {
	l.entries = nil
}

// InsertCustomIE inserts/replaces a custom IE and bumps the PAN
// version (spec.md §8 scenario 6).
func (s *State) InsertCustomIE(ieType, ieID uint8, content []byte, frameTypes []FrameType) error {
	if err := s.CustomIE.Insert(ieType, ieID, content, frameTypes); err != nil {
		return err
	}
	s.bumpVersion()
	return nil
}

// ClearCustomIEs empties the custom-IE list and bumps the PAN version.
func (s *State) ClearCustomIEs() {
	s.CustomIE.Clear()
	s.bumpVersion()
}

// IncRPLDTSN and IncRPLDodagVersion are thin passes to the RPL
// collaborator (spec.md §4.4).
func (s *State) IncRPLDTSN(rpl RPL) { rpl.IncDTSN() }

func (s *State) IncRPLDodagVersion(rpl RPL) { rpl.IncDodagVersion() }
