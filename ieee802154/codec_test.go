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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	wisunerr "github.com/openwisun/wisun-br/wisunerr"
)

func mustKind(t *testing.T, err error, kind wisunerr.Kind) {
	t.Helper()
	require.Error(t, err)
	var e *wisunerr.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, kind, e.Kind)
}

// TestParseUnsupportedDstAddrMode exercises spec.md §8 scenario 1: a
// frame with a 16-bit destination address mode must be rejected as
// Unsupported, with no further parsing of the frame.
func TestParseUnsupportedDstAddrMode(t *testing.T) {
	frame := []byte{0x01, 0xE8, 0x10, 0xCD, 0xAB, 0xFF, 0xFF, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	_, err := ParseDataIndication(frame, 0)
	mustKind(t, err, wisunerr.KindUnsupported)
}

func TestParseRejectsBeaconFrameType(t *testing.T) {
	// frame type = beacon (0), version = 2015 (0b10): isolates the
	// frame-type gate from the version gate, since command frames are
	// now accepted alongside data frames (spec.md §2's L4 data flow
	// over PA/PC/LPA/LPC/EAPOL command frames).
	frame := []byte{0x00, 0x20}
	_, err := ParseDataIndication(frame, 0)
	mustKind(t, err, wisunerr.KindUnsupported)
}

func TestParseAcceptsCommandFrameType(t *testing.T) {
	req := DataRequest{
		PANIDSuppressed: true,
		DstPANID:        0x1111,
		DstMode:         AddrModeExt64,
		DstAddr:         addr(0x01),
		SrcMode:         AddrModeExt64,
		SrcAddr:         addr(0x02),
	}
	wire := BuildDataRequest(req)
	// flip the frame-type field (bits 0-2 of the first byte) from DATA
	// to CMD and append a command identifier byte.
	wire[0] = wire[0]&^0x07 | byte(FrameTypeCmd)
	wire = append(wire, CmdPANAdvertisement)

	ind, err := ParseDataIndication(wire, 0x1111)
	require.NoError(t, err)
	require.Equal(t, FrameTypeCmd, ind.FrameType)
	require.Equal(t, CmdPANAdvertisement, ind.CommandID)
}

func TestParseRejectsOldFrameVersion(t *testing.T) {
	// type=DATA(1), version field = 0 (pre-2015)
	frame := []byte{0x01, 0x00}
	_, err := ParseDataIndication(frame, 0)
	mustKind(t, err, wisunerr.KindUnsupported)
}

func TestParseTruncatedFrameControl(t *testing.T) {
	_, err := ParseDataIndication([]byte{0x01}, 0)
	mustKind(t, err, wisunerr.KindTruncated)
}

func addr(b byte) Addr {
	return Addr{0, 0, 0, 0, 0, 0, 0, b}
}

// TestRoundTripExt64NoSecurityNoIEs covers spec.md §8's round-trip
// property for the simplest supported shape: 64-bit/64-bit
// addressing, PAN ID compressed, no security, no IEs.
func TestRoundTripExt64NoSecurityNoIEs(t *testing.T) {
	req := DataRequest{
		PANIDSuppressed: true,
		DstPANID:        0xABCD,
		DstMode:         AddrModeExt64,
		DstAddr:         addr(0x01),
		SrcMode:         AddrModeExt64,
		SrcAddr:         addr(0x02),
	}
	wire := BuildDataRequest(req)

	ind, err := ParseDataIndication(wire, 0xABCD)
	require.NoError(t, err)
	require.Equal(t, req.DstAddr, ind.DstAddr)
	require.Equal(t, req.SrcAddr, ind.SrcAddr)
	require.Equal(t, req.DstPANID, ind.DstPANID)
	require.Equal(t, req.DstPANID, ind.SrcPANID) // inherited, compression=1
	require.False(t, ind.Secured)
	require.False(t, ind.IEsPresent)
}

// TestRoundTripWithSeqNumberAndSecurity covers the security-header
// path with the sequence number present (not suppressed): security
// level and key index survive the round trip. The sequence-number
// value (always written as 0 by the builder), MIC and frame-counter
// bytes are not compared (spec.md §8).
func TestRoundTripWithSeqNumberAndSecurity(t *testing.T) {
	req := DataRequest{
		PANIDSuppressed: true,
		DstPANID:        0x1234,
		DstMode:         AddrModeExt64,
		DstAddr:         addr(0xAA),
		SrcMode:         AddrModeExt64,
		SrcAddr:         addr(0xBB),
		Security: Security{
			Level:    SecLevelEncMIC64,
			KeyIndex: 3,
		},
	}
	wire := BuildDataRequest(req)

	ind, err := ParseDataIndication(wire, 0x1234)
	require.NoError(t, err)
	require.True(t, ind.Secured)
	require.Equal(t, req.Security.Level, ind.Security.Level)
	require.Equal(t, req.Security.KeyIndex, ind.Security.KeyIndex)
}

func TestRoundTripWithHeaderAndPayloadIEs(t *testing.T) {
	headerIE := make([]byte, 2)
	// a single header IE with 0 payload bytes, arbitrary id 0x2A
	word := uint16(0x2A) << 7
	headerIE[0] = byte(word)
	headerIE[1] = byte(word >> 8)

	payloadChunk := []byte{0x02, 0x10, 'h', 'i'} // payload IE: len=2, id=2 -> word=0x1002

	req := DataRequest{
		PANIDSuppressed: true,
		DstPANID:        0x9999,
		DstMode:         AddrModeExt64,
		DstAddr:         addr(0x01),
		SrcMode:         AddrModeExt64,
		SrcAddr:         addr(0x02),
		HeaderIEs:       headerIE,
		PayloadIEs:      [][]byte{payloadChunk},
	}
	wire := BuildDataRequest(req)

	ind, err := ParseDataIndication(wire, 0x9999)
	require.NoError(t, err)
	require.True(t, ind.IEsPresent)
	require.Equal(t, headerIE, ind.HeaderIEs)
	require.Equal(t, payloadChunk, ind.PayloadIEs)
}

func TestPANIDCompressionTableIsInjective(t *testing.T) {
	seen := map[[3]int]bool{}
	for _, row := range panIDCompressionTable {
		key := [3]int{int(row.dstMode), int(row.srcMode), boolToInt(row.panIDCompression)}
		require.False(t, seen[key], "duplicate row for %+v", row)
		seen[key] = true
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestBuildDataRequestPanicsOnImpossibleAddressModes(t *testing.T) {
	require.Panics(t, func() {
		BuildDataRequest(DataRequest{
			DstMode: AddrModeReserved,
			SrcMode: AddrModeReserved,
		})
	})
}
