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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// shortNested builds one WH-IE short nested sub-IE: 2-byte descriptor
// (8-bit length, 7-bit sub-ID, type=0) followed by content.
func shortNested(subID uint8, content []byte) []byte {
	word := uint16(len(content)) | uint16(subID)<<8
	out := make([]byte, 2+len(content))
	binary.LittleEndian.PutUint16(out, word)
	copy(out[2:], content)
	return out
}

// longNested builds one WP-IE long nested sub-IE: 2-byte descriptor
// (11-bit length, 4-bit sub-ID, type=1) followed by content.
func longNested(subID uint8, content []byte) []byte {
	word := uint16(len(content))&0x07FF | uint16(subID)<<11 | 0x8000
	out := make([]byte, 2+len(content))
	binary.LittleEndian.PutUint16(out, word)
	copy(out[2:], content)
	return out
}

// headerIEWithWHIE wraps body as a single WH-IE header IE (element ID
// 0x2a), matching ieee802154.ParseWHIE's expectations.
func headerIEWithWHIE(body []byte) []byte {
	word := uint16(len(body))&0x007F | uint16(0x2a)<<7
	out := make([]byte, 2+len(body))
	binary.LittleEndian.PutUint16(out, word)
	copy(out[2:], body)
	return out
}

// payloadIEWithWPIE wraps body as a single WP-IE payload IE group (id
// 0x01), matching ieee802154.ParseWPIE's expectations.
func payloadIEWithWPIE(body []byte) []byte {
	word := uint16(len(body))&0x07FF | uint16(0x01)<<11
	out := make([]byte, 2+len(body))
	binary.LittleEndian.PutUint16(out, word)
	copy(out[2:], body)
	return out
}

func le24(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16)}
}

func TestDecodeUTIE(t *testing.T) {
	ufsi, err := decodeUTIE(le24(0x0A0B0C))
	require.NoError(t, err)
	require.Equal(t, uint32(0x0A0B0C), ufsi)

	_, err = decodeUTIE([]byte{1, 2})
	require.Error(t, err)
}

func TestDecodeLUTTIE(t *testing.T) {
	content := append([]byte{0x07, 0x00}, le24(1500)...)
	slotNumber, offsetMs, err := decodeLUTTIE(content)
	require.NoError(t, err)
	require.Equal(t, uint16(7), slotNumber)
	require.Equal(t, uint32(1500), offsetMs)
}

func TestDecodeNRIE(t *testing.T) {
	content := append([]byte{0x00}, le24(300000)...)
	content = append(content, le24(900000)...)
	bounds, err := decodeNRIE(content)
	require.NoError(t, err)
	require.Equal(t, uint32(300000), bounds.UCIntervalMinMs)
	require.Equal(t, uint32(900000), bounds.UCIntervalMaxMs)
}

func TestDecodeLUSIE(t *testing.T) {
	listenIntervalMs, err := decodeLUSIE(le24(60000))
	require.NoError(t, err)
	require.Equal(t, uint32(60000), listenIntervalMs)
}

func TestDecodeLNDIE(t *testing.T) {
	content := make([]byte, 8)
	binary.LittleEndian.PutUint32(content[0:4], 2000)
	binary.LittleEndian.PutUint16(content[4:6], 500)
	content[6] = 3
	content[7] = 1
	info, err := decodeLNDIE(content)
	require.NoError(t, err)
	require.Equal(t, uint32(2000), info.ResponseDelayMs)
	require.Equal(t, uint32(500), info.SlotDurationMs)
	require.Equal(t, uint8(3), info.SlotCount)
	require.Equal(t, uint8(1), info.SlotFirst)
}

func TestDecodePOMIE(t *testing.T) {
	content := []byte{0x82, 1, 2} // count=2, mdr bit set
	ids, mdrCapable, err := decodePOMIE(content)
	require.NoError(t, err)
	require.Equal(t, []uint8{1, 2}, ids)
	require.True(t, mdrCapable)

	_, _, err = decodePOMIE([]byte{0x05, 1}) // count=5 but only 1 byte follows
	require.Error(t, err)
}

func TestDecodeUSIEExplicitFixedChannel(t *testing.T) {
	content := []byte{10, 0, 0, 0} // dwell=10, 2 reserved bytes, control below
	content[3] = 0x01 | (0x00 << 2) // kind=explicit(1), chanFunc=fixed(0), excl=none
	content = append(content, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0) // chan0/spacing/count = 10 bytes
	content = append(content, 5, 0) // fixed channel = 5

	plan, excluded, dwellMs, err := decodeUSIE(content)
	require.NoError(t, err)
	require.Equal(t, uint32(10), dwellMs)
	require.Equal(t, ChannelPlanExplicit, plan.Kind)
	require.Equal(t, ChanFuncFixed, plan.ChannelFunction)
	require.Equal(t, uint8(5), plan.FixedChannel)
	require.Equal(t, ExcludedNone, excluded.Kind)
}

func TestDecodeUSIERegionClassWithExcludedRange(t *testing.T) {
	content := []byte{20, 0, 0, 0}
	content[3] = 0x00 | (0x01 << 2) | (0x01 << 5) // kind=region/class(0), chanFunc=TR51CF(1), excl=range(1)
	content = append(content, 0, 1)                // domain=0, class=1
	content = append(content, 1)                   // one excluded range
	content = append(content, 4, 0, 8, 0)           // [4, 8)

	plan, excluded, _, err := decodeUSIE(content)
	require.NoError(t, err)
	require.Equal(t, ChannelPlanRegionClass, plan.Kind)
	require.Equal(t, ChanFuncTR51CF, plan.ChannelFunction)
	require.Equal(t, ExcludedRange, excluded.Kind)
	require.Equal(t, []ExcludedChannelRange{{Start: 4, Stop: 8}}, excluded.Ranges)
}

func TestApplyHeaderIEsAppliesEachSubIE(t *testing.T) {
	body := append([]byte{}, shortNested(subUT, le24(0x0B0C0D))...)
	body = append(body, shortNested(subLUS, le24(45000))...)
	headerIEs := headerIEWithWHIE(body)

	e := &Entry{}
	err := e.ApplyHeaderIEs(headerIEs, 1_000_000, 600000)
	require.NoError(t, err)
	require.Equal(t, uint32(0x0B0C0D), e.FHSS.FFN.UFSI)
	require.Equal(t, uint32(45000), e.FHSS.LFN.UCListenIntervalMs)
}

func TestApplyHeaderIEsNoWHIEIsNoop(t *testing.T) {
	e := &Entry{}
	err := e.ApplyHeaderIEs([]byte{0x00, 0x00}, 0, 0)
	require.NoError(t, err)
	require.Zero(t, e.FHSS.FFN.UFSI)
}

func TestApplyPayloadIEsUpdatesPOM(t *testing.T) {
	body := longNested(subPOM, []byte{0x02, 9, 10})
	payloadIEs := payloadIEWithWPIE(body)

	e := &Entry{}
	err := e.ApplyPayloadIEs(payloadIEs)
	require.NoError(t, err)
	require.Equal(t, []uint8{9, 10}, e.PhyModeIDs)
}
