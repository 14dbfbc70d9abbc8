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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func longNested(subID uint8, content []byte) []byte {
	word := uint16(len(content))&0x07FF | uint16(subID)<<11 | 0x8000
	out := make([]byte, 2+len(content))
	binary.LittleEndian.PutUint16(out, word)
	copy(out[2:], content)
	return out
}

func payloadIEWithWPIE(body []byte) []byte {
	word := uint16(len(body))&0x07FF | uint16(0x01)<<11
	out := make([]byte, 2+len(body))
	binary.LittleEndian.PutUint16(out, word)
	copy(out[2:], body)
	return out
}

func TestDecodePANIE(t *testing.T) {
	panID, err := decodePANIE([]byte{0x34, 0x12})
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), panID)

	_, err = decodePANIE([]byte{0x01})
	require.Error(t, err)
}

func TestDecodePANVersionIE(t *testing.T) {
	version, err := decodePANVersionIE([]byte{0x05, 0x00})
	require.NoError(t, err)
	require.Equal(t, uint16(5), version)
}

func TestDecodeGTKHashIE(t *testing.T) {
	content := make([]byte, KeySlots*8)
	for i := range content {
		content[i] = byte(i)
	}
	hashes, err := decodeGTKHashIE(content)
	require.NoError(t, err)
	require.Equal(t, content[0:8], hashes[0][:])
	require.Equal(t, content[24:32], hashes[3][:])

	_, err = decodeGTKHashIE(make([]byte, 10))
	require.Error(t, err)
}

func TestObservePeerAdvertisementDetectsMismatch(t *testing.T) {
	s := New("my-network")
	s.PANID = 0x1234

	mismatch := s.ObservePeerAdvertisement(PeerAdvertisement{PANID: 0x1234, NetworkName: "my-network"})
	require.False(t, mismatch)

	mismatch = s.ObservePeerAdvertisement(PeerAdvertisement{PANID: 0x5678, NetworkName: "my-network"})
	require.True(t, mismatch)
	require.Equal(t, uint16(0x5678), s.LastPeerAdvertisement.PANID)
}

func TestGTKHashMismatch(t *testing.T) {
	s := New("my-network")
	s.InstallGTK(key(0xAA))

	var matching [KeySlots][8]byte
	slots := s.Keys.Slots()
	for i, slot := range slots {
		sum := sha256.Sum256(slot[:])
		copy(matching[i][:], sum[:8])
	}
	require.False(t, s.GTKHashMismatch(matching))

	var stale [KeySlots][8]byte
	require.True(t, s.GTKHashMismatch(stale))
}

func TestApplyAdvertisementIEsReportsBothMismatches(t *testing.T) {
	s := New("my-network")
	s.PANID = 0x1111
	s.InstallGTK(key(0xAA))

	body := longNested(subPAN, []byte{0x22, 0x22})
	body = append(body, longNested(subNetName, []byte("my-network"))...)
	body = append(body, longNested(subGTKHash, make([]byte, KeySlots*8))...)
	payloadIEs := payloadIEWithWPIE(body)

	advMismatch, gtkMismatch, err := s.ApplyAdvertisementIEs(payloadIEs)
	require.NoError(t, err)
	require.True(t, advMismatch) // PAN ID 0x2222 != local 0x1111
	require.True(t, gtkMismatch) // all-zero hashes never match an installed key
	require.Equal(t, "my-network", s.LastPeerAdvertisement.NetworkName)
}

func TestApplyAdvertisementIEsNoWPIEIsNoop(t *testing.T) {
	s := New("my-network")
	advMismatch, gtkMismatch, err := s.ApplyAdvertisementIEs([]byte{0x00, 0x00})
	require.NoError(t, err)
	require.False(t, advMismatch)
	require.False(t, gtkMismatch)
}
