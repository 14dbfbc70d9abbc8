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
	"testing"

	"github.com/stretchr/testify/require"
)

func key(b byte) [GTKLen]byte {
	var k [GTKLen]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func TestInstallGTKThenRevokeScenario(t *testing.T) {
	s := New("my-network")
	var changed int
	s.OnKeysChange = func() { changed++ }

	s.InstallGTK(key(0xAA))
	require.Equal(t, uint32(1), s.PANVersion)
	require.Equal(t, 1, changed)
	require.Equal(t, key(0xAA), s.Keys.Slots()[0])

	newKey := key(0xBB)
	s.RevokeGroupKeys(&newKey, nil)
	require.Equal(t, uint32(2), s.PANVersion)
	require.Equal(t, key(0xBB), s.Keys.Slots()[0])
}

func TestRevokeGroupKeysLeavesUntouchedTableAloneWhenNil(t *testing.T) {
	s := New("my-network")
	s.InstallLGTK(key(0x01))

	gtk := key(0x02)
	s.RevokeGroupKeys(&gtk, nil)

	require.Equal(t, key(0x02), s.Keys.Slots()[0])
	require.Equal(t, key(0x01), s.LFNKeys.Slots()[0])
}

func TestKeyTableInstallFillsSlotsThenWrapsAround(t *testing.T) {
	var tbl KeyTable
	for i := byte(0); i < KeySlots; i++ {
		slot := tbl.Install(key(i))
		require.Equal(t, int(i), slot)
	}
	// table full, next install wraps to slot 0
	wrapped := tbl.Install(key(0xFF))
	require.Equal(t, 0, wrapped)
	require.Equal(t, key(0xFF), tbl.Slots()[0])
}

func TestGAKDerivation(t *testing.T) {
	gtk := key(0x42)
	gak := GAK("my-network", gtk)

	h := sha256.New()
	h.Write([]byte("my-network"))
	h.Write(gtk[:])
	want := h.Sum(nil)[:GTKLen]

	require.Equal(t, want, gak[:])
}

func TestInsertCustomIEScenario(t *testing.T) {
	s := New("my-network")
	err := s.InsertCustomIE(0, 0x2A, []byte("hello"), []FrameType{FrameTypePA, FrameTypePC})
	require.NoError(t, err)
	require.Equal(t, uint32(1), s.PANVersion)

	entries := s.CustomIE.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, uint16(1<<FrameTypePA|1<<FrameTypePC), entries[0].FrameTypeMask)
}

func TestInsertCustomIERejectsUnknownFrameType(t *testing.T) {
	s := New("my-network")
	err := s.InsertCustomIE(0, 0x2A, nil, []FrameType{FrameType(99)})
	require.Error(t, err)
	require.Empty(t, s.CustomIE.Entries())
	require.Equal(t, uint32(0), s.PANVersion)
}

func TestInsertCustomIEReplacesSameKey(t *testing.T) {
	s := New("my-network")
	require.NoError(t, s.InsertCustomIE(1, 5, []byte("a"), nil))
	require.NoError(t, s.InsertCustomIE(1, 5, []byte("b"), nil))

	entries := s.CustomIE.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, []byte("b"), entries[0].Content)
	require.Equal(t, uint32(2), s.PANVersion)
}

func TestClearCustomIEs(t *testing.T) {
	s := New("my-network")
	require.NoError(t, s.InsertCustomIE(1, 5, []byte("a"), nil))
	s.ClearCustomIEs()
	require.Empty(t, s.CustomIE.Entries())
	require.Equal(t, uint32(2), s.PANVersion)
}
