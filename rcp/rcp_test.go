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

package rcp

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openwisun/wisun-br/bus"
	"github.com/openwisun/wisun-br/ieee802154"
)

func newTestPair(t *testing.T) (*RCP, *bus.Bus) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return New(bus.New(client), zap.NewNop()), bus.New(server)
}

func putU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func TestServeOneDispatchesOnReset(t *testing.T) {
	r, peer := newTestPair(t)

	body := []byte{byte(indOnReset)}
	body = putU32(body, 2) // api major
	body = putU32(body, 1) // api minor
	body = putU32(body, 0) // api patch
	body = putU32(body, 9) // fw major
	body = putU32(body, 0)
	body = putU32(body, 0)
	body = append(body, 0)                                 // version label length 0
	body = append(body, []byte{8, 7, 6, 5, 4, 3, 2, 1}...) // eui64, wire order
	body = append(body, 0)                                 // rail count 0

	errCh := make(chan error, 1)
	go func() { errCh <- peer.Send(body) }()

	var resetCalled bool
	r.OnReset = func(*RCP) { resetCalled = true }

	require.NoError(t, r.ServeOne())
	require.NoError(t, <-errCh)
	require.True(t, resetCalled)
	require.True(t, r.HasReset())
	require.Equal(t, Version{2, 1, 0}, r.APIVersion())
	require.Equal(t, ieee802154.Addr{1, 2, 3, 4, 5, 6, 7, 8}, r.EUI64())
}

func TestServeOneDispatchesRxInd(t *testing.T) {
	r, peer := newTestPair(t)

	frame := []byte{0xAA, 0xBB, 0xCC}
	body := []byte{byte(indRxInd)}
	body = putU16(body, uint16(len(frame)))
	body = append(body, frame...)
	rssi := int8(-42)
	body = append(body, byte(rssi)) // rssi
	body = append(body, 200)             // lqi
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], 123456789)
	body = append(body, ts[:]...)
	body = append(body, 11) // channel

	errCh := make(chan error, 1)
	go func() { errCh <- peer.Send(body) }()

	var got RxIndication
	r.OnRxInd = func(_ *RCP, ind RxIndication) { got = ind }

	require.NoError(t, r.ServeOne())
	require.NoError(t, <-errCh)
	require.Equal(t, frame, got.Frame)
	require.Equal(t, int8(-42), got.RSSIDbm)
	require.Equal(t, uint8(200), got.LQI)
	require.Equal(t, uint64(123456789), got.TimestampUs)
	require.Equal(t, uint8(11), got.Channel)
}

func TestDataTXRejectsModeSwitchBeforeVersionGate(t *testing.T) {
	r, _ := newTestPair(t)

	err := r.DataTX(DataTxRequest{Frame: []byte{0x01}, ModeSwitch: ModeSwitchMAC})
	require.Error(t, err)
}

func TestVersionAtLeast(t *testing.T) {
	require.True(t, Version{2, 0, 1}.SupportsModeSwitch())
	require.False(t, Version{2, 0, 0}.SupportsModeSwitch())
	require.True(t, Version{2, 2, 0}.SupportsEDFE())
	require.False(t, Version{2, 1, 9}.SupportsEDFE())
}

func TestSetFilterSrc64RoundTrip(t *testing.T) {
	r, peer := newTestPair(t)

	addrs := []ieee802154.Addr{{1, 2, 3, 4, 5, 6, 7, 8}}
	errCh := make(chan error, 1)
	go func() { errCh <- r.SetFilterSrc64(addrs, true) }()

	got, err := peer.Recv()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, byte(cmdSetFilterSrc64), got[0])
	require.Equal(t, byte(1), got[1]) // allow
	require.Equal(t, byte(1), got[2]) // count
}
