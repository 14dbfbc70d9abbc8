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

package bus

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func pipeConn() (io.ReadWriteCloser, io.ReadWriteCloser) {
	a, b := net.Pipe()
	return a, b
}

func TestSendRecvRoundTrip(t *testing.T) {
	client, server := pipeConn()
	defer client.Close()
	defer server.Close()

	clientBus := New(client)
	serverBus := New(server)

	payload := []byte{0x01, 0x02, 0x03, 0xAB, 0xCD}

	errCh := make(chan error, 1)
	go func() { errCh <- clientBus.Send(payload) }()

	got, err := serverBus.Recv()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, payload, got)
}

func TestRecvRejectsCorruptCRC(t *testing.T) {
	client, server := pipeConn()
	defer client.Close()
	defer server.Close()

	serverBus := New(server)

	raw := []byte{3, 0, 'a', 'b', 'c', 0xFF, 0xFF, 0xFF, 0xFF} // wrong CRC
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Write(raw)
		errCh <- err
	}()

	_, err := serverBus.Recv()
	require.Error(t, err)
	require.NoError(t, <-errCh)
}

func TestSendRejectsEmptyFrame(t *testing.T) {
	client, server := pipeConn()
	defer client.Close()
	defer server.Close()

	b := New(client)
	err := b.Send(nil)
	require.Error(t, err)
}

func TestSendRejectsOversizeFrame(t *testing.T) {
	client, server := pipeConn()
	defer client.Close()
	defer server.Close()

	b := New(client)
	err := b.Send(make([]byte, maxFrameLen+1))
	require.Error(t, err)
}
