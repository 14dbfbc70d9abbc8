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

	"go.uber.org/zap"

	wisunerr "github.com/openwisun/wisun-br/wisunerr"
	"github.com/openwisun/wisun-br/ieee802154"
)

// reader is a small cursor over an indication body, the Go
// counterpart of the source's iobuf_read: every pop advances the
// cursor and reports a Truncated error instead of reading past the
// end.
type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() (uint8, error) {
	if r.off+1 > len(r.buf) {
		return 0, wisunerr.NewError(wisunerr.KindTruncated, "rcp: truncated u8", nil)
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) i8() (int8, error) {
	v, err := r.u8()
	return int8(v), err
}

func (r *reader) u16() (uint16, error) {
	if r.off+2 > len(r.buf) {
		return 0, wisunerr.NewError(wisunerr.KindTruncated, "rcp: truncated u16", nil)
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off : r.off+2])
	r.off += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.off+4 > len(r.buf) {
		return 0, wisunerr.NewError(wisunerr.KindTruncated, "rcp: truncated u32", nil)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.off+8 > len(r.buf) {
		return 0, wisunerr.NewError(wisunerr.KindTruncated, "rcp: truncated u64", nil)
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off : r.off+8])
	r.off += 8
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, wisunerr.NewError(wisunerr.KindTruncated, "rcp: truncated byte string", nil)
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v, nil
}

func (r *reader) addr64() (ieee802154.Addr, error) {
	wire, err := r.bytes(8)
	if err != nil {
		return ieee802154.Addr{}, err
	}
	var a ieee802154.Addr
	for i := 0; i < 8; i++ {
		a[i] = wire[7-i]
	}
	return a, nil
}

// handleOnReset decodes the RCP's capability exchange: API/firmware
// versions, version label, EUI-64 and the rail configuration list
// (struct rcp fields populated by rcp_api.h's on_reset callback).
func (r *RCP) handleOnReset(body []byte) error {
	cur := reader{buf: body}

	apiMajor, err := cur.u32()
	if err != nil {
		return err
	}
	apiMinor, err := cur.u32()
	if err != nil {
		return err
	}
	apiPatch, err := cur.u32()
	if err != nil {
		return err
	}
	fwMajor, err := cur.u32()
	if err != nil {
		return err
	}
	fwMinor, err := cur.u32()
	if err != nil {
		return err
	}
	fwPatch, err := cur.u32()
	if err != nil {
		return err
	}
	labelLen, err := cur.u8()
	if err != nil {
		return err
	}
	labelBytes, err := cur.bytes(int(labelLen))
	if err != nil {
		return err
	}
	eui64, err := cur.addr64()
	if err != nil {
		return err
	}
	railCount, err := cur.u8()
	if err != nil {
		return err
	}
	rails := make([]RailConfig, 0, railCount)
	for i := 0; i < int(railCount); i++ {
		idx, err := cur.u32()
		if err != nil {
			return err
		}
		chan0, err := cur.u32()
		if err != nil {
			return err
		}
		spacing, err := cur.u32()
		if err != nil {
			return err
		}
		count, err := cur.u16()
		if err != nil {
			return err
		}
		phyModeID, err := cur.u8()
		if err != nil {
			return err
		}
		group, err := cur.u32()
		if err != nil {
			return err
		}
		rails = append(rails, RailConfig{
			Index:         int(idx),
			Chan0FreqHz:   chan0,
			ChanSpacingHz: spacing,
			ChanCount:     count,
			RAILPHYModeID: phyModeID,
			PHYModeGroup:  int(group),
		})
	}

	r.mu.Lock()
	r.hasReset = true
	r.hasRailList = railCount > 0
	r.apiVersion = Version{apiMajor, apiMinor, apiPatch}
	r.fwVersion = Version{fwMajor, fwMinor, fwPatch}
	r.versionLabel = string(labelBytes)
	r.eui64 = eui64
	r.railConfigs = rails
	r.mu.Unlock()

	r.log.Info("rcp reset",
		zap.String("api_version", r.apiVersion.String()),
		zap.String("fw_version", r.fwVersion.String()),
		zap.Int("rail_configs", len(rails)))

	if r.OnReset != nil {
		r.OnReset(r)
	}
	return nil
}

func (r *RCP) handleRxInd(body []byte) error {
	cur := reader{buf: body}

	frameLen, err := cur.u16()
	if err != nil {
		return err
	}
	frame, err := cur.bytes(int(frameLen))
	if err != nil {
		return err
	}
	rssi, err := cur.i8()
	if err != nil {
		return err
	}
	lqi, err := cur.u8()
	if err != nil {
		return err
	}
	ts, err := cur.u64()
	if err != nil {
		return err
	}
	channel, err := cur.u8()
	if err != nil {
		return err
	}

	if r.OnRxInd != nil {
		r.OnRxInd(r, RxIndication{
			Frame:       frame,
			RSSIDbm:     rssi,
			LQI:         lqi,
			TimestampUs: ts,
			Channel:     channel,
		})
	}
	return nil
}

func (r *RCP) handleTxCnf(body []byte) error {
	cur := reader{buf: body}

	handle, err := cur.u8()
	if err != nil {
		return err
	}
	status, err := cur.u8()
	if err != nil {
		return err
	}
	ackLen, err := cur.u16()
	if err != nil {
		return err
	}
	var ack []byte
	if ackLen > 0 {
		ack, err = cur.bytes(int(ackLen))
		if err != nil {
			return err
		}
	}
	ts, err := cur.u64()
	if err != nil {
		return err
	}

	if r.OnTxCnf != nil {
		r.OnTxCnf(r, TxConfirmation{
			Handle:      handle,
			Status:      TxStatus(status),
			AckFrame:    ack,
			TimestampUs: ts,
		})
	}
	return nil
}
