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

	wisunerr "github.com/openwisun/wisun-br/wisunerr"
	"github.com/openwisun/wisun-br/ieee802154"
)

// FHSSType selects which FHSS schedule a data_tx request is scheduled
// against.
type FHSSType uint8

const (
	FHSSTypeFFNUC FHSSType = iota
	FHSSTypeFFNBC
	FHSSTypeLFNUC
	FHSSTypeLFNBC
	FHSSTypeLFNPA
	FHSSTypeAsync
)

// ModeSwitchType selects the PHY-mode-switch behavior of a TX request,
// gated by Version.SupportsModeSwitch.
type ModeSwitchType uint8

const (
	ModeSwitchDisabled ModeSwitchType = iota
	ModeSwitchMAC
	ModeSwitchPHY
)

// RegDomain identifies a regulatory region for set_radio_regulation.
type RegDomain uint8

// RateInfo is one entry of a data_tx request's rate list, consulted by
// the RCP's link adaptation.
type RateInfo struct {
	PHYModeID  uint8
	TxAttempts uint8
}

// FHSSTimingInfo carries the unicast/broadcast schedule state the RCP
// needs to time a data_tx transmission against a specific neighbor's
// schedule; populated from the neighbor table's FHSS state.
type FHSSTimingInfo struct {
	UFSI                uint32
	UnicastIntervalMs   uint32
	BroadcastIntervalMs uint32
	BroadcastSlot       uint8
}

// FHSSConfig is the shared parameter set for set_fhss_{uc,ffn_bc,
// lfn_bc,async}: dwell interval, channel count and channel function
// are the fields common to every FHSS schedule kind (spec.md §4.3).
type FHSSConfig struct {
	ChannelFunction   uint8
	UCDwellIntervalMs uint32
	UCChanCount       uint16
	BCIntervalMs      uint32
	BCChanCount       uint16
	ChannelMask       []byte
}

// Reset asks the RCP to reinitialize; bootload requests entry into
// the bootloader instead of a normal restart.
func (r *RCP) Reset(bootload bool) error {
	var b byte
	if bootload {
		b = 1
	}
	return r.send(cmdReset, []byte{b})
}

// SetHostAPI announces the host's own API version during the startup
// handshake.
func (r *RCP) SetHostAPI(v Version) error {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], v.Major)
	binary.LittleEndian.PutUint32(buf[4:8], v.Minor)
	binary.LittleEndian.PutUint32(buf[8:12], v.Patch)
	r.mu.Lock()
	r.hostAPI = v
	r.mu.Unlock()
	return r.send(cmdSetHostAPI, buf)
}

// RadioEnable powers up the radio front-end.
func (r *RCP) RadioEnable() error {
	return r.send(cmdRadioEnable, nil)
}

// RadioList requests the set of available radio configurations. No
// reply to it is decoded; RailConfigs reflects the list carried by the
// last on_reset indication.
func (r *RCP) RadioList() error {
	return r.send(cmdRadioList, nil)
}

// SetRadio selects one of the configurations reported by RadioList.
func (r *RCP) SetRadio(radioConfIndex uint8, ofdmMCS uint8, enableMS bool) error {
	var msByte byte
	if enableMS {
		msByte = 1
	}
	return r.send(cmdSetRadio, []byte{radioConfIndex, ofdmMCS, msByte})
}

// SetRadioRegulation sets the regulatory domain applied to transmit
// power and duty-cycle limits.
func (r *RCP) SetRadioRegulation(reg RegDomain) error {
	return r.send(cmdSetRadioRegulation, []byte{byte(reg)})
}

// SetRadioTxPower sets the target transmit power in dBm.
func (r *RCP) SetRadioTxPower(dBm int8) error {
	return r.send(cmdSetRadioTxPower, []byte{byte(dBm)})
}

func encodeFHSSConfig(cfg FHSSConfig) []byte {
	buf := make([]byte, 0, 13+len(cfg.ChannelMask))
	buf = append(buf, cfg.ChannelFunction)
	var tmp4 [4]byte
	var tmp2 [2]byte
	binary.LittleEndian.PutUint32(tmp4[:], cfg.UCDwellIntervalMs)
	buf = append(buf, tmp4[:]...)
	binary.LittleEndian.PutUint16(tmp2[:], cfg.UCChanCount)
	buf = append(buf, tmp2[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], cfg.BCIntervalMs)
	buf = append(buf, tmp4[:]...)
	binary.LittleEndian.PutUint16(tmp2[:], cfg.BCChanCount)
	buf = append(buf, tmp2[:]...)
	binary.LittleEndian.PutUint16(tmp2[:], uint16(len(cfg.ChannelMask)))
	buf = append(buf, tmp2[:]...)
	buf = append(buf, cfg.ChannelMask...)
	return buf
}

// SetFHSSUC configures the unicast frequency-hopping schedule.
func (r *RCP) SetFHSSUC(cfg FHSSConfig) error {
	return r.send(cmdSetFHSSUC, encodeFHSSConfig(cfg))
}

// SetFHSSFFNBC configures the FFN broadcast frequency-hopping
// schedule.
func (r *RCP) SetFHSSFFNBC(cfg FHSSConfig) error {
	return r.send(cmdSetFHSSFFNBC, encodeFHSSConfig(cfg))
}

// SetFHSSLFNBC configures the LFN broadcast frequency-hopping
// schedule.
func (r *RCP) SetFHSSLFNBC(cfg FHSSConfig) error {
	return r.send(cmdSetFHSSLFNBC, encodeFHSSConfig(cfg))
}

// SetFHSSAsync configures the asynchronous (channel-hopping
// advertisement) schedule.
func (r *RCP) SetFHSSAsync(cfg FHSSConfig) error {
	return r.send(cmdSetFHSSAsync, encodeFHSSConfig(cfg))
}

// SetSecKey installs or updates one slot of the RCP's frame-security
// key table.
func (r *RCP) SetSecKey(keyIndex uint8, key [16]byte, frameCounter uint32) error {
	buf := make([]byte, 0, 21)
	buf = append(buf, keyIndex)
	buf = append(buf, key[:]...)
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], frameCounter)
	buf = append(buf, tmp4[:]...)
	return r.send(cmdSetSecKey, buf)
}

// SetFilterPANID restricts reception to frames carrying the given
// PAN ID.
func (r *RCP) SetFilterPANID(panID uint16) error {
	var tmp2 [2]byte
	binary.LittleEndian.PutUint16(tmp2[:], panID)
	return r.send(cmdSetFilterPANID, tmp2[:])
}

// SetFilterSrc64 sets the source-address allow/deny filter.
//
// An empty addrs list has inverted polarity relative to what one
// might expect: it means "clear the current filter" regardless of
// allow, rather than "allow/deny nothing" (spec.md §4.1's documented
// open question -- preserved here unchanged).
func (r *RCP) SetFilterSrc64(addrs []ieee802154.Addr, allow bool) error {
	buf := make([]byte, 0, 2+8*len(addrs))
	if len(addrs) == 0 {
		allow = !allow
	}
	var allowByte byte
	if allow {
		allowByte = 1
	}
	buf = append(buf, allowByte, byte(len(addrs)))
	for _, a := range addrs {
		buf = appendWireAddr(buf, a)
	}
	return r.send(cmdSetFilterSrc64, buf)
}

// SetFilterDst64 sets the single destination address the RCP accepts
// unicast traffic for.
func (r *RCP) SetFilterDst64(addr ieee802154.Addr) error {
	return r.send(cmdSetFilterDst64, appendWireAddr(nil, addr))
}

func appendWireAddr(buf []byte, a ieee802154.Addr) []byte {
	var wire [8]byte
	for i := 0; i < 8; i++ {
		wire[i] = a[7-i]
	}
	return append(buf, wire[:]...)
}

// DataTxRequest is the parameter set for a data_tx command (spec.md
// §4.1/§4.2 "Rebuilding a data request"), mirroring the arguments of
// rcp_req_data_tx in rcp_api.h.
type DataTxRequest struct {
	Frame            []byte
	Handle           uint8
	FHSSType         FHSSType
	Timing           *FHSSTimingInfo // nil when the destination has no known schedule
	FrameCountersMin [7]uint32
	RateList         [4]RateInfo
	ModeSwitch       ModeSwitchType
}

// DataTX submits a fully-rendered 802.15.4e frame for transmission.
// Mode-switch requests are rejected as Unsupported without contacting
// the RCP when the negotiated API version doesn't gate it in.
func (r *RCP) DataTX(req DataTxRequest) error {
	if req.ModeSwitch != ModeSwitchDisabled && !r.APIVersion().SupportsModeSwitch() {
		return wisunerr.NewError(wisunerr.KindUnsupported, "rcp: mode switch not supported by negotiated API version", nil)
	}

	buf := make([]byte, 0, 64+len(req.Frame))
	var tmp2 [2]byte
	binary.LittleEndian.PutUint16(tmp2[:], uint16(len(req.Frame)))
	buf = append(buf, tmp2[:]...)
	buf = append(buf, req.Frame...)
	buf = append(buf, req.Handle, byte(req.FHSSType))

	var hasTiming byte
	if req.Timing != nil {
		hasTiming = 1
	}
	buf = append(buf, hasTiming)
	if req.Timing != nil {
		var tmp4 [4]byte
		binary.LittleEndian.PutUint32(tmp4[:], req.Timing.UFSI)
		buf = append(buf, tmp4[:]...)
		binary.LittleEndian.PutUint32(tmp4[:], req.Timing.UnicastIntervalMs)
		buf = append(buf, tmp4[:]...)
		binary.LittleEndian.PutUint32(tmp4[:], req.Timing.BroadcastIntervalMs)
		buf = append(buf, tmp4[:]...)
		buf = append(buf, req.Timing.BroadcastSlot)
	}

	for _, fc := range req.FrameCountersMin {
		var tmp4 [4]byte
		binary.LittleEndian.PutUint32(tmp4[:], fc)
		buf = append(buf, tmp4[:]...)
	}
	for _, rl := range req.RateList {
		buf = append(buf, rl.PHYModeID, rl.TxAttempts)
	}
	buf = append(buf, byte(req.ModeSwitch))

	return r.send(cmdDataTX, buf)
}

// DataTXAbort cancels an outstanding transmission by handle. The RCP
// responds with a final tx_cnf whose status is TxStatusAborted
// (spec.md §5 "Cancellation").
func (r *RCP) DataTXAbort(handle uint8) error {
	return r.send(cmdDataTXAbort, []byte{handle})
}
