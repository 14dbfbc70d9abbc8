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

// Package rcp implements the L1 host<->radio-co-processor protocol: a
// request/indication asymmetry carried over an L0 bus, with a
// negotiated API version gating individual features.
package rcp

import (
	"sync"

	"go.uber.org/zap"

	wisunerr "github.com/openwisun/wisun-br/wisunerr"
	"github.com/openwisun/wisun-br/bus"
	"github.com/openwisun/wisun-br/ieee802154"
)

// cmdID is the one-byte command/indication discriminator that leads
// every frame on the bus, grounded on rcp_api.h's rcp_cmd_table
// (cmd byte + handler function pointer) -- this codec plays the role
// of that table, dispatching on the same byte.
type cmdID uint8

const (
	cmdReset cmdID = 1 + iota
	cmdSetHostAPI
	cmdRadioEnable
	cmdRadioList
	cmdSetRadio
	cmdSetRadioRegulation
	cmdSetRadioTxPower
	cmdSetFHSSUC
	cmdSetFHSSFFNBC
	cmdSetFHSSLFNBC
	cmdSetFHSSAsync
	cmdSetSecKey
	cmdSetFilterPANID
	cmdSetFilterSrc64
	cmdSetFilterDst64
	cmdDataTX
	cmdDataTXAbort
)

const (
	indOnReset cmdID = 0x80 + iota
	indRxInd
	indTxCnf
)

// RailConfig describes one radio configuration the RCP offers, per
// struct rcp_rail_config in rcp_api.h.
type RailConfig struct {
	Index         int
	Chan0FreqHz   uint32
	ChanSpacingHz uint32
	ChanCount     uint16
	RAILPHYModeID uint8
	PHYModeGroup  int
}

// RxIndication is the decoded payload of an rx_ind: the raw frame
// bytes plus the radio metadata that doesn't live inside the 802.15.4
// frame itself.
type RxIndication struct {
	Frame       []byte
	RSSIDbm     int8
	LQI         uint8
	TimestampUs uint64
	Channel     uint8
}

// TxStatus mirrors the RCP's confirmation status codes.
type TxStatus uint8

const (
	TxStatusSuccess TxStatus = iota
	TxStatusNoAck
	TxStatusChannelAccessFailure
	TxStatusAborted
	TxStatusTimedOut
)

// TxConfirmation is the decoded payload of a tx_cnf.
type TxConfirmation struct {
	Handle      uint8
	Status      TxStatus
	AckFrame    []byte // nil if the RCP received no ack frame
	TimestampUs uint64
}

// RCP is the host-side handle to one radio co-processor connection.
// It owns no goroutines: ServeOne must be driven by the caller's
// event loop (spec.md §5 "single-threaded cooperative event loop").
type RCP struct {
	bus *bus.Bus
	log *zap.Logger

	mu           sync.Mutex
	hasReset     bool
	hasRailList  bool
	hostAPI      Version
	apiVersion   Version
	fwVersion    Version
	versionLabel string
	eui64        ieee802154.Addr
	railConfigs  []RailConfig

	// OnReset, OnRxInd and OnTxCnf are invoked synchronously from
	// ServeOne on the caller's goroutine; they must not block.
	OnReset func(*RCP)
	OnRxInd func(*RCP, RxIndication)
	OnTxCnf func(*RCP, TxConfirmation)
}

// New wraps an already-framed bus as an RCP protocol endpoint.
func New(b *bus.Bus, log *zap.Logger) *RCP {
	return &RCP{bus: b, log: log.Named("rcp")}
}

// HasReset reports whether the RCP has completed its capability
// exchange (on_reset) since the connection was established.
func (r *RCP) HasReset() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasReset
}

// APIVersion returns the negotiated RCP API version. Zero until
// HasReset is true.
func (r *RCP) APIVersion() Version {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apiVersion
}

// EUI64 returns the RCP's own extended address, reported at reset.
func (r *RCP) EUI64() ieee802154.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eui64
}

// RailConfigs returns the radio configurations reported by the last
// on_reset indication.
func (r *RCP) RailConfigs() []RailConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RailConfig, len(r.railConfigs))
	copy(out, r.railConfigs)
	return out
}

// send prepends the command byte and hands the frame to the bus.
func (r *RCP) send(cmd cmdID, payload []byte) error {
	frame := make([]byte, 0, 1+len(payload))
	frame = append(frame, byte(cmd))
	frame = append(frame, payload...)
	if err := r.bus.Send(frame); err != nil {
		return wisunerr.NewError(wisunerr.KindFatal, "rcp: bus write failed", err)
	}
	return nil
}

// ServeOne blocks on the bus for exactly one frame, decodes it, and
// dispatches the matching handler. The orchestrator calls this in a
// loop from a dedicated reader goroutine (readLoop), which hands each
// decoded event over to its single event loop.
func (r *RCP) ServeOne() error {
	payload, err := r.bus.Recv()
	if err != nil {
		return wisunerr.NewError(wisunerr.KindFatal, "rcp: bus read failed", err)
	}
	if len(payload) < 1 {
		return wisunerr.NewError(wisunerr.KindMalformed, "rcp: empty indication frame", nil)
	}
	return r.dispatch(cmdID(payload[0]), payload[1:])
}

func (r *RCP) dispatch(cmd cmdID, body []byte) error {
	switch cmd {
	case indOnReset:
		return r.handleOnReset(body)
	case indRxInd:
		return r.handleRxInd(body)
	case indTxCnf:
		return r.handleTxCnf(body)
	default:
		r.log.Warn("unknown indication", zap.Uint8("cmd", uint8(cmd)))
		return wisunerr.NewError(wisunerr.KindMalformed, "rcp: unknown indication command", nil)
	}
}
