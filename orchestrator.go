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

package wisunbr

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/openwisun/wisun-br/controlapi"
	"github.com/openwisun/wisun-br/ieee802154"
	"github.com/openwisun/wisun-br/neighbor"
	"github.com/openwisun/wisun-br/pan"
	"github.com/openwisun/wisun-br/rcp"
	wisunerr "github.com/openwisun/wisun-br/wisunerr"
)

// outboundQueueDepth bounds the orchestrator's pending data_tx queue
// (spec.md §5 "bounded outbound queue"). The RCP is strictly faster
// than the host at draining it, so a full queue on Enqueue means a
// caller bug, not backpressure to absorb.
const outboundQueueDepth = 64

// expireTickInterval drives the periodic neighbor-table expiry pass;
// spec.md §5 only requires timers be processed after pending fd
// events in a tick, not any particular period.
const expireTickInterval = time.Second

// Orchestrator is the L6 single-threaded cooperative event loop
// (spec.md §5). It owns the RCP connection, the neighbor table and
// PAN state, and drives the control-API property refresh whenever
// topology changes. It does not own the TUN fd or the control-bus
// connection directly; those are reached through collaborators wired
// at construction.
type Orchestrator struct {
	log   *zap.Logger
	rcp   *rcp.RCP
	neigh *neighbor.Table
	pan   *pan.State
	api   *controlapi.Service

	metrics *Metrics

	// OnData is invoked once per accepted (non-duplicate) data
	// indication, after neighbor-table and duplicate-filter state has
	// settled (spec.md §5 "all observable state transitions complete
	// before any property-change notification"). Forwarding the
	// payload to 6LoWPAN/RPL processing is out of this module's scope
	// (spec.md §1 Non-goals); the default is a no-op.
	OnData func(src ieee802154.Addr, ind *ieee802154.DataIndication)

	rxCh    chan rcp.RxIndication
	txCnfCh chan rcp.TxConfirmation
	resetCh chan struct{}
	readErr chan error

	outbound chan rcp.DataTxRequest

	defaultPAN uint16
}

// NewOrchestrator wires an RCP connection, neighbor table and PAN
// state into a runnable event loop. The caller is responsible for
// having already called r.SetHostAPI and brought the bus up to the
// point where on_reset indications can arrive.
func NewOrchestrator(log *zap.Logger, r *rcp.RCP, neigh *neighbor.Table, panState *pan.State, api *controlapi.Service, metrics *Metrics) *Orchestrator {
	o := &Orchestrator{
		log:      log.Named("orchestrator"),
		rcp:      r,
		neigh:    neigh,
		pan:      panState,
		api:      api,
		metrics:  metrics,
		rxCh:     make(chan rcp.RxIndication, outboundQueueDepth),
		txCnfCh:  make(chan rcp.TxConfirmation, outboundQueueDepth),
		resetCh:  make(chan struct{}, 1),
		readErr:  make(chan error, 1),
		outbound: make(chan rcp.DataTxRequest, outboundQueueDepth),
	}

	r.OnReset = func(*rcp.RCP) {
		select {
		case o.resetCh <- struct{}{}:
		default:
		}
	}
	r.OnRxInd = func(_ *rcp.RCP, ind rcp.RxIndication) { o.rxCh <- ind }
	r.OnTxCnf = func(_ *rcp.RCP, cnf rcp.TxConfirmation) { o.txCnfCh <- cnf }

	neigh.OnExpire = func(mac64 ieee802154.Addr) {
		o.log.Debug("neighbor expired", zap.Stringer("eui64", mac64))
	}

	return o
}

// readLoop blocks on ServeOne in its own goroutine so the bus's
// blocking read doesn't stall the orchestrator's select; the RCP's
// callbacks (set in NewOrchestrator) immediately hand each decoded
// event to a channel, preserving arrival order (spec.md §5 "RX
// indications... processed in arrival order") without processing more
// than one event at a time in Run's select loop.
func (o *Orchestrator) readLoop(ctx Context) {
	for {
		if err := o.rcp.ServeOne(); err != nil {
			select {
			case o.readErr <- err:
			case <-ctx.Done():
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Enqueue submits a data_tx request for transmission. A full queue is
// a programming error (spec.md §5 "EAGAIN treated as programming
// error"): the caller is expected to track outstanding handles and
// never submit faster than the RCP drains.
func (o *Orchestrator) Enqueue(req rcp.DataTxRequest) {
	select {
	case o.outbound <- req:
	default:
		panic("wisunbr: outbound queue full, caller exceeded RCP drain rate")
	}
}

// Abort cancels an outstanding transmission by handle (spec.md §5
// "Cancellation").
func (o *Orchestrator) Abort(handle uint8) error {
	return o.rcp.DataTXAbort(handle)
}

// Run drives the event loop until ctx is cancelled. It returns the
// first fatal error observed on the bus, or nil on a clean shutdown.
func (o *Orchestrator) Run(ctx Context) error {
	go o.readLoop(ctx)

	ticker := time.NewTicker(expireTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return o.shutdown(ctx)

		case err := <-o.readErr:
			o.log.Error("bus read failed, entering shutdown", zap.Error(err))
			return err

		case <-o.resetCh:
			o.log.Info("rcp reset observed by orchestrator")

		case ind := <-o.rxCh:
			o.handleRxIndication(ind)

		case cnf := <-o.txCnfCh:
			o.handleTxConfirmation(cnf)

		case req := <-o.outbound:
			if err := o.rcp.DataTX(req); err != nil {
				o.log.Error("data_tx failed", zap.Uint8("handle", req.Handle), zap.Error(err))
			}

		case <-ticker.C:
			o.handleExpireTick()
		}
	}
}

func (o *Orchestrator) handleRxIndication(ind rcp.RxIndication) {
	data, err := ieee802154.ParseDataIndication(ind.Frame, o.defaultPAN)
	if err != nil {
		if o.metrics != nil {
			kind := "unknown"
			var wErr *wisunerr.Error
			if errors.As(err, &wErr) {
				kind = wErr.Kind.String()
			}
			o.metrics.FrameParseDrops.WithLabelValues(kind).Inc()
		}
		o.log.Debug("dropping unparsable frame", zap.Error(err))
		return
	}

	entry, ok := o.neigh.Get(data.SrcAddr)
	if !ok {
		entry = o.neigh.Add(data.SrcAddr, neighbor.RoleRouter, 0, 0)
	}

	// FHSS timing and unicast-schedule IEs ride on both Data and
	// Command frames (UT-IE/US-IE accompany a PA/PC just as they do
	// ordinary traffic, spec.md §2), so these are applied regardless of
	// FrameType.
	if data.IEsPresent {
		if err := entry.ApplyHeaderIEs(data.HeaderIEs, ind.TimestampUs, o.pan.BroadcastIntervalMs); err != nil {
			o.log.Debug("dropping malformed WH-IE", zap.Stringer("eui64", data.SrcAddr), zap.Error(err))
		}
		if err := entry.ApplyPayloadIEs(data.PayloadIEs); err != nil {
			o.log.Debug("dropping malformed WP-IE", zap.Stringer("eui64", data.SrcAddr), zap.Error(err))
		}

		if advMismatch, gtkMismatch, err := o.pan.ApplyAdvertisementIEs(data.PayloadIEs); err != nil {
			o.log.Debug("dropping malformed PAN advertisement IE", zap.Stringer("eui64", data.SrcAddr), zap.Error(err))
		} else {
			if advMismatch {
				o.log.Warn("peer PAN advertisement disagrees with local PAN identity", zap.Stringer("eui64", data.SrcAddr))
			}
			if gtkMismatch {
				o.log.Warn("peer GTK hash disagrees with local GTK table", zap.Stringer("eui64", data.SrcAddr))
			}
		}
	}

	// Unicast duplicate-detection semantics (spec.md §4.3) only apply to
	// ordinary Data frames; PA/PC/LPA/LPC/EAPOL command frames carry no
	// application payload for OnData to forward and are not subject to
	// the same-DSN window.
	if data.FrameType == ieee802154.FrameTypeData {
		if neighbor.DuplicateCheck(entry, data.Seq, ind.TimestampUs) {
			return
		}
		if o.OnData != nil {
			o.OnData(data.SrcAddr, data)
		}
	}

	if o.metrics != nil {
		o.metrics.NeighborCount.Set(float64(o.neigh.Count()))
		o.metrics.LFNCount.Set(float64(o.neigh.LFNCount()))
	}
	if o.api != nil {
		o.api.RefreshNodes()
	}
}

func (o *Orchestrator) handleTxConfirmation(cnf rcp.TxConfirmation) {
	o.log.Debug("tx_cnf",
		zap.Uint8("handle", cnf.Handle),
		zap.Uint8("status", uint8(cnf.Status)))
}

func (o *Orchestrator) handleExpireTick() {
	expired := o.neigh.Expire(time.Now())
	if len(expired) == 0 {
		return
	}
	if o.metrics != nil {
		o.metrics.NeighborCount.Set(float64(o.neigh.Count()))
		o.metrics.LFNCount.Set(float64(o.neigh.LFNCount()))
	}
	if o.api != nil {
		o.api.RefreshNodes()
	}
}

// shutdown drains the outbound queue, issues a final reset, and
// returns; closing the control API and then the bus (L5 → L0) is left
// to the caller once Run has returned (cmd/wisunbrd's runServe defers
// both).
func (o *Orchestrator) shutdown(ctx Context) error {
	o.log.Info("draining outbound queue before shutdown")
drain:
	for {
		select {
		case req := <-o.outbound:
			if err := o.rcp.DataTX(req); err != nil {
				o.log.Warn("data_tx failed during drain", zap.Error(err))
			}
		default:
			break drain
		}
	}

	if err := o.rcp.Reset(false); err != nil {
		o.log.Warn("final reset failed", zap.Error(err))
	}
	return nil
}
