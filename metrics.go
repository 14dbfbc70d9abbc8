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
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the orchestrator registers
// against a caller-supplied registry. Mirrors the narrow, explicit
// collector set caddy's own metrics.go wires (no auto-discovery).
type Metrics struct {
	NeighborCount   prometheus.Gauge
	LFNCount        prometheus.Gauge
	PANVersion      prometheus.Gauge
	FrameParseDrops *prometheus.CounterVec
	FHSSDriftMS     prometheus.Histogram
}

// NewMetrics constructs and registers the collector set. Registering
// twice against the same registry returns an error, same as
// client_golang's normal behavior -- callers should call this once
// per process.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NeighborCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wisunbr",
			Subsystem: "neighbor",
			Name:      "count",
			Help:      "Number of entries currently in the neighbor table.",
		}),
		LFNCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wisunbr",
			Subsystem: "neighbor",
			Name:      "lfn_count",
			Help:      "Number of LFN-role entries currently in the neighbor table.",
		}),
		PANVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wisunbr",
			Subsystem: "pan",
			Name:      "version",
			Help:      "Current PAN version counter.",
		}),
		FrameParseDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wisunbr",
			Subsystem: "codec",
			Name:      "frame_parse_drops_total",
			Help:      "Frames dropped at parse time, labeled by error kind.",
		}, []string{"kind"}),
		FHSSDriftMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wisunbr",
			Subsystem: "fhss",
			Name:      "ufsi_drift_milliseconds",
			Help:      "Computed UFSI clock drift per sample, in milliseconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		m.NeighborCount, m.LFNCount, m.PANVersion, m.FrameParseDrops, m.FHSSDriftMS,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
