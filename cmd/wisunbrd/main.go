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

// Command wisunbrd is the Wi-SUN FAN border-router daemon: it wires
// the RCP bus, the neighbor/PAN state and the control API together
// and drives the orchestrator's event loop until terminated.
package main

import (
	"os"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	wisunbr "github.com/openwisun/wisun-br"
)

// tuneProcess matches GOMAXPROCS and the Go memory limit to the
// container/cgroup quota, the same pair of calls caddy's cmd/main.go
// makes before doing anything else -- the daemon is expected to run
// in the same kind of constrained container as a reverse proxy.
func tuneProcess(log *zap.Logger) {
	undo, err := maxprocs.Set(maxprocs.Logger(log.Sugar().Infof))
	defer undo()
	if err != nil {
		log.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	_, err = memlimit.SetGoMemLimitWithOpts(
		memlimit.WithProvider(
			memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem),
		),
	)
	if err != nil {
		log.Warn("failed to set GOMEMLIMIT", zap.Error(err))
	}
}

func main() {
	log := wisunbr.Log()
	tuneProcess(log)

	if err := newRootCmd().Execute(); err != nil {
		log.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
}
