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
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon's static configuration, loaded once at
// startup. Command-line and config-file parsing beyond this minimal
// surface is out of scope (spec.md §1 treats it as an external
// collaborator); this struct is the contract the orchestrator needs
// to wire L0/L5/the TUN collaborator together.
type Config struct {
	Bus struct {
		Device  string        `toml:"device"`
		Timeout time.Duration `toml:"timeout"`
	} `toml:"bus"`

	ControlAPI struct {
		BusName   string `toml:"bus_name"`
		UseSystem bool   `toml:"use_system_bus"`
	} `toml:"control_api"`

	Wisun struct {
		NetworkName string `toml:"network_name"`
		Domain      string `toml:"domain"`
		Class       int    `toml:"class"`
		Mode        int    `toml:"mode"`
		PhyModeID   int    `toml:"phy_mode_id"`
		ChanPlanID  int    `toml:"chan_plan_id"`
		Size        string `toml:"size"`

		// BroadcastIntervalMs is this PAN's broadcast schedule interval
		// (BS-IE), needed to re-derive an LFN's harmonically adjusted
		// listening interval from its LUS-IE (spec.md §4.3).
		BroadcastIntervalMs uint32 `toml:"broadcast_interval_ms"`
	} `toml:"wisun"`

	KeyStorage struct {
		Dir string `toml:"dir"`
	} `toml:"key_storage"`

	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`

	Logging struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"logging"`
}

// DefaultConfig returns a Config with sane defaults, the way a fresh
// border-router install would be seeded.
func DefaultConfig() Config {
	var c Config
	c.Bus.Timeout = 5 * time.Second
	c.ControlAPI.BusName = "com.silabs.Wisun.BorderRouter"
	c.Wisun.NetworkName = "Wi-SUN Network"
	c.Wisun.BroadcastIntervalMs = 600_000 // spec.md §8's worked scenario
	c.Metrics.Listen = "127.0.0.1:9191"
	c.Logging.Level = "info"
	return c
}

// LoadConfig reads and decodes a TOML config file, falling back to
// DefaultConfig for any field not present in the file. A missing file
// is not an error: it's treated the same as caddy's LoadConfig
// treating a missing default Caddyfile as "no config available" --
// the caller gets defaults instead.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
