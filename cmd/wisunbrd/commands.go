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
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	wisunbr "github.com/openwisun/wisun-br"
	"github.com/openwisun/wisun-br/bus"
	"github.com/openwisun/wisun-br/controlapi"
	"github.com/openwisun/wisun-br/neighbor"
	"github.com/openwisun/wisun-br/pan"
	"github.com/openwisun/wisun-br/rcp"
)

// buildVersion is overridden at link time (-ldflags "-X main.buildVersion=...")
// the same way caddy's own cmd stamps its module version in; left as a
// plain default here since this daemon has no module-version lookup
// helper of its own.
var buildVersion = "dev"

// newRootCmd builds the wisunbrd cobra command tree: a "serve"
// subcommand that runs the orchestrator in the foreground, plus
// cobra's built-in --version flag, mirroring caddy's cobra.go
// root-command shape (Use/Short/Long, SilenceUsage,
// SetVersionTemplate) without pulling in caddy's module-registry
// machinery this daemon has no use for.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "wisunbrd",
		Short:        "Wi-SUN FAN border-router daemon",
		Long:         `wisunbrd drives an external radio co-processor over a serial or local IPC link, terminates the IEEE 802.15.4g/e link layer, and exposes a local control API for keys, routing graph inspection and link control.`,
		SilenceUsage: true,
		Version:      buildVersion,
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the border-router daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the wisunbrd TOML config file")
	return cmd
}

// runServe wires L0-L5 together from Config and blocks on the
// orchestrator until a shutdown signal or fatal bus error, matching
// spec.md §5's shutdown ordering (L6 -> L5 -> L1 -> L0): the
// orchestrator drains and resets first, then deferred closes shut the
// control API and the bus.
func runServe(configPath string) error {
	cfg, err := wisunbr.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(cfg.Logging.Level))
	var fileSink *wisunbr.FileSinkConfig
	if cfg.Logging.File != "" {
		fileSink = &wisunbr.FileSinkConfig{Path: cfg.Logging.File, MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28, Compress: true}
	}
	closeLog, err := wisunbr.ConfigureLogging(level, fileSink)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	defer closeLog()
	log := wisunbr.Log()

	instanceDir := cfg.KeyStorage.Dir
	if instanceDir == "" {
		instanceDir = os.TempDir()
	}
	if id, err := wisunbr.InstanceID(instanceDir); err != nil {
		log.Warn("could not load/persist instance id", zap.Error(err))
	} else {
		log = log.With(zap.String("instance_id", id.String()))
		wisunbr.SetDefaultLogger(log)
	}

	if cfg.Bus.Device == "" {
		return fmt.Errorf("bus.device must be set in the config file")
	}
	dev, err := os.OpenFile(cfg.Bus.Device, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening rcp bus device %s: %w", cfg.Bus.Device, err)
	}
	b := bus.New(dev)

	r := rcp.New(b, log)
	neigh := neighbor.NewTable()
	panState := pan.New(cfg.Wisun.NetworkName)
	panState.BroadcastIntervalMs = cfg.Wisun.BroadcastIntervalMs

	static := controlapi.StaticProperties{
		NetworkName: cfg.Wisun.NetworkName,
		Size:        cfg.Wisun.Size,
		Domain:      cfg.Wisun.Domain,
		Mode:        uint32(cfg.Wisun.Mode),
		Class:       uint32(cfg.Wisun.Class),
		PhyModeID:   uint32(cfg.Wisun.PhyModeID),
		ChanPlanID:  uint32(cfg.Wisun.ChanPlanID),
	}
	api := controlapi.New(log, panState, neigh, r, static)

	metrics, err := wisunbr.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	ctx, cancel := wisunbr.NewContext(context.Background(), log)
	defer cancel()

	// Deferred in L0 -> L5 order so both run only after orch.Run has
	// returned (outbound queue drained, final reset sent), closing L5
	// first and L0 last.
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("closing bus", zap.Error(err))
		}
	}()
	defer func() {
		if err := api.Close(); err != nil {
			log.Warn("closing control api", zap.Error(err))
		}
	}()

	if cfg.ControlAPI.UseSystem {
		os.Setenv("DBUS_STARTER_BUS_TYPE", "system")
	}
	if err := api.Export(); err != nil {
		log.Warn("control api not exported, continuing without it", zap.Error(err))
	}

	orch := wisunbr.NewOrchestrator(log, r, neigh, panState, api, metrics)

	mux := newDebugMux(neigh, panState)
	var debugSrv *http.Server
	if cfg.Metrics.Listen != "" {
		debugSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			if err := debugSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("debug http server stopped", zap.Error(err))
			}
		}()
		ctx.OnCancel(func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), cfg.Bus.Timeout)
			defer shutCancel()
			_ = debugSrv.Shutdown(shutCtx)
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("signal received, shutting down")
		cancel()
	}()

	log.Info("wisunbrd starting",
		zap.String("bus_device", cfg.Bus.Device),
		zap.String("network_name", cfg.Wisun.NetworkName))

	if err := orch.Run(ctx); err != nil {
		return wisunbr.NewError(wisunbr.KindFatal, "orchestrator exited", err)
	}
	return nil
}
