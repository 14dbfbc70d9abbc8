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
	"os"
	"sync"
	"sync/atomic"

	"github.com/DeRuina/timberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var defaultLogger atomic.Pointer[zap.Logger]

func init() {
	l, _ := zap.NewProduction()
	defaultLogger.Store(l)
}

// Log returns the current default logger for the process. Subsystems
// should call Log().Named("...") rather than holding a loose
// reference, so a log reconfiguration (see SetDefaultLogger) takes
// effect everywhere immediately.
func Log() *zap.Logger {
	l := defaultLogger.Load()
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// SetDefaultLogger replaces the process-wide default logger.
func SetDefaultLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	defaultLogger.Store(l)
}

// FileSinkConfig configures the optional rotating file sink for the
// default logger, in addition to the standard stderr/JSON core.
type FileSinkConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var sinkMu sync.Mutex

// ConfigureLogging builds the default logger from a base level and an
// optional rotating file sink, mirroring how caddy's logging.go wires
// a "sink" writer alongside the default structured core. Returns a
// function to flush/close the file sink on shutdown.
func ConfigureLogging(level zapcore.Level, file *FileSinkConfig) (func(), error) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level),
	}

	var rotator *timberjack.Logger
	if file != nil && file.Path != "" {
		rotator = &timberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   file.Compress,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	SetDefaultLogger(logger)

	closer := func() {
		_ = logger.Sync()
		if rotator != nil {
			_ = rotator.Close()
		}
	}
	return closer, nil
}
