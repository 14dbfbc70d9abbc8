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
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ctxState is the mutable, shared state behind every copy of a
// Context value. Context itself is handed around by value (like
// context.Context), so its shared, lockable bits live behind a
// pointer.
type ctxState struct {
	mu        sync.Mutex
	onCancel  []func()
	cancelled bool
}

// Context is the root handle threaded through every layer (L0-L6).
// There is exactly one per running border-router process; no layer
// keeps ambient global state beyond the immutable, process-wide
// configuration tables (regulatory domain data, the PAN-ID compression
// table).
type Context struct {
	context.Context
	log   *zap.Logger
	state *ctxState
}

// NewContext derives a new root Context from parent, along with its
// cancel function. Call the returned cancel function (or cancel the
// parent) to run every registered OnCancel hook, in reverse
// registration order, exactly once.
func NewContext(parent context.Context, log *zap.Logger) (Context, context.CancelFunc) {
	if log == nil {
		log = Log()
	}
	ctx, cancel := context.WithCancel(parent)
	c := Context{Context: ctx, log: log, state: &ctxState{}}
	go c.watchCancel()
	return c, cancel
}

func (c Context) watchCancel() {
	<-c.Done()
	c.state.mu.Lock()
	if c.state.cancelled {
		c.state.mu.Unlock()
		return
	}
	c.state.cancelled = true
	hooks := c.state.onCancel
	c.state.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// OnCancel registers a function to run when this Context is
// cancelled. Hooks run in reverse-dependency order (last registered,
// first run), matching the shutdown order required by spec.md §5
// (L6 -> L5 -> L1 -> L0).
func (c Context) OnCancel(f func()) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if c.state.cancelled {
		// already shutting down; run immediately so the caller's
		// cleanup isn't silently dropped
		f()
		return
	}
	c.state.onCancel = append(c.state.onCancel, f)
}

// Logger returns the logger scoped to this context.
func (c Context) Logger() *zap.Logger {
	if c.log == nil {
		return Log()
	}
	return c.log
}

// Named returns a Context whose logger is named, for layer-scoped
// log lines (e.g. ctx.Named("neighbor")).
func (c Context) Named(name string) Context {
	c.log = c.Logger().Named(name)
	return c
}

// InstanceID returns this daemon instance's UUID, generating and
// persisting one under dir on first run. Grounded on caddy.go's
// InstanceID: each running border-router instance gets a stable
// identity independent of any storage configuration, used to tag log
// lines across restarts.
func InstanceID(dir string) (uuid.UUID, error) {
	path := filepath.Join(dir, "instance.uuid")
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		id, err := uuid.NewRandom()
		if err != nil {
			return id, err
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return id, err
		}
		return id, os.WriteFile(path, []byte(id.String()), 0o600)
	}
	if err != nil {
		return uuid.UUID{}, err
	}
	return uuid.ParseBytes(raw)
}
