// Copyright 2024 The httpfront Authors
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

package httpfront

import (
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

var (
	loggerMu sync.RWMutex
	logger   *zap.Logger = zap.NewNop()
)

// ConfigureLogging installs l as the package-wide logger. Call once during
// startup, mirroring caddy's own package-level logging setup
// (logging.go's Log() / default logger pattern).
func ConfigureLogging(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// Log returns the current package logger. Safe to call concurrently.
func Log() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Context bundles what every handler and execution model needs besides the
// request itself: shared statistics and shutdown hooks (logging goes
// through the package-level Log instead). It plays
// the same role as caddy's Context type, scoped down to this system's
// needs (no module provisioning/cleanup graph, since there's only one
// config load for the process's lifetime).
type Context struct {
	Stats *Stats

	mu        sync.Mutex
	onCancel  []func()
	cancelled bool
}

// NewContext creates a Context with fresh statistics.
func NewContext() *Context {
	return &Context{Stats: &Stats{}}
}

// OnCancel registers fn to run when Shutdown is called, in reverse
// registration order (LIFO), matching caddy's ctx.OnCancel convention.
func (c *Context) OnCancel(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCancel = append(c.onCancel, fn)
}

// Shutdown runs every registered cancel hook and logs the final statistics
// line.
func (c *Context) Shutdown() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	hooks := c.onCancel
	c.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}

	snap := c.Stats.Snapshot()
	Log().Info("server statistics",
		zap.String("bytes_sent", humanize.Bytes(uint64(snap.BytesSent))),
		zap.String("bytes_recv", humanize.Bytes(uint64(snap.BytesRecv))),
		zap.Int64("requests_recv", snap.RequestsRecv),
		zap.Int64("responses_sent", snap.ResponsesSent),
	)
}
