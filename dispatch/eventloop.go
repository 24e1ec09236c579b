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

//go:build unix

package dispatch

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/zumaad/my-http-server/httpfront"
	"github.com/zumaad/my-http-server/internal/poller"
	"github.com/zumaad/my-http-server/internal/wire"
)

// EventLoop is a single-threaded reactor: one readiness selector over the
// listening socket and every accepted client socket. No handler in this
// model may block the thread; ReverseProxyHandler/LoadBalancingHandler are
// unsafe to register here — use WorkerPool or Cooperative instead.
type EventLoop struct {
	listenFD int
	poller   poller.Poller
	pipeline *Pipeline

	// pending tracks connections with a write in flight that hit
	// EWOULDBLOCK, so the loop can resume them on the next writable event
	// instead of spinning the single thread.
	pending map[int]*pendingWrite

	closed bool
}

type pendingWrite struct {
	buf []byte
	off int
}

// NewEventLoop binds a non-blocking listening socket on port and builds the
// reactor loop around pipeline.
func NewEventLoop(port int, pipeline *Pipeline) (*EventLoop, error) {
	fd, err := bindListener(port)
	if err != nil {
		return nil, err
	}
	p, err := poller.New()
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("dispatch: creating poller: %w", err)
	}
	if err := p.Add(fd, true, false); err != nil {
		unix.Close(fd)
		p.Close()
		return nil, fmt.Errorf("dispatch: registering listener: %w", err)
	}
	return &EventLoop{listenFD: fd, poller: p, pipeline: pipeline, pending: make(map[int]*pendingWrite)}, nil
}

// Run drives the event loop until Close is called, at which point Wait
// returns an error from the now-closed poller and Run returns nil.
func (e *EventLoop) Run() error {
	for {
		events, err := e.poller.Wait()
		if err != nil {
			if e.closed {
				return nil
			}
			return fmt.Errorf("dispatch: poller wait: %w", err)
		}
		for _, ev := range events {
			switch {
			case ev.FD == e.listenFD:
				e.acceptAll()
			case ev.Writable:
				e.continueWrite(ev.FD)
			case ev.Readable:
				e.handleRead(ev.FD)
			}
		}
	}
}

func (e *EventLoop) acceptAll() {
	for {
		fd, _, err := unix.Accept4(e.listenFD, unix.SOCK_NONBLOCK)
		if err != nil {
			return
		}
		if err := e.poller.Add(fd, true, false); err != nil {
			httpfront.Log().Warn("registering accepted connection", zap.Error(err))
			unix.Close(fd)
		}
	}
}

func (e *EventLoop) handleRead(fd int) {
	buf := make([]byte, MaxRequestSize)
	n, err := unix.Read(fd, buf)
	if err == unix.EAGAIN {
		return // spurious wakeup
	}
	if err != nil || n == 0 {
		e.closeConn(fd)
		return
	}
	e.pipeline.Ctx.Stats.AddBytesRecv(n)
	e.pipeline.Ctx.Stats.IncRequestsRecv()

	resp := respond(e.pipeline, uuid.NewString(), buf[:n])
	e.pipeline.Ctx.Stats.IncResponsesSent()
	e.startWrite(fd, resp.Serialize())
}

// respond parses raw and runs it through pipeline, turning a parse failure
// into a 400 response. connID tags the resulting log line so a single
// connection's request and any handler error can be correlated across a
// busy log stream.
func respond(pipeline *Pipeline, connID string, raw []byte) *wire.Response {
	req, err := wire.Parse(raw)
	if err != nil {
		httpfront.Log().Debug("malformed request", zap.String("conn_id", connID), zap.Error(err))
		return wire.NewErrorResponse(400, err.Error())
	}
	return pipeline.Dispatch(req)
}

func (e *EventLoop) startWrite(fd int, data []byte) {
	n, err := unix.Write(fd, data)
	if err == unix.EAGAIN {
		e.pending[fd] = &pendingWrite{buf: data, off: 0}
		e.poller.Modify(fd, false, true) //nolint:errcheck
		return
	}
	if err != nil {
		e.closeConn(fd) // BrokenPipe: abandon silently, the client already left
		return
	}
	e.pipeline.Ctx.Stats.AddBytesSent(n)
	if n < len(data) {
		e.pending[fd] = &pendingWrite{buf: data, off: n}
		e.poller.Modify(fd, false, true) //nolint:errcheck
		return
	}
	e.closeConn(fd)
}

func (e *EventLoop) continueWrite(fd int) {
	pw, ok := e.pending[fd]
	if !ok {
		return
	}
	chunk := pw.buf[pw.off:]
	if len(chunk) > WriteChunkSize {
		chunk = chunk[:WriteChunkSize]
	}
	n, err := unix.Write(fd, chunk)
	if err == unix.EAGAIN {
		return
	}
	if err != nil {
		delete(e.pending, fd)
		e.closeConn(fd)
		return
	}
	e.pipeline.Ctx.Stats.AddBytesSent(n)
	pw.off += n
	if pw.off >= len(pw.buf) {
		delete(e.pending, fd)
		e.closeConn(fd)
	}
}

func (e *EventLoop) closeConn(fd int) {
	e.poller.Remove(fd) //nolint:errcheck
	unix.Close(fd)
	delete(e.pending, fd)
}

// Close tears down the listener and poller, causing Run to return.
func (e *EventLoop) Close() error {
	e.closed = true
	unix.Close(e.listenFD)
	return e.poller.Close()
}
