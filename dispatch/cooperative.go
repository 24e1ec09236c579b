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
	"github.com/zumaad/my-http-server/internal/coop"
	"github.com/zumaad/my-http-server/internal/poller"
	"github.com/zumaad/my-http-server/internal/wire"
)

// Cooperative runs everything on one OS thread over a single coop.Scheduler.
// The listening socket itself is driven as a never-ending coop.Task so
// accept() and every connection's read/dispatch/write share the same ready
// queue and selector.
type Cooperative struct {
	listenFD  int
	scheduler *coop.Scheduler
	pipeline  *Pipeline
}

// NewCooperative binds a listener on port and builds the cooperative server
// around pipeline.
func NewCooperative(port int, pipeline *Pipeline) (*Cooperative, error) {
	fd, err := bindListener(port)
	if err != nil {
		return nil, err
	}
	p, err := poller.New()
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("dispatch: creating poller: %w", err)
	}
	sched := coop.NewScheduler(p)
	c := &Cooperative{listenFD: fd, scheduler: sched, pipeline: pipeline}
	sched.Spawn(&acceptTask{listenFD: fd, scheduler: sched, pipeline: pipeline})
	return c, nil
}

// Run drives the scheduler forever. RunUntilIdle returns once the ready
// queue and waiter map are both empty, which only happens once the accept
// task itself (parked on the listening socket) has nothing left to wait
// on — i.e. never, during normal operation.
func (c *Cooperative) Run() error {
	return c.scheduler.RunUntilIdle()
}

// Close cancels every task parked on the listening socket and closes it.
func (c *Cooperative) Close() error {
	c.scheduler.Cancel(c.listenFD)
	return unix.Close(c.listenFD)
}

// acceptTask never completes: it parks on the listening socket, accepts
// every pending connection on each wakeup, spawns a connTask for each, and
// waits again.
type acceptTask struct {
	listenFD  int
	scheduler *coop.Scheduler
	pipeline  *Pipeline
}

func (a *acceptTask) Step(wake coop.ResourceTask, woken bool) (*coop.ResourceTask, bool, any, error) {
	if woken {
		for {
			fd, _, err := unix.Accept4(a.listenFD, unix.SOCK_NONBLOCK)
			if err != nil {
				break
			}
			a.scheduler.Spawn(&connTask{fd: fd, pipeline: a.pipeline})
		}
	}
	return &coop.ResourceTask{FD: a.listenFD, Event: coop.Readable}, false, nil, nil
}

type connPhase int

const (
	phaseRead connPhase = iota
	phaseDispatch
	phaseWrite
)

// connTask is the cooperative per-connection pipeline: read one request,
// hand it to the matched handler's own task (or an immediately-completing
// one for synchronous handlers), then write the response.
type connTask struct {
	fd       int
	pipeline *Pipeline

	phase    connPhase
	delegate coop.Task
	resp     *wire.Response
	writeBuf []byte
	writeOff int
}

func (t *connTask) Step(wake coop.ResourceTask, woken bool) (*coop.ResourceTask, bool, any, error) {
	for {
		switch t.phase {
		case phaseRead:
			if !woken {
				return &coop.ResourceTask{FD: t.fd, Event: coop.Readable}, false, nil, nil
			}
			buf := make([]byte, MaxRequestSize)
			n, err := unix.Read(t.fd, buf)
			if err == unix.EAGAIN {
				return &coop.ResourceTask{FD: t.fd, Event: coop.Readable}, false, nil, nil
			}
			if err != nil || n == 0 {
				unix.Close(t.fd)
				return nil, true, nil, httpfront.ErrClientClosed
			}
			t.pipeline.Ctx.Stats.AddBytesRecv(n)
			t.pipeline.Ctx.Stats.IncRequestsRecv()

			req, perr := wire.Parse(buf[:n])
			if perr != nil {
				httpfront.Log().Debug("malformed request", zap.String("conn_id", uuid.NewString()), zap.Error(perr))
				t.resp = wire.NewErrorResponse(400, perr.Error())
				t.phase = phaseWrite
				continue
			}
			t.delegate = t.pipeline.DispatchCooperative(req)
			t.phase = phaseDispatch
			woken = false
			continue

		case phaseDispatch:
			next, done, value, err := t.delegate.Step(wake, woken)
			if !done {
				return next, false, nil, nil
			}
			if err != nil {
				t.resp = wire.NewErrorResponse(502, err.Error())
			} else if resp, ok := value.(*wire.Response); ok {
				t.resp = resp
			} else {
				t.resp = wire.NewErrorResponse(500, "handler produced no response")
			}
			t.phase = phaseWrite
			woken = false
			continue

		case phaseWrite:
			if t.writeBuf == nil {
				t.writeBuf = t.resp.Serialize()
				t.pipeline.Ctx.Stats.IncResponsesSent()
			}
			chunk := t.writeBuf[t.writeOff:]
			if len(chunk) > WriteChunkSize {
				chunk = chunk[:WriteChunkSize]
			}
			n, err := unix.Write(t.fd, chunk)
			if err == unix.EAGAIN {
				return &coop.ResourceTask{FD: t.fd, Event: coop.Writable}, false, nil, nil
			}
			if err != nil {
				unix.Close(t.fd)
				return nil, true, nil, nil // BrokenPipe: abandon silently, the client already left
			}
			t.pipeline.Ctx.Stats.AddBytesSent(n)
			t.writeOff += n
			if t.writeOff < len(t.writeBuf) {
				return &coop.ResourceTask{FD: t.fd, Event: coop.Writable}, false, nil, nil
			}
			unix.Close(t.fd)
			return nil, true, nil, nil
		}
	}
}
