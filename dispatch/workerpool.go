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
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/zumaad/my-http-server/httpfront"
	"github.com/zumaad/my-http-server/internal/poller"
)

// NumWorkers is the fixed worker pool size.
const NumWorkers = 50

// WorkerPool dedicates one selector thread to mark ready client sockets "in
// service" and enqueue them; a fixed pool of workers dequeues, runs the
// pipeline, and closes the connection.
type WorkerPool struct {
	listenFD int
	poller   poller.Poller
	pipeline *Pipeline

	queue chan int

	mu        sync.Mutex
	inService map[int]bool

	closed bool
}

// NewWorkerPool binds a listener on port and builds a worker-pool server
// around pipeline.
func NewWorkerPool(port int, pipeline *Pipeline) (*WorkerPool, error) {
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
	return &WorkerPool{
		listenFD:  fd,
		poller:    p,
		pipeline:  pipeline,
		queue:     make(chan int, NumWorkers*4),
		inService: make(map[int]bool),
	}, nil
}

// Run starts NumWorkers workers and drives the selector thread until Close
// is called.
func (w *WorkerPool) Run() error {
	var g errgroup.Group
	for i := 0; i < NumWorkers; i++ {
		g.Go(func() error {
			w.worker()
			return nil
		})
	}

	err := w.selectorLoop()
	close(w.queue)
	g.Wait() //nolint:errcheck
	return err
}

func (w *WorkerPool) selectorLoop() error {
	for {
		events, err := w.poller.Wait()
		if err != nil {
			if w.closed {
				return nil
			}
			return fmt.Errorf("dispatch: poller wait: %w", err)
		}
		for _, ev := range events {
			if ev.FD == w.listenFD {
				w.acceptAll()
				continue
			}
			if !ev.Readable {
				continue
			}
			w.mu.Lock()
			alreadyQueued := w.inService[ev.FD]
			if !alreadyQueued {
				w.inService[ev.FD] = true
			}
			w.mu.Unlock()
			if !alreadyQueued {
				w.queue <- ev.FD
			}
		}
	}
}

func (w *WorkerPool) acceptAll() {
	for {
		fd, _, err := unix.Accept4(w.listenFD, unix.SOCK_NONBLOCK)
		if err != nil {
			return
		}
		if err := w.poller.Add(fd, true, false); err != nil {
			httpfront.Log().Warn("registering accepted connection", zap.Error(err))
			unix.Close(fd)
		}
	}
}

// worker dequeues one fd at a time, reads the full request, runs the
// pipeline, writes the response, clears the in-service mark, and closes
// the socket.
func (w *WorkerPool) worker() {
	for fd := range w.queue {
		w.handleConn(fd)

		w.mu.Lock()
		delete(w.inService, fd)
		w.mu.Unlock()

		w.poller.Remove(fd) //nolint:errcheck
		unix.Close(fd)
	}
}

func (w *WorkerPool) handleConn(fd int) {
	buf := make([]byte, MaxRequestSize)
	n, err := readRetryingEAGAIN(fd, buf)
	if err != nil || n == 0 {
		return
	}
	w.pipeline.Ctx.Stats.AddBytesRecv(n)
	w.pipeline.Ctx.Stats.IncRequestsRecv()

	resp := respond(w.pipeline, uuid.NewString(), buf[:n])
	data := resp.Serialize()

	sent, werr := writeAllRetryingEAGAIN(fd, data)
	if werr != nil {
		return // BrokenPipe: abandon silently, the client already left
	}
	w.pipeline.Ctx.Stats.AddBytesSent(sent)
	w.pipeline.Ctx.Stats.IncResponsesSent()
}

// readRetryingEAGAIN issues a single logical read, briefly retrying on
// EAGAIN. The selector already confirmed readiness before enqueuing this
// fd; a handful of short retries absorbs a spurious wakeup without the
// worker registering its own poller interest.
func readRetryingEAGAIN(fd int, buf []byte) (int, error) {
	for attempt := 0; attempt < 20; attempt++ {
		n, err := unix.Read(fd, buf)
		if err == unix.EAGAIN {
			time.Sleep(time.Millisecond)
			continue
		}
		return n, err
	}
	return 0, unix.EAGAIN
}

func writeAllRetryingEAGAIN(fd int, data []byte) (int, error) {
	total := 0
	for total < len(data) {
		chunk := data[total:]
		if len(chunk) > WriteChunkSize {
			chunk = chunk[:WriteChunkSize]
		}
		n, err := unix.Write(fd, chunk)
		if err == unix.EAGAIN {
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Close tears down the listener and poller, causing Run to return.
func (w *WorkerPool) Close() error {
	w.closed = true
	unix.Close(w.listenFD)
	return w.poller.Close()
}
