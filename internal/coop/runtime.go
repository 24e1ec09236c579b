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

package coop

import (
	"fmt"

	"github.com/zumaad/my-http-server/internal/poller"
)

// waiterKey identifies a single (fd, event) pair. The waiter map holds at
// most one waiting task per key.
type waiterKey struct {
	fd    int
	event Event
}

// Result is the outcome of a completed Task.
type Result struct {
	Value any
	Err   error
}

type entry struct {
	task   Task
	done   chan Result
	parked *ResourceTask
}

// Scheduler is a single-threaded cooperative runtime: a ready queue of
// tasks that can make progress, a waiter map from (fd, event) to the one
// task parked on it, and a readiness poller.
//
// Exactly one goroutine may call RunUntilIdle; that goroutine is the single thread
// driving every task's I/O.
type Scheduler struct {
	poller poller.Poller

	ready   []*entry
	waiters map[waiterKey]*entry
	byFD    map[int][]*entry // for Cancel: every entry currently parked on fd
}

// NewScheduler creates a Scheduler backed by p.
func NewScheduler(p poller.Poller) *Scheduler {
	return &Scheduler{
		poller:  p,
		waiters: make(map[waiterKey]*entry),
		byFD:    make(map[int][]*entry),
	}
}

// Spawn enqueues task to run and returns a channel that receives exactly
// one Result when it completes (including when cancelled).
func (s *Scheduler) Spawn(task Task) <-chan Result {
	e := &entry{task: task, done: make(chan Result, 1)}
	s.ready = append(s.ready, e)
	return e.done
}

// Cancel completes every task currently parked on fd with ErrCancelled —
// closing a connection cancels all tasks waiting on its fd. It also
// removes fd from the poller.
func (s *Scheduler) Cancel(fd int) {
	entries := s.byFD[fd]
	delete(s.byFD, fd)
	for _, e := range entries {
		if e.parked != nil {
			delete(s.waiters, waiterKey{fd: e.parked.FD, event: e.parked.Event})
		}
		e.done <- Result{Err: ErrCancelled}
	}
	_ = s.poller.Remove(fd)
}

// RunUntilIdle steps every ready task once, parking those that yield a
// ResourceTask, then blocks on the poller until progress is possible again.
// It returns when the ready queue and waiter map are both empty, i.e. there
// is no outstanding work (the caller, typically the dispatcher's accept
// loop, decides whether to call it again).
func (s *Scheduler) RunUntilIdle() error {
	for len(s.ready) > 0 || len(s.waiters) > 0 {
		if err := s.drainReady(); err != nil {
			return err
		}
		if len(s.waiters) == 0 {
			return nil
		}
		if err := s.pollOnce(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) drainReady() error {
	for len(s.ready) > 0 {
		// Ready tasks run strictly FIFO; there is no preemption.
		e := s.ready[0]
		s.ready = s.ready[1:]

		var wake ResourceTask
		woken := e.parked != nil
		if woken {
			wake = *e.parked
			s.untrack(e)
		}

		next, done, value, err := e.task.Step(wake, woken)
		if done {
			e.done <- Result{Value: value, Err: err}
			continue
		}
		if next == nil {
			return fmt.Errorf("coop: task yielded no resource task without completing")
		}
		e.parked = next
		key := waiterKey{fd: next.FD, event: next.Event}
		if _, exists := s.waiters[key]; exists {
			return fmt.Errorf("coop: duplicate waiter for fd=%d event=%v", next.FD, next.Event)
		}
		s.waiters[key] = e
		s.byFD[next.FD] = append(s.byFD[next.FD], e)
		if regErr := s.register(next.FD); regErr != nil {
			return regErr
		}
	}
	return nil
}

// register ensures the poller watches fd for whichever of read/write it
// currently has waiters for.
func (s *Scheduler) register(fd int) error {
	_, wantRead := s.waiters[waiterKey{fd: fd, event: Readable}]
	_, wantWrite := s.waiters[waiterKey{fd: fd, event: Writable}]
	if len(s.byFD[fd]) == 1 {
		return s.poller.Add(fd, wantRead, wantWrite)
	}
	return s.poller.Modify(fd, wantRead, wantWrite)
}

func (s *Scheduler) untrack(e *entry) {
	if e.parked == nil {
		return
	}
	key := waiterKey{fd: e.parked.FD, event: e.parked.Event}
	delete(s.waiters, key)
	fd := e.parked.FD
	peers := s.byFD[fd]
	for i, peer := range peers {
		if peer == e {
			s.byFD[fd] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	if len(s.byFD[fd]) == 0 {
		delete(s.byFD, fd)
	}
	e.parked = nil
}

func (s *Scheduler) pollOnce() error {
	events, err := s.poller.Wait()
	if err != nil {
		return err
	}
	for _, ev := range events {
		if ev.Readable {
			if e, ok := s.waiters[waiterKey{fd: ev.FD, event: Readable}]; ok {
				s.ready = append(s.ready, e)
			}
		}
		if ev.Writable {
			if e, ok := s.waiters[waiterKey{fd: ev.FD, event: Writable}]; ok {
				s.ready = append(s.ready, e)
			}
		}
	}
	return nil
}
