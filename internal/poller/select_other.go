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

//go:build !linux && !windows

package poller

import (
	"sync"

	"golang.org/x/sys/unix"
)

// selectPoller is a select(2)-backed fallback Poller for non-Linux Unixes,
// used where epoll isn't available. It trades scalability (select is
// limited to FD_SETSIZE descriptors) for portability.
type selectPoller struct {
	mu        sync.Mutex
	readable  map[int]bool
	writable  map[int]bool
}

// New creates a select(2) backed Poller.
func New() (Poller, error) {
	return &selectPoller{
		readable: make(map[int]bool),
		writable: make(map[int]bool),
	}, nil
}

func (p *selectPoller) Add(fd int, readable, writable bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readable[fd] = readable
	p.writable[fd] = writable
	return nil
}

func (p *selectPoller) Modify(fd int, readable, writable bool) error {
	return p.Add(fd, readable, writable)
}

func (p *selectPoller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.readable, fd)
	delete(p.writable, fd)
	return nil
}

func (p *selectPoller) Wait() ([]Event, error) {
	for {
		p.mu.Lock()
		var rfds, wfds unix.FdSet
		maxFD := 0
		for fd, want := range p.readable {
			if want {
				fdSet(&rfds, fd)
				if fd > maxFD {
					maxFD = fd
				}
			}
		}
		for fd, want := range p.writable {
			if want {
				fdSet(&wfds, fd)
				if fd > maxFD {
					maxFD = fd
				}
			}
		}
		p.mu.Unlock()

		n, err := unix.Select(maxFD+1, &rfds, &wfds, nil, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}

		var events []Event
		p.mu.Lock()
		for fd := range p.readable {
			r := fdIsSet(&rfds, fd)
			w := fdIsSet(&wfds, fd)
			if r || w {
				events = append(events, Event{FD: fd, Readable: r, Writable: w})
			}
		}
		p.mu.Unlock()
		return events, nil
	}
}

func (p *selectPoller) Close() error {
	return nil
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
