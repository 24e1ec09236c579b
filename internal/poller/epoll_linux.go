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

//go:build linux

package poller

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux epoll(7) backed Poller.
type epollPoller struct {
	epfd int

	mu   sync.Mutex
	size int
}

// New creates a Poller backed by epoll_create1(2).
func New() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: fd}, nil
}

func (p *epollPoller) eventMask(readable, writable bool) uint32 {
	var mask uint32
	if readable {
		mask |= unix.EPOLLIN
	}
	if writable {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func (p *epollPoller) Add(fd int, readable, writable bool) error {
	ev := unix.EpollEvent{Events: p.eventMask(readable, writable), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	p.mu.Lock()
	p.size++
	p.mu.Unlock()
	return nil
}

func (p *epollPoller) Modify(fd int, readable, writable bool) error {
	ev := unix.EpollEvent{Events: p.eventMask(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == nil {
		p.mu.Lock()
		if p.size > 0 {
			p.size--
		}
		p.mu.Unlock()
	}
	return err
}

// Wait blocks with no timeout (-1) until at least one fd is ready.
func (p *epollPoller) Wait() ([]Event, error) {
	p.mu.Lock()
	n := p.size
	p.mu.Unlock()
	if n == 0 {
		n = 1
	}
	raw := make([]unix.EpollEvent, n+8)

	for {
		count, err := unix.EpollWait(p.epfd, raw, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		events := make([]Event, 0, count)
		for i := 0; i < count; i++ {
			events = append(events, Event{
				FD:       int(raw[i].Fd),
				Readable: raw[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
				Writable: raw[i].Events&unix.EPOLLOUT != 0,
			})
		}
		return events, nil
	}
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
