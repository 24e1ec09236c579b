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

package proxy

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/zumaad/my-http-server/internal/coop"
	"github.com/zumaad/my-http-server/internal/wire"
)

// CooperativeCaller is the cooperative-scheduler counterpart of Caller:
// the same connect/send/recv protocol, but expressed as an explicit state
// machine that yields a coop.ResourceTask at every suspension point
// instead of blocking, mirroring the original's AsyncReverseProxyHandler:
//
//	yield ResourceTask(remote_server, 'writable')   # connect
//	yield from async_send_all(...)                  # send
//	yield ResourceTask(remote_server, 'readable')    # recv
//
// Unlike Caller it applies no Deadline: an upstream that never becomes
// writable or readable leaves the task parked.
type CooperativeCaller struct{}

// Call returns a coop.Task that performs the call described above. Its
// Result.Value is a *wire.Response (always non-nil: connection failures
// are folded into a 502 the same way Caller.Call does, so the dispatcher
// pipeline never needs a separate cooperative error path).
func (CooperativeCaller) Call(target Target, req *wire.Request) coop.Task {
	return &callTask{target: target, req: req, state: stateConnect}
}

type callState int

const (
	stateConnect callState = iota
	stateConnectWait
	stateWrite
	stateRead
	stateDone
)

type callTask struct {
	target Target
	req    *wire.Request
	state  callState

	fd        int
	writeOff  int
	readBuf   []byte
	chunk     [4096]byte
	resultErr string // folded into a 502 body when non-empty
}

func (t *callTask) Step(wake coop.ResourceTask, woken bool) (*coop.ResourceTask, bool, any, error) {
	for {
		switch t.state {
		case stateConnect:
			fd, sa, err := resolveAndSocket(t.target)
			if err != nil {
				return t.fail(fmt.Sprintf("resolving upstream %s: %v", t.target, err))
			}
			t.fd = fd
			err = unix.Connect(fd, sa)
			if err == nil {
				t.state = stateWrite
				continue
			}
			if err == unix.EINPROGRESS {
				t.state = stateConnectWait
				return &coop.ResourceTask{FD: fd, Event: coop.Writable}, false, nil, nil
			}
			unix.Close(fd)
			return t.fail(fmt.Sprintf("connecting to upstream %s: %v", t.target, err))

		case stateConnectWait:
			if !woken {
				return &coop.ResourceTask{FD: t.fd, Event: coop.Writable}, false, nil, nil
			}
			errno, gerr := unix.GetsockoptInt(t.fd, unix.SOL_SOCKET, unix.SO_ERROR)
			if gerr != nil || errno != 0 {
				unix.Close(t.fd)
				return t.fail(fmt.Sprintf("connecting to upstream %s: errno %d", t.target, errno))
			}
			t.state = stateWrite

		case stateWrite:
			if t.writeOff >= len(t.req.Raw) {
				t.state = stateRead
				continue
			}
			n, err := unix.Write(t.fd, t.req.Raw[t.writeOff:])
			if err == unix.EAGAIN {
				return &coop.ResourceTask{FD: t.fd, Event: coop.Writable}, false, nil, nil
			}
			if err != nil {
				unix.Close(t.fd)
				return t.fail(fmt.Sprintf("writing to upstream %s: %v", t.target, err))
			}
			t.writeOff += n

		case stateRead:
			n, err := unix.Read(t.fd, t.chunk[:])
			if err == unix.EAGAIN {
				return &coop.ResourceTask{FD: t.fd, Event: coop.Readable}, false, nil, nil
			}
			if err != nil {
				unix.Close(t.fd)
				return t.fail(fmt.Sprintf("reading from upstream %s: %v", t.target, err))
			}
			if n == 0 {
				unix.Close(t.fd)
				t.state = stateDone
				continue
			}
			t.readBuf = append(t.readBuf, t.chunk[:n]...)
			if len(t.readBuf) >= maxUpstreamResponse {
				unix.Close(t.fd)
				t.state = stateDone
				continue
			}

		case stateDone:
			if len(t.readBuf) == 0 {
				return nil, true, wire.NewErrorResponse(502, fmt.Sprintf("upstream %s closed without responding", t.target)), nil
			}
			resp, err := wire.ParseResponse(t.readBuf)
			if err != nil {
				return nil, true, wire.NewErrorResponse(502, fmt.Sprintf("malformed upstream response from %s: %v", t.target, err)), nil
			}
			return nil, true, resp, nil
		}
	}
}

func (t *callTask) fail(message string) (*coop.ResourceTask, bool, any, error) {
	return nil, true, wire.NewErrorResponse(502, message), nil
}

// resolveAndSocket resolves target to an IPv4/IPv6 sockaddr and creates a
// non-blocking TCP socket for it.
func resolveAndSocket(target Target) (int, unix.Sockaddr, error) {
	addr, err := net.ResolveTCPAddr("tcp", target.String())
	if err != nil {
		return -1, nil, err
	}

	domain := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := addr.IP.To4(); ip4 != nil {
		s := &unix.SockaddrInet4{Port: addr.Port}
		copy(s.Addr[:], ip4)
		sa = s
	} else {
		domain = unix.AF_INET6
		s := &unix.SockaddrInet6{Port: addr.Port}
		copy(s.Addr[:], addr.IP.To16())
		sa = s
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, nil, err
	}
	return fd, sa, nil
}
