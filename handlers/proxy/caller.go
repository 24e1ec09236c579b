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

// Package proxy implements ReverseProxyHandler plus the UpstreamCaller
// composition primitive it's built from: one caller (sync or cooperative)
// forwarding to a target picked by an upstream-selection strategy.
// LoadBalancing (handlers/loadbalance) reuses Caller and only swaps the
// selector.
package proxy

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/zumaad/my-http-server/httpfront"
	"github.com/zumaad/my-http-server/internal/wire"
)

// Deadline is the overall upstream call deadline.
const Deadline = 15 * time.Second

// maxUpstreamResponse bounds the buffered read from an upstream so a
// misbehaving backend can't exhaust memory.
const maxUpstreamResponse = 1 << 20 // 1 MiB

// Target is a single upstream address.
type Target struct {
	Host string
	Port int
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Caller is the synchronous UpstreamCaller: it opens a TCP connection,
// forwards the request's raw bytes verbatim, reads the full response, and
// parses it. Used by Handle under the event loop and worker pool; the
// cooperative scheduler uses CooperativeCaller instead.
type Caller struct{}

// Call connects, sends req.Raw, and reads to EOF (bounded), all within one
// 15s deadline, then parses the reply. Connection failures and malformed replies are
// translated into 502 responses rather than returned as Go errors, so the
// dispatcher never needs upstream-aware error handling.
func (Caller) Call(target Target, req *wire.Request) *wire.Response {
	deadline := time.Now().Add(Deadline)
	conn, err := net.DialTimeout("tcp", target.String(), Deadline)
	if err != nil {
		return wire.NewErrorResponse(502, fmt.Sprintf("upstream %s unavailable: %v", target, err))
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return wire.NewErrorResponse(502, fmt.Sprintf("upstream %s unavailable: %v", target, err))
	}

	if _, err := conn.Write(req.Raw); err != nil {
		return wire.NewErrorResponse(502, fmt.Sprintf("writing to upstream %s: %v", target, err))
	}

	data, err := readAllBounded(conn, maxUpstreamResponse)
	if err != nil && len(data) == 0 {
		return wire.NewErrorResponse(502, fmt.Sprintf("reading from upstream %s: %v", target, err))
	}

	resp, err := wire.ParseResponse(data)
	if err != nil {
		return wire.NewErrorResponse(502, fmt.Sprintf("%v: %v", httpfront.ErrUpstreamMalformed, err))
	}
	return resp
}

func readAllBounded(r net.Conn, limit int) ([]byte, error) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for len(buf) < limit {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return buf, nil
			}
			return buf, err
		}
	}
	return buf, nil
}
