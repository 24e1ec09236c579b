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
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zumaad/my-http-server/httpfront"
	"github.com/zumaad/my-http-server/internal/wire"
)

// stubUpstream accepts a single connection, reads whatever is sent, and
// writes back a fixed response, closing immediately after.
func stubUpstream(t *testing.T, response []byte) Target {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		conn.Read(buf) //nolint:errcheck
		conn.Write(response)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return Target{Host: "127.0.0.1", Port: addr.Port}
}

// TestReverseProxyHit verifies a reachable upstream's response is relayed
// back unchanged.
func TestReverseProxyHit(t *testing.T) {
	target := stubUpstream(t, []byte("HTTP/1.1 201 Created\r\nContent-Length: 2\r\n\r\nOK"))

	h := &Handler{
		criteria: httpfront.MatchCriteria{"url": {"/api/"}},
		target:   target,
	}
	req := &wire.Request{Method: "GET", URL: "/api/x", Raw: []byte("GET /api/x HTTP/1.1\r\n\r\n")}
	require.True(t, h.ShouldHandle(req))

	resp, err := h.Handle(req)
	require.NoError(t, err)
	require.Equal(t, 201, resp.Status)
	require.Equal(t, []byte("OK"), resp.Body)
}

// TestReverseProxyConnectionRefused verifies a closed upstream port fails
// fast into a 502, never a Go error.
func TestReverseProxyConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close()) // free the port, nothing listens on it now

	h := &Handler{target: Target{Host: "127.0.0.1", Port: addr.Port}}
	req := &wire.Request{Method: "GET", URL: "/api/x", Raw: []byte("GET /api/x HTTP/1.1\r\n\r\n")}

	resp, err := h.Handle(req)
	require.NoError(t, err)
	require.Equal(t, 502, resp.Status)
}

func TestTargetFromContext(t *testing.T) {
	target, err := targetFromContext(map[string]any{
		"send_to": map[string]any{"host": "10.0.0.1", "port": 9000},
	}, "send_to")
	require.NoError(t, err)
	require.Equal(t, Target{Host: "10.0.0.1", Port: 9000}, target)

	_, err = targetFromContext(map[string]any{}, "send_to")
	require.Error(t, err)
}
