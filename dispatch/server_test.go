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
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	_ "github.com/zumaad/my-http-server/handlers/healthcheck"
	_ "github.com/zumaad/my-http-server/handlers/static"
	"github.com/zumaad/my-http-server/httpfront"
)

// boundAddr reads back the ephemeral port the kernel assigned a listener
// bound to port 0, so tests never race over a fixed port number.
func boundAddr(t *testing.T, fd int) string {
	t.Helper()
	sa, err := unix.Getsockname(fd)
	require.NoError(t, err)
	in4, ok := sa.(*unix.SockaddrInet4)
	require.True(t, ok, "expected an IPv4 socket address")
	// bindListener always binds INADDR_ANY; dial loopback rather than 0.0.0.0.
	return (&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: in4.Port}).String()
}

func buildStaticPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "logo.png"), []byte("\x89PN"), 0o644))

	ctx := httpfront.NewContext()
	handlers, err := httpfront.NewHandlerManager([]httpfront.HandlerSpec{
		{
			Type:     "serveStatic",
			Criteria: httpfront.MatchCriteria{"url": {"/static/"}},
			Context:  map[string]any{"staticRoot": root},
		},
		{
			Type:     "healthCheck",
			Criteria: httpfront.MatchCriteria{"url": {"/healthz"}},
		},
	}, ctx).Build()
	require.NoError(t, err)

	return &Pipeline{Handlers: handlers, Ctx: ctx}, root
}

func sendRequest(t *testing.T, addr, raw string) []byte {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck

	buf := make([]byte, 16*1024)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return buf[:n]
}

// TestWorkerPoolServesStaticFileEndToEnd exercises the worker pool over a
// real TCP socket, driven through the actual accept/read/dispatch path
// instead of calling the handler directly.
func TestWorkerPoolServesStaticFileEndToEnd(t *testing.T) {
	pipeline, _ := buildStaticPipeline(t)
	server, err := NewWorkerPool(0, pipeline)
	require.NoError(t, err)
	addr := boundAddr(t, server.listenFD)

	done := make(chan error, 1)
	go func() { done <- server.Run() }()
	t.Cleanup(func() {
		server.Close() //nolint:errcheck
		<-done
	})

	out := sendRequest(t, addr, "GET /static/logo.png HTTP/1.1\r\n\r\n")
	require.Contains(t, string(out), "HTTP/1.1 200 OK")
	require.Contains(t, string(out), "Content-Type: image/png")
	require.Contains(t, string(out), "\x89PN")
}

// TestWorkerPoolNoHandlerMatchedEndToEnd verifies a request matching no
// handler gets a 400 over the wire, not a hang or a crash.
func TestWorkerPoolNoHandlerMatchedEndToEnd(t *testing.T) {
	pipeline, _ := buildStaticPipeline(t)
	server, err := NewWorkerPool(0, pipeline)
	require.NoError(t, err)
	addr := boundAddr(t, server.listenFD)

	done := make(chan error, 1)
	go func() { done <- server.Run() }()
	t.Cleanup(func() {
		server.Close() //nolint:errcheck
		<-done
	})

	out := sendRequest(t, addr, "GET /nowhere HTTP/1.1\r\n\r\n")
	require.Contains(t, string(out), "HTTP/1.1 400")
}

// TestEventLoopServesStaticFileEndToEnd covers the same scenario under the
// event loop, confirming the two models are interchangeable behind the
// Server contract for a non-blocking handler.
func TestEventLoopServesStaticFileEndToEnd(t *testing.T) {
	pipeline, _ := buildStaticPipeline(t)
	server, err := NewEventLoop(0, pipeline)
	require.NoError(t, err)
	addr := boundAddr(t, server.listenFD)

	done := make(chan error, 1)
	go func() { done <- server.Run() }()
	t.Cleanup(func() {
		server.Close() //nolint:errcheck
		<-done
	})

	out := sendRequest(t, addr, "GET /static/logo.png HTTP/1.1\r\n\r\n")
	require.Contains(t, string(out), "HTTP/1.1 200 OK")
	require.Contains(t, string(out), "Content-Type: image/png")
	require.Contains(t, string(out), "\x89PN")
}
