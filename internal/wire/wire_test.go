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

package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRequestLine(t *testing.T) {
	raw := []byte("GET /static/logo.png HTTP/1.1\r\nHost: example.com\r\n\r\n")
	req, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "GET", req.Method)
	require.Equal(t, "/static/logo.png", req.URL)
	require.Equal(t, "example.com", req.Header("Host"))
	require.Equal(t, raw, req.Raw)
}

func TestParseAcceptsBareLF(t *testing.T) {
	raw := []byte("GET /x HTTP/1.1\nHost: example.com\n\n")
	req, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "GET", req.Method)
	require.Equal(t, "example.com", req.Header("Host"))
}

func TestParseDuplicateHeaderLastWins(t *testing.T) {
	raw := []byte("GET /x HTTP/1.1\r\nX-Tag: first\r\nX-Tag: second\r\n\r\n")
	req, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "second", req.Header("X-Tag"))
}

func TestParseMalformedRequestLine(t *testing.T) {
	_, err := Parse([]byte("GET\r\n\r\n"))
	require.ErrorIs(t, err, ErrMalformedRequest)
}

func TestParseMalformedHeaderLine(t *testing.T) {
	_, err := Parse([]byte("GET /x HTTP/1.1\r\nNotAHeader\r\n\r\n"))
	require.ErrorIs(t, err, ErrMalformedRequest)
}

func TestParseBody(t *testing.T) {
	raw := []byte("POST /submit HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
	req, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), req.Body)
}

func TestSerializeDefaults(t *testing.T) {
	resp := NewResponse([]byte("abc"))
	out := resp.Serialize()
	require.Contains(t, string(out), "HTTP/1.1 200 OK\r\n")
	require.Contains(t, string(out), "Content-Length: 3\r\n")
	require.Contains(t, string(out), "Content-Type: text/html; charset=UTF-8\r\n")
	require.True(t, bytesHasSuffix(out, []byte("abc")))
}

func TestSerializePreservesCallerContentType(t *testing.T) {
	resp := &Response{Status: 200, Headers: map[string]string{"Content-Type": "image/png"}, Body: []byte{1, 2, 3}}
	out := resp.Serialize()
	require.Contains(t, string(out), "Content-Type: image/png\r\n")
	require.Contains(t, string(out), "Content-Length: 3\r\n")
}

func TestRoundTripParseSerialize(t *testing.T) {
	resp := &Response{Status: 404, Headers: map[string]string{"X-Custom": "v"}, Body: []byte("nope")}
	out := resp.Serialize()
	parsed, err := ParseResponse(out)
	require.NoError(t, err)
	require.Equal(t, 404, parsed.Status)
	require.Equal(t, "nope", string(parsed.Body))
	require.Equal(t, "v", parsed.Headers["X-Custom"])
}

func bytesHasSuffix(b, suffix []byte) bool {
	if len(suffix) > len(b) {
		return false
	}
	return string(b[len(b)-len(suffix):]) == string(suffix)
}
