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

package httpfront

import "sync/atomic"

// Stats holds the additive, monotonic counters the server reports at
// shutdown. Every field is updated with atomic ops so a single Stats value
// can be shared safely across concurrent worker goroutines without an
// external mutex.
type Stats struct {
	bytesSent     atomic.Int64
	bytesRecv     atomic.Int64
	requestsRecv  atomic.Int64
	responsesSent atomic.Int64
}

// AddBytesSent increments the bytes-sent counter.
func (s *Stats) AddBytesSent(n int) { s.bytesSent.Add(int64(n)) }

// AddBytesRecv increments the bytes-received counter.
func (s *Stats) AddBytesRecv(n int) { s.bytesRecv.Add(int64(n)) }

// IncRequestsRecv increments the requests-received counter.
func (s *Stats) IncRequestsRecv() { s.requestsRecv.Add(1) }

// IncResponsesSent increments the responses-sent counter.
func (s *Stats) IncResponsesSent() { s.responsesSent.Add(1) }

// Snapshot is a point-in-time, plain copy of the counters, primarily so
// tests and the shutdown log line don't have to poke at atomics directly.
type Snapshot struct {
	BytesSent     int64
	BytesRecv     int64
	RequestsRecv  int64
	ResponsesSent int64
}

// Snapshot reads all counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		BytesSent:     s.bytesSent.Load(),
		BytesRecv:     s.bytesRecv.Load(),
		RequestsRecv:  s.requestsRecv.Load(),
		ResponsesSent: s.responsesSent.Load(),
	}
}
