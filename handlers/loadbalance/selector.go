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

// Package loadbalance implements LoadBalancingHandler: an upstream
// selection strategy (round-robin or weighted) composed with proxy.Caller.
package loadbalance

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/zumaad/my-http-server/handlers/proxy"
	"github.com/zumaad/my-http-server/httpfront"
)

// UpstreamEntry is a (host, port, weight_range) tuple. Lo/Hi are only
// meaningful for the weighted strategy.
type UpstreamEntry struct {
	Target proxy.Target
	Lo, Hi float64
}

// Selector picks the next upstream from a fixed list. Implementations must
// be safe for concurrent use.
type Selector interface {
	Next() (proxy.Target, error)
}

// RoundRobin cycles through entries in order with a monotonically
// increasing atomic counter: increments are atomic under concurrent use,
// but strict fairness across callers is not guaranteed.
type RoundRobin struct {
	entries []UpstreamEntry
	next    atomic.Uint64
}

// NewRoundRobin builds a RoundRobin selector over entries, in the given order.
func NewRoundRobin(entries []UpstreamEntry) *RoundRobin {
	return &RoundRobin{entries: entries}
}

// Next implements Selector.
func (r *RoundRobin) Next() (proxy.Target, error) {
	if len(r.entries) == 0 {
		return proxy.Target{}, fmt.Errorf("loadbalance: round_robin has no upstreams")
	}
	i := r.next.Add(1) - 1
	return r.entries[i%uint64(len(r.entries))].Target, nil
}

// Weighted draws r uniformly from [0, 1) and returns the entry whose
// [Lo, Hi) half-open range contains r: an explicit interval comparison,
// never a container membership check.
type Weighted struct {
	entries []UpstreamEntry
	rand    func() float64
}

// NewWeighted builds a Weighted selector. entries must be disjoint,
// contiguous, and cover [0, 1) exactly. NewWeighted itself does not check
// this; the loadBalance handler type rejects bad ranges with
// httpfront.ErrUnreachableRange when it is built from settings, and Next
// returns that error for any draw no range contains.
func NewWeighted(entries []UpstreamEntry) *Weighted {
	return &Weighted{entries: entries, rand: rand.Float64}
}

// Next implements Selector.
func (w *Weighted) Next() (proxy.Target, error) {
	r := w.rand()
	for _, e := range w.entries {
		if r >= e.Lo && r < e.Hi {
			return e.Target, nil
		}
	}
	return proxy.Target{}, fmt.Errorf("%w: r=%v", httpfront.ErrUnreachableRange, r)
}
