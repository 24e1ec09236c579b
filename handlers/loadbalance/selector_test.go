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

package loadbalance

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zumaad/my-http-server/handlers/proxy"
	"github.com/zumaad/my-http-server/httpfront"
)

func entries(hosts ...string) []UpstreamEntry {
	out := make([]UpstreamEntry, len(hosts))
	for i, h := range hosts {
		out[i] = UpstreamEntry{Target: proxy.Target{Host: h, Port: 80}}
	}
	return out
}

// TestRoundRobinSequence verifies round-robin cycles upstreams in order,
// wrapping back to the first after the last.
func TestRoundRobinSequence(t *testing.T) {
	rr := NewRoundRobin(entries("A", "B", "C"))
	var got []string
	for i := 0; i < 7; i++ {
		target, err := rr.Next()
		require.NoError(t, err)
		got = append(got, target.Host)
	}
	require.Equal(t, []string{"A", "B", "C", "A", "B", "C", "A"}, got)
}

// TestRoundRobinFairnessUnderConcurrency verifies that after k*N picks from
// N upstreams, each has been selected exactly k times, even when picks
// race (the atomic counter never skips or double-assigns a slot).
func TestRoundRobinFairnessUnderConcurrency(t *testing.T) {
	rr := NewRoundRobin(entries("A", "B", "C"))
	const k = 200
	n := len(rr.entries)

	counts := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < k*n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			target, err := rr.Next()
			require.NoError(t, err)
			mu.Lock()
			counts[target.Host]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, host := range []string{"A", "B", "C"} {
		require.Equal(t, k, counts[host])
	}
}

// TestWeightedDeterministic verifies that with a seeded draw sequence
// 0.10, 0.65, 0.99 against ranges A:[0,0.5) B:[0.5,0.8) C:[0.8,1.0), the
// picks must be A, B, C in order.
func TestWeightedDeterministic(t *testing.T) {
	draws := []float64{0.10, 0.65, 0.99}
	i := 0
	w := &Weighted{
		entries: []UpstreamEntry{
			{Target: proxy.Target{Host: "A"}, Lo: 0.0, Hi: 0.5},
			{Target: proxy.Target{Host: "B"}, Lo: 0.5, Hi: 0.8},
			{Target: proxy.Target{Host: "C"}, Lo: 0.8, Hi: 1.0},
		},
		rand: func() float64 {
			r := draws[i]
			i++
			return r
		},
	}

	var got []string
	for range draws {
		target, err := w.Next()
		require.NoError(t, err)
		got = append(got, target.Host)
	}
	require.Equal(t, []string{"A", "B", "C"}, got)
}

// TestWeightedUnreachableRange covers the UnreachableRange error kind: a
// misconfigured, non-covering set of ranges must fail the draw rather than
// silently falling through to the wrong upstream.
func TestWeightedUnreachableRange(t *testing.T) {
	w := &Weighted{
		entries: []UpstreamEntry{
			{Target: proxy.Target{Host: "A"}, Lo: 0.0, Hi: 0.3},
		},
		rand: func() float64 { return 0.9 },
	}
	_, err := w.Next()
	require.ErrorIs(t, err, httpfront.ErrUnreachableRange)
}
