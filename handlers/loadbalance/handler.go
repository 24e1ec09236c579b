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

package loadbalance

import (
	"fmt"

	"github.com/zumaad/my-http-server/handlers/proxy"
	"github.com/zumaad/my-http-server/httpfront"
	"github.com/zumaad/my-http-server/internal/coop"
	"github.com/zumaad/my-http-server/internal/wire"
)

// TypeTag is the settings "type" value that selects this handler.
const TypeTag = "loadBalance"

func init() {
	httpfront.RegisterHandlerType(TypeTag, construct)
}

// Handler uses a Selector to pick the upstream, then behaves exactly like
// proxy.Handler against it.
type Handler struct {
	criteria httpfront.MatchCriteria
	selector Selector
	caller   proxy.Caller
}

func construct(criteria httpfront.MatchCriteria, context map[string]any, _ *httpfront.Context) (httpfront.Handler, error) {
	strategy, _ := context["strategy"].(string)
	entries, err := entriesFromContext(context, "send_to", strategy)
	if err != nil {
		return nil, fmt.Errorf("loadBalance: %w", err)
	}

	var selector Selector
	switch strategy {
	case "round_robin":
		selector = NewRoundRobin(entries)
	case "weighted":
		// The ranges must tile [0, 1) exactly: follow them from 0, one
		// entry per step, and require the chain to end at 1.
		next := 0.0
		for range entries {
			found := false
			for _, e := range entries {
				if e.Lo == next && e.Hi > e.Lo {
					next, found = e.Hi, true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("loadBalance: %w: no range starts at %v", httpfront.ErrUnreachableRange, next)
			}
		}
		if next != 1.0 {
			return nil, fmt.Errorf("loadBalance: %w: ranges end at %v", httpfront.ErrUnreachableRange, next)
		}
		selector = NewWeighted(entries)
	default:
		return nil, fmt.Errorf("loadBalance: unknown strategy %q (want round_robin or weighted)", strategy)
	}

	return &Handler{criteria: criteria, selector: selector}, nil
}

func entriesFromContext(context map[string]any, key, strategy string) ([]UpstreamEntry, error) {
	raw, ok := context[key]
	if !ok {
		return nil, fmt.Errorf("context.%s is required", key)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("context.%s must be a list", key)
	}

	entries := make([]UpstreamEntry, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("context.%s[%d] must be a {host, port[, weight]} mapping", key, i)
		}
		host, _ := m["host"].(string)
		if host == "" {
			return nil, fmt.Errorf("context.%s[%d].host is required", key, i)
		}
		port, err := intField(m["port"])
		if err != nil {
			return nil, fmt.Errorf("context.%s[%d].port: %w", key, i, err)
		}

		entry := UpstreamEntry{Target: proxy.Target{Host: host, Port: port}}
		if strategy == "weighted" {
			lo, hi, err := weightRange(m["weight"])
			if err != nil {
				return nil, fmt.Errorf("context.%s[%d].weight: %w", key, i, err)
			}
			entry.Lo, entry.Hi = lo, hi
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// weightRange reads a two-element [lo, hi) pair, the YAML encoding of an
// upstream's weight range.
func weightRange(v any) (lo, hi float64, err error) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return 0, 0, fmt.Errorf("expected a [lo, hi) pair, got %#v", v)
	}
	lo, err = floatField(pair[0])
	if err != nil {
		return 0, 0, err
	}
	hi, err = floatField(pair[1])
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

func floatField(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func intField(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

// ShouldHandle implements httpfront.Handler.
func (h *Handler) ShouldHandle(req *wire.Request) bool {
	return h.criteria.ShouldHandle(req)
}

// Handle selects an upstream, then calls it exactly like proxy.Handler
// would.
func (h *Handler) Handle(req *wire.Request) (*wire.Response, error) {
	target, err := h.selector.Next()
	if err != nil {
		return nil, err
	}
	return h.caller.Call(target, req), nil
}

// HandleCooperative implements httpfront.CooperativeHandler.
func (h *Handler) HandleCooperative(req *wire.Request) coop.Task {
	target, err := h.selector.Next()
	if err != nil {
		return coop.NewFuncTask(func() (any, error) { return nil, err })
	}
	return proxy.CooperativeCaller{}.Call(target, req)
}
