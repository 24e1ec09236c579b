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

	"github.com/zumaad/my-http-server/httpfront"
	"github.com/zumaad/my-http-server/internal/coop"
	"github.com/zumaad/my-http-server/internal/wire"
)

// TypeTag is the settings "type" value that selects this handler.
const TypeTag = "reverseProxy"

func init() {
	httpfront.RegisterHandlerType(TypeTag, construct)
}

// Handler forwards to a fixed target, delegating to Caller (or to
// CooperativeCaller under the cooperative scheduler).
// LoadBalancing (handlers/loadbalance) is the same shape with a selector in
// front instead of a fixed Target.
type Handler struct {
	criteria httpfront.MatchCriteria
	target   Target
	caller   Caller
}

func construct(criteria httpfront.MatchCriteria, context map[string]any, _ *httpfront.Context) (httpfront.Handler, error) {
	target, err := targetFromContext(context, "send_to")
	if err != nil {
		return nil, fmt.Errorf("reverseProxy: %w", err)
	}
	return &Handler{criteria: criteria, target: target}, nil
}

// targetFromContext reads the {host, port} pair settings decodes "send_to"
// (or any other key) into — a YAML mapping of the form
// "send_to: {host: 127.0.0.1, port: 9000}".
func targetFromContext(context map[string]any, key string) (Target, error) {
	raw, ok := context[key]
	if !ok {
		return Target{}, fmt.Errorf("context.%s is required", key)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Target{}, fmt.Errorf("context.%s must be a {host, port} mapping", key)
	}

	host, ok := m["host"].(string)
	if !ok || host == "" {
		return Target{}, fmt.Errorf("context.%s.host is required", key)
	}

	port, err := intField(m["port"])
	if err != nil {
		return Target{}, fmt.Errorf("context.%s.port: %w", key, err)
	}
	return Target{Host: host, Port: port}, nil
}

// intField coerces the handful of numeric shapes a YAML decoder (yaml.v3
// into map[string]any) can hand back for an integer field.
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

// Handle delegates straight to the synchronous UpstreamCaller against the
// fixed target.
func (h *Handler) Handle(req *wire.Request) (*wire.Response, error) {
	return h.caller.Call(h.target, req), nil
}

// HandleCooperative implements httpfront.CooperativeHandler: the same
// call, expressed as a suspendable task instead of a blocking one.
func (h *Handler) HandleCooperative(req *wire.Request) coop.Task {
	return CooperativeCaller{}.Call(h.target, req)
}
