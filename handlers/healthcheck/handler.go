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

// Package healthcheck implements the healthCheck handler type: a trivial,
// criteria-gated 200 response used for load-balancer/orchestrator
// liveness probes.
package healthcheck

import (
	"github.com/zumaad/my-http-server/httpfront"
	"github.com/zumaad/my-http-server/internal/wire"
)

// TypeTag is the settings "type" value that selects this handler.
const TypeTag = "healthCheck"

func init() {
	httpfront.RegisterHandlerType(TypeTag, construct)
}

// Handler always answers 200 text/plain "OK" once its criteria matches; it
// requires no context.
type Handler struct {
	criteria httpfront.MatchCriteria
}

func construct(criteria httpfront.MatchCriteria, _ map[string]any, _ *httpfront.Context) (httpfront.Handler, error) {
	return &Handler{criteria: criteria}, nil
}

// ShouldHandle implements httpfront.Handler.
func (h *Handler) ShouldHandle(req *wire.Request) bool {
	return h.criteria.ShouldHandle(req)
}

// Handle implements httpfront.Handler.
func (h *Handler) Handle(req *wire.Request) (*wire.Response, error) {
	return &wire.Response{
		Status:  200,
		Headers: map[string]string{"Content-Type": "text/plain"},
		Body:    []byte("OK"),
	}, nil
}
