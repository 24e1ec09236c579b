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

import (
	"github.com/zumaad/my-http-server/internal/coop"
	"github.com/zumaad/my-http-server/internal/wire"
)

// MatchCriteria maps a request attribute name ("url", "method", or a header
// name) to the list of accepted values. An empty criteria map matches
// every request.
type MatchCriteria map[string][]string

// ShouldHandle is a pure, no-I/O predicate, constant-time over
// len(criteria). The "url" attribute is a prefix match against each listed
// value; every other attribute is exact set membership.
func (c MatchCriteria) ShouldHandle(req *wire.Request) bool {
	for attribute, accepted := range c {
		actual := req.Attribute(attribute)
		if attribute == "url" {
			if !hasAnyPrefix(actual, accepted) {
				return false
			}
			continue
		}
		if !contains(accepted, actual) {
			return false
		}
	}
	return true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(s) >= len(p) && s[:len(p)] == p {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Handler is the contract every built-in handler implements: a pure
// predicate deciding whether it wants a request, and a (possibly blocking,
// possibly I/O-bound) function that produces the response.
type Handler interface {
	ShouldHandle(req *wire.Request) bool
	Handle(req *wire.Request) (*wire.Response, error)
}

// CooperativeHandler is implemented by handlers that can run under the
// cooperative scheduler by yielding coop.ResourceTask suspensions instead
// of blocking. HandleCooperative returns a coop.Task whose eventual
// Result.Value is a *wire.Response; the cooperative dispatcher's
// per-connection task steps it in place of its own dispatch phase, so its
// suspensions park the connection task. Handlers that don't implement this
// interface (e.g. StaticAssetHandler, which never blocks) are wrapped in a
// task that runs Handle to completion on its first Step instead.
type CooperativeHandler interface {
	Handler
	HandleCooperative(req *wire.Request) coop.Task
}
