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

// Package httpfront holds the pieces shared by every handler and execution
// model: the Handler contract, the handler registry, and request/response
// statistics.
package httpfront

import "errors"

// Startup-phase errors (UnknownHandlerType, UnreachableRange) are fatal;
// everything else is caught per-connection and turned into a response or a
// silent close.
var (
	ErrUnknownHandlerType  = errors.New("httpfront: unknown handler type")
	ErrUnreachableRange    = errors.New("httpfront: weighted upstream ranges do not cover [0,1)")
	ErrUpstreamUnavailable = errors.New("httpfront: upstream unavailable")
	ErrUpstreamMalformed   = errors.New("httpfront: malformed upstream response")
	ErrNoHandlerMatched    = errors.New("httpfront: no handler matched request")
	ErrClientClosed        = errors.New("httpfront: client closed connection")
)
