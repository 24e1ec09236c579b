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

import "fmt"

// Model names accepted by NewServer and the --model CLI flag.
const (
	ModelEventLoop  = "event-loop"
	ModelWorkerPool = "worker-pool"
	ModelCoop       = "cooperative"
)

// Server is the contract shared by all three execution models: run the
// model until Close is called. The execution model is chosen once, at
// server construction, not per-request.
type Server interface {
	Run() error
	Close() error
}

// NewServer builds the Server for the named model, bound to port and
// driving requests through pipeline.
func NewServer(model string, port int, pipeline *Pipeline) (Server, error) {
	switch model {
	case ModelEventLoop:
		return NewEventLoop(port, pipeline)
	case ModelWorkerPool:
		return NewWorkerPool(port, pipeline)
	case ModelCoop:
		return NewCooperative(port, pipeline)
	default:
		return nil, fmt.Errorf("dispatch: unknown execution model %q (want %s, %s, or %s)",
			model, ModelEventLoop, ModelWorkerPool, ModelCoop)
	}
}
