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

// Package dispatch holds the per-connection pipeline shared by all three
// execution models, and the three models themselves (eventloop.go,
// workerpool.go, cooperative.go) behind one Server contract.
package dispatch

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zumaad/my-http-server/httpfront"
	"github.com/zumaad/my-http-server/internal/coop"
	"github.com/zumaad/my-http-server/internal/wire"
)

// MaxRequestSize is the one-shot read bound: a single recv is taken as the
// entire request, 16 KiB throughout.
const MaxRequestSize = 16 * 1024

// WriteChunkSize is the buffered write chunk size.
const WriteChunkSize = 16 * 1024

// Pipeline is the handler-probing contract all three models share:
//
//	for each handler in order:
//	  if handler.should_handle(req): response = handler.handle(req); break
//	else: response = HttpResponse(400, "no handler matched")
type Pipeline struct {
	Handlers []httpfront.Handler
	Ctx      *httpfront.Context
}

// Dispatch runs the pipeline synchronously, for the event loop and the
// worker pool.
func (p *Pipeline) Dispatch(req *wire.Request) *wire.Response {
	for _, h := range p.Handlers {
		if !h.ShouldHandle(req) {
			continue
		}
		resp, err := h.Handle(req)
		if err != nil {
			httpfront.Log().Error("handler error", zap.Error(err))
			return wire.NewErrorResponse(500, err.Error())
		}
		return resp
	}
	return noHandlerMatchedResponse()
}

// DispatchCooperative runs the pipeline for the cooperative scheduler: the
// matched handler's work is returned as a coop.Task rather than driven to
// completion here. A handler that isn't a httpfront.CooperativeHandler is
// wrapped in a coop.Func that completes on its first Step — a synchronous
// handler under the cooperative scheduler is just a task with no
// suspension points.
func (p *Pipeline) DispatchCooperative(req *wire.Request) coop.Task {
	for _, h := range p.Handlers {
		if !h.ShouldHandle(req) {
			continue
		}
		if ch, ok := h.(httpfront.CooperativeHandler); ok {
			return ch.HandleCooperative(req)
		}
		handler := h
		return coop.NewFuncTask(func() (any, error) {
			return handler.Handle(req)
		})
	}
	resp := noHandlerMatchedResponse()
	return coop.NewFuncTask(func() (any, error) { return resp, nil })
}

func noHandlerMatchedResponse() *wire.Response {
	return wire.NewErrorResponse(400, fmt.Sprintf("%v", httpfront.ErrNoHandlerMatched))
}
