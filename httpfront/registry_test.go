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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zumaad/my-http-server/internal/wire"
)

type echoHandler struct{ criteria MatchCriteria }

func (e *echoHandler) ShouldHandle(req *wire.Request) bool { return e.criteria.ShouldHandle(req) }
func (e *echoHandler) Handle(req *wire.Request) (*wire.Response, error) {
	return wire.NewResponse([]byte(req.URL)), nil
}

// TestHandlerManagerBuildsInSettingsOrder verifies handlers come back in
// the same order their specs were given, which is also dispatch-priority
// order.
func TestHandlerManagerBuildsInSettingsOrder(t *testing.T) {
	RegisterHandlerType("test-echo-ordered", func(criteria MatchCriteria, _ map[string]any, _ *Context) (Handler, error) {
		return &echoHandler{criteria: criteria}, nil
	})

	specs := []HandlerSpec{
		{Type: "test-echo-ordered", Criteria: MatchCriteria{"url": {"/a"}}},
		{Type: "test-echo-ordered", Criteria: MatchCriteria{"url": {"/b"}}},
	}
	handlers, err := NewHandlerManager(specs, NewContext()).Build()
	require.NoError(t, err)
	require.Len(t, handlers, 2)

	require.True(t, handlers[0].ShouldHandle(&wire.Request{URL: "/a"}))
	require.False(t, handlers[0].ShouldHandle(&wire.Request{URL: "/b"}))
	require.True(t, handlers[1].ShouldHandle(&wire.Request{URL: "/b"}))
}

// TestHandlerManagerUnknownTypeIsFatal covers the UnknownHandlerType error
// kind: a tag with no registered constructor must fail Build, since this
// is a startup-phase error, not something to paper over.
func TestHandlerManagerUnknownTypeIsFatal(t *testing.T) {
	specs := []HandlerSpec{{Type: "does-not-exist"}}
	_, err := NewHandlerManager(specs, NewContext()).Build()
	require.ErrorIs(t, err, ErrUnknownHandlerType)
}

// TestRegisterHandlerTypePanicsOnDuplicate guards the registry's
// register-by-string-id invariant, mirrored from caddy's own
// RegisterModule panic-on-duplicate-ID behavior.
func TestRegisterHandlerTypePanicsOnDuplicate(t *testing.T) {
	RegisterHandlerType("test-echo-dup", func(MatchCriteria, map[string]any, *Context) (Handler, error) {
		return nil, nil
	})
	require.Panics(t, func() {
		RegisterHandlerType("test-echo-dup", func(MatchCriteria, map[string]any, *Context) (Handler, error) {
			return nil, nil
		})
	})
}
