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

package healthcheck

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zumaad/my-http-server/httpfront"
	"github.com/zumaad/my-http-server/internal/wire"
)

func TestHealthCheckAlwaysOK(t *testing.T) {
	h, err := construct(httpfront.MatchCriteria{"url": {"/healthz"}}, nil, nil)
	require.NoError(t, err)

	req := &wire.Request{Method: "GET", URL: "/healthz"}
	require.True(t, h.ShouldHandle(req))

	resp, err := h.Handle(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)
	require.Equal(t, []byte("OK"), resp.Body)
}
