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
	"fmt"
	"sync"
)

// HandlerSpec is one handler slot from settings: its type tag, its match
// criteria, and its type-specific context, still unmarshaled.
type HandlerSpec struct {
	Type     string
	Criteria MatchCriteria
	Context  map[string]any
}

// Constructor builds a Handler from a HandlerSpec's criteria and context.
// Registered per type tag via RegisterHandlerType.
type Constructor func(criteria MatchCriteria, context map[string]any, ctx *Context) (Handler, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// RegisterHandlerType adds tag to the global registry, the same
// register-by-string-id pattern caddy's modules.go uses
// (RegisterModule/ModuleInfo.ID). Intended to be called from handler
// packages' init() functions so that importing a handler package for its
// side effect is enough to make it available to HandlerManager.
func RegisterHandlerType(tag string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[tag]; exists {
		panic(fmt.Sprintf("httpfront: handler type %q already registered", tag))
	}
	registry[tag] = ctor
}

// HandlerManager builds the ordered list of handler instances from
// settings, in settings order — settings order is also dispatch-priority
// order.
type HandlerManager struct {
	specs []HandlerSpec
	ctx   *Context
}

// NewHandlerManager creates a HandlerManager for the given ordered specs.
func NewHandlerManager(specs []HandlerSpec, ctx *Context) *HandlerManager {
	return &HandlerManager{specs: specs, ctx: ctx}
}

// Build constructs every handler in settings order, looking up each spec's
// Type tag in the registry. Returns ErrUnknownHandlerType (wrapped with the
// offending tag) for any tag with no registered constructor — a fatal
// startup error.
func (m *HandlerManager) Build() ([]Handler, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	handlers := make([]Handler, 0, len(m.specs))
	for i, spec := range m.specs {
		ctor, ok := registry[spec.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %q (handler #%d)", ErrUnknownHandlerType, spec.Type, i)
		}
		h, err := ctor(spec.Criteria, spec.Context, m.ctx)
		if err != nil {
			return nil, fmt.Errorf("constructing handler #%d (%q): %w", i, spec.Type, err)
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}
