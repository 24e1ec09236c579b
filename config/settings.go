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

// Package config loads the settings file: a mapping from settings-key to
// an ordered list of handler specs. This implementation picks YAML, the
// format caddy's own config loader also accepts alongside JSON.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zumaad/my-http-server/httpfront"
)

// rawHandlerSpec is the YAML shape of one handler slot. It is decoded into
// httpfront.HandlerSpec afterward because yaml.v3 has no direct equivalent
// of MatchCriteria's map[string][]string (criteria values may also be
// written as a single scalar in the settings file, for convenience).
type rawHandlerSpec struct {
	Type     string         `yaml:"type"`
	Criteria map[string]any `yaml:"criteria"`
	Context  map[string]any `yaml:"context"`
}

type rawSettingsKey struct {
	Tasks []rawHandlerSpec `yaml:"tasks"`
}

// File is the top-level settings document: settings-key name to its
// handler list.
type File map[string]rawSettingsKey

// Load reads and parses the YAML settings file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return f, nil
}

// Select resolves one settings-key into the ordered HandlerSpec list
// HandlerManager expects. Settings order is dispatch-priority order and is
// preserved as written.
func (f File) Select(key string) ([]httpfront.HandlerSpec, error) {
	entry, ok := f[key]
	if !ok {
		return nil, fmt.Errorf("config: unknown settings key %q", key)
	}

	specs := make([]httpfront.HandlerSpec, 0, len(entry.Tasks))
	for i, raw := range entry.Tasks {
		if raw.Type == "" {
			return nil, fmt.Errorf("config: %s.tasks[%d].type is required", key, i)
		}
		specs = append(specs, httpfront.HandlerSpec{
			Type:     raw.Type,
			Criteria: criteriaFromYAML(raw.Criteria),
			Context:  raw.Context,
		})
	}
	return specs, nil
}

// criteriaFromYAML normalizes each criteria value into []string: a YAML
// scalar becomes a one-element list, a YAML sequence is converted
// elementwise via fmt.Sprint (criteria values are always compared as
// strings by httpfront.MatchCriteria).
func criteriaFromYAML(raw map[string]any) httpfront.MatchCriteria {
	if raw == nil {
		return nil
	}
	criteria := make(httpfront.MatchCriteria, len(raw))
	for attribute, value := range raw {
		switch v := value.(type) {
		case []any:
			values := make([]string, len(v))
			for i, item := range v {
				values[i] = fmt.Sprint(item)
			}
			criteria[attribute] = values
		default:
			criteria[attribute] = []string{fmt.Sprint(v)}
		}
	}
	return criteria
}
