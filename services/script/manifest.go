/* Copyright 2024 Bosun Labs
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package script

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"

	yaml "gopkg.in/yaml.v2"
)

// ActionSrc is the source for one script action.
//
// Either Code (inline) or File (relative to the manifest) should be
// given.
type ActionSrc struct {
	Code     string   `yaml:"code,omitempty" json:"code,omitempty"`
	File     string   `yaml:"file,omitempty" json:"file,omitempty"`
	Requires []string `yaml:"requires,omitempty" json:"requires,omitempty"`
}

// Manifest declares a set of script actions.
type Manifest struct {
	// Name optionally overrides the service name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	Actions map[string]ActionSrc `yaml:"actions" json:"actions"`
}

// LoadManifest reads a YAML manifest and compiles its actions.
//
// File references are resolved relative to the manifest's directory,
// which also becomes the service's Dir (for "requires").
func (s *Service) LoadManifest(ctx context.Context, filename string) error {
	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}

	var m Manifest
	if err = yaml.Unmarshal(bs, &m); err != nil {
		return err
	}

	dir := filepath.Dir(filename)
	s.Dir = dir

	if m.Name != "" {
		s.name = m.Name
	}

	for name, src := range m.Actions {
		if src.File != "" {
			if src.Code != "" {
				return fmt.Errorf("action '%s' has both code and file", name)
			}
			bs, err := ioutil.ReadFile(filepath.Join(dir, src.File))
			if err != nil {
				return err
			}
			src.Code = string(bs)
		}
		if err := s.DefineAction(ctx, name, src); err != nil {
			return err
		}
	}

	return nil
}
