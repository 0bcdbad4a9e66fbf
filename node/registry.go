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

package node

import (
	"sync"

	"github.com/bosunlabs/bosun/core"
)

// entry is the registry's record for one service: the handler plus
// its lifecycle state.
type entry struct {
	service core.Service
	state   core.ServiceState
}

// Registry maps service names to their handlers and lifecycle
// states.  All mutation is serialized; reads take a read lock and see
// a consistent snapshot.
type Registry struct {
	sync.RWMutex

	entries map[string]*entry

	// order remembers registration order (for reverse-order
	// shutdown and stable listings).
	order []string
}

// NewRegistry makes an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry, 16),
	}
}

// Register adds a service under its name, leaving it in the
// Registered state.  Registering a duplicate name fails with
// DuplicateService and keeps the first registration.
func (r *Registry) Register(svc core.Service) error {
	name := svc.Name()

	r.Lock()
	defer r.Unlock()

	if _, have := r.entries[name]; have {
		return &core.DuplicateService{Name: name}
	}

	r.entries[name] = &entry{
		service: svc,
		state:   core.Registered,
	}
	r.order = append(r.order, name)

	return nil
}

// Lookup returns the named service's handler.
func (r *Registry) Lookup(name string) (core.Service, error) {
	r.RLock()
	defer r.RUnlock()

	e, have := r.entries[name]
	if !have {
		return nil, &core.ServiceNotFound{Name: name}
	}
	return e.service, nil
}

// Resolve returns the named service's handler and lifecycle state in
// one consistent read.
func (r *Registry) Resolve(name string) (core.Service, core.ServiceState, error) {
	r.RLock()
	defer r.RUnlock()

	e, have := r.entries[name]
	if !have {
		return nil, core.Created, &core.ServiceNotFound{Name: name}
	}
	return e.service, e.state, nil
}

// State returns the named service's lifecycle state.
func (r *Registry) State(name string) (core.ServiceState, error) {
	r.RLock()
	defer r.RUnlock()

	e, have := r.entries[name]
	if !have {
		return core.Created, &core.ServiceNotFound{Name: name}
	}
	return e.state, nil
}

// transitions is the legal lifecycle state machine.  A stopped
// service may be started again.
var transitions = map[core.ServiceState][]core.ServiceState{
	core.Created:    {core.Registered},
	core.Registered: {core.Started, core.Removed},
	core.Started:    {core.Stopped},
	core.Stopped:    {core.Started, core.Removed},
	core.Removed:    {},
}

func legal(from, to core.ServiceState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SetState transitions the named service's lifecycle state, failing
// with InvalidLifecycleTransition for an illegal move.
func (r *Registry) SetState(name string, to core.ServiceState) error {
	r.Lock()
	defer r.Unlock()

	e, have := r.entries[name]
	if !have {
		return &core.ServiceNotFound{Name: name}
	}
	if !legal(e.state, to) {
		return &core.InvalidLifecycleTransition{Name: name, From: e.state, To: to}
	}
	e.state = to
	return nil
}

// Remove releases the named service.  Removing an unknown name is an
// idempotent no-op.
func (r *Registry) Remove(name string) {
	r.Lock()
	defer r.Unlock()

	if _, have := r.entries[name]; !have {
		return
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.RLock()
	defer r.RUnlock()

	acc := make([]string, len(r.order))
	copy(acc, r.order)
	return acc
}

// Services returns a snapshot of the registered services and their
// states, in registration order.
func (r *Registry) Services() []core.ServiceInfo {
	r.RLock()
	defer r.RUnlock()

	acc := make([]core.ServiceInfo, 0, len(r.order))
	for _, name := range r.order {
		if e, have := r.entries[name]; have {
			acc = append(acc, core.ServiceInfo{Name: name, State: e.state})
		}
	}
	return acc
}
