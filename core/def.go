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

package core

import (
	"context"
	"sync"
)

// ActionFunc handles one named action.
type ActionFunc func(ctx context.Context, params *Params) (interface{}, error)

// Def is a declarative Service built at the call site: a name, a set
// of actions, optional start/stop hooks, and optional topic
// subscriptions that are registered when the service starts and
// cancelled when it stops.
//
//	svc := core.NewDef("math").
//		Action("add", add).
//		Sub("config/updated", onConfig)
//	node.AddService(ctx, svc)
type Def struct {
	ServiceName string

	// OnStart, if set, runs after the Def's subscriptions are
	// registered.
	OnStart func(ctx context.Context, rt Runtime) error

	// OnStop, if set, runs before the Def's subscriptions are
	// cancelled.
	OnStop func(ctx context.Context) error

	mu      sync.Mutex
	actions map[string]ActionFunc
	subs    []defSub
	handles []Subscription
	rt      Runtime
}

type defSub struct {
	topic string
	h     EventHandler
}

// NewDef makes an empty Def with the given service name.
func NewDef(name string) *Def {
	return &Def{
		ServiceName: name,
		actions:     make(map[string]ActionFunc, 8),
	}
}

// Action registers a handler for an action name.
func (d *Def) Action(name string, f ActionFunc) *Def {
	d.mu.Lock()
	d.actions[name] = f
	d.mu.Unlock()
	return d
}

// Sub declares a topic subscription that will be made when the
// service starts.
func (d *Def) Sub(topic string, h EventHandler) *Def {
	d.mu.Lock()
	d.subs = append(d.subs, defSub{topic: topic, h: h})
	d.mu.Unlock()
	return d
}

func (d *Def) Name() string {
	return d.ServiceName
}

// Runtime returns the Runtime the Def was started with (nil before
// Start).  Handy for actions that publish.
func (d *Def) Runtime() Runtime {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rt
}

func (d *Def) Start(ctx context.Context, rt Runtime) error {
	d.mu.Lock()
	d.rt = rt
	for _, s := range d.subs {
		d.handles = append(d.handles, rt.Subscribe(s.topic, s.h))
	}
	d.mu.Unlock()

	if d.OnStart != nil {
		if err := d.OnStart(ctx, rt); err != nil {
			// A failed Start leaves no live subscriptions behind.
			d.cancelSubs()
			return err
		}
	}
	return nil
}

func (d *Def) cancelSubs() {
	d.mu.Lock()
	for _, h := range d.handles {
		h.Cancel()
	}
	d.handles = nil
	d.mu.Unlock()
}

func (d *Def) Stop(ctx context.Context) error {
	var err error
	if d.OnStop != nil {
		err = d.OnStop(ctx)
	}

	d.cancelSubs()

	return err
}

func (d *Def) HandleAction(ctx context.Context, action string, params *Params) (interface{}, error) {
	d.mu.Lock()
	f, have := d.actions[action]
	d.mu.Unlock()

	if !have {
		return nil, &UnknownAction{Service: d.ServiceName, Action: action}
	}
	return f(ctx, params)
}
