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
	"strconv"
)

// ServiceState is the lifecycle state of a registered service.
type ServiceState int

const (
	Created ServiceState = iota
	Registered
	Started
	Stopped
	Removed
)

func (s ServiceState) String() string {
	switch s {
	case Created:
		return "created"
	case Registered:
		return "registered"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Service is the capability contract that a Node hosts.
//
// A Service is handed a Runtime when it starts, which it can retain
// to issue requests, publish, and subscribe on behalf of itself.
type Service interface {
	// Name is the unique name for this service within a Node.
	Name() string

	// Start is called by the Node after successful registration.
	// A Start error rolls the registration back.
	Start(ctx context.Context, rt Runtime) error

	// Stop is called during Node shutdown (in reverse registration
	// order) or on explicit removal.
	Stop(ctx context.Context) error

	// HandleAction is the single dispatch entry point for this
	// service's actions.  An error returned here is a domain
	// error: the router wraps it in the Response rather than
	// reporting a routing failure.
	HandleAction(ctx context.Context, action string, params *Params) (interface{}, error)
}

// Runtime is the surface a Node presents to its services (and to
// couplings in package sio).  *node.Node implements this interface.
type Runtime interface {
	Request(ctx context.Context, path, action string, params *Params) (*Response, error)
	Publish(ctx context.Context, topic string, payload interface{})
	Subscribe(topic string, h EventHandler) Subscription
	Services() []ServiceInfo
}

// EventHandler consumes a published envelope.  An error (or a panic)
// is isolated to this handler: it's reported on the Node's Errors
// channel and does not affect delivery to other subscribers.
type EventHandler func(ctx context.Context, env Envelope) error

// Subscription is a handle for an EventHandler registered on a topic.
type Subscription interface {
	// Topic is the topic this subscription listens on.
	Topic() string

	// Cancel removes the subscription.  Cancel is idempotent.
	Cancel()
}

// ServiceInfo describes a registered service.
type ServiceInfo struct {
	Name  string       `json:"name"`
	State ServiceState `json:"state"`
}

// MarshalJSON renders the state by name rather than by ordinal.
func (i ServiceInfo) MarshalJSON() ([]byte, error) {
	return []byte(`{"name":` + strconv.Quote(i.Name) + `,"state":` + strconv.Quote(i.State.String()) + `}`), nil
}
