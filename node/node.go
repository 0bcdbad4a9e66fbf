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
	"bytes"
	"context"
	"log"

	"github.com/bosunlabs/bosun/core"
)

// Node is the composition root: it owns the registry, the router,
// the bus, and (optionally) the journal, and it's the public entry
// point for registering services and issuing requests and events.
//
// A Node satisfies core.Runtime, which is how services reach back
// into the Node they run on.
type Node struct {
	// Name identifies this node (in logs and in the journal).
	Name string

	// Errors receives framework-level asynchronous failures:
	// per-subscriber delivery errors, journal write failures, and
	// the like.  Synchronous failures are returned to callers
	// directly.  If nil, failures are logged.
	Errors chan interface{}

	registry *Registry
	router   *Router
	bus      *Bus
	journal  *Journal
}

// NewNode makes a Node.  With a non-empty journalFile, the node
// persists its roster and published envelopes in a bbolt database at
// that path.
func NewNode(ctx context.Context, name, journalFile string) (*Node, error) {
	n := &Node{
		Name:     name,
		registry: NewRegistry(),
		bus:      NewBus(),
	}
	n.router = NewRouter(n.registry)

	if journalFile != "" {
		j, err := NewJournal(journalFile)
		if err != nil {
			return nil, err
		}
		if err = j.Open(ctx); err != nil {
			return nil, err
		}
		n.journal = j
	}

	return n, nil
}

// WithErrors gives the node (and its bus) an error channel and
// returns the node.
func (n *Node) WithErrors(c chan interface{}) *Node {
	n.Errors = c
	n.bus.Errors = c
	return n
}

// Journal returns the node's journal, which is nil unless the node
// was created with a journal file.
func (n *Node) Journal() *Journal {
	return n.journal
}

// AddService registers the service and runs its Start hook.  If the
// hook fails, the registration is rolled back and the error is
// surfaced as ServiceStartFailed.
func (n *Node) AddService(ctx context.Context, svc core.Service) error {
	if err := n.registry.Register(svc); err != nil {
		return err
	}
	name := svc.Name()

	if err := svc.Start(ctx, n); err != nil {
		n.registry.Remove(name)
		return &core.ServiceStartFailed{Name: name, Err: err}
	}

	if err := n.registry.SetState(name, core.Started); err != nil {
		// The service started but the bookkeeping didn't: back
		// out completely.
		if serr := svc.Stop(ctx); serr != nil {
			n.report(serr)
		}
		n.registry.Remove(name)
		return err
	}

	n.journalRoster(ctx)

	return nil
}

// RemoveService stops (if needed) and removes the named service.
// Removing an unknown name is an idempotent no-op.
func (n *Node) RemoveService(ctx context.Context, name string) error {
	svc, err := n.registry.Lookup(name)
	if err != nil {
		return nil
	}

	state, _ := n.registry.State(name)
	if state == core.Started {
		if err := n.registry.SetState(name, core.Stopped); err != nil {
			return err
		}
		if err := svc.Stop(ctx); err != nil {
			n.report(err)
		}
	}

	n.registry.Remove(name)
	n.journalRoster(ctx)

	return nil
}

// Request resolves path+action to a service and dispatches.  The
// compact form Request(ctx, "math/add", "", ps) is also supported.
func (n *Node) Request(ctx context.Context, path, action string, params *core.Params) (*core.Response, error) {
	if action == "" {
		path, action = core.ParsePath(path)
	}
	req := &core.Request{
		Path:   path,
		Action: action,
		Params: params,
	}
	return n.router.Dispatch(ctx, req)
}

// Publish fans the payload out to the topic's subscribers.  Fire and
// forget: a subscriber failure is reported on the Errors channel,
// never to the publisher.
func (n *Node) Publish(ctx context.Context, topic string, payload interface{}) {
	env := core.Envelope{Topic: topic, Payload: payload}

	if err := n.journal.Append(ctx, env); err != nil {
		n.report(err)
	}

	n.bus.Publish(ctx, env)
}

// Subscribe registers a handler for a topic and returns its handle.
func (n *Node) Subscribe(topic string, h core.EventHandler) core.Subscription {
	return n.bus.Subscribe(topic, h)
}

// Unsubscribe cancels the subscription.  Safe to call more than
// once, and safe with nil.
func (n *Node) Unsubscribe(s core.Subscription) {
	if s != nil {
		s.Cancel()
	}
}

// Services lists the registered services and their states in
// registration order.
func (n *Node) Services() []core.ServiceInfo {
	return n.registry.Services()
}

// Start starts every service that isn't running: services registered
// while the node was stopped, and services stopped earlier.  Services
// start in registration order.  A start failure doesn't prevent
// starting the others; failures come back as a *StartError aggregate.
//
// AddService starts its service immediately, so a node used only that
// way never needs Start.
func (n *Node) Start(ctx context.Context) error {
	startErr := &StartError{
		Failures: make(map[string]error),
	}

	for _, name := range n.registry.Names() {
		state, err := n.registry.State(name)
		if err != nil || state == core.Started {
			continue
		}

		svc, err := n.registry.Lookup(name)
		if err != nil {
			continue
		}

		if err := svc.Start(ctx, n); err != nil {
			startErr.add(name, err)
			continue
		}
		if err := n.registry.SetState(name, core.Started); err != nil {
			startErr.add(name, err)
		}
	}

	n.journalRoster(ctx)

	if 0 < len(startErr.Failures) {
		return startErr
	}
	return nil
}

// Stop shuts the node down: every Started service is stopped in
// reverse registration order, and individual stop failures are
// collected rather than short-circuiting.  Returns a *StopError
// aggregating any failures (nil if all went well).
func (n *Node) Stop(ctx context.Context) error {
	names := n.registry.Names()

	stopErr := &StopError{
		Failures: make(map[string]error),
	}

	for i := len(names) - 1; 0 <= i; i-- {
		name := names[i]

		state, err := n.registry.State(name)
		if err != nil || state != core.Started {
			continue
		}

		svc, err := n.registry.Lookup(name)
		if err != nil {
			continue
		}

		if err := n.registry.SetState(name, core.Stopped); err != nil {
			stopErr.add(name, err)
			continue
		}

		if err := svc.Stop(ctx); err != nil {
			stopErr.add(name, err)
		}
	}

	if err := n.journal.Close(ctx); err != nil {
		n.report(err)
	}

	if 0 < len(stopErr.Failures) {
		return stopErr
	}
	return nil
}

func (n *Node) report(x interface{}) {
	if n.Errors != nil {
		select {
		case n.Errors <- x:
			return
		default:
			log.Printf("Node %s Errors chan blocked", n.Name)
		}
	}
	log.Printf("Node %s error %v", n.Name, x)
}

// journalRoster writes the current roster snapshot to the journal
// (if any).
func (n *Node) journalRoster(ctx context.Context) {
	if n.journal == nil {
		return
	}
	if err := n.journal.WriteRoster(ctx, n.registry.Services()); err != nil {
		n.report(err)
	}
}

// StartError aggregates per-service start failures.
type StartError struct {
	// Names lists the failed services in the order their starts
	// were attempted.
	Names []string

	Failures map[string]error
}

func (e *StartError) add(name string, err error) {
	e.Names = append(e.Names, name)
	e.Failures[name] = err
}

func (e *StartError) Error() string {
	var buf bytes.Buffer
	buf.WriteString("start failed for")
	for _, name := range e.Names {
		buf.WriteString(` "`)
		buf.WriteString(name)
		buf.WriteString(`": `)
		buf.WriteString(e.Failures[name].Error())
		buf.WriteString(";")
	}
	return buf.String()
}

// StopError aggregates per-service stop failures.
type StopError struct {
	// Names lists the failed services in the order their stops
	// were attempted.
	Names []string

	Failures map[string]error
}

func (e *StopError) add(name string, err error) {
	e.Names = append(e.Names, name)
	e.Failures[name] = err
}

func (e *StopError) Error() string {
	var buf bytes.Buffer
	buf.WriteString("stop failed for")
	for _, name := range e.Names {
		buf.WriteString(` "`)
		buf.WriteString(name)
		buf.WriteString(`": `)
		buf.WriteString(e.Failures[name].Error())
		buf.WriteString(";")
	}
	return buf.String()
}
