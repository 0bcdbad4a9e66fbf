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

package sio

import (
	"context"
	"fmt"
	"sync"

	"github.com/bosunlabs/bosun/core"
	"github.com/bosunlabs/bosun/node"
)

// Session is one client's conversation with a node.
//
// A Session tracks the subscriptions the client has made so they can
// be cancelled individually or all at once when the client goes away.
type Session struct {
	// Runtime is the node the session talks to.
	Runtime core.Runtime

	// Journal, if not nil, enables the journal operation.
	Journal *node.Journal

	// Emit pushes asynchronous output (subscription events) toward
	// the client.  Returns false if the client is gone.
	Emit func(x interface{}) bool

	sync.Mutex
	subs map[string]core.Subscription
}

// NewSession makes a Session backed by the given runtime.
func NewSession(rt core.Runtime, emit func(x interface{}) bool) *Session {
	return &Session{
		Runtime: rt,
		Emit:    emit,
		subs:    make(map[string]core.Subscription, 8),
	}
}

// Close cancels all of the session's subscriptions.
func (s *Session) Close() {
	s.Lock()
	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.subs = make(map[string]core.Subscription)
	s.Unlock()
}

// NOp is a Node Operation.
//
// Only one of the operation fields should have a value.
type NOp struct {
	// Request invokes a service action.
	Request *OpRequest `json:"request,omitempty" yaml:",omitempty"`

	// Publish publishes an event.
	Publish *OpPublish `json:"publish,omitempty" yaml:",omitempty"`

	// Subscribe subscribes to a topic.  Subsequent events on the
	// topic are emitted to the client asynchronously.
	Subscribe *OpSubscribe `json:"subscribe,omitempty" yaml:",omitempty"`

	// Unsubscribe cancels a previous Subscribe.
	Unsubscribe *OpUnsubscribe `json:"unsubscribe,omitempty" yaml:",omitempty"`

	// Roster lists the node's services.
	Roster *OpRoster `json:"roster,omitempty" yaml:",omitempty"`

	// Journal reads back recorded events.
	Journal *OpJournal `json:"journal,omitempty" yaml:",omitempty"`

	// Error will hold an error (if any) that results from
	// processing this operation.
	Error error `json:"-" yaml:"-"`

	// Err will hold a string representation of an error (if any)
	// that results from processing this operation.
	Err string `json:"err,omitempty" yaml:",omitempty"`
}

// erred is a utility function to return values to assign to operation
// Error and Err fields.
func erred(err error) (error, string) {
	if err == nil {
		return nil, ""
	}
	return err, err.Error()
}

func (o *NOp) Do(ctx context.Context, s *Session) error {
	var err error
	switch {
	case o.Request != nil:
		err = o.Request.Do(ctx, s)
	case o.Publish != nil:
		err = o.Publish.Do(ctx, s)
	case o.Subscribe != nil:
		err = o.Subscribe.Do(ctx, s)
	case o.Unsubscribe != nil:
		err = o.Unsubscribe.Do(ctx, s)
	case o.Roster != nil:
		err = o.Roster.Do(ctx, s)
	case o.Journal != nil:
		err = o.Journal.Do(ctx, s)
	default:
		err = fmt.Errorf("empty operation")
	}

	if err != nil && o.Error == nil {
		o.Error, o.Err = erred(err)
	}

	return o.Error
}

type OpRequest struct {
	// Oid is the optional operation id.  A "transaction" id.
	Oid string `json:"oid,omitempty" yaml:",omitempty"`

	// Path is the target service name, or "service/action" if
	// Action is empty.
	Path string `json:"path"`

	Action string `json:"action,omitempty" yaml:",omitempty"`

	Params *core.Params `json:"params,omitempty" yaml:",omitempty"`

	// Value is the handler's result.
	Value interface{} `json:"value,omitempty" yaml:",omitempty"`

	Error error  `json:"-" yaml:"-"`
	Err   string `json:"err,omitempty" yaml:",omitempty"`
}

func (o *OpRequest) Do(ctx context.Context, s *Session) error {
	resp, err := s.Runtime.Request(ctx, o.Path, o.Action, o.Params)
	if err != nil {
		o.Error, o.Err = erred(err)
		return nil
	}
	o.Value = resp.Value
	o.Error, o.Err = erred(resp.Err)
	return nil
}

type OpPublish struct {
	// Oid is the optional operation id.  A "transaction" id.
	Oid string `json:"oid,omitempty" yaml:",omitempty"`

	Topic string `json:"topic"`

	Payload interface{} `json:"payload,omitempty" yaml:",omitempty"`
}

func (o *OpPublish) Do(ctx context.Context, s *Session) error {
	if o.Topic == "" {
		return fmt.Errorf("no topic given")
	}
	s.Runtime.Publish(ctx, o.Topic, o.Payload)
	return nil
}

type OpSubscribe struct {
	// Oid is the optional operation id.  A "transaction" id.
	Oid string `json:"oid,omitempty" yaml:",omitempty"`

	Topic string `json:"topic"`

	// Id names the subscription for later Unsubscribe.  Generated
	// if not given.
	Id string `json:"id,omitempty" yaml:",omitempty"`
}

func (o *OpSubscribe) Do(ctx context.Context, s *Session) error {
	if o.Topic == "" {
		return fmt.Errorf("no topic given")
	}
	if o.Id == "" {
		o.Id = core.Gensym(16)
	}

	id := o.Id
	sub := s.Runtime.Subscribe(o.Topic, func(ctx context.Context, env core.Envelope) error {
		s.Emit(map[string]interface{}{
			"event": map[string]interface{}{
				"id":      id,
				"topic":   env.Topic,
				"payload": env.Payload,
			},
		})
		return nil
	})

	s.Lock()
	s.subs[id] = sub
	s.Unlock()

	return nil
}

type OpUnsubscribe struct {
	// Oid is the optional operation id.  A "transaction" id.
	Oid string `json:"oid,omitempty" yaml:",omitempty"`

	// Id is the id of the subscription to cancel.
	Id string `json:"id"`
}

func (o *OpUnsubscribe) Do(ctx context.Context, s *Session) error {
	s.Lock()
	sub, have := s.subs[o.Id]
	delete(s.subs, o.Id)
	s.Unlock()

	if !have {
		return fmt.Errorf("unknown subscription '%s'", o.Id)
	}
	sub.Cancel()
	return nil
}

type OpRoster struct {
	// Services is the result.
	Services []core.ServiceInfo `json:"services,omitempty" yaml:",omitempty"`
}

func (o *OpRoster) Do(ctx context.Context, s *Session) error {
	o.Services = s.Runtime.Services()
	return nil
}

type OpJournal struct {
	// Topic, if given, restricts the result to one topic.
	Topic string `json:"topic,omitempty" yaml:",omitempty"`

	// Limit caps the number of entries returned (0: no limit).
	Limit int `json:"limit,omitempty" yaml:",omitempty"`

	// Entries is the result, oldest first.
	Entries []node.JournalEntry `json:"entries,omitempty" yaml:",omitempty"`
}

func (o *OpJournal) Do(ctx context.Context, s *Session) error {
	if s.Journal == nil {
		return fmt.Errorf("node has no journal")
	}
	entries, err := s.Journal.Entries(ctx, o.Topic, o.Limit)
	if err != nil {
		return err
	}
	o.Entries = entries
	return nil
}
