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
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/bosunlabs/bosun/core"
)

// Bus is the topic-based fan-out publish/subscribe component.
//
// Subscriptions for a topic are kept in insertion order, and a
// publish delivers to a snapshot of that list: subscribing or
// cancelling during a fan-out never mutates a list mid-iteration.
// Delivery for a given topic is serialized, so two sequential
// publishes from the same caller are observed by every subscriber in
// publish order.
type Bus struct {
	// Errors receives per-subscriber delivery failures (errors and
	// recovered panics).  A publish never fails because a
	// subscriber failed.  If nil (or full), failures are logged.
	Errors chan interface{}

	mu     sync.RWMutex
	topics map[string][]*subscription
	serial map[string]*sync.Mutex
	nextId int
}

// NewBus makes an empty Bus.
func NewBus() *Bus {
	return &Bus{
		topics: make(map[string][]*subscription, 16),
		serial: make(map[string]*sync.Mutex, 16),
	}
}

type subscription struct {
	id        int
	topic     string
	h         core.EventHandler
	bus       *Bus
	cancelled bool
}

func (s *subscription) Topic() string {
	return s.topic
}

// Cancel removes the subscription.  Idempotent.
func (s *subscription) Cancel() {
	s.bus.remove(s)
}

// Subscribe appends a handler to the topic's subscription list and
// returns its handle.
func (b *Bus) Subscribe(topic string, h core.EventHandler) core.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextId++
	s := &subscription{
		id:    b.nextId,
		topic: topic,
		h:     h,
		bus:   b,
	}
	b.topics[topic] = append(b.topics[topic], s)

	return s
}

func (b *Bus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.cancelled {
		return
	}
	s.cancelled = true

	subs := b.topics[s.topic]
	for i, candidate := range subs {
		if candidate.id == s.id {
			b.topics[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[s.topic]) == 0 {
		delete(b.topics, s.topic)
	}
}

// Publish delivers the envelope to every current subscriber of its
// topic, in subscription order.  A handler failure (error or panic)
// is reported and does not prevent delivery to later subscribers.
// Publishing to a topic with no subscribers is a no-op.
func (b *Bus) Publish(ctx context.Context, env core.Envelope) {
	b.mu.RLock()
	subs := b.topics[env.Topic]
	snapshot := make([]*subscription, len(subs))
	copy(snapshot, subs)
	gate, have := b.serial[env.Topic]
	b.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	if !have {
		b.mu.Lock()
		if gate = b.serial[env.Topic]; gate == nil {
			gate = &sync.Mutex{}
			b.serial[env.Topic] = gate
		}
		b.mu.Unlock()
	}

	// Serialize delivery per topic so subscribers see sequential
	// publishes in order.
	gate.Lock()
	defer gate.Unlock()

	for _, s := range snapshot {
		b.deliver(ctx, s, env)
	}
}

func (b *Bus) deliver(ctx context.Context, s *subscription, env core.Envelope) {
	defer func() {
		if x := recover(); x != nil {
			b.report(fmt.Errorf("subscriber panic on %s: %v", env.Topic, x))
		}
	}()

	if err := s.h(ctx, env); err != nil {
		b.report(fmt.Errorf("subscriber error on %s: %w", env.Topic, err))
	}
}

func (b *Bus) report(err error) {
	if b.Errors != nil {
		select {
		case b.Errors <- err:
			return
		default:
			log.Printf("Bus Errors chan blocked")
		}
	}
	log.Printf("Bus %s", err)
}

// Subscribers returns the number of current subscriptions for the
// topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
