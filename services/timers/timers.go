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

// Package timers provides a service that publishes messages later:
// once after a duration, or repeatedly on a cron schedule.
package timers

// ToDo: Suspend, Resume.

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/bosunlabs/bosun/core"

	"github.com/gorhill/cronexpr"
)

var (
	Exists   = errors.New("id exists")
	NotFound = errors.New("not found")
)

// Entry is one pending timer.
type Entry struct {
	Id      string      `json:"id"`
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload,omitempty"`

	// At is the (next) firing time.
	At time.Time `json:"at"`

	// Schedule is the cron expression for a recurring timer.
	Schedule string `json:"schedule,omitempty"`

	expr *cronexpr.Expression
	ctl  chan bool
}

// Service is the timer service.
//
// Actions: "add" (params "topic" required, "id", "payload", and
// either "in", a duration, or "schedule", a cron expression), "rem"
// (params "id"), and "list".
type Service struct {
	// Errors, if not nil, receives firing trouble.
	Errors chan interface{} `json:"-" yaml:"-"`

	sync.Mutex

	timers map[string]*Entry
	ctl    chan bool
	rt     core.Runtime
	ctx    context.Context
}

func NewService() *Service {
	return &Service{
		timers: make(map[string]*Entry, 32),
	}
}

func (s *Service) Name() string {
	return "timers"
}

func (s *Service) Start(ctx context.Context, rt core.Runtime) error {
	s.Lock()
	s.rt = rt
	s.ctx = ctx
	s.ctl = make(chan bool)
	s.Unlock()
	return nil
}

// Stop cancels all pending timers.
func (s *Service) Stop(ctx context.Context) error {
	s.Lock()
	close(s.ctl)
	s.timers = make(map[string]*Entry, 32)
	s.Unlock()
	return nil
}

func (s *Service) HandleAction(ctx context.Context, action string, params *core.Params) (interface{}, error) {
	switch action {
	case "add":
		topic, err := params.RequireString("topic")
		if err != nil {
			return nil, err
		}
		id := params.GetString("id", "")
		if id == "" {
			id = core.Gensym(16)
		}
		payload, _ := params.Get("payload")

		var (
			in       = params.GetString("in", "")
			schedule = params.GetString("schedule", "")
		)

		te := &Entry{
			Id:      id,
			Topic:   topic,
			Payload: payload,
			ctl:     make(chan bool),
		}

		switch {
		case in != "":
			d, err := time.ParseDuration(in)
			if err != nil {
				return nil, err
			}
			te.At = time.Now().UTC().Add(d)
		case schedule != "":
			expr, err := cronexpr.Parse(schedule)
			if err != nil {
				return nil, err
			}
			te.Schedule = schedule
			te.expr = expr
			te.At = expr.Next(time.Now()).UTC()
			if te.At.IsZero() {
				return nil, fmt.Errorf("schedule '%s' never fires", schedule)
			}
		default:
			return nil, fmt.Errorf("need either 'in' or 'schedule'")
		}

		if err := s.add(te); err != nil {
			return nil, err
		}
		return id, nil

	case "rem":
		id, err := params.RequireString("id")
		if err != nil {
			return nil, err
		}
		if err := s.Rem(id); err != nil {
			return nil, err
		}
		return "removed", nil

	case "list":
		return s.List(), nil

	default:
		return nil, &core.UnknownAction{Service: s.Name(), Action: action}
	}
}

func (s *Service) add(te *Entry) error {
	s.Lock()
	defer s.Unlock()

	if _, have := s.timers[te.Id]; have {
		return Exists
	}

	s.timers[te.Id] = te

	ctx, ctl := s.ctx, s.ctl

	rem := func() {
		if err := s.Rem(te.Id); err != nil && err != NotFound {
			s.err(fmt.Errorf("timer rem error %v id=%s", err, te.Id))
		}
	}

	go func() {
		for {
			timer := time.NewTimer(time.Until(te.At))
			select {
			case <-ctx.Done():
				rem()
				return
			case <-te.ctl:
				// We only get here via a Rem() call.
				return
			case <-ctl:
				return
			case <-timer.C:
				s.rt.Publish(ctx, te.Topic, te.Payload)
				if te.expr == nil {
					s.Lock()
					delete(s.timers, te.Id)
					s.Unlock()
					return
				}
				next := te.expr.Next(time.Now()).UTC()
				if next.IsZero() {
					rem()
					return
				}
				s.Lock()
				te.At = next
				s.Unlock()
			}
		}
	}()

	return nil
}

// Rem cancels a pending timer.
func (s *Service) Rem(id string) error {
	s.Lock()
	defer s.Unlock()

	te, have := s.timers[id]
	if !have {
		return NotFound
	}

	delete(s.timers, id)
	close(te.ctl)

	return nil
}

// List returns the pending timers (sorted by id).
func (s *Service) List() []Entry {
	s.Lock()
	acc := make([]Entry, 0, len(s.timers))
	for _, te := range s.timers {
		acc = append(acc, Entry{
			Id:       te.Id,
			Topic:    te.Topic,
			Payload:  te.Payload,
			At:       te.At,
			Schedule: te.Schedule,
		})
	}
	s.Unlock()

	sort.Slice(acc, func(i, j int) bool {
		return acc[i].Id < acc[j].Id
	})

	return acc
}

func (s *Service) err(err error) {
	if s.Errors != nil {
		s.Errors <- err
	} else {
		log.Println(err)
	}
}
