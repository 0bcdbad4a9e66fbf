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

	"github.com/bosunlabs/bosun/core"
)

// DefaultMaxDepth bounds nested request chains (a handler issuing
// further requests).  No bound came with the original design, so we
// pick one rather than allow unbounded recursion.
var DefaultMaxDepth = 32

// Router resolves a Request to a Started service and invokes its
// action entry point.
//
// Routing failures (ServiceNotFound, ServiceNotReady,
// RequestDepthExceeded) are returned as errors from Dispatch.
// Errors from the handler itself are domain errors: they land in
// Response.Err, and Dispatch returns nil error.
type Router struct {
	registry *Registry

	// MaxDepth bounds nested request chains.  Zero means
	// DefaultMaxDepth.
	MaxDepth int
}

// NewRouter makes a Router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{
		registry: registry,
	}
}

type depthKey struct{}

func requestDepth(ctx context.Context) int {
	if n, is := ctx.Value(depthKey{}).(int); is {
		return n
	}
	return 0
}

type dispatched struct {
	value interface{}
	err   error
}

// Dispatch invokes the requested action and waits for its result or
// for the caller's cancellation, whichever comes first.
//
// On cancellation the handler's eventual result is simply discarded;
// there are no retries at this level.
func (r *Router) Dispatch(ctx context.Context, req *core.Request) (*core.Response, error) {
	limit := r.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	depth := requestDepth(ctx)
	if limit <= depth {
		return nil, core.RequestDepthExceeded
	}

	svc, state, err := r.registry.Resolve(req.Path)
	if err != nil {
		return nil, err
	}
	if state != core.Started {
		return nil, &core.ServiceNotReady{Name: req.Path, State: state}
	}

	hctx := context.WithValue(ctx, depthKey{}, depth+1)

	// Buffered so an abandoned handler can still complete and move
	// on.
	done := make(chan dispatched, 1)

	go func() {
		defer func() {
			if x := recover(); x != nil {
				done <- dispatched{err: fmt.Errorf("handler panic: %v", x)}
			}
		}()
		value, err := svc.HandleAction(hctx, req.Action, req.Params)
		done <- dispatched{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-done:
		if d.err != nil {
			return core.Fail(d.err), nil
		}
		return &core.Response{Value: d.value}, nil
	}
}
