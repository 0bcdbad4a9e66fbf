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

// These errors are framework-level errors: routing, registration, and
// lifecycle.  A handler's own (domain) errors never appear as any of
// these types; the router wraps them in the Response instead.

import (
	"errors"
)

// DuplicateService occurs when registering a name that's already
// registered.  The registry keeps the first registration.
type DuplicateService struct {
	Name string
}

func (e *DuplicateService) Error() string {
	return `service "` + e.Name + `" already registered`
}

// ServiceNotFound occurs when a request (or lookup) names a service
// that isn't registered.
type ServiceNotFound struct {
	Name string
}

func (e *ServiceNotFound) Error() string {
	return `service "` + e.Name + `" not found`
}

// ServiceNotReady occurs when a request targets a service that is
// registered but not in the Started state.
type ServiceNotReady struct {
	Name  string
	State ServiceState
}

func (e *ServiceNotReady) Error() string {
	return `service "` + e.Name + `" not ready (state ` + e.State.String() + `)`
}

// InvalidLifecycleTransition occurs on an illegal state change, such
// as starting a removed service.
type InvalidLifecycleTransition struct {
	Name string
	From ServiceState
	To   ServiceState
}

func (e *InvalidLifecycleTransition) Error() string {
	return `service "` + e.Name + `" cannot go from ` + e.From.String() + ` to ` + e.To.String()
}

// ServiceStartFailed occurs when a service's Start hook fails during
// AddService.  The registration is rolled back.
type ServiceStartFailed struct {
	Name string
	Err  error
}

func (e *ServiceStartFailed) Error() string {
	return `service "` + e.Name + `" failed to start: ` + e.Err.Error()
}

func (e *ServiceStartFailed) Unwrap() error {
	return e.Err
}

// MissingParam occurs when a Require* getter doesn't find its key.
type MissingParam struct {
	Key string
}

func (e *MissingParam) Error() string {
	return `missing required parameter "` + e.Key + `"`
}

// WrongType occurs when a Require* getter finds a value of the wrong
// type.
type WrongType struct {
	Key    string
	Wanted string
	Got    string
}

func (e *WrongType) Error() string {
	return `parameter "` + e.Key + `" should be a ` + e.Wanted + `, not a ` + e.Got
}

// UnknownAction is a convenience for services to report an action
// they don't implement.  It's still a domain error: the router wraps
// it in the Response.
type UnknownAction struct {
	Service string
	Action  string
}

func (e *UnknownAction) Error() string {
	return `service "` + e.Service + `" has no action "` + e.Action + `"`
}

// RequestDepthExceeded occurs when nested requests (a handler issuing
// further requests) exceed the router's depth limit.
var RequestDepthExceeded = errors.New("request depth exceeded")
