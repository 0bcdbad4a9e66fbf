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
	"strings"
)

// Request names a service action to invoke together with its
// parameters.  Transient: built per call and not retained.
type Request struct {
	// Path names the target service.
	Path string `json:"path"`

	// Action is the operation to invoke on the target service.
	Action string `json:"action"`

	Params *Params `json:"params,omitempty"`
}

// Response is what a dispatch returns.
//
// A non-nil Err here is a domain error from the handler, not a
// routing failure.  Routing failures (not found, not ready) are
// returned as ordinary errors from Dispatch itself.
type Response struct {
	Value interface{} `json:"value,omitempty"`

	Err error `json:"-"`

	// ErrString carries Err across serialization boundaries.
	ErrString string `json:"error,omitempty"`

	Meta map[string]interface{} `json:"meta,omitempty"`
}

// Fail makes a Response carrying the given domain error.
func Fail(err error) *Response {
	return &Response{Err: err, ErrString: err.Error()}
}

// Envelope is a published event: a topic and an arbitrary payload.
// Transient: fanned out to subscribers and then discarded (unless a
// Journal records it).
type Envelope struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload,omitempty"`
}

// ParsePath splits "service/action" into its parts.  A bare name has
// an empty action.
//
// Supports the compact request form where the action rides along in
// the path.
func ParsePath(p string) (name, action string) {
	if i := strings.IndexByte(p, '/'); 0 <= i {
		return p[:i], p[i+1:]
	}
	return p, ""
}
