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

// Package sio couples a node to the outside world.
//
// The couplings all speak the same little protocol of NOps (see
// protocol.go), carried over line-delimited JSON on stdin/stdout or
// TCP, over WebSockets, or over MQTT.  An HTTP egress service lets
// node services make outbound HTTP requests.
package sio
