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

// Package core defines the contracts that a Node and its services
// share: the Service capability interface, the Params container for
// action parameters, request/response/envelope types, and the error
// taxonomy.
//
// A Service exposes named actions that are invoked via
// Node.Request(), and a Service can publish and subscribe to topics
// via the Runtime it receives when it starts.  The Node itself lives
// in package 'node'; this package has no dependencies on it.
package core
