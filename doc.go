// Package bosun provides a small service runtime: a node hosts named
// services, routes requests to service actions, and fans out
// published events to subscribers.
//
// The core types are in package 'core', the runtime is in 'node', the
// couplings to the outside world are in 'sio', and the daemon lives
// at cmd/bosun.
package bosun
