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
	"bytes"
	"encoding/json"
	"fmt"
)

// Params is an insertion-ordered, string-keyed container of
// dynamically-typed action parameters.
//
// Values should be JSON-ish: scalars, []interface{}, or
// map[string]interface{} (possibly nested).  The typed getters
// (GetString and friends) take an explicit default that's returned
// when a key is absent or has the wrong type; they never fail.  The
// Require* getters return a typed error instead.
//
// JSON round-trips preserve insertion order.
type Params struct {
	keys []string
	m    map[string]interface{}
}

// NewParams makes an empty Params.
func NewParams() *Params {
	return &Params{
		keys: make([]string, 0, 8),
		m:    make(map[string]interface{}, 8),
	}
}

// ParamsFrom builds a Params from the given map.
//
// The iteration order of a Go map isn't stable, so use Set directly
// when insertion order matters.
func ParamsFrom(m map[string]interface{}) *Params {
	ps := NewParams()
	for k, v := range m {
		ps.Set(k, v)
	}
	return ps
}

// Set adds or replaces the value for the given key.  Replacing a
// value keeps the key's original position.  Returns the Params for
// chaining at call sites.
func (ps *Params) Set(key string, value interface{}) *Params {
	if _, have := ps.m[key]; !have {
		ps.keys = append(ps.keys, key)
	}
	ps.m[key] = value
	return ps
}

// Get returns the raw value for the key.
func (ps *Params) Get(key string) (interface{}, bool) {
	if ps == nil {
		return nil, false
	}
	v, have := ps.m[key]
	return v, have
}

// Del removes a key (if present).
func (ps *Params) Del(key string) {
	if ps == nil {
		return
	}
	if _, have := ps.m[key]; !have {
		return
	}
	delete(ps.m, key)
	for i, k := range ps.keys {
		if k == key {
			ps.keys = append(ps.keys[:i], ps.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (ps *Params) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.keys)
}

// Keys returns the keys in insertion order.
func (ps *Params) Keys() []string {
	if ps == nil {
		return nil
	}
	acc := make([]string, len(ps.keys))
	copy(acc, ps.keys)
	return acc
}

// Map returns a plain map copy (which of course forgets the order).
func (ps *Params) Map() map[string]interface{} {
	if ps == nil {
		return map[string]interface{}{}
	}
	acc := make(map[string]interface{}, len(ps.m))
	for k, v := range ps.m {
		acc[k] = v
	}
	return acc
}

// Copy returns a shallow copy.
func (ps *Params) Copy() *Params {
	if ps == nil {
		return NewParams()
	}
	acc := NewParams()
	for _, k := range ps.keys {
		acc.Set(k, ps.m[k])
	}
	return acc
}

// GetString returns the string at key or the given default.
func (ps *Params) GetString(key, def string) string {
	if v, have := ps.Get(key); have {
		if s, is := v.(string); is {
			return s
		}
	}
	return def
}

// GetFloat64 returns the number at key or the given default.
//
// JSON numbers decode as float64, so that's the canonical numeric
// type here.  Integer values are accepted and widened.
func (ps *Params) GetFloat64(key string, def float64) float64 {
	if v, have := ps.Get(key); have {
		switch vv := v.(type) {
		case float64:
			return vv
		case float32:
			return float64(vv)
		case int:
			return float64(vv)
		case int64:
			return float64(vv)
		}
	}
	return def
}

// GetInt returns the integer at key or the given default.  A float64
// is truncated.
func (ps *Params) GetInt(key string, def int) int {
	if v, have := ps.Get(key); have {
		switch vv := v.(type) {
		case int:
			return vv
		case int64:
			return int(vv)
		case float64:
			return int(vv)
		}
	}
	return def
}

// GetBool returns the bool at key or the given default.
func (ps *Params) GetBool(key string, def bool) bool {
	if v, have := ps.Get(key); have {
		if b, is := v.(bool); is {
			return b
		}
	}
	return def
}

// GetMap returns the nested map at key or the given default.
func (ps *Params) GetMap(key string, def map[string]interface{}) map[string]interface{} {
	if v, have := ps.Get(key); have {
		if m, is := v.(map[string]interface{}); is {
			return m
		}
	}
	return def
}

// GetSlice returns the sequence at key or the given default.
func (ps *Params) GetSlice(key string, def []interface{}) []interface{} {
	if v, have := ps.Get(key); have {
		if xs, is := v.([]interface{}); is {
			return xs
		}
	}
	return def
}

// RequireString returns the string at key or a MissingParam /
// WrongType error.
func (ps *Params) RequireString(key string) (string, error) {
	v, have := ps.Get(key)
	if !have {
		return "", &MissingParam{Key: key}
	}
	s, is := v.(string)
	if !is {
		return "", &WrongType{Key: key, Wanted: "string", Got: fmt.Sprintf("%T", v)}
	}
	return s, nil
}

// RequireFloat64 returns the number at key or a MissingParam /
// WrongType error.
func (ps *Params) RequireFloat64(key string) (float64, error) {
	v, have := ps.Get(key)
	if !have {
		return 0, &MissingParam{Key: key}
	}
	switch vv := v.(type) {
	case float64:
		return vv, nil
	case float32:
		return float64(vv), nil
	case int:
		return float64(vv), nil
	case int64:
		return float64(vv), nil
	}
	return 0, &WrongType{Key: key, Wanted: "number", Got: fmt.Sprintf("%T", v)}
}

// MarshalJSON writes the entries in insertion order.
func (ps *Params) MarshalJSON() ([]byte, error) {
	if ps == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range ps.keys {
		if 0 < i {
			buf.WriteByte(',')
		}
		kjs, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kjs)
		buf.WriteByte(':')
		vjs, err := json.Marshal(ps.m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vjs)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, remembering the order of its keys.
func (ps *Params) UnmarshalJSON(bs []byte) error {
	ps.keys = nil
	ps.m = make(map[string]interface{}, 8)

	dec := json.NewDecoder(bytes.NewReader(bs))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, is := tok.(json.Delim); !is || d != '{' {
		return fmt.Errorf("params: not a JSON object: %s", string(bs))
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, is := tok.(string)
		if !is {
			return fmt.Errorf("params: bad key %v", tok)
		}
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return err
		}
		ps.Set(key, v)
	}

	// Consume the closing '}'.
	if _, err := dec.Token(); err != nil {
		return err
	}

	return nil
}
