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

// Package script provides a service whose actions are JavaScript
// functions executed by Goja, which is a Go implementation of
// ECMAScript 5.1+.
//
// See https://github.com/dop251/goja.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"net/url"
	"sync"

	"github.com/bosunlabs/bosun/core"

	"github.com/dop251/goja"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned if an execution is interrupted by
	// its context.
	Interrupted = errors.New(InterruptedMessage)
)

// action is one compiled script action.
type action struct {
	src     ActionSrc
	program *goja.Program
}

// Service executes JavaScript actions.
//
// An action's source is wrapped in a function body, so an action
// returns its result with an explicit 'return'.  The environment is
// available at _: params, publish(topic, payload), log(x), gensym(),
// and esc(s).
//
// The built-in action "define" compiles a new action at runtime from
// params "name" and "code" (plus optional "requires").
type Service struct {
	// LibraryProvider resolves "requires" names into sources.
	// Defaults to reading files under Dir.
	LibraryProvider func(ctx context.Context, name string) (string, error)

	// Dir is the root for the default library provider and for
	// manifest-relative file references.
	Dir string

	name string

	sync.Mutex
	actions map[string]*action

	rt core.Runtime
}

// NewService makes a script service with the given service name
// ("script" if empty).
func NewService(name string) *Service {
	if name == "" {
		name = "script"
	}
	return &Service{
		name:    name,
		Dir:     ".",
		actions: make(map[string]*action, 16),
	}
}

func (s *Service) Name() string {
	return s.name
}

func (s *Service) Start(ctx context.Context, rt core.Runtime) error {
	s.rt = rt
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	return nil
}

// provide resolves a library name into its source.
func (s *Service) provide(ctx context.Context, name string) (string, error) {
	if s.LibraryProvider != nil {
		return s.LibraryProvider(ctx, name)
	}
	bs, err := ioutil.ReadFile(s.Dir + "/" + name)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

// MakeMapLibraryProvider serves libraries from the given map.
func MakeMapLibraryProvider(srcs map[string]string) func(context.Context, string) (string, error) {
	return func(ctx context.Context, name string) (string, error) {
		src, have := srcs[name]
		if !have {
			return "", fmt.Errorf("undefined library '%s'", name)
		}
		return src, nil
	}
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// DefineAction compiles the given source and installs it under the
// given action name.
//
// This method can block if the LibraryProvider blocks in order to
// obtain external libraries.
func (s *Service) DefineAction(ctx context.Context, name string, src ActionSrc) error {
	code := wrapSrc(src.Code)

	// Goja can't currently combine ast.Programs, so libraries are
	// prepended as source.
	var libsSrc string
	for _, lib := range src.Requires {
		libSrc, err := s.provide(ctx, lib)
		if err != nil {
			return err
		}
		libsSrc += libSrc + "\n"
	}

	code = libsSrc + code

	program, err := goja.Compile(name, code, true)
	if err != nil {
		return errors.New(err.Error() + ": " + code)
	}

	s.Lock()
	s.actions[name] = &action{
		src:     src,
		program: program,
	}
	s.Unlock()

	return nil
}

// Actions lists the defined action names.
func (s *Service) Actions() []string {
	s.Lock()
	acc := make([]string, 0, len(s.actions))
	for name := range s.actions {
		acc = append(acc, name)
	}
	s.Unlock()
	return acc
}

func (s *Service) HandleAction(ctx context.Context, actionName string, params *core.Params) (interface{}, error) {
	if actionName == "define" {
		name, err := params.RequireString("name")
		if err != nil {
			return nil, err
		}
		code, err := params.RequireString("code")
		if err != nil {
			return nil, err
		}
		src := ActionSrc{Code: code}
		for _, x := range params.GetSlice("requires", nil) {
			if lib, is := x.(string); is {
				src.Requires = append(src.Requires, lib)
			}
		}
		if err := s.DefineAction(ctx, name, src); err != nil {
			return nil, err
		}
		return "defined", nil
	}

	s.Lock()
	a, have := s.actions[actionName]
	s.Unlock()

	if !have {
		return nil, &core.UnknownAction{Service: s.name, Action: actionName}
	}

	return s.exec(ctx, a, params)
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

func (s *Service) exec(ctx context.Context, a *action, params *core.Params) (interface{}, error) {
	o := goja.New()

	env := map[string]interface{}{
		"params": params.Map(),
	}

	env["gensym"] = func() interface{} {
		return core.Gensym(32)
	}

	env["esc"] = func(x interface{}) interface{} {
		switch vv := x.(type) {
		case goja.Value:
			x = vv.Export()
		}
		str, is := x.(string)
		if !is {
			protest(o, "not a string")
		}
		return url.QueryEscape(str)
	}

	env["log"] = func(x interface{}) interface{} {
		switch vv := x.(type) {
		case goja.Value:
			x = vv.Export()
		}
		js, err := json.Marshal(&x)
		if err != nil {
			log.Println("script.log (can't marshal: " + err.Error() + ")")
		} else {
			log.Println(string(js))
		}
		return x
	}

	env["publish"] = func(topic interface{}, payload interface{}) interface{} {
		switch vv := topic.(type) {
		case goja.Value:
			topic = vv.Export()
		}
		t, is := topic.(string)
		if !is {
			protest(o, "topic not a string")
		}
		switch vv := payload.(type) {
		case goja.Value:
			payload = vv.Export()
		}
		s.rt.Publish(ctx, t, payload)
		return payload
	}

	o.Set("_", env)

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If exec calls cancel() after RunProgram returns, then
		// we'll never see this InterruptedMessage, which is
		// actually the behavior we want.  In this case, we
		// weren't actually interrupted.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(a.program)
	cancel()

	if err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			return nil, Interrupted
		}
		return nil, err
	}

	return v.Export(), nil
}
