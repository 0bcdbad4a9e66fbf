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

package sio

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/bosunlabs/bosun/core"
	"github.com/bosunlabs/bosun/node"

	"github.com/gorilla/websocket"
)

// WSGateway is a service that serves the NOp protocol over
// WebSockets.
//
// Each connection gets its own Session; subscription events are
// pushed to the client as they arrive.
type WSGateway struct {
	// Addr is the listen address (say ":8080").
	Addr string

	// Path is the WebSocket endpoint path.  Defaults to "/api".
	Path string

	// Journal, if not nil, enables the journal operation.
	Journal *node.Journal

	rt     core.Runtime
	server *http.Server
}

func NewWSGateway(addr string) *WSGateway {
	return &WSGateway{
		Addr: addr,
		Path: "/api",
	}
}

func (g *WSGateway) Name() string {
	return "ws"
}

func (g *WSGateway) Start(ctx context.Context, rt core.Runtime) error {
	g.rt = rt

	var upgrader = websocket.Upgrader{} // use default options

	api := func(w http.ResponseWriter, r *http.Request) {
		log.Printf("WSGateway connection from %s", r.RemoteAddr)

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error", err)
			return
		}
		defer c.Close()

		out := make(chan interface{}, 32)

		emit := func(x interface{}) bool {
			select {
			case out <- x:
				return true
			default:
				log.Printf("WSGateway %s output blocked", r.RemoteAddr)
				return false
			}
		}

		sess := NewSession(g.rt, emit)
		sess.Journal = g.Journal
		defer sess.Close()

		ctl := make(chan bool)
		defer close(ctl)

		go func() {
			mt := websocket.TextMessage

		LOOP:
			for {
				select {
				case <-ctl:
					break LOOP
				case <-ctx.Done():
					break LOOP
				case x := <-out:
					if x == nil {
						break LOOP
					}
					js, err := json.Marshal(&x)
					if err != nil {
						log.Printf("WSGateway Marshal error %v on %#v", err, x)
						continue
					}
					if err = c.WriteMessage(mt, js); err != nil {
						log.Println("WSGateway write:", err)
					}
				}
			}
		}()

		for {
			mt, message, err := c.ReadMessage()
			if err != nil {
				log.Println("read error", err)
				break
			}

			var op NOp
			if err := json.Unmarshal(message, &op); err != nil {
				msg := "can't parse: " + err.Error()
				if err = c.WriteMessage(mt, []byte(msg)); err != nil {
					log.Println("write (err)", err)
				}
				continue
			}
			if err = op.Do(ctx, sess); err != nil {
				// Conveyed via op.Err.
				log.Println("op.Do error", err)
			}
			emit(&op)
		}
	}

	path := g.Path
	if path == "" {
		path = "/api"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, api)

	g.server = &http.Server{
		Addr:    g.Addr,
		Handler: mux,
	}

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("WSGateway ListenAndServe: %s", err)
		}
	}()

	return nil
}

func (g *WSGateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func (g *WSGateway) HandleAction(ctx context.Context, action string, params *core.Params) (interface{}, error) {
	switch action {
	case "addr":
		return g.Addr, nil
	default:
		return nil, &core.UnknownAction{Service: g.Name(), Action: action}
	}
}
