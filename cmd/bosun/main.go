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

// Command bosun runs a node: a registry of services with routed
// requests and pub/sub events, with couplings for stdin/stdout, TCP,
// WebSockets, HTTP, and MQTT.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"runtime/pprof"

	"github.com/bosunlabs/bosun/node"
	"github.com/bosunlabs/bosun/services/script"
	"github.com/bosunlabs/bosun/services/timers"
	"github.com/bosunlabs/bosun/sio"
	"github.com/bosunlabs/bosun/util"
	. "github.com/bosunlabs/bosun/util/testutil"
)

func main() {

	var (
		configFile = flag.String("c", "", "YAML configuration filename")
		dbFile     = flag.String("d", "", "journal filename")
		bootFile   = flag.String("b", "", "file to read for initial ops")

		tcpPort    = flag.String("t", ":9000", "port for our TCP listener")
		wsAddr     = flag.String("w", "", "address for the WebSocket gateway")
		httpPort   = flag.String("h", "", "HTTP port for our API")
		mqttBroker = flag.String("m", "", "MQTT broker address")

		listenOnStdin = flag.Bool("I", false, "listen for ops on stdin")
	)

	flag.BoolVar(&util.Logging, "v", false, "log lots of wonderful things")

	flag.Parse()

	conf := DefaultConfig()
	if *configFile != "" {
		var err error
		if conf, err = LoadConfig(*configFile); err != nil {
			panic(err)
		}
	}

	// Flags override the config file (but only flags actually
	// given on the command line).
	given := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		given[f.Name] = true
	})
	conf.Override(given, *dbFile, *tcpPort, *wsAddr, *httpPort, *mqttBroker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := node.NewNode(ctx, conf.Name, conf.DBFile)
	if err != nil {
		panic(err)
	}

	errs := make(chan interface{}, 8)
	n.WithErrors(errs)
	monitor(ctx, errs, "errors")

	if conf.Timers {
		ts := timers.NewService()
		ts.Errors = errs
		if err := n.AddService(ctx, ts); err != nil {
			panic(err)
		}
	}

	if conf.Egress {
		if err := n.AddService(ctx, sio.NewHTTPEgress()); err != nil {
			panic(err)
		}
	}

	for _, manifest := range conf.Scripts {
		s := script.NewService("")
		if err := s.LoadManifest(ctx, manifest); err != nil {
			panic(err)
		}
		if err := n.AddService(ctx, s); err != nil {
			panic(err)
		}
	}

	if conf.WSAddr != "" {
		g := sio.NewWSGateway(conf.WSAddr)
		if conf.WSPath != "" {
			g.Path = conf.WSPath
		}
		g.Journal = n.Journal()
		if err := n.AddService(ctx, g); err != nil {
			panic(err)
		}
	}

	if conf.MQTT != nil && conf.MQTT.Broker != "" {
		b := sio.NewMQTTBridge(conf.MQTT.Broker)
		b.ClientId = conf.MQTT.ClientId
		b.Username = conf.MQTT.Username
		b.Password = conf.MQTT.Password
		b.AutoReconnect = conf.MQTT.Reconnect
		b.InTopics = conf.MQTT.In
		b.OutTopics = conf.MQTT.Out
		b.Errors = errs
		if err := n.AddService(ctx, b); err != nil {
			panic(err)
		}
	}

	std := &sio.Std{
		Runtime: n,
		Journal: n.Journal(),
	}

	if *bootFile != "" {
		if err := boot(ctx, n, *bootFile); err != nil {
			panic(err)
		}
	}

	if *listenOnStdin {
		go func() {
			if err := std.Stdio(ctx); err != nil {
				log.Printf("stdin listener error %s", err)
			}
			util.Logf("stdin listener done")
			cancel()
		}()
	}

	if conf.TCPPort != "" {
		go func() {
			if err := std.TCPService(ctx, conf.TCPPort); err != nil {
				panic(fmt.Errorf("TCP listener error %s", err))
			}
		}()
	}

	if conf.HTTPPort != "" {
		go func() {
			if err := httpServer(ctx, n, conf.HTTPPort); err != nil {
				panic(err)
			}
		}()
	}

	<-ctx.Done()

	if err := n.Stop(context.Background()); err != nil {
		log.Printf("shutdown: %s", err)
	}
}

func monitor(ctx context.Context, c chan interface{}, tag string) {
	go func() {
		util.Logf("monitoring %s", tag)
	LOOP:
		for {
			select {
			case <-ctx.Done():
				break LOOP
			case x := <-c:
				log.Printf("%s %s", tag, JS(x))
			}
		}
		util.Logf("halting monitoring of %s", tag)
	}()
}

// httpServer serves the NOp protocol over HTTP POSTs to /api.
func httpServer(ctx context.Context, n *node.Node, port string) error {
	complain := func(w http.ResponseWriter, x interface{}, status int) {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":"%s"}`+"\n", x)
	}

	// HTTP clients can't receive asynchronous events.
	sess := sio.NewSession(n, func(x interface{}) bool {
		util.Logf("dropping event %s", JS(x))
		return true
	})
	sess.Journal = n.Journal()

	mux := http.NewServeMux()

	mux.Handle("/goroutines", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pprof.Lookup("goroutine").WriteTo(w, 1)
	}))

	mux.Handle("/api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		js, err := ioutil.ReadAll(r.Body)
		if err != nil {
			complain(w, err, http.StatusBadRequest)
			return
		}
		if err := r.Body.Close(); err != nil {
			log.Printf("httpServer warning on Body.Close(): %v", err)
		}

		var op sio.NOp
		if err := json.Unmarshal(js, &op); err != nil {
			complain(w, err, http.StatusBadRequest)
			return
		}
		if err = op.Do(ctx, sess); err != nil {
			// The error also rides along in op.Err.
			util.Logf("httpServer op error: %s", err)
		}
		js, err = json.Marshal(&op)
		if err != nil {
			complain(w, err, http.StatusInternalServerError)
			return
		}
		if _, err = w.Write(js); err != nil {
			log.Printf("httpServer warning on Write(): %v", err)
		}
	}))

	log.Printf("HTTP service on %s", port)
	return http.ListenAndServe(port, mux)
}

// boot reads a file of NOps (one JSON object per line) and executes
// them.
func boot(ctx context.Context, n *node.Node, filename string) error {
	in, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer in.Close()

	sess := sio.NewSession(n, func(x interface{}) bool {
		fmt.Println(JS(x))
		return true
	})
	sess.Journal = n.Journal()

	r := bufio.NewReader(in)
	for {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 || bytes.HasPrefix(line, []byte("#")) || bytes.HasPrefix(line, []byte("//")) {
			continue
		}
		var op sio.NOp
		if err = json.Unmarshal(line, &op); err != nil {
			return err
		}
		if err := op.Do(ctx, sess); err != nil {
			return err
		}
	}

	return nil
}
