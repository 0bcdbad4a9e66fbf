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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bosunlabs/bosun/core"
	"github.com/bosunlabs/bosun/node"

	"github.com/jsccast/yaml"
)

// Std speaks NOps over line-delimited JSON: one operation in per
// line, one rendered operation (or event) out per line.
type Std struct {
	// Runtime is the node the client talks to.
	Runtime core.Runtime

	// Journal, if not nil, enables the journal operation.
	Journal *node.Journal

	// EchoInput writes input lines back to the output.
	EchoInput bool

	// Render is the initial output rendering: "json",
	// "prettyjson", or "yaml".  A client can switch renderings
	// with a bare line naming the mode.
	Render string
}

// Stdio runs a Listener on stdin/stdout until EOF or shutdown.
func (s *Std) Stdio(ctx context.Context) error {
	ctl := make(chan bool, 1)
	return s.Listener(ctx, bufio.NewReader(os.Stdin), os.Stdout, ctl)
}

// Listener reads NOps from in (one JSON object per line), executes
// them, and writes the completed operations to out.
//
// A few bare (non-JSON) lines are understood: "shutdown" sends true
// on ctl and returns; "json", "prettyjson", and "yaml" switch the
// output rendering; "sleep DURATION" pauses.  Lines starting with '#'
// and blank lines are ignored.
func (s *Std) Listener(ctx context.Context, in *bufio.Reader, out io.Writer, ctl chan bool) error {
	render := s.Render
	if render == "" {
		render = "json"
	}

	sayMutex := sync.Mutex{}

	say := func(x interface{}) bool {
		sayMutex.Lock()
		defer sayMutex.Unlock()

		var js []byte
		var err error
		switch render {
		case "prettyjson":
			js, err = json.MarshalIndent(&x, "  ", "  ")
		case "yaml":
			js, err = yaml.Marshal(&x)
		default:
			js, err = json.Marshal(&x)
		}
		if err != nil {
			log.Printf("Std.Listener warning on rendering: %s on %#v", err, x)
			js = []byte(fmt.Sprintf("error: %s on %#v", err, x))
		}

		js = append(js, '\n')

		if _, err = out.Write(js); err != nil {
			log.Printf("Std.Listener warning on Write: %s", err)
			return false
		}

		return true
	}

	complain := func(err error) bool {
		return say(map[string]interface{}{
			"error": err.Error(),
		})
	}

	okay := func() bool {
		return say("okay")
	}

	sess := NewSession(s.Runtime, say)
	sess.Journal = s.Journal
	defer sess.Close()

	for {
		line, err := in.ReadBytes('\n')
		if err == io.EOF {
			break
		}

		if err != nil {
			return err
		}

		sl := strings.TrimSpace(string(line))

		if s.EchoInput {
			fmt.Fprintf(out, "%s\n", sl)
		}

		if strings.HasPrefix(sl, "#") || sl == "" {
			continue
		}

		switch sl {
		case "shutdown":
			log.Printf("client says to shutdown")
			ctl <- true
			return nil
		case "prettyjson":
			render = "prettyjson"
			okay()
			continue
		case "yaml":
			render = "yaml"
			okay()
			continue
		case "json":
			render = "json"
			okay()
			continue
		}

		parts := strings.Split(sl, " ")
		if parts[0] == "sleep" {
			if len(parts) != 2 {
				if !complain(fmt.Errorf("sleep DURATION")) {
					return nil
				}
				continue
			}
			d, err := time.ParseDuration(parts[1])
			if err != nil {
				if !complain(err) {
					return nil
				}
				continue
			}
			time.Sleep(d)
			continue
		}

		var op NOp
		if err := json.Unmarshal([]byte(sl), &op); err != nil {
			if !complain(err) {
				return err
			}
			continue
		}
		if err = op.Do(ctx, sess); err != nil {
			// The error also rides along in op.Err.
			log.Printf("Std.Listener op error: %s", err)
		}

		if !say(&op) {
			return nil
		}
	}

	return nil
}
