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
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bosunlabs/bosun/core"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTBridge is a service that couples a node to an MQTT broker.
//
// Broker messages on InTopics are published on the node's bus under
// the same topic.  Node events on OutTopics are forwarded to the
// broker.  Topics can carry a QoS suffix: "TOPIC:QOS".
type MQTTBridge struct {
	// Broker is the broker address (say "tcp://localhost:1883").
	Broker string

	// ClientId is the MQTT client id.  Generated if not given.
	ClientId string

	Username string
	Password string

	// KeepAlive defaults to 10 minutes.
	KeepAlive time.Duration

	AutoReconnect bool

	// Quiesce is the disconnection quiescence in milliseconds.
	Quiesce uint

	// InTopics are broker subscriptions forwarded to the node.
	InTopics []string

	// OutTopics are node subscriptions forwarded to the broker.
	OutTopics []string

	// InjectTopic puts the broker topic in incoming map payloads
	// under "topic".
	InjectTopic bool

	// Errors, if not nil, receives forwarding trouble.
	Errors chan interface{}

	rt     core.Runtime
	client mqtt.Client
	subs   []core.Subscription
}

func NewMQTTBridge(broker string) *MQTTBridge {
	return &MQTTBridge{
		Broker:      broker,
		KeepAlive:   10 * time.Minute,
		Quiesce:     100,
		InjectTopic: true,
	}
}

func (b *MQTTBridge) Name() string {
	return "mq"
}

func (b *MQTTBridge) Start(ctx context.Context, rt core.Runtime) error {
	b.rt = rt

	if b.ClientId == "" {
		b.ClientId = "bosun-" + core.Gensym(8)
	}
	if b.KeepAlive == 0 {
		b.KeepAlive = 10 * time.Minute
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.Broker)
	opts.SetClientID(b.ClientId)
	opts.SetKeepAlive(b.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.Username = b.Username
	opts.Password = b.Password
	opts.AutoReconnect = b.AutoReconnect

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("MQTTBridge connection lost: %s", err)
	}

	opts.DefaultPublishHandler = func(client mqtt.Client, msg mqtt.Message) {
		b.consume(ctx, msg.Topic(), msg.Payload())
	}

	b.client = mqtt.NewClient(opts)

	log.Printf("MQTTBridge connecting to %s", b.Broker)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	for _, topic := range b.InTopics {
		topic, qos := parseTopic(topic)
		if topic == "" {
			continue
		}
		log.Printf("MQTTBridge subscribing to %s (%d)", topic, qos)
		if t := b.client.Subscribe(topic, qos, nil); t.Wait() && t.Error() != nil {
			return t.Error()
		}
	}

	for _, out := range b.OutTopics {
		topic, qos := parseTopic(out)
		if topic == "" {
			continue
		}
		sub := rt.Subscribe(topic, func(ctx context.Context, env core.Envelope) error {
			return b.forward(topic, qos, env.Payload)
		})
		b.subs = append(b.subs, sub)
	}

	return nil
}

func (b *MQTTBridge) Stop(ctx context.Context) error {
	for _, sub := range b.subs {
		sub.Cancel()
	}
	b.subs = nil

	if b.client != nil {
		log.Printf("MQTTBridge disconnecting")
		b.client.Disconnect(b.Quiesce)
	}

	return nil
}

// HandleAction supports "pub": publish params "payload" to the broker
// under params "topic" (with optional "qos").
func (b *MQTTBridge) HandleAction(ctx context.Context, action string, params *core.Params) (interface{}, error) {
	switch action {
	case "pub":
		topic, err := params.RequireString("topic")
		if err != nil {
			return nil, err
		}
		qos := byte(params.GetInt("qos", 0))
		payload, _ := params.Get("payload")
		if err := b.forward(topic, qos, payload); err != nil {
			return nil, err
		}
		return "published", nil
	default:
		return nil, &core.UnknownAction{Service: b.Name(), Action: action}
	}
}

// consume forwards an incoming broker message to the node's bus.
func (b *MQTTBridge) consume(ctx context.Context, topic string, payload []byte) {
	var x interface{}
	if err := json.Unmarshal(payload, &x); err != nil {
		log.Printf("MQTTBridge couldn't JSON-parse payload: %s", payload)
		x = string(payload)
	} else if m, is := x.(map[string]interface{}); is && b.InjectTopic {
		m["topic"] = topic
	}

	b.rt.Publish(ctx, topic, x)
}

// forward publishes a node event to the broker.
func (b *MQTTBridge) forward(topic string, qos byte, payload interface{}) error {
	js, err := json.Marshal(&payload)
	if err != nil {
		return err
	}

	token := b.client.Publish(topic, qos, false, js)
	token.Wait()
	if err := token.Error(); err != nil {
		b.report(fmt.Errorf("MQTTBridge publish to %s: %w", topic, err))
		return err
	}

	return nil
}

func (b *MQTTBridge) report(x interface{}) {
	if b.Errors == nil {
		log.Printf("MQTTBridge error: %v", x)
		return
	}
	select {
	case b.Errors <- x:
	default:
		log.Printf("MQTTBridge Errors channel blocked: %v", x)
	}
}

// parseTopic can extract QoS from a topic name of the form TOPIC:QOS.
func parseTopic(s string) (string, byte) {
	var topic string
	var qos byte
	if _, err := fmt.Sscanf(strings.Replace(s, ":", " ", 1), "%s %d", &topic, &qos); err == nil {
		return topic, qos
	}
	return s, 0
}
