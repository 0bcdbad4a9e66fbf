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

package main

import (
	"io/ioutil"

	"github.com/jsccast/yaml"
)

// Config configures a bosun daemon.
type Config struct {
	// Name is the node's name.
	Name string `yaml:"name,omitempty"`

	// DBFile is the journal filename.  No journal if empty.
	DBFile string `yaml:"db,omitempty"`

	// TCPPort is the port for the line-delimited JSON listener.
	TCPPort string `yaml:"tcp,omitempty"`

	// WSAddr is the WebSocket gateway address.  No gateway if
	// empty.
	WSAddr string `yaml:"ws,omitempty"`

	// WSPath is the WebSocket endpoint path (default "/api").
	WSPath string `yaml:"wsPath,omitempty"`

	// HTTPPort is the port for the HTTP API.  No HTTP API if
	// empty.
	HTTPPort string `yaml:"http,omitempty"`

	// Timers enables the timer service.
	Timers bool `yaml:"timers,omitempty"`

	// Egress enables the outbound HTTP service.
	Egress bool `yaml:"egress,omitempty"`

	// Scripts lists script service manifest filenames.
	Scripts []string `yaml:"scripts,omitempty"`

	// MQTT, if given, configures an MQTT bridge.
	MQTT *MQTTConfig `yaml:"mqtt,omitempty"`
}

type MQTTConfig struct {
	// Broker is the broker address (say "tcp://localhost:1883").
	Broker string `yaml:"broker"`

	ClientId string `yaml:"clientId,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// Reconnect enables automatic reconnection.
	Reconnect bool `yaml:"reconnect,omitempty"`

	// In lists broker topics forwarded to the node.
	In []string `yaml:"in,omitempty"`

	// Out lists node topics forwarded to the broker.
	Out []string `yaml:"out,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:    "bosun",
		TCPPort: ":9000",
		Timers:  true,
		Egress:  true,
	}
}

// Override applies command-line values over c, but only for flags
// that were actually given, so an unset flag's default can't clobber
// a config-file value.  An explicit -t "" turns the TCP listener off.
func (c *Config) Override(given map[string]bool, dbFile, tcpPort, wsAddr, httpPort, mqttBroker string) {
	if given["d"] {
		c.DBFile = dbFile
	}
	if given["t"] {
		c.TCPPort = tcpPort
	}
	if given["w"] {
		c.WSAddr = wsAddr
	}
	if given["h"] {
		c.HTTPPort = httpPort
	}
	if given["m"] {
		c.MQTT = &MQTTConfig{Broker: mqttBroker}
	}
}

func LoadConfig(filename string) (*Config, error) {
	conf := DefaultConfig()

	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(bs, conf); err != nil {
		return nil, err
	}

	return conf, nil
}
