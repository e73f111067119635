package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/scitags/iwpm-go/netlink"
	"github.com/scitags/iwpm-go/sockets"
)

type Config struct {
	LogLevel string `yaml:"logLevel"`

	Sockets *sockets.Config `yaml:"sockets"`
	Netlink *netlink.Config `yaml:"netlink"`
	Metrics *MetricsConfig  `yaml:"metrics"`
}

// MetricsConfig controls the HTTP listener exposing the transport
// counters. A zero Port disables it.
type MetricsConfig struct {
	BindAddress string `yaml:"bindAddress"`
	Port        uint16 `yaml:"port"`
}

var DefaultMetricsConfig = MetricsConfig{
	BindAddress: "127.0.0.1",
	Port:        8080,
}

func (c *MetricsConfig) UnmarshalYAML(b []byte) error {
	type config MetricsConfig

	def := config(DefaultMetricsConfig)

	if err := yaml.Unmarshal(b, &def); err != nil {
		return err
	}

	*c = MetricsConfig(def)

	return nil
}

func (c MetricsConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

func (c Config) String() string {
	m, err := yaml.MarshalWithOptions(c, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return "marshalling error..."
	}
	return string(m)
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := &config{
		LogLevel: "info",
	}

	if err := yaml.Unmarshal(b, def); err != nil {
		return err
	}

	*c = Config(*def)

	return nil
}

func ReadConf(path string) (*Config, error) {
	r, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading the configuration file: %w", err)
	}

	conf := Config{}
	if err := yaml.Unmarshal(r, &conf); err != nil {
		return nil, fmt.Errorf("error unmarshaling the configuration: %w", err)
	}

	return &conf, nil
}
