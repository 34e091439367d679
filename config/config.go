// Package config loads a node's cluster configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gridsql/catalog"
	"gridsql/cluster"
	"gridsql/core"
)

// NodeConfig describes one cluster member.
type NodeConfig struct {
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Priority int    `yaml:"priority"`
	Local    bool   `yaml:"local"`
}

// TraceConfig tunes the tracer; both fields accept the same values as the
// GRIDSQL_TRACE_LEVEL and GRIDSQL_TRACE_COMPONENTS environment variables.
type TraceConfig struct {
	Level      string `yaml:"level"`
	Components string `yaml:"components"`
}

// Config is the full node configuration.
type Config struct {
	Nodes     []NodeConfig        `yaml:"nodes"`
	Transport string              `yaml:"transport"` // "http" (default) or "memory"
	Codec     string              `yaml:"codec"`
	Tables    map[string][]string `yaml:"tables"`
	Trace     TraceConfig         `yaml:"trace"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Nodes) == 0 {
		return fmt.Errorf("no nodes configured")
	}
	locals := 0
	for _, node := range c.Nodes {
		if node.Name == "" || node.Address == "" {
			return fmt.Errorf("every node needs a name and an address")
		}
		if node.Local {
			locals++
		}
	}
	if locals != 1 {
		return fmt.Errorf("exactly one node must be marked local, got %d", locals)
	}
	switch c.Transport {
	case "", "http", "memory":
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	return nil
}

// BuildCluster registers the configured nodes in listed order.
func (c *Config) BuildCluster() (*cluster.Cluster, error) {
	topology := cluster.NewCluster()
	for _, node := range c.Nodes {
		priority := node.Priority
		if priority == 0 {
			priority = 1
		}
		var err error
		if node.Local {
			err = topology.AddLocalNode(node.Name, priority, node.Address)
		} else {
			err = topology.AddNode(node.Name, priority, node.Address)
		}
		if err != nil {
			return nil, err
		}
	}
	return topology, nil
}

// BuildCatalog registers the configured table locations.
func (c *Config) BuildCatalog() (*catalog.Catalog, error) {
	cat := catalog.NewCatalog()
	for name, locations := range c.Tables {
		if err := cat.Register(name, locations...); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// ApplyTracing configures the global tracer from the config. Environment
// variables still apply when the config leaves a field empty.
func (c *Config) ApplyTracing() {
	tracer := core.GetTracer()
	if c.Trace.Level != "" {
		tracer.SetLevel(core.ParseTraceLevel(c.Trace.Level))
	}
	if c.Trace.Components != "" {
		tracer.EnableComponents(c.Trace.Components)
	}
}
