package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config manages service configuration as a flat key/value map.
// Values come from an optional YAML file, overlaid by MDB_* environment
// variables (MDB_SERVER_PORT -> server.port).
type Config struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates a new configuration manager
func New() *Config {
	return &Config{
		values: make(map[string]string),
	}
}

// Get retrieves a configuration value
func (c *Config) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// GetDefault retrieves a configuration value, falling back to def when unset
func (c *Config) GetDefault(key, def string) string {
	if v := c.Get(key); v != "" {
		return v
	}
	return def
}

// GetInt retrieves a configuration value as an integer, falling back to def
func (c *Config) GetInt(key string, def int) int {
	v := c.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetAll returns a copy of all configuration values
func (c *Config) GetAll() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Update updates configuration values
func (c *Config) Update(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range values {
		c.values[k] = v
	}
}

// LoadFile loads configuration from a YAML file. Nested mappings are
// flattened with dots: {server: {port: 8080}} -> server.port = "8080".
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}

	flat := make(map[string]string)
	flatten("", raw, flat)
	c.Update(flat)
	return nil
}

// LoadEnv overlays configuration from MDB_* environment variables
func (c *Config) LoadEnv() {
	overlay := make(map[string]string)
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "MDB_") {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(parts[0], "MDB_"), "_", "."))
		overlay[key] = parts[1]
	}
	c.Update(overlay)
}

func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case string:
			out[key] = val
		case nil:
			out[key] = ""
		default:
			out[key] = strings.TrimSpace(strings.Trim(strings.ReplaceAll(
				strings.TrimSpace(yamlScalar(val)), "\n", " "), "'"))
		}
	}
}

func yamlScalar(v interface{}) string {
	b, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
