package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultYAML returns the defaults as a nested document suitable for writing
// to weatherhub.yaml. Durations are rendered as strings ("30s").
func DefaultYAML() map[string]interface{} {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := map[string]interface{}{}
	for _, k := range keys {
		val := defaults[k]
		if d, ok := val.(time.Duration); ok {
			val = d.String()
		}
		parts := strings.Split(k, ".")
		node := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]interface{})
			if !ok {
				child = map[string]interface{}{}
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = val
	}
	return root
}

// WriteDefaultConfig writes the default configuration to a YAML file. It
// refuses to overwrite an existing file.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	data, err := yaml.Marshal(DefaultYAML())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadYAMLFile reads a YAML document. Environment variables referenced as
// ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	var doc map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return doc, nil
}

// Redacted renders cfg as YAML with secrets masked, for `config show`.
func (c *AppConfig) Redacted() ([]byte, error) {
	view := map[string]interface{}{
		"data_dir": c.DataDir,
		"server": map[string]interface{}{
			"host":             c.Server.Host,
			"port":             c.Server.Port,
			"shutdown_timeout": c.Server.ShutdownTimeout.String(),
			"cors_origins":     c.Server.CORSOrigins,
			"max_body_size":    c.Server.MaxBodySize,
		},
		"database": map[string]interface{}{
			"driver": c.Database.Driver,
			"dsn":    mask(c.Database.DSN),
		},
		"auth": map[string]interface{}{
			"jwt_secret":            mask(c.Auth.JWTSecret),
			"jwt_algorithm":         c.Auth.JWTAlgorithm,
			"token_ttl":             c.Auth.TokenTTL.String(),
			"login_rate_per_minute": c.Auth.LoginRatePerMinute,
		},
		"api_key": map[string]interface{}{
			"prefix":          c.APIKey.Prefix,
			"default_quota":   c.APIKey.DefaultQuota,
			"rate_per_minute": c.APIKey.RatePerMinute,
		},
		"crawler": map[string]interface{}{
			"base_url":   c.Crawler.BaseURL,
			"timeout":    c.Crawler.Timeout.String(),
			"user_agent": c.Crawler.UserAgent,
		},
		"mcp": map[string]interface{}{
			"transport": c.MCP.Transport,
			"port":      c.MCP.Port,
		},
		"log": map[string]interface{}{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
	}
	return yaml.Marshal(view)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
