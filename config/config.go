// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config reads the daemon settings. The environment always
// wins; an optional YAML file is layered underneath it. Values go
// through a schema checker so a bad setting fails at startup rather
// than deep inside a request.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/yaml.v2"
)

// Environment variable names. The APP/LIB split mirrors the deployment
// manifests: APP settings are per-installation, LIB settings tune
// library behaviour.
const (
	EnvMongoDSN            = "KERNEL_APP_MONGODB_DSN"
	EnvMongoReplicaSet     = "KERNEL_APP_MONGODB_REPLICASET"
	EnvMongoReadPreference = "KERNEL_APP_MONGODB_READPREFERENCE"
	EnvPrometheusEnabled   = "KERNEL_APP_PROMETHEUS_ENABLED"
	EnvPrometheusPort      = "KERNEL_APP_PROMETHEUS_PORT"
	EnvMaxRetries          = "KERNEL_LIB_MAX_RETRIES"
	EnvBackoffFactor       = "KERNEL_LIB_BACKOFF_FACTOR"
)

// envKeys maps each environment variable to its settings key.
var envKeys = map[string]string{
	EnvMongoDSN:            "mongodb_dsn",
	EnvMongoReplicaSet:     "mongodb_replicaset",
	EnvMongoReadPreference: "mongodb_readpreference",
	EnvPrometheusEnabled:   "prometheus_enabled",
	EnvPrometheusPort:      "prometheus_port",
	EnvMaxRetries:          "max_retries",
	EnvBackoffFactor:       "backoff_factor",
}

var fields = schema.Fields{
	"mongodb_dsn":            schema.String(),
	"mongodb_replicaset":     schema.String(),
	"mongodb_readpreference": schema.String(),
	"prometheus_enabled":     schema.Bool(),
	"prometheus_port":        schema.ForceInt(),
	"max_retries":            schema.ForceInt(),
	"backoff_factor":         schema.Stringified(schema.Float()),
}

var defaults = schema.Defaults{
	"mongodb_dsn":            "mongodb://db:27017",
	"mongodb_replicaset":     "",
	"mongodb_readpreference": "secondaryPreferred",
	"prometheus_enabled":     true,
	"prometheus_port":        int64(8087),
	"max_retries":            int64(4),
	"backoff_factor":         "1.2",
}

var checker = schema.StrictFieldMap(fields, defaults)

var readPreferences = set.NewStrings(
	"primary",
	"primaryPreferred",
	"secondary",
	"secondaryPreferred",
	"nearest",
)

// Config holds the validated daemon settings.
type Config struct {
	MongoDSN            string
	MongoReplicaSet     string
	MongoReadPreference string
	PrometheusEnabled   bool
	PrometheusPort      int
	MaxRetries          int
	BackoffFactor       float64
}

// Default returns the settings used when neither the environment nor a
// file says otherwise.
func Default() Config {
	cfg, err := coerce(nil)
	if err != nil {
		// The defaults table is static; a failure here is a
		// programming error.
		panic(err)
	}
	return cfg
}

// Read loads settings from the optional YAML file at path, overlays
// the environment on top, and validates the result. An empty path
// skips the file layer.
func Read(path string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	raw := make(map[string]interface{})
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Annotatef(err, "cannot read config file %q", path)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, errors.Annotatef(err, "cannot parse config file %q", path)
		}
	}
	for env, key := range envKeys {
		if value := getenv(env); value != "" {
			raw[key] = value
		}
	}
	cfg, err := coerce(raw)
	return cfg, errors.Trace(err)
}

func coerce(raw map[string]interface{}) (Config, error) {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	coerced, err := checker.Coerce(raw, nil)
	if err != nil {
		return Config{}, errors.NewNotValid(err, "invalid settings")
	}
	m := coerced.(map[string]interface{})

	cfg := Config{
		MongoDSN:            m["mongodb_dsn"].(string),
		MongoReplicaSet:     m["mongodb_replicaset"].(string),
		MongoReadPreference: m["mongodb_readpreference"].(string),
		PrometheusEnabled:   m["prometheus_enabled"].(bool),
		PrometheusPort:      toInt(m["prometheus_port"]),
		MaxRetries:          toInt(m["max_retries"]),
	}
	cfg.BackoffFactor, err = strconv.ParseFloat(m["backoff_factor"].(string), 64)
	if err != nil {
		return Config{}, errors.NotValidf("backoff factor %q", m["backoff_factor"])
	}
	if err := cfg.validate(); err != nil {
		return Config{}, errors.Trace(err)
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.MongoDSN == "" {
		return errors.NotValidf("empty mongodb DSN")
	}
	if !readPreferences.Contains(cfg.MongoReadPreference) {
		return errors.NotValidf("read preference %q", cfg.MongoReadPreference)
	}
	if cfg.PrometheusPort <= 0 || cfg.PrometheusPort > 65535 {
		return errors.NotValidf("prometheus port %d", cfg.PrometheusPort)
	}
	if cfg.MaxRetries < 0 {
		return errors.NotValidf("max retries %d", cfg.MaxRetries)
	}
	if cfg.BackoffFactor <= 0 {
		return errors.NotValidf("backoff factor %v", cfg.BackoffFactor)
	}
	return nil
}

// MongoAddrs extracts the host:port pairs from the DSN. Whitespace
// separates multiple DSNs; comma-separated host lists inside one DSN
// are also honoured.
func (cfg Config) MongoAddrs() []string {
	var addrs []string
	for _, dsn := range strings.Fields(cfg.MongoDSN) {
		hosts := strings.TrimPrefix(dsn, "mongodb://")
		if at := strings.LastIndex(hosts, "@"); at >= 0 {
			hosts = hosts[at+1:]
		}
		if slash := strings.Index(hosts, "/"); slash >= 0 {
			hosts = hosts[:slash]
		}
		for _, host := range strings.Split(hosts, ",") {
			if host != "" {
				addrs = append(addrs, host)
			}
		}
	}
	return addrs
}

func toInt(v interface{}) int {
	switch v := v.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
