// Package config loads the daemon's immutable, process-wide
// configuration record from a YAML file.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Configuration is the immutable record loaded at startup. The daemon
// engine only reads StorageBackend and StoragePath. cmd/metacheck reads
// the default MetaPath; MetaBackend is not read anywhere. The daemon
// itself never invokes the meta backend.
type Configuration struct {
	StorageBackend string `yaml:"storage_backend"`
	StoragePath    string `yaml:"storage_path"`

	MetaBackend string `yaml:"meta_backend"`
	MetaPath    string `yaml:"meta_path"`

	ListenPort  int    `yaml:"listen_port"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no --config file is given.
func Default() Configuration {
	return Configuration{
		StorageBackend: "posix",
		StoragePath:    "/var/lib/juleastore",
		MetaBackend:    "mongo",
		MetaPath:       "localhost:juleastore",
		ListenPort:     4711,
	}
}

// Load reads and parses a YAML configuration file.
func Load(path string) (Configuration, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, errors.Wrapf(err, "config: read %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Configuration{}, errors.Wrapf(err, "config: parse %s", path)
	}
	return cfg, nil
}
