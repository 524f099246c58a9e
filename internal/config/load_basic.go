// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"

	"grimm.is/sdnlink/internal/errors"
)

// LoadFile loads a config file, choosing the format from the extension
// (.hcl, .json, .yaml, .yml). Unknown extensions are tried as HCL, then
// JSON, then YAML. Defaults are applied and the result validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return LoadHCL(data, path)
	case ".json":
		return LoadJSON(data)
	case ".yaml", ".yml":
		return LoadYAML(data)
	}

	cfg, hclErr := LoadHCL(data, path)
	if hclErr == nil {
		return cfg, nil
	}
	if cfg, err := LoadJSON(data); err == nil {
		return cfg, nil
	}
	if cfg, err := LoadYAML(data); err == nil {
		return cfg, nil
	}
	return nil, fmt.Errorf("failed to parse config as HCL, JSON or YAML: %w", hclErr)
}

// LoadHCL loads config from HCL bytes.
func LoadHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindValidation, "failed to parse HCL")
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindValidation, "failed to decode HCL")
	}
	return finish(&cfg)
}

// LoadJSON loads config from JSON bytes. Unknown fields are rejected.
func LoadJSON(data []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to parse JSON")
	}
	return finish(&cfg)
}

// LoadYAML loads config from YAML bytes. Unknown fields are rejected.
func LoadYAML(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to parse YAML")
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
