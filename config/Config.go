// Package config loads PPO hyperparameter files
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
	"github.com/samuelfneumann/voxelwalk/agent/nonlinear/continuous/ppo"
)

// Load decodes the hyperparameter file at path on top of base and
// validates the result. Attributes missing from the file keep the
// values of base, unknown attributes are an error. Files ending in
// .json are decoded as JSON, files ending in .hcl as HCL.
//
// An HCL file looks like:
//
//	policy_layers = [256, 256]
//	learning_rate = 0.0003
//	n_steps       = 4096
func Load(path string, base ppo.Config) (ppo.Config, error) {
	c := base
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = loadJSON(path, &c)
	case ".hcl":
		err = loadHCL(path, &c)
	default:
		err = fmt.Errorf("unknown config file extension %q", ext)
	}
	if err != nil {
		return ppo.Config{}, fmt.Errorf("load: %w", err)
	}

	if err := c.Validate(); err != nil {
		return ppo.Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return c, nil
}

func loadJSON(path string, c *ppo.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to decode JSON file %s: %w", path, err)
	}
	return nil
}

func loadHCL(path string, c *ppo.Config) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	diags = gohcl.DecodeBody(file.Body, nil, c)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	return nil
}
