package cmd

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/jdevietti/rcdcsim/sim"
)

// yamlRunConfig mirrors the subset of sim.RunConfig a --config file may
// override. Flags explicitly set on the command line still win — this is
// decoded first and then selectively merged by loadYAMLOverrides.
type yamlRunConfig struct {
	Cores       *int    `yaml:"cores"`
	BlockSize   *int    `yaml:"blocksize"`
	L1Size      *int    `yaml:"l1_size"`
	L1Assoc     *int    `yaml:"l1_assoc"`
	UseL2       *bool   `yaml:"use_l2"`
	L2Size      *int    `yaml:"l2_size"`
	L2Assoc     *int    `yaml:"l2_assoc"`
	UseL3       *bool   `yaml:"use_l3"`
	L3Size      *int    `yaml:"l3_size"`
	L3Assoc     *int    `yaml:"l3_assoc"`
	Policy      *string `yaml:"policy"`
	QuantumSize *int64  `yaml:"quantum_size"`
	SmartQB     *bool   `yaml:"smart_qb"`
	IgnoreStack *bool   `yaml:"ignore_stack"`
}

// loadYAMLOverrides decodes path and merges any fields it sets into cfg.
// Fields absent from the file are left untouched.
func loadYAMLOverrides(path string, cfg *sim.RunConfig) {
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Fatalf("reading config %s: %v", path, err)
	}

	var y yamlRunConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&y); err != nil {
		logrus.Fatalf("parsing config %s: %v", path, err)
	}

	if y.Cores != nil {
		cfg.Cores = *y.Cores
	}
	if y.BlockSize != nil {
		cfg.Cache.L1.BlockSize = *y.BlockSize
		cfg.Cache.L2.BlockSize = *y.BlockSize
		cfg.Cache.L3.BlockSize = *y.BlockSize
	}
	if y.L1Size != nil {
		cfg.Cache.L1.Size = *y.L1Size
	}
	if y.L1Assoc != nil {
		cfg.Cache.L1.Assoc = *y.L1Assoc
	}
	if y.UseL2 != nil {
		cfg.Cache.UseL2 = *y.UseL2
	}
	if y.L2Size != nil {
		cfg.Cache.L2.Size = *y.L2Size
	}
	if y.L2Assoc != nil {
		cfg.Cache.L2.Assoc = *y.L2Assoc
	}
	if y.UseL3 != nil {
		cfg.Cache.UseL3 = *y.UseL3
	}
	if y.L3Size != nil {
		cfg.Cache.L3.Size = *y.L3Size
	}
	if y.L3Assoc != nil {
		cfg.Cache.L3.Assoc = *y.L3Assoc
	}
	if y.Policy != nil {
		cfg.Scheduler.Policy = *y.Policy
	}
	if y.QuantumSize != nil {
		cfg.Scheduler.QuantumSize = *y.QuantumSize
	}
	if y.SmartQB != nil {
		cfg.Scheduler.SmartQB = *y.SmartQB
	}
	if y.IgnoreStack != nil {
		cfg.IgnoreStack = *y.IgnoreStack
	}
}
