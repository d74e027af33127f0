// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ConfigEnv is the environment variable with the default kernel configuration.
//
// The format is a comma-separated list of "key=value" pairs, e.g.: "parallelism=4,pipeline=sequential,remap=identity".
// See ParseConfig for the keys.
const ConfigEnv = "XPROP_CONFIG"

// Pipeline selects how the stager and the reduction engine of a block are scheduled.
type Pipeline int

const (
	// Overlapped runs the stager in its own goroutine, staging tile i+1 while tile i is reduced.
	// The two meet at a barrier once per iteration.
	Overlapped Pipeline = iota

	// Sequential runs the stager and the reduction engine in the same goroutine, in pipeline order.
	Sequential
)

// String implements fmt.Stringer.
func (p Pipeline) String() string {
	switch p {
	case Overlapped:
		return "overlapped"
	case Sequential:
		return "sequential"
	}
	return fmt.Sprintf("Pipeline(%d)", int(p))
}

// Config of the kernel execution. It affects performance only: all configurations produce bit-identical results.
type Config struct {
	// MaxParallelism is the number of blocks executed concurrently.
	// 0 executes blocks inline, one after the other; -1 runs every block in its own goroutine.
	MaxParallelism int

	// Pipeline selects how staging and reduction of a block overlap.
	Pipeline Pipeline

	// Remap of staging slots.
	Remap Remap
}

// String implements fmt.Stringer, in the format accepted by ParseConfig.
func (c Config) String() string {
	remap := "xor"
	if c.Remap != nil {
		remap = c.Remap.Name()
	}
	return fmt.Sprintf("parallelism=%d,pipeline=%s,remap=%s", c.MaxParallelism, c.Pipeline, remap)
}

// BaseConfig returns the configuration used when nothing is specified:
// parallelism of runtime.NumCPU(), overlapped pipeline and xor remap.
func BaseConfig() Config {
	return Config{
		MaxParallelism: runtime.NumCPU(),
		Pipeline:       Overlapped,
		Remap:          XORRemap{},
	}
}

// DefaultConfig returns the BaseConfig modified by the ConfigEnv environment variable, if set.
//
// An invalid ConfigEnv is logged and ignored.
func DefaultConfig() Config {
	config, found := os.LookupEnv(ConfigEnv)
	if !found {
		return BaseConfig()
	}
	c, err := ParseConfig(config)
	if err != nil {
		klog.Warningf("ignoring $%s=%q: %v", ConfigEnv, config, err)
		return BaseConfig()
	}
	return c
}

// ParseConfig parses a configuration in the format of ConfigEnv, starting from BaseConfig. Keys:
//
//   - "parallelism": int, see Config.MaxParallelism.
//   - "pipeline": "overlapped" or "sequential".
//   - "remap": "xor" or "identity".
func ParseConfig(config string) (Config, error) {
	c := BaseConfig()
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return c, errors.Errorf("xprop config: missing value for %q, expected key=value", part)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "parallelism":
			parallelism, err := strconv.Atoi(value)
			if err != nil {
				return c, errors.Wrapf(err, "xprop config: invalid parallelism %q", value)
			}
			c.MaxParallelism = parallelism
		case "pipeline":
			switch value {
			case Overlapped.String():
				c.Pipeline = Overlapped
			case Sequential.String():
				c.Pipeline = Sequential
			default:
				return c, errors.Errorf("xprop config: unknown pipeline %q", value)
			}
		case "remap":
			remap := remapByName(value)
			if remap == nil {
				return c, errors.Errorf("xprop config: unknown remap %q", value)
			}
			c.Remap = remap
		default:
			return c, errors.Errorf("xprop config: unknown key %q", key)
		}
	}
	return c, nil
}
