// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xprop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig("")
	require.NoError(t, err)
	assert.Equal(t, BaseConfig(), config)

	config, err = ParseConfig("parallelism=4, pipeline=sequential,remap=identity")
	require.NoError(t, err)
	assert.Equal(t, Config{MaxParallelism: 4, Pipeline: Sequential, Remap: IdentityRemap{}}, config)
	assert.Equal(t, "parallelism=4,pipeline=sequential,remap=identity", config.String())

	roundTrip, err := ParseConfig(config.String())
	require.NoError(t, err)
	assert.Equal(t, config, roundTrip)

	for _, bad := range []string{"parallelism=four", "pipeline=async", "remap=rotate", "threads=2", "parallelism"} {
		_, err = ParseConfig(bad)
		assert.Error(t, err, "config %q", bad)
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv(ConfigEnv, "pipeline=sequential")
	config := DefaultConfig()
	assert.Equal(t, Sequential, config.Pipeline)
	assert.Equal(t, BaseConfig().MaxParallelism, config.MaxParallelism)

	t.Setenv(ConfigEnv, "pipeline=unknown")
	assert.Equal(t, BaseConfig(), DefaultConfig())
}
