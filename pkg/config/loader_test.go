package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vergnetp/queuekit/pkg/config"
)

type testConfig struct {
	Name     string        `env:"TEST_CFG_NAME" envDefault:"queue"`
	Workers  int           `env:"TEST_CFG_WORKERS" envDefault:"4"`
	Interval time.Duration `env:"TEST_CFG_INTERVAL" envDefault:"250ms"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, config.Load(&cfg))

		assert.Equal(t, "queue", cfg.Name)
		assert.Equal(t, 4, cfg.Workers)
		assert.Equal(t, 250*time.Millisecond, cfg.Interval)
	})

	t.Run("env overrides defaults", func(t *testing.T) {
		t.Setenv("TEST_CFG_WORKERS", "16")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 16, cfg.Workers)
	})

	t.Run("nil pointer rejected", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})

	t.Run("parse failure wraps sentinel", func(t *testing.T) {
		t.Setenv("TEST_CFG_WORKERS", "not-a-number")

		var cfg testConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("panics on failure", func(t *testing.T) {
		t.Setenv("TEST_CFG_INTERVAL", "garbage")

		assert.Panics(t, func() {
			var cfg testConfig
			config.MustLoad(&cfg)
		})
	})
}
