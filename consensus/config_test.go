package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPresetsValidate(t *testing.T) {
	require.NoError(t, FastFinalityConfig().Validate())
	require.NoError(t, HighSecurityConfig().Validate())
}

func TestPresetTradeoffs(t *testing.T) {
	fast := FastFinalityConfig()
	secure := HighSecurityConfig()

	require.Less(t, fast.Alpha, secure.Alpha)
	require.Less(t, fast.Beta, secure.Beta)
	require.Less(t, fast.ConfirmationDepth, secure.ConfirmationDepth)
}

func TestConfigValidation(t *testing.T) {
	valid := Config{
		QuerySampleSize:   10,
		Alpha:             0.6,
		Beta:              3,
		ConfirmationDepth: 1,
		FinalityTimeout:   time.Second,
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"zero sample size":  func(c *Config) { c.QuerySampleSize = 0 },
		"zero alpha":        func(c *Config) { c.Alpha = 0 },
		"alpha above one":   func(c *Config) { c.Alpha = 1.1 },
		"zero beta":         func(c *Config) { c.Beta = 0 },
		"negative depth":    func(c *Config) { c.ConfirmationDepth = -1 },
		"zero timeout":      func(c *Config) { c.FinalityTimeout = 0 },
		"zero value config": func(c *Config) { *c = Config{} },
	}
	for name, mutate := range cases {
		cfg := valid
		mutate(&cfg)
		require.Errorf(t, cfg.Validate(), "case %q", name)
	}
}
