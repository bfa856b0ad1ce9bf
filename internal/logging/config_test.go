package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"off":     zerolog.Disabled,
		"trace":   zerolog.TraceLevel,
		"warning": zerolog.WarnLevel,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got, raw)
	}
	_, ok := parseLevel("loud")
	require.False(t, ok)
	_, ok = parseLevel("")
	require.False(t, ok)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogJSON, "true")
	t.Setenv(EnvLogTimestamp, "nope")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	require.Equal(t, zerolog.ErrorLevel, cfg.Level)
	require.True(t, cfg.JSON)
	require.True(t, cfg.Timestamp, "unparseable bool keeps the default")
}

func TestApplyJSONWritesStructuredFields(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	Apply(Config{Level: zerolog.InfoLevel, JSON: true, Out: &buf})
	log.Info().Int("account", 3).Msg("bank.Ledger created")
	log.Debug().Msg("hidden")

	require.Contains(t, buf.String(), `"account":3`)
	require.Contains(t, buf.String(), `"message":"bank.Ledger created"`)
	require.NotContains(t, buf.String(), "hidden")
}
