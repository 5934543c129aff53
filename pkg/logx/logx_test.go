package logx

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/0xcro3dile/localrag-agent/internal/core"
)

func TestInit_ProductionWritesJSONAtInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Production, Writer: &buf})

	Debug().Msg("hidden")
	Info().Str("k", "v").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"k":"v"`)
	assert.Contains(t, out, `"message":"shown"`)
}

func TestToggleDebug(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Production, Writer: &buf})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	assert.True(t, ToggleDebug())
	Debug().Msg("now visible")
	assert.Contains(t, buf.String(), "now visible")

	assert.False(t, ToggleDebug())
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInit_LevelOverride(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Development, Level: "warn", Writer: &buf})
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	Info().Msg("quiet")
	assert.Empty(t, buf.String())
}
