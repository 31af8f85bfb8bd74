package logx_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/skdaks05/AI-Firend-V2/internal/logx"
)

func TestConfigureLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var testCases = []struct {
		level    string
		expected zerolog.Level
	}{
		{level: "all", expected: zerolog.TraceLevel},
		{level: "WARNING", expected: zerolog.WarnLevel},
		{level: " debug ", expected: zerolog.DebugLevel},
		{level: "none", expected: zerolog.Disabled},
		{level: "bogus", expected: zerolog.InfoLevel},
	}
	for _, testCase := range testCases {
		logx.Configure(testCase.level)
		assert.Equal(t, testCase.expected, zerolog.GlobalLevel(), testCase.level)
	}
}

func TestNewWritesToGivenWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logx.New(buf)
	logger.Info().Str("url", "http://localhost:12341/mcp").Msg("connected")
	assert.Contains(t, buf.String(), "connected")
	assert.Contains(t, buf.String(), "url=http://localhost:12341/mcp")
}
