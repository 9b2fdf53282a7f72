package utils

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(os.Stderr)

	logger := GetLogger("session")
	logger.Error().Msg("pool exhausted")

	out := buf.String()
	assert.Contains(t, out, "session")
	assert.Contains(t, out, "pool exhausted")
}
