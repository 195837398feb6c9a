package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// TestForRun_TagsDerivedOutput verifies the run ID lands on every line
// of a derived logger while the parent's fields survive.
func TestForRun_TagsDerivedOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := zerolog.New(&buf).With().Str("component", "pipeline").Logger()

	derived := ForRun(parent, "run-123")
	derived.Info().Msg("stage started")

	assert.Contains(t, buf.String(), `"run_id":"run-123"`)
	assert.Contains(t, buf.String(), `"component":"pipeline"`)
}
