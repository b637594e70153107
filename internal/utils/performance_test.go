package utils

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_StopWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	timer := NewTimer("advisor_market", log)
	d := timer.StopWithFields(map[string]interface{}{"funds": 7})
	assert.GreaterOrEqual(t, int64(d), int64(0))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "advisor_market", entry["operation"])
	assert.Equal(t, float64(7), entry["funds"])
	assert.Equal(t, "debug", entry["level"])

	// a stopped timer logs once
	buf.Reset()
	assert.Zero(t, timer.Stop())
	assert.Empty(t, buf.String())
}

func TestTimer_Disable(t *testing.T) {
	var buf bytes.Buffer
	timer := NewTimer("noop", zerolog.New(&buf))
	timer.Disable()
	assert.Zero(t, timer.Stop())
	assert.Empty(t, buf.String())
}

func TestOperationTimer(t *testing.T) {
	var buf bytes.Buffer
	done := OperationTimer("price_cache_warm", zerolog.New(&buf).Level(zerolog.DebugLevel))
	done()
	assert.Contains(t, buf.String(), `"operation":"price_cache_warm"`)
}
