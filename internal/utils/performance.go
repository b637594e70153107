package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Stage durations above these are logged at a higher level
const (
	SlowStageThreshold     = 10 * time.Second
	ExpectedStageThreshold = 3 * time.Second
)

// Timer measures one pipeline stage
type Timer struct {
	start   time.Time
	name    string
	log     zerolog.Logger
	enabled bool
}

// NewTimer starts a timer named after the stage it measures
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{
		start:   time.Now(),
		name:    name,
		log:     log,
		enabled: true,
	}
}

// Stop logs the elapsed time and returns it
func (t *Timer) Stop() time.Duration {
	return t.StopWithFields(nil)
}

// StopWithFields logs the elapsed time together with fields
func (t *Timer) StopWithFields(fields map[string]interface{}) time.Duration {
	if !t.enabled {
		return 0
	}
	t.enabled = false
	duration := time.Since(t.start)

	event := t.log.Debug()
	switch {
	case duration > SlowStageThreshold:
		event = t.log.Warn()
	case duration > ExpectedStageThreshold:
		event = t.log.Info()
	}

	event = event.
		Str("operation", t.name).
		Dur("duration_ms", duration)
	if len(fields) > 0 {
		event = event.Fields(fields)
	}
	event.Msg("Stage completed")

	return duration
}

// Disable turns the timer into a no-op
func (t *Timer) Disable() {
	t.enabled = false
}

// OperationTimer provides a defer-friendly way to measure a stage
//
// Usage:
//
//	func Warm() {
//	    defer utils.OperationTimer("price_cache_warm", log)()
//	}
func OperationTimer(operation string, log zerolog.Logger) func() {
	t := NewTimer(operation, log)
	return func() { t.Stop() }
}
