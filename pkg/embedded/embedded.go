// Package embedded provides embedded static assets for the application.
package embedded

import (
	"embed"
)

// Files contains all files embedded in the Go binary:
//   - defaults/ - risk profiles, fund universe, optimization parameters and preset portfolios
//   - questionnaires/ - questionnaire documents keyed by their id
//
// No price data is embedded. Seed snapshots are only read from an
// operator-supplied directory (SNAPSHOT_SEED_DIR).
//
//go:embed defaults questionnaires
var Files embed.FS
