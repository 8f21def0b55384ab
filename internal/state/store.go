// Package state persists build state in SQLite: one record per task holding
// the fingerprints of its inputs and outputs as of its last successful run,
// plus a history of build runs.
//
// The record store is the only state that survives between runs and the sole
// input to staleness decisions.
package state

import "github.com/leapstack-labs/vedaprep/pkg/core"

var _ core.StateStore = (*SQLiteStore)(nil)

// Fingerprint roles in task_fingerprints.
const (
	roleInput  = "input"
	roleOutput = "output"
)
