package runs

import (
	"time"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
)

// Sampling modes.
const (
	ModePlain   = "plain"
	ModeRefined = "refined"
)

// #region run
// Run records one generation and evaluation pass.
type Run struct {
	RunID      string
	Kind       shower.Kind
	Mode       string // "plain" | "refined"
	Count      int
	BatchSize  int
	MinE       float64
	MaxE       float64
	MIPCut     float64
	ParamsJSON string
	Passed     bool
	Reason     string
	CreatedAt  time.Time
}
// #endregion run
