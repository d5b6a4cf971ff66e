package store

import (
	"fmt"

	"github.com/nvandessel/connectome/internal/synapse"
)

// delayTolerance absorbs the rounding of delays onto the time grid.
const delayTolerance = 1e-9

// ValidationError describes a snapshot consistency issue.
type ValidationError struct {
	Index  int    `json:"index"` // connection index, -1 for the header
	Field  string `json:"field"`
	Issue  string `json:"issue"` // "count-mismatch", "unknown-node", "delay-out-of-window", "inconsistent-model"
	Detail string `json:"detail"`
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s: %s", e.Issue, e.Field, e.Detail)
	}
	return fmt.Sprintf("%s: connection %d %s: %s", e.Issue, e.Index, e.Field, e.Detail)
}

// ValidateSnapshot checks a snapshot for consistency:
// - the connection count matches the header
// - no connection references GID 0
// - delays lie inside the recorded window
// - a synapse id always maps to the same model name
//
// hasDelay reports whether a synapse model carries a delay; nil treats every
// model as delayed.
func ValidateSnapshot(s *Snapshot, hasDelay func(model string) bool) []ValidationError {
	var errs []ValidationError

	if s.NumConnections != int64(len(s.Connections)) {
		errs = append(errs, ValidationError{
			Index:  -1,
			Field:  "num_connections",
			Issue:  "count-mismatch",
			Detail: fmt.Sprintf("header says %d, snapshot holds %d", s.NumConnections, len(s.Connections)),
		})
	}

	models := make(map[synapse.SynID]string)
	for i, d := range s.Connections {
		if d.Source == 0 {
			errs = append(errs, ValidationError{Index: i, Field: "source", Issue: "unknown-node", Detail: "GID 0"})
		}
		if d.Target == 0 {
			errs = append(errs, ValidationError{Index: i, Field: "target", Issue: "unknown-node", Detail: "GID 0"})
		}

		if hasDelay == nil || hasDelay(d.SynapseModel) {
			if d.Delay < s.MinDelayMS-delayTolerance || d.Delay > s.MaxDelayMS+delayTolerance {
				errs = append(errs, ValidationError{
					Index:  i,
					Field:  "delay",
					Issue:  "delay-out-of-window",
					Detail: fmt.Sprintf("%g ms outside [%g, %g]", d.Delay, s.MinDelayMS, s.MaxDelayMS),
				})
			}
		}

		if name, ok := models[d.SynID]; !ok {
			models[d.SynID] = d.SynapseModel
		} else if name != d.SynapseModel {
			errs = append(errs, ValidationError{
				Index:  i,
				Field:  "synapse_model",
				Issue:  "inconsistent-model",
				Detail: fmt.Sprintf("synapse id %d is %q here and %q before", d.SynID, d.SynapseModel, name),
			})
		}
	}

	return errs
}
