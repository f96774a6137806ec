package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// summary is the machine-readable shape emitted on stdout after every run,
// regardless of exit code.
type summary struct {
	RunID      string             `json:"run_id"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	Success    bool               `json:"success"`
	Components []componentSummary `json:"components"`
	Totals     map[Status]int     `json:"totals"`
}

type componentSummary struct {
	ID         string  `json:"id"`
	Status     Status  `json:"status"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
	Upstream   string  `json:"upstream,omitempty"`
	Overrun    bool    `json:"overrun,omitempty"`
	Optional   bool    `json:"optional,omitempty"`
	DryRun     bool    `json:"dry_run,omitempty"`
}

// WriteSummary emits the run summary as a single JSON document.
func WriteSummary(w io.Writer, run *Run) error {
	s := summary{
		RunID:   run.ID,
		Start:   run.Start,
		End:     run.End,
		Success: run.Success,
		Totals:  run.Counts(),
	}

	ids := make([]string, 0, len(run.Records))
	for id := range run.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec := run.Records[id]
		s.Components = append(s.Components, componentSummary{
			ID:         id,
			Status:     rec.Status,
			DurationMS: float64(rec.Duration()) / float64(time.Millisecond),
			Error:      rec.Error,
			Upstream:   rec.Upstream,
			Overrun:    rec.Overrun,
			Optional:   rec.Optional,
			DryRun:     rec.DryRun,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("writing run summary: %w", err)
	}
	return nil
}

// ExitCode maps a finished run to the process exit status: zero only when
// every required component avoided failed and timeout.
func ExitCode(run *Run) int {
	if run.Success {
		return 0
	}
	return 1
}
