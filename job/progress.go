package job

import (
	"encoding/json"
	"fmt"
)

// Report is a worker progress report. Counters are cumulative totals, not
// deltas: the worker always reports how far it has gotten overall. That
// makes duplicate and out-of-order delivery harmless: merging is a
// per-counter max, so replaying an old report is a no-op.
type Report struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// Terminal, when non-empty, asks for a terminal transition
	// (completed or failed) after the counters are merged.
	Terminal Status `json:"terminal,omitempty"`

	// ErrorMessage accompanies a Terminal of failed.
	ErrorMessage string `json:"error_message,omitempty"`

	// Results carries per-record outputs, addressed by position in the
	// job's submitted batch.
	Results []RecordResult `json:"results,omitempty"`
}

// RecordResult is one record's output, positionally keyed.
type RecordResult struct {
	Index  int             `json:"index"`
	Result json.RawMessage `json:"result"`
}

// Validate checks a report against the job's fixed batch size. A report
// that could violate the counter invariants is rejected outright, before
// any merge.
func (r *Report) Validate(totalRequests int) error {
	if r.Processed < 0 || r.Succeeded < 0 || r.Failed < 0 {
		return fmt.Errorf("job: negative counter in progress report")
	}
	if r.Processed > totalRequests {
		return fmt.Errorf("job: processed %d exceeds total %d", r.Processed, totalRequests)
	}
	if r.Succeeded+r.Failed > r.Processed {
		return fmt.Errorf("job: succeeded %d + failed %d exceeds processed %d",
			r.Succeeded, r.Failed, r.Processed)
	}
	if r.Terminal != "" && !r.Terminal.Terminal() {
		return fmt.Errorf("job: %q is not a terminal status", r.Terminal)
	}
	for _, rr := range r.Results {
		if rr.Index < 0 || rr.Index >= totalRequests {
			return fmt.Errorf("job: result index %d out of range [0,%d)", rr.Index, totalRequests)
		}
	}
	return nil
}

// Merge folds a validated report into j and reports whether anything
// changed. Counters only move forward (per-counter max) and a record's
// result is written once and never overwritten, so merging is idempotent
// under at-least-once delivery.
//
// Two individually valid reports can still contradict each other: when
// overlapping workers disagree on the success/fail split, the per-counter
// max can push succeeded+failed past processed. Merge refuses such a
// report and leaves j untouched; fabricating a split would corrupt the
// recorded counts.
//
// Merge deliberately does not touch Status or UpdatedAt; the caller decides
// whether the job is still live (terminal jobs accept counter bookkeeping
// without their heartbeat advancing).
func Merge(j *Job, r *Report) (bool, error) {
	processed := max(j.ProcessedRequests, r.Processed)
	succeeded := max(j.Succeeded, r.Succeeded)
	failed := max(j.Failed, r.Failed)
	if succeeded+failed > processed {
		return false, fmt.Errorf(
			"job: conflicting report: merged succeeded %d + failed %d exceeds processed %d",
			succeeded, failed, processed)
	}

	changed := false
	if processed > j.ProcessedRequests {
		j.ProcessedRequests = processed
		changed = true
	}
	if succeeded > j.Succeeded {
		j.Succeeded = succeeded
		changed = true
	}
	if failed > j.Failed {
		j.Failed = failed
		changed = true
	}

	for _, rr := range r.Results {
		if rr.Index < 0 || rr.Index >= len(j.Records) {
			continue
		}
		if j.Records[rr.Index].Result == nil && rr.Result != nil {
			j.Records[rr.Index].Result = rr.Result
			changed = true
		}
	}

	return changed, nil
}
