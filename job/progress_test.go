package job

import (
	"encoding/json"
	"testing"
)

func batchJob(n int) *Job {
	inputs := make([]json.RawMessage, n)
	for i := range inputs {
		inputs[i] = json.RawMessage(`{"domain":"example.com"}`)
	}
	j := New("acct_1", KindFind, inputs)
	j.Status = StatusProcessing
	return j
}

func TestReportValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		report Report
		ok     bool
	}{
		{"in range", Report{Processed: 40, Succeeded: 35, Failed: 5}, true},
		{"zero", Report{}, true},
		{"full batch", Report{Processed: 100, Succeeded: 90, Failed: 10, Terminal: StatusCompleted}, true},
		{"exceeds total", Report{Processed: 101}, false},
		{"outcomes exceed processed", Report{Processed: 10, Succeeded: 8, Failed: 3}, false},
		{"negative counter", Report{Processed: -1}, false},
		{"non-terminal terminal", Report{Processed: 1, Terminal: StatusPaused}, false},
		{"result index out of range", Report{Processed: 1, Results: []RecordResult{{Index: 100}}}, false},
		{"negative result index", Report{Processed: 1, Results: []RecordResult{{Index: -1}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.report.Validate(100)
			if tt.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("Validate accepted a bad report")
			}
		})
	}
}

func TestMergeMonotonic(t *testing.T) {
	t.Parallel()

	j := batchJob(100)

	if changed, err := Merge(j, &Report{Processed: 40, Succeeded: 35, Failed: 5}); err != nil || !changed {
		t.Fatalf("first merge: changed=%v err=%v", changed, err)
	}
	if j.ProcessedRequests != 40 || j.Succeeded != 35 || j.Failed != 5 {
		t.Fatalf("counters = %d/%d/%d, want 40/35/5", j.ProcessedRequests, j.Succeeded, j.Failed)
	}

	// A stale report arriving late must not move anything backwards.
	if changed, err := Merge(j, &Report{Processed: 20, Succeeded: 15, Failed: 5}); err != nil || changed {
		t.Fatalf("stale report: changed=%v err=%v", changed, err)
	}
	if j.ProcessedRequests != 40 {
		t.Fatalf("ProcessedRequests regressed to %d", j.ProcessedRequests)
	}

	// A duplicate of the latest report is a no-op.
	if changed, err := Merge(j, &Report{Processed: 40, Succeeded: 35, Failed: 5}); err != nil || changed {
		t.Fatalf("duplicate report: changed=%v err=%v", changed, err)
	}

	// Progress continues.
	if _, err := Merge(j, &Report{Processed: 100, Succeeded: 90, Failed: 10}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if j.ProcessedRequests != 100 || j.Succeeded != 90 || j.Failed != 10 {
		t.Fatalf("counters = %d/%d/%d, want 100/90/10", j.ProcessedRequests, j.Succeeded, j.Failed)
	}
}

func TestMergeInvariantsHold(t *testing.T) {
	t.Parallel()

	j := batchJob(50)
	reports := []Report{
		{Processed: 10, Succeeded: 7, Failed: 3},
		{Processed: 30, Succeeded: 20, Failed: 10},
		{Processed: 10, Succeeded: 7, Failed: 3}, // duplicate, out of order
		{Processed: 50, Succeeded: 35, Failed: 15},
	}
	for _, r := range reports {
		if err := r.Validate(j.TotalRequests); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if _, err := Merge(j, &r); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if j.ProcessedRequests > j.TotalRequests {
			t.Fatalf("processed %d exceeds total %d", j.ProcessedRequests, j.TotalRequests)
		}
		if j.Succeeded+j.Failed > j.ProcessedRequests {
			t.Fatalf("outcomes %d+%d exceed processed %d", j.Succeeded, j.Failed, j.ProcessedRequests)
		}
	}
}

func TestMergeRejectsConflictingSplit(t *testing.T) {
	t.Parallel()

	// Two workers on the same 10-record batch, each report valid on its
	// own, disagreeing completely on the outcome split. Folding both in
	// per-counter would claim 10+10 outcomes from 10 records.
	j := batchJob(10)
	first := Report{Processed: 10, Succeeded: 10, Failed: 0}
	second := Report{Processed: 10, Succeeded: 0, Failed: 10}
	if err := first.Validate(j.TotalRequests); err != nil {
		t.Fatalf("Validate first: %v", err)
	}
	if err := second.Validate(j.TotalRequests); err != nil {
		t.Fatalf("Validate second: %v", err)
	}

	if _, err := Merge(j, &first); err != nil {
		t.Fatalf("Merge first: %v", err)
	}

	changed, err := Merge(j, &second)
	if err == nil {
		t.Fatal("conflicting report merged without error")
	}
	if changed {
		t.Fatal("conflicting report changed the job")
	}
	if j.ProcessedRequests != 10 || j.Succeeded != 10 || j.Failed != 0 {
		t.Fatalf("counters = %d/%d/%d after rejected merge, want 10/10/0",
			j.ProcessedRequests, j.Succeeded, j.Failed)
	}
	if j.Succeeded+j.Failed > j.ProcessedRequests {
		t.Fatalf("outcomes %d+%d exceed processed %d", j.Succeeded, j.Failed, j.ProcessedRequests)
	}
}

func TestMergeRecordResults(t *testing.T) {
	t.Parallel()

	j := batchJob(3)
	first := json.RawMessage(`{"email":"found@example.com"}`)
	replay := json.RawMessage(`{"email":"other@example.com"}`)

	if _, err := Merge(j, &Report{Processed: 1, Succeeded: 1, Results: []RecordResult{{Index: 1, Result: first}}}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if string(j.Records[1].Result) != string(first) {
		t.Fatalf("record 1 result = %s, want %s", j.Records[1].Result, first)
	}

	// Results are written once; a replayed different payload does not
	// overwrite the stored one.
	if _, err := Merge(j, &Report{Processed: 1, Succeeded: 1, Results: []RecordResult{{Index: 1, Result: replay}}}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if string(j.Records[1].Result) != string(first) {
		t.Fatalf("record 1 result overwritten to %s", j.Records[1].Result)
	}

	if j.Records[0].Result != nil || j.Records[2].Result != nil {
		t.Fatal("untouched records gained results")
	}
}

func TestMergeDoesNotTouchStatusOrHeartbeat(t *testing.T) {
	t.Parallel()

	j := batchJob(10)
	before := j.UpdatedAt
	if _, err := Merge(j, &Report{Processed: 5, Succeeded: 5}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if j.Status != StatusProcessing {
		t.Fatalf("merge changed status to %s", j.Status)
	}
	if !j.UpdatedAt.Equal(before) {
		t.Fatal("merge advanced UpdatedAt")
	}
}
