package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mailscout/bulkq"
	"github.com/mailscout/bulkq/job"
	"github.com/mailscout/bulkq/report"
	"github.com/mailscout/bulkq/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T, st *memory.Store, owner string) *job.Job {
	t.Helper()
	j := job.New(owner, job.KindFind, []json.RawMessage{[]byte(`{}`)})
	if err := st.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

func TestGetJobOwnerScoped(t *testing.T) {
	t.Parallel()
	st := memory.New()
	r := report.NewReporter(st, report.WithLogger(testLogger()))
	ctx := context.Background()

	mine := seed(t, st, "acct_1")
	theirs := seed(t, st, "acct_2")

	got, err := r.GetJob(ctx, "acct_1", mine.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != mine.ID {
		t.Fatalf("got job %s, want %s", got.ID, mine.ID)
	}

	// Another owner's job looks exactly like a missing one.
	_, err = r.GetJob(ctx, "acct_1", theirs.ID)
	if !errors.Is(err, bulkq.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestListJobs(t *testing.T) {
	t.Parallel()
	st := memory.New()
	r := report.NewReporter(st, report.WithLogger(testLogger()))
	ctx := context.Background()

	seed(t, st, "acct_1")
	seed(t, st, "acct_1")
	seed(t, st, "acct_2")

	jobs := r.ListJobs(ctx, "acct_1", job.ListOpts{})
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}

	// No jobs is an empty slice, not nil.
	empty := r.ListJobs(ctx, "acct_3", job.ListOpts{})
	if empty == nil || len(empty) != 0 {
		t.Fatalf("empty list = %#v", empty)
	}
}

// failingStore fails every read.
type failingStore struct {
	*memory.Store
}

func (f *failingStore) ListJobs(_ context.Context, _ string, _ job.ListOpts) ([]*job.Job, error) {
	return nil, errors.New("backend down")
}

func TestListJobsDegradesOnBackendFailure(t *testing.T) {
	t.Parallel()
	st := &failingStore{Store: memory.New()}
	r := report.NewReporter(st, report.WithLogger(testLogger()))

	jobs := r.ListJobs(context.Background(), "acct_1", job.ListOpts{})
	if jobs == nil || len(jobs) != 0 {
		t.Fatalf("expected empty list on backend failure, got %#v", jobs)
	}
}
