package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mailscout/bulkq"
	"github.com/mailscout/bulkq/id"
	"github.com/mailscout/bulkq/job"
)

// IdempotencyHeader carries the client's submit deduplication key.
const IdempotencyHeader = "Idempotency-Key"

// SubmitRequest is the body of POST /v1/jobs.
type SubmitRequest struct {
	Kind   job.Kind          `json:"kind"`
	Inputs []json.RawMessage `json:"inputs"`
}

func (a *API) submitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	j, err := a.orc.Queue().Submit(r.Context(), ownerFrom(r.Context()), req.Kind, req.Inputs, r.Header.Get(IdempotencyHeader))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, j)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	opts := job.ListOpts{
		Status: job.Status(r.URL.Query().Get("status")),
	}
	if opts.Status != "" && !opts.Status.Valid() {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "unknown status", Field: "status"})
		return
	}
	opts.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))   //nolint:errcheck // zero means no limit
	opts.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset")) //nolint:errcheck // zero means no offset

	jobs := a.orc.Reporter().ListJobs(r.Context(), ownerFrom(r.Context()), opts)
	respondJSON(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := a.ownedJobID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	j, err := a.orc.Reporter().GetJob(r.Context(), ownerFrom(r.Context()), jobID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, j)
}

func (a *API) dispatchJob(w http.ResponseWriter, r *http.Request) {
	a.jobAction(w, r, a.orc.Queue().Dispatch)
}

func (a *API) stopJob(w http.ResponseWriter, r *http.Request) {
	a.jobAction(w, r, a.orc.Queue().Stop)
}

func (a *API) resubmitJob(w http.ResponseWriter, r *http.Request) {
	a.jobAction(w, r, a.orc.Queue().Resubmit)
}

func (a *API) pauseJob(w http.ResponseWriter, r *http.Request) {
	a.jobAction(w, r, a.orc.Queue().Pause)
}

func (a *API) resumeJob(w http.ResponseWriter, r *http.Request) {
	a.jobAction(w, r, a.orc.Queue().Resume)
}

func (a *API) queueStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := a.orc.Reporter().QueueStats(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// applyProgress is the worker callback. It authenticates with the worker
// token rather than an account header; the worker acts across owners.
func (a *API) applyProgress(w http.ResponseWriter, r *http.Request) {
	if a.workerToken != "" && r.Header.Get("Authorization") != "Bearer "+a.workerToken {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid worker token"})
		return
	}

	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid job id", Field: "jobID"})
		return
	}

	var report job.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	j, err := a.orc.Queue().ApplyProgress(r.Context(), jobID, &report)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, j)
}

// jobAction runs a queue operation against a job the caller owns.
func (a *API) jobAction(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, jobID id.JobID) (*job.Job, error)) {
	jobID, err := a.ownedJobID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	j, err := op(r.Context(), jobID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, j)
}

// ownedJobID parses the jobID path parameter and verifies the caller owns
// the job. A mismatch looks identical to a missing job.
func (a *API) ownedJobID(r *http.Request) (id.JobID, error) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		return id.Nil, bulkq.NewValidationError("jobID", "invalid job id")
	}
	if _, err := a.orc.Reporter().GetJob(r.Context(), ownerFrom(r.Context()), jobID); err != nil {
		return id.Nil, err
	}
	return jobID, nil
}
