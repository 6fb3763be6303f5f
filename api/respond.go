package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mailscout/bulkq"
	"github.com/mailscout/bulkq/job"
)

type ownerKey struct{}

func withOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string) //nolint:errcheck // absent key yields ""
	return owner
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // headers already sent
}

// respondError maps the bulkq error taxonomy onto HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	var ve *bulkq.ValidationError
	if errors.As(err, &ve) {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: ve.Reason, Field: ve.Field})
		return
	}

	var ite *job.InvalidTransitionError
	if errors.As(err, &ite) {
		respondJSON(w, http.StatusConflict, errorBody{Error: ite.Error()})
		return
	}

	switch {
	case errors.Is(err, bulkq.ErrJobNotFound):
		respondJSON(w, http.StatusNotFound, errorBody{Error: "job not found"})
	case errors.Is(err, bulkq.ErrOwnerThrottled):
		respondJSON(w, http.StatusTooManyRequests, errorBody{Error: "submission rate exceeded"})
	case errors.Is(err, bulkq.ErrVersionConflict), errors.Is(err, bulkq.ErrConflictExhausted):
		respondJSON(w, http.StatusConflict, errorBody{Error: "concurrent update, retry"})
	default:
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
