package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	errs "snapreview/pkg/errors"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps structured error kinds to HTTP statuses. Validation
// and business messages are safe to show; everything else stays generic.
func writeDomainError(w http.ResponseWriter, err error) {
	var vErr *errs.ValidationError
	if errors.As(err, &vErr) {
		writeError(w, http.StatusBadRequest, vErr.Msg)
		return
	}
	var bErr *errs.BizError
	if errors.As(err, &bErr) {
		writeError(w, http.StatusConflict, bErr.Msg)
		return
	}
	var xErr *errs.ExternalAPIError
	if errors.As(err, &xErr) {
		writeError(w, http.StatusBadGateway, "upstream service unavailable")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// decodeJSON tolerates an empty body, matching how the copy widget calls
// the tracking endpoints.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errs.NewValidation("api.decodeJSON", "invalid JSON in request body", err)
	}
	return nil
}
