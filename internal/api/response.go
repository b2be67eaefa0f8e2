// Package api provides HTTP response utilities for StepFlow.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/StepFlow/internal/flow"
	"github.com/BTreeMap/StepFlow/internal/models"
	"github.com/BTreeMap/StepFlow/internal/store"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal the response to JSON first to catch encoding errors before writing headers
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// flowView is the result payload of every flow endpoint.
type flowView struct {
	models.FlowSnapshot
	Result any `json:"result,omitempty"`
}

// writeFlow renders the session.
func writeFlow(w http.ResponseWriter, statusCode int, fs *FlowSession) {
	writeJSONResponse(w, statusCode, models.Success(flowView{FlowSnapshot: fs.Snapshot(), Result: fs.Result()}))
}

// writeOutcome renders the session after an action. A step error left on the flow turns
// the response into a rejection carrying the snapshot; the provider status, if any, stays
// in the error body.
func writeOutcome(w http.ResponseWriter, fs *FlowSession) {
	view := flowView{FlowSnapshot: fs.Snapshot(), Result: fs.Result()}
	if view.Error != nil {
		writeJSONResponse(w, http.StatusUnprocessableEntity, models.Rejected(view.Error.Message, view))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(view))
}

// statusFor maps flow, store and state errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, flow.ErrFlowClosed):
		return http.StatusGone
	case errors.Is(err, flow.ErrCooldownActive):
		return http.StatusTooManyRequests
	case errors.Is(err, flow.ErrFlowCompleted),
		errors.Is(err, flow.ErrTransitionInFlight),
		errors.Is(err, flow.ErrRequestInFlight),
		errors.Is(err, flow.ErrCodeNotSent),
		errors.Is(err, flow.ErrNoAccountConflict):
		return http.StatusConflict
	case errors.Is(err, flow.ErrUnknownStep),
		errors.Is(err, flow.ErrUnknownField),
		errors.Is(err, flow.ErrKindMismatch),
		errors.Is(err, flow.ErrUnknownOption),
		errors.Is(err, flow.ErrOptionDisabled):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrProfileNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeError renders err with the status statusFor assigns it.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Server."+op+": failed", "error", err)
		writeJSONResponse(w, status, models.Error("Internal server error"))
		return
	}
	slog.Warn("Server."+op+": rejected", "error", err, "status", status)
	writeJSONResponse(w, status, models.Error(err.Error()))
}
