package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/docmark/internal/container"
	"github.com/dgallion1/docmark/internal/convert"
	"github.com/dgallion1/docmark/internal/parser"
	"github.com/dgallion1/docmark/internal/pipeline"
	"github.com/dgallion1/docmark/internal/warn"
)

type errorBody struct {
	Error   string        `json:"error"`
	Hints   string        `json:"hints,omitempty"`
	Warning *warn.Warning `json:"warning,omitempty"`
}

// statusFor maps conversion faults to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.IsAny(err, container.ErrInputTooLarge, container.ErrResourceLimitExceeded, container.ErrTooManyEntries):
		return http.StatusRequestEntityTooLarge
	case errors.IsAny(err, container.ErrContainerCorrupt, convert.ErrUnsupportedFormat, convert.ErrStrict, parser.ErrMissingPart):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errDescribeDisabled):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrQueueFull):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func describeError(err error) (errorBody, int) {
	body := errorBody{Error: err.Error(), Hints: errors.FlattenHints(err)}
	var se *convert.StrictError
	if errors.As(err, &se) {
		w := se.Warning
		body.Warning = &w
	}
	return body, statusFor(err)
}

func writeConvertError(w http.ResponseWriter, err error) {
	body, code := describeError(err)
	if code == http.StatusInternalServerError {
		body.Error = "conversion failed"
		body.Hints = ""
	}
	writeJSON(w, code, body)
}

// writeFormError reports a multipart parse failure. A body cut off by
// http.MaxBytesReader is an oversized upload, not a malformed one.
func writeFormError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
			Error: fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit),
			Hints: "raise MAX_UPLOAD_BYTES",
		})
		return
	}
	jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, errorBody{Error: msg})
}
