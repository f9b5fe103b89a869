package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/linem-davton/graphdraw/pkg/editor"
	"github.com/linem-davton/graphdraw/pkg/model"
)

const maxBodySize = 16 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	var schemaErr *model.SchemaError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.As(err, &schemaErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrReferential):
		return http.StatusNotFound
	case errors.Is(err, model.ErrSelfLoop),
		errors.Is(err, model.ErrEndpointConstraint),
		errors.Is(err, model.ErrInvalidParameters):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrDuplicateEdge):
		return http.StatusConflict
	case errors.Is(err, model.ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNothingToSchedule), errors.Is(err, editor.ErrNothingSelected):
		return http.StatusConflict
	case errors.Is(err, model.ErrConnection), errors.Is(err, model.ErrHTTP):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, editor.ErrNothingSelected):
		return "nothing_selected"
	}
	return model.Code(err)
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: errorCode(err), Message: model.UserMessage(err)}
	var schemaErr *model.SchemaError
	if errors.As(err, &schemaErr) {
		body.Message = "JSON data does not match schema"
		body.Details = schemaErr.Errors
	}
	writeJSON(w, statusFor(err), body)
}

// decodeBody reads a JSON request body into v. An empty body leaves v as is.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	return nil
}
