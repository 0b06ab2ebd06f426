package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bridalos/bridalos/libs/apperr"
)

type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto its HTTP status. Internal errors never leak their
// message to the caller.
func WriteError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	WriteJSON(w, status, ErrorBody{Error: msg, Code: apperr.Code(err)})
}

// DecodeJSON reads a single JSON object into dst. Malformed or unknown fields
// come back as apperr.ErrInvalidArgument.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("%w: request body too large", apperr.ErrInvalidArgument)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", apperr.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: invalid json: %v", apperr.ErrInvalidArgument, err)
	}
	return nil
}

// RequireMethod writes 405 and returns false when r.Method is not allowed.
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteJSON(w, http.StatusMethodNotAllowed, ErrorBody{Error: "method not allowed", Code: "method_not_allowed"})
	return false
}
