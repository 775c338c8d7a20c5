package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json"
	maxBodyBytes    = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}

func writeSuccess[T any](w http.ResponseWriter, status int, message string, data T) {
	writeJSON(w, status, identity.Envelope[T]{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string, fieldErrors map[string]string) {
	writeJSON(w, status, identity.Envelope[any]{Success: false, Message: message, Errors: fieldErrors})
}

// writeValidationError answers 400 with the per-field messages.
func writeValidationError(w http.ResponseWriter, verr *identity.ValidationError) {
	writeError(w, http.StatusBadRequest, verr.Message, verr.FieldErrors)
}

// decodeBody reads a bounded JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}
