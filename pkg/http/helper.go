package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "readerhub/pkg/errors"
)

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.InvalidInput("request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.InvalidInput(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		}
		return apperrors.InvalidInput("Invalid request body: " + err.Error())
	}
	return nil
}

// RequiredQuery returns a query parameter that must be present.
func RequiredQuery(r *http.Request, param string) (string, error) {
	s := strings.TrimSpace(r.URL.Query().Get(param))
	if s == "" {
		return "", apperrors.InvalidInput(fmt.Sprintf("'%s' query parameter is required", param))
	}
	return s, nil
}
