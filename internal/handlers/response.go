package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/liamwears/reeldeck/internal/apperror"
)

// maxBodyBytes bounds request bodies, imports included
const maxBodyBytes = 1 << 20

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sets headers and status before encoding data
func writeJSON(w http.ResponseWriter, logger *log.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Printf("Failed to encode JSON response: %v", err)
		}
	}
}

// writeError maps an application error to its HTTP status
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Printf("Unexpected error: %v", err)
		writeJSON(w, logger, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An unexpected error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"
	message := appErr.Message

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
		errorType = "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
		errorType = "not_found"
	case errors.Is(err, apperror.ErrRemote):
		status = http.StatusBadGateway
		errorType = "catalog_error"
	case errors.Is(err, apperror.ErrStorage):
		errorType = "storage_error"
		message = "Local storage is unavailable"
	}

	writeJSON(w, logger, status, ErrorResponse{
		Error:   errorType,
		Message: message,
		Field:   appErr.Field,
	})
}

// decodeJSON decodes a size-limited request body into v and validates it
func decodeJSON(w http.ResponseWriter, r *http.Request, validate *validator.Validate, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "request body is required")
		}
		return apperror.ValidationFailed("body", fmt.Sprintf("invalid JSON body: %v", err))
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperror.ValidationFailed(fe.Field(), fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag()))
		}
		return apperror.ValidationFailed("body", err.Error())
	}
	return nil
}

// movieIDParam parses the {id} path value
func movieIDParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed("id", fmt.Sprintf("invalid movie ID %q", r.PathValue("id")))
	}
	return id, nil
}
