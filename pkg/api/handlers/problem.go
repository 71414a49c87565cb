// Package handlers provides the HTTP handlers for the MezzoFS API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mezzofs/mezzofs/pkg/fault"
)

// Problem represents an RFC 7807 "problem details" response.
// https://tools.ietf.org/html/rfc7807
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	// If not set, defaults to "about:blank".
	Type string `json:"type,omitempty"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Code is the stable machine-readable error code.
	Code string `json:"code,omitempty"`
}

// ContentTypeProblemJSON is the Content-Type for RFC 7807 problem responses.
const ContentTypeProblemJSON = "application/problem+json"

// WriteProblem writes an RFC 7807 problem response.
func WriteProblem(w http.ResponseWriter, status int, title, detail, code string) {
	problem := &Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
		Code:   code,
	}

	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteError maps a domain error to its HTTP representation.
//
// Status mapping by fault kind: validation 400, not found 404, conflict
// and precondition 409, capacity 413, unavailable 503, everything else
// 500. The stable error code rides along for machine consumers.
func WriteError(w http.ResponseWriter, err error) {
	var status int
	var title string
	switch fault.KindOf(err) {
	case fault.KindValidation:
		status, title = http.StatusBadRequest, "Bad Request"
	case fault.KindNotFound:
		status, title = http.StatusNotFound, "Not Found"
	case fault.KindConflict, fault.KindPrecondition:
		status, title = http.StatusConflict, "Conflict"
	case fault.KindCapacity:
		status, title = http.StatusRequestEntityTooLarge, "Request Entity Too Large"
	case fault.KindUnavailable:
		status, title = http.StatusServiceUnavailable, "Service Unavailable"
	default:
		status, title = http.StatusInternalServerError, "Internal Server Error"
	}
	WriteProblem(w, status, title, err.Error(), fault.CodeOf(err))
}

// BadRequest writes a 400 Bad Request problem response.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadRequest, "Bad Request", detail, "BAD_REQUEST")
}

// NotFound writes a 404 Not Found problem response.
func NotFound(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusNotFound, "Not Found", detail, "NOT_FOUND")
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteJSONOK writes a 200 OK JSON response.
func WriteJSONOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteJSONCreated writes a 201 Created JSON response.
func WriteJSONCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a 204 No Content response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
