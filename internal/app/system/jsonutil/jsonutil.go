// Package jsonutil writes the JSON responses of the session and health APIs.
//
// Every response carries Cache-Control: no-store, since the bodies describe
// the caller's authentication state.
package jsonutil

import (
	"encoding/json"
	"net/http"
)

// JSON writes data as a JSON response with the given status code.
// A nil data writes headers only.
//
// Usage:
//
//	jsonutil.JSON(w, http.StatusServiceUnavailable, map[string]string{
//	    "status": "not ready",
//	})
func JSON(w http.ResponseWriter, status int, data any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// OK writes a 200 OK JSON response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Error writes {"error": message} with the given status code. The message
// reaches the client as is; log backend details separately.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}
