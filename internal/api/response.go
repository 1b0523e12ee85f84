package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]string{"error": message})
}

// decodeAndValidate decodes the request body into T and runs struct-tag
// validation, writing a 400 response and returning ok=false on failure.
func decodeAndValidate[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var body T
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return body, false
	}
	if err := validate.Struct(body); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return body, false
	}
	return body, true
}
