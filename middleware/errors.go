package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/tokenauth"
)

// ErrorWriter renders a rejected request.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, kind tokenauth.ErrorKind)

type errorBody struct {
	Error string `json:"error"`
}

// WriteError writes {"error": "<kind>"} with the status from
// tokenauth.HTTPStatus.
func WriteError(w http.ResponseWriter, _ *http.Request, kind tokenauth.ErrorKind) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(tokenauth.HTTPStatus(kind))
	_ = json.NewEncoder(w).Encode(errorBody{Error: kind.String()})
}
