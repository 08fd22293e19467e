package emulator

import (
	"encoding/json"
	"net/http"
	"strings"
)

// AuthMiddleware rejects requests without a bearer token known to the store.
func AuthMiddleware(st *Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "API token is invalid.")
				return
			}

			valid, err := st.ValidateToken(token)
			switch {
			case err != nil:
				writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "Failed to validate token")
			case !valid:
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "API token is invalid.")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Object:  "error",
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
