package middleware

import (
	"encoding/json"
	"net/http"

	"tryon/internal/i18n"
)

// writeError sends the short localized JSON error used across the API.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, key string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": i18n.T(LocaleFromContext(r.Context()), key),
		"code":  code,
	})
}
