package middleware

import (
	"mime"
	"net/http"
)

// ContentType requires a JSON or multipart body on POST, PATCH and PUT requests.
func ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			contentType := r.Header.Get("Content-Type")
			if contentType == "" {
				respondError(w, http.StatusBadRequest, "Content-Type header is required")
				return
			}
			mediaType, _, err := mime.ParseMediaType(contentType)
			if err != nil || (mediaType != "application/json" && mediaType != "multipart/form-data") {
				respondError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json or multipart/form-data")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
