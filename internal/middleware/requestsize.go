package middleware

import (
	"mime"
	"net/http"
)

const (
	// DefaultMaxRequestSize bounds JSON bodies (1MB).
	DefaultMaxRequestSize int64 = 1 << 20
	// DefaultMaxUploadSize bounds multipart uploads; it leaves room for form overhead
	// around a 20MiB file.
	DefaultMaxUploadSize int64 = 21 << 20
	// DefaultMaxImageJSONSize bounds JSON bodies that carry a base64 image.
	DefaultMaxImageJSONSize int64 = 28 << 20
)

// MaxRequestSize limits request bodies, allowing uploadBytes for multipart bodies
// and maxBytes for everything else.
func MaxRequestSize(maxBytes, uploadBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}
	if uploadBytes <= 0 {
		uploadBytes = DefaultMaxUploadSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit := maxBytes
			if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mediaType == "multipart/form-data" {
				limit = uploadBytes
			}

			if r.ContentLength > limit {
				respondError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)

			next.ServeHTTP(w, r)
		})
	}
}
