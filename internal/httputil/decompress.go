package httputil

import (
	"compress/gzip"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
)

// DecompressPayload replaces the request body by a decompressing reader when
// the client sent it brotli or gzip encoded. Other encodings are rejected.
func DecompressPayload(next http.Handler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		switch r.Header.Get("Content-Encoding") {
		case "", "identity":
		case "br":
			r.Body = io.NopCloser(brotli.NewReader(r.Body))
		case "gzip":
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, "malformed gzip payload", http.StatusBadRequest)
				return
			}
			defer zr.Close()
			r.Body = zr
		default:
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		r.Header.Del("Content-Encoding")

		next.ServeHTTP(w, r)
	})
}
