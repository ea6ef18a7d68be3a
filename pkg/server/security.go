package server

import (
	"net/http"
)

// securityHeadersMiddleware sets the headers every API response carries. The
// API only returns JSON and exported report files, so no content is allowed
// to load and nothing may frame it.
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		// exports are xlsx and pdf and must be downloaded as declared
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		// reports are derived from uploaded meter data
		h.Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
