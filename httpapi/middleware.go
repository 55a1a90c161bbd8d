package httpapi

import "net/http"

// maxBodyBytes caps request bodies. Imported archives are the largest
// payloads and even big notebooks zip down to well under this.
const maxBodyBytes = 8 << 20

// securityHeaders sets conservative headers on every response. The API
// serves no HTML, so framing and sniffing are denied outright.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// maxBody limits request body size so a runaway upload cannot exhaust
// memory before the zip reader rejects it.
func maxBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}
