package handler

import (
	"net/http"

	"github.com/go-chi/cors"
)

// maxBodyBytes bounds the conversation payload accepted by the agent route.
const maxBodyBytes = 1 << 20

// CORSMiddleware lets the browser intranet call the agent from any origin.
// Preflight requests are answered with an empty 200.
func CORSMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Authorization", "Content-Type", "X-Client-Info", "apikey"},
		ExposedHeaders:     []string{"X-Request-Id"},
		MaxAge:             300,
		OptionsPassthrough: false,
	})
}

// LimitBody caps request bodies at maxBodyBytes.
func LimitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// OptionsOK answers any OPTIONS request the CORS handler let through with
// an empty 200.
func OptionsOK(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
