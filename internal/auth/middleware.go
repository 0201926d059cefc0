package auth

import (
	"net/http"

	platformauth "example.com/training/pkg/platform/auth"
)

// NewMiddleware returns bearer-token middleware that leaves health checks and metrics open.
func NewMiddleware(cfg Config) platformauth.Middleware {
	return platformauth.NewMiddleware(cfg, func(r *http.Request) bool {
		switch r.URL.Path {
		case "/healthz", "/metrics":
			return true
		}
		return false
	})
}
