// Package middleware provides reusable HTTP middleware for the trips API.
package middleware

import (
	"net/http"
	"time"

	"github.com/rs/cors"
)

// Browser clients record rides from another origin. Trips are read with GET
// and every lifecycle step is a POST, so nothing else is offered.
var (
	corsMethods        = []string{http.MethodGet, http.MethodPost}
	corsRequestHeaders = []string{"Content-Type", "Authorization", "X-Request-Id"}
	// Location carries the new trip's URL on start.
	corsExposedHeaders = []string{"Location", "X-Request-Id"}
)

const corsPreflightMaxAge = 5 * time.Minute

// NewCORSHandler admits cross-origin calls from allowedOrigins, each given as
// scheme://host[:port].
func NewCORSHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: corsMethods,
		AllowedHeaders: corsRequestHeaders,
		ExposedHeaders: corsExposedHeaders,
		MaxAge:         int(corsPreflightMaxAge / time.Second),
	}).Handler
}
