package httpserver

import (
	"net/http"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// New builds an HTTP server sized to the per-request timeout. The write
// timeout carries headroom beyond the handler deadline so a timeout response
// still flushes instead of dropping the connection.
func New(addr string, handler http.Handler, requestTimeout time.Duration) *http.Server {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
