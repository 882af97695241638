package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Header reads are bounded so a stalled client
// cannot hold a connection open before authentication runs; write and idle
// timeouts keep audit queries from pinning connections indefinitely.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
