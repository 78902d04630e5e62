// Package httptransport assembles the HTTP servers for the dashboard API and
// the consumer's metrics listener.
package httptransport

import (
	"net/http"
	"time"
)

// ServerConfig carries the listen address and connection timeouts. The write
// timeout must leave room for full board and deal-list snapshots, which are
// returned unpaginated.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer wraps the handler in an *http.Server with the configured
// timeouts applied.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
