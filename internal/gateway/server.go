// HTTP server lifecycle.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Start runs the HTTP server until Shutdown or a listener error.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", g.cfg.Server.Port),
		Handler:     g.Handler(),
		ReadTimeout: g.cfg.Server.ReadTimeout,
		// Write timeout must outlive the longest stream; operators size it
		// in config accordingly.
		WriteTimeout: g.cfg.Server.WriteTimeout,
	}

	log.Info().
		Int("port", g.cfg.Server.Port).
		Strs("providers", providerNames()).
		Msg("listening")

	return g.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}
