// Package gateway is the HTTP surface of the bridge.
//
// DESIGN: One handler per concern:
//   - /v1/{provider}/...  Proxy to the named vendor through its adapter triple
//   - /healthz            Liveness probe
//   - /metrics            Prometheus scrape endpoint
//
// The proxy path is vendor-native after the provider segment: clients keep
// speaking their SDK's wire format and the gateway only normalizes in the
// middle. Middleware chain (applied outermost first): panic recovery, rate
// limiting, logging, security headers.
package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lotbones1-code/llmbridge/external"
	"github.com/lotbones1-code/llmbridge/internal/adapters"
	"github.com/lotbones1-code/llmbridge/internal/config"
	"github.com/lotbones1-code/llmbridge/internal/monitoring"
)

const (
	// HeaderRequestID carries the request ID to clients and logs.
	HeaderRequestID = "X-Request-ID"

	// MaxRateLimitBuckets caps per-IP rate limiter state.
	MaxRateLimitBuckets = 10000

	// defaultRateLimit is requests per second per client IP.
	defaultRateLimit = 50

	// maxRequestBody caps inbound request bodies. Vision payloads carry
	// base64 images, so the cap is generous.
	maxRequestBody = 64 * 1024 * 1024
)

// Options tunes gateway construction. The zero value is production behavior.
type Options struct {
	// Mock short-circuits all upstream calls with canned payloads.
	Mock *adapters.MockBackend
}

// Gateway proxies vendor-native LLM traffic through the adapter layer.
type Gateway struct {
	cfg           *config.Config
	logger        *monitoring.Logger
	requestLogger *monitoring.RequestLogger
	metrics       *monitoring.Metrics
	tracker       *monitoring.Tracker
	rateLimiter   *rateLimiter

	tokenizer    external.Tokenizer
	prices       external.PriceTable
	capabilities external.ModelCapabilities

	clientOpts adapters.ClientOptions
	server     *http.Server
}

// New builds a gateway from configuration.
func New(cfg *config.Config, logger *monitoring.Logger, tracker *monitoring.Tracker, opts Options) *Gateway {
	noImage := external.DefaultNoImageModels
	if len(cfg.Capabilities.NoImageModels) > 0 {
		noImage = cfg.Capabilities.NoImageModels
	}

	var prices external.PriceTable
	if len(cfg.Pricing) > 0 {
		prices = external.NewStaticPriceTable(cfg.Pricing)
	}

	return &Gateway{
		cfg:           cfg,
		logger:        logger,
		requestLogger: monitoring.NewRequestLogger(logger),
		metrics:       monitoring.NewMetrics(),
		tracker:       tracker,
		rateLimiter:   newRateLimiter(defaultRateLimit),
		tokenizer:     external.NewTiktokenCounter(),
		prices:        prices,
		capabilities:  external.NewStaticCapabilities(noImage),
		clientOpts:    adapters.ClientOptions{Mock: opts.Mock},
	}
}

// Handler returns the fully wired HTTP handler.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", g.handleHealth)
	mux.Handle("/metrics", g.metrics.Handler())
	mux.HandleFunc("/v1/", g.handleProxy)

	var h http.Handler = mux
	h = g.security(h)
	h = g.loggingMiddleware(h)
	h = g.rateLimit(h)
	h = g.panicRecovery(h)
	return h
}

// handleHealth serves the liveness probe.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeError sends a JSON error envelope.
func (g *Gateway) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "code": status},
	})
}

// providerNames lists the registered vendors for startup logging.
func providerNames() []string {
	providers := adapters.Providers()
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p)
	}
	return names
}

// splitProviderPath splits "/v1/{provider}/rest" into its provider segment
// and the vendor-native remainder.
func splitProviderPath(path string) (provider, rest string) {
	trimmed := strings.TrimPrefix(path, "/v1/")
	if trimmed == path {
		return "", ""
	}
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[:idx], trimmed[idx:]
	}
	return trimmed, ""
}
