// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
package monitoring

import "time"

// RequestEvent captures one proxied request through the gateway, normalized
// across vendors.
type RequestEvent struct {
	RequestID        string    `json:"request_id"`
	Timestamp        time.Time `json:"timestamp"`
	Method           string    `json:"method"`
	Path             string    `json:"path"`
	ClientIP         string    `json:"client_ip"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model,omitempty"`
	Streaming        bool      `json:"streaming"`
	RequestBodySize  int       `json:"request_body_size"`
	ResponseBodySize int       `json:"response_body_size"`
	StatusCode       int       `json:"status_code"`
	StreamChunks     int       `json:"stream_chunks,omitempty"`
	ImagesStripped   int       `json:"images_stripped,omitempty"`
	ImagesOmitted    int       `json:"images_omitted,omitempty"`
	ToonTokensSaved  int       `json:"toon_tokens_saved,omitempty"`
	ToonCostSavings  *float64  `json:"toon_cost_savings,omitempty"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
	UpstreamMs       int64     `json:"upstream_ms"`
	TotalMs          int64     `json:"total_ms"`
	// Usage from the vendor response, normalized by the adapter.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
	TotalTokens  int `json:"total_tokens,omitempty"`
}

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}
