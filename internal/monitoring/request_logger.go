// Package monitoring - request_logger.go logs HTTP request lifecycle.
//
// DESIGN: Structured logging for request tracing at DEBUG level:
//   - LogIncoming:   Request received from client
//   - LogUpstream:   Request forwarded to the provider
//   - LogResponse:   Response sent to client
//   - LogStreamDone: Stream relay finished
package monitoring

import (
	"net/http"
	"time"
)

// RequestLogger logs HTTP request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	Provider   string
	Model      string
	Streaming  bool
	BodySize   int
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string, bodySize int) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		BodySize:   bodySize,
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Str("remote_addr", info.RemoteAddr).
		Int("body_size", info.BodySize).
		Msg("request received")
}

// LogUpstream logs the call forwarded to the provider.
func (rl *RequestLogger) LogUpstream(info *RequestInfo, url string) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("provider", info.Provider).
		Str("model", info.Model).
		Bool("streaming", info.Streaming).
		Str("url", url).
		Msg("forwarding to provider")
}

// LogResponse logs the response sent to the client.
func (rl *RequestLogger) LogResponse(info *RequestInfo, statusCode, bodySize int) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("provider", info.Provider).
		Int("status", statusCode).
		Int("body_size", bodySize).
		Dur("total", time.Since(info.StartTime)).
		Msg("response sent")
}

// LogStreamDone logs the end of a stream relay.
func (rl *RequestLogger) LogStreamDone(info *RequestInfo, chunks int, complete bool) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("provider", info.Provider).
		Int("chunks", chunks).
		Bool("complete", complete).
		Dur("total", time.Since(info.StartTime)).
		Msg("stream finished")
}
